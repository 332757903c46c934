package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "salesflood",
		Short: "salesflood - synthetic sales data injector",
		Long: `salesflood connects to a relational database and inserts one randomly
generated sale every cycle, forever, reconnecting whenever the database
goes away. Use it to feed dashboards and pipelines with live-looking data.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newSampleCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "salesflood", Version)
		},
	}
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func printBanner(w io.Writer) {
	banner := `
           _           __ _                 _
 ___  __ _| | ___  ___/ _| | ___   ___   __| |
/ __|/ _' | |/ _ \/ __| |_| |/ _ \ / _ \ / _' |
\__ \ (_| | |  __/\__ \  _| | (_) | (_) | (_| |
|___/\__,_|_|\___||___/_| |_|\___/ \___/ \__,_|
Synthetic sales data injector
`
	fmt.Fprintln(w, banner)
}
