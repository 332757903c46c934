package main

import (
	"encoding/json"
	"fmt"

	"github.com/bit2swaz/salesflood/internal/sales"
	"github.com/spf13/cobra"
)

type sampleOptions struct {
	count   int
	seed    uint64
	catalog string
}

func newSampleCmd() *cobra.Command {
	opts := &sampleOptions{}

	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print generated sales as JSON lines without touching a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSample(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.count, "count", "n", 10, "Number of records to print")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Random seed (random when unset)")
	cmd.Flags().StringVar(&opts.catalog, "catalog", "", "YAML catalog file (defaults to the built-in catalog)")
	return cmd
}

func runSample(cmd *cobra.Command, opts *sampleOptions) error {
	if opts.count < 0 {
		return fmt.Errorf("count cannot be negative: %d", opts.count)
	}

	cat, err := loadCatalog(opts.catalog)
	if err != nil {
		return err
	}

	genCfg := sales.GeneratorConfig{Catalog: cat}
	if cmd.Flags().Changed("seed") {
		genCfg.Rand = sales.NewSeededRand(opts.seed)
	}

	gen, err := sales.NewGenerator(genCfg)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for i := 0; i < opts.count; i++ {
		if err := enc.Encode(gen.Next()); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	return nil
}
