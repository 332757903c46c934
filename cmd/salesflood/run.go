package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bit2swaz/salesflood/internal/api"
	"github.com/bit2swaz/salesflood/internal/catalog"
	"github.com/bit2swaz/salesflood/internal/checkpoint"
	"github.com/bit2swaz/salesflood/internal/config"
	"github.com/bit2swaz/salesflood/internal/injector"
	"github.com/bit2swaz/salesflood/internal/observability"
	"github.com/bit2swaz/salesflood/internal/retry"
	"github.com/bit2swaz/salesflood/internal/sales"
	"github.com/bit2swaz/salesflood/internal/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type runOptions struct {
	interval    time.Duration
	retryDelay  time.Duration
	count       uint64
	seed        uint64
	catalog     string
	createTable bool
	quiet       bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Insert one random sale per cycle until interrupted",
		Long: `Connects to the configured database, retrying until it is reachable,
then inserts a random sale every cycle. When an insert fails the session
is dropped and a new one is opened with the same retry policy.

Connection settings come from POSTGRES_* environment variables (or
DB_DRIVER=sqlite3 with SQLITE_PATH); flags override the timing knobs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInject(cmd, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.interval, "interval", 0, "Pause between cycles (overrides INJECT_INTERVAL)")
	cmd.Flags().DurationVar(&opts.retryDelay, "retry-delay", 0, "Wait between connection attempts (overrides RETRY_DELAY)")
	cmd.Flags().Uint64Var(&opts.count, "count", 0, "Stop after this many inserts (0 runs forever)")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "Random seed for reproducible data")
	cmd.Flags().StringVar(&opts.catalog, "catalog", "", "YAML catalog file (overrides CATALOG_FILE)")
	cmd.Flags().BoolVar(&opts.createTable, "create-table", false, "Create the sales table if it does not exist")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "Do not print the banner")
	return cmd
}

// applyRunFlags copies explicitly set flags over the environment config.
func applyRunFlags(cmd *cobra.Command, opts *runOptions, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("interval") {
		cfg.Injector.Interval = opts.interval
	}
	if flags.Changed("retry-delay") {
		cfg.Injector.RetryDelay = opts.retryDelay
	}
	if flags.Changed("catalog") {
		cfg.Injector.CatalogFile = opts.catalog
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func runInject(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, opts, cfg); err != nil {
		return err
	}

	if !opts.quiet {
		printBanner(cmd.OutOrStdout())
	}

	logger := observability.NewLogger(cfg.Logger, cmd.OutOrStdout())
	slog.SetDefault(logger)

	cat, err := loadCatalog(cfg.Injector.CatalogFile)
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

	cp := checkpoint.NewMemory()
	if cfg.Checkpoint.Path != "" {
		cp, err = checkpoint.Open(cfg.Checkpoint.Path)
		if err != nil {
			return err
		}
	}
	defer cp.Close()

	storeCfg := store.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN(),
		Table:  cfg.Database.Table,
	}
	policy := retry.Policy{
		Delay:       cfg.Injector.RetryDelay,
		MaxAttempts: cfg.Injector.RetryMaxAttempts,
	}

	logger.Info("starting salesflood",
		"version", Version,
		"driver", cfg.Database.Driver,
		"database", cfg.Database.Redacted(),
		"table", cfg.Database.Table,
		"categories", len(cat.Categories))

	inj, err := injector.New(injector.Config{
		Store:      storeCfg,
		Generator:  gen,
		Retry:      policy,
		Interval:   cfg.Injector.Interval,
		MaxRecords: opts.count,
		Logger:     logger,
		Checkpoint: cp,
	})
	if err != nil {
		return fmt.Errorf("failed to create injector: %w", err)
	}

	// A busy admin address is a startup error. Once injection has begun the
	// admin server can no longer stop it.
	var admin *api.Server
	if cfg.Admin.Addr != "" {
		admin = api.NewServer(inj, cfg.Admin.Addr, logger)
		if err := admin.Listen(); err != nil {
			return err
		}
		defer admin.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.createTable {
		if err := ensureSchema(ctx, storeCfg, policy, logger); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The admin server has nothing left to report once injection ends.
		defer cancel()
		return inj.Run(gctx)
	})

	if admin != nil {
		g.Go(func() error {
			if err := admin.Start(gctx); err != nil {
				logger.Error("admin server failed, injection continues", "error", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	stats := inj.Stats()
	logger.Info("salesflood stopped",
		"inserted", stats.Inserted,
		"failed", stats.Failed,
		"reconnects", stats.Reconnects,
		"total_inserted", stats.Totals.Inserted)
	return nil
}

func ensureSchema(ctx context.Context, cfg store.Config, policy retry.Policy, logger *slog.Logger) error {
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		s, err := store.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()
		return s.EnsureSchema(ctx)
	}, func(attempt int, err error) {
		logger.Warn("schema setup failed, retrying", "attempt", attempt, "error", err)
	})
	if err != nil {
		return fmt.Errorf("failed to create sales table: %w", err)
	}
	logger.Info("sales table ready", "table", cfg.Table)
	return nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return cat, nil
}
