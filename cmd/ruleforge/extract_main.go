package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/ruleforge/internal/application/extract"
	"github.com/sawpanic/ruleforge/internal/cache"
	"github.com/sawpanic/ruleforge/internal/config"
	"github.com/sawpanic/ruleforge/internal/ensemble"
	"github.com/sawpanic/ruleforge/internal/export"
	"github.com/sawpanic/ruleforge/internal/infrastructure/db"
	"github.com/sawpanic/ruleforge/internal/metrics"
)

type extractOptions struct {
	modelPath string
	dataPath  string
	features  []string
	rulesOut  string
	traderOut string
	quiet     bool
	noPersist bool
	config.Flags
}

func newExtractCmd(global *globalOptions) *cobra.Command {
	opts := &extractOptions{}

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract, rank and condense rules from a model",
		Long: `Walks the model, scores every path against the data, keeps the most important
rules and prints them together with the trader rules built from them.

Results are cached by input hash and, when a database is configured, stored
as a rule run for the monitoring server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.modelPath, "model", "", "LightGBM JSON model dump")
	cmd.Flags().StringVar(&opts.dataPath, "data", "", "CSV feature matrix with a header row")
	cmd.Flags().StringSliceVar(&opts.features, "feature-names", nil, "Override the model's feature names (comma-separated)")
	cmd.Flags().StringVar(&opts.rulesOut, "rules-out", "", "Write ranked rules to this .json or .csv file")
	cmd.Flags().StringVar(&opts.traderOut, "trader-out", "", "Write trader rules to this .json or .csv file")
	cmd.Flags().BoolVar(&opts.quiet, "quiet", false, "Suppress the printed report and progress")
	cmd.Flags().BoolVar(&opts.noPersist, "no-persist", false, "Skip the database even when one is configured")
	opts.RegisterFlags(cmd.Flags())
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runExtract(cmd *cobra.Command, global *globalOptions, opts *extractOptions) error {
	cfg, err := loadConfig(global.configPath)
	if err != nil {
		return err
	}
	opts.ApplyFlags(cmd.Flags(), cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Validate output formats before doing any work
	for _, path := range []string{opts.rulesOut, opts.traderOut} {
		if path == "" {
			continue
		}
		if _, err := export.FormatFromPath(path); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress io.Writer = os.Stderr
	if opts.quiet {
		progress = nil
	}

	reg := metrics.NewRegistry()
	svcOpts := []extract.Option{
		extract.WithMetrics(reg),
		extract.WithProgress(progress),
		extract.WithCache(openCache(ctx, cfg)),
	}

	if !opts.noPersist && cfg.Database.Enabled {
		manager, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer manager.Close()
		svcOpts = append(svcOpts, extract.WithRepository(manager.Repository().Runs))
	}

	svc, err := extract.NewService(extract.ConfigFrom(cfg), svcOpts...)
	if err != nil {
		return err
	}

	var parseOpts []ensemble.Option
	if len(opts.features) > 0 {
		parseOpts = append(parseOpts, ensemble.WithFeatureNames(opts.features))
	}

	in, err := svc.LoadInput(opts.modelPath, opts.dataPath, parseOpts...)
	if err != nil {
		return err
	}

	result, err := svc.Run(ctx, *in)
	if err != nil {
		return err
	}

	if !opts.quiet {
		out := cmd.OutOrStdout()
		export.PrintRules(out, result.Rules, cfg.Trader.TopN, cfg.Extraction.TargetName, svc.Config().Classification())
		export.PrintTraderRules(out, result.TraderRules, cfg.Trader.Asset)
	}

	if opts.rulesOut != "" {
		timer := reg.StartStepTimer(metrics.StepExport)
		if err := export.WriteRules(opts.rulesOut, result.Rules); err != nil {
			timer.Stop(metrics.ResultError)
			return err
		}
		timer.Stop(metrics.ResultSuccess)
		log.Info().Str("path", opts.rulesOut).Int("rules", len(result.Rules)).Msg("Ranked rules written")
	}
	if opts.traderOut != "" {
		timer := reg.StartStepTimer(metrics.StepExport)
		if err := export.WriteTraderRules(opts.traderOut, result.TraderRules, cfg.Trader.Asset); err != nil {
			timer.Stop(metrics.ResultError)
			return err
		}
		timer.Stop(metrics.ResultSuccess)
		log.Info().Str("path", opts.traderOut).Int("rules", len(result.TraderRules)).Msg("Trader rules written")
	}

	log.Info().
		Str("run_id", result.RunID).
		Int("trees", result.TreeCount).
		Int("paths", result.PathCount).
		Int("rules", len(result.Rules)).
		Int("trader_rules", len(result.TraderRules)).
		Bool("cached", result.Cached).
		Dur("duration", result.Duration).
		Msg("Extraction complete")

	return nil
}

// loadConfig returns the defaults plus env overrides when no file is given
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		config.ApplyEnv(&cfg)
		return &cfg, nil
	}
	return config.Load(path)
}

// openCache prefers redis and falls back to an in-process cache when it is unreachable
func openCache(ctx context.Context, cfg *config.Config) cache.Cache {
	if !cfg.Cache.Enabled {
		return cache.NewMemory()
	}

	rc, err := cache.NewRedisCache(ctx, cache.Options{
		Addr:      cfg.Cache.Addr,
		DB:        cfg.Cache.DB,
		KeyPrefix: cfg.Cache.KeyPrefix,
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Cache.Addr).Msg("Redis unavailable, using in-memory cache")
		return cache.NewMemory()
	}
	return rc
}

func openDatabase(ctx context.Context, cfg db.Config) (*db.Manager, error) {
	manager, err := db.NewManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := manager.Migrate(ctx); err != nil {
		manager.Close()
		return nil, err
	}
	return manager, nil
}
