package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	httpserver "github.com/sawpanic/ruleforge/internal/interfaces/http"
	"github.com/sawpanic/ruleforge/internal/metrics"
)

func newServeCmd(global *globalOptions) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored rule runs over a read-only HTTP API",
		Long: `Starts the monitoring server: /health, /metrics, /rules/latest,
/trader/latest, /runs and /runs/{id}. Run endpoints need a configured database.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			deps := httpserver.Dependencies{
				Metrics: metrics.NewDefaultRegistry(),
				Version: version,
			}
			if cfg.Database.Enabled {
				manager, err := openDatabase(ctx, cfg.Database)
				if err != nil {
					return err
				}
				defer manager.Close()
				deps.Runs = manager.Repository().Runs
				deps.Health = manager.Health()
			} else {
				log.Warn().Msg("No database configured; run endpoints will return 503")
			}

			serverCfg := httpserver.ServerConfig{
				Host:         cfg.Server.Host,
				Port:         cfg.Server.Port,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
				IdleTimeout:  60 * time.Second,
				RateLimitRPS: cfg.Server.RateLimitRPS,
				RateBurst:    cfg.Server.RateBurst,
			}
			server, err := httpserver.NewServer(serverCfg, deps)
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.Info().Msgf("%s server stopped", appName)
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides config)")

	return cmd
}
