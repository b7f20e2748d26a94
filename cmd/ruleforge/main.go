package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "RuleForge"
	version = "v1.0.0"
)

type globalOptions struct {
	configPath string
	logLevel   string
	jsonLogs   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:     "ruleforge",
		Short:   "Turn gradient-boosted tree ensembles into readable trading rules",
		Version: version,
		Long: `RuleForge walks every root-to-leaf path of a LightGBM model, scores each path
against a feature matrix, and condenses the best paths into IF/THEN trading rules.

Typical use:
   ruleforge extract --model model.json --data features.csv --asset SPY`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonLogs, "json-logs", false, "Emit JSON logs even on a terminal")

	rootCmd.AddCommand(newExtractCmd(opts))
	rootCmd.AddCommand(newMatchCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newConfigCmd(opts))

	return rootCmd
}

// setupLogging uses the console writer on a TTY and plain JSON otherwise
func setupLogging(opts *globalOptions) error {
	zerolog.TimeFieldFormat = time.RFC3339

	level, err := zerolog.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)

	if !opts.jsonLogs && term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return nil
}
