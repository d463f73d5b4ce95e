// Command pipeline runs the data pipelines in the foreground.
//
// Usage:
//
//	pipeline list
//	pipeline run clean-wages --param league=premier_league
//	pipeline run preprocess-forwards --with-deps
//	pipeline split --season 2023
//	pipeline export --bucket values_predictions --blob attacking_predictions.csv
//	pipeline publish --src wage_vals_stats/standard.csv
//	pipeline buckets init
//	pipeline weights 0.71 0.65 0.80
//	pipeline evaluate --bucket values_predictions --blob attacking_predictions.csv
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"valuepulse/internal/app"
	"valuepulse/internal/config"
	"valuepulse/internal/infrastructure"
)

func main() {
	_ = godotenv.Load(".env")

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// options are the persistent flags shared by every command
type options struct {
	configFile string
	backend    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "pipeline",
		Short:         "Run football value pipelines",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "config file (defaults to APP_CONFIG_FILE or config.yaml)")
	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "override the storage backend (fs, gcs, postgres)")

	root.AddCommand(
		listCmd(opts),
		runCmd(opts),
		splitCmd(opts),
		exportCmd(opts),
		publishCmd(opts),
		bucketsCmd(opts),
		weightsCmd(),
		evaluateCmd(opts),
	)
	return root
}

// loadConfig applies the --config and --backend flags
func (o *options) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configFile != "" {
		cfg, err = config.LoadFrom(o.configFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.backend != "" {
		cfg.Storage.Backend = o.backend
	}
	return cfg, nil
}

// withPipelines handles config loading, logging, storage and signal
// cancellation for commands that touch data
func (o *options) withPipelines(fn func(ctx context.Context, cfg *config.Config, p *app.Pipelines, logger *slog.Logger) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = infrastructure.EnsureTraceID(ctx)

	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	p, err := app.OpenPipelines(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			infrastructure.WithError(logger, err).ErrorContext(ctx, "close storage")
		}
	}()
	return fn(ctx, cfg, p, logger)
}
