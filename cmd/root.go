// Package cmd defines and implements the CLI commands for the catalogsync executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/app"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/config"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/logging"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/syncer"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/telemetry"
)

// version is stamped at build time with -ldflags "-X .../cmd.version=...".
var version = "dev"

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the services commands use. Tests substitute their own.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Registry() *prometheus.Registry
	HTTPMetrics() (*telemetry.HTTPMetrics, error)
	Store(ctx context.Context) (catalog.Store, error)
	Syncer(ctx context.Context) (*syncer.Syncer, error)
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgFile string) (App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	a := app.New(cfg, logger)
	if err := a.InitTracing(ctx, version); err != nil {
		return nil, err
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "catalogsync",
		Short: "Incremental catalog sync for CardRush prices and Limitless cards.",
		Long: `catalogsync walks paginated CardRush listings and enumerated Limitless
card pages, stopping each segment on an empty page, a repeated page, or its
page ceiling, and upserts what it finds into SQLite or Postgres with one
price observation per product per day.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, ok := cmd.Context().Value(appKey).(App)
			if !ok || appInstance == nil {
				return nil
			}
			if err := appInstance.Close(context.WithoutCancel(cmd.Context())); err != nil {
				appInstance.Logger().Warn("failed to close services", zap.Error(err))
			}
			_ = appInstance.Logger().Sync()
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json, or toml)")
	cmd.Version = version

	cmd.AddCommand(
		newSyncCmd(),
		newInitDBCmd(),
		newSegmentsCmd(),
		newInspectCmd(),
		newServeCmd(),
	)
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the command
// context so in-flight runs stop between pages.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
