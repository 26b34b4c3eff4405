package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/api"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/syncer"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve health, metrics, and the sync trigger over HTTP",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	cfg := appInstance.Config()
	logger := appInstance.Logger()

	store, err := appInstance.Store(ctx)
	if err != nil {
		return err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	s, err := appInstance.Syncer(ctx)
	if err != nil {
		return err
	}
	metrics, err := appInstance.HTTPMetrics()
	if err != nil {
		return err
	}

	server := api.NewServer(api.Options{
		Sync: func(ctx context.Context, filter syncer.Filter) (syncer.Summary, error) {
			return s.Run(ctx, cfg.Segments, filter)
		},
		Segments: store,
		Gatherer: appInstance.Registry(),
		Metrics:  metrics,
		Ready: func(ctx context.Context) error {
			_, err := store.LoadSegments(ctx, catalog.SourceCardrush)
			return err
		},
		Auth:        cfg.Auth,
		BaseContext: ctx,
		Logger:      logger.Named("api"),
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}
	// Background runs observe the canceled base context and stop between pages.
	server.Wait()
	logger.Info("server stopped")
	return nil
}
