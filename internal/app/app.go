// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/archive"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/clock/system"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/config"
	collyfetcher "github.com/JakeFAU/tcg-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/hash/sha256"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/id/uuid"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/progress"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/progress/sinks"
	pubsubpublisher "github.com/JakeFAU/tcg-catalog-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/storage/gcs"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/storage/local"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/storage/postgres"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/syncer"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/telemetry"
)

const serviceName = "catalogsync"

// App holds the shared services for one process. Services are built on first
// use so that commands like inspect never touch the network or the database.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *prometheus.Registry

	mu       sync.Mutex
	store    catalog.Store
	progress *progress.Fanout
	closers  []func() error
}

// New creates an App. It performs no I/O.
func New(cfg config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &App{cfg: cfg, logger: logger, registry: reg}
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Registry is the Prometheus registry served on /metrics.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// HTTPMetrics returns the API request collectors registered on Registry.
func (a *App) HTTPMetrics() (*telemetry.HTTPMetrics, error) {
	return telemetry.NewHTTPMetrics(a.registry)
}

// InitTracing installs the global tracer provider. Close flushes it.
func (a *App) InitTracing(ctx context.Context, version string) error {
	tp, err := telemetry.InitTracerProvider(ctx, serviceName, version)
	if err != nil {
		return fmt.Errorf("initialize tracing: %w", err)
	}
	a.addCloser(func() error { return tp.Shutdown(context.Background()) })
	return nil
}

// Store opens the configured relational backend once.
func (a *App) Store(ctx context.Context) (catalog.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store != nil {
		return a.store, nil
	}
	var (
		store catalog.Store
		err   error
	)
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		a.logger.Info("connecting to postgres")
		store, err = postgres.New(ctx, postgres.Config{DSN: a.cfg.Store.DSN, MaxConns: a.cfg.Store.MaxConns}, a.logger.Named("store"))
	case config.DriverSQLite:
		a.logger.Info("using sqlite store", zap.String("path", a.cfg.Store.Path))
		store, err = sqlite.New(sqlite.Config{Path: a.cfg.Store.Path}, a.logger.Named("store"))
	default:
		err = fmt.Errorf("unknown store driver %q", a.cfg.Store.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	return store, nil
}

// Progress returns the event fan-out feeding the log and Prometheus sinks.
func (a *App) Progress() (*progress.Fanout, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.progress != nil {
		return a.progress, nil
	}
	promSink, err := sinks.NewPrometheusSink(a.registry)
	if err != nil {
		return nil, fmt.Errorf("initialize metrics sink: %w", err)
	}
	a.progress = progress.NewFanout(a.logger.Named("progress"), sinks.NewLogSink(a.logger.Named("progress")), promSink)
	return a.progress, nil
}

// Syncer wires the fetcher, archive, store, and publisher into a driver.
func (a *App) Syncer(ctx context.Context) (*syncer.Syncer, error) {
	store, err := a.Store(ctx)
	if err != nil {
		return nil, err
	}
	fanout, err := a.Progress()
	if err != nil {
		return nil, err
	}
	fetcher, err := a.Fetcher(ctx)
	if err != nil {
		return nil, err
	}
	deps := syncer.Deps{
		Fetcher:  fetcher,
		Store:    store,
		Progress: fanout,
		Clock:    system.New(),
		IDs:      uuid.New(),
		Logger:   a.logger.Named("syncer"),
	}
	if a.cfg.PubSub.Topic != "" {
		pub, err := a.publisher(ctx)
		if err != nil {
			return nil, err
		}
		deps.Publisher = pub
	}
	return syncer.New(deps, syncer.Options{
		CardrushPageSize:  a.cfg.Cardrush.PageSize,
		CardrushMaxPages:  a.cfg.Cardrush.MaxPages,
		LimitlessBaseURL:  a.cfg.Limitless.BaseURL,
		LimitlessMaxCards: a.cfg.Limitless.MaxCards,
		Topic:             a.cfg.PubSub.Topic,
	})
}

// Fetcher builds the colly fetch port with the configured archive attached.
func (a *App) Fetcher(ctx context.Context) (*collyfetcher.Fetcher, error) {
	opts := []collyfetcher.Option{collyfetcher.WithLogger(a.logger.Named("fetcher"))}
	archiver, err := a.archiver(ctx)
	if err != nil {
		return nil, err
	}
	if archiver != nil {
		opts = append(opts, collyfetcher.WithArchiver(archiver))
	}
	f, err := collyfetcher.New(collyfetcher.Config{
		UserAgent:  a.cfg.HTTP.UserAgent,
		Headers:    a.cfg.HTTP.Headers,
		Timeout:    a.cfg.FetchTimeout(),
		Delay:      a.cfg.FetchDelay(),
		MaxRetries: a.cfg.HTTP.MaxRetries,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize fetcher: %w", err)
	}
	return f, nil
}

func (a *App) archiver(ctx context.Context) (*archive.Archiver, error) {
	var blobs catalog.BlobStore
	switch a.cfg.Archive.Backend {
	case config.ArchiveNone, "":
		return nil, nil
	case config.ArchiveLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("initialize local archive: %w", err)
		}
		a.logger.Info("archiving pages locally", zap.String("base_dir", a.cfg.Archive.BaseDir))
		blobs = store
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.addCloser(client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.Bucket, Prefix: a.cfg.Archive.Prefix})
		if err != nil {
			return nil, fmt.Errorf("initialize gcs archive: %w", err)
		}
		a.logger.Info("archiving pages to gcs", zap.String("bucket", a.cfg.Archive.Bucket))
		blobs = store
	default:
		return nil, fmt.Errorf("unknown archive backend %q", a.cfg.Archive.Backend)
	}
	return archive.New(blobs, sha256.New(), a.logger.Named("archive")), nil
}

func (a *App) publisher(ctx context.Context) (*pubsubpublisher.Publisher, error) {
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client)
	a.addCloser(pub.Close)
	a.logger.Info("publishing run summaries", zap.String("topic", a.cfg.PubSub.Topic))
	return pub, nil
}

func (a *App) addCloser(fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, fn)
}

// Close releases every service in reverse creation order.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	closers := a.closers
	fanout := a.progress
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	if fanout != nil {
		if err := fanout.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
