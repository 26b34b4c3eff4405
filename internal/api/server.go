package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/config"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/syncer"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/telemetry"
)

const (
	requestTimeout = 30 * time.Second
	readyTimeout   = 3 * time.Second
)

// ErrBusy is returned by TriggerSync while another run is in flight.
var ErrBusy = errors.New("a sync run is already in progress")

// SyncFunc runs one sync pass.
type SyncFunc func(ctx context.Context, filter syncer.Filter) (syncer.Summary, error)

// Options wires the server's collaborators.
type Options struct {
	Sync     SyncFunc
	Segments catalog.SegmentStore
	Gatherer prometheus.Gatherer
	// Metrics records per-route request counts when set.
	Metrics *telemetry.HTTPMetrics
	// Ready reports whether downstream dependencies are reachable.
	Ready func(ctx context.Context) error
	Auth  config.AuthConfig
	// BaseContext parents background runs; canceling it stops them.
	BaseContext context.Context
	Logger      *zap.Logger
}

// Server wires HTTP handlers to the syncer and segment registry.
type Server struct {
	router chi.Router
	opts   Options
	logger *zap.Logger

	mu      sync.Mutex
	running bool
	last    *runStatus
	wg      sync.WaitGroup
}

type runStatus struct {
	Summary syncer.Summary `json:"summary"`
	Error   string         `json:"error,omitempty"`
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{opts: opts, logger: opts.Logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(requestTimeout))
		if opts.Auth.Enabled {
			r.Use(apiKeyMiddleware(opts.Auth.APIKey))
		}
		r.Post("/sync", s.startSync)
		r.Get("/sync", s.syncStatus)
		r.Get("/segments", s.listSegments)
		r.Put("/segments", s.upsertSegment)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Wait blocks until a background run started through the API has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

// TriggerSync starts a run in the background unless one is already running.
func (s *Server) TriggerSync(filter syncer.Filter) error {
	if s.opts.Sync == nil {
		return errors.New("sync is not configured")
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrBusy
	}
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		summary, err := s.opts.Sync(s.opts.BaseContext, filter)
		status := &runStatus{Summary: summary}
		if err != nil {
			status.Error = err.Error()
			s.logger.Error("background sync failed", zap.String("run_id", summary.RunID), zap.Error(err))
		}
		s.mu.Lock()
		s.running = false
		s.last = status
		s.mu.Unlock()
	}()
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.opts.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) startSync(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch err := s.TriggerSync(filter); {
	case errors.Is(err, ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":  "started",
			"source":  filter.Source,
			"segment": filter.Segment,
		})
	}
}

func (s *Server) syncStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := map[string]any{"running": s.running}
	if s.last != nil {
		resp["last"] = s.last
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, resp)
}

func parseFilter(r *http.Request) (syncer.Filter, error) {
	q := r.URL.Query()
	filter := syncer.Filter{Segment: q.Get("segment")}
	if raw := q.Get("source"); raw != "" {
		src, err := catalog.ParseSource(raw)
		if err != nil {
			return syncer.Filter{}, err
		}
		filter.Source = src
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
