package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/progress"
)

// PrometheusSink exports sync progress via Prometheus. It owns all collectors
// for segment outcomes, per-source fetch counters, and written records.
type PrometheusSink struct {
	segmentsStarted   *prometheus.CounterVec
	segmentsCompleted *prometheus.CounterVec
	segmentsRunning   prometheus.Gauge

	fetches       *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	failures      *prometheus.CounterVec
	written       *prometheus.CounterVec

	tracker *segmentTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		segmentsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_segments_started_total",
			Help: "Segments whose traversal has started.",
		}, []string{"source"}),
		segmentsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_segments_completed_total",
			Help: "Segments completed partitioned by terminal reason.",
		}, []string{"source", "reason"}),
		segmentsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "catalog_segments_running",
			Help: "Segments currently being traversed.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_fetches_total",
			Help: "Successful fetches partitioned by source and status class.",
		}, []string{"source", "status_class"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_fetch_bytes_total",
			Help: "Bytes downloaded per source.",
		}, []string{"source"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_fetch_duration_seconds",
			Help:    "Fetch duration per source.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"source"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_index_failures_total",
			Help: "Indices skipped after a transport or storage failure.",
		}, []string{"source"}),
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_records_written_total",
			Help: "Records committed to the store.",
		}, []string{"source"}),
		tracker: newSegmentTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.segmentsStarted,
		s.segmentsCompleted,
		s.segmentsRunning,
		s.fetches,
		s.fetchBytes,
		s.fetchDuration,
		s.failures,
		s.written,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	source := evt.Source
	if source == "" {
		source = "unknown"
	}
	key := segmentKey{run: evt.RunID, source: source, segment: evt.Segment}
	switch evt.Stage {
	case progress.StageSegmentStart:
		s.segmentsStarted.WithLabelValues(source).Inc()
		if s.tracker.start(key) {
			s.segmentsRunning.Inc()
		}
	case progress.StageSegmentDone:
		s.segmentsCompleted.WithLabelValues(source, evt.Reason).Inc()
		if s.tracker.complete(key) {
			s.segmentsRunning.Dec()
		}
	case progress.StageFetched:
		statusClass := string(evt.StatusClass)
		if statusClass == "" {
			statusClass = string(progress.StatusOther)
		}
		s.fetches.WithLabelValues(source, statusClass).Inc()
		if evt.Bytes > 0 {
			s.fetchBytes.WithLabelValues(source).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(source).Observe(evt.Dur.Seconds())
		}
	case progress.StageFailed:
		s.failures.WithLabelValues(source).Inc()
	case progress.StageSaved:
		if evt.Written > 0 {
			s.written.WithLabelValues(source).Add(float64(evt.Written))
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type segmentKey struct {
	run     string
	source  string
	segment string
}

type segmentTracker struct {
	mu      sync.Mutex
	running map[segmentKey]struct{}
}

func newSegmentTracker() *segmentTracker {
	return &segmentTracker{running: make(map[segmentKey]struct{})}
}

func (t *segmentTracker) start(key segmentKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; ok {
		return false
	}
	t.running[key] = struct{}{}
	return true
}

func (t *segmentTracker) complete(key segmentKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[key]; !ok {
		return false
	}
	delete(t.running, key)
	return true
}
