package progress

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultSinkTimeout = 5 * time.Second

// Fanout delivers each event to every sink inline. A failing sink is logged and
// never blocks the remaining sinks or the caller's traversal.
type Fanout struct {
	sinks       []Sink
	sinkTimeout time.Duration
	logger      *zap.Logger
}

// NewFanout wires sinks behind a single Emitter. Nil sinks are ignored.
func NewFanout(logger *zap.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Fanout{sinks: kept, sinkTimeout: defaultSinkTimeout, logger: logger}
}

// Emit validates evt and hands it to every sink.
func (f *Fanout) Emit(evt Event) {
	if f == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = time.Now().UTC()
	}
	if err := evt.Validate(); err != nil {
		f.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	batch := []Event{evt}
	for _, sink := range f.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), f.sinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			f.logger.Warn("progress sink consume failed", zap.String("stage", string(evt.Stage)), zap.Error(err))
		}
		cancel()
	}
}

// Close closes every sink and reports the first failure.
func (f *Fanout) Close(ctx context.Context) error {
	if f == nil {
		return nil
	}
	var first error
	for _, sink := range f.sinks {
		if err := sink.Close(ctx); err != nil && first == nil {
			first = fmt.Errorf("close progress sink: %w", err)
		}
	}
	return first
}
