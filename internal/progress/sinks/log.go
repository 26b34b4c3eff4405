package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/progress"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/traversal"
)

// LogSink turns progress events into the operator-facing progress lines:
// "fetched", "saved N items", and one line per terminal condition.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("source", evt.Source),
			zap.String("segment", evt.Segment),
		}
		switch evt.Stage {
		case progress.StageRunStart:
			s.logger.Info("sync run started", zap.String("run_id", evt.RunID), zap.String("note", evt.Note))
		case progress.StageRunDone:
			s.logger.Info("sync run finished", zap.String("run_id", evt.RunID), zap.Duration("dur", evt.Dur))
		case progress.StageSegmentStart:
			s.logger.Info("segment started", append(fields, zap.String("address", evt.URL))...)
		case progress.StageFetched:
			s.logger.Info("fetched", append(fields,
				zap.Int("index", evt.Index),
				zap.String("address", evt.URL),
				zap.Int64("bytes", evt.Bytes),
				zap.Duration("dur", evt.Dur),
			)...)
		case progress.StageSaved:
			s.logger.Info("saved items", append(fields,
				zap.Int("index", evt.Index),
				zap.Int("written", evt.Written),
			)...)
		case progress.StageFailed:
			s.logger.Warn("index failed, continuing", append(fields,
				zap.Int("index", evt.Index),
				zap.String("address", evt.URL),
				zap.String("error", evt.Note),
			)...)
		case progress.StageSegmentDone:
			level, msg := stopMessage(traversal.Reason(evt.Reason))
			s.logger.Log(level, msg, append(fields,
				zap.Int("index", evt.Index),
				zap.Int("written", evt.Written),
				zap.String("reason", evt.Reason),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)...)
		}
	}
	return nil
}

// stopMessage is the single log line for a segment's terminal condition. A
// ceiling hit means the segment may be under-enumerated, so it warns.
func stopMessage(reason traversal.Reason) (zapcore.Level, string) {
	switch reason {
	case traversal.ReasonEmpty:
		return zapcore.InfoLevel, "empty page, stopping"
	case traversal.ReasonLoop:
		return zapcore.InfoLevel, "loop detected, stopping"
	case traversal.ReasonMaxPages:
		return zapcore.WarnLevel, "max pages reached before the segment was exhausted"
	default:
		return zapcore.ErrorLevel, "segment aborted"
	}
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
