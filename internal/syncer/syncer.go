package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/progress"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/source/cardrush"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/source/limitless"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/traversal"
)

var tracer = otel.Tracer("github.com/JakeFAU/tcg-catalog-crawler/internal/syncer")

// Options are the per-source defaults applied to segments that leave them
// unset.
type Options struct {
	CardrushPageSize  int
	CardrushMaxPages  int
	LimitlessBaseURL  string
	LimitlessMaxCards int
	// Topic receives the run summary when a Publisher is configured.
	Topic string
}

// Deps are the collaborators shared by every segment of a run.
type Deps struct {
	Fetcher   catalog.Fetcher
	Store     catalog.Store
	Publisher catalog.Publisher
	Progress  progress.Emitter
	Clock     catalog.Clock
	IDs       catalog.IDGenerator
	Logger    *zap.Logger
}

// Syncer runs segments sequentially against one store.
type Syncer struct {
	deps Deps
	opts Options
}

// New validates deps and fills option defaults.
func New(deps Deps, opts Options) (*Syncer, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("id generator is required")
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if opts.CardrushPageSize <= 0 {
		opts.CardrushPageSize = cardrush.DefaultPageSize
	}
	if opts.CardrushMaxPages <= 0 {
		opts.CardrushMaxPages = cardrush.DefaultMaxPages
	}
	if opts.LimitlessBaseURL == "" {
		opts.LimitlessBaseURL = limitless.DefaultBaseURL
	}
	if opts.LimitlessMaxCards <= 0 {
		opts.LimitlessMaxCards = limitless.DefaultMaxCards
	}
	return &Syncer{deps: deps, opts: opts}, nil
}

// Run plans the segment list and traverses each segment in order. The error
// is non-nil only when the run could not start or was canceled; individual
// segment failures are reported in the Summary.
func (s *Syncer) Run(ctx context.Context, configured []catalog.Segment, filter Filter) (Summary, error) {
	runID, err := s.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx, span := tracer.Start(ctx, "sync.run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer span.End()
	log := s.deps.Logger.With(zap.String("run_id", runID))
	summary := Summary{RunID: runID, StartedAt: s.deps.Clock.Now()}

	segments, err := Plan(ctx, s.deps.Store, configured, filter)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}
	if len(segments) == 0 {
		log.Warn("no segments to sync",
			zap.String("source", string(filter.Source)),
			zap.String("segment", filter.Segment),
		)
	}

	products, err := traversal.NewController(traversal.Deps[catalog.Product]{
		Fetcher:   s.deps.Fetcher,
		Extractor: catalog.ExtractorFunc[catalog.Product](cardrush.Extract),
		Persister: catalog.PersisterFunc[catalog.Product](s.deps.Store.PersistProducts),
		Clock:     s.deps.Clock,
		Progress:  s.deps.Progress,
		Logger:    log.Named("traversal"),
		RunID:     runID,
	}, traversal.Rules{DetectLoop: true})
	if err != nil {
		return summary, fmt.Errorf("build cardrush controller: %w", err)
	}
	cards, err := traversal.NewController(traversal.Deps[catalog.Card]{
		Fetcher:   s.deps.Fetcher,
		Extractor: catalog.ExtractorFunc[catalog.Card](limitless.Extract),
		Persister: catalog.PersisterFunc[catalog.Card](s.deps.Store.PersistCards),
		Clock:     s.deps.Clock,
		Progress:  s.deps.Progress,
		Logger:    log.Named("traversal"),
		RunID:     runID,
	}, traversal.Rules{DetectLoop: false})
	if err != nil {
		return summary, fmt.Errorf("build limitless controller: %w", err)
	}

	s.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Note: fmt.Sprintf("%d segments", len(segments))})
	log.Info("sync started", zap.Int("segments", len(segments)))

	var runErr error
	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			runErr = fmt.Errorf("sync canceled: %w", err)
			break
		}
		segCtx, segSpan := tracer.Start(ctx, "sync.segment", trace.WithAttributes(
			attribute.String("source", string(seg.Source)),
			attribute.String("segment", seg.ID),
		))
		var res traversal.Result
		switch seg.Source {
		case catalog.SourceCardrush:
			res = s.runCardrush(segCtx, products, seg)
		case catalog.SourceLimitless:
			res = s.runLimitless(segCtx, log, cards, seg)
		}
		segSpan.SetAttributes(
			attribute.String("stop_reason", string(res.Reason)),
			attribute.Int("written", res.Written),
		)
		if res.Err != nil {
			segSpan.SetStatus(codes.Error, res.Err.Error())
		}
		segSpan.End()
		summary.Segments = append(summary.Segments, summarize(res))
	}
	if runErr != nil {
		span.SetStatus(codes.Error, runErr.Error())
	}

	summary.FinishedAt = s.deps.Clock.Now()
	s.emit(progress.Event{
		RunID:   runID,
		Stage:   progress.StageRunDone,
		Written: summary.Written(),
		Dur:     summary.FinishedAt.Sub(summary.StartedAt),
	})
	log.Info("sync finished",
		zap.Int("segments", len(summary.Segments)),
		zap.Int("failed", summary.Failed()),
		zap.Int("written", summary.Written()),
	)
	s.publish(ctx, log, summary)
	return summary, runErr
}

func (s *Syncer) runCardrush(ctx context.Context, ctrl *traversal.Controller[catalog.Product], seg catalog.Segment) traversal.Result {
	if seg.MaxPages == 0 {
		seg.MaxPages = s.opts.CardrushMaxPages
	}
	resolve, err := cardrush.Addresser(seg, s.opts.CardrushPageSize)
	if err != nil {
		return ctrl.Run(ctx, seg, failingAddress(err))
	}
	return ctrl.Run(ctx, seg, resolve)
}

func (s *Syncer) runLimitless(ctx context.Context, log *zap.Logger, ctrl *traversal.Controller[catalog.Card], seg catalog.Segment) traversal.Result {
	resolve, err := limitless.Addresser(seg, s.opts.LimitlessBaseURL)
	if err != nil {
		if seg.MaxPages == 0 {
			seg.MaxPages = s.opts.LimitlessMaxCards
		}
		return ctrl.Run(ctx, seg, failingAddress(err))
	}
	if seg.MaxPages == 0 {
		seg.MaxPages = s.discoverSetSize(ctx, log, seg)
	}
	return ctrl.Run(ctx, seg, resolve)
}

// discoverSetSize reads the set overview and returns the highest card number
// it links to, falling back to the configured ceiling.
func (s *Syncer) discoverSetSize(ctx context.Context, log *zap.Logger, seg catalog.Segment) int {
	fallback := s.opts.LimitlessMaxCards
	lang, set, err := limitless.ParseSetPath(seg.BaseAddress)
	if err != nil {
		return fallback
	}
	raw, err := limitless.SetAddress(s.opts.LimitlessBaseURL, lang, set)
	if err != nil {
		return fallback
	}
	page, err := s.deps.Fetcher.Fetch(ctx, catalog.Address{URL: raw, Name: catalog.SafeFilename(lang + "_" + set + "_index")})
	if err != nil {
		log.Warn("set overview unavailable, using fallback ceiling",
			zap.String("segment", seg.ID),
			zap.String("address", raw),
			zap.Int("max_pages", fallback),
			zap.Error(err),
		)
		return fallback
	}
	size := limitless.SetSize(limitless.ExtractCardLinks(page.Body), lang, set)
	if size == 0 {
		log.Warn("set overview lists no cards, using fallback ceiling",
			zap.String("segment", seg.ID),
			zap.Int("max_pages", fallback),
		)
		return fallback
	}
	log.Info("set size discovered", zap.String("segment", seg.ID), zap.Int("max_pages", size))
	return size
}

func (s *Syncer) publish(ctx context.Context, log *zap.Logger, summary Summary) {
	if s.deps.Publisher == nil || s.opts.Topic == "" {
		return
	}
	id, err := s.deps.Publisher.Publish(context.WithoutCancel(ctx), s.opts.Topic, summary)
	if err != nil {
		log.Warn("publish run summary failed", zap.String("topic", s.opts.Topic), zap.Error(err))
		return
	}
	log.Debug("run summary published", zap.String("topic", s.opts.Topic), zap.String("message_id", id))
}

func (s *Syncer) emit(evt progress.Event) {
	evt.TS = s.deps.Clock.Now()
	s.deps.Progress.Emit(evt)
}

func failingAddress(err error) traversal.AddressFunc {
	return func(int) (catalog.Address, error) {
		return catalog.Address{}, err
	}
}
