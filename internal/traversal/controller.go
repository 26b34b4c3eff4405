package traversal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/progress"
)

// AddressFunc resolves the fetch target for a 1-based index.
type AddressFunc func(index int) (catalog.Address, error)

// Rules selects the stop conditions that apply to a source. An empty page and
// the ceiling always stop a traversal.
type Rules struct {
	// DetectLoop stops when a later page fingerprints the same as page 1. It is
	// meaningful for paginated listings and off for fixed-size enumerations,
	// where every index is a different entity by construction.
	DetectLoop bool
}

// Deps are the collaborators a Controller needs.
type Deps[R catalog.Record] struct {
	Fetcher   catalog.Fetcher
	Extractor catalog.Extractor[R]
	Persister catalog.Persister[R]
	Clock     catalog.Clock
	Progress  progress.Emitter
	Logger    *zap.Logger
	// RunID tags progress events.
	RunID string
}

// Controller runs the fetch, extract, fingerprint, persist loop for a segment.
// A Controller holds no per-segment state and may be reused sequentially.
type Controller[R catalog.Record] struct {
	fetcher   catalog.Fetcher
	extractor catalog.Extractor[R]
	persister catalog.Persister[R]
	clock     catalog.Clock
	progress  progress.Emitter
	logger    *zap.Logger
	rules     Rules
	runID     string
}

// NewController validates deps and builds a Controller.
func NewController[R catalog.Record](deps Deps[R], rules Rules) (*Controller[R], error) {
	if deps.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if deps.Extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if deps.Persister == nil {
		return nil, errors.New("persister is required")
	}
	if deps.Clock == nil {
		deps.Clock = utcClock{}
	}
	if deps.Progress == nil {
		deps.Progress = progress.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Controller[R]{
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		persister: deps.Persister,
		clock:     deps.Clock,
		progress:  deps.Progress,
		logger:    deps.Logger,
		rules:     rules,
		runID:     deps.RunID,
	}, nil
}

// Run traverses seg, resolving each index through address. It always returns
// a Result; setup problems and cancellation surface as ReasonError with Err set.
func (c *Controller[R]) Run(ctx context.Context, seg catalog.Segment, address AddressFunc) Result {
	res := Result{Source: seg.Source, Segment: seg.ID, StartedAt: c.clock.Now()}
	log := c.logger.With(zap.String("source", string(seg.Source)), zap.String("segment", seg.ID))
	c.emit(progress.Event{Stage: progress.StageSegmentStart, Source: string(seg.Source), Segment: seg.ID, URL: seg.BaseAddress})

	switch {
	case seg.MaxPages <= 0:
		return c.finish(res, ReasonError, &catalog.ConfigurationError{
			Segment: seg.ID,
			Reason:  fmt.Sprintf("max pages must be positive, got %d", seg.MaxPages),
		})
	case address == nil:
		return c.finish(res, ReasonError, &catalog.ConfigurationError{Segment: seg.ID, Reason: "no address resolver"})
	}

	var (
		baseline    Signature
		hasBaseline bool
	)
	for index := 1; index <= seg.MaxPages; index++ {
		res.LastIndex = index
		if err := ctx.Err(); err != nil {
			return c.finish(res, ReasonError, fmt.Errorf("traversal canceled: %w", err))
		}

		addr, err := address(index)
		if err != nil {
			return c.finish(res, ReasonError, &catalog.ConfigurationError{
				Segment: seg.ID,
				Reason:  fmt.Sprintf("resolve address for index %d", index),
				Err:     err,
			})
		}

		res.Fetches++
		page, err := c.fetcher.Fetch(ctx, addr)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return c.finish(res, ReasonError, fmt.Errorf("traversal canceled: %w", ctxErr))
			}
			c.skip(log, &res, index, addr.URL, err)
			continue
		}
		c.emit(progress.Event{
			Stage:       progress.StageFetched,
			Source:      string(seg.Source),
			Segment:     seg.ID,
			Index:       index,
			URL:         addr.URL,
			Bytes:       int64(len(page.Body)),
			StatusClass: progress.ClassifyStatus(page.StatusCode),
			Dur:         page.Duration,
		})

		records := c.extractor.Extract(page.Body, addr.URL)
		sig, ok := Fingerprint(records)
		if !ok {
			return c.finish(res, ReasonEmpty, nil)
		}
		if index == 1 {
			baseline, hasBaseline = sig, true
		} else if c.rules.DetectLoop && hasBaseline && sig == baseline {
			log.Debug("page repeats page 1",
				zap.Int("index", index),
				zap.String("entity_id", sig.EntityID),
				zap.String("address", addr.URL),
			)
			return c.finish(res, ReasonLoop, nil)
		}

		batch := catalog.Batch[R]{
			Source:     seg.Source,
			Segment:    seg.ID,
			Index:      index,
			ObservedAt: c.clock.Now(),
			Records:    records,
		}
		written, err := c.persister.Persist(ctx, batch)
		if err != nil {
			var storageErr *catalog.StorageError
			if !errors.As(err, &storageErr) {
				err = &catalog.StorageError{Segment: seg.ID, Index: index, Err: err}
			}
			c.skip(log, &res, index, addr.URL, err)
			continue
		}
		res.PagesAccepted++
		res.Written += written
		c.emit(progress.Event{
			Stage:   progress.StageSaved,
			Source:  string(seg.Source),
			Segment: seg.ID,
			Index:   index,
			URL:     addr.URL,
			Written: written,
		})
	}
	return c.finish(res, ReasonMaxPages, nil)
}

func (c *Controller[R]) skip(log *zap.Logger, res *Result, index int, address string, err error) {
	res.Failures = append(res.Failures, IndexFailure{Index: index, Address: address, Err: err})
	log.Debug("skipping index",
		zap.Int("index", index),
		zap.String("address", address),
		zap.Error(err),
	)
	c.emit(progress.Event{
		Stage:   progress.StageFailed,
		Source:  string(res.Source),
		Segment: res.Segment,
		Index:   index,
		URL:     address,
		Note:    err.Error(),
	})
}

func (c *Controller[R]) finish(res Result, reason Reason, err error) Result {
	res.Reason = reason
	res.Err = err
	res.FinishedAt = c.clock.Now()

	// The progress log sink writes the terminal line; the controller only
	// reports the event.
	note := ""
	if err != nil {
		note = err.Error()
	}
	c.emit(progress.Event{
		Stage:   progress.StageSegmentDone,
		Source:  string(res.Source),
		Segment: res.Segment,
		Index:   res.LastIndex,
		Written: res.Written,
		Reason:  string(reason),
		Dur:     res.Duration(),
		Note:    note,
	})
	return res
}

func (c *Controller[R]) emit(evt progress.Event) {
	evt.RunID = c.runID
	evt.TS = c.clock.Now()
	c.progress.Emit(evt)
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }
