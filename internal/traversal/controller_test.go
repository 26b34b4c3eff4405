package traversal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/tcg-catalog-crawler/internal/progress"
)

// TestControllerStopsOnLoop verifies a page that repeats page 1 ends the segment unpersisted.
func TestControllerStopsOnLoop(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.page(1, products(1, 3)...)
	site.page(2, products(4, 3)...)
	site.page(3, products(7, 3)...)
	site.page(4, products(1, 3)...)
	site.page(5, products(10, 3)...)
	store := &fakePersister{}

	ctrl := newTestController(t, site, store, Rules{DetectLoop: true}, nil)
	res := ctrl.Run(context.Background(), segment("S1", 14), site.address)

	require.Equal(t, ReasonLoop, res.Reason)
	require.True(t, res.Reason.Exhausted())
	require.Equal(t, 4, res.LastIndex)
	require.Equal(t, 4, res.Fetches)
	require.Equal(t, 3, res.PagesAccepted)
	require.Equal(t, 9, res.Written)
	require.Equal(t, []int{1, 2, 3}, store.Indices())
	require.NoError(t, res.Err)
}

// TestControllerStopsOnEmptyPage verifies an empty page ends the traversal regardless of the ceiling.
func TestControllerStopsOnEmptyPage(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.page(1, products(1, 2)...)
	site.page(2)
	store := &fakePersister{}

	ctrl := newTestController(t, site, store, Rules{DetectLoop: true}, nil)
	res := ctrl.Run(context.Background(), segment("S1", 14), site.address)

	require.Equal(t, ReasonEmpty, res.Reason)
	require.Equal(t, 2, res.LastIndex)
	require.Equal(t, 2, res.Fetches)
	require.Equal(t, []int{1}, store.Indices())
}

// TestControllerMaxPages verifies the ceiling fires after exactly max_pages fetches.
func TestControllerMaxPages(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	for i := 1; i <= 8; i++ {
		site.page(i, products(i*10, 2)...)
	}
	store := &fakePersister{}

	ctrl := newTestController(t, site, store, Rules{DetectLoop: true}, nil)
	res := ctrl.Run(context.Background(), segment("S1", 5), site.address)

	require.Equal(t, ReasonMaxPages, res.Reason)
	require.False(t, res.Reason.Exhausted())
	require.Equal(t, 5, res.Fetches)
	require.Equal(t, 5, res.LastIndex)
	require.Equal(t, []int{1, 2, 3, 4, 5}, store.Indices())
	require.Equal(t, 5, site.Calls())
}

// TestControllerLeavesTerminalLinesToSinks verifies the controller reports stop
// conditions only as progress events, so a log sink writes the single line.
func TestControllerLeavesTerminalLinesToSinks(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.page(1, products(1, 2)...)
	site.fail(2, &catalog.TransportError{Address: "page-2", StatusCode: 503, Err: errors.New("unavailable")})
	site.page(3, products(1, 2)...)
	rec := &recordingEmitter{}
	core, logs := observer.New(zapcore.InfoLevel)

	ctrl, err := NewController(Deps[catalog.Product]{
		Fetcher:   site,
		Extractor: catalog.ExtractorFunc[catalog.Product](site.extract),
		Persister: &fakePersister{},
		Clock:     fixedClock{},
		Progress:  rec,
		Logger:    zap.New(core),
		RunID:     "run-test",
	}, Rules{DetectLoop: true})
	require.NoError(t, err)

	res := ctrl.Run(context.Background(), segment("S1", 14), site.address)
	require.Equal(t, ReasonLoop, res.Reason)
	require.Zero(t, logs.Len())

	last := rec.events[len(rec.events)-1]
	require.Equal(t, progress.StageSegmentDone, last.Stage)
	require.Equal(t, string(ReasonLoop), last.Reason)
}

// TestControllerSkipsFailedFetch verifies one dead index does not stop the rest of the segment.
func TestControllerSkipsFailedFetch(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	for i := 1; i <= 10; i++ {
		site.page(i, products(i*10, 1)...)
	}
	site.fail(3, &catalog.TransportError{Address: "page-3", StatusCode: 503, Err: errors.New("service unavailable")})
	store := &fakePersister{}

	ctrl := newTestController(t, site, store, Rules{DetectLoop: true}, nil)
	res := ctrl.Run(context.Background(), segment("S1", 10), site.address)

	require.Equal(t, ReasonMaxPages, res.Reason)
	require.Equal(t, 10, res.Fetches)
	require.Equal(t, []int{1, 2, 4, 5, 6, 7, 8, 9, 10}, store.Indices())
	require.Len(t, res.Failures, 1)
	require.Equal(t, 3, res.Failures[0].Index)
	require.Equal(t, "page-3", res.Failures[0].Address)
	var transportErr *catalog.TransportError
	require.ErrorAs(t, res.Failures[0].Err, &transportErr)
}

// TestControllerSkipsFailedBatch verifies a storage failure is treated like a failed fetch.
func TestControllerSkipsFailedBatch(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.page(1, products(1, 2)...)
	site.page(2, products(3, 2)...)
	site.page(3, products(5, 2)...)
	site.page(4)
	store := &fakePersister{failAt: map[int]error{2: errors.New("database is locked")}}

	ctrl := newTestController(t, site, store, Rules{DetectLoop: true}, nil)
	res := ctrl.Run(context.Background(), segment("S1", 14), site.address)

	require.Equal(t, ReasonEmpty, res.Reason)
	require.Equal(t, []int{1, 3}, store.Indices())
	require.Equal(t, 4, res.Written)
	require.Len(t, res.Failures, 1)
	var storageErr *catalog.StorageError
	require.ErrorAs(t, res.Failures[0].Err, &storageErr)
	require.Equal(t, "S1", storageErr.Segment)
	require.Equal(t, 2, storageErr.Index)
}

// TestControllerBaselineOnlyFromFirstIndex ensures a failed page 1 disables loop detection for the run.
func TestControllerBaselineOnlyFromFirstIndex(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.fail(1, &catalog.TransportError{Address: "page-1", Err: errors.New("timeout")})
	site.page(2, products(1, 2)...)
	site.page(3, products(1, 2)...)
	store := &fakePersister{}

	ctrl := newTestController(t, site, store, Rules{DetectLoop: true}, nil)
	res := ctrl.Run(context.Background(), segment("S1", 3), site.address)

	require.Equal(t, ReasonMaxPages, res.Reason)
	require.Equal(t, []int{2, 3}, store.Indices())
}

// TestControllerLoopDetectionDisabled covers enumerations where repeats are not a stop signal.
func TestControllerLoopDetectionDisabled(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	for i := 1; i <= 3; i++ {
		site.page(i, products(1, 1)...)
	}
	store := &fakePersister{}

	ctrl := newTestController(t, site, store, Rules{}, nil)
	res := ctrl.Run(context.Background(), segment("S1", 3), site.address)

	require.Equal(t, ReasonMaxPages, res.Reason)
	require.Equal(t, []int{1, 2, 3}, store.Indices())
}

// TestControllerConfigurationErrors verifies setup failures stop the segment before any fetch.
func TestControllerConfigurationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		seg     catalog.Segment
		address AddressFunc
	}{
		{name: "zero ceiling", seg: segment("S1", 0), address: newFakeSite().address},
		{name: "negative ceiling", seg: segment("S1", -2), address: newFakeSite().address},
		{name: "no resolver", seg: segment("S1", 3), address: nil},
		{
			name: "malformed base",
			seg:  segment("S1", 3),
			address: func(int) (catalog.Address, error) {
				return catalog.Address{}, errors.New("missing scheme")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			site := newFakeSite()
			ctrl := newTestController(t, site, &fakePersister{}, Rules{DetectLoop: true}, nil)
			res := ctrl.Run(context.Background(), tc.seg, tc.address)

			require.Equal(t, ReasonError, res.Reason)
			require.Zero(t, res.Fetches)
			var cfgErr *catalog.ConfigurationError
			require.ErrorAs(t, res.Err, &cfgErr)
			require.Equal(t, "S1", cfgErr.Segment)
		})
	}
}

// TestControllerHonorsCancellation verifies a canceled context ends the run as an error.
func TestControllerHonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	site := newFakeSite()
	for i := 1; i <= 5; i++ {
		site.page(i, products(i*10, 1)...)
	}
	site.onFetch = func(index int) {
		if index == 2 {
			cancel()
		}
	}
	store := &fakePersister{}

	ctrl := newTestController(t, site, store, Rules{DetectLoop: true}, nil)
	res := ctrl.Run(ctx, segment("S1", 5), site.address)

	require.Equal(t, ReasonError, res.Reason)
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Equal(t, 2, res.Fetches)
}

// TestControllerBatchCarriesSegment verifies batches are tagged explicitly rather than via records.
func TestControllerBatchCarriesSegment(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.page(1, products(1, 2)...)
	site.page(2)
	store := &fakePersister{}

	ctrl := newTestController(t, site, store, Rules{DetectLoop: true}, nil)
	seg := segment("SV2a", 14)
	ctrl.Run(context.Background(), seg, site.address)

	batches := store.Batches()
	require.Len(t, batches, 1)
	require.Equal(t, "SV2a", batches[0].Segment)
	require.Equal(t, catalog.SourceCardrush, batches[0].Source)
	require.Equal(t, 1, batches[0].Index)
	require.Equal(t, fixedNow, batches[0].ObservedAt)
}

// TestControllerEmitsProgress verifies the per-index and terminal progress stages.
func TestControllerEmitsProgress(t *testing.T) {
	t.Parallel()

	site := newFakeSite()
	site.page(1, products(1, 2)...)
	site.fail(2, &catalog.TransportError{Address: "page-2", StatusCode: 500, Err: errors.New("boom")})
	site.page(3, products(1, 2)...)
	rec := &recordingEmitter{}

	ctrl := newTestController(t, site, &fakePersister{}, Rules{DetectLoop: true}, rec)
	ctrl.Run(context.Background(), segment("S1", 14), site.address)

	require.Equal(t, []progress.Stage{
		progress.StageSegmentStart,
		progress.StageFetched,
		progress.StageSaved,
		progress.StageFailed,
		progress.StageFetched,
		progress.StageSegmentDone,
	}, rec.Stages())
	last := rec.events[len(rec.events)-1]
	require.Equal(t, "loop", last.Reason)
	require.Equal(t, "run-test", last.RunID)
}

// TestNewControllerRequiresPorts checks constructor validation.
func TestNewControllerRequiresPorts(t *testing.T) {
	t.Parallel()

	_, err := NewController(Deps[catalog.Product]{}, Rules{})
	require.Error(t, err)
}

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type fixedClock struct{}

func (fixedClock) Now() time.Time { return fixedNow }

func newTestController(
	t *testing.T,
	site *fakeSite,
	store *fakePersister,
	rules Rules,
	emitter progress.Emitter,
) *Controller[catalog.Product] {
	t.Helper()
	ctrl, err := NewController(Deps[catalog.Product]{
		Fetcher:   site,
		Extractor: catalog.ExtractorFunc[catalog.Product](site.extract),
		Persister: store,
		Clock:     fixedClock{},
		Progress:  emitter,
		Logger:    zap.NewNop(),
		RunID:     "run-test",
	}, rules)
	require.NoError(t, err)
	return ctrl
}

func segment(id string, maxPages int) catalog.Segment {
	return catalog.Segment{
		Source:      catalog.SourceCardrush,
		ID:          id,
		BaseAddress: "https://shop.example/product-group/1",
		MaxPages:    maxPages,
	}
}

func products(start, n int) []catalog.Product {
	out := make([]catalog.Product, 0, n)
	for i := start; i < start+n; i++ {
		out = append(out, catalog.Product{
			ProductID: fmt.Sprint(i),
			URL:       fmt.Sprintf("https://shop.example/product/%d", i),
			Name:      fmt.Sprintf("Card %d", i),
			PriceText: "100円",
		})
	}
	return out
}

// fakeSite serves canned pages keyed by index. The page body is the address,
// which extract maps back to the canned records.
type fakeSite struct {
	mu      sync.Mutex
	pages   map[string][]catalog.Product
	errs    map[string]error
	calls   int
	onFetch func(index int)
	indexOf map[string]int
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:   map[string][]catalog.Product{},
		errs:    map[string]error{},
		indexOf: map[string]int{},
	}
}

func (s *fakeSite) url(index int) string { return fmt.Sprintf("page-%d", index) }

func (s *fakeSite) page(index int, records ...catalog.Product) {
	s.pages[s.url(index)] = records
	s.indexOf[s.url(index)] = index
}

func (s *fakeSite) fail(index int, err error) {
	s.errs[s.url(index)] = err
	s.indexOf[s.url(index)] = index
}

func (s *fakeSite) address(index int) (catalog.Address, error) {
	return catalog.Address{URL: s.url(index)}, nil
}

func (s *fakeSite) Fetch(_ context.Context, addr catalog.Address) (catalog.Page, error) {
	s.mu.Lock()
	s.calls++
	hook := s.onFetch
	s.mu.Unlock()
	if hook != nil {
		hook(s.indexOf[addr.URL])
	}
	if err, ok := s.errs[addr.URL]; ok {
		return catalog.Page{}, err
	}
	return catalog.Page{Address: addr, StatusCode: 200, Body: []byte(addr.URL)}, nil
}

func (s *fakeSite) extract(markup []byte, _ string) []catalog.Product {
	return s.pages[string(markup)]
}

func (s *fakeSite) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fakePersister struct {
	mu      sync.Mutex
	batches []catalog.Batch[catalog.Product]
	failAt  map[int]error
}

func (p *fakePersister) Persist(_ context.Context, batch catalog.Batch[catalog.Product]) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failAt[batch.Index]; ok {
		return 0, err
	}
	p.batches = append(p.batches, batch)
	return len(batch.Records), nil
}

func (p *fakePersister) Batches() []catalog.Batch[catalog.Product] {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]catalog.Batch[catalog.Product](nil), p.batches...)
}

func (p *fakePersister) Indices() []int {
	var out []int
	for _, b := range p.Batches() {
		out = append(out, b.Index)
	}
	return out
}

type recordingEmitter struct {
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	if evt.Validate() != nil {
		return
	}
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) Stages() []progress.Stage {
	out := make([]progress.Stage, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Stage)
	}
	return out
}
