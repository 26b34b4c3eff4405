package catalog

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves raw markup for an address. Failures are reported as
// *TransportError.
type Fetcher interface {
	Fetch(ctx context.Context, addr Address) (Page, error)
}

// Extractor turns raw markup into records in document order. It performs no
// I/O and never fails; malformed markup yields records with empty fields or no
// records at all.
type Extractor[R Record] interface {
	Extract(markup []byte, address string) []R
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc[R Record] func(markup []byte, address string) []R

// Extract implements Extractor.
func (f ExtractorFunc[R]) Extract(markup []byte, address string) []R {
	return f(markup, address)
}

// Persister writes one batch transactionally and reports how many records were
// written. Skipped (invalid) records reduce the count without failing the batch.
type Persister[R Record] interface {
	Persist(ctx context.Context, batch Batch[R]) (int, error)
}

// PersisterFunc adapts a function to Persister.
type PersisterFunc[R Record] func(ctx context.Context, batch Batch[R]) (int, error)

// Persist implements Persister.
func (f PersisterFunc[R]) Persist(ctx context.Context, batch Batch[R]) (int, error) {
	return f(ctx, batch)
}

// ProductStore persists CardRush products and their price history.
type ProductStore interface {
	PersistProducts(ctx context.Context, batch Batch[Product]) (int, error)
}

// CardStore persists Limitless card metadata.
type CardStore interface {
	PersistCards(ctx context.Context, batch Batch[Card]) (int, error)
}

// SegmentStore is the registry the multi-segment driver reads its work from.
type SegmentStore interface {
	LoadSegments(ctx context.Context, source Source) ([]Segment, error)
	UpsertSegment(ctx context.Context, seg Segment) error
}

// Store is implemented by every relational backend.
type Store interface {
	ProductStore
	CardStore
	SegmentStore
	EnsureSchema(ctx context.Context) error
	Close() error
}

// Archiver keeps a raw copy of fetched payloads. It is best effort: failures
// are logged by the implementation and never reach the caller.
type Archiver interface {
	Archive(ctx context.Context, name string, payload []byte)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes run summaries to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for content-addressed names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
