package traversal

import (
	"time"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

// Reason is the terminal condition of a traversal.
type Reason string

// Terminal reasons. Empty and Loop mean the segment was exhausted; MaxPages
// means the ceiling fired first and may be mis-configured; Error means the
// segment could not run at all.
const (
	ReasonEmpty    Reason = "empty"
	ReasonLoop     Reason = "loop"
	ReasonMaxPages Reason = "max_pages"
	ReasonError    Reason = "error"
)

// Exhausted reports whether the segment was fully enumerated.
func (r Reason) Exhausted() bool {
	return r == ReasonEmpty || r == ReasonLoop
}

// IndexFailure records a skipped index.
type IndexFailure struct {
	Index   int
	Address string
	Err     error
}

// Result summarises one traversal.
type Result struct {
	Source  catalog.Source
	Segment string
	Reason  Reason
	// LastIndex is the index being processed when the traversal stopped. For
	// MaxPages it equals the ceiling.
	LastIndex     int
	Fetches       int
	PagesAccepted int
	Written       int
	Failures      []IndexFailure
	// Err is set only when Reason is ReasonError.
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time of the traversal.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
