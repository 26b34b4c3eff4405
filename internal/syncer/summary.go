package syncer

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/traversal"
)

// SegmentSummary is the outcome of one segment, shaped for logs, the CLI
// table, and the published notification.
type SegmentSummary struct {
	Source        string        `json:"source"`
	Segment       string        `json:"segment"`
	Reason        string        `json:"reason"`
	Exhausted     bool          `json:"exhausted"`
	LastIndex     int           `json:"last_index"`
	Fetches       int           `json:"fetches"`
	PagesAccepted int           `json:"pages_accepted"`
	Written       int           `json:"written"`
	Failures      int           `json:"failures"`
	Error         string        `json:"error,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
}

// Summary is the outcome of one run.
type Summary struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Segments   []SegmentSummary `json:"segments"`
}

func summarize(res traversal.Result) SegmentSummary {
	out := SegmentSummary{
		Source:        string(res.Source),
		Segment:       res.Segment,
		Reason:        string(res.Reason),
		Exhausted:     res.Reason.Exhausted(),
		LastIndex:     res.LastIndex,
		Fetches:       res.Fetches,
		PagesAccepted: res.PagesAccepted,
		Written:       res.Written,
		Failures:      len(res.Failures),
		Duration:      res.Duration(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

// Written totals records committed across segments.
func (s Summary) Written() int {
	total := 0
	for _, seg := range s.Segments {
		total += seg.Written
	}
	return total
}

// Failed counts segments that ended in error.
func (s Summary) Failed() int {
	n := 0
	for _, seg := range s.Segments {
		if seg.Reason == string(traversal.ReasonError) {
			n++
		}
	}
	return n
}

// WriteTable prints one aligned row per segment.
func (s Summary) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSEGMENT\tREASON\tLAST\tFETCHES\tWRITTEN\tFAILURES\tDURATION")
	for _, seg := range s.Segments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			seg.Source, seg.Segment, seg.Reason, seg.LastIndex, seg.Fetches, seg.Written, seg.Failures,
			seg.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(tw, "TOTAL\t%d segments\t\t\t\t%d\t\t%s\n",
		len(s.Segments), s.Written(), s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
