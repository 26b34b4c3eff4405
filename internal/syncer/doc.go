// Package syncer drives catalog synchronization across every configured
// segment: it plans the segment list, runs one traversal per segment in
// order, and reports a per-segment summary. A failing segment never stops the
// run.
package syncer
