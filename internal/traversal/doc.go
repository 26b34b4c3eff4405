// Package traversal drives one segment through its index space.
//
// A Controller walks indices 1..MaxPages, fetching, extracting, and persisting
// one page per index, and stops for exactly one reason: the page was empty, the
// page repeated page 1 (the upstream wrapped its pagination), the ceiling was
// reached, or the segment could not be set up. A failed index is recorded and
// skipped; it never ends the segment.
package traversal
