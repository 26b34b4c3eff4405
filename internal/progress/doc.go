// Package progress carries per-index and per-segment milestones from the
// traversal controller to pluggable sinks (structured logs, Prometheus).
// Delivery is synchronous: a sync run is single-threaded, so events are fanned
// out inline and reach every sink in the order they were emitted.
package progress
