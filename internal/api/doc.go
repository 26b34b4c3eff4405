// Package api hosts the HTTP server, middleware, and handlers for operator
// access. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/sync to start a run; at most one run is in flight.
//   - GET /v1/sync for the running flag and the last run's summary.
//   - GET and PUT /v1/segments for the segment registry.
package api
