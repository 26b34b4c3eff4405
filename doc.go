// Package main hosts the catalogsync entrypoint.
//
// Architecture overview:
//   - Segments: each run plans the CardRush product groups and Limitless sets named in the config file plus those
//     registered in the series_urls table. Config entries override registry rows with the same source and id.
//   - Traversal: one generic controller walks a segment index by index. It fetches a page through the Colly fetch
//     port, extracts records with goquery, fingerprints the ordered entity ids, and persists the batch. It stops on
//     an empty page, on a page identical to the one before it (CardRush only, where out-of-range pages repeat), on
//     the configured ceiling, or on a fatal store or configuration error. A failed fetch skips that index and moves on.
//   - Persistence: SQLite (modernc, WAL) or Postgres (pgx) upserts are idempotent. CardRush prices land in a per-day
//     history table keyed by UTC date, and Limitless card metadata never overwrites a known value with NULL.
//   - Plumbing: Viper loads config from file and CATALOG_* env vars, zap logs every segment transition, progress
//     events feed Prometheus counters, raw pages can be archived to disk or GCS, and a run summary is optionally
//     published to Pub/Sub.
//
// Quick checklist:
//   - Create tables: catalogsync initdb --config config.yaml
//   - Register work: catalogsync segments add --group 267 (or list segments in the config file).
//   - Run once: catalogsync sync [--source cardrush] [--segment 267]
//   - Run as a service: catalogsync serve, then POST /v1/sync. The server listens on PORT when set and drains
//     in-flight runs on SIGTERM.
package main
