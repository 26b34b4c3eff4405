// Package catalog defines the record types, ports, and error taxonomy shared by
// the catalog synchronization engine.
//
// The traversal controller only ever speaks to the interfaces declared here:
// a Fetcher turns an Address into raw markup, an Extractor turns markup into
// typed records, and a Persister writes an explicit Batch of records. Sources
// (CardRush listings, Limitless card pages) and stores (SQLite, Postgres) plug
// in behind those interfaces.
package catalog
