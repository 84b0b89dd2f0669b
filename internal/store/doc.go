// Package store persists the normalized clinical-trial data model in
// SQLite: subjects, samples and cell_counts form a star around samples,
// with referential constraints and indexes on the high-cardinality
// cell_counts table.
//
// Only the loader writes, through Replace, which swaps the full contents in
// one transaction so re-ingestion is idempotent and a failed run never
// leaves a partially populated store. The analysis engine opens the store
// read-only via OpenReadOnly.
package store
