// Package ingest implements the normalizer: it reads the flat cell-count
// CSV (one row per sample, subject metadata repeated, one column per cell
// population) and decomposes it into the normalized subject / sample /
// cell-count collections persisted by internal/store.
//
// The key move is the unpivot: every population column becomes one
// cell-count row keyed by (sample, population), so adding a new cell type
// to the source file requires no schema change.
//
// Ingestion is all-or-nothing. A malformed row, an inconsistent repeat of a
// subject's metadata or a duplicate sample id fails the run before anything
// is written.
package ingest
