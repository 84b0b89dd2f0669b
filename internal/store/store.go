package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cytolab/internal/store/migrations"

	_ "modernc.org/sqlite" // pure Go sqlite driver
)

// ErrNotInitialized indicates the normalized store has not been built yet.
// The analysis engine never builds the store itself; the loader must run
// first.
var ErrNotInitialized = errors.New("store not initialized: run the loader to ingest the cell-count CSV")

// Store wraps the SQLite database holding the normalized trial data.
type Store struct {
	sqlDB    *sql.DB
	path     string
	readOnly bool
}

// Open opens (creating if necessary) the store at path for writing and
// applies embedded schema migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	// modernc's driver takes pragmas as _pragma=name(value) pairs, applied
	// to every new connection.
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureForeignKeysEnabled(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, path: cleanPath}, nil
}

// OpenReadOnly opens an existing store for analysis. It fails with
// ErrNotInitialized when the database file is missing or the schema has not
// been created, so callers surface a clear "store not initialized" condition
// instead of building an empty store on the fly.
func OpenReadOnly(path string) (*Store, error) {
	cleanPath := filepath.Clean(path)
	if _, err := os.Stat(cleanPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotInitialized, cleanPath)
		}
		return nil, fmt.Errorf("stat store file: %w", err)
	}
	// query_only makes every connection refuse writes at the SQLite level,
	// so read-only is a property of the handle rather than a convention.
	dsn := cleanPath + "?_pragma=query_only(1)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ensureForeignKeysEnabled(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s := &Store{sqlDB: sqlDB, path: cleanPath, readOnly: true}
	ok, err := s.schemaPresent()
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if !ok {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotInitialized, cleanPath)
	}
	return s, nil
}

// ensureForeignKeysEnabled verifies the DSN pragma actually took effect.
func ensureForeignKeysEnabled(sqlDB *sql.DB) error {
	var enabled int
	if err := sqlDB.QueryRow("PRAGMA foreign_keys").Scan(&enabled); err != nil {
		return fmt.Errorf("check sqlite foreign key pragma: %w", err)
	}
	if enabled != 1 {
		return fmt.Errorf("sqlite foreign keys are disabled")
	}
	return nil
}

// schemaPresent reports whether all three normalized tables exist.
func (s *Store) schemaPresent() (bool, error) {
	var n int
	row := s.sqlDB.QueryRow(`SELECT COUNT(1) FROM sqlite_master
		WHERE type = 'table' AND name IN ('subjects', 'samples', 'cell_counts')`)
	if err := row.Scan(&n); err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return n == 3, nil
}

// DB exposes the underlying handle for the analysis engine's queries.
// Presentation code must not use this; all querying belongs to
// internal/analysis.
func (s *Store) DB() *sql.DB {
	return s.sqlDB
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Replace atomically swaps the store contents for the given dataset. The
// previous contents are deleted and the new rows inserted in a single
// transaction: on any failure the store keeps its prior state. Running the
// same ingestion twice therefore yields identical contents.
func (s *Store) Replace(ctx context.Context, ds *Dataset) (retErr error) {
	if s.readOnly {
		return fmt.Errorf("store is opened read-only")
	}
	if ds == nil {
		return fmt.Errorf("dataset is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	// Delete children before parents to satisfy foreign keys.
	for _, table := range []string{"cell_counts", "samples", "subjects"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	insertSubject, err := tx.PrepareContext(ctx, `INSERT INTO subjects
		(subject, project, condition, age, sex, treatment, response)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare subject insert: %w", err)
	}
	defer insertSubject.Close()
	for _, sub := range ds.Subjects {
		var response any
		if sub.Response != nil {
			response = *sub.Response
		}
		if _, err := insertSubject.ExecContext(ctx,
			sub.ID, sub.Project, sub.Condition, sub.Age, sub.Sex, sub.Treatment, response); err != nil {
			return fmt.Errorf("insert subject %s: %w", sub.ID, err)
		}
	}

	insertSample, err := tx.PrepareContext(ctx, `INSERT INTO samples
		(sample, subject, sample_type, time_from_treatment_start)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer insertSample.Close()
	for _, sa := range ds.Samples {
		if _, err := insertSample.ExecContext(ctx,
			sa.ID, sa.SubjectID, sa.SampleType, sa.TimeFromTreatmentStart); err != nil {
			return fmt.Errorf("insert sample %s: %w", sa.ID, err)
		}
	}

	insertCount, err := tx.PrepareContext(ctx, `INSERT INTO cell_counts
		(sample, population, count) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare cell count insert: %w", err)
	}
	defer insertCount.Close()
	for _, cc := range ds.CellCounts {
		if _, err := insertCount.ExecContext(ctx, cc.SampleID, cc.Population, cc.Count); err != nil {
			return fmt.Errorf("insert cell count (%s, %s): %w", cc.SampleID, cc.Population, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// TableCounts returns the row counts of the three normalized tables.
func (s *Store) TableCounts(ctx context.Context) (subjects, samples, cellCounts int, err error) {
	counts := []struct {
		table string
		dest  *int
	}{
		{"subjects", &subjects},
		{"samples", &samples},
		{"cell_counts", &cellCounts},
	}
	for _, c := range counts {
		row := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+c.table)
		if scanErr := row.Scan(c.dest); scanErr != nil {
			return 0, 0, 0, fmt.Errorf("count %s: %w", c.table, scanErr)
		}
	}
	return subjects, samples, cellCounts, nil
}
