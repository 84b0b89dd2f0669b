package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func testDataset() *Dataset {
	return &Dataset{
		Subjects: []Subject{
			{ID: "sbj1", Project: "prj1", Condition: "melanoma", Age: 61, Sex: "F", Treatment: "miraclib", Response: strPtr("yes")},
			{ID: "sbj2", Project: "prj1", Condition: "melanoma", Age: 55, Sex: "M", Treatment: "miraclib", Response: strPtr("no")},
		},
		Samples: []Sample{
			{ID: "s1", SubjectID: "sbj1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
			{ID: "s2", SubjectID: "sbj1", SampleType: "PBMC", TimeFromTreatmentStart: 7},
			{ID: "s3", SubjectID: "sbj2", SampleType: "PBMC", TimeFromTreatmentStart: 0},
		},
		CellCounts: []CellCount{
			{SampleID: "s1", Population: "b_cell", Count: 100},
			{SampleID: "s1", Population: "nk_cell", Count: 300},
			{SampleID: "s2", Population: "b_cell", Count: 150},
			{SampleID: "s2", Population: "nk_cell", Count: 250},
			{SampleID: "s3", Population: "b_cell", Count: 200},
			{SampleID: "s3", Population: "nk_cell", Count: 200},
		},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cytolab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenAppliesMigrations(t *testing.T) {
	s := openTestStore(t)

	subjects, samples, cellCounts, err := s.TableCounts(context.Background())
	require.NoError(t, err)
	assert.Zero(t, subjects)
	assert.Zero(t, samples)
	assert.Zero(t, cellCounts)
}

func TestReplaceIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ds := testDataset()

	require.NoError(t, s.Replace(ctx, ds))
	require.NoError(t, s.Replace(ctx, ds))

	subjects, samples, cellCounts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, subjects)
	assert.Equal(t, 3, samples)
	assert.Equal(t, 6, cellCounts)

	var response string
	row := s.DB().QueryRowContext(ctx, "SELECT response FROM subjects WHERE subject = ?", "sbj1")
	require.NoError(t, row.Scan(&response))
	assert.Equal(t, "yes", response)
}

func TestReplaceKeepsPriorStateOnFailure(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Replace(ctx, testDataset()))

	// Duplicate (sample, population) violates the UNIQUE constraint and
	// must roll the whole run back.
	bad := testDataset()
	bad.CellCounts = append(bad.CellCounts, CellCount{SampleID: "s1", Population: "b_cell", Count: 1})
	err := s.Replace(ctx, bad)
	require.Error(t, err)

	subjects, samples, cellCounts, err := s.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, subjects)
	assert.Equal(t, 3, samples)
	assert.Equal(t, 6, cellCounts)
}

func TestReferentialIntegrity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, testDataset()))

	var orphanSamples int
	row := s.DB().QueryRowContext(ctx, `SELECT COUNT(1) FROM samples sa
		LEFT JOIN subjects sub ON sa.subject = sub.subject
		WHERE sub.subject IS NULL`)
	require.NoError(t, row.Scan(&orphanSamples))
	assert.Zero(t, orphanSamples)

	var orphanCounts int
	row = s.DB().QueryRowContext(ctx, `SELECT COUNT(1) FROM cell_counts cc
		LEFT JOIN samples sa ON cc.sample = sa.sample
		WHERE sa.sample IS NULL`)
	require.NoError(t, row.Scan(&orphanCounts))
	assert.Zero(t, orphanCounts)
}

func TestForeignKeysEnforced(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, testDataset()))

	_, err := s.DB().ExecContext(ctx, `INSERT INTO samples
		(sample, subject, sample_type, time_from_treatment_start)
		VALUES ('s99', 'no-such-subject', 'PBMC', 0)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREIGN KEY")

	_, err = s.DB().ExecContext(ctx,
		`INSERT INTO cell_counts (sample, population, count) VALUES ('no-such-sample', 'b_cell', 1)`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FOREIGN KEY")
}

func TestOpenReadOnlyMissingStore(t *testing.T) {
	_, err := OpenReadOnly(filepath.Join(t.TempDir(), "missing.db"))
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestOpenReadOnlyEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := OpenReadOnly(path)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestOpenReadOnlyRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cytolab.db")
	rw, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, rw.Replace(context.Background(), testDataset()))
	require.NoError(t, rw.Close())

	ro, err := OpenReadOnly(path)
	require.NoError(t, err)
	defer ro.Close()

	err = ro.Replace(context.Background(), testDataset())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")

	// The handle itself must refuse writes, not just the Replace guard.
	_, err = ro.DB().ExecContext(context.Background(), "DELETE FROM cell_counts")
	require.Error(t, err)

	_, err = ro.DB().ExecContext(context.Background(),
		`INSERT INTO subjects (subject, project, condition, age, sex, treatment, response)
		 VALUES ('sbj9', 'prj1', 'melanoma', 40, 'F', 'miraclib', NULL)`)
	require.Error(t, err)

	var cellCounts int
	row := ro.DB().QueryRowContext(context.Background(), "SELECT COUNT(1) FROM cell_counts")
	require.NoError(t, row.Scan(&cellCounts))
	assert.Equal(t, 6, cellCounts)
}
