package analysis

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cytolab/internal/store"
)

func strPtr(s string) *string { return &s }

// fiveCounts spreads a 100-cell sample across the five canonical
// populations so percentages are exact.
func fiveCounts(sample string, b, cd8, cd4, nk, mono int) []store.CellCount {
	return []store.CellCount{
		{SampleID: sample, Population: "b_cell", Count: b},
		{SampleID: sample, Population: "cd8_t_cell", Count: cd8},
		{SampleID: sample, Population: "cd4_t_cell", Count: cd4},
		{SampleID: sample, Population: "nk_cell", Count: nk},
		{SampleID: sample, Population: "monocyte", Count: mono},
	}
}

// scenarioDataset is the canonical example: 2 subjects (one responder, one
// non-responder), 3 samples each, 5 populations, totals of 100 per sample.
func scenarioDataset() *store.Dataset {
	ds := &store.Dataset{
		Subjects: []store.Subject{
			{ID: "sbj1", Project: "prj1", Condition: "melanoma", Age: 61, Sex: "F", Treatment: "miraclib", Response: strPtr("yes")},
			{ID: "sbj2", Project: "prj1", Condition: "melanoma", Age: 55, Sex: "M", Treatment: "miraclib", Response: strPtr("no")},
		},
		Samples: []store.Sample{
			{ID: "s1", SubjectID: "sbj1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
			{ID: "s2", SubjectID: "sbj1", SampleType: "PBMC", TimeFromTreatmentStart: 7},
			{ID: "s3", SubjectID: "sbj1", SampleType: "PBMC", TimeFromTreatmentStart: 14},
			{ID: "s4", SubjectID: "sbj2", SampleType: "PBMC", TimeFromTreatmentStart: 0},
			{ID: "s5", SubjectID: "sbj2", SampleType: "PBMC", TimeFromTreatmentStart: 7},
			{ID: "s6", SubjectID: "sbj2", SampleType: "PBMC", TimeFromTreatmentStart: 14},
		},
	}
	// Responder b_cell percentages 40/42/44, non-responder 10/12/14.
	ds.CellCounts = append(ds.CellCounts, fiveCounts("s1", 40, 20, 20, 10, 10)...)
	ds.CellCounts = append(ds.CellCounts, fiveCounts("s2", 42, 20, 18, 10, 10)...)
	ds.CellCounts = append(ds.CellCounts, fiveCounts("s3", 44, 16, 20, 10, 10)...)
	ds.CellCounts = append(ds.CellCounts, fiveCounts("s4", 10, 30, 30, 15, 15)...)
	ds.CellCounts = append(ds.CellCounts, fiveCounts("s5", 12, 28, 30, 15, 15)...)
	ds.CellCounts = append(ds.CellCounts, fiveCounts("s6", 14, 26, 30, 15, 15)...)
	return ds
}

// extendedDataset adds a healthy subject without response classification and
// a lone tumor sample, to exercise exclusion and insufficient-data paths.
func extendedDataset() *store.Dataset {
	ds := scenarioDataset()
	ds.Subjects = append(ds.Subjects,
		store.Subject{ID: "sbj3", Project: "prj2", Condition: "healthy", Age: 40, Sex: "F", Treatment: "none"})
	ds.Samples = append(ds.Samples,
		store.Sample{ID: "s7", SubjectID: "sbj1", SampleType: "tumor", TimeFromTreatmentStart: 0},
		store.Sample{ID: "s8", SubjectID: "sbj3", SampleType: "PBMC", TimeFromTreatmentStart: 0},
	)
	ds.CellCounts = append(ds.CellCounts, fiveCounts("s7", 30, 20, 20, 15, 15)...)
	ds.CellCounts = append(ds.CellCounts, fiveCounts("s8", 20, 20, 20, 20, 20)...)
	return ds
}

func seedEngine(t *testing.T, ds *store.Dataset) *Engine {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "cytolab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Replace(context.Background(), ds))
	return New(st, nil)
}

func TestOverviewScenario(t *testing.T) {
	engine := seedEngine(t, scenarioDataset())

	result, err := engine.Overview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalSubjects)
	assert.Equal(t, 6, result.TotalSamples)
	assert.Equal(t, 30, result.TotalObservations)

	// Internal consistency: category counts sum to the totals.
	sumCounts := func(table Table) int {
		total := 0
		for _, row := range table.Rows {
			total += row[1].(int)
		}
		return total
	}
	assert.Equal(t, result.TotalSubjects, sumCounts(result.SubjectsByProject))
	assert.Equal(t, result.TotalSubjects, sumCounts(result.SubjectsByCondition))
	assert.Equal(t, result.TotalSubjects, sumCounts(result.SubjectsByTreatment))
	assert.Equal(t, result.TotalSubjects, sumCounts(result.SubjectsByResponse))
	assert.Equal(t, result.TotalSamples, sumCounts(result.SamplesByType))
	assert.Equal(t, result.TotalSamples, sumCounts(result.SamplesBySubject))

	assert.Equal(t, []any{"prj1", 2}, result.SubjectsByProject.Rows[0])
}

func TestOverviewNullResponseCategory(t *testing.T) {
	engine := seedEngine(t, extendedDataset())

	result, err := engine.Overview(context.Background())
	require.NoError(t, err)

	categories := map[string]int{}
	for _, row := range result.SubjectsByResponse.Rows {
		categories[row[0].(string)] = row[1].(int)
	}
	assert.Equal(t, map[string]int{"yes": 1, "no": 1, "unknown": 1}, categories)
}

func TestSampleFrequencies(t *testing.T) {
	engine := seedEngine(t, scenarioDataset())

	table, err := engine.SampleFrequencies(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"sample", "total_count", "population", "count", "percentage"}, table.Columns)
	// 6 samples x 5 populations.
	require.Equal(t, 30, table.Len())

	// Rows are ordered by sample then population; s1 b_cell is 40/100.
	first := table.Rows[0]
	assert.Equal(t, "s1", first[0])
	assert.Equal(t, 100, first[1])
	assert.Equal(t, "b_cell", first[2])
	assert.Equal(t, 40, first[3])
	assert.Equal(t, 40.0, first[4])

	// Conservation: percentages within each sample sum to 100.
	sums := map[string]float64{}
	for _, row := range table.Rows {
		sums[row[0].(string)] += row[4].(float64)
	}
	for sample, sum := range sums {
		assert.InDelta(t, 100.0, sum, 1e-9, "sample %s", sample)
	}
}

func TestStatisticalAnalysis(t *testing.T) {
	engine := seedEngine(t, extendedDataset())

	result, err := engine.StatisticalAnalysis(context.Background(), StatisticalOptions{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTreatment, result.Treatment)

	// 5 populations x 2 sample types (PBMC with both groups, tumor with a
	// single responder sample).
	require.Equal(t, 10, result.Results.Len())

	byKey := map[string][]any{}
	for _, row := range result.Results.Rows {
		byKey[row[0].(string)+"/"+row[1].(string)] = row
	}

	pbmc := byKey["b_cell/PBMC"]
	require.NotNil(t, pbmc)
	assert.Equal(t, 3, pbmc[2]) // responders
	assert.Equal(t, 3, pbmc[3]) // non-responders
	assert.Equal(t, 42.0, pbmc[4])
	assert.Equal(t, 12.0, pbmc[5])
	assert.Equal(t, StatusOK, pbmc[9])
	p, ok := pbmc[7].(float64)
	require.True(t, ok)
	assert.Greater(t, p, 0.0)
	assert.LessOrEqual(t, p, 1.0)

	// The lone tumor sample cannot support a test but is still reported.
	tumor := byKey["b_cell/tumor"]
	require.NotNil(t, tumor)
	assert.Equal(t, 1, tumor[2])
	assert.Equal(t, 0, tumor[3])
	assert.Nil(t, tumor[6])
	assert.Nil(t, tumor[7])
	assert.Equal(t, StatusInsufficientData, tumor[9])

	// Chart artifact: a PNG with content.
	require.NotNil(t, result.Chart)
	assert.Equal(t, "png", result.Chart.Format)
	require.Greater(t, len(result.Chart.Data), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, result.Chart.Data[:4])
}

func TestStatisticalAnalysisUnknownTreatment(t *testing.T) {
	engine := seedEngine(t, extendedDataset())

	result, err := engine.StatisticalAnalysis(context.Background(), StatisticalOptions{Treatment: "phauximab"})
	require.NoError(t, err)
	assert.Zero(t, result.Results.Len())
	assert.Nil(t, result.Chart)
}

func TestSubsetAnalysisEmptyFiltersMatchesOverview(t *testing.T) {
	engine := seedEngine(t, extendedDataset())
	ctx := context.Background()

	overview, err := engine.Overview(ctx)
	require.NoError(t, err)

	subset, err := engine.SubsetAnalysis(ctx, Filters{})
	require.NoError(t, err)

	assert.Equal(t, overview.TotalSubjects, subset.SubjectCount)
	assert.Equal(t, overview.TotalSamples, subset.SampleCount)
}

func TestSubsetAnalysisComposedFilters(t *testing.T) {
	engine := seedEngine(t, extendedDataset())
	ctx := context.Background()

	timepoint := 0
	subset, err := engine.SubsetAnalysis(ctx, Filters{
		Condition:              "melanoma",
		Treatment:              "miraclib",
		SampleType:             "PBMC",
		TimeFromTreatmentStart: &timepoint,
	})
	require.NoError(t, err)

	// Baseline PBMC draws: s1 and s4.
	assert.Equal(t, 2, subset.SubjectCount)
	assert.Equal(t, 2, subset.SampleCount)

	// The sample count matches the distinct samples behind the frequency
	// rows: every population row aggregates exactly those 2 samples.
	require.Equal(t, 5, subset.Frequencies.Len())
	for _, row := range subset.Frequencies.Rows {
		assert.Equal(t, 2, row[1], "population %v", row[0])
	}

	// b_cell baseline mean: (40 + 10) / 2.
	byPop := map[string][]any{}
	for _, row := range subset.Frequencies.Rows {
		byPop[row[0].(string)] = row
	}
	assert.InDelta(t, 25.0, byPop["b_cell"][2].(float64), 1e-9)

	// Subset breakdown tables.
	assert.Equal(t, []any{"prj1", 2}, subset.SamplesByProject.Rows[0])
	responses := map[string]int{}
	for _, row := range subset.SubjectsByResponse.Rows {
		responses[row[0].(string)] = row[1].(int)
	}
	assert.Equal(t, map[string]int{"yes": 1, "no": 1}, responses)
	sexes := map[string]int{}
	for _, row := range subset.SubjectsBySex.Rows {
		sexes[row[0].(string)] = row[1].(int)
	}
	assert.Equal(t, map[string]int{"F": 1, "M": 1}, sexes)
}

func TestSubsetAnalysisConditionFilterMatchesDirectCount(t *testing.T) {
	engine := seedEngine(t, extendedDataset())
	ctx := context.Background()

	subset, err := engine.SubsetAnalysis(ctx, Filters{Condition: "melanoma"})
	require.NoError(t, err)
	assert.Equal(t, 2, subset.SubjectCount)
	assert.Equal(t, 7, subset.SampleCount)

	subset, err = engine.SubsetAnalysis(ctx, Filters{Condition: "healthy"})
	require.NoError(t, err)
	assert.Equal(t, 1, subset.SubjectCount)
	assert.Equal(t, 1, subset.SampleCount)
}

func TestEngineConcurrentCalls(t *testing.T) {
	engine := seedEngine(t, extendedDataset())
	ctx := context.Background()

	done := make(chan error, 3)
	go func() { _, err := engine.Overview(ctx); done <- err }()
	go func() { _, err := engine.StatisticalAnalysis(ctx, StatisticalOptions{}); done <- err }()
	go func() { _, err := engine.SubsetAnalysis(ctx, Filters{Condition: "melanoma"}); done <- err }()

	for i := 0; i < 3; i++ {
		require.NoError(t, <-done)
	}
}
