package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"cytolab/internal/store"
)

// Engine answers the fixed analytical questions over a read-only store
// handle. It carries no per-call state, so concurrent invocations are safe.
type Engine struct {
	store  *store.Store
	logger *slog.Logger
}

// New creates an analysis engine over an opened store.
func New(st *store.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		logger: logger.With(slog.String("component", "analysis")),
	}
}

// Overview returns the cohort-wide descriptive summary: how many subjects
// per project, condition, treatment arm and response category, and how many
// samples per subject and per sample type.
func (e *Engine) Overview(ctx context.Context) (*OverviewResult, error) {
	subjects, samples, observations, err := e.store.TableCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("overview totals: %w", err)
	}

	result := &OverviewResult{
		TotalSubjects:     subjects,
		TotalSamples:      samples,
		TotalObservations: observations,
	}

	breakdowns := []struct {
		dest  *Table
		label string
		count string
		query string
	}{
		{&result.SubjectsByProject, "project", "subjects",
			`SELECT project, COUNT(1) FROM subjects GROUP BY project ORDER BY project`},
		{&result.SubjectsByCondition, "condition", "subjects",
			`SELECT condition, COUNT(1) FROM subjects GROUP BY condition ORDER BY condition`},
		{&result.SubjectsByTreatment, "treatment", "subjects",
			`SELECT treatment, COUNT(1) FROM subjects GROUP BY treatment ORDER BY treatment`},
		{&result.SubjectsByResponse, "response", "subjects",
			`SELECT COALESCE(response, 'unknown'), COUNT(1) FROM subjects
			 GROUP BY COALESCE(response, 'unknown') ORDER BY 1`},
		{&result.SamplesByType, "sample_type", "samples",
			`SELECT sample_type, COUNT(1) FROM samples GROUP BY sample_type ORDER BY sample_type`},
		{&result.SamplesBySubject, "subject", "samples",
			`SELECT subject, COUNT(1) FROM samples GROUP BY subject ORDER BY subject`},
	}
	for _, b := range breakdowns {
		table, err := e.countTable(ctx, b.query, b.label, b.count)
		if err != nil {
			return nil, fmt.Errorf("overview %s breakdown: %w", b.label, err)
		}
		*b.dest = table
	}

	return result, nil
}

// countTable runs a (label, count) aggregation query into a two-column table.
func (e *Engine) countTable(ctx context.Context, query, labelColumn, countColumn string, args ...any) (Table, error) {
	table := NewTable(labelColumn, countColumn)
	rows, err := e.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return table, err
	}
	defer rows.Close()

	for rows.Next() {
		var label string
		var count int
		if err := rows.Scan(&label, &count); err != nil {
			return table, err
		}
		table.Append(label, count)
	}
	return table, rows.Err()
}

// SampleFrequencies returns the per-sample relative frequency of every cell
// population: count over the sample's total captured cells. The denominator
// is always the full per-sample total, never a fixed population count.
func (e *Engine) SampleFrequencies(ctx context.Context) (Table, error) {
	table := NewTable("sample", "total_count", "population", "count", "percentage")

	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT
			sample,
			SUM(count) OVER (PARTITION BY sample) AS total_count,
			population,
			count,
			count * 100.0 / SUM(count) OVER (PARTITION BY sample) AS percentage
		FROM cell_counts
		ORDER BY sample, population`)
	if err != nil {
		return table, fmt.Errorf("sample frequencies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sample, population string
		var totalCount, count int
		var percentage float64
		if err := rows.Scan(&sample, &totalCount, &population, &count, &percentage); err != nil {
			return table, fmt.Errorf("scan frequency row: %w", err)
		}
		table.Append(sample, totalCount, population, count, percentage)
	}
	return table, rows.Err()
}

// comboKey identifies one (population, sample type) combination.
type comboKey struct {
	population string
	sampleType string
}

// comboSamples collects per-sample percentages split by response label.
type comboSamples struct {
	responders    []float64
	nonResponders []float64
}

// StatisticalAnalysis compares responders against non-responders among
// subjects on the given treatment with a response classification. For every
// (population, sample type) combination it computes each sample's relative
// frequency and tests the two response groups with a two-sided Mann-Whitney
// U test. Combinations where either group has fewer than two samples are
// reported with an "insufficient data" status instead of being dropped.
func (e *Engine) StatisticalAnalysis(ctx context.Context, opts StatisticalOptions) (*StatisticalResult, error) {
	opts = opts.withDefaults()

	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT
			cc.population,
			sa.sample_type,
			sub.response,
			cc.count * 100.0 / SUM(cc.count) OVER (PARTITION BY cc.sample) AS percentage
		FROM cell_counts cc
		JOIN samples sa ON cc.sample = sa.sample
		JOIN subjects sub ON sa.subject = sub.subject
		WHERE sub.treatment = ? AND sub.response IS NOT NULL
		ORDER BY cc.population, sa.sample_type, cc.sample`, opts.Treatment)
	if err != nil {
		return nil, fmt.Errorf("statistical analysis query: %w", err)
	}
	defer rows.Close()

	combos := make(map[comboKey]*comboSamples)
	var order []comboKey
	for rows.Next() {
		var population, sampleType, response string
		var percentage float64
		if err := rows.Scan(&population, &sampleType, &response, &percentage); err != nil {
			return nil, fmt.Errorf("scan statistical row: %w", err)
		}
		key := comboKey{population: population, sampleType: sampleType}
		combo, ok := combos[key]
		if !ok {
			combo = &comboSamples{}
			combos[key] = combo
			order = append(order, key)
		}
		if response == "yes" {
			combo.responders = append(combo.responders, percentage)
		} else {
			combo.nonResponders = append(combo.nonResponders, percentage)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("statistical analysis rows: %w", err)
	}

	table := NewTable(
		"population", "sample_type",
		"responders", "non_responders",
		"median_responders", "median_non_responders",
		"u_statistic", "p_value", "significant", "status",
	)
	var groups []boxGroup
	for _, key := range order {
		combo := combos[key]
		nYes := len(combo.responders)
		nNo := len(combo.nonResponders)

		medYes := nullableFloat(median(combo.responders))
		medNo := nullableFloat(median(combo.nonResponders))

		// A significance test needs at least two samples per group.
		if nYes < 2 || nNo < 2 {
			table.Append(key.population, key.sampleType, nYes, nNo, medYes, medNo,
				nil, nil, nil, StatusInsufficientData)
			continue
		}

		u, p := mannWhitneyU(combo.responders, combo.nonResponders)
		table.Append(key.population, key.sampleType, nYes, nNo, medYes, medNo,
			u, p, p < 0.05, StatusOK)

		groups = append(groups, boxGroup{
			label:         fmt.Sprintf("%s (%s)", key.population, key.sampleType),
			responders:    combo.responders,
			nonResponders: combo.nonResponders,
		})
	}

	result := &StatisticalResult{Treatment: opts.Treatment, Results: table}
	if len(groups) > 0 {
		title := fmt.Sprintf("Cell population frequencies: responders vs non-responders (%s)", opts.Treatment)
		chart, err := renderBoxChart(title, groups)
		if err != nil {
			return nil, fmt.Errorf("statistical analysis chart: %w", err)
		}
		result.Chart = chart
	}

	e.logger.Info("statistical analysis complete",
		slog.String("treatment", opts.Treatment),
		slog.Int("combinations", table.Len()))
	return result, nil
}

// SubsetAnalysis restricts the cohort with AND-composed attribute filters
// and returns the per-population frequency summary plus the subject/sample
// breakdowns. An empty filter set covers the whole cohort.
func (e *Engine) SubsetAnalysis(ctx context.Context, filters Filters) (*SubsetResult, error) {
	where, args := filters.whereClause()
	joined := `FROM samples sa JOIN subjects sub ON sa.subject = sub.subject` + where

	result := &SubsetResult{Filters: filters}

	row := e.store.DB().QueryRowContext(ctx, `SELECT COUNT(DISTINCT sub.subject) `+joined, args...)
	if err := row.Scan(&result.SubjectCount); err != nil {
		return nil, fmt.Errorf("subset subject count: %w", err)
	}

	frequencies, sampleCount, err := e.subsetFrequencies(ctx, where, args)
	if err != nil {
		return nil, err
	}
	result.Frequencies = frequencies
	// The sample count is derived from the distinct samples actually
	// contributing frequency rows.
	result.SampleCount = sampleCount

	breakdowns := []struct {
		dest  *Table
		label string
		count string
		query string
	}{
		{&result.SamplesByProject, "project", "samples",
			`SELECT sub.project, COUNT(1) ` + joined + ` GROUP BY sub.project ORDER BY sub.project`},
		{&result.SubjectsByResponse, "response", "subjects",
			`SELECT COALESCE(sub.response, 'unknown'), COUNT(DISTINCT sub.subject) ` + joined +
				` GROUP BY COALESCE(sub.response, 'unknown') ORDER BY 1`},
		{&result.SubjectsBySex, "sex", "subjects",
			`SELECT sub.sex, COUNT(DISTINCT sub.subject) ` + joined + ` GROUP BY sub.sex ORDER BY sub.sex`},
	}
	for _, b := range breakdowns {
		table, err := e.countTable(ctx, b.query, b.label, b.count, args...)
		if err != nil {
			return nil, fmt.Errorf("subset %s breakdown: %w", b.label, err)
		}
		*b.dest = table
	}

	return result, nil
}

// subsetFrequencies aggregates per-sample percentages of the filtered
// samples into a per-population summary, returning the summary table and
// the number of distinct contributing samples.
func (e *Engine) subsetFrequencies(ctx context.Context, where string, args []any) (Table, int, error) {
	table := NewTable("population", "samples", "mean_percentage", "median_percentage")

	rows, err := e.store.DB().QueryContext(ctx, `
		SELECT
			cc.population,
			cc.sample,
			cc.count * 100.0 / SUM(cc.count) OVER (PARTITION BY cc.sample) AS percentage
		FROM cell_counts cc
		JOIN samples sa ON cc.sample = sa.sample
		JOIN subjects sub ON sa.subject = sub.subject`+where+`
		ORDER BY cc.population, cc.sample`, args...)
	if err != nil {
		return table, 0, fmt.Errorf("subset frequencies: %w", err)
	}
	defer rows.Close()

	perPopulation := make(map[string][]float64)
	var populations []string
	distinctSamples := make(map[string]bool)
	for rows.Next() {
		var population, sample string
		var percentage float64
		if err := rows.Scan(&population, &sample, &percentage); err != nil {
			return table, 0, fmt.Errorf("scan subset frequency row: %w", err)
		}
		if _, ok := perPopulation[population]; !ok {
			populations = append(populations, population)
		}
		perPopulation[population] = append(perPopulation[population], percentage)
		distinctSamples[sample] = true
	}
	if err := rows.Err(); err != nil {
		return table, 0, fmt.Errorf("subset frequency rows: %w", err)
	}

	for _, population := range populations {
		values := perPopulation[population]
		table.Append(population, len(values), mean(values), median(values))
	}
	return table, len(distinctSamples), nil
}

// nullableFloat converts NaN (no data) into a nil table cell.
func nullableFloat(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}
