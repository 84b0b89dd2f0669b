package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cytolab/internal/analysis"
	"cytolab/internal/store"
)

func strPtr(s string) *string { return &s }

func seedHandler(t *testing.T) *AnalysisHandler {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "cytolab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ds := &store.Dataset{
		Subjects: []store.Subject{
			{ID: "sbj1", Project: "prj1", Condition: "melanoma", Age: 61, Sex: "F", Treatment: "miraclib", Response: strPtr("yes")},
			{ID: "sbj2", Project: "prj1", Condition: "melanoma", Age: 55, Sex: "M", Treatment: "miraclib", Response: strPtr("no")},
		},
		Samples: []store.Sample{
			{ID: "s1", SubjectID: "sbj1", SampleType: "PBMC", TimeFromTreatmentStart: 0},
			{ID: "s2", SubjectID: "sbj1", SampleType: "PBMC", TimeFromTreatmentStart: 7},
			{ID: "s3", SubjectID: "sbj2", SampleType: "PBMC", TimeFromTreatmentStart: 0},
			{ID: "s4", SubjectID: "sbj2", SampleType: "PBMC", TimeFromTreatmentStart: 7},
		},
		CellCounts: []store.CellCount{
			{SampleID: "s1", Population: "b_cell", Count: 60}, {SampleID: "s1", Population: "nk_cell", Count: 40},
			{SampleID: "s2", Population: "b_cell", Count: 65}, {SampleID: "s2", Population: "nk_cell", Count: 35},
			{SampleID: "s3", Population: "b_cell", Count: 20}, {SampleID: "s3", Population: "nk_cell", Count: 80},
			{SampleID: "s4", Population: "b_cell", Count: 25}, {SampleID: "s4", Population: "nk_cell", Count: 75},
		},
	}
	require.NoError(t, st.Replace(context.Background(), ds))

	return NewAnalysisHandler(analysis.New(st, nil), nil)
}

func TestGetOverview(t *testing.T) {
	handler := seedHandler(t)
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/overview")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result analysis.OverviewResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 2, result.TotalSubjects)
	assert.Equal(t, 4, result.TotalSamples)
	assert.Equal(t, 8, result.TotalObservations)
}

func TestGetFrequencies(t *testing.T) {
	handler := seedHandler(t)
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/frequencies")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var table analysis.Table
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&table))
	assert.Equal(t, []string{"sample", "total_count", "population", "count", "percentage"}, table.Columns)
	assert.Len(t, table.Rows, 8)
}

func TestGetStatistical(t *testing.T) {
	handler := seedHandler(t)
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/statistical")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result analysis.StatisticalResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, analysis.DefaultTreatment, result.Treatment)
	assert.Equal(t, 2, result.Results.Len())
}

func TestGetStatisticalChart(t *testing.T) {
	handler := seedHandler(t)
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/statistical/chart")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestGetStatisticalChartMissing(t *testing.T) {
	handler := seedHandler(t)
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	// No subjects on this treatment, so there is nothing to plot.
	resp, err := http.Get(server.URL + "/statistical/chart?treatment=phauximab")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetSubset(t *testing.T) {
	handler := seedHandler(t)
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/subset?condition=melanoma&time_from_treatment_start=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result analysis.SubsetResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 2, result.SubjectCount)
	assert.Equal(t, 2, result.SampleCount)
}

func TestGetSubsetUnknownFilter(t *testing.T) {
	handler := seedHandler(t)
	server := httptest.NewServer(handler.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/subset?diagnosis=melanoma")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
