package ingest

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"

	"cytolab/internal/store"
)

var validate = validator.New()

// Normalize decomposes flat records into the three normalized collections.
// Subject metadata repeated across sample rows is collapsed to one subject;
// repeats that diverge from the first occurrence are a data-quality error,
// never silently overwritten. Each population column becomes one cell-count
// row referencing the record's sample.
func Normalize(records []Record) (*store.Dataset, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to normalize")
	}

	subjects := make(map[string]store.Subject)
	var subjectOrder []string
	samples := make(map[string]bool)

	ds := &store.Dataset{}

	for _, rec := range records {
		if err := validate.Struct(rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid record: %w", rec.Line, err)
		}

		subject := subjectFromRecord(rec)
		if seen, ok := subjects[rec.Subject]; ok {
			if err := consistent(seen, subject); err != nil {
				return nil, fmt.Errorf("line %d: subject %q: %w", rec.Line, rec.Subject, err)
			}
		} else {
			subjects[rec.Subject] = subject
			subjectOrder = append(subjectOrder, rec.Subject)
		}

		if samples[rec.Sample] {
			return nil, fmt.Errorf("line %d: duplicate sample id %q", rec.Line, rec.Sample)
		}
		samples[rec.Sample] = true

		ds.Samples = append(ds.Samples, store.Sample{
			ID:                     rec.Sample,
			SubjectID:              rec.Subject,
			SampleType:             rec.SampleType,
			TimeFromTreatmentStart: rec.TimeFromTreatmentStart,
		})

		// Unpivot population columns into rows, in a stable order.
		populations := make([]string, 0, len(rec.Counts))
		for pop := range rec.Counts {
			populations = append(populations, pop)
		}
		sort.Strings(populations)
		for _, pop := range populations {
			ds.CellCounts = append(ds.CellCounts, store.CellCount{
				SampleID:   rec.Sample,
				Population: pop,
				Count:      rec.Counts[pop],
			})
		}
	}

	for _, id := range subjectOrder {
		ds.Subjects = append(ds.Subjects, subjects[id])
	}

	return ds, nil
}

func subjectFromRecord(rec Record) store.Subject {
	subject := store.Subject{
		ID:        rec.Subject,
		Project:   rec.Project,
		Condition: rec.Condition,
		Age:       rec.Age,
		Sex:       rec.Sex,
		Treatment: rec.Treatment,
	}
	if rec.Response != "" {
		response := rec.Response
		subject.Response = &response
	}
	return subject
}

// consistent verifies a repeated occurrence of a subject's metadata matches
// the first one.
func consistent(first, repeat store.Subject) error {
	fields := []struct {
		name          string
		first, repeat string
	}{
		{"project", first.Project, repeat.Project},
		{"condition", first.Condition, repeat.Condition},
		{"sex", first.Sex, repeat.Sex},
		{"treatment", first.Treatment, repeat.Treatment},
		{"response", derefOr(first.Response, ""), derefOr(repeat.Response, "")},
		{"age", fmt.Sprint(first.Age), fmt.Sprint(repeat.Age)},
	}
	for _, f := range fields {
		if f.first != f.repeat {
			return fmt.Errorf("inconsistent %s: %q vs %q", f.name, f.first, f.repeat)
		}
	}
	return nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
