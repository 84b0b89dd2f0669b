package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Record is one flat CSV row: subject metadata, sample metadata and one
// count per population column.
type Record struct {
	Subject                string `validate:"required"`
	Project                string `validate:"required"`
	Condition              string `validate:"required"`
	Age                    int    `validate:"gte=0"`
	Sex                    string `validate:"required"`
	Treatment              string `validate:"required"`
	Response               string // empty when the subject has no response classification
	Sample                 string `validate:"required"`
	SampleType             string `validate:"required"`
	TimeFromTreatmentStart int    // zero or negative for pre-treatment draws

	// Counts maps population label to cell count for this sample.
	Counts map[string]int

	// Line is the 1-based CSV line, kept for error reporting.
	Line int
}

// fixedColumns are the non-population columns the flat format must carry.
// Every remaining header column is treated as a population count.
var fixedColumns = []string{
	"subject",
	"project",
	"condition",
	"age",
	"sex",
	"treatment",
	"response",
	"sample",
	"sample_type",
	"time_from_treatment_start",
}

// ReadCSV decodes the flat cell-count CSV. The column set is header-driven:
// the fixed subject/sample columns are located by name and every other
// column is an open-ended population count. Any malformed row fails the
// whole read.
func ReadCSV(r io.Reader) ([]Record, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv content: %w", err)
	}
	// Strip UTF-8 BOM so the first header cell matches by name.
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(content))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("csv has no data rows")
	}

	header := rows[0]
	fixed := make(map[string]int, len(fixedColumns))
	for i, name := range header {
		fixed[name] = i
	}
	for _, name := range fixedColumns {
		if _, ok := fixed[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	var populations []string
	popIndex := make(map[string]int)
	isFixed := make(map[string]bool, len(fixedColumns))
	for _, name := range fixedColumns {
		isFixed[name] = true
	}
	for i, name := range header {
		if isFixed[name] {
			continue
		}
		if _, dup := popIndex[name]; dup {
			return nil, fmt.Errorf("duplicate population column %q", name)
		}
		popIndex[name] = i
		populations = append(populations, name)
	}
	if len(populations) == 0 {
		return nil, fmt.Errorf("csv has no population count columns")
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if len(row) != len(header) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(header), len(row))
		}

		age, err := parseIntField(row[fixed["age"]], "age", line)
		if err != nil {
			return nil, err
		}
		timeFromStart, err := parseIntField(row[fixed["time_from_treatment_start"]], "time_from_treatment_start", line)
		if err != nil {
			return nil, err
		}

		counts := make(map[string]int, len(populations))
		for _, pop := range populations {
			count, err := parseIntField(row[popIndex[pop]], pop, line)
			if err != nil {
				return nil, err
			}
			if count < 0 {
				return nil, fmt.Errorf("line %d: negative count %d for population %q", line, count, pop)
			}
			counts[pop] = count
		}

		records = append(records, Record{
			Subject:                row[fixed["subject"]],
			Project:                row[fixed["project"]],
			Condition:              row[fixed["condition"]],
			Age:                    age,
			Sex:                    row[fixed["sex"]],
			Treatment:              row[fixed["treatment"]],
			Response:               row[fixed["response"]],
			Sample:                 row[fixed["sample"]],
			SampleType:             row[fixed["sample_type"]],
			TimeFromTreatmentStart: timeFromStart,
			Counts:                 counts,
			Line:                   line,
		})
	}

	return records, nil
}

func parseIntField(value, column string, line int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("line %d: column %q: invalid integer %q", line, column, value)
	}
	return n, nil
}
