package analysis

import (
	"fmt"
	"strconv"
	"strings"
)

// Filters are inclusion predicates over subject and sample attributes,
// composed with logical AND. The zero value matches the whole cohort.
type Filters struct {
	Project                string `json:"project,omitempty"`
	Condition              string `json:"condition,omitempty"`
	Sex                    string `json:"sex,omitempty"`
	Treatment              string `json:"treatment,omitempty"`
	Response               string `json:"response,omitempty"`
	SampleType             string `json:"sample_type,omitempty"`
	TimeFromTreatmentStart *int   `json:"time_from_treatment_start,omitempty"`
}

// ParseFilters builds Filters from attribute name/value pairs, rejecting
// unknown attribute names so a typo'd filter is reported instead of
// silently matching everything.
func ParseFilters(params map[string]string) (Filters, error) {
	var f Filters
	for key, value := range params {
		switch key {
		case "project":
			f.Project = value
		case "condition":
			f.Condition = value
		case "sex":
			f.Sex = value
		case "treatment":
			f.Treatment = value
		case "response":
			f.Response = value
		case "sample_type":
			f.SampleType = value
		case "time_from_treatment_start":
			n, err := strconv.Atoi(value)
			if err != nil {
				return Filters{}, fmt.Errorf("filter time_from_treatment_start: invalid integer %q", value)
			}
			f.TimeFromTreatmentStart = &n
		default:
			return Filters{}, fmt.Errorf("unknown filter attribute %q", key)
		}
	}
	return f, nil
}

// IsEmpty reports whether no predicate is set.
func (f Filters) IsEmpty() bool {
	return f == Filters{}
}

// whereClause renders the filters as a SQL WHERE clause over the standard
// sa (samples) / sub (subjects) join aliases. Returns an empty clause for
// the zero filter.
func (f Filters) whereClause() (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, value any) {
		conds = append(conds, cond)
		args = append(args, value)
	}

	if f.Project != "" {
		add("sub.project = ?", f.Project)
	}
	if f.Condition != "" {
		add("sub.condition = ?", f.Condition)
	}
	if f.Sex != "" {
		add("sub.sex = ?", f.Sex)
	}
	if f.Treatment != "" {
		add("sub.treatment = ?", f.Treatment)
	}
	if f.Response != "" {
		add("sub.response = ?", f.Response)
	}
	if f.SampleType != "" {
		add("sa.sample_type = ?", f.SampleType)
	}
	if f.TimeFromTreatmentStart != nil {
		add("sa.time_from_treatment_start = ?", *f.TimeFromTreatmentStart)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
