package analysis

// Table is a tabular result with stable, named columns. Row cells are
// strings, integers or floats; nil marks a value that could not be computed.
// The presentation layer renders tables without knowing query internals.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// NewTable creates an empty table with the given column names.
func NewTable(columns ...string) Table {
	return Table{Columns: columns, Rows: [][]any{}}
}

// Append adds one row. The caller supplies one value per column.
func (t *Table) Append(values ...any) {
	t.Rows = append(t.Rows, values)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Chart is a rendered visual summary. Data holds the encoded image; Format
// names its encoding ("png").
type Chart struct {
	Format string `json:"format"`
	Data   []byte `json:"-"`
}

// OverviewResult is the cohort-wide descriptive summary. Every breakdown
// table sums to the matching total.
type OverviewResult struct {
	TotalSubjects     int `json:"total_subjects"`
	TotalSamples      int `json:"total_samples"`
	TotalObservations int `json:"total_observations"`

	SubjectsByProject   Table `json:"subjects_by_project"`
	SubjectsByCondition Table `json:"subjects_by_condition"`
	SubjectsByTreatment Table `json:"subjects_by_treatment"`
	SubjectsByResponse  Table `json:"subjects_by_response"`
	SamplesByType       Table `json:"samples_by_type"`
	SamplesBySubject    Table `json:"samples_by_subject"`
}

// StatisticalOptions selects the drug-exposure cohort for the responder
// comparison.
type StatisticalOptions struct {
	// Treatment restricts the cohort to subjects on this treatment.
	// Defaults to DefaultTreatment.
	Treatment string `json:"treatment"`
}

// DefaultTreatment is the trial drug the statistical comparison targets.
const DefaultTreatment = "miraclib"

func (o StatisticalOptions) withDefaults() StatisticalOptions {
	if o.Treatment == "" {
		o.Treatment = DefaultTreatment
	}
	return o
}

// Statistical result statuses.
const (
	StatusOK               = "ok"
	StatusInsufficientData = "insufficient data"
)

// StatisticalResult is the responder comparison: one row per
// (population, sample type) combination plus a comparative box-plot chart.
type StatisticalResult struct {
	Treatment string `json:"treatment"`
	Results   Table  `json:"results"`
	Chart     *Chart `json:"chart,omitempty"`
}

// SubsetResult summarizes the cohort matching a filter set. SampleCount
// equals the number of distinct samples behind the frequency rows.
type SubsetResult struct {
	Filters      Filters `json:"filters"`
	SubjectCount int     `json:"subject_count"`
	SampleCount  int     `json:"sample_count"`

	Frequencies        Table `json:"frequencies"`
	SamplesByProject   Table `json:"samples_by_project"`
	SubjectsByResponse Table `json:"subjects_by_response"`
	SubjectsBySex      Table `json:"subjects_by_sex"`
}
