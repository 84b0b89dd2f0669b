package store

// Subject is one trial participant. Response is nil for subjects without a
// responder classification (healthy donors, non-drug arms).
type Subject struct {
	ID        string  `json:"subject"`
	Project   string  `json:"project"`
	Condition string  `json:"condition"`
	Age       int     `json:"age"`
	Sex       string  `json:"sex"`
	Treatment string  `json:"treatment"`
	Response  *string `json:"response,omitempty"`
}

// Sample is one biological draw belonging to exactly one subject.
type Sample struct {
	ID                     string `json:"sample"`
	SubjectID              string `json:"subject"`
	SampleType             string `json:"sample_type"`
	TimeFromTreatmentStart int    `json:"time_from_treatment_start"`
}

// CellCount is one (sample, population) observation. The population set is
// open-ended; new cell types become new rows, not new columns.
type CellCount struct {
	SampleID   string `json:"sample"`
	Population string `json:"population"`
	Count      int    `json:"count"`
}

// Dataset is the normalized form of one ingestion run.
type Dataset struct {
	Subjects   []Subject
	Samples    []Sample
	CellCounts []CellCount
}
