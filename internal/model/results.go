package model

import "time"

// Record is one flat output row: entity metadata fields plus one
// string value per requested dimension and metric.
type Record map[string]string

// WriterStats are the aggregate numbers returned by the streaming
// writer when an output file is finalized.
type WriterStats struct {
	TotalRows    int     `json:"total_rows"`
	SuccessCount int     `json:"success_count"`
	ErrorCount   int     `json:"error_count"`
	SuccessRate  float64 `json:"success_rate"`
}

// QueryError is one row of the append-only query_errors.csv log
type QueryError struct {
	Timestamp  time.Time `json:"timestamp"`
	QueryName  string    `json:"query_name"`
	PropertyID string    `json:"property_id"`
	Error      string    `json:"error"`
	Context    string    `json:"context"`
}

// Manifest is the sidecar metadata document written next to each
// output file that produced at least one row.
type Manifest struct {
	OutputTable   string      `json:"output_table"`
	Filename      string      `json:"filename"`
	Format        string      `json:"format"`
	RowCount      int         `json:"row_count"`
	CreatedAt     time.Time   `json:"created_at"`
	QueryName     string      `json:"query_name"`
	Dimensions    []string    `json:"dimensions"`
	Metrics       []string    `json:"metrics"`
	PropertyIDs   []string    `json:"property_ids"`
	PropertyNames []string    `json:"property_names"`
	AccountIDs    []string    `json:"account_ids"`
	AccountNames  []string    `json:"account_names"`
	Stats         WriterStats `json:"stats"`
	DurationMS    int64       `json:"duration_ms"`
}

// OutputFile records one produced artifact for the run store
type OutputFile struct {
	RunID     string    `json:"run_id"`
	QueryName string    `json:"query_name"`
	Filename  string    `json:"filename"`
	Format    string    `json:"format"`
	RowCount  int       `json:"row_count"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryResult summarizes one query definition's execution across all
// properties.
type QueryResult struct {
	QueryName    string      `json:"query_name"`
	Filename     string      `json:"filename"`
	Stats        WriterStats `json:"stats"`
	FailedProps  int         `json:"failed_properties"`
	SuccessProps int         `json:"success_properties"`
}
