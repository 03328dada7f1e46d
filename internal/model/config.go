package model

import (
	"errors"
	"time"
)

// Defaults for the performance knobs when the config leaves them out
const (
	DefaultMaxWorkers     = 4
	DefaultBatchSize      = 5
	DefaultRateLimitDelay = 0.5 // seconds between API calls
	DefaultChunkSize      = 500
	DefaultMaxRetries     = 3
	DefaultOutputDir      = "outputs"
	DefaultJobTimeout     = "30m"
)

// Output formats
const (
	FormatDefault  = "default"  // one CSV column per dimension/metric
	FormatJSONWrap = "jsonwrap" // single "data" column, record JSON-wrapped
)

var (
	ErrMissingCredentials = errors.New("missing or invalid service account credentials")
	ErrMissingDestination = errors.New("missing destination output prefix")
)

// StringFilter holds the exact-match value of one filter condition
type StringFilter struct {
	Value string `json:"value"`
}

// FilterCondition is a single field condition inside an AND group
type FilterCondition struct {
	FieldName    string       `json:"field_name"`
	StringFilter StringFilter `json:"string_filter"`
}

// DimensionFilter is a declarative AND group of filter conditions
type DimensionFilter struct {
	AndGroup []FilterCondition `json:"and_group"`
}

// QueryDefinition is a named request for dimensions/metrics over a date range
type QueryDefinition struct {
	Name            string           `json:"name"`
	Dimensions      []string         `json:"dimensions"`
	Metrics         []string         `json:"metrics"`
	DimensionFilter *DimensionFilter `json:"dimension_filter,omitempty"`
}

// DateRange holds ISO date strings (YYYY-MM-DD, inclusive)
type DateRange struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// Parameters is the flattened "parameters" block of the config document
type Parameters struct {
	ServiceAccountJSON map[string]interface{} `json:"service_account_json"`
	PropertyList       []Property             `json:"property_list,omitempty"` // empty triggers discovery
	StartDate          string                 `json:"start_date,omitempty"`
	EndDate            string                 `json:"end_date,omitempty"`
	QueryDefinitions   []QueryDefinition      `json:"query_definitions"`
	Destination        string                 `json:"destination"`
	OutputFormat       string                 `json:"output_format,omitempty"`
	OutputDir          string                 `json:"output_dir,omitempty"`

	// Performance knobs
	MaxWorkers     int     `json:"max_workers,omitempty"`
	BatchSize      int     `json:"batch_size,omitempty"`
	RateLimitDelay float64 `json:"rate_limit_delay,omitempty"` // seconds
	ChunkSize      int     `json:"chunk_size,omitempty"`
	MaxRetries     int     `json:"max_retries,omitempty"`
	JobTimeout     string  `json:"job_timeout,omitempty"` // e.g. "30m"
}

// ExportJobSpec defines one full export run (POST /api/v1/exports payload
// and the shape of the batch config file)
type ExportJobSpec struct {
	Parameters Parameters `json:"parameters"`
}

// Validate checks the configuration-time invariants. Only credential and
// destination problems are fatal; an empty property list triggers
// discovery and an empty query list ends the run early without output.
func (s *ExportJobSpec) Validate() error {
	sa := s.Parameters.ServiceAccountJSON
	if len(sa) == 0 {
		return ErrMissingCredentials
	}

	if _, ok := sa["private_key"]; !ok {
		return ErrMissingCredentials
	}

	if s.Parameters.Destination == "" {
		return ErrMissingDestination
	}

	return nil
}

// ApplyDefaults fills unset knobs with the documented defaults
func (s *ExportJobSpec) ApplyDefaults() {
	p := &s.Parameters
	if p.MaxWorkers <= 0 {
		p.MaxWorkers = DefaultMaxWorkers
	}

	if p.BatchSize <= 0 {
		p.BatchSize = DefaultBatchSize
	}

	if p.RateLimitDelay <= 0 {
		p.RateLimitDelay = DefaultRateLimitDelay
	}

	if p.ChunkSize <= 0 {
		p.ChunkSize = DefaultChunkSize
	}

	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}

	if p.OutputDir == "" {
		p.OutputDir = DefaultOutputDir
	}

	if p.OutputFormat == "" {
		p.OutputFormat = FormatDefault
	}

	if p.JobTimeout == "" {
		p.JobTimeout = DefaultJobTimeout
	}
}

// ResolveDateRange returns the configured range, or the trailing 7-day
// window ending today when either bound is absent.
func (s *ExportJobSpec) ResolveDateRange(now time.Time) DateRange {
	if s.Parameters.StartDate != "" && s.Parameters.EndDate != "" {
		return DateRange{StartDate: s.Parameters.StartDate, EndDate: s.Parameters.EndDate}
	}

	end := now
	start := end.AddDate(0, 0, -7)

	return DateRange{
		StartDate: start.Format("2006-01-02"),
		EndDate:   end.Format("2006-01-02"),
	}
}
