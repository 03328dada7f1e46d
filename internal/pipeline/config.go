package pipeline

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"ga4-export/internal/model"
)

// LoadConfig reads the export configuration document. Some upstream
// schedulers wrap the payload in a second "parameters" block; when that
// happens the inner block wins.
func LoadConfig(path string) (*model.ExportJobSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	var doc struct {
		Parameters json.RawMessage `json:"parameters"`
	}

	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}

	if len(doc.Parameters) == 0 {
		return nil, fmt.Errorf("config %s has no parameters block", path)
	}

	params, err := flattenParameters(doc.Parameters)
	if err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}

	return &model.ExportJobSpec{Parameters: *params}, nil
}

func flattenParameters(raw json.RawMessage) (*model.Parameters, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}

	if inner, ok := probe["parameters"]; ok {
		log.Printf("ℹ️ Detected nested parameters block in config, flattening")
		raw = inner
	}

	var params model.Parameters
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}

	return &params, nil
}

// InjectDateDimension ensures "date" is the first dimension of every
// query definition. Idempotent: a query that already requests the date
// dimension anywhere is left untouched.
func InjectDateDimension(queries []model.QueryDefinition) []model.QueryDefinition {
	for i := range queries {
		if containsDimension(queries[i].Dimensions, "date") {
			continue
		}

		queries[i].Dimensions = append([]string{"date"}, queries[i].Dimensions...)
	}

	return queries
}

func containsDimension(dims []string, name string) bool {
	for _, d := range dims {
		if d == name {
			return true
		}
	}

	return false
}

// OutputFilename builds the artifact path for one query. The default
// format uses dot separators; jsonwrap uses the hyphenated variant.
func OutputFilename(outputDir, destination, queryName, format, date string) string {
	if format == model.FormatJSONWrap {
		return filepath.Join(outputDir, fmt.Sprintf("%s-%s-%s.csv", destination, queryName, date))
	}

	return filepath.Join(outputDir, fmt.Sprintf("%s.%s.%s.csv", destination, queryName, date))
}
