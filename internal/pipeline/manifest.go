package pipeline

import (
	"fmt"
	"os"
	"sort"
	"time"

	json "github.com/goccy/go-json"

	"ga4-export/internal/model"
)

// BuildManifest assembles the sidecar document for one finalized output
// file from the writer statistics and the properties that contributed
// rows.
func BuildManifest(query model.QueryDefinition, filename, format string, stats model.WriterStats, contributed []model.Property, started time.Time) model.Manifest {
	m := model.Manifest{
		OutputTable: query.Name,
		Filename:    filename,
		Format:      format,
		RowCount:    stats.TotalRows,
		CreatedAt:   time.Now().UTC(),
		QueryName:   query.Name,
		Dimensions:  query.Dimensions,
		Metrics:     query.Metrics,
		Stats:       stats,
		DurationMS:  time.Since(started).Milliseconds(),
	}

	m.PropertyIDs = distinct(contributed, func(p model.Property) string { return p.PropertyID })
	m.PropertyNames = distinct(contributed, func(p model.Property) string { return p.PropertyName })
	m.AccountIDs = distinct(contributed, func(p model.Property) string { return p.AccountID })
	m.AccountNames = distinct(contributed, func(p model.Property) string { return p.AccountName })

	return m
}

// WriteManifest writes the manifest JSON next to its output file. The
// caller is responsible for skipping empty result sets.
func WriteManifest(path string, m model.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	return nil
}

// distinct extracts the sorted set of non-empty values of one field
func distinct(props []model.Property, field func(model.Property) string) []string {
	seen := make(map[string]bool, len(props))

	values := make([]string, 0, len(props))

	for _, p := range props {
		v := field(p)
		if v == "" || seen[v] {
			continue
		}

		seen[v] = true

		values = append(values, v)
	}

	sort.Strings(values)

	return values
}
