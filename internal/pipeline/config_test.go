package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ga4-export/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `{
		"parameters": {
			"service_account_json": {"private_key": "k", "client_email": "svc@example.com"},
			"destination": "analytics",
			"start_date": "2026-08-01",
			"end_date": "2026-08-07",
			"query_definitions": [
				{"name": "daily", "dimensions": ["date"], "metrics": ["sessions"]}
			],
			"max_workers": 8
		}
	}`)

	spec, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "analytics", spec.Parameters.Destination)
	assert.Equal(t, 8, spec.Parameters.MaxWorkers)
	require.Len(t, spec.Parameters.QueryDefinitions, 1)
	assert.Equal(t, "daily", spec.Parameters.QueryDefinitions[0].Name)
}

func TestLoadConfigFlattensNestedParameters(t *testing.T) {
	// Some schedulers wrap the payload in a second parameters block
	path := writeConfig(t, `{
		"parameters": {
			"parameters": {
				"service_account_json": {"private_key": "k"},
				"destination": "nested"
			}
		}
	}`)

	spec, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "nested", spec.Parameters.Destination)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `not json`))
	require.Error(t, err)

	_, err = LoadConfig(writeConfig(t, `{"something_else": true}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parameters block")
}

func TestInjectDateDimension(t *testing.T) {
	queries := []model.QueryDefinition{
		{Name: "no-date", Dimensions: []string{"country"}},
		{Name: "date-first", Dimensions: []string{"date", "country"}},
		{Name: "date-later", Dimensions: []string{"country", "date"}},
		{Name: "empty"},
	}

	out := InjectDateDimension(queries)

	assert.Equal(t, []string{"date", "country"}, out[0].Dimensions)
	assert.Equal(t, []string{"date", "country"}, out[1].Dimensions)

	// Already present anywhere means untouched
	assert.Equal(t, []string{"country", "date"}, out[2].Dimensions)
	assert.Equal(t, []string{"date"}, out[3].Dimensions)
}

func TestInjectDateDimensionIdempotent(t *testing.T) {
	queries := []model.QueryDefinition{{Name: "q", Dimensions: []string{"country"}}}

	once := InjectDateDimension(queries)
	twice := InjectDateDimension(once)

	assert.Equal(t, []string{"date", "country"}, twice[0].Dimensions)
}

func TestOutputFilename(t *testing.T) {
	got := OutputFilename("outputs", "analytics", "daily", model.FormatDefault, "2026-08-24")
	assert.Equal(t, filepath.Join("outputs", "analytics.daily.2026-08-24.csv"), got)

	got = OutputFilename("outputs", "analytics", "daily", model.FormatJSONWrap, "2026-08-24")
	assert.Equal(t, filepath.Join("outputs", "analytics-daily-2026-08-24.csv"), got)
}
