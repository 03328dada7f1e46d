package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ga4-export/internal/model"
)

func TestBuildManifest(t *testing.T) {
	query := model.QueryDefinition{
		Name:       "daily",
		Dimensions: []string{"date", "country"},
		Metrics:    []string{"sessions"},
	}

	contributed := []model.Property{
		{PropertyID: "2", PropertyName: "App", AccountID: "9", AccountName: "Acme"},
		{PropertyID: "1", PropertyName: "Web", AccountID: "9", AccountName: "Acme"},
		{PropertyID: "3", PropertyName: "", AccountID: "", AccountName: ""},
	}

	stats := model.WriterStats{TotalRows: 10, SuccessCount: 10, SuccessRate: 100}

	m := BuildManifest(query, "outputs/analytics.daily.2026-08-24.csv", model.FormatDefault, stats, contributed, time.Now().Add(-2*time.Second))

	assert.Equal(t, "daily", m.OutputTable)
	assert.Equal(t, "daily", m.QueryName)
	assert.Equal(t, 10, m.RowCount)
	assert.Equal(t, []string{"date", "country"}, m.Dimensions)
	assert.Equal(t, []string{"sessions"}, m.Metrics)

	// Distinct, sorted, empty values dropped
	assert.Equal(t, []string{"1", "2", "3"}, m.PropertyIDs)
	assert.Equal(t, []string{"App", "Web"}, m.PropertyNames)
	assert.Equal(t, []string{"9"}, m.AccountIDs)
	assert.Equal(t, []string{"Acme"}, m.AccountNames)

	assert.GreaterOrEqual(t, m.DurationMS, int64(2000))
	assert.False(t, m.CreatedAt.IsZero())
}

func TestWriteManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv.manifest.json")

	m := model.Manifest{
		OutputTable: "daily",
		Filename:    "out.csv",
		RowCount:    3,
		CreatedAt:   time.Now().UTC(),
	}

	require.NoError(t, WriteManifest(path, m))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded model.Manifest
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "daily", decoded.OutputTable)
	assert.Equal(t, 3, decoded.RowCount)
}
