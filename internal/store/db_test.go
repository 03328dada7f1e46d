package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ga4-export/internal/model"
)

func initTestDB(t *testing.T) {
	t.Helper()
	require.NoError(t, InitDB(filepath.Join(t.TempDir(), "test.db")))
}

func sampleSpec() model.ExportJobSpec {
	return model.ExportJobSpec{
		Parameters: model.Parameters{
			ServiceAccountJSON: map[string]interface{}{"private_key": "k"},
			Destination:        "analytics",
			QueryDefinitions: []model.QueryDefinition{
				{Name: "daily", Dimensions: []string{"date"}, Metrics: []string{"sessions"}},
			},
		},
	}
}

func TestSaveAndGetRun(t *testing.T) {
	initTestDB(t)

	require.NoError(t, SaveRun("run-1", sampleSpec()))

	run, err := GetRun("run-1")
	require.NoError(t, err)

	assert.Equal(t, "run-1", run["id"])
	assert.Equal(t, "pending", run["status"])

	spec, ok := run["spec"].(model.ExportJobSpec)
	require.True(t, ok)
	assert.Equal(t, "analytics", spec.Parameters.Destination)
	require.Len(t, spec.Parameters.QueryDefinitions, 1)
}

func TestUpdateRunStatus(t *testing.T) {
	initTestDB(t)

	require.NoError(t, SaveRun("run-1", sampleSpec()))
	require.NoError(t, UpdateRunStatus("run-1", "completed_with_errors"))

	run, err := GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, "completed_with_errors", run["status"])
}

func TestRunErrors(t *testing.T) {
	initTestDB(t)

	require.NoError(t, SaveRun("run-1", sampleSpec()))
	require.NoError(t, SaveRunError("run-1", errors.New("query daily: boom")))
	require.NoError(t, SaveRunError("run-1", nil)) // nil errors are ignored

	runErrors, err := GetRunErrors("run-1")
	require.NoError(t, err)
	require.Len(t, runErrors, 1)
	assert.Equal(t, "query daily: boom", runErrors[0]["error"])
}

func TestRunLogs(t *testing.T) {
	initTestDB(t)

	require.NoError(t, SaveRun("run-1", sampleSpec()))
	require.NoError(t, SaveRunLog("run-1", "discovery", "info", "Discovery completed", map[string]interface{}{
		"properties": 3,
	}))

	logs, err := GetRunLogs("run-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	assert.Equal(t, "discovery", logs[0]["stage"])
	assert.Equal(t, "Discovery completed", logs[0]["message"])

	fields, ok := logs[0]["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, fields["properties"])
}

func TestRunLogsLimit(t *testing.T) {
	initTestDB(t)

	require.NoError(t, SaveRun("run-1", sampleSpec()))

	for i := 0; i < 5; i++ {
		require.NoError(t, SaveRunLog("run-1", "export", "info", "line", nil))
	}

	logs, err := GetRunLogs("run-1", 3)
	require.NoError(t, err)
	assert.Len(t, logs, 3)
}

func TestOutputFiles(t *testing.T) {
	initTestDB(t)

	require.NoError(t, SaveOutputFile(model.OutputFile{
		RunID:     "run-1",
		QueryName: "daily",
		Filename:  "outputs/analytics.daily.2026-08-24.csv",
		Format:    "default",
		RowCount:  120,
		CreatedAt: time.Now().UTC(),
	}))

	files, err := GetOutputFiles("run-1")
	require.NoError(t, err)
	require.Len(t, files, 1)

	assert.Equal(t, "daily", files[0].QueryName)
	assert.Equal(t, 120, files[0].RowCount)

	other, err := GetOutputFiles("run-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestListRuns(t *testing.T) {
	initTestDB(t)

	require.NoError(t, SaveRun("run-1", sampleSpec()))
	require.NoError(t, SaveRun("run-2", sampleSpec()))

	runs, err := ListRuns()
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
