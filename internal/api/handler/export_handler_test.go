package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ga4-export/internal/model"
	"ga4-export/internal/store"
)

func initTestStore(t *testing.T) {
	t.Helper()
	require.NoError(t, store.InitDB(filepath.Join(t.TempDir(), "test.db")))
}

// stubPipeline replaces the run launcher and signals when it was invoked
func stubPipeline(t *testing.T) chan string {
	t.Helper()

	launched := make(chan string, 1)

	orig := runPipeline
	runPipeline = func(ctx context.Context, runID string, spec model.ExportJobSpec) error {
		launched <- runID
		return nil
	}

	t.Cleanup(func() { runPipeline = orig })

	return launched
}

func specJSON() string {
	return `{
		"parameters": {
			"service_account_json": {"private_key": "k", "client_email": "svc@example.com"},
			"destination": "analytics",
			"query_definitions": [{"name": "daily", "dimensions": ["date"], "metrics": ["sessions"]}]
		}
	}`
}

func TestCreateExport(t *testing.T) {
	initTestStore(t)
	launched := stubPipeline(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports", strings.NewReader(specJSON()))
	rec := httptest.NewRecorder()

	CreateExport(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	runID, ok := resp["runID"].(string)
	require.True(t, ok)
	require.NotEmpty(t, runID)

	select {
	case got := <-launched:
		assert.Equal(t, runID, got)
	case <-time.After(time.Second):
		t.Fatal("pipeline run was never launched")
	}

	run, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "pending", run["status"])
}

func TestCreateExportRejectsInvalidPayload(t *testing.T) {
	initTestStore(t)
	stubPipeline(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports", strings.NewReader("not json"))
	rec := httptest.NewRecorder()

	CreateExport(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateExportRejectsMissingCredentials(t *testing.T) {
	initTestStore(t)
	stubPipeline(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports",
		strings.NewReader(`{"parameters": {"destination": "analytics"}}`))
	rec := httptest.NewRecorder()

	CreateExport(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRetryExportMarksRunRetrying(t *testing.T) {
	initTestStore(t)
	launched := stubPipeline(t)

	var spec model.ExportJobSpec
	require.NoError(t, json.Unmarshal([]byte(specJSON()), &spec))

	runID := "retry-run-1"
	require.NoError(t, store.SaveRun(runID, spec))
	require.NoError(t, store.UpdateRunStatus(runID, "completed_with_errors"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports/"+runID+"/retry", nil)
	rec := httptest.NewRecorder()

	RetryExport(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	// The stale terminal status is replaced before the response returns
	run, err := store.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "retrying", run["status"])

	select {
	case got := <-launched:
		assert.Equal(t, runID, got)
	case <-time.After(time.Second):
		t.Fatal("pipeline run was never launched")
	}
}

func TestRetryExportUnknownRun(t *testing.T) {
	initTestStore(t)
	stubPipeline(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/exports/no-such-run/retry", nil)
	rec := httptest.NewRecorder()

	RetryExport(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
