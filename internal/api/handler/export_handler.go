package handler

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"ga4-export/internal/model"
	"ga4-export/internal/pipeline"
	"ga4-export/internal/store"
	"ga4-export/pkg/utils"
)

// runPipeline launches an export run; swapped out in tests
var runPipeline = pipeline.Run

// CreateExport creates and starts a new export run
// @Summary Create a new export run
// @Description Validate the export configuration, persist it and start the run asynchronously
// @Tags exports
// @Accept json
// @Produce json
// @Param export body model.ExportJobSpec true "Export configuration"
// @Success 200 {object} map[string]interface{} "Export run created"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /exports [post]
func CreateExport(w http.ResponseWriter, r *http.Request) {
	var spec model.ExportJobSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	spec.ApplyDefaults()

	if err := spec.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	runID := uuid.New().String()

	if err := store.SaveRun(runID, spec); err != nil {
		http.Error(w, "Failed to save run", http.StatusInternalServerError)
		return
	}

	timeout := utils.ParseDuration(spec.Parameters.JobTimeout, 30*time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	go func() {
		defer cancel()

		// Run records its own failures in the store
		if err := runPipeline(ctx, runID, spec); err != nil {
			log.Printf("❌ Export run %s failed: %v", runID, err)
		}
	}()

	writeJSON(w, map[string]interface{}{
		"message":   "Export run created",
		"runID":     runID,
		"status":    "pending",
		"createdAt": time.Now().UTC(),
	})
}

// ListExports lists all export runs
// @Summary List export runs
// @Description Get all export runs with their current status
// @Tags exports
// @Produce json
// @Success 200 {array} map[string]interface{} "List of export runs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /exports [get]
func ListExports(w http.ResponseWriter, r *http.Request) {
	runs, err := store.ListRuns()
	if err != nil {
		http.Error(w, "Failed to fetch export runs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, runs)
}

// GetExport retrieves one export run
// @Summary Get export run
// @Description Retrieve the configuration and status of one export run
// @Tags exports
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run details"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /exports/{id} [get]
func GetExport(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r, "")
	if !ok {
		return
	}

	run, err := store.GetRun(runID)
	if err != nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	writeJSON(w, run)
}

// GetExportErrors retrieves the errors recorded for a run
// @Summary Get export run errors
// @Tags exports
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Run errors"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /exports/{id}/errors [get]
func GetExportErrors(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r, "/errors")
	if !ok {
		return
	}

	runErrors, err := store.GetRunErrors(runID)
	if err != nil {
		http.Error(w, "Failed to retrieve errors", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"run_id": runID,
		"errors": runErrors,
		"count":  len(runErrors),
	})
}

// GetExportLogs retrieves the structured log lines for a run
// @Summary Get export run logs
// @Tags exports
// @Produce json
// @Param id path string true "Run ID"
// @Param limit query int false "Max log lines" default(100)
// @Success 200 {object} map[string]interface{} "Run logs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /exports/{id}/logs [get]
func GetExportLogs(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r, "/logs")
	if !ok {
		return
	}

	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	logs, err := store.GetRunLogs(runID, limit)
	if err != nil {
		http.Error(w, "Failed to retrieve logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"run_id": runID,
		"logs":   logs,
		"count":  len(logs),
		"limit":  limit,
	})
}

// GetExportFiles lists the artifacts produced by a run
// @Summary Get export run files
// @Tags exports
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Produced output files"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /exports/{id}/files [get]
func GetExportFiles(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r, "/files")
	if !ok {
		return
	}

	files, err := store.GetOutputFiles(runID)
	if err != nil {
		http.Error(w, "Failed to retrieve files", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]interface{}{
		"run_id": runID,
		"files":  files,
		"count":  len(files),
	})
}

// RetryExport re-runs an export with its stored configuration
// @Summary Retry export run
// @Tags exports
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} map[string]interface{} "Retry initiated"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Failure 500 {object} map[string]interface{} "Invalid run specification"
// @Router /exports/{id}/retry [post]
func RetryExport(w http.ResponseWriter, r *http.Request) {
	runID, ok := runIDFromPath(w, r, "/retry")
	if !ok {
		return
	}

	run, err := store.GetRun(runID)
	if err != nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	spec, ok := run["spec"].(model.ExportJobSpec)
	if !ok {
		http.Error(w, "Invalid run specification", http.StatusInternalServerError)
		return
	}

	// Surface the new lifecycle immediately so status reads do not show
	// the previous terminal state
	if err := store.UpdateRunStatus(runID, "retrying"); err != nil {
		http.Error(w, "Failed to update run status", http.StatusInternalServerError)
		return
	}

	timeout := utils.ParseDuration(spec.Parameters.JobTimeout, 30*time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	go func() {
		defer cancel()

		if err := runPipeline(ctx, runID, spec); err != nil {
			log.Printf("❌ Retry of run %s failed: %v", runID, err)
		}
	}()

	writeJSON(w, map[string]interface{}{
		"message": "Retry initiated",
		"run_id":  runID,
		"status":  "retrying",
	})
}

// DownloadFile serves one produced artifact
// @Summary Download an output file
// @Tags files
// @Produce application/octet-stream
// @Param id path string true "Run ID"
// @Param filename path string true "File name"
// @Success 200 {file} file "File download"
// @Failure 404 {object} map[string]interface{} "File not found"
// @Router /download/{id}/{filename} [get]
func DownloadFile(w http.ResponseWriter, r *http.Request) {
	// URL format: /api/v1/download/{runID}/{filename}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 5 {
		http.Error(w, "Invalid URL format", http.StatusBadRequest)
		return
	}

	runID := parts[3]
	fileName := strings.Join(parts[4:], "/")

	files, err := store.GetOutputFiles(runID)
	if err != nil {
		http.Error(w, "Failed to retrieve files", http.StatusInternalServerError)
		return
	}

	// Only files registered for this run can be downloaded
	for _, file := range files {
		if !strings.HasSuffix(file.Filename, fileName) {
			continue
		}

		if _, err := os.Stat(file.Filename); os.IsNotExist(err) {
			break
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
		w.Header().Set("Content-Type", "application/octet-stream")
		http.ServeFile(w, r, file.Filename)

		return
	}

	http.Error(w, "File not found", http.StatusNotFound)
}

// runIDFromPath extracts the run id between the API prefix and an
// optional suffix, writing a 400 on malformed paths.
func runIDFromPath(w http.ResponseWriter, r *http.Request, suffix string) (string, bool) {
	path := r.URL.Path
	prefix := "/api/v1/exports/"

	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return "", false
	}

	runID := path[len(prefix) : len(path)-len(suffix)]
	if runID == "" {
		http.Error(w, "Run ID is required", http.StatusBadRequest)
		return "", false
	}

	return runID, true
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}
