package store

import (
	"database/sql"
	"time"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"ga4-export/internal/model"
)

var db *sql.DB

// InitDB opens the run-tracking database and creates the schema
func InitDB(dbPath string) error {
	var err error

	db, err = sql.Open("sqlite3", dbPath)
	if err != nil {
		return err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			spec TEXT,
			status TEXT,
			created_at DATETIME,
			updated_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS run_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			error_message TEXT,
			created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS run_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			stage TEXT,
			level TEXT,
			message TEXT,
			fields TEXT,
			created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS output_files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT,
			query_name TEXT,
			filename TEXT,
			format TEXT,
			row_count INTEGER,
			created_at DATETIME
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// SaveRun stores a new export run in "pending" state
func SaveRun(runID string, spec model.ExportJobSpec) error {
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = db.Exec(`INSERT INTO runs (id, spec, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		runID, specJSON, "pending", now, now)

	return err
}

// UpdateRunStatus updates the run status
func UpdateRunStatus(runID string, status string) error {
	now := time.Now().UTC()
	_, err := db.Exec(`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`, status, now, runID)

	return err
}

// SaveRunError records an error for a run
func SaveRunError(runID string, err error) error {
	if err == nil {
		return nil
	}

	now := time.Now().UTC()
	_, e := db.Exec(`INSERT INTO run_errors (run_id, error_message, created_at) VALUES (?, ?, ?)`,
		runID, err.Error(), now)

	return e
}

// SaveRunLog records one structured progress line for a run
func SaveRunLog(runID, stage, level, message string, fields map[string]interface{}) error {
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		fieldsJSON = []byte("{}")
	}

	now := time.Now().UTC()
	_, e := db.Exec(`INSERT INTO run_logs (run_id, stage, level, message, fields, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		runID, stage, level, message, string(fieldsJSON), now)

	return e
}

// SaveOutputFile registers a produced artifact
func SaveOutputFile(file model.OutputFile) error {
	_, err := db.Exec(`INSERT INTO output_files (run_id, query_name, filename, format, row_count, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		file.RunID, file.QueryName, file.Filename, file.Format, file.RowCount, file.CreatedAt)

	return err
}

// ListRuns returns all runs with basic info, newest first
func ListRuns() ([]map[string]interface{}, error) {
	rows, err := db.Query(`SELECT id, status, created_at, updated_at FROM runs ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []map[string]interface{}

	for rows.Next() {
		var id, status string

		var createdAt, updatedAt time.Time

		if err := rows.Scan(&id, &status, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		runs = append(runs, map[string]interface{}{
			"id":        id,
			"status":    status,
			"createdAt": createdAt,
			"updatedAt": updatedAt,
		})
	}

	return runs, rows.Err()
}

// GetRun fetches the full spec and status of one run
func GetRun(runID string) (map[string]interface{}, error) {
	var (
		specJSON             string
		status               string
		createdAt, updatedAt time.Time
	)

	err := db.QueryRow(`SELECT spec, status, created_at, updated_at FROM runs WHERE id = ?`, runID).
		Scan(&specJSON, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	var spec model.ExportJobSpec
	if err := json.Unmarshal([]byte(specJSON), &spec); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"id":        runID,
		"spec":      spec,
		"status":    status,
		"createdAt": createdAt,
		"updatedAt": updatedAt,
	}, nil
}

// GetRunErrors returns all errors recorded for a run
func GetRunErrors(runID string) ([]map[string]interface{}, error) {
	rows, err := db.Query(`SELECT error_message, created_at FROM run_errors WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runErrors []map[string]interface{}

	for rows.Next() {
		var message string

		var createdAt time.Time

		if err := rows.Scan(&message, &createdAt); err != nil {
			return nil, err
		}

		runErrors = append(runErrors, map[string]interface{}{
			"error":     message,
			"createdAt": createdAt,
		})
	}

	return runErrors, rows.Err()
}

// GetRunLogs returns up to limit structured log lines for a run
func GetRunLogs(runID string, limit int) ([]map[string]interface{}, error) {
	rows, err := db.Query(`SELECT stage, level, message, fields, created_at FROM run_logs WHERE run_id = ? ORDER BY created_at LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []map[string]interface{}

	for rows.Next() {
		var stage, level, message, fieldsJSON string

		var createdAt time.Time

		if err := rows.Scan(&stage, &level, &message, &fieldsJSON, &createdAt); err != nil {
			return nil, err
		}

		var fields map[string]interface{}
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			fields = map[string]interface{}{}
		}

		logs = append(logs, map[string]interface{}{
			"stage":     stage,
			"level":     level,
			"message":   message,
			"fields":    fields,
			"createdAt": createdAt,
		})
	}

	return logs, rows.Err()
}

// GetOutputFiles returns the artifacts produced by a run
func GetOutputFiles(runID string) ([]model.OutputFile, error) {
	rows, err := db.Query(`SELECT query_name, filename, format, row_count, created_at FROM output_files WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []model.OutputFile

	for rows.Next() {
		file := model.OutputFile{RunID: runID}

		if err := rows.Scan(&file.QueryName, &file.Filename, &file.Format, &file.RowCount, &file.CreatedAt); err != nil {
			return nil, err
		}

		files = append(files, file)
	}

	return files, rows.Err()
}
