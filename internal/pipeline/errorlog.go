package pipeline

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ga4-export/internal/model"
)

var errorLogHeader = []string{"timestamp", "query_name", "property_id", "error", "context"}

// ErrorLog is the append-only query_errors.csv accumulating per-entity
// query failures across runs. Safe for concurrent workers.
type ErrorLog struct {
	mu    sync.Mutex
	path  string
	file  *os.File
	csvw  *csv.Writer
	count int
}

// OpenErrorLog opens (or creates) the error log, writing the header only
// when the file is new.
func OpenErrorLog(path string) (*ErrorLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create error log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log: %w", err)
	}

	l := &ErrorLog{
		path: path,
		file: file,
		csvw: csv.NewWriter(file),
	}

	info, err := file.Stat()
	if err == nil && info.Size() == 0 {
		if err := l.csvw.Write(errorLogHeader); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write error log header: %w", err)
		}

		l.csvw.Flush()
	}

	return l, nil
}

// Record appends one failure row and flushes immediately so the log
// survives a crash mid-run.
func (l *ErrorLog) Record(qe model.QueryError) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if qe.Timestamp.IsZero() {
		qe.Timestamp = time.Now().UTC()
	}

	row := []string{
		qe.Timestamp.Format(time.RFC3339),
		qe.QueryName,
		qe.PropertyID,
		qe.Error,
		qe.Context,
	}

	// A failed error-log write is only logged to stderr; it must never
	// take the run down.
	if err := l.csvw.Write(row); err != nil {
		fmt.Fprintf(os.Stderr, "query error log write failed: %v\n", err)
		return
	}

	l.csvw.Flush()
	l.count++
}

// Count returns the number of errors recorded through this handle
func (l *ErrorLog) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Close flushes and closes the underlying file
func (l *ErrorLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.csvw.Flush()

	return l.file.Close()
}
