package pipeline

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"ga4-export/internal/model"
)

// MaxFieldLength bounds every sanitized field, truncation marker included
const MaxFieldLength = 1000

// WriterOptions tunes the streaming writer
type WriterOptions struct {
	ChunkSize      int
	MaxFieldLength int
	Format         string // model.FormatDefault or model.FormatJSONWrap
}

// StreamingWriter buffers normalized records and flushes them to a CSV
// file once the buffer reaches the chunk size. All fields are sanitized
// before writing. When the primary csv writer fails, it degrades to a
// manual line-by-line writer, and finally to an emergency JSON dump so
// buffered data is never silently lost. Add and Finalize are safe for
// concurrent producers.
type StreamingWriter struct {
	mu sync.Mutex

	path        string
	columns     []string
	format      string
	chunkSize   int
	maxFieldLen int

	file          *os.File
	out           io.Writer // normally the file; split out for the fallback paths
	csvw          *csv.Writer
	headerWritten bool

	buffer       []model.Record
	totalRows    int
	successCount int
	errorCount   int
	finalized    bool
}

// NewStreamingWriter creates the output file (and its directory) and
// returns a writer for the given column order.
func NewStreamingWriter(path string, columns []string, opts WriterOptions) (*StreamingWriter, error) {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = model.DefaultChunkSize
	}

	if opts.MaxFieldLength <= 0 {
		opts.MaxFieldLength = MaxFieldLength
	}

	if opts.Format == "" {
		opts.Format = model.FormatDefault
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	return &StreamingWriter{
		path:        path,
		columns:     columns,
		format:      opts.Format,
		chunkSize:   opts.ChunkSize,
		maxFieldLen: opts.MaxFieldLength,
		file:        file,
		out:         file,
		csvw:        csv.NewWriter(file),
		buffer:      make([]model.Record, 0, opts.ChunkSize),
	}, nil
}

// Add appends records to the buffer and flushes once the chunk size is
// reached.
func (w *StreamingWriter) Add(records []model.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return fmt.Errorf("writer for %s is already finalized", w.path)
	}

	w.buffer = append(w.buffer, records...)

	if len(w.buffer) >= w.chunkSize {
		return w.flushLocked()
	}

	return nil
}

// Finalize flushes remaining records, closes the file and returns the
// aggregate statistics.
func (w *StreamingWriter) Finalize() (model.WriterStats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.finalized {
		return w.stats(), nil
	}

	w.finalized = true

	flushErr := w.flushLocked()
	w.csvw.Flush()

	if err := w.file.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("failed to close %s: %w", w.path, err)
	}

	return w.stats(), flushErr
}

// Path returns the output file path
func (w *StreamingWriter) Path() string {
	return w.path
}

func (w *StreamingWriter) stats() model.WriterStats {
	s := model.WriterStats{
		TotalRows:    w.totalRows,
		SuccessCount: w.successCount,
		ErrorCount:   w.errorCount,
	}

	if s.TotalRows > 0 {
		s.SuccessRate = float64(s.SuccessCount) / float64(s.TotalRows) * 100
	}

	return s
}

// flushLocked writes the buffered records through the escalation ladder.
// Rows the primary path confirmed on disk are never replayed by a
// fallback, so a mid-batch failure cannot duplicate them. The caller must
// hold w.mu.
func (w *StreamingWriter) flushLocked() error {
	if len(w.buffer) == 0 {
		return nil
	}

	rows := make([][]string, 0, len(w.buffer))
	for _, rec := range w.buffer {
		rows = append(rows, w.rowFor(rec))
	}

	count := len(w.buffer)

	confirmed, err := w.writeCSV(rows)
	if err == nil {
		w.totalRows += count
		w.successCount += count
		w.buffer = w.buffer[:0]

		return nil
	}

	log.Printf("⚠️ Primary CSV write failed for %s after %d rows: %v (sample: %v)",
		w.path, confirmed, err, sampleRows(rows[confirmed:], 3))

	written, merr := w.writeManual(rows[confirmed:])
	if merr != nil {
		log.Printf("⚠️ Manual row writer failed for %s: %v", w.path, merr)

		dumped := count - confirmed

		if derr := w.emergencyDump(w.buffer[confirmed:]); derr != nil {
			w.totalRows += count
			w.successCount += confirmed
			w.errorCount += dumped
			w.buffer = w.buffer[:0]

			return fmt.Errorf("all write paths failed for %s: %w", w.path, derr)
		}

		log.Printf("🆘 Emergency JSON dump saved %d buffered records for %s", dumped, w.path)

		w.totalRows += count
		w.successCount += confirmed
		w.errorCount += dumped
		w.buffer = w.buffer[:0]

		return nil
	}

	w.totalRows += count
	w.successCount += confirmed + written
	w.errorCount += count - confirmed - written
	w.buffer = w.buffer[:0]

	return nil
}

// writeCSV is the primary write path; it returns how many rows were
// confirmed on disk before any failure. Each row is flushed individually
// so a fallback knows exactly where to resume. The header is emitted
// exactly once, on the first successful flush.
func (w *StreamingWriter) writeCSV(rows [][]string) (int, error) {
	if !w.headerWritten {
		if err := w.csvw.Write(w.header()); err != nil {
			return 0, fmt.Errorf("failed to write header: %w", err)
		}

		w.csvw.Flush()

		if err := w.csvw.Error(); err != nil {
			return 0, fmt.Errorf("failed to write header: %w", err)
		}

		w.headerWritten = true
	}

	for i, row := range rows {
		if err := w.csvw.Write(row); err != nil {
			return i, err
		}

		w.csvw.Flush()

		if err := w.csvw.Error(); err != nil {
			return i, err
		}
	}

	return len(rows), nil
}

// writeManual is the degraded write path: quote every field by hand and
// skip individual rows that fail instead of aborting the whole file.
func (w *StreamingWriter) writeManual(rows [][]string) (int, error) {
	if !w.headerWritten {
		if _, err := io.WriteString(w.out, manualLine(w.header())); err != nil {
			return 0, fmt.Errorf("failed to write header manually: %w", err)
		}

		w.headerWritten = true
	}

	written := 0

	var lastErr error

	for _, row := range rows {
		if _, err := io.WriteString(w.out, manualLine(row)); err != nil {
			lastErr = err
			log.Printf("⚠️ Skipping row in manual writer: %v (sample: %v)", err, sampleRows([][]string{row}, 1))

			continue
		}

		written++
	}

	if written == 0 && lastErr != nil {
		return 0, lastErr
	}

	return written, nil
}

// emergencyDump appends the still-unwritten records as a JSON blob next
// to the output file for postmortem recovery.
func (w *StreamingWriter) emergencyDump(records []model.Record) error {
	dump, err := os.OpenFile(w.path+".emergency.json", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer dump.Close()

	return json.NewEncoder(dump).Encode(records)
}

func (w *StreamingWriter) header() []string {
	if w.format == model.FormatJSONWrap {
		return []string{"data"}
	}

	return w.columns
}

// rowFor sanitizes a record and lays it out in column order, or wraps the
// sanitized record into a single JSON cell in jsonwrap mode.
func (w *StreamingWriter) rowFor(rec model.Record) []string {
	clean := make(map[string]string, len(rec))
	for _, col := range w.columns {
		clean[col] = sanitizeField(rec[col], w.maxFieldLen)
	}

	if w.format == model.FormatJSONWrap {
		data, err := json.Marshal(clean)
		if err != nil {
			// Sanitized string maps always marshal; keep the row anyway
			return []string{""}
		}

		return []string{string(data)}
	}

	row := make([]string, len(w.columns))
	for i, col := range w.columns {
		row[i] = clean[col]
	}

	return row
}

var fieldReplacer = strings.NewReplacer(
	`"`, "'",
	"\r\n", " ",
	"\n", " ",
	"\r", " ",
	"\t", " ",
)

// sanitizeField makes a value safe for delimited output: quotes become
// apostrophes, line breaks and tabs collapse to spaces, surrounding
// whitespace is trimmed and the result is truncated to maxLen with a
// "..." marker. Truncation backs up to a rune boundary so the output is
// always valid UTF-8.
func sanitizeField(value string, maxLen int) string {
	value = strings.TrimSpace(fieldReplacer.Replace(value))

	if maxLen > 3 && len(value) > maxLen {
		cut := maxLen - 3
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}

		value = value[:cut] + "..."
	}

	return value
}

// manualLine renders one CSV line by hand, doubling embedded quotes
func manualLine(fields []string) string {
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}

	return strings.Join(quoted, ",") + "\n"
}

// sampleRows returns up to n rows for postmortem log lines
func sampleRows(rows [][]string, n int) [][]string {
	if len(rows) <= n {
		return rows
	}

	return rows[:n]
}
