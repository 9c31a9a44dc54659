package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalogue/models"
)

// csvHeader mirrors the column order produced by recordRow.
var csvHeader = []string{"title", "upc", "price", "available", "reviews", "rating", "url", "scraped_at"}

func recordRow(rec *models.Record) []string {
	return []string{
		rec.Title,
		rec.ExternalID,
		rec.Price,
		strconv.Itoa(rec.Available),
		strconv.Itoa(rec.Reviews),
		strconv.Itoa(rec.Rating),
		rec.URL,
		rec.ScrapedAt.UTC().Format(time.RFC3339),
	}
}

// outputFile is a buffered file that remembers how many bytes went through
// it, so Validate can confirm everything reached the disk.
type outputFile struct {
	kind    string
	file    *os.File
	buf     *bufio.Writer
	written int64
}

func createOutputFile(kind, filename string) (*outputFile, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s file: %w", kind, err)
	}
	return &outputFile{kind: kind, file: f, buf: bufio.NewWriter(f)}, nil
}

func (o *outputFile) Write(p []byte) (int, error) {
	n, err := o.buf.Write(p)
	o.written += int64(n)
	return n, err
}

func (o *outputFile) flush() error {
	if err := o.buf.Flush(); err != nil {
		return fmt.Errorf("flush %s file: %w", o.kind, err)
	}
	return nil
}

func (o *outputFile) close() error {
	flushErr := o.flush()
	closeErr := o.file.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func (o *outputFile) validate() error {
	if err := o.flush(); err != nil {
		return err
	}
	info, err := o.file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s file: %w", o.kind, err)
	}
	if info.Size() != o.written {
		return fmt.Errorf("%s file holds %d bytes, wrote %d", o.kind, info.Size(), o.written)
	}
	return nil
}

// CSVWriter writes records to CSV, header first.
type CSVWriter struct {
	out     *outputFile
	writer  *csv.Writer
	mu      sync.Mutex
	records int
}

// NewCSVWriter creates filename (and its directory) and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	out, err := createOutputFile("csv", filename)
	if err != nil {
		return nil, err
	}

	cw := &CSVWriter{out: out, writer: csv.NewWriter(out)}
	if err := cw.writeRows([][]string{csvHeader}); err != nil {
		_ = out.close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return cw, nil
}

// Write appends one row per record.
func (cw *CSVWriter) Write(records []*models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, recordRow(rec))
	}
	if err := cw.writeRows(rows); err != nil {
		return fmt.Errorf("write csv records: %w", err)
	}
	cw.records += len(records)
	return nil
}

func (cw *CSVWriter) writeRows(rows [][]string) error {
	if err := cw.writer.WriteAll(rows); err != nil {
		return err
	}
	return cw.out.flush()
}

// Records returns how many data rows were written.
func (cw *CSVWriter) Records() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.records
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		_ = cw.out.close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.out.close()
}

// Validate checks that every byte written has reached the file.
func (cw *CSVWriter) Validate() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.out.validate()
}

// JSONWriter writes newline-delimited JSON records.
type JSONWriter struct {
	out     *outputFile
	encoder *json.Encoder
	mu      sync.Mutex
	records int
}

// NewJSONWriter creates filename (and its directory).
func NewJSONWriter(filename string) (*JSONWriter, error) {
	out, err := createOutputFile("json", filename)
	if err != nil {
		return nil, err
	}
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{out: out, encoder: encoder}, nil
}

// Write appends one JSON object per line.
func (jw *JSONWriter) Write(records []*models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, rec := range records {
		if err := jw.encoder.Encode(rec); err != nil {
			return fmt.Errorf("encode json record %s: %w", rec.URL, err)
		}
		jw.records++
	}
	return jw.out.flush()
}

// Records returns how many lines were written.
func (jw *JSONWriter) Records() int {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.records
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.out.close()
}

// Validate checks that every byte written has reached the file.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	return jw.out.validate()
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
