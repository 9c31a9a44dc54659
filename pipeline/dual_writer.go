package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/aluiziolira/go-scrape-catalogue/models"
)

type namedWriter struct {
	name string
	OutputWriter
}

// DualWriter fans every batch out to a CSV and a JSONL file.
type DualWriter struct {
	writers []namedWriter
	mu      sync.Mutex
}

// NewDualWriter opens both outputs, closing the first if the second fails.
func NewDualWriter(csvFilename, jsonFilename string) (*DualWriter, error) {
	csvWriter, err := NewCSVWriter(csvFilename)
	if err != nil {
		return nil, fmt.Errorf("csv output: %w", err)
	}
	jsonWriter, err := NewJSONWriter(jsonFilename)
	if err != nil {
		_ = csvWriter.Close()
		return nil, fmt.Errorf("json output: %w", err)
	}

	return &DualWriter{writers: []namedWriter{
		{name: "csv", OutputWriter: csvWriter},
		{name: "json", OutputWriter: jsonWriter},
	}}, nil
}

// Write stops at the first output that fails.
func (dw *DualWriter) Write(records []*models.Record) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	for _, w := range dw.writers {
		if err := w.Write(records); err != nil {
			return fmt.Errorf("%s write: %w", w.name, err)
		}
	}
	return nil
}

// Close closes every output and joins their errors.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.each("close", OutputWriter.Close)
}

// Validate validates every output and joins their errors.
func (dw *DualWriter) Validate() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.each("validate", OutputWriter.Validate)
}

func (dw *DualWriter) each(op string, fn func(OutputWriter) error) error {
	var errs []error
	for _, w := range dw.writers {
		if err := fn(w.OutputWriter); err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", w.name, op, err))
		}
	}
	return errors.Join(errs...)
}
