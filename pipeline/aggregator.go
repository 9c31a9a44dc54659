// Package pipeline collects scraped records and streams them to output writers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-catalogue/config"
	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
	// ErrPipelineCloseTimeout is returned when workers fail to drain in time.
	ErrPipelineCloseTimeout = errors.New("pipeline: timed out draining workers")
)

// drainTimeout bounds how long Close waits for workers.
var drainTimeout = 30 * time.Second

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []*models.Record) error
	Close() error
	Validate() error
}

// Aggregator validates, de-duplicates and collects records, flushing them
// to an optional OutputWriter in batches.
type Aggregator struct {
	ctx       context.Context
	writer    OutputWriter
	recordCh  chan *models.Record
	batchSize int

	wg sync.WaitGroup

	seen *lru.Cache[string, struct{}]

	recordsMu sync.Mutex
	records   []*models.Record

	metrics metrics

	mu     sync.Mutex // guards closed/err
	closed bool
	err    error

	closeOnce    sync.Once
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewAggregator builds an aggregator sized from cfg. writer may be nil to
// keep records in memory only.
func NewAggregator(ctx context.Context, writer OutputWriter, cfg *config.Config) *Aggregator {
	if ctx == nil {
		ctx = context.Background()
	}
	bufferSize := cfg.PipelineBufferSize
	if bufferSize <= 0 {
		bufferSize = 512
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}

	a := &Aggregator{
		ctx:       ctx,
		writer:    writer,
		recordCh:  make(chan *models.Record, bufferSize),
		batchSize: batchSize,
		metrics:   newMetrics(),
		shutdown:  make(chan struct{}),
	}
	if cfg.DedupeMaxSize > 0 {
		cache, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
		if err != nil {
			slog.Warn("dedupe cache disabled", slog.Any("error", err))
		} else {
			a.seen = cache
		}
	}
	return a
}

// Start launches worker goroutines.
func (a *Aggregator) Start(workers int) {
	if workers <= 0 {
		workers = 1
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.worker()
	}
}

// Process enqueues records for downstream processing.
func (a *Aggregator) Process(records ...*models.Record) error {
	if len(records) == 0 {
		return nil
	}

	closed, err := a.state()
	if err != nil {
		return err
	}
	if closed {
		return ErrPipelineClosed
	}

	for _, record := range records {
		if record == nil {
			continue
		}
		if err := a.enqueue(record); err != nil {
			return err
		}
	}
	return nil
}

// Close waits for workers to drain and prevents more submissions. It is
// safe to call more than once.
func (a *Aggregator) Close() error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	a.closeOnce.Do(func() {
		close(a.recordCh)
	})

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(drainTimeout):
		a.signalShutdown()
		return ErrPipelineCloseTimeout
	}
	a.signalShutdown()
	return a.Err()
}

// Err returns the first error encountered during processing.
func (a *Aggregator) Err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// Count returns how many records were accepted.
func (a *Aggregator) Count() int {
	return int(a.metrics.processedCount())
}

// Records returns a snapshot of the accepted records.
func (a *Aggregator) Records() []*models.Record {
	a.recordsMu.Lock()
	defer a.recordsMu.Unlock()
	out := make([]*models.Record, len(a.records))
	copy(out, a.records)
	return out
}

// GetMetrics returns a snapshot of the internal counters.
func (a *Aggregator) GetMetrics() map[string]interface{} {
	return a.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (a *Aggregator) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				snapshot := a.GetMetrics()
				validation, _ := snapshot["validation_errors"].(map[string]int)
				slog.Info("aggregator progress",
					slog.Int64("processed", a.metrics.processedCount()),
					slog.Int("validation_errors", len(validation)),
				)
			case <-a.shutdown:
				return
			}
		}
	}()
}

func (a *Aggregator) worker() {
	defer a.wg.Done()

	batch := make([]*models.Record, 0, a.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if a.writer != nil {
			if err := a.writer.Write(batch); err != nil {
				return err
			}
		}
		batch = batch[:0]
		return nil
	}

	for record := range a.recordCh {
		prepared := a.prepare(record)
		if prepared == nil {
			continue
		}
		batch = append(batch, prepared)
		if len(batch) >= a.batchSize {
			if err := flush(); err != nil {
				a.setErr(fmt.Errorf("write batch: %w", err))
				return
			}
		}
	}

	if err := flush(); err != nil {
		a.setErr(fmt.Errorf("write batch: %w", err))
	}
}

func (a *Aggregator) prepare(record *models.Record) *models.Record {
	if err := parser.ValidateRecord(record); err != nil {
		a.metrics.addValidation("invalid_record")
		return nil
	}

	if a.seen != nil {
		if found, _ := a.seen.ContainsOrAdd(record.URL, struct{}{}); found {
			a.metrics.addValidation("duplicate_url")
			return nil
		}
	}

	a.recordsMu.Lock()
	a.records = append(a.records, record)
	a.recordsMu.Unlock()

	a.metrics.incrementProcessed()
	return record
}

func (a *Aggregator) enqueue(record *models.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrPipelineClosed
		}
	}()

	select {
	case <-a.shutdown:
		return ErrPipelineClosed
	case <-a.ctx.Done():
		return a.ctx.Err()
	case a.recordCh <- record:
		return nil
	}
}

func (a *Aggregator) setErr(err error) {
	if err == nil {
		return
	}

	a.mu.Lock()
	if a.err != nil {
		a.mu.Unlock()
		return
	}
	a.err = err
	a.closed = true
	a.mu.Unlock()

	a.signalShutdown()
}

func (a *Aggregator) state() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed, a.err
}

func (a *Aggregator) signalShutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) incrementProcessed() {
	m.mu.Lock()
	m.processed++
	m.mu.Unlock()
}

func (m *metrics) processedCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processed
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_records": m.processed,
		"validation_errors": copyValidation,
	}
}
