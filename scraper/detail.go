package scraper

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/parser"
	"github.com/aluiziolira/go-scrape-catalogue/pipeline"
)

// RecordSink receives successfully extracted records.
type RecordSink interface {
	Process(records ...*models.Record) error
}

// DetailPipeline fetches detail pages with at most limit requests in
// flight and forwards every record it can extract. Failures stay local to
// the URL that caused them.
type DetailPipeline struct {
	fetcher   Fetcher
	extractor *parser.Extractor
	sink      RecordSink
	metrics   *Metrics

	group errgroup.Group

	attempts atomic.Int64
	failures atomic.Int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// NewDetailPipeline returns a pipeline bounded to limit concurrent fetches.
func NewDetailPipeline(fetcher Fetcher, extractor *parser.Extractor, sink RecordSink, limit int, metrics *Metrics) *DetailPipeline {
	if limit <= 0 {
		limit = 1
	}
	d := &DetailPipeline{
		fetcher:      fetcher,
		extractor:    extractor,
		sink:         sink,
		metrics:      metrics,
		errorsByType: make(map[string]int),
	}
	d.group.SetLimit(limit)
	return d
}

// Submit schedules link for scraping, blocking while the window is full.
// It reports false once ctx is done.
func (d *DetailPipeline) Submit(ctx context.Context, link *url.URL) bool {
	if ctx.Err() != nil {
		return false
	}
	rawURL := link.String()
	d.group.Go(func() error {
		d.scrape(ctx, rawURL)
		return nil
	})
	return true
}

// Wait blocks until every submitted URL has finished.
func (d *DetailPipeline) Wait() {
	_ = d.group.Wait()
}

// Attempts returns how many detail fetches were started.
func (d *DetailPipeline) Attempts() int {
	return int(d.attempts.Load())
}

// Failures returns how many detail URLs produced no record.
func (d *DetailPipeline) Failures() int {
	return int(d.failures.Load())
}

// ErrorsByType returns failure counts keyed by error label.
func (d *DetailPipeline) ErrorsByType() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.errorsByType))
	for k, v := range d.errorsByType {
		out[k] = v
	}
	return out
}

func (d *DetailPipeline) scrape(ctx context.Context, rawURL string) {
	d.attempts.Add(1)
	d.metrics.IncRequest(stageDetail)
	start := time.Now()

	body, err := d.fetcher.Fetch(ctx, rawURL)
	d.metrics.ObserveDuration(stageDetail, time.Since(start))
	if err != nil {
		d.fail(rawURL, err)
		return
	}

	doc, err := parser.Parse(body)
	if err != nil {
		d.fail(rawURL, err)
		return
	}

	record, err := d.extractor.Record(doc, rawURL)
	if err != nil {
		var extraction parser.ExtractionError
		if errors.As(err, &extraction) {
			d.metrics.IncExtractionFailure(extraction.Field)
		}
		d.fail(rawURL, err)
		return
	}

	d.metrics.IncRecords()
	if err := d.sink.Process(record); err != nil && !errors.Is(err, pipeline.ErrPipelineClosed) {
		slog.Error("aggregator process error", slog.String("url", rawURL), slog.Any("error", err))
	}
}

func (d *DetailPipeline) fail(rawURL string, err error) {
	d.failures.Add(1)
	category := errorTypeLabel(err)

	d.mu.Lock()
	d.errorsByType[category]++
	d.mu.Unlock()

	d.metrics.IncError(stageDetail, category)
	slog.Warn("detail page dropped",
		slog.String("url", rawURL),
		slog.String("category", category),
		slog.Any("error", err),
	)
}
