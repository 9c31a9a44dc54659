package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-catalogue/config"
	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/parser"
	"github.com/aluiziolira/go-scrape-catalogue/pipeline"
	"github.com/aluiziolira/go-scrape-catalogue/siteurl"
)

// Scraper walks the catalogue listing pages and scrapes every detail page
// they link to.
type Scraper struct {
	cfg       *config.Config
	urls      *siteurl.Builder
	extractor *parser.Extractor
	fetcher   Fetcher
	runID     string
	Metrics   *Metrics
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithFetcher replaces the default colly fetcher.
func WithFetcher(f Fetcher) Option {
	return func(s *Scraper) {
		s.fetcher = f
	}
}

// WithRunID sets the identifier reported for the crawl run.
func WithRunID(id string) Option {
	return func(s *Scraper) {
		if id != "" {
			s.runID = id
		}
	}
}

// NewScraper builds a scraper instance configured from cfg. URL and
// selector problems are reported here rather than during the crawl.
func NewScraper(cfg *config.Config, opts ...Option) (*Scraper, error) {
	urls, err := siteurl.New(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}
	extractor, err := parser.NewExtractor(urls)
	if err != nil {
		return nil, fmt.Errorf("selectors: %w", err)
	}

	s := &Scraper{
		cfg:       cfg,
		urls:      urls,
		extractor: extractor,
		runID:     uuid.NewString(),
		Metrics:   NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.fetcher == nil {
		fetcher, err := NewCollyFetcher(cfg)
		if err != nil {
			return nil, err
		}
		s.fetcher = fetcher
	}
	return s, nil
}

// RunID returns the identifier of this scraper's crawl runs.
func (s *Scraper) RunID() string {
	return s.runID
}

// Run crawls the catalogue once. Records flow into agg, which Run closes
// before reading the final count. Per-page failures never fail the run;
// the returned error only reports an aggregator shutdown problem.
func (s *Scraper) Run(ctx context.Context, agg *pipeline.Aggregator) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	detail := NewDetailPipeline(s.fetcher, s.extractor, agg, s.cfg.DetailConcurrency, s.Metrics)
	walker := NewWalker(s.urls, s.fetcher, s.cfg.ListingConcurrency, s.cfg.MaxPages, s.cfg.StrictExhaustion, s.Metrics)

	linkFailures := 0
	outcome := walker.Walk(ctx, func(page models.ListingPage, doc *parser.Document) bool {
		links, skipped := s.extractor.DetailLinks(doc)
		linkFailures += skipped
		s.Metrics.AddErrors(stageListing, "url_build", skipped)
		slog.Debug("listing page links",
			slog.Int("page", page.Index),
			slog.Int("links", len(links)),
			slog.Int("skipped", skipped),
		)
		for _, link := range links {
			if !detail.Submit(ctx, link) {
				return false
			}
		}
		return true
	})
	s.logOutcome(outcome)

	detail.Wait()
	closeErr := agg.Close()

	result := &models.CrawlResult{
		RunID:          s.runID,
		Records:        agg.Records(),
		StartTime:      start,
		EndTime:        time.Now(),
		TotalCount:     agg.Count(),
		ListingPages:   outcome.Pages,
		WalkState:      outcome.State.String(),
		StopIndex:      outcome.StopIndex,
		StopCause:      outcome.Cause,
		DetailAttempts: detail.Attempts(),
		DetailFailures: detail.Failures(),
		LinkFailures:   linkFailures,
		ErrorsByType:   detail.ErrorsByType(),
	}
	if outcome.State != WalkExhausted && outcome.Cause != nil && !errors.Is(outcome.Cause, context.Canceled) {
		result.ErrorsByType["listing_"+errorTypeLabel(outcome.Cause)]++
	}

	if closeErr != nil {
		return result, fmt.Errorf("close aggregator: %w", closeErr)
	}
	return result, nil
}

func (s *Scraper) logOutcome(outcome WalkOutcome) {
	attrs := []any{
		slog.String("state", outcome.State.String()),
		slog.Int("pages", outcome.Pages),
		slog.Int("stop_index", outcome.StopIndex),
	}
	if outcome.Cause != nil {
		attrs = append(attrs, slog.Any("cause", outcome.Cause))
	}

	switch outcome.State {
	case WalkExhausted:
		slog.Info("listing walk finished", attrs...)
	case WalkAborted:
		slog.Error("first listing page failed, catalogue may be misconfigured", attrs...)
	default:
		slog.Warn("listing walk interrupted before catalogue end", attrs...)
	}
}
