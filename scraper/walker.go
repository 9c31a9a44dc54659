package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/parser"
	"github.com/aluiziolira/go-scrape-catalogue/siteurl"
)

// WalkState describes how a listing walk ended.
type WalkState int

const (
	// WalkRunning is the state while pages are still being consumed.
	WalkRunning WalkState = iota
	// WalkExhausted means the catalogue ran out of listing pages.
	WalkExhausted
	// WalkInterrupted means a page after the first failed for a reason other
	// than "not found", or the walk was cancelled.
	WalkInterrupted
	// WalkAborted means the very first listing page failed.
	WalkAborted
)

func (s WalkState) String() string {
	switch s {
	case WalkRunning:
		return "running"
	case WalkExhausted:
		return "exhausted"
	case WalkInterrupted:
		return "interrupted"
	case WalkAborted:
		return "aborted"
	default:
		return fmt.Sprintf("WalkState(%d)", int(s))
	}
}

// WalkOutcome summarises a finished walk. StopIndex is the first index that
// was not consumed.
type WalkOutcome struct {
	State     WalkState
	Pages     int
	StopIndex int
	Cause     error
}

var errStoppedByConsumer = errors.New("walk stopped by consumer")

type listingResult struct {
	page models.ListingPage
	doc  *parser.Document
	err  error
}

// Walker pages through listing URLs with a bounded look-ahead window and
// hands parsed pages to the caller strictly in index order.
type Walker struct {
	urls     *siteurl.Builder
	fetcher  Fetcher
	window   int
	maxPages int
	strict   bool
	metrics  *Metrics
}

// NewWalker returns a Walker that keeps up to window fetches in flight.
// With strict set, only a "not found" response counts as exhaustion.
func NewWalker(urls *siteurl.Builder, fetcher Fetcher, window, maxPages int, strict bool, metrics *Metrics) *Walker {
	if window <= 0 {
		window = 1
	}
	return &Walker{
		urls:     urls,
		fetcher:  fetcher,
		window:   window,
		maxPages: maxPages,
		strict:   strict,
		metrics:  metrics,
	}
}

// Walk fetches listing pages from index 1 and calls yield for each one in
// order until a page fails, maxPages is reached, or yield returns false.
// Pages at or after the first failing index are never yielded, even when
// they were fetched ahead successfully.
func (w *Walker) Walk(ctx context.Context, yield func(models.ListingPage, *parser.Document) bool) WalkOutcome {
	lookahead, cancel := context.WithCancel(ctx)
	defer cancel()

	// A slot is held from launch until the consumer has taken its result,
	// so fetched-but-unconsumed pages count against the window.
	sem := semaphore.NewWeighted(int64(w.window))
	slots := make(chan chan listingResult, w.window)

	go func() {
		defer close(slots)
		for index, u := range w.urls.Listings(w.maxPages) {
			if err := sem.Acquire(lookahead, 1); err != nil {
				return
			}
			slot := make(chan listingResult, 1)
			slots <- slot
			page := models.ListingPage{Index: index, URL: u}
			go func() {
				slot <- w.fetch(lookahead, page)
			}()
		}
	}()

	outcome := WalkOutcome{State: WalkRunning}
	for slot := range slots {
		res := <-slot
		sem.Release(1)

		if res.err != nil {
			outcome.State, outcome.Cause = w.classifyStop(ctx, res.page.Index, res.err)
			outcome.StopIndex = res.page.Index
			break
		}
		outcome.Pages++
		w.metrics.IncListingPages()
		if !yield(res.page, res.doc) {
			outcome.State = WalkInterrupted
			outcome.Cause = ctx.Err()
			if outcome.Cause == nil {
				outcome.Cause = errStoppedByConsumer
			}
			outcome.StopIndex = res.page.Index + 1
			break
		}
	}

	cancel()
	// Discard anything fetched past the stop point.
	for range slots {
	}

	if outcome.State == WalkRunning {
		outcome.State = WalkExhausted
		outcome.StopIndex = outcome.Pages + 1
		if err := ctx.Err(); err != nil {
			outcome.State = WalkInterrupted
			outcome.Cause = err
		}
	}
	return outcome
}

func (w *Walker) fetch(ctx context.Context, page models.ListingPage) listingResult {
	rawURL := page.URL.String()
	start := time.Now()
	w.metrics.IncRequest(stageListing)

	body, err := w.fetcher.Fetch(ctx, rawURL)
	w.metrics.ObserveDuration(stageListing, time.Since(start))
	if err != nil {
		return listingResult{page: page, err: err}
	}
	doc, err := parser.Parse(body)
	if err != nil {
		return listingResult{page: page, err: err}
	}
	slog.Debug("listing page fetched", slog.Int("page", page.Index), slog.String("url", rawURL))
	return listingResult{page: page, doc: doc}
}

func (w *Walker) classifyStop(ctx context.Context, index int, err error) (WalkState, error) {
	label := errorTypeLabel(err)
	w.metrics.IncError(stageListing, label)

	switch {
	case ctx.Err() != nil:
		return WalkInterrupted, ctx.Err()
	case index == 1:
		return WalkAborted, err
	case !w.strict, IsNotFound(err):
		return WalkExhausted, err
	default:
		return WalkInterrupted, err
	}
}
