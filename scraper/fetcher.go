package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/aluiziolira/go-scrape-catalogue/config"
)

// Fetcher retrieves the body of a page. Failures are returned as FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string) (string, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (string, error) {
	return f(ctx, rawURL)
}

// CollyFetcher fetches pages through a shared colly collector. Each call
// runs on a clone so callbacks never leak between requests.
type CollyFetcher struct {
	collector *colly.Collector
}

// NewCollyFetcher builds a synchronous collector configured from cfg.
func NewCollyFetcher(cfg *config.Config) (*CollyFetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
	)
	// Pages are attempted once per run, but repeated runs share the collector.
	collector.AllowURLRevisit = true
	// colly only accepts statuses below 203; every response is delivered so
	// Fetch can apply the full 2xx range itself.
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(cfg.Timeout)
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: cfg.ListingConcurrency + cfg.DetailConcurrency,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.ListingConcurrency + cfg.DetailConcurrency,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &CollyFetcher{collector: collector}, nil
}

// WithTransport swaps the HTTP transport used by every request.
func (f *CollyFetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// Fetch performs a GET on rawURL and returns the body text.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", FetchError{URL: rawURL, Err: err}
	}

	collector := f.collector.Clone()

	var (
		body       string
		statusCode int
		fetchErr   error
		responded  bool
	)
	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		responded = true
		statusCode = r.StatusCode
		body = string(r.Body)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		fetchErr = err
	})

	visitErr := collector.Visit(rawURL)
	if fetchErr == nil {
		fetchErr = visitErr
	}
	if err := ctx.Err(); err != nil {
		return "", FetchError{URL: rawURL, StatusCode: statusCode, Err: err}
	}
	if fetchErr != nil {
		return "", newFetchError(rawURL, fetchErr, statusCode)
	}
	if !responded {
		return "", newFetchError(rawURL, fmt.Errorf("no response"), statusCode)
	}
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return "", newFetchError(rawURL, errors.New(http.StatusText(statusCode)), statusCode)
	}
	return body, nil
}
