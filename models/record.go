// Package models defines data structures for the scraper.
package models

import (
	"net/url"
	"time"
)

// Record represents one catalogue item scraped from its detail page.
type Record struct {
	Title      string    `csv:"title" json:"title"`
	ExternalID string    `csv:"upc" json:"upc"`
	Price      string    `csv:"price" json:"price"`
	Available  int       `csv:"available" json:"available"`
	Reviews    int       `csv:"reviews" json:"reviews"`
	Rating     int       `csv:"rating" json:"rating"`
	URL        string    `csv:"url" json:"url"`
	ScrapedAt  time.Time `csv:"scraped_at" json:"scraped_at"`
}

// ListingPage is a numbered catalogue page. It has no identity beyond Index.
type ListingPage struct {
	Index int
	URL   *url.URL
}

// CrawlResult holds the overall result of one crawl run.
type CrawlResult struct {
	RunID          string
	Records        []*Record
	StartTime      time.Time
	EndTime        time.Time
	TotalCount     int
	ListingPages   int
	WalkState      string
	StopIndex      int
	StopCause      error
	DetailAttempts int
	DetailFailures int
	LinkFailures   int
	ErrorsByType   map[string]int
}
