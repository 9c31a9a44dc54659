package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Fetch stages used as metric labels.
const (
	stageListing = "listing"
	stageDetail  = "detail"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	RecordsTotal       prometheus.Counter
	ListingPagesTotal  prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	ExtractionFailures *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"stage"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_records_total",
			Help: "Total number of records sent to the aggregator.",
		},
	)
	listingPages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_listing_pages_total",
			Help: "Listing pages consumed before the walk stopped.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by stage and type.",
		},
		[]string{"stage", "error_type"},
	)
	extractionFailures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_extraction_failures_total",
			Help: "Detail pages dropped because a required field was missing.",
		},
		[]string{"field"},
	)

	registry.MustRegister(requests, requestDuration, records, listingPages, errorsTotal, extractionFailures)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		RecordsTotal:       records,
		ListingPagesTotal:  listingPages,
		ErrorsTotal:        errorsTotal,
		ExtractionFailures: extractionFailures,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(stage string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(stage).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncRecords increments the records counter.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

// IncListingPages increments the consumed listing pages counter.
func (m *Metrics) IncListingPages() {
	if m == nil {
		return
	}
	m.ListingPagesTotal.Inc()
}

// IncError increments the errors counter for a stage and type label.
func (m *Metrics) IncError(stage, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage, errorType).Inc()
}

// AddErrors adds n to the errors counter for a stage and type label.
func (m *Metrics) AddErrors(stage, errorType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage, errorType).Add(float64(n))
}

// IncExtractionFailure counts a dropped record by the field that failed.
func (m *Metrics) IncExtractionFailure(field string) {
	if m == nil {
		return
	}
	m.ExtractionFailures.WithLabelValues(field).Inc()
}
