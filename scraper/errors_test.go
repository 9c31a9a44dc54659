package scraper

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-scrape-catalogue/parser"
	"github.com/aluiziolira/go-scrape-catalogue/siteurl"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "gone", err: errors.New("Gone"), statusCode: http.StatusGone, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusInternalServerError, expected: "other"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, errorTypeLabel(classifyError(tt.err, tt.statusCode)))
		})
	}
}

func TestErrorTypeLabelLocalFailures(t *testing.T) {
	extraction := parser.ExtractionError{Field: "price", Err: parser.ErrSelectorNotMatched}
	assert.Equal(t, "extraction_price", errorTypeLabel(extraction))

	build := siteurl.BuildError{Input: "%zz", Err: errors.New("invalid escape")}
	assert.Equal(t, "url_build", errorTypeLabel(build))

	assert.Equal(t, "canceled", errorTypeLabel(FetchError{URL: "u", Err: context.Canceled}))
}

func TestFetchErrorUnwrap(t *testing.T) {
	err := newFetchError("http://example.test/catalogue/page-9.html", errors.New("Not Found"), http.StatusNotFound)

	assert.True(t, IsNotFound(err))
	var fetchErr FetchError
	require.ErrorAs(t, error(err), &fetchErr)
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)

	assert.False(t, IsNotFound(newFetchError("u", errors.New("Internal Server Error"), http.StatusInternalServerError)),
		"500 must not be treated as not found")
}
