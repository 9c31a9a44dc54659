package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const testBaseURL = "http://example.test/"

// fakeSite serves pages from memory and records every fetch.
type fakeSite struct {
	mu       sync.Mutex
	pages    map[string]string
	failures map[string]error
	delays   map[string]time.Duration
	calls    map[string]int

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func newFakeSite() *fakeSite {
	return &fakeSite{
		pages:    make(map[string]string),
		failures: make(map[string]error),
		delays:   make(map[string]time.Duration),
		calls:    make(map[string]int),
	}
}

func (f *fakeSite) Fetch(ctx context.Context, rawURL string) (string, error) {
	current := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxInFlight.Load()
		if current <= seen || f.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}

	f.mu.Lock()
	f.calls[rawURL]++
	body, ok := f.pages[rawURL]
	failure := f.failures[rawURL]
	delay := f.delays[rawURL]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", FetchError{URL: rawURL, Err: ctx.Err()}
		}
	}
	if failure != nil {
		return "", failure
	}
	if !ok {
		return "", newFetchError(rawURL, errors.New("Not Found"), http.StatusNotFound)
	}
	return body, nil
}

func (f *fakeSite) callCount(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

func (f *fakeSite) callsWithPrefix(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for u, n := range f.calls {
		if strings.HasPrefix(u, prefix) {
			total += n
		}
	}
	return total
}

func listingURL(index int) string {
	return fmt.Sprintf("%scatalogue/page-%d.html", testBaseURL, index)
}

func detailURL(id int) string {
	return fmt.Sprintf("%scatalogue/item_%d/index.html", testBaseURL, id)
}

// addCatalog registers pages listing pages 1..pages with perPage detail
// links each. Every detail page is valid.
func (f *fakeSite) addCatalog(pages, perPage int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for page := 1; page <= pages; page++ {
		ids := make([]int, 0, perPage)
		for i := 1; i <= perPage; i++ {
			id := (page-1)*perPage + i
			ids = append(ids, id)
			f.pages[detailURL(id)] = buildDetailPage(id, true)
		}
		f.pages[listingURL(page)] = buildListingPage(ids...)
	}
}

func buildListingPage(ids ...int) string {
	var builder strings.Builder
	builder.WriteString("<html><body><section><ol class=\"row\">")
	for i, id := range ids {
		href := fmt.Sprintf("item_%d/index.html", id)
		if i%2 == 1 {
			href = "../../../" + href
		}
		builder.WriteString("<li><article class=\"product_pod\">")
		fmt.Fprintf(&builder, "<div class=\"image_container\"><a href=\"%s\"><img src=\"x.jpg\"></a></div>", href)
		fmt.Fprintf(&builder, "<h3><a href=\"%s\" title=\"Item %d\">Item %d</a></h3>", href, id, id)
		builder.WriteString("</article></li>")
	}
	builder.WriteString("</ol></section></body></html>")
	return builder.String()
}

func buildDetailPage(id int, withPrice bool) string {
	var builder strings.Builder
	builder.WriteString("<html><body><div class=\"content\"><div class=\"col-sm-6 product_main\">")
	fmt.Fprintf(&builder, "<h1>Item %d</h1>", id)
	if withPrice {
		fmt.Fprintf(&builder, "<p class=\"price_color\">£%d.50</p>", id)
	}
	fmt.Fprintf(&builder, "<p class=\"instock availability\"><i class=\"icon-ok\"></i> In stock (%d available)</p>", id%20)
	fmt.Fprintf(&builder, "<p class=\"star-rating %s\"><i class=\"icon-star\"></i></p>", []string{"Zero", "One", "Two", "Three", "Four", "Five"}[id%6])
	builder.WriteString("</div><table class=\"table table-striped\">")
	fmt.Fprintf(&builder, "<tr><th>UPC</th><td>upc-%04d</td></tr>", id)
	builder.WriteString("<tr><th>Product Type</th><td>Books</td></tr>")
	fmt.Fprintf(&builder, "<tr><th>Number of reviews</th><td>%d</td></tr>", id%3)
	builder.WriteString("</table></div></body></html>")
	return builder.String()
}
