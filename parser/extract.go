package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"

	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/siteurl"
)

// Selectors used against catalogue pages.
const (
	SelectorDetailLink   = "article.product_pod a[title]"
	SelectorTitle        = "div[class$='product_main'] h1"
	SelectorExternalID   = "tbody tr:first-of-type td"
	SelectorPrice        = "div[class$='product_main'] p[class^='price']"
	SelectorAvailability = "div[class$='product_main'] p[class^='instock']"
	SelectorReviews      = "tbody tr:last-of-type td"
	SelectorRating       = "div[class$='product_main'] p[class^='star-rating']"
)

// ErrSelectorNotMatched means a required element is missing from the page.
var ErrSelectorNotMatched = errors.New("selector matched no element")

// ExtractionError reports which record field could not be extracted.
type ExtractionError struct {
	Field string
	Err   error
}

func (e ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Field, e.Err)
}

func (e ExtractionError) Unwrap() error {
	return e.Err
}

// Selectors holds the compiled selectors for listing and detail pages.
type Selectors struct {
	DetailLink   cascadia.Selector
	Title        cascadia.Selector
	ExternalID   cascadia.Selector
	Price        cascadia.Selector
	Availability cascadia.Selector
	Reviews      cascadia.Selector
	Rating       cascadia.Selector
}

// CompileSelectors validates and compiles every selector once.
func CompileSelectors() (*Selectors, error) {
	s := &Selectors{}
	targets := []struct {
		expr string
		dst  *cascadia.Selector
	}{
		{expr: SelectorDetailLink, dst: &s.DetailLink},
		{expr: SelectorTitle, dst: &s.Title},
		{expr: SelectorExternalID, dst: &s.ExternalID},
		{expr: SelectorPrice, dst: &s.Price},
		{expr: SelectorAvailability, dst: &s.Availability},
		{expr: SelectorReviews, dst: &s.Reviews},
		{expr: SelectorRating, dst: &s.Rating},
	}
	for _, target := range targets {
		compiled, err := cascadia.Compile(target.expr)
		if err != nil {
			return nil, fmt.Errorf("compile selector %q: %w", target.expr, err)
		}
		*target.dst = compiled
	}
	return s, nil
}

// Extractor pulls detail links out of listing pages and records out of
// detail pages.
type Extractor struct {
	sel  *Selectors
	urls *siteurl.Builder
	now  func() time.Time
}

// NewExtractor compiles the selectors and binds link resolution to urls.
func NewExtractor(urls *siteurl.Builder) (*Extractor, error) {
	if urls == nil {
		return nil, fmt.Errorf("url builder is nil")
	}
	sel, err := CompileSelectors()
	if err != nil {
		return nil, err
	}
	return &Extractor{sel: sel, urls: urls, now: time.Now}, nil
}

// DetailLinks returns the detail-page URLs referenced by a listing page in
// page order, along with how many anchors were skipped.
func (x *Extractor) DetailLinks(doc *Document) ([]*url.URL, int) {
	anchors := doc.Query(x.sel.DetailLink)
	links := make([]*url.URL, 0, len(anchors))
	skipped := 0
	for _, anchor := range anchors {
		href, ok := anchor.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			skipped++
			continue
		}
		link, err := x.urls.Detail(strings.TrimSpace(href))
		if err != nil {
			skipped++
			slog.Debug("skipping detail link", slog.String("href", href), slog.Any("error", err))
			continue
		}
		links = append(links, link)
	}
	return links, skipped
}

// Record extracts all fields from a detail page. Title, UPC, price and
// rating are required; available and reviews fall back to zero.
func (x *Extractor) Record(doc *Document, pageURL string) (*models.Record, error) {
	title, err := x.requiredText(doc, "title", x.sel.Title)
	if err != nil {
		return nil, err
	}
	upc, err := x.requiredText(doc, "upc", x.sel.ExternalID)
	if err != nil {
		return nil, err
	}
	price, err := x.requiredText(doc, "price", x.sel.Price)
	if err != nil {
		return nil, err
	}
	rating, err := x.rating(doc)
	if err != nil {
		return nil, err
	}

	return &models.Record{
		Title:      title,
		ExternalID: upc,
		Price:      price,
		Available:  x.count(doc, x.sel.Availability),
		Reviews:    x.count(doc, x.sel.Reviews),
		Rating:     rating,
		URL:        pageURL,
		ScrapedAt:  x.now(),
	}, nil
}

func (x *Extractor) requiredText(doc *Document, field string, sel cascadia.Selector) (string, error) {
	elem, ok := doc.First(sel)
	if !ok {
		return "", ExtractionError{Field: field, Err: ErrSelectorNotMatched}
	}
	text := strings.TrimSpace(elem.Text())
	if text == "" {
		return "", ExtractionError{Field: field, Err: fmt.Errorf("empty text")}
	}
	return text, nil
}

func (x *Extractor) count(doc *Document, sel cascadia.Selector) int {
	elem, ok := doc.First(sel)
	if !ok {
		return 0
	}
	return CountOrZero(elem.Text())
}

func (x *Extractor) rating(doc *Document) (int, error) {
	elem, ok := doc.First(x.sel.Rating)
	if !ok {
		return 0, ExtractionError{Field: "rating", Err: ErrSelectorNotMatched}
	}
	class, _ := elem.Attr("class")
	words := strings.Fields(class)
	if len(words) == 0 {
		return 0, ExtractionError{Field: "rating", Err: fmt.Errorf("empty class attribute")}
	}
	rating, err := RatingFromWord(words[len(words)-1])
	if err != nil {
		return 0, ExtractionError{Field: "rating", Err: err}
	}
	return rating, nil
}
