package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Document is a parsed HTML page. Malformed markup still yields a
// best-effort tree; missing content shows up as empty query results.
type Document struct {
	doc *goquery.Document
}

// Element is a single node matched by a selector.
type Element struct {
	sel *goquery.Selection
}

// Parse builds a Document from page text.
func Parse(text string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{doc: doc}, nil
}

// Query returns every element matching m in document order.
func (d *Document) Query(m goquery.Matcher) []Element {
	matches := d.doc.FindMatcher(m)
	out := make([]Element, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		out = append(out, Element{sel: s})
	})
	return out
}

// First returns the first element matching m.
func (d *Document) First(m goquery.Matcher) (Element, bool) {
	match := d.doc.FindMatcher(m).First()
	if match.Length() == 0 {
		return Element{}, false
	}
	return Element{sel: match}, true
}

// Text returns the combined text of the element and its descendants.
func (e Element) Text() string {
	if e.sel == nil {
		return ""
	}
	return e.sel.Text()
}

// Attr returns the named attribute and whether it is present.
func (e Element) Attr(name string) (string, bool) {
	if e.sel == nil {
		return "", false
	}
	return e.sel.Attr(name)
}
