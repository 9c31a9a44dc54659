// Package siteurl builds absolute catalogue URLs from a configured base.
package siteurl

import (
	"fmt"
	"iter"
	"net/url"
	"strings"
)

const catalogueDir = "catalogue/"

// BuildError reports a relative path or base that does not form a valid URL.
type BuildError struct {
	Input string
	Err   error
}

func (e BuildError) Error() string {
	return fmt.Sprintf("build url from %q: %v", e.Input, e.Err)
}

func (e BuildError) Unwrap() error {
	return e.Err
}

// Builder resolves catalogue paths against a fixed base URL.
type Builder struct {
	base      *url.URL
	catalogue *url.URL
}

// New parses base and returns a Builder rooted at it. The base path is
// always treated as a directory.
func New(base string) (*Builder, error) {
	parsed, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		return nil, BuildError{Input: base, Err: err}
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, BuildError{Input: base, Err: fmt.Errorf("base url must be absolute")}
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""

	b := &Builder{base: parsed}
	catalogue, err := b.Base(catalogueDir)
	if err != nil {
		return nil, err
	}
	b.catalogue = catalogue
	return b, nil
}

// Base joins rel onto the base URL. A leading slash stays under the base
// path instead of escaping to the host root.
func (b *Builder) Base(rel string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimLeft(rel, "/"))
	if err != nil {
		return nil, BuildError{Input: rel, Err: err}
	}
	return b.base.ResolveReference(ref), nil
}

// Listing returns the URL of the listing page at index.
func (b *Builder) Listing(index int) *url.URL {
	return b.catalogue.ResolveReference(&url.URL{Path: fmt.Sprintf("page-%d.html", index)})
}

// Detail resolves a detail-page href found on a listing page. Any number of
// leading "../" segments are dropped before joining onto the catalogue path.
func (b *Builder) Detail(href string) (*url.URL, error) {
	rest := href
	for strings.HasPrefix(rest, "../") {
		rest = strings.TrimPrefix(rest, "../")
	}
	ref, err := url.Parse(rest)
	if err != nil {
		return nil, BuildError{Input: href, Err: err}
	}
	return b.catalogue.ResolveReference(ref), nil
}

// Listings yields listing URLs from index 1. When maxPages is zero the
// sequence is unbounded and ends only when the consumer stops.
func (b *Builder) Listings(maxPages int) iter.Seq2[int, *url.URL] {
	return func(yield func(int, *url.URL) bool) {
		for index := 1; maxPages <= 0 || index <= maxPages; index++ {
			if !yield(index, b.Listing(index)) {
				return
			}
		}
	}
}

// String returns the normalised base URL.
func (b *Builder) String() string {
	return b.base.String()
}
