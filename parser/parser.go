// Package parser turns catalogue HTML into queryable documents and records.
package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-catalogue/models"
)

// MaxRating is the highest value a record rating can take.
const MaxRating = 5

// ratingWords maps a star-rating class word to its position.
var ratingWords = []string{"Zero", "One", "Two", "Three", "Four", "Five"}

var (
	// ErrNoDigits is returned by ParseCount when the text holds no ASCII digit.
	ErrNoDigits = errors.New("no digits found")
	// ErrUnknownRating is returned for a star-rating word outside Zero..Five.
	ErrUnknownRating = errors.New("unknown rating word")
)

// ValidateRecord ensures the scraper captured the required fields.
func ValidateRecord(r *models.Record) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("record missing title")
	}
	if strings.TrimSpace(r.ExternalID) == "" {
		return fmt.Errorf("record missing upc for %s", r.Title)
	}
	if strings.TrimSpace(r.Price) == "" {
		return fmt.Errorf("record missing price for %s", r.Title)
	}
	if r.Rating < 0 || r.Rating > MaxRating {
		return fmt.Errorf("record rating %d out of range for %s", r.Rating, r.Title)
	}
	if r.Available < 0 || r.Reviews < 0 {
		return fmt.Errorf("record has negative counts for %s", r.Title)
	}
	return nil
}

// ParseCount scans text left to right, skips everything up to the first
// ASCII digit and parses the run of digits that follows.
func ParseCount(text string) (int, error) {
	start := strings.IndexFunc(text, isDigit)
	if start < 0 {
		return 0, ErrNoDigits
	}
	end := start
	for end < len(text) && isDigit(rune(text[end])) {
		end++
	}
	value, err := strconv.ParseUint(text[start:end], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", text[start:end], err)
	}
	return int(value), nil
}

// CountOrZero is ParseCount with any failure mapped to zero.
func CountOrZero(text string) int {
	value, err := ParseCount(text)
	if err != nil {
		return 0
	}
	return value
}

// RatingFromWord converts a star-rating class word to its numeric value.
// Matching is exact: "three" is not a rating.
func RatingFromWord(word string) (int, error) {
	word = strings.TrimSpace(word)
	for i, candidate := range ratingWords {
		if candidate == word {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRating, word)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
