package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL            string        `yaml:"base_url"`
	MaxPages           int           `yaml:"max_pages"` // 0 walks until the catalogue is exhausted
	ListingConcurrency int           `yaml:"listing_concurrency"`
	DetailConcurrency  int           `yaml:"detail_concurrency"`
	Delay              time.Duration `yaml:"delay"`
	RandomDelay        time.Duration `yaml:"random_delay"`
	Timeout            time.Duration `yaml:"timeout"`
	StrictExhaustion   bool          `yaml:"strict_exhaustion"`
	OutputFile         string        `yaml:"output_file"`
	OutputFormat       string        `yaml:"output_format"` // csv, json, dual, or sqlite
	BatchSize          int           `yaml:"batch_size"`
	PipelineBufferSize int           `yaml:"pipeline_buffer_size"`
	DedupeMaxSize      int           `yaml:"dedupe_max_size"` // 0 keeps every extracted record
	UserAgent          string        `yaml:"user_agent"`
	MetricsAddr        string        `yaml:"metrics_addr"`
	Verbose            bool          `yaml:"verbose"`
}

// DefaultConfig returns conservative defaults for the demo target.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:            "https://books.toscrape.com/",
		MaxPages:           0,
		ListingConcurrency: 10,
		DetailConcurrency:  10,
		Delay:              0,
		RandomDelay:        0,
		Timeout:            10 * time.Second,
		StrictExhaustion:   true,
		OutputFile:         "output/books.csv",
		OutputFormat:       "csv",
		BatchSize:          64,
		PipelineBufferSize: 512,
		DedupeMaxSize:      0,
		UserAgent:          "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		MetricsAddr:        "",
		Verbose:            false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a scheme and host")
	}

	if c.MaxPages < 0 {
		return fmt.Errorf("max pages cannot be negative")
	}
	if c.ListingConcurrency <= 0 {
		return fmt.Errorf("listing concurrency must be positive")
	}
	if c.DetailConcurrency <= 0 {
		return fmt.Errorf("detail concurrency must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	switch c.OutputFormat {
	case "csv", "json", "dual", "sqlite":
	default:
		return fmt.Errorf("output format must be csv, json, dual, or sqlite")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.PipelineBufferSize <= 0 {
		return fmt.Errorf("pipeline buffer size must be positive")
	}
	if c.DedupeMaxSize < 0 {
		return fmt.Errorf("dedupe max size cannot be negative")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
