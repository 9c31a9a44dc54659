package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative listing concurrency",
			mutate: func(cfg *Config) {
				cfg.ListingConcurrency = -1
			},
			wantErr: "listing concurrency",
		},
		{
			name: "zero detail concurrency",
			mutate: func(cfg *Config) {
				cfg.DetailConcurrency = 0
			},
			wantErr: "detail concurrency",
		},
		{
			name: "negative max pages",
			mutate: func(cfg *Config) {
				cfg.MaxPages = -1
			},
			wantErr: "max pages",
		},
		{
			name: "empty base url",
			mutate: func(cfg *Config) {
				cfg.BaseURL = ""
			},
			wantErr: "base URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.BaseURL = "http://"
			},
			wantErr: "base URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
		{
			name: "zero batch size",
			mutate: func(cfg *Config) {
				cfg.BatchSize = 0
			},
			wantErr: "batch size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.MaxPages != 0 {
		t.Fatalf("default max pages = %d, want 0 (until exhausted)", cfg.MaxPages)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCRAPER_BASE_URL", "http://localhost:8080/")
	t.Setenv("SCRAPER_PAGES", "4")
	t.Setenv("SCRAPER_DETAIL_PARALLEL", "3")
	t.Setenv("SCRAPER_FORMAT", "JSON")
	t.Setenv("SCRAPER_STRICT_EXHAUSTION", "false")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.BaseURL != "http://localhost:8080/" {
		t.Fatalf("base url = %q", cfg.BaseURL)
	}
	if cfg.MaxPages != 4 || cfg.DetailConcurrency != 3 {
		t.Fatalf("pages=%d detail=%d, want 4/3", cfg.MaxPages, cfg.DetailConcurrency)
	}
	if cfg.OutputFormat != "json" {
		t.Fatalf("format = %q, want json", cfg.OutputFormat)
	}
	if cfg.StrictExhaustion {
		t.Fatalf("strict exhaustion should be disabled")
	}
}

func TestApplyEnvInvalidInt(t *testing.T) {
	t.Setenv("SCRAPER_LISTING_PARALLEL", "many")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err == nil || !strings.Contains(err.Error(), "SCRAPER_LISTING_PARALLEL") {
		t.Fatalf("expected env parse error, got %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scraper.yaml")
	content := "base_url: http://mirror.test/books/\nmax_pages: 7\ntimeout: 3s\noutput_format: SQLite\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := DefaultConfig()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("load file: %v", err)
	}
	if cfg.BaseURL != "http://mirror.test/books/" || cfg.MaxPages != 7 {
		t.Fatalf("unexpected values: %+v", cfg)
	}
	if cfg.Timeout != 3*time.Second {
		t.Fatalf("timeout = %v, want 3s", cfg.Timeout)
	}
	if cfg.OutputFormat != "sqlite" {
		t.Fatalf("format = %q, want sqlite", cfg.OutputFormat)
	}
	if cfg.ListingConcurrency != DefaultConfig().ListingConcurrency {
		t.Fatalf("absent keys should keep defaults")
	}
}

func TestLoadFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}
