package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-catalogue/config"
	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/pipeline"
	"github.com/aluiziolira/go-scrape-catalogue/scraper"
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		os.Exit(2)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	runID := uuid.NewString()
	slog.Info("starting scrape",
		slog.String("run_id", runID),
		slog.String("base_url", cfg.BaseURL),
		slog.Int("max_pages", cfg.MaxPages),
		slog.Int("listing_window", cfg.ListingConcurrency),
		slog.Int("detail_window", cfg.DetailConcurrency),
	)

	s, err := scraper.NewScraper(cfg, scraper.WithRunID(runID))
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile, runID)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	metricsServer := startMetricsServer(cfg.MetricsAddr, s.Metrics)

	agg := pipeline.NewAggregator(ctx, writer, cfg)
	agg.Start(cfg.DetailConcurrency)
	if cfg.Verbose {
		agg.StartMetricsReporting(10 * time.Second)
	}

	result, err := s.Run(ctx, agg)
	if err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(os.Stdout, result, outputFilename(cfg.OutputFormat, cfg.OutputFile), agg.GetMetrics())
}

// loadConfig resolves configuration from defaults, an optional YAML file,
// SCRAPER_* environment variables and finally flags the user set.
func loadConfig(args []string, usage io.Writer) (*config.Config, error) {
	fs := flag.NewFlagSet("scraper", flag.ContinueOnError)
	fs.SetOutput(usage)

	defaults := config.DefaultConfig()
	configPath := fs.String("config", "", "Path to a YAML configuration file")
	baseURL := fs.String("base-url", defaults.BaseURL, "Base URL to crawl")
	maxPages := fs.Int("pages", defaults.MaxPages, "Maximum listing pages to walk (0 walks until exhausted)")
	listingParallel := fs.Int("listing-parallel", defaults.ListingConcurrency, "Listing pages fetched ahead of the consumer")
	detailParallel := fs.Int("detail-parallel", defaults.DetailConcurrency, "Concurrent detail page fetches")
	delayMs := fs.Int("delay", 0, "Delay between requests (milliseconds)")
	randomDelayMs := fs.Int("random-delay", 0, "Random jitter added to delay (milliseconds)")
	timeout := fs.Duration("timeout", defaults.Timeout, "Per-request timeout")
	strict := fs.Bool("strict-exhaustion", defaults.StrictExhaustion, "Treat only 404/410 listing responses as the catalogue end")
	outputFile := fs.String("output", defaults.OutputFile, "Output file path")
	outputFormat := fs.String("format", defaults.OutputFormat, "Output format: csv, json, dual, or sqlite")
	dedupeSize := fs.Int("dedupe-size", defaults.DedupeMaxSize, "Drop records whose URL was seen among the last N records (0, the default, keeps every record)")
	metricsAddr := fs.String("metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := fs.Bool("v", false, "Enable verbose logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if err := cfg.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	// Only flags given on the command line override file and environment.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "base-url":
			cfg.BaseURL = *baseURL
		case "pages":
			cfg.MaxPages = *maxPages
		case "listing-parallel":
			cfg.ListingConcurrency = *listingParallel
		case "detail-parallel":
			cfg.DetailConcurrency = *detailParallel
		case "delay":
			cfg.Delay = time.Duration(*delayMs) * time.Millisecond
		case "random-delay":
			cfg.RandomDelay = time.Duration(*randomDelayMs) * time.Millisecond
		case "timeout":
			cfg.Timeout = *timeout
		case "strict-exhaustion":
			cfg.StrictExhaustion = *strict
		case "output":
			cfg.OutputFile = *outputFile
		case "format":
			cfg.OutputFormat = strings.ToLower(*outputFormat)
		case "dedupe-size":
			cfg.DedupeMaxSize = *dedupeSize
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "v":
			cfg.Verbose = *verbose
		}
	})
	return cfg, nil
}

func createWriter(format, filename, runID string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename)
	case "sqlite":
		return pipeline.NewSQLiteWriter(outputFilename(format, filename), runID)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// outputFilename swaps a text-format extension for .db when the output is
// a SQLite database, so the default output path stays usable.
func outputFilename(format, filename string) string {
	if format != "sqlite" {
		return filename
	}
	switch ext := filepath.Ext(filename); ext {
	case ".csv", ".json", ".jsonl":
		return strings.TrimSuffix(filename, ext) + ".db"
	}
	return filename
}

func startMetricsServer(addr string, metrics *scraper.Metrics) *http.Server {
	if addr == "" || metrics == nil {
		return nil
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))
	return server
}

func printSummary(w io.Writer, result *models.CrawlResult, outputFile string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "Scrape complete")

	duration := result.EndTime.Sub(result.StartTime)
	itemsPerSec := 0.0
	if duration.Seconds() > 0 {
		itemsPerSec = float64(result.TotalCount) / duration.Seconds()
	}

	fmt.Fprintf(w, "  Run ID:        %s\n", result.RunID)
	fmt.Fprintf(w, "  Total records: %d\n", result.TotalCount)
	fmt.Fprintf(w, "  Listing pages: %d (%s at page %d)\n", result.ListingPages, result.WalkState, result.StopIndex)
	successRate := 0.0
	if result.DetailAttempts > 0 {
		successRate = float64(result.DetailAttempts-result.DetailFailures) / float64(result.DetailAttempts) * 100
	}
	fmt.Fprintf(w, "  Detail pages:  %d attempted, %d dropped\n", result.DetailAttempts, result.DetailFailures)
	fmt.Fprintf(w, "  Success rate:  %.2f%%\n", successRate)
	if result.LinkFailures > 0 {
		fmt.Fprintf(w, "  Bad links:     %d\n", result.LinkFailures)
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(w, "  Error types:   %v\n", result.ErrorsByType)
	}
	if valErrors, ok := metrics["validation_errors"].(map[string]int); ok && len(valErrors) > 0 {
		fmt.Fprintf(w, "  Validation:    %v\n", valErrors)
	}
	fmt.Fprintf(w, "  Duration:      %v\n", duration)
	fmt.Fprintf(w, "  Records/sec:   %.2f\n", itemsPerSec)
	fmt.Fprintf(w, "  Output file:   %s\n", outputFile)
	fmt.Fprintln(w, separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
