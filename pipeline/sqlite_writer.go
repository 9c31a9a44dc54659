package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aluiziolira/go-scrape-catalogue/models"
)

const recordsSchema = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	url TEXT NOT NULL,
	title TEXT NOT NULL,
	upc TEXT NOT NULL,
	price TEXT NOT NULL,
	available INTEGER NOT NULL,
	reviews INTEGER NOT NULL,
	rating INTEGER NOT NULL,
	scraped_at DATETIME NOT NULL,
	UNIQUE(run_id, url)
);

CREATE INDEX IF NOT EXISTS idx_records_upc ON records(upc);
`

// SQLiteWriter stores records in a SQLite database, one row per record,
// tagged with the crawl run that produced it.
type SQLiteWriter struct {
	db    *sql.DB
	runID string
	mu    sync.Mutex
}

// NewSQLiteWriter opens (or creates) the database at filename.
func NewSQLiteWriter(filename, runID string) (*SQLiteWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filename+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(context.Background(), recordsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", err)
	}

	return &SQLiteWriter{db: db, runID: runID}, nil
}

// Write inserts records in a single transaction. Re-inserting a URL within
// the same run replaces the earlier row.
func (sw *SQLiteWriter) Write(records []*models.Record) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	ctx := context.Background()
	tx, err := sw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO records
			(run_id, url, title, upc, price, available, reviews, rating, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			sw.runID, rec.URL, rec.Title, rec.ExternalID, rec.Price,
			rec.Available, rec.Reviews, rec.Rating, rec.ScrapedAt.UTC(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert record %s: %w", rec.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit records: %w", err)
	}
	return nil
}

// Count returns the number of rows stored for this run.
func (sw *SQLiteWriter) Count() (int, error) {
	var n int
	err := sw.db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM records WHERE run_id = ?", sw.runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close closes the database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.db.Close()
}

// Validate ensures the records table is readable.
func (sw *SQLiteWriter) Validate() error {
	if _, err := sw.Count(); err != nil {
		return fmt.Errorf("validate sqlite output: %w", err)
	}
	return nil
}
