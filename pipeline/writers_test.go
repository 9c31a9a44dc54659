package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalogue/models"
)

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	rec := testRecord("http://example.test/catalogue/book_1/index.html")

	if err := writer.Write([]*models.Record{rec}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "title" || records[0][1] != "upc" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][2] != "£10.00" || records[1][3] != "19" || records[1][5] != "2" {
		t.Fatalf("unexpected row: %v", records[1])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	rec := testRecord("http://example.test/catalogue/book_1/index.html")

	if err := writer.Write([]*models.Record{rec}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	count := 0
	for scanner.Scan() {
		var decoded models.Record
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		if decoded.ExternalID != "upc-1" || decoded.Rating != 2 {
			t.Fatalf("unexpected decoded record: %+v", decoded)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if count != 1 {
		t.Fatalf("json lines=%d, want 1", count)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "records.csv")
	jsonPath := filepath.Join(dir, "records.jsonl")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	rec := testRecord("http://example.test/catalogue/book_1/index.html")

	if err := writer.Write([]*models.Record{rec}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestSQLiteWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "records.db")

	writer, err := NewSQLiteWriter(path, "run-1")
	if err != nil {
		t.Fatalf("create sqlite writer: %v", err)
	}
	t.Cleanup(func() { _ = writer.Close() })

	first := testRecord("http://example.test/catalogue/book_1/index.html")
	second := testRecord("http://example.test/catalogue/book_2/index.html")
	if err := writer.Write([]*models.Record{first, second}); err != nil {
		t.Fatalf("write sqlite: %v", err)
	}
	// Same URL in the same run replaces the row.
	if err := writer.Write([]*models.Record{first}); err != nil {
		t.Fatalf("rewrite sqlite: %v", err)
	}

	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	count, err := writer.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("rows=%d, want 2", count)
	}
}

func TestWritersValidateWithoutRecords(t *testing.T) {
	dir := t.TempDir()

	csvWriter, err := NewCSVWriter(filepath.Join(dir, "empty.csv"))
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	defer csvWriter.Close()
	jsonWriter, err := NewJSONWriter(filepath.Join(dir, "empty.jsonl"))
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	defer jsonWriter.Close()

	// A crawl that finds nothing still produces valid, header-only output.
	if err := csvWriter.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := jsonWriter.Validate(); err != nil {
		t.Fatalf("validate json: %v", err)
	}
	if csvWriter.Records() != 0 || jsonWriter.Records() != 0 {
		t.Fatalf("expected no records")
	}
}

func TestCSVWriterCountsRecords(t *testing.T) {
	writer, err := NewCSVWriter(filepath.Join(t.TempDir(), "nested", "records.csv"))
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	defer writer.Close()

	batch := []*models.Record{
		testRecord("http://example.test/catalogue/book_1/index.html"),
		testRecord("http://example.test/catalogue/book_2/index.html"),
	}
	for i := 0; i < 3; i++ {
		if err := writer.Write(batch); err != nil {
			t.Fatalf("write csv: %v", err)
		}
	}
	if got := writer.Records(); got != 6 {
		t.Fatalf("records=%d, want 6", got)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
}

func testRecord(url string) *models.Record {
	return &models.Record{
		Title:      "Test Book",
		ExternalID: "upc-1",
		Price:      "£10.00",
		Available:  19,
		Reviews:    0,
		Rating:     2,
		URL:        url,
		ScrapedAt:  time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC),
	}
}
