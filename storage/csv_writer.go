package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"car-dashboard/models"
)

// CSVWriter exports the cleaned table as a semicolon-delimited UTF-8 file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	w.Comma = ';'

	if err := w.Write(models.ListingColumns); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Write appends every cleaned listing to the file.
func (c *CSVWriter) Write(_ context.Context, res *models.CleanResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, l := range res.Listings {
		if err := c.writer.Write(listingRecord(l)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// listingRecord renders l in models.ListingColumns order.
func listingRecord(l *models.Listing) []string {
	return []string{
		l.Car,
		formatFloat(l.Price),
		l.Body,
		formatFloat(l.Mileage),
		formatFloat(l.EngV),
		l.EngType,
		l.Registration,
		strconv.Itoa(l.Year),
		l.Model,
		l.Drive,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
