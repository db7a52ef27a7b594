package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/models"
)

// CSVWriter writes a dataset to a CSV file: header first, then every row in
// dataset order. No index column is added.
type CSVWriter struct {
	path   string
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path.
// Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	return &CSVWriter{path: path, file: f, writer: csv.NewWriter(f)}, nil
}

// Path returns the file being written.
func (c *CSVWriter) Path() string {
	return c.path
}

// Write writes the header and all rows.
func (c *CSVWriter) Write(ctx context.Context, ds *models.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.writer.Write(ds.Header); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, l := range ds.Listings {
		if err := c.writer.Write(l.Cells); err != nil {
			return fmt.Errorf("csv: write row %d: %w", l.Row, err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	if err := c.writer.Error(); err != nil {
		_ = c.file.Close()
		return fmt.Errorf("csv: flush: %w", err)
	}
	return c.file.Close()
}
