package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/spf13/cast"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/models"
)

// ErrSchema marks a dataset that does not match the listings schema.
var ErrSchema = errors.New("dataset schema violation")

var requiredColumns = []string{
	models.ColumnPrice,
	models.ColumnLastReview,
	models.ColumnLongitude,
	models.ColumnLatitude,
}

// LoadListings reads a listings CSV file fully into memory.
func LoadListings(path string) (*models.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	ds, err := ReadListings(f)
	if err != nil {
		return nil, fmt.Errorf("csv: load %q: %w", path, err)
	}
	return ds, nil
}

// ReadListings parses a listings CSV with a header row.
// The header must contain the price, last_review, longitude and latitude
// columns; all other columns are carried through untouched.
func ReadListings(r io.Reader) (*models.Dataset, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: missing header row", ErrSchema)
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	ds := &models.Dataset{Header: header}
	for _, col := range requiredColumns {
		if ds.Index(col) < 0 {
			return nil, fmt.Errorf("%w: missing column %q", ErrSchema, col)
		}
	}
	priceIdx := ds.Index(models.ColumnPrice)
	lonIdx := ds.Index(models.ColumnLongitude)
	latIdx := ds.Index(models.ColumnLatitude)

	for row := 1; ; row++ {
		cells, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, csv.ErrFieldCount) {
				return nil, fmt.Errorf("%w: row %d: %v", ErrSchema, row, err)
			}
			return nil, fmt.Errorf("csv: read row %d: %w", row, err)
		}

		l := &models.Listing{Row: row, Cells: cells}
		if l.Price, err = parseNumber(cells[priceIdx]); err != nil {
			return nil, fmt.Errorf("%w: row %d: column %q: %v", ErrSchema, row, models.ColumnPrice, err)
		}
		if l.Longitude, err = parseNumber(cells[lonIdx]); err != nil {
			return nil, fmt.Errorf("%w: row %d: column %q: %v", ErrSchema, row, models.ColumnLongitude, err)
		}
		if l.Latitude, err = parseNumber(cells[latIdx]); err != nil {
			return nil, fmt.Errorf("%w: row %d: column %q: %v", ErrSchema, row, models.ColumnLatitude, err)
		}
		ds.Listings = append(ds.Listings, l)
	}

	return ds, nil
}

// parseNumber reads a numeric cell. An empty cell is a missing value and
// loads as NaN, which fails every range check downstream.
func parseNumber(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return math.NaN(), nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return v, nil
}
