package models

import "time"

// Required column names of a listings dataset.
const (
	ColumnPrice      = "price"
	ColumnLastReview = "last_review"
	ColumnLongitude  = "longitude"
	ColumnLatitude   = "latitude"
)

// Listing is one row of a rental listings dataset.
// The typed fields are the ones cleaning reads; Cells holds the full row in
// the dataset's column order and is what gets written back out.
type Listing struct {
	Row        int // 1-based data row number in the source file
	Price      float64
	LastReview *time.Time
	Longitude  float64
	Latitude   float64
	Cells      []string
}

// Dataset is a fully loaded listings table.
type Dataset struct {
	Header   []string
	Listings []*Listing
}

// Index returns the position of the named column, or -1.
func (d *Dataset) Index(column string) int {
	for i, h := range d.Header {
		if h == column {
			return i
		}
	}
	return -1
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Listings)
}

// CleaningReport holds the per-run statistics of a cleaning pass.
type CleaningReport struct {
	InputRows     int
	PriceDropped  int
	GeoDropped    int
	NullReviews   int
	OutputRows    int
	PricedRows    int
	MinPrice      float64
	MaxPrice      float64
	AveragePrice  float64
	MostExpensive *Listing
	RowsByBorough map[string]int
}
