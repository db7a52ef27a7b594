package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/models"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/utils"
)

// boroughColumn is optional; when present listings are grouped by it.
const boroughColumn = "neighbourhood_group"

type ReportService struct {
	logger *utils.Logger
}

func NewReportService(logger *utils.Logger) *ReportService {
	return &ReportService{logger: logger}
}

// Generate fills the price and location statistics of report from the
// cleaned dataset. Row counts are expected to be set by the Cleaner already.
func (s *ReportService) Generate(ds *models.Dataset, report *models.CleaningReport) *models.CleaningReport {
	if report == nil {
		report = &models.CleaningReport{InputRows: ds.Len(), OutputRows: ds.Len()}
	}
	report.RowsByBorough = make(map[string]int)

	if ds.Len() == 0 {
		return report
	}

	boroughIdx := ds.Index(boroughColumn)
	var total float64
	priced := 0
	for _, l := range ds.Listings {
		if boroughIdx >= 0 {
			if b := strings.TrimSpace(l.Cells[boroughIdx]); b != "" {
				report.RowsByBorough[b]++
			}
		}
		if math.IsNaN(l.Price) {
			continue
		}
		if priced == 0 || l.Price < report.MinPrice {
			report.MinPrice = l.Price
		}
		if priced == 0 || l.Price > report.MaxPrice {
			report.MaxPrice = l.Price
			report.MostExpensive = l
		}
		total += l.Price
		priced++
	}

	report.PricedRows = priced
	if priced > 0 {
		report.AveragePrice = round2(total / float64(priced))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)
	}

	s.logger.Debug("[report] %d rows, average price %.2f", ds.Len(), report.AveragePrice)
	return report
}

func (s *ReportService) Print(w io.Writer, r *models.CleaningReport) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n%s\n", sep)
	fmt.Fprintf(w, "  BASIC CLEANING REPORT\n")
	fmt.Fprintf(w, "%s\n\n", sep)

	fmt.Fprintf(w, "  Rows\n")
	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  Input rows           : %d\n", r.InputRows)
	fmt.Fprintf(w, "  Dropped (price)      : %d\n", r.PriceDropped)
	fmt.Fprintf(w, "  Dropped (geolocation): %d\n", r.GeoDropped)
	fmt.Fprintf(w, "  Output rows          : %d\n", r.OutputRows)
	fmt.Fprintf(w, "  Without last_review  : %d\n", r.NullReviews)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Price Statistics (per night)\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedRows > 0 {
		fmt.Fprintf(w, "  Average price : $%.2f\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : $%.2f\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : $%.2f\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if len(r.RowsByBorough) > 0 {
		fmt.Fprintf(w, "  Listings by Borough\n")
		fmt.Fprintf(w, "  %s\n", thin)

		type boroughCount struct {
			name  string
			count int
		}
		var counts []boroughCount
		for name, cnt := range r.RowsByBorough {
			counts = append(counts, boroughCount{name, cnt})
		}
		sort.Slice(counts, func(i, j int) bool {
			if counts[i].count != counts[j].count {
				return counts[i].count > counts[j].count
			}
			return counts[i].name < counts[j].name
		})
		for _, bc := range counts {
			fmt.Fprintf(w, "  %-30s %d\n", truncate(bc.name, 28), bc.count)
		}
	}

	fmt.Fprintf(w, "\n%s\n\n", sep)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
