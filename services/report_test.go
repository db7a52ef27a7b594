package services

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/models"
)

func cleanedSample(t *testing.T) (*models.Dataset, *models.CleaningReport) {
	t.Helper()
	ds := load(t, header+
		"1,Manhattan,200,-73.9,40.7,\n"+
		"2,Brooklyn,50,-73.9,40.7,\n"+
		"3,Manhattan,120,-73.9,40.7,\n"+
		"4,Queens,300,-73.9,40.7,\n")
	report, err := newTestCleaner(t.TempDir()).Clean(ds, 0, 1000)
	require.NoError(t, err)
	return ds, report
}

func TestReportPrices(t *testing.T) {
	ds, report := cleanedSample(t)
	r := NewReportService(newTestLogger()).Generate(ds, report)

	assert.Equal(t, 167.50, r.AveragePrice)
	assert.Equal(t, 50.0, r.MinPrice)
	assert.Equal(t, 300.0, r.MaxPrice)
	require.NotNil(t, r.MostExpensive)
	assert.Equal(t, "4", r.MostExpensive.Cells[0])
	assert.Equal(t, 4, r.OutputRows)
}

func TestReportBoroughGrouping(t *testing.T) {
	ds, report := cleanedSample(t)
	r := NewReportService(newTestLogger()).Generate(ds, report)

	assert.Equal(t, map[string]int{"Manhattan": 2, "Brooklyn": 1, "Queens": 1}, r.RowsByBorough)
}

func TestReportEmptyDataset(t *testing.T) {
	r := NewReportService(newTestLogger()).Generate(&models.Dataset{}, nil)
	assert.Zero(t, r.OutputRows)
	assert.Nil(t, r.MostExpensive)
	assert.Empty(t, r.RowsByBorough)
}

func TestReportPrint(t *testing.T) {
	ds, report := cleanedSample(t)
	svc := NewReportService(newTestLogger())
	r := svc.Generate(ds, report)

	var buf bytes.Buffer
	svc.Print(&buf, r)
	out := buf.String()

	assert.Contains(t, out, "Input rows           : 4")
	assert.Contains(t, out, "Average price : $167.50")
	assert.Contains(t, out, "Manhattan")
}

func TestReportPrintFreeListings(t *testing.T) {
	ds := load(t, header+
		"1,Manhattan,0,-73.9,40.7,\n"+
		"2,Brooklyn,0,-73.9,40.7,\n")
	report, err := newTestCleaner(t.TempDir()).Clean(ds, 0, 100)
	require.NoError(t, err)

	svc := NewReportService(newTestLogger())
	r := svc.Generate(ds, report)
	assert.Equal(t, 2, r.PricedRows)

	var buf bytes.Buffer
	svc.Print(&buf, r)
	assert.Contains(t, buf.String(), "Average price : $0.00")
	assert.NotContains(t, buf.String(), "No price data available")
}

func TestReportPrintNoPrices(t *testing.T) {
	var buf bytes.Buffer
	NewReportService(newTestLogger()).Print(&buf, &models.CleaningReport{})
	assert.Contains(t, buf.String(), "No price data available")
}
