package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/artifact"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/config"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/models"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/storage"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/utils"
)

var (
	// ErrInvalidParams marks parameters rejected before any I/O.
	ErrInvalidParams = errors.New("invalid cleaning parameters")
	// ErrInvalidDate marks a last_review value no layout could parse.
	ErrInvalidDate = errors.New("invalid last_review date")
)

// Tracker is the slice of a run the Cleaner needs.
type Tracker interface {
	UpdateConfig(ctx context.Context, values map[string]any) error
	UseArtifact(ctx context.Context, ref string) (string, *artifact.Manifest, error)
	LogArtifact(ctx context.Context, a *artifact.Artifact) (*artifact.Manifest, error)
}

// Params are the inputs of one cleaning run.
type Params struct {
	InputArtifact     string
	OutputArtifact    string
	OutputType        string
	OutputDescription string
	MinPrice          float64
	MaxPrice          float64
}

// Validate checks the input contract.
func (p Params) Validate() error {
	var errs []string
	required := func(flag, v string) {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, flag+" is required")
		}
	}
	required("input_artifact", p.InputArtifact)
	required("output_artifact", p.OutputArtifact)
	required("output_type", p.OutputType)
	required("output_description", p.OutputDescription)

	if p.OutputArtifact != "" {
		if err := artifact.ValidateName(p.OutputArtifact); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if math.IsNaN(p.MinPrice) || math.IsInf(p.MinPrice, 0) {
		errs = append(errs, "min_price must be finite")
	}
	if math.IsNaN(p.MaxPrice) || math.IsInf(p.MaxPrice, 0) {
		errs = append(errs, "max_price must be finite")
	}
	if p.MinPrice > p.MaxPrice {
		errs = append(errs, fmt.Sprintf("min_price %v must be <= max_price %v", p.MinPrice, p.MaxPrice))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(errs, "; "))
	}
	return nil
}

// ConfigMap is what gets recorded as the run's parameters.
func (p Params) ConfigMap() map[string]any {
	return map[string]any{
		"input_artifact":     p.InputArtifact,
		"output_artifact":    p.OutputArtifact,
		"output_type":        p.OutputType,
		"output_description": p.OutputDescription,
		"min_price":          p.MinPrice,
		"max_price":          p.MaxPrice,
	}
}

// Result is what a successful run produced.
type Result struct {
	Dataset  *models.Dataset
	Report   *models.CleaningReport
	Manifest *artifact.Manifest
}

// Cleaner drops price outliers and out-of-area listings, coerces
// last_review to a date and republishes the result.
type Cleaner struct {
	logger  *utils.Logger
	profile config.Profile
	workDir string
}

// NewCleaner creates a Cleaner writing its temp file into workDir.
func NewCleaner(logger *utils.Logger, profile config.Profile, workDir string) *Cleaner {
	return &Cleaner{logger: logger, profile: profile, workDir: workDir}
}

// Run downloads the input artifact, cleans it, publishes the output artifact
// and removes the local copy. The local file is left in place if publishing
// fails.
func (c *Cleaner) Run(ctx context.Context, tracker Tracker, p Params) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := tracker.UpdateConfig(ctx, p.ConfigMap()); err != nil {
		return nil, err
	}

	c.logger.Info("[cleaner] Artifact download in progress: %s", p.InputArtifact)
	inputPath, input, err := tracker.UseArtifact(ctx, p.InputArtifact)
	if err != nil {
		return nil, err
	}
	ds, err := storage.LoadListings(inputPath)
	if err != nil {
		return nil, err
	}
	c.logger.Info("[cleaner] Loaded %s: %d rows, %d columns", input.Ref(), ds.Len(), len(ds.Header))

	report, err := c.Clean(ds, p.MinPrice, p.MaxPrice)
	if err != nil {
		return nil, err
	}

	c.logger.Info("[cleaner] Saving the output artifact")
	outPath := filepath.Join(c.workDir, c.profile.OutputFile)
	if err := writeDataset(ctx, outPath, ds); err != nil {
		return nil, err
	}

	out, err := artifact.New(p.OutputArtifact, p.OutputType, p.OutputDescription)
	if err != nil {
		return nil, err
	}
	if err := out.AddFile(outPath); err != nil {
		return nil, err
	}

	c.logger.Info("[cleaner] Logging artifact %s", p.OutputArtifact)
	manifest, err := tracker.LogArtifact(ctx, out)
	if err != nil {
		c.logger.Warn("[cleaner] Publish failed, keeping %s", outPath)
		return nil, err
	}

	if err := os.Remove(outPath); err != nil {
		return nil, fmt.Errorf("cleaner: remove %q: %w", outPath, err)
	}
	c.logger.Info("[cleaner] Artifact %s logged and removed from local storage", manifest.Ref())

	return &Result{Dataset: ds, Report: report, Manifest: manifest}, nil
}

// Clean filters ds in place: price outliers first, then last_review
// coercion, then the bounding box. An unparsable date fails the whole pass.
func (c *Cleaner) Clean(ds *models.Dataset, minPrice, maxPrice float64) (*models.CleaningReport, error) {
	report := &models.CleaningReport{InputRows: ds.Len()}

	c.logger.Info("[cleaner] Dropping outliers outside price range [%v, %v]", minPrice, maxPrice)
	before := ds.Len()
	ds.Listings = filter(ds.Listings, func(l *models.Listing) bool {
		return l.Price >= minPrice && l.Price <= maxPrice
	})
	report.PriceDropped = before - ds.Len()

	c.logger.Info("[cleaner] Converting last_review to datetime values")
	nulls, err := c.coerceLastReview(ds)
	if err != nil {
		return nil, err
	}
	report.NullReviews = nulls

	b := c.profile.Bounds
	c.logger.Info("[cleaner] Dropping rows outside longitude [%v, %v] / latitude [%v, %v]",
		b.MinLongitude, b.MaxLongitude, b.MinLatitude, b.MaxLatitude)
	before = ds.Len()
	ds.Listings = filter(ds.Listings, func(l *models.Listing) bool {
		return b.Contains(l.Longitude, l.Latitude)
	})
	report.GeoDropped = before - ds.Len()
	report.OutputRows = ds.Len()

	c.logger.Info("[cleaner] Cleaned %d → %d listings (price dropped %d, geo dropped %d)",
		report.InputRows, report.OutputRows, report.PriceDropped, report.GeoDropped)
	return report, nil
}

// coerceLastReview parses every last_review cell and rewrites it in
// canonical form. The whole column shares one layout: date-only unless some
// value carries a time of day, widened further for sub-second values and
// non-UTC offsets so nothing parsed is lost on output.
func (c *Cleaner) coerceLastReview(ds *models.Dataset) (int, error) {
	idx := ds.Index(models.ColumnLastReview)
	nulls := 0
	var withTime, withFraction, withOffset bool

	for _, l := range ds.Listings {
		raw := strings.TrimSpace(l.Cells[idx])
		if raw == "" {
			l.LastReview = nil
			nulls++
			continue
		}
		t, err := parseDate(raw, c.profile.DateLayouts)
		if err != nil {
			return 0, fmt.Errorf("cleaner: row %d: %w: %q", l.Row, ErrInvalidDate, raw)
		}
		l.LastReview = &t
		if hasTimeOfDay(t) {
			withTime = true
		}
		if t.Nanosecond() != 0 {
			withFraction = true
		}
		if _, offset := t.Zone(); offset != 0 {
			withOffset = true
		}
	}

	layout := time.DateOnly
	if withTime || withOffset {
		layout = time.DateTime
	}
	if withFraction {
		layout += ".999999999"
	}
	if withOffset {
		layout += "-07:00"
	}
	for _, l := range ds.Listings {
		if l.LastReview == nil {
			l.Cells[idx] = ""
			continue
		}
		l.Cells[idx] = l.LastReview.Format(layout)
	}
	return nulls, nil
}

func parseDate(raw string, layouts []string) (time.Time, error) {
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func hasTimeOfDay(t time.Time) bool {
	return t.Hour() != 0 || t.Minute() != 0 || t.Second() != 0 || t.Nanosecond() != 0
}

func filter(in []*models.Listing, keep func(*models.Listing) bool) []*models.Listing {
	out := in[:0]
	for _, l := range in {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

func writeDataset(ctx context.Context, path string, ds *models.Dataset) error {
	w, err := storage.NewCSVWriter(path)
	if err != nil {
		return err
	}
	if err := w.Write(ctx, ds); err != nil {
		_ = w.Close()
		_ = os.Remove(path)
		return err
	}
	return w.Close()
}
