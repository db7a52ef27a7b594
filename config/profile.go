package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bounds is a geographic bounding box, inclusive on every edge.
type Bounds struct {
	MinLongitude float64 `yaml:"min_longitude"`
	MaxLongitude float64 `yaml:"max_longitude"`
	MinLatitude  float64 `yaml:"min_latitude"`
	MaxLatitude  float64 `yaml:"max_latitude"`
}

// Contains reports whether the point lies inside the box.
// NaN coordinates are never inside.
func (b Bounds) Contains(longitude, latitude float64) bool {
	return longitude >= b.MinLongitude && longitude <= b.MaxLongitude &&
		latitude >= b.MinLatitude && latitude <= b.MaxLatitude
}

// Profile tunes the cleaning step. Everything has a default.
type Profile struct {
	Bounds      Bounds   `yaml:"bounds"`
	DateLayouts []string `yaml:"date_layouts"`
	OutputFile  string   `yaml:"output_file"`
}

// NYCBounds is the New York City box listings must fall in.
var NYCBounds = Bounds{
	MinLongitude: -74.25,
	MaxLongitude: -73.50,
	MinLatitude:  40.5,
	MaxLatitude:  41.2,
}

// DefaultDateLayouts are tried in order when parsing last_review.
// Month and day accept one or two digits. Fractional seconds are accepted
// after any seconds field.
var DefaultDateLayouts = []string{
	"2006-1-2",
	"2006-1-2 15:04:05",
	"2006-1-2T15:04:05",
	"2006-1-2 15:04:05Z07:00",
	"2006-1-2T15:04:05Z07:00",
	"2006/1/2",
	"1/2/2006",
}

// DefaultProfile returns the built-in cleaning profile.
func DefaultProfile() Profile {
	layouts := make([]string, len(DefaultDateLayouts))
	copy(layouts, DefaultDateLayouts)
	return Profile{
		Bounds:      NYCBounds,
		DateLayouts: layouts,
		OutputFile:  "clean_sample.csv",
	}
}

// LoadProfile reads a YAML profile from path, overlaying it on the defaults.
// An empty path returns the defaults.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("config: read profile %q: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("config: parse profile %q: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks that the profile is usable.
func (p Profile) Validate() error {
	var errs []string

	finite := func(name string, v float64) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, name+" must be finite")
		}
	}
	finite("bounds.min_longitude", p.Bounds.MinLongitude)
	finite("bounds.max_longitude", p.Bounds.MaxLongitude)
	finite("bounds.min_latitude", p.Bounds.MinLatitude)
	finite("bounds.max_latitude", p.Bounds.MaxLatitude)

	if p.Bounds.MinLongitude > p.Bounds.MaxLongitude {
		errs = append(errs, "bounds.min_longitude must be <= bounds.max_longitude")
	}
	if p.Bounds.MinLatitude > p.Bounds.MaxLatitude {
		errs = append(errs, "bounds.min_latitude must be <= bounds.max_latitude")
	}
	if len(p.DateLayouts) == 0 {
		errs = append(errs, "date_layouts must have at least 1 layout")
	}
	for i, l := range p.DateLayouts {
		if strings.TrimSpace(l) == "" {
			errs = append(errs, fmt.Sprintf("date_layouts[%d] cannot be empty", i))
		}
	}
	if strings.TrimSpace(p.OutputFile) == "" || strings.ContainsAny(p.OutputFile, `/\`) {
		errs = append(errs, "output_file must be a plain file name")
	}

	if len(errs) > 0 {
		return errors.New("config: profile validation failed:\n- " + strings.Join(errs, "\n- "))
	}
	return nil
}
