// Package artifact is a local, versioned store for pipeline artifacts.
//
// Layout:
//
//	{Root}/
//	  {name}/
//	    .lock
//	    v{N}/
//	      manifest.json
//	      files/{file}
//
// Versions are immutable once committed. A version directory only appears
// after its files and manifest are fully written.
package artifact

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a reference does not resolve to a committed version.
var ErrNotFound = errors.New("artifact not found")

// LatestAlias resolves to the highest committed version.
const LatestAlias = "latest"

var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Ref names an artifact version: name[:version].
type Ref struct {
	Name    string
	Version string
}

// ParseRef parses "name", "name:latest" or "name:vN". A leading
// "project/" path is accepted and ignored.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "/"); i >= 0 {
		s = s[i+1:]
	}

	name, version, found := strings.Cut(s, ":")
	if !found || version == "" {
		version = LatestAlias
	}
	if err := ValidateName(name); err != nil {
		return Ref{}, err
	}
	if version != LatestAlias {
		if _, err := parseVersion(version); err != nil {
			return Ref{}, fmt.Errorf("artifact: invalid version %q in %q", version, s)
		}
	}
	return Ref{Name: name, Version: version}, nil
}

func (r Ref) String() string {
	return r.Name + ":" + r.Version
}

// ValidateName checks that name is usable as a directory name.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("artifact: invalid name %q", name)
	}
	return nil
}

func versionLabel(n int) string {
	return "v" + strconv.Itoa(n)
}

func parseVersion(label string) (int, error) {
	if !strings.HasPrefix(label, "v") {
		return 0, fmt.Errorf("version %q must look like v<N>", label)
	}
	n, err := strconv.Atoi(label[1:])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("version %q must look like v<N>", label)
	}
	return n, nil
}
