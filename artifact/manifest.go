package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Manifest describes one committed artifact version.
type Manifest struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Version     int         `json:"version"`
	Digest      string      `json:"digest"`
	Files       []FileEntry `json:"files"`
	RunID       string      `json:"run_id,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// FileEntry is one file inside an artifact version.
type FileEntry struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// Label returns the version label, e.g. "v3".
func (m *Manifest) Label() string {
	return versionLabel(m.Version)
}

// Ref returns the pinned reference of this version.
func (m *Manifest) Ref() Ref {
	return Ref{Name: m.Name, Version: m.Label()}
}

// Artifact is a pending artifact assembled before publishing.
type Artifact struct {
	Name        string
	Type        string
	Description string
	files       []string
}

// New creates a pending artifact. Name, type and description are required.
func New(name, typ, description string) (*Artifact, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(typ) == "" {
		return nil, fmt.Errorf("artifact: type is required")
	}
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("artifact: description is required")
	}
	return &Artifact{Name: name, Type: typ, Description: description}, nil
}

// AddFile registers a local file to be copied into the artifact on publish.
func (a *Artifact) AddFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("artifact: add file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("artifact: add file: %q is a directory", path)
	}
	base := filepath.Base(path)
	for _, f := range a.files {
		if filepath.Base(f) == base {
			return fmt.Errorf("artifact: add file: duplicate file name %q", base)
		}
	}
	a.files = append(a.files, path)
	return nil
}

// Files returns the local paths added so far.
func (a *Artifact) Files() []string {
	out := make([]string, len(a.files))
	copy(out, a.files)
	return out
}

// contentDigest hashes the sorted (name, digest) pairs so the result does not
// depend on the order files were added.
func contentDigest(files []FileEntry) string {
	sorted := make([]FileEntry, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	h := sha256.New()
	for _, f := range sorted {
		fmt.Fprintf(h, "%d:%s%d:%s", len(f.Name), f.Name, len(f.Digest), f.Digest)
	}
	return hex.EncodeToString(h.Sum(nil))
}
