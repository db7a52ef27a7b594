package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	manifestFile = "manifest.json"
	filesDir     = "files"
	lockFile     = ".lock"
)

// Store is a filesystem-backed artifact store.
type Store struct {
	// Root is the directory holding one subdirectory per artifact name.
	Root string

	// LockRetry is how often a blocked publish retries the name lock.
	LockRetry time.Duration
}

// NewStore creates the root directory if needed and returns a Store.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create root: %w", err)
	}
	return &Store{Root: root, LockRetry: 50 * time.Millisecond}, nil
}

// Versions lists the committed version numbers of name in ascending order.
func (s *Store) Versions(name string) ([]int, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.Root, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("artifact: list versions of %q: %w", name, err)
	}

	var versions []int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := parseVersion(e.Name())
		if err != nil {
			continue
		}
		versions = append(versions, n)
	}
	sort.Ints(versions)
	return versions, nil
}

// Resolve returns the manifest a reference points to.
func (s *Store) Resolve(ctx context.Context, ref Ref) (*Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	version := -1
	if ref.Version == LatestAlias || ref.Version == "" {
		versions, err := s.Versions(ref.Name)
		if err != nil {
			return nil, err
		}
		if len(versions) > 0 {
			version = versions[len(versions)-1]
		}
	} else {
		n, err := parseVersion(ref.Version)
		if err != nil {
			return nil, fmt.Errorf("artifact: resolve %s: %w", ref, err)
		}
		version = n
	}
	if version < 0 {
		return nil, fmt.Errorf("artifact: resolve %s: %w", ref, ErrNotFound)
	}

	data, err := os.ReadFile(filepath.Join(s.versionDir(ref.Name, version), manifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("artifact: resolve %s: %w", ref, ErrNotFound)
		}
		return nil, fmt.Errorf("artifact: read manifest of %s: %w", ref, err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("artifact: parse manifest of %s: %w", ref, err)
	}
	return &m, nil
}

// FilePath returns the local path of a file inside a committed version.
func (s *Store) FilePath(m *Manifest, file string) string {
	return filepath.Join(s.versionDir(m.Name, m.Version), filesDir, file)
}

// File resolves ref and returns the path of its single file.
// Artifacts holding more than one file must be read through FilePath.
func (s *Store) File(ctx context.Context, ref Ref) (string, *Manifest, error) {
	m, err := s.Resolve(ctx, ref)
	if err != nil {
		return "", nil, err
	}
	if len(m.Files) != 1 {
		return "", nil, fmt.Errorf("artifact: %s holds %d files, expected 1", m.Ref(), len(m.Files))
	}

	path := s.FilePath(m, m.Files[0].Name)
	if _, err := os.Stat(path); err != nil {
		return "", nil, fmt.Errorf("artifact: %s: %w", m.Ref(), err)
	}
	return path, m, nil
}

// Publish commits a pending artifact as the next version of its name.
// The name directory is locked for the duration so concurrent publishers
// get distinct versions.
func (s *Store) Publish(ctx context.Context, a *Artifact, runID string) (*Manifest, error) {
	if len(a.files) == 0 {
		return nil, fmt.Errorf("artifact: publish %q: no files added", a.Name)
	}

	nameDir := filepath.Join(s.Root, a.Name)
	if err := os.MkdirAll(nameDir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create %q: %w", a.Name, err)
	}

	lock := flock.New(filepath.Join(nameDir, lockFile))
	locked, err := lock.TryLockContext(ctx, s.LockRetry)
	if err != nil {
		return nil, fmt.Errorf("artifact: lock %q: %w", a.Name, err)
	}
	if !locked {
		return nil, fmt.Errorf("artifact: lock %q: not acquired", a.Name)
	}
	defer func() { _ = lock.Unlock() }()

	versions, err := s.Versions(a.Name)
	if err != nil {
		return nil, err
	}
	next := 0
	if len(versions) > 0 {
		next = versions[len(versions)-1] + 1
	}

	// Write into a temp dir, then rename into place.
	tmpDir, err := os.MkdirTemp(nameDir, ".tmp-"+versionLabel(next)+"-")
	if err != nil {
		return nil, fmt.Errorf("artifact: create temp dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	if err := os.MkdirAll(filepath.Join(tmpDir, filesDir), 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create files dir: %w", err)
	}

	entries := make([]FileEntry, 0, len(a.files))
	for _, src := range a.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		entry, err := copyFile(src, filepath.Join(tmpDir, filesDir, filepath.Base(src)))
		if err != nil {
			return nil, fmt.Errorf("artifact: copy %q: %w", src, err)
		}
		entries = append(entries, entry)
	}

	m := &Manifest{
		Name:        a.Name,
		Type:        a.Type,
		Description: a.Description,
		Version:     next,
		Digest:      contentDigest(entries),
		Files:       entries,
		RunID:       runID,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("artifact: marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, manifestFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("artifact: write manifest: %w", err)
	}

	if err := os.Rename(tmpDir, s.versionDir(a.Name, next)); err != nil {
		return nil, fmt.Errorf("artifact: commit %s: %w", m.Ref(), err)
	}
	committed = true
	return m, nil
}

func (s *Store) versionDir(name string, version int) string {
	return filepath.Join(s.Root, name, versionLabel(version))
}

func copyFile(src, dst string) (FileEntry, error) {
	in, err := os.Open(src)
	if err != nil {
		return FileEntry{}, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return FileEntry{}, err
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err != nil {
		_ = out.Close()
		return FileEntry{}, err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return FileEntry{}, err
	}
	if err := out.Close(); err != nil {
		return FileEntry{}, err
	}

	return FileEntry{
		Name:   filepath.Base(dst),
		Size:   n,
		Digest: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// String is used in log lines.
func (s *Store) String() string {
	return "artifact store at " + strings.TrimSuffix(s.Root, string(filepath.Separator))
}
