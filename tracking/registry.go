package tracking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Lineage directions.
const (
	DirectionUsed   = "used"
	DirectionLogged = "logged"
)

// Registry persists runs and their artifact lineage in SQLite.
type Registry struct {
	db *sql.DB
}

// RunRecord is a stored run.
type RunRecord struct {
	ID         string
	Project    string
	JobType    string
	Status     string
	Config     string
	Summary    string
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// LineageEntry records one artifact version a run used or logged.
type LineageEntry struct {
	RunID     string
	Direction string
	Artifact  string
	Version   string
	Digest    string
}

// OpenRegistry opens (creating if needed) the registry database at path.
func OpenRegistry(ctx context.Context, path string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("registry: create dir: %w", err)
	}

	// modernc sqlite uses DSN like: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("registry: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}

	r := &Registry{db: db}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry: migrate: %w", err)
	}
	return r, nil
}

func (r *Registry) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT PRIMARY KEY,
			project     TEXT NOT NULL,
			job_type    TEXT NOT NULL,
			status      TEXT NOT NULL,
			config      TEXT NOT NULL DEFAULT '{}',
			summary     TEXT NOT NULL DEFAULT '{}',
			error       TEXT NOT NULL DEFAULT '',
			started_at  TEXT NOT NULL,
			finished_at TEXT
		);

		CREATE TABLE IF NOT EXISTS lineage (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id    TEXT NOT NULL REFERENCES runs(id),
			direction TEXT NOT NULL,
			artifact  TEXT NOT NULL,
			version   TEXT NOT NULL,
			digest    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_lineage_run ON lineage(run_id);
		CREATE INDEX IF NOT EXISTS idx_lineage_artifact ON lineage(artifact, version);
	`)
	return err
}

func (r *Registry) insertRun(ctx context.Context, rec RunRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, project, job_type, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.Project, rec.JobType, rec.Status, rec.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("registry: insert run: %w", err)
	}
	return nil
}

func (r *Registry) setConfig(ctx context.Context, id, config string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE runs SET config = ? WHERE id = ?`, config, id)
	if err != nil {
		return fmt.Errorf("registry: update config: %w", err)
	}
	return nil
}

func (r *Registry) setSummary(ctx context.Context, id, summary string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE runs SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("registry: update summary: %w", err)
	}
	return nil
}

func (r *Registry) finishRun(ctx context.Context, id, status, errText string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, errText, at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("registry: finish run: %w", err)
	}
	return nil
}

func (r *Registry) addLineage(ctx context.Context, e LineageEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO lineage (run_id, direction, artifact, version, digest) VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.Direction, e.Artifact, e.Version, e.Digest)
	if err != nil {
		return fmt.Errorf("registry: insert lineage: %w", err)
	}
	return nil
}

// GetRun loads a run by id.
func (r *Registry) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var (
		rec        RunRecord
		startedAt  string
		finishedAt sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, project, job_type, status, config, summary, error, started_at, finished_at
		FROM runs WHERE id = ?`, id).Scan(
		&rec.ID, &rec.Project, &rec.JobType, &rec.Status, &rec.Config,
		&rec.Summary, &rec.Error, &startedAt, &finishedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("registry: run %q not found", id)
		}
		return nil, fmt.Errorf("registry: get run: %w", err)
	}

	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("registry: parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("registry: parse finished_at: %w", err)
		}
		rec.FinishedAt = &t
	}
	return &rec, nil
}

// Lineage returns the artifacts a run used and logged, in recording order.
func (r *Registry) Lineage(ctx context.Context, runID string) ([]LineageEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT run_id, direction, artifact, version, digest
		FROM lineage WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("registry: lineage: %w", err)
	}
	defer rows.Close()

	var out []LineageEntry
	for rows.Next() {
		var e LineageEntry
		if err := rows.Scan(&e.RunID, &e.Direction, &e.Artifact, &e.Version, &e.Digest); err != nil {
			return nil, fmt.Errorf("registry: scan lineage: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
