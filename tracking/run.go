// Package tracking ties one process's work together as a run: its
// parameters, the artifacts it read and wrote, its summary and its outcome.
package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/artifact"
	"github.com/akshayDhotre/build-ml-pipeline-for-short-term-rental-prices/utils"
)

// Run is the explicit run context. Create it with Start at process start and
// close it with Finish at process end.
type Run struct {
	ID      string
	Project string
	JobType string

	store    *artifact.Store
	registry *Registry
	logger   *utils.Logger
	config   map[string]any
	summary  map[string]any
	finished bool
	now      func() time.Time
}

// Start registers a new run.
func Start(ctx context.Context, registry *Registry, store *artifact.Store, project, jobType string, logger *utils.Logger) (*Run, error) {
	r := &Run{
		ID:       uuid.NewString(),
		Project:  project,
		JobType:  jobType,
		store:    store,
		registry: registry,
		config:   make(map[string]any),
		summary:  make(map[string]any),
		now:      time.Now,
	}
	r.logger = logger.With("run_id", r.ID)

	err := registry.insertRun(ctx, RunRecord{
		ID:        r.ID,
		Project:   project,
		JobType:   jobType,
		Status:    StatusRunning,
		StartedAt: r.now(),
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("[run] Started %s run in project %s", jobType, project)
	return r, nil
}

// Logger returns the run-scoped logger.
func (r *Run) Logger() *utils.Logger {
	return r.logger
}

// UpdateConfig merges values into the run's recorded parameters.
func (r *Run) UpdateConfig(ctx context.Context, values map[string]any) error {
	for k, v := range values {
		r.config[k] = v
	}
	b, err := json.Marshal(r.config)
	if err != nil {
		return fmt.Errorf("run: encode config: %w", err)
	}
	return r.registry.setConfig(ctx, r.ID, string(b))
}

// SetSummary records a summary value of the run.
func (r *Run) SetSummary(ctx context.Context, key string, value any) error {
	r.summary[key] = value
	b, err := json.Marshal(r.summary)
	if err != nil {
		return fmt.Errorf("run: encode summary: %w", err)
	}
	return r.registry.setSummary(ctx, r.ID, string(b))
}

// UseArtifact resolves ref, records it as an input of the run and returns
// the local path of its file.
func (r *Run) UseArtifact(ctx context.Context, ref string) (string, *artifact.Manifest, error) {
	parsed, err := artifact.ParseRef(ref)
	if err != nil {
		return "", nil, err
	}

	path, m, err := r.store.File(ctx, parsed)
	if err != nil {
		return "", nil, fmt.Errorf("run: use artifact %s: %w", parsed, err)
	}

	err = r.registry.addLineage(ctx, LineageEntry{
		RunID:     r.ID,
		Direction: DirectionUsed,
		Artifact:  m.Name,
		Version:   m.Label(),
		Digest:    m.Digest,
	})
	if err != nil {
		return "", nil, err
	}
	r.logger.Debug("[run] Using %s (%s)", m.Ref(), m.Digest)
	return path, m, nil
}

// LogArtifact publishes a as a new version produced by this run.
func (r *Run) LogArtifact(ctx context.Context, a *artifact.Artifact) (*artifact.Manifest, error) {
	m, err := r.store.Publish(ctx, a, r.ID)
	if err != nil {
		return nil, fmt.Errorf("run: log artifact %q: %w", a.Name, err)
	}

	err = r.registry.addLineage(ctx, LineageEntry{
		RunID:     r.ID,
		Direction: DirectionLogged,
		Artifact:  m.Name,
		Version:   m.Label(),
		Digest:    m.Digest,
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("[run] Logged %s (%s)", m.Ref(), m.Digest)
	return m, nil
}

// Finish marks the run finished, or failed when runErr is non-nil.
// Calling Finish more than once is a no-op.
func (r *Run) Finish(ctx context.Context, runErr error) error {
	if r.finished {
		return nil
	}
	r.finished = true

	status, errText := StatusFinished, ""
	if runErr != nil {
		status, errText = StatusFailed, runErr.Error()
	}
	return r.registry.finishRun(ctx, r.ID, status, errText, r.now())
}
