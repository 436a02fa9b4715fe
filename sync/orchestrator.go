package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-vendit/core"
	"github.com/google/uuid"
)

// Orchestrator tracks sync run rows across stream passes: start, per page
// checkpoints, completion, and failure with a retry horizon. Runs seed their
// checkpoint from the stream's committed bookmark so operators can see where
// a pass will resume before it starts.
type Orchestrator struct {
	Runs  core.SyncRunStore
	State core.StateStore
	Now   func() time.Time
}

func NewOrchestrator(runs core.SyncRunStore, state core.StateStore) *Orchestrator {
	return &Orchestrator{
		Runs:  runs,
		State: state,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Start records a queued run for one stream. Incremental runs pick up the
// committed bookmark as their initial checkpoint; full runs start blank.
func (o *Orchestrator) Start(
	ctx context.Context,
	stream string,
	mode core.SyncRunMode,
	metadata map[string]any,
) (core.SyncRun, error) {
	if o == nil || o.Runs == nil {
		return core.SyncRun{}, fmt.Errorf("sync: orchestrator requires a sync run store")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return core.SyncRun{}, fmt.Errorf("sync: stream is required")
	}
	if mode == "" {
		mode = core.SyncRunModeIncremental
	}

	now := o.now()
	run := core.SyncRun{
		ID:        uuid.NewString(),
		Stream:    stream,
		Mode:      mode,
		Status:    core.SyncRunStatusQueued,
		Metadata:  mergeAnyMap(nil, metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if mode == core.SyncRunModeIncremental && o.State != nil {
		if bookmark, err := o.State.GetBookmark(ctx, stream); err == nil {
			run.Checkpoint = strings.TrimSpace(bookmark.Value)
		}
	}
	return o.Runs.Create(ctx, run)
}

// Resume requeues a failed run for another attempt. Succeeded runs are left
// alone.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (core.SyncRun, error) {
	if o == nil || o.Runs == nil {
		return core.SyncRun{}, fmt.Errorf("sync: orchestrator requires a sync run store")
	}
	run, err := o.get(ctx, runID)
	if err != nil {
		return core.SyncRun{}, err
	}
	if run.Status == core.SyncRunStatusSucceeded {
		return run, nil
	}
	if run.Status == core.SyncRunStatusFailed {
		if err := run.TransitionTo(core.SyncRunStatusQueued); err != nil {
			return core.SyncRun{}, err
		}
	}
	run.Attempts++
	run.NextAttemptAt = nil
	run.UpdatedAt = o.now()
	return o.Runs.Update(ctx, run)
}

// Checkpoint records page progress. The first checkpoint moves a queued run
// to running.
func (o *Orchestrator) Checkpoint(
	ctx context.Context,
	runID string,
	checkpoint string,
	records int64,
	pages int,
) (core.SyncRun, error) {
	if o == nil || o.Runs == nil {
		return core.SyncRun{}, fmt.Errorf("sync: orchestrator requires a sync run store")
	}
	run, err := o.get(ctx, runID)
	if err != nil {
		return core.SyncRun{}, err
	}
	if run.Status == core.SyncRunStatusQueued {
		if err := run.TransitionTo(core.SyncRunStatusRunning); err != nil {
			return core.SyncRun{}, err
		}
	}
	run.Checkpoint = strings.TrimSpace(checkpoint)
	run.RecordCount = records
	run.PageCount = pages
	run.UpdatedAt = o.now()
	return o.Runs.Update(ctx, run)
}

// Complete finalizes a run at its terminal checkpoint.
func (o *Orchestrator) Complete(
	ctx context.Context,
	runID string,
	checkpoint string,
	records int64,
	pages int,
) (core.SyncRun, error) {
	run, err := o.Checkpoint(ctx, runID, checkpoint, records, pages)
	if err != nil {
		return core.SyncRun{}, err
	}
	if err := run.TransitionTo(core.SyncRunStatusSucceeded); err != nil {
		return core.SyncRun{}, err
	}
	run.UpdatedAt = o.now()
	return o.Runs.Update(ctx, run)
}

// Fail marks a run failed, keeping its last checkpoint intact so a resumed
// attempt continues from the final committed page.
func (o *Orchestrator) Fail(
	ctx context.Context,
	runID string,
	cause error,
	nextAttemptAt *time.Time,
) (core.SyncRun, error) {
	if o == nil || o.Runs == nil {
		return core.SyncRun{}, fmt.Errorf("sync: orchestrator requires a sync run store")
	}
	run, err := o.get(ctx, runID)
	if err != nil {
		return core.SyncRun{}, err
	}
	if run.Status == core.SyncRunStatusQueued {
		if err := run.TransitionTo(core.SyncRunStatusRunning); err != nil {
			return core.SyncRun{}, err
		}
	}
	if err := run.TransitionTo(core.SyncRunStatusFailed); err != nil {
		return core.SyncRun{}, err
	}
	run.Attempts++
	run.LastError = strings.TrimSpace(fmt.Sprint(cause))
	run.UpdatedAt = o.now()
	if nextAttemptAt != nil {
		value := nextAttemptAt.UTC()
		run.NextAttemptAt = &value
	}
	return o.Runs.Update(ctx, run)
}

func (o *Orchestrator) get(ctx context.Context, runID string) (core.SyncRun, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return core.SyncRun{}, fmt.Errorf("sync: run id is required")
	}
	return o.Runs.Get(ctx, runID)
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

func mergeAnyMap(left map[string]any, right map[string]any) map[string]any {
	if len(left) == 0 && len(right) == 0 {
		return map[string]any{}
	}
	merged := map[string]any{}
	for key, value := range left {
		merged[key] = value
	}
	for key, value := range right {
		merged[key] = value
	}
	return merged
}
