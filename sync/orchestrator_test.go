package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-vendit/core"
)

func TestOrchestrator_StartSeedsCheckpointFromBookmark(t *testing.T) {
	runs := newMemorySyncRunStore()
	state := core.NewMemoryStateStore()
	if err := state.PutBookmark(context.Background(), core.Bookmark{
		Stream: "products",
		Kind:   core.CursorKindID,
		Value:  "1200",
	}); err != nil {
		t.Fatalf("seed bookmark: %v", err)
	}
	orchestrator := NewOrchestrator(runs, state)

	run, err := orchestrator.Start(context.Background(), "products", core.SyncRunModeIncremental, map[string]any{
		"source": "schedule",
	})
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if run.Status != core.SyncRunStatusQueued {
		t.Fatalf("expected queued status, got %s", run.Status)
	}
	if run.Checkpoint != "1200" {
		t.Fatalf("expected checkpoint from committed bookmark, got %q", run.Checkpoint)
	}
	if run.Metadata["source"] != "schedule" {
		t.Fatalf("expected metadata to persist")
	}
}

func TestOrchestrator_FullRunStartsBlank(t *testing.T) {
	runs := newMemorySyncRunStore()
	state := core.NewMemoryStateStore()
	if err := state.PutBookmark(context.Background(), core.Bookmark{
		Stream: "orders",
		Kind:   core.CursorKindTimestamp,
		Value:  "2024-02-01T00:00:00Z",
	}); err != nil {
		t.Fatalf("seed bookmark: %v", err)
	}
	orchestrator := NewOrchestrator(runs, state)

	run, err := orchestrator.Start(context.Background(), "orders", core.SyncRunModeFull, nil)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if run.Checkpoint != "" {
		t.Fatalf("expected blank checkpoint for a full run, got %q", run.Checkpoint)
	}
}

func TestOrchestrator_CheckpointFailResumeCycle(t *testing.T) {
	runs := newMemorySyncRunStore()
	orchestrator := NewOrchestrator(runs, core.NewMemoryStateStore())

	run, err := orchestrator.Start(context.Background(), "orders_optiply", core.SyncRunModeIncremental, nil)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	checkpointed, err := orchestrator.Checkpoint(context.Background(), run.ID, "1700000100", 250, 3)
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if checkpointed.Status != core.SyncRunStatusRunning {
		t.Fatalf("expected running status after first checkpoint, got %s", checkpointed.Status)
	}
	if checkpointed.RecordCount != 250 || checkpointed.PageCount != 3 {
		t.Fatalf("expected progress counters to persist")
	}

	nextAttempt := time.Now().UTC().Add(2 * time.Minute)
	failed, err := orchestrator.Fail(context.Background(), run.ID, errors.New("transient"), &nextAttempt)
	if err != nil {
		t.Fatalf("fail run: %v", err)
	}
	if failed.Status != core.SyncRunStatusFailed {
		t.Fatalf("expected failed status, got %s", failed.Status)
	}
	if failed.Checkpoint != "1700000100" {
		t.Fatalf("expected failure to keep the last checkpoint, got %q", failed.Checkpoint)
	}
	if failed.NextAttemptAt == nil {
		t.Fatalf("expected next attempt timestamp")
	}

	resumed, err := orchestrator.Resume(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("resume run: %v", err)
	}
	if resumed.Status != core.SyncRunStatusQueued {
		t.Fatalf("expected queued status after resume, got %s", resumed.Status)
	}
	if resumed.Checkpoint != "1700000100" {
		t.Fatalf("expected checkpoint to survive resume, got %q", resumed.Checkpoint)
	}
	if resumed.NextAttemptAt != nil {
		t.Fatalf("expected retry horizon to clear on resume")
	}
}

func TestOrchestrator_CompleteIsTerminal(t *testing.T) {
	runs := newMemorySyncRunStore()
	orchestrator := NewOrchestrator(runs, core.NewMemoryStateStore())

	run, err := orchestrator.Start(context.Background(), "suppliers", core.SyncRunModeIncremental, nil)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	completed, err := orchestrator.Complete(context.Background(), run.ID, "88", 88, 1)
	if err != nil {
		t.Fatalf("complete run: %v", err)
	}
	if completed.Status != core.SyncRunStatusSucceeded {
		t.Fatalf("expected succeeded status, got %s", completed.Status)
	}

	same, err := orchestrator.Resume(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("resume succeeded run: %v", err)
	}
	if same.Status != core.SyncRunStatusSucceeded {
		t.Fatalf("expected succeeded run to stay succeeded, got %s", same.Status)
	}
	if same.Attempts != completed.Attempts {
		t.Fatalf("expected attempts unchanged for a succeeded run")
	}
}

type memorySyncRunStore struct {
	records map[string]core.SyncRun
}

func newMemorySyncRunStore() *memorySyncRunStore {
	return &memorySyncRunStore{records: map[string]core.SyncRun{}}
}

func (s *memorySyncRunStore) Create(_ context.Context, run core.SyncRun) (core.SyncRun, error) {
	s.records[run.ID] = run
	return run, nil
}

func (s *memorySyncRunStore) Get(_ context.Context, id string) (core.SyncRun, error) {
	run, ok := s.records[id]
	if !ok {
		return core.SyncRun{}, core.ErrSyncRunNotFound
	}
	return run, nil
}

func (s *memorySyncRunStore) Update(_ context.Context, run core.SyncRun) (core.SyncRun, error) {
	s.records[run.ID] = run
	return run, nil
}
