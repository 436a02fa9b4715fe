package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-vendit/core"
)

func newBookmarkRecord(bookmark core.Bookmark, now time.Time) *bookmarkRecord {
	updatedAt := bookmark.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return &bookmarkRecord{
		Stream:    strings.TrimSpace(bookmark.Stream),
		Kind:      string(bookmark.Kind),
		Value:     strings.TrimSpace(bookmark.Value),
		Metadata:  copyAnyMap(bookmark.Metadata),
		CreatedAt: now,
		UpdatedAt: updatedAt.UTC(),
	}
}

func (r *bookmarkRecord) toDomain() core.Bookmark {
	if r == nil {
		return core.Bookmark{}
	}
	return core.Bookmark{
		Stream:    r.Stream,
		Kind:      core.CursorKind(r.Kind),
		Value:     r.Value,
		UpdatedAt: r.UpdatedAt,
		Metadata:  copyAnyMap(r.Metadata),
	}
}

func newSyncRunRecord(run core.SyncRun, now time.Time) *syncRunRecord {
	record := &syncRunRecord{
		ID:          strings.TrimSpace(run.ID),
		Stream:      strings.TrimSpace(run.Stream),
		Mode:        string(run.Mode),
		Status:      string(run.Status),
		Checkpoint:  run.Checkpoint,
		Attempts:    run.Attempts,
		RecordCount: run.RecordCount,
		PageCount:   run.PageCount,
		LastError:   run.LastError,
		Metadata:    copyAnyMap(run.Metadata),
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	if run.NextAttemptAt != nil {
		value := run.NextAttemptAt.UTC()
		record.NextAttemptAt = &value
	}
	return record
}

func (r *syncRunRecord) toDomain() core.SyncRun {
	if r == nil {
		return core.SyncRun{}
	}
	run := core.SyncRun{
		ID:          r.ID,
		Stream:      r.Stream,
		Mode:        core.SyncRunMode(r.Mode),
		Status:      core.SyncRunStatus(r.Status),
		Checkpoint:  r.Checkpoint,
		Attempts:    r.Attempts,
		RecordCount: r.RecordCount,
		PageCount:   r.PageCount,
		LastError:   r.LastError,
		Metadata:    copyAnyMap(r.Metadata),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.NextAttemptAt != nil {
		value := r.NextAttemptAt.UTC()
		run.NextAttemptAt = &value
	}
	return run
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
