package command

import (
	"strings"

	"github.com/goliatone/go-vendit/core"
)

const (
	TypeRefreshToken    = "vendit.command.token.refresh"
	TypeInvalidateToken = "vendit.command.token.invalidate"
	TypeCommitBookmark  = "vendit.command.bookmark.commit"
	TypeResetBookmark   = "vendit.command.bookmark.reset"
	TypeRegisterStream  = "vendit.command.stream.register"
	TypeStartSyncRun    = "vendit.command.sync_run.start"
	TypeResumeSyncRun   = "vendit.command.sync_run.resume"
)

type RefreshTokenMessage struct {
	Request core.EnsureTokenFreshRequest
}

func (RefreshTokenMessage) Type() string { return TypeRefreshToken }

func (RefreshTokenMessage) Validate() error { return nil }

type InvalidateTokenMessage struct{}

func (InvalidateTokenMessage) Type() string { return TypeInvalidateToken }

func (InvalidateTokenMessage) Validate() error { return nil }

type CommitBookmarkMessage struct {
	Bookmark core.Bookmark
}

func (CommitBookmarkMessage) Type() string { return TypeCommitBookmark }

func (m CommitBookmarkMessage) Validate() error {
	if err := m.Bookmark.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid bookmark")
	}
	return nil
}

type ResetBookmarkMessage struct {
	Stream string
}

func (ResetBookmarkMessage) Type() string { return TypeResetBookmark }

func (m ResetBookmarkMessage) Validate() error {
	if strings.TrimSpace(m.Stream) == "" {
		return commandValidationError("stream", "stream is required")
	}
	return nil
}

type RegisterStreamMessage struct {
	Descriptor core.StreamDescriptor
}

func (RegisterStreamMessage) Type() string { return TypeRegisterStream }

func (m RegisterStreamMessage) Validate() error {
	if err := m.Descriptor.Validate(); err != nil {
		return commandWrapValidation(err, "command: invalid stream descriptor")
	}
	return nil
}

type StartSyncRunMessage struct {
	Stream   string
	Mode     core.SyncRunMode
	Metadata map[string]any
}

func (StartSyncRunMessage) Type() string { return TypeStartSyncRun }

func (m StartSyncRunMessage) Validate() error {
	if strings.TrimSpace(m.Stream) == "" {
		return commandValidationError("stream", "stream is required")
	}
	switch m.Mode {
	case "", core.SyncRunModeFull, core.SyncRunModeIncremental:
		return nil
	default:
		return commandValidationError("mode", "mode must be full or incremental")
	}
}

type ResumeSyncRunMessage struct {
	RunID string
}

func (ResumeSyncRunMessage) Type() string { return TypeResumeSyncRun }

func (m ResumeSyncRunMessage) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return commandValidationError("run_id", "run id is required")
	}
	return nil
}
