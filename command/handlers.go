package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-vendit/core"
)

// MutatingService is the slice of the extraction service the command
// handlers need. *core.Service satisfies it.
type MutatingService interface {
	EnsureTokenFresh(ctx context.Context, req core.EnsureTokenFreshRequest) (core.EnsureTokenFreshResult, error)
	InvalidateToken(ctx context.Context) error
	CommitBookmark(ctx context.Context, bookmark core.Bookmark) error
	ResetBookmark(ctx context.Context, stream string) error
	RegisterStream(descriptor core.StreamDescriptor) error
}

// SyncRunMutatingService is satisfied by *sync.Orchestrator.
type SyncRunMutatingService interface {
	Start(ctx context.Context, stream string, mode core.SyncRunMode, metadata map[string]any) (core.SyncRun, error)
	Resume(ctx context.Context, runID string) (core.SyncRun, error)
}

type RefreshTokenCommand struct {
	service MutatingService
}

func NewRefreshTokenCommand(service MutatingService) *RefreshTokenCommand {
	return &RefreshTokenCommand{service: service}
}

func (c *RefreshTokenCommand) Execute(ctx context.Context, msg RefreshTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: token service is required")
	}
	out, err := c.service.EnsureTokenFresh(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type InvalidateTokenCommand struct {
	service MutatingService
}

func NewInvalidateTokenCommand(service MutatingService) *InvalidateTokenCommand {
	return &InvalidateTokenCommand{service: service}
}

func (c *InvalidateTokenCommand) Execute(ctx context.Context, msg InvalidateTokenMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: token service is required")
	}
	return c.service.InvalidateToken(ctx)
}

type CommitBookmarkCommand struct {
	service MutatingService
}

func NewCommitBookmarkCommand(service MutatingService) *CommitBookmarkCommand {
	return &CommitBookmarkCommand{service: service}
}

func (c *CommitBookmarkCommand) Execute(ctx context.Context, msg CommitBookmarkMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: bookmark service is required")
	}
	return c.service.CommitBookmark(ctx, msg.Bookmark)
}

type ResetBookmarkCommand struct {
	service MutatingService
}

func NewResetBookmarkCommand(service MutatingService) *ResetBookmarkCommand {
	return &ResetBookmarkCommand{service: service}
}

func (c *ResetBookmarkCommand) Execute(ctx context.Context, msg ResetBookmarkMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: bookmark service is required")
	}
	return c.service.ResetBookmark(ctx, msg.Stream)
}

type RegisterStreamCommand struct {
	service MutatingService
}

func NewRegisterStreamCommand(service MutatingService) *RegisterStreamCommand {
	return &RegisterStreamCommand{service: service}
}

func (c *RegisterStreamCommand) Execute(_ context.Context, msg RegisterStreamMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: stream registry service is required")
	}
	return c.service.RegisterStream(msg.Descriptor)
}

type StartSyncRunCommand struct {
	service SyncRunMutatingService
}

func NewStartSyncRunCommand(service SyncRunMutatingService) *StartSyncRunCommand {
	return &StartSyncRunCommand{service: service}
}

func (c *StartSyncRunCommand) Execute(ctx context.Context, msg StartSyncRunMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync run service is required")
	}
	out, err := c.service.Start(ctx, msg.Stream, msg.Mode, msg.Metadata)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResumeSyncRunCommand struct {
	service SyncRunMutatingService
}

func NewResumeSyncRunCommand(service SyncRunMutatingService) *ResumeSyncRunCommand {
	return &ResumeSyncRunCommand{service: service}
}

func (c *ResumeSyncRunCommand) Execute(ctx context.Context, msg ResumeSyncRunMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sync run service is required")
	}
	out, err := c.service.Resume(ctx, msg.RunID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
