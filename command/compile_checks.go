package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RefreshTokenMessage]    = (*RefreshTokenCommand)(nil)
	_ gocmd.Commander[InvalidateTokenMessage] = (*InvalidateTokenCommand)(nil)
	_ gocmd.Commander[CommitBookmarkMessage]  = (*CommitBookmarkCommand)(nil)
	_ gocmd.Commander[ResetBookmarkMessage]   = (*ResetBookmarkCommand)(nil)
	_ gocmd.Commander[RegisterStreamMessage]  = (*RegisterStreamCommand)(nil)
	_ gocmd.Commander[StartSyncRunMessage]    = (*StartSyncRunCommand)(nil)
	_ gocmd.Commander[ResumeSyncRunMessage]   = (*ResumeSyncRunCommand)(nil)
)
