package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-vendit/core"
)

var (
	_ gocmd.Querier[LoadBookmarkMessage, core.Bookmark]          = (*LoadBookmarkQuery)(nil)
	_ gocmd.Querier[GetTokenMessage, core.Token]                 = (*GetTokenQuery)(nil)
	_ gocmd.Querier[GetStreamMessage, core.StreamDescriptor]     = (*GetStreamQuery)(nil)
	_ gocmd.Querier[ListStreamsMessage, []core.StreamDescriptor] = (*ListStreamsQuery)(nil)
	_ gocmd.Querier[GetSyncRunMessage, core.SyncRun]             = (*GetSyncRunQuery)(nil)
	_ gocmd.Querier[ListRecentSyncRunsMessage, []core.SyncRun]   = (*ListRecentSyncRunsQuery)(nil)
)
