package query

import (
	"strings"
)

const (
	TypeLoadBookmark       = "vendit.query.bookmark.load"
	TypeGetToken           = "vendit.query.token.get"
	TypeGetStream          = "vendit.query.stream.get"
	TypeListStreams        = "vendit.query.stream.list"
	TypeGetSyncRun         = "vendit.query.sync_run.get"
	TypeListRecentSyncRuns = "vendit.query.sync_run.list_recent"
)

type LoadBookmarkMessage struct {
	Stream string
}

func (LoadBookmarkMessage) Type() string { return TypeLoadBookmark }

func (m LoadBookmarkMessage) Validate() error {
	if strings.TrimSpace(m.Stream) == "" {
		return queryValidationError("stream", "stream is required")
	}
	return nil
}

type GetTokenMessage struct{}

func (GetTokenMessage) Type() string { return TypeGetToken }

func (GetTokenMessage) Validate() error { return nil }

type GetStreamMessage struct {
	Name string
}

func (GetStreamMessage) Type() string { return TypeGetStream }

func (m GetStreamMessage) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return queryValidationError("name", "stream name is required")
	}
	return nil
}

type ListStreamsMessage struct{}

func (ListStreamsMessage) Type() string { return TypeListStreams }

func (ListStreamsMessage) Validate() error { return nil }

type GetSyncRunMessage struct {
	RunID string
}

func (GetSyncRunMessage) Type() string { return TypeGetSyncRun }

func (m GetSyncRunMessage) Validate() error {
	if strings.TrimSpace(m.RunID) == "" {
		return queryValidationError("run_id", "run id is required")
	}
	return nil
}

type ListRecentSyncRunsMessage struct {
	Stream string
	Limit  int
}

func (ListRecentSyncRunsMessage) Type() string { return TypeListRecentSyncRuns }

func (m ListRecentSyncRunsMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
