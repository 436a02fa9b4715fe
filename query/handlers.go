package query

import (
	"context"

	"github.com/goliatone/go-vendit/core"
)

type BookmarkReader interface {
	LoadBookmark(ctx context.Context, stream string) (core.Bookmark, error)
}

type TokenReader interface {
	Token(ctx context.Context) (core.Token, error)
}

type StreamReader interface {
	Streams() []core.StreamDescriptor
	Stream(name string) (core.StreamDescriptor, error)
}

type SyncRunReader interface {
	Get(ctx context.Context, runID string) (core.SyncRun, error)
	ListRecent(ctx context.Context, stream string, limit int) ([]core.SyncRun, error)
}

type LoadBookmarkQuery struct {
	reader BookmarkReader
}

func NewLoadBookmarkQuery(reader BookmarkReader) *LoadBookmarkQuery {
	return &LoadBookmarkQuery{reader: reader}
}

func (q *LoadBookmarkQuery) Query(ctx context.Context, msg LoadBookmarkMessage) (core.Bookmark, error) {
	if q == nil || q.reader == nil {
		return core.Bookmark{}, queryDependencyError("query: bookmark reader is required")
	}
	return q.reader.LoadBookmark(ctx, msg.Stream)
}

type GetTokenQuery struct {
	reader TokenReader
}

func NewGetTokenQuery(reader TokenReader) *GetTokenQuery {
	return &GetTokenQuery{reader: reader}
}

func (q *GetTokenQuery) Query(ctx context.Context, _ GetTokenMessage) (core.Token, error) {
	if q == nil || q.reader == nil {
		return core.Token{}, queryDependencyError("query: token reader is required")
	}
	return q.reader.Token(ctx)
}

type GetStreamQuery struct {
	reader StreamReader
}

func NewGetStreamQuery(reader StreamReader) *GetStreamQuery {
	return &GetStreamQuery{reader: reader}
}

func (q *GetStreamQuery) Query(_ context.Context, msg GetStreamMessage) (core.StreamDescriptor, error) {
	if q == nil || q.reader == nil {
		return core.StreamDescriptor{}, queryDependencyError("query: stream reader is required")
	}
	return q.reader.Stream(msg.Name)
}

type ListStreamsQuery struct {
	reader StreamReader
}

func NewListStreamsQuery(reader StreamReader) *ListStreamsQuery {
	return &ListStreamsQuery{reader: reader}
}

func (q *ListStreamsQuery) Query(_ context.Context, _ ListStreamsMessage) ([]core.StreamDescriptor, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: stream reader is required")
	}
	return q.reader.Streams(), nil
}

type GetSyncRunQuery struct {
	reader SyncRunReader
}

func NewGetSyncRunQuery(reader SyncRunReader) *GetSyncRunQuery {
	return &GetSyncRunQuery{reader: reader}
}

func (q *GetSyncRunQuery) Query(ctx context.Context, msg GetSyncRunMessage) (core.SyncRun, error) {
	if q == nil || q.reader == nil {
		return core.SyncRun{}, queryDependencyError("query: sync run reader is required")
	}
	return q.reader.Get(ctx, msg.RunID)
}

type ListRecentSyncRunsQuery struct {
	reader SyncRunReader
}

func NewListRecentSyncRunsQuery(reader SyncRunReader) *ListRecentSyncRunsQuery {
	return &ListRecentSyncRunsQuery{reader: reader}
}

func (q *ListRecentSyncRunsQuery) Query(
	ctx context.Context,
	msg ListRecentSyncRunsMessage,
) ([]core.SyncRun, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: sync run reader is required")
	}
	return q.reader.ListRecent(ctx, msg.Stream, msg.Limit)
}
