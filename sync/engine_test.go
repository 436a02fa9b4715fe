package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/goliatone/go-vendit/core"
	"github.com/goliatone/go-vendit/cursor"
)

func TestEngine_RunPagesUntilShortPage(t *testing.T) {
	executor := &fakeExecutor{responses: []fakeResponse{
		{body: `{"items":[{"productId":5},{"productId":3}]}`},
		{body: `{"items":[{"productId":9}]}`},
	}}
	engine := newTestEngine(t, executor)
	bookmarks := &recordingBookmarkStore{}
	sink := &recordingSink{}

	result, err := engine.Run(context.Background(), idDescriptor(2), bookmarks, sink, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Records != 3 || result.Pages != 2 {
		t.Fatalf("expected 3 records over 2 pages, got %d over %d", result.Records, result.Pages)
	}
	if result.Position.Value != "9" {
		t.Fatalf("expected final position 9, got %q", result.Position.Value)
	}
	if got := len(sink.records); got != 3 {
		t.Fatalf("expected 3 sink writes, got %d", got)
	}
	if len(bookmarks.commits) != 2 {
		t.Fatalf("expected one commit per page, got %d", len(bookmarks.commits))
	}
	if bookmarks.commits[0].Value != "5" || bookmarks.commits[1].Value != "9" {
		t.Fatalf("unexpected commit sequence: %+v", bookmarks.commits)
	}

	// First page asks without a lastId, second carries the max id seen.
	if _, ok := executor.requests[0].Query["lastId"]; ok {
		t.Fatalf("first request must not carry lastId")
	}
	if executor.requests[1].Query["lastId"] != "5" {
		t.Fatalf("expected second request at lastId=5, got %q", executor.requests[1].Query["lastId"])
	}
}

func TestEngine_RunEmptyFirstPage(t *testing.T) {
	executor := &fakeExecutor{responses: []fakeResponse{
		{body: `{"items":[]}`},
	}}
	engine := newTestEngine(t, executor)
	bookmarks := &recordingBookmarkStore{}
	sink := &recordingSink{}

	result, err := engine.Run(context.Background(), idDescriptor(2), bookmarks, sink, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Records != 0 {
		t.Fatalf("expected no records, got %d", result.Records)
	}
	if len(bookmarks.commits) != 0 {
		t.Fatalf("an empty page must not move the bookmark")
	}
	if !result.Position.IsZero() {
		t.Fatalf("expected position unchanged, got %q", result.Position.Value)
	}
}

func TestEngine_RunResumesFromCommittedBookmark(t *testing.T) {
	executor := &fakeExecutor{responses: []fakeResponse{
		{body: `{"items":[{"productId":12}]}`},
	}}
	engine := newTestEngine(t, executor)
	bookmarks := &recordingBookmarkStore{bookmark: core.Bookmark{
		Stream: "products",
		Kind:   core.CursorKindID,
		Value:  "9",
	}}
	sink := &recordingSink{}

	if _, err := engine.Run(context.Background(), idDescriptor(2), bookmarks, sink, ""); err != nil {
		t.Fatalf("run: %v", err)
	}
	if executor.requests[0].Query["lastId"] != "9" {
		t.Fatalf("expected resume at lastId=9, got %q", executor.requests[0].Query["lastId"])
	}
}

func TestEngine_RunSinkFailureLeavesBookmarkUncommitted(t *testing.T) {
	executor := &fakeExecutor{responses: []fakeResponse{
		{body: `{"items":[{"productId":5},{"productId":7}]}`},
	}}
	engine := newTestEngine(t, executor)
	bookmarks := &recordingBookmarkStore{}
	sink := &recordingSink{failAt: 2}

	_, err := engine.Run(context.Background(), idDescriptor(2), bookmarks, sink, "")
	if err == nil {
		t.Fatalf("expected sink failure to surface")
	}
	if len(bookmarks.commits) != 0 {
		t.Fatalf("a partially delivered page must not commit its bookmark")
	}
}

func TestEngine_RunUnixEnvelope(t *testing.T) {
	executor := &fakeExecutor{responses: []fakeResponse{
		{body: `{"hasMore":false,"items":[
			{"customerOrderHeaderId":1,"unix_timestamp":1700000050},
			{"customerOrderHeaderId":2,"unix_timestamp":1700000200},
			{"customerOrderHeaderId":3,"unix_timestamp":1700000100}
		]}`},
	}}
	engine := newTestEngine(t, executor)
	bookmarks := &recordingBookmarkStore{}
	sink := &recordingSink{}

	descriptor := core.StreamDescriptor{
		Name:         "orders_optiply",
		Path:         "/Optiply/GetOrdersFromDate/{position}/true",
		Method:       "GET",
		CursorField:  "unix_timestamp",
		CursorKind:   core.CursorKindUnix,
		DefaultStart: "1700000000",
	}
	result, err := engine.Run(context.Background(), descriptor, bookmarks, sink, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Records != 3 {
		t.Fatalf("expected 3 records, got %d", result.Records)
	}
	if result.Position.Value != "1700000200" {
		t.Fatalf("expected final position at max unix value, got %q", result.Position.Value)
	}
	if executor.requests[0].Path != "/Optiply/GetOrdersFromDate/1700000000/true" {
		t.Fatalf("expected position in the path, got %q", executor.requests[0].Path)
	}
}

func TestEngine_RunStalledCursorFails(t *testing.T) {
	hasMore := `{"hasMore":true,"items":[{"customerOrderHeaderId":1,"unix_timestamp":1700000000}]}`
	executor := &fakeExecutor{responses: []fakeResponse{{body: hasMore}, {body: hasMore}}}
	engine := newTestEngine(t, executor)

	descriptor := core.StreamDescriptor{
		Name:         "orders_optiply",
		Path:         "/Optiply/GetOrdersFromDate/{position}/true",
		Method:       "GET",
		CursorField:  "unix_timestamp",
		CursorKind:   core.CursorKindUnix,
		DefaultStart: "1700000000",
	}
	_, err := engine.Run(context.Background(), descriptor, &recordingBookmarkStore{}, &recordingSink{}, "")
	if err == nil {
		t.Fatalf("expected stalled cursor to fail instead of spinning")
	}
	if len(executor.requests) != 1 {
		t.Fatalf("expected exactly one request before the stall surfaced, got %d", len(executor.requests))
	}
}

func TestEngine_SequenceIteratesLazily(t *testing.T) {
	executor := &fakeExecutor{responses: []fakeResponse{
		{body: `{"items":[{"productId":1},{"productId":2}]}`},
		{body: `{"items":[{"productId":3}]}`},
	}}
	engine := newTestEngine(t, executor)

	seq, err := engine.Stream(context.Background(), idDescriptor(2), cursor.Position{Kind: core.CursorKindID})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer seq.Close()

	var ids []int64
	var boundaries []int64
	for seq.Next() {
		id, ok := seq.Record().Int64Field("productId")
		if !ok {
			t.Fatalf("record missing productId: %+v", seq.Record())
		}
		ids = append(ids, id)
		if seq.PageEnd() {
			boundaries = append(boundaries, id)
			if seq.Position().IsZero() {
				t.Fatalf("expected a pending position at a page boundary")
			}
		}
	}
	if err := seq.Err(); err != nil {
		t.Fatalf("sequence error: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 records, got %v", ids)
	}
	if len(boundaries) != 2 || boundaries[0] != 2 || boundaries[1] != 3 {
		t.Fatalf("unexpected page boundaries: %v", boundaries)
	}
	if seq.Pages() != 2 {
		t.Fatalf("expected 2 pages, got %d", seq.Pages())
	}
	if seq.Position().Value != "3" {
		t.Fatalf("expected final position 3, got %q", seq.Position().Value)
	}
}

func TestEngine_SequenceExecutorErrorSurfaces(t *testing.T) {
	executor := &fakeExecutor{responses: []fakeResponse{
		{err: core.NewTransientError("vendit request failed after 5 attempts", 503)},
	}}
	engine := newTestEngine(t, executor)

	seq, err := engine.Stream(context.Background(), idDescriptor(2), cursor.Position{Kind: core.CursorKindID})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if seq.Next() {
		t.Fatalf("expected no records")
	}
	if !core.IsTransientError(seq.Err()) {
		t.Fatalf("expected the executor error to surface, got %v", seq.Err())
	}
}

func TestEngine_RunAllIsolatesStreamFailures(t *testing.T) {
	executor := &fakeExecutor{byPath: map[string][]fakeResponse{
		"/Products/GetAll":  {{body: `{"items":[{"productId":1}]}`}},
		"/Suppliers/GetAll": {{err: core.NewFatalError("vendit request failed with status 400", 400)}},
	}}
	engine := newTestEngine(t, executor)
	bookmarks := &recordingBookmarkStore{}
	sink := &recordingSink{}

	descriptors := []core.StreamDescriptor{
		idDescriptor(2),
		{
			Name:       "suppliers",
			Path:       "/Suppliers/GetAll",
			Method:     "GET",
			IDField:    "supplierId",
			CursorKind: core.CursorKindID,
			PageSize:   2,
		},
	}
	outcomes := engine.RunAll(context.Background(), descriptors, bookmarks, sink, "")
	if len(outcomes) != 2 {
		t.Fatalf("expected an outcome per stream, got %d", len(outcomes))
	}
	if outcomes["products"].Err != nil {
		t.Fatalf("products stream should succeed: %v", outcomes["products"].Err)
	}
	if outcomes["suppliers"].Err == nil {
		t.Fatalf("suppliers stream should fail")
	}
	if outcomes["products"].Result.Records != 1 {
		t.Fatalf("expected the healthy stream to deliver its records")
	}
}

func TestEngine_RunTrackedAdvancesRunThroughSuccess(t *testing.T) {
	executor := &fakeExecutor{responses: []fakeResponse{
		{body: `{"items":[{"productId":5},{"productId":3}]}`},
		{body: `{"items":[{"productId":9}]}`},
	}}
	engine := newTestEngine(t, executor)
	bookmarks := &recordingBookmarkStore{}
	runs := newMemorySyncRunStore()
	orchestrator := NewOrchestrator(runs, nil)

	started, err := orchestrator.Start(context.Background(), "products", core.SyncRunModeIncremental, nil)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if started.Status != core.SyncRunStatusQueued {
		t.Fatalf("expected queued run, got %s", started.Status)
	}

	checkpoints := &checkpointRecorder{RunTracker: orchestrator}
	result, err := engine.RunTracked(
		context.Background(), idDescriptor(2), bookmarks, &recordingSink{}, "",
		checkpoints, started.ID,
	)
	if err != nil {
		t.Fatalf("tracked run: %v", err)
	}

	run, err := runs.Get(context.Background(), started.ID)
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != core.SyncRunStatusSucceeded {
		t.Fatalf("expected succeeded run, got %s", run.Status)
	}
	if run.Checkpoint != "9" || run.RecordCount != 3 || run.PageCount != 2 {
		t.Fatalf("unexpected terminal run row: %+v", run)
	}
	// one checkpoint per committed page, mirroring the bookmark commits
	if len(checkpoints.values) != 2 || checkpoints.values[0] != "5" || checkpoints.values[1] != "9" {
		t.Fatalf("unexpected checkpoint sequence: %v", checkpoints.values)
	}
	if result.Records != 3 {
		t.Fatalf("expected 3 records, got %d", result.Records)
	}
}

func TestEngine_RunTrackedMarksFailureKeepingCheckpoint(t *testing.T) {
	executor := &fakeExecutor{responses: []fakeResponse{
		{body: `{"items":[{"productId":5},{"productId":3}]}`},
		{err: core.NewTransientError("vendit request failed after 5 attempts", 503)},
	}}
	engine := newTestEngine(t, executor)
	runs := newMemorySyncRunStore()
	orchestrator := NewOrchestrator(runs, nil)

	started, err := orchestrator.Start(context.Background(), "products", core.SyncRunModeIncremental, nil)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}

	_, err = engine.RunTracked(
		context.Background(), idDescriptor(2), &recordingBookmarkStore{}, &recordingSink{}, "",
		orchestrator, started.ID,
	)
	if err == nil {
		t.Fatalf("expected second page failure to surface")
	}

	run, err := runs.Get(context.Background(), started.ID)
	if err != nil {
		t.Fatalf("load run: %v", err)
	}
	if run.Status != core.SyncRunStatusFailed {
		t.Fatalf("expected failed run, got %s", run.Status)
	}
	if run.Checkpoint != "5" {
		t.Fatalf("expected the committed page's checkpoint to survive, got %q", run.Checkpoint)
	}
	if run.LastError == "" {
		t.Fatalf("expected the cause on the run row")
	}
}

func TestEngine_RunTrackedRequiresTrackerAndRunID(t *testing.T) {
	engine := newTestEngine(t, &fakeExecutor{})
	if _, err := engine.RunTracked(
		context.Background(), idDescriptor(2), &recordingBookmarkStore{}, &recordingSink{}, "",
		nil, "run_1",
	); err == nil {
		t.Fatalf("expected missing tracker to be rejected")
	}

	orchestrator := NewOrchestrator(newMemorySyncRunStore(), nil)
	if _, err := engine.RunTracked(
		context.Background(), idDescriptor(2), &recordingBookmarkStore{}, &recordingSink{}, "",
		orchestrator, "  ",
	); err == nil {
		t.Fatalf("expected blank run id to be rejected")
	}
}

// checkpointRecorder captures checkpoint values on their way to the wrapped
// tracker.
type checkpointRecorder struct {
	RunTracker
	values []string
}

func (r *checkpointRecorder) Checkpoint(
	ctx context.Context,
	runID string,
	checkpoint string,
	records int64,
	pages int,
) (core.SyncRun, error) {
	r.values = append(r.values, checkpoint)
	return r.RunTracker.Checkpoint(ctx, runID, checkpoint, records, pages)
}

func idDescriptor(pageSize int) core.StreamDescriptor {
	return core.StreamDescriptor{
		Name:       "products",
		Path:       "/Products/GetAll",
		Method:     "GET",
		IDField:    "productId",
		CursorKind: core.CursorKindID,
		PageSize:   pageSize,
	}
}

func newTestEngine(t *testing.T, executor core.RequestExecutor) *Engine {
	t.Helper()
	engine, err := NewEngine(executor, jsonPageDecoder{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

type fakeResponse struct {
	body string
	err  error
}

// fakeExecutor replays scripted responses, either as one global queue or
// keyed by request path when byPath is set.
type fakeExecutor struct {
	responses []fakeResponse
	byPath    map[string][]fakeResponse
	requests  []core.Request
}

func (f *fakeExecutor) Execute(_ context.Context, req core.Request) (core.TransportResponse, error) {
	f.requests = append(f.requests, req)

	var next fakeResponse
	if f.byPath != nil {
		queue := f.byPath[req.Path]
		if len(queue) == 0 {
			return core.TransportResponse{}, fmt.Errorf("fake executor: no response scripted for %s", req.Path)
		}
		next = queue[0]
		f.byPath[req.Path] = queue[1:]
	} else {
		if len(f.responses) == 0 {
			return core.TransportResponse{}, fmt.Errorf("fake executor: response queue exhausted")
		}
		next = f.responses[0]
		f.responses = f.responses[1:]
	}
	if next.err != nil {
		return core.TransportResponse{}, next.err
	}
	return core.TransportResponse{StatusCode: 200, Body: []byte(next.body)}, nil
}

// jsonPageDecoder reads the {items, hasMore} envelope the fake endpoint
// responses use.
type jsonPageDecoder struct{}

func (jsonPageDecoder) DecodePage(body []byte, descriptor core.StreamDescriptor, position string) (cursor.Page, error) {
	payload := struct {
		Items   []map[string]any `json:"items"`
		HasMore *bool            `json:"hasMore"`
	}{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return cursor.Page{}, err
	}
	page := cursor.Page{HasMore: payload.HasMore}
	for _, item := range payload.Items {
		record := core.Record(item)
		if descriptor.CursorKind == core.CursorKindUnix {
			if _, ok := record[descriptor.CursorField]; !ok {
				if unix, err := strconv.ParseInt(position, 10, 64); err == nil {
					record[descriptor.CursorField] = unix
				}
			}
		}
		page.Records = append(page.Records, record)
	}
	return page, nil
}

type recordingBookmarkStore struct {
	bookmark core.Bookmark
	commits  []core.Bookmark
}

func (s *recordingBookmarkStore) LoadBookmark(_ context.Context, stream string) (core.Bookmark, error) {
	if s.bookmark.IsZero() {
		return core.Bookmark{}, core.ErrBookmarkNotFound
	}
	if s.bookmark.Stream != stream {
		return core.Bookmark{}, core.ErrBookmarkNotFound
	}
	return s.bookmark, nil
}

func (s *recordingBookmarkStore) CommitBookmark(_ context.Context, bookmark core.Bookmark) error {
	s.commits = append(s.commits, bookmark)
	s.bookmark = bookmark
	return nil
}

type recordingSink struct {
	records []core.Record
	failAt  int
}

func (s *recordingSink) Write(_ context.Context, _ string, record core.Record) error {
	if s.failAt > 0 && len(s.records)+1 >= s.failAt {
		return errors.New("sink unavailable")
	}
	s.records = append(s.records, record)
	return nil
}
