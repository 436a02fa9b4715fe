package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-vendit/core"
	"github.com/goliatone/go-vendit/cursor"
)

// PageDecoder turns one raw response body into the records and continuation
// signal the cursor strategy folds over. The position argument is the cursor
// value the page was requested at.
type PageDecoder interface {
	DecodePage(body []byte, descriptor core.StreamDescriptor, position string) (cursor.Page, error)
}

// BookmarkStore is the narrow commit surface the page driven run needs. The
// assembled extraction service satisfies it.
type BookmarkStore interface {
	LoadBookmark(ctx context.Context, stream string) (core.Bookmark, error)
	CommitBookmark(ctx context.Context, bookmark core.Bookmark) error
}

// RunTracker records sync run progress alongside a stream pass: a
// checkpoint per committed page and a terminal complete or fail.
// *Orchestrator satisfies it.
type RunTracker interface {
	Checkpoint(ctx context.Context, runID string, checkpoint string, records int64, pages int) (core.SyncRun, error)
	Complete(ctx context.Context, runID string, checkpoint string, records int64, pages int) (core.SyncRun, error)
	Fail(ctx context.Context, runID string, cause error, nextAttemptAt *time.Time) (core.SyncRun, error)
}

// RecordSink receives records as they are extracted. A sink must only report
// success once the record is durably handed off; the engine commits the
// page's bookmark after every record of the page got through.
type RecordSink interface {
	Write(ctx context.Context, stream string, record core.Record) error
}

// RecordSinkFunc adapts a function to the RecordSink contract.
type RecordSinkFunc func(ctx context.Context, stream string, record core.Record) error

func (f RecordSinkFunc) Write(ctx context.Context, stream string, record core.Record) error {
	return f(ctx, stream, record)
}

// Engine pages through one stream at a time: it asks the cursor strategy for
// request parameters, performs the call through the retrying executor,
// decodes the page, and folds it back into the strategy until the stream is
// exhausted. All auth and retry behavior lives below, in the executor.
type Engine struct {
	executor core.RequestExecutor
	decoder  PageDecoder
	logger   core.Logger
	metrics  core.MetricsRecorder
}

type EngineOption func(*Engine)

func WithEngineLogger(logger core.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func WithEngineMetrics(recorder core.MetricsRecorder) EngineOption {
	return func(e *Engine) {
		if recorder != nil {
			e.metrics = recorder
		}
	}
}

func NewEngine(executor core.RequestExecutor, decoder PageDecoder, opts ...EngineOption) (*Engine, error) {
	if executor == nil {
		return nil, fmt.Errorf("sync: engine requires a request executor")
	}
	if decoder == nil {
		return nil, fmt.Errorf("sync: engine requires a page decoder")
	}
	engine := &Engine{
		executor: executor,
		decoder:  decoder,
		logger:   glog.Nop(),
		metrics:  core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine, nil
}

// page is one fetched and folded page: its records, the position the stream
// stands at once the page is committed, and whether the stream is exhausted.
type page struct {
	records []core.Record
	next    cursor.Position
	done    bool
}

func (e *Engine) fetchPage(
	ctx context.Context,
	descriptor core.StreamDescriptor,
	strategy cursor.Strategy,
	pos cursor.Position,
) (page, error) {
	startedAt := time.Now().UTC()

	request := core.Request{
		Method: descriptor.Method,
		Path:   cursor.ExpandPath(descriptor.Path, pos),
		Query:  strategy.RequestParams(pos),
		Stream: descriptor.Name,
	}
	response, err := e.executor.Execute(ctx, request)
	if err != nil {
		return page{}, err
	}

	decoded, err := e.decoder.DecodePage(response.Body, descriptor, pos.Value)
	if err != nil {
		return page{}, core.NewFatalError(err.Error(), response.StatusCode)
	}

	next, done, err := strategy.Advance(pos, decoded)
	if err != nil {
		return page{}, err
	}
	// A page that neither advances the cursor nor terminates would refetch
	// itself forever; surface it instead of spinning.
	if !done && len(decoded.Records) > 0 && next.Value == pos.Value {
		return page{}, core.NewFatalError(
			fmt.Sprintf("sync: stream %s cursor stalled at %q", descriptor.Name, pos.Value), 0)
	}

	e.logger.Debug("vendit page fetched",
		"stream", descriptor.Name,
		"records", len(decoded.Records),
		"position", pos.Value,
		"next_position", next.Value,
		"done", done,
		"duration_ms", time.Since(startedAt).Milliseconds(),
	)
	return page{records: decoded.Records, next: next, done: done}, nil
}

// Stream opens a lazy record sequence over one stream starting at pos.
// Records are pulled page by page as the caller iterates; nothing is
// buffered beyond the current page.
func (e *Engine) Stream(ctx context.Context, descriptor core.StreamDescriptor, pos cursor.Position) (*Sequence, error) {
	if e == nil {
		return nil, fmt.Errorf("sync: engine is nil")
	}
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	strategy, err := cursor.ForDescriptor(descriptor)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Sequence{
		engine:     e,
		ctx:        ctx,
		descriptor: descriptor,
		strategy:   strategy,
		pos:        pos,
		pagePos:    pos,
	}, nil
}

// Sequence iterates one stream's records lazily, sql.Rows style:
//
//	seq, err := engine.Stream(ctx, descriptor, start)
//	for seq.Next() {
//	    record := seq.Record()
//	    ...
//	}
//	if err := seq.Err(); err != nil { ... }
//
// Position reports the page's pending bookmark position: committing it is
// only safe once every record of the current page has been consumed, which
// PageEnd signals.
type Sequence struct {
	engine     *Engine
	ctx        context.Context
	descriptor core.StreamDescriptor
	strategy   cursor.Strategy

	pos     cursor.Position
	pagePos cursor.Position
	buffer  []core.Record
	index   int
	pages   int
	done    bool
	err     error
	closed  bool
}

// Next advances to the following record, fetching the next page when the
// current one is drained. It returns false once the stream is exhausted or
// an error occurred.
func (s *Sequence) Next() bool {
	if s == nil || s.closed || s.err != nil {
		return false
	}
	s.index++
	if s.index < len(s.buffer) {
		return true
	}
	for {
		if s.done {
			return false
		}
		if err := s.ctx.Err(); err != nil {
			s.err = err
			return false
		}
		fetched, err := s.engine.fetchPage(s.ctx, s.descriptor, s.strategy, s.pos)
		if err != nil {
			s.err = err
			return false
		}
		s.pages++
		s.pos = fetched.next
		s.pagePos = fetched.next
		s.done = fetched.done
		s.buffer = fetched.records
		s.index = 0
		if len(s.buffer) > 0 {
			return true
		}
	}
}

// Record returns the current record. Only valid after Next reported true.
func (s *Sequence) Record() core.Record {
	if s == nil || s.index < 0 || s.index >= len(s.buffer) {
		return nil
	}
	return s.buffer[s.index]
}

// Position is the pending bookmark position of the current record's page.
func (s *Sequence) Position() cursor.Position {
	if s == nil {
		return cursor.Position{}
	}
	return s.pagePos
}

// PageEnd reports whether the current record is the last one of its page,
// the point at which Position may be committed.
func (s *Sequence) PageEnd() bool {
	return s != nil && len(s.buffer) > 0 && s.index == len(s.buffer)-1
}

// Pages counts the API calls performed so far.
func (s *Sequence) Pages() int {
	if s == nil {
		return 0
	}
	return s.pages
}

func (s *Sequence) Err() error {
	if s == nil {
		return nil
	}
	return s.err
}

func (s *Sequence) Close() error {
	if s == nil {
		return nil
	}
	s.closed = true
	s.buffer = nil
	return nil
}

// RunResult summarizes one completed stream pass.
type RunResult struct {
	Stream   string
	Records  int64
	Pages    int
	Position cursor.Position
}

// Run extracts one stream end to end: it resolves the starting position from
// the committed bookmark (falling back to the descriptor's default start and
// then the configured start date), feeds every record to the sink, and
// commits the bookmark once per fully delivered page. A failure mid page
// leaves the previous bookmark in place, so a rerun replays that page and
// nothing before it.
func (e *Engine) Run(
	ctx context.Context,
	descriptor core.StreamDescriptor,
	bookmarks BookmarkStore,
	sink RecordSink,
	startDate string,
) (RunResult, error) {
	return e.run(ctx, descriptor, bookmarks, sink, startDate, nil, "")
}

// RunTracked extracts one stream like Run while recording the pass on the
// sync run row started for it: a checkpoint after every committed page,
// Complete when the stream is exhausted, Fail on a terminal error. The run
// row's checkpoint mirrors the committed bookmark, so a resumed attempt
// continues from the final committed page.
func (e *Engine) RunTracked(
	ctx context.Context,
	descriptor core.StreamDescriptor,
	bookmarks BookmarkStore,
	sink RecordSink,
	startDate string,
	tracker RunTracker,
	runID string,
) (RunResult, error) {
	if tracker == nil {
		return RunResult{}, fmt.Errorf("sync: run tracker is required")
	}
	if strings.TrimSpace(runID) == "" {
		return RunResult{}, fmt.Errorf("sync: run id is required")
	}
	return e.run(ctx, descriptor, bookmarks, sink, startDate, tracker, runID)
}

func (e *Engine) run(
	ctx context.Context,
	descriptor core.StreamDescriptor,
	bookmarks BookmarkStore,
	sink RecordSink,
	startDate string,
	tracker RunTracker,
	runID string,
) (RunResult, error) {
	if e == nil {
		return RunResult{}, fmt.Errorf("sync: engine is nil")
	}
	if bookmarks == nil {
		return RunResult{}, fmt.Errorf("sync: bookmark store is required")
	}
	if sink == nil {
		return RunResult{}, fmt.Errorf("sync: record sink is required")
	}
	if err := descriptor.Validate(); err != nil {
		return RunResult{}, err
	}
	strategy, err := cursor.ForDescriptor(descriptor)
	if err != nil {
		return RunResult{}, err
	}

	pos, err := e.resolveStart(ctx, descriptor, strategy, bookmarks, startDate)
	if err != nil {
		return RunResult{}, err
	}

	result := RunResult{Stream: descriptor.Name, Position: pos}
	startedAt := time.Now().UTC()
	for {
		if err := ctx.Err(); err != nil {
			e.failRun(ctx, tracker, runID, err)
			return result, err
		}
		fetched, err := e.fetchPage(ctx, descriptor, strategy, pos)
		if err != nil {
			e.observeRun(ctx, startedAt, result, err)
			e.failRun(ctx, tracker, runID, err)
			return result, err
		}
		result.Pages++

		for _, record := range fetched.records {
			if err := sink.Write(ctx, descriptor.Name, record); err != nil {
				e.observeRun(ctx, startedAt, result, err)
				e.failRun(ctx, tracker, runID, err)
				return result, err
			}
			result.Records++
		}

		if len(fetched.records) > 0 && fetched.next.Value != pos.Value {
			if err := bookmarks.CommitBookmark(ctx, fetched.next.Bookmark(descriptor.Name)); err != nil {
				e.observeRun(ctx, startedAt, result, err)
				e.failRun(ctx, tracker, runID, err)
				return result, err
			}
			if tracker != nil {
				if _, err := tracker.Checkpoint(ctx, runID, fetched.next.Value, result.Records, result.Pages); err != nil {
					e.observeRun(ctx, startedAt, result, err)
					return result, err
				}
			}
		}
		pos = fetched.next
		result.Position = pos

		if fetched.done {
			if tracker != nil {
				if _, err := tracker.Complete(ctx, runID, result.Position.Value, result.Records, result.Pages); err != nil {
					e.observeRun(ctx, startedAt, result, err)
					return result, err
				}
			}
			e.observeRun(ctx, startedAt, result, nil)
			return result, nil
		}
	}
}

// failRun marks the tracked run failed. The extraction error stays the
// primary failure; a tracker write error is only logged.
func (e *Engine) failRun(ctx context.Context, tracker RunTracker, runID string, cause error) {
	if tracker == nil {
		return
	}
	if _, err := tracker.Fail(ctx, runID, cause, nil); err != nil {
		e.logger.Warn("vendit sync run fail not recorded",
			"run_id", runID,
			"error", err,
		)
	}
}

// resolveStart picks the position a run begins at: the committed bookmark
// when one exists, else the descriptor default, else the configured start
// date.
func (e *Engine) resolveStart(
	ctx context.Context,
	descriptor core.StreamDescriptor,
	strategy cursor.Strategy,
	bookmarks BookmarkStore,
	startDate string,
) (cursor.Position, error) {
	bookmark, err := bookmarks.LoadBookmark(ctx, descriptor.Name)
	if err == nil && !bookmark.IsZero() && bookmark.Kind == descriptor.CursorKind {
		return cursor.FromBookmark(bookmark), nil
	}
	if err != nil && !core.IsFatalError(err) && !isNotFound(err) {
		return cursor.Position{}, err
	}

	start := strings.TrimSpace(descriptor.DefaultStart)
	if start == "" {
		start = strings.TrimSpace(startDate)
	}
	return strategy.Initial(start)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found")
}

func (e *Engine) observeRun(ctx context.Context, startedAt time.Time, result RunResult, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	tags := map[string]string{
		"stream": result.Stream,
		"status": status,
	}
	duration := time.Since(startedAt)
	e.metrics.IncCounter(ctx, "vendit.sync.records", result.Records, tags)
	e.metrics.IncCounter(ctx, "vendit.sync.pages", int64(result.Pages), tags)
	e.metrics.ObserveHistogram(ctx, "vendit.sync.duration_ms", float64(duration.Milliseconds()), tags)

	if err != nil {
		e.logger.Error("vendit stream sync failed",
			"stream", result.Stream,
			"records", result.Records,
			"pages", result.Pages,
			"position", result.Position.Value,
			"error", err,
		)
		return
	}
	e.logger.Info("vendit stream sync completed",
		"stream", result.Stream,
		"records", result.Records,
		"pages", result.Pages,
		"position", result.Position.Value,
		"duration_ms", duration.Milliseconds(),
	)
}

// StreamOutcome pairs a per stream result with its terminal error, if any.
type StreamOutcome struct {
	Result RunResult
	Err    error
}

// RunAll extracts several streams concurrently, one goroutine per stream.
// Streams fail independently: one stream's fatal error never stops the
// others, and every committed bookmark stays committed. The shared executor
// underneath serializes token refresh across the goroutines.
func (e *Engine) RunAll(
	ctx context.Context,
	descriptors []core.StreamDescriptor,
	bookmarks BookmarkStore,
	sink RecordSink,
	startDate string,
) map[string]StreamOutcome {
	outcomes := make(map[string]StreamOutcome, len(descriptors))
	if e == nil || len(descriptors) == 0 {
		return outcomes
	}

	type namedOutcome struct {
		stream  string
		outcome StreamOutcome
	}
	results := make(chan namedOutcome, len(descriptors))
	for _, descriptor := range descriptors {
		go func(descriptor core.StreamDescriptor) {
			result, err := e.Run(ctx, descriptor, bookmarks, sink, startDate)
			results <- namedOutcome{stream: descriptor.Name, outcome: StreamOutcome{Result: result, Err: err}}
		}(descriptor)
	}
	for range descriptors {
		named := <-results
		outcomes[named.stream] = named.outcome
	}
	return outcomes
}
