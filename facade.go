package govendit

import (
	"fmt"

	venditcommand "github.com/goliatone/go-vendit/command"
	"github.com/goliatone/go-vendit/core"
	venditquery "github.com/goliatone/go-vendit/query"
)

// CommandQueryService is the service surface the facade dispatches
// against. *core.Service satisfies it.
type CommandQueryService interface {
	venditcommand.MutatingService
	venditquery.BookmarkReader
	venditquery.TokenReader
	venditquery.StreamReader
}

type Commands struct {
	RefreshToken    *venditcommand.RefreshTokenCommand
	InvalidateToken *venditcommand.InvalidateTokenCommand
	CommitBookmark  *venditcommand.CommitBookmarkCommand
	ResetBookmark   *venditcommand.ResetBookmarkCommand
	RegisterStream  *venditcommand.RegisterStreamCommand
	StartSyncRun    *venditcommand.StartSyncRunCommand
	ResumeSyncRun   *venditcommand.ResumeSyncRunCommand
}

type Queries struct {
	LoadBookmark       *venditquery.LoadBookmarkQuery
	GetToken           *venditquery.GetTokenQuery
	GetStream          *venditquery.GetStreamQuery
	ListStreams        *venditquery.ListStreamsQuery
	GetSyncRun         *venditquery.GetSyncRunQuery
	ListRecentSyncRuns *venditquery.ListRecentSyncRunsQuery
}

// Facade bundles the command and query handlers behind one constructor so
// hosts wire a single value into their dispatcher.
type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	syncRunService venditcommand.SyncRunMutatingService
	syncRunReader  venditquery.SyncRunReader
}

// WithSyncRunService wires the orchestrator that backs the sync run
// commands. Without it those commands report a missing dependency.
func WithSyncRunService(service venditcommand.SyncRunMutatingService) FacadeOption {
	return func(options *facadeOptions) {
		options.syncRunService = service
	}
}

// WithSyncRunReader overrides the sync run read model. By default the
// facade resolves one from the service's sync run store.
func WithSyncRunReader(reader venditquery.SyncRunReader) FacadeOption {
	return func(options *facadeOptions) {
		options.syncRunReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("govendit: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	reader := cfg.syncRunReader
	if reader == nil {
		reader = resolveSyncRunReader(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		RefreshToken:    venditcommand.NewRefreshTokenCommand(service),
		InvalidateToken: venditcommand.NewInvalidateTokenCommand(service),
		CommitBookmark:  venditcommand.NewCommitBookmarkCommand(service),
		ResetBookmark:   venditcommand.NewResetBookmarkCommand(service),
		RegisterStream:  venditcommand.NewRegisterStreamCommand(service),
		StartSyncRun:    venditcommand.NewStartSyncRunCommand(cfg.syncRunService),
		ResumeSyncRun:   venditcommand.NewResumeSyncRunCommand(cfg.syncRunService),
	}
	facade.queries = Queries{
		LoadBookmark:       venditquery.NewLoadBookmarkQuery(service),
		GetToken:           venditquery.NewGetTokenQuery(service),
		GetStream:          venditquery.NewGetStreamQuery(service),
		ListStreams:        venditquery.NewListStreamsQuery(service),
		GetSyncRun:         venditquery.NewGetSyncRunQuery(reader),
		ListRecentSyncRuns: venditquery.NewListRecentSyncRunsQuery(reader),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveSyncRunReader finds a sync run read model on the service itself
// or on its configured sync run store.
func resolveSyncRunReader(service CommandQueryService) venditquery.SyncRunReader {
	if service == nil {
		return nil
	}
	if reader, ok := service.(venditquery.SyncRunReader); ok {
		return reader
	}
	provider, ok := service.(interface {
		SyncRunStore() core.SyncRunStore
	})
	if !ok {
		return nil
	}
	store := provider.SyncRunStore()
	if store == nil {
		return nil
	}
	reader, ok := store.(venditquery.SyncRunReader)
	if !ok {
		return nil
	}
	return reader
}
