package govendit

import (
	"github.com/goliatone/go-vendit/core"
	"github.com/goliatone/go-vendit/transport"
	"github.com/goliatone/go-vendit/vendit"
)

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type Credentials = core.Credentials
type Token = core.Token
type Bookmark = core.Bookmark
type CursorKind = core.CursorKind
type StreamDescriptor = core.StreamDescriptor
type SyncRun = core.SyncRun
type Request = core.Request
type TransportResponse = core.TransportResponse

type CredentialStore = core.CredentialStore
type StateStore = core.StateStore
type SyncRunStore = core.SyncRunStore
type TokenIssuer = core.TokenIssuer
type TokenSource = core.TokenSource
type TransportAdapter = core.TransportAdapter
type RequestSigner = core.RequestSigner
type StreamRegistry = core.StreamRegistry
type RefreshLocker = core.RefreshLocker
type BackoffScheduler = core.BackoffScheduler

type EnsureTokenFreshRequest = core.EnsureTokenFreshRequest
type EnsureTokenFreshResult = core.EnsureTokenFreshResult

var (
	WithLogger           = core.WithLogger
	WithLoggerProvider   = core.WithLoggerProvider
	WithMetricsRecorder  = core.WithMetricsRecorder
	WithErrorFactory     = core.WithErrorFactory
	WithErrorMapper      = core.WithErrorMapper
	WithConfigProvider   = core.WithConfigProvider
	WithOptionsResolver  = core.WithOptionsResolver
	WithRefreshLocker    = core.WithRefreshLocker
	WithBackoffScheduler = core.WithBackoffScheduler
	WithRequestSigner    = core.WithRequestSigner
	WithTransportAdapter = core.WithTransportAdapter
	WithRateLimitPolicy  = core.WithRateLimitPolicy
	WithStreamRegistry   = core.WithStreamRegistry
	WithCredentialStore  = core.WithCredentialStore
	WithStateStore       = core.WithStateStore
	WithSyncRunStore     = core.WithSyncRunStore
	WithTokenIssuer      = core.WithTokenIssuer
	WithTokenSource      = core.WithTokenSource
	WithTokenCodec       = core.WithTokenCodec
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewService builds the extraction service exactly as configured. Callers
// bring their own transport, token issuer, and stream registry.
func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

// Setup builds a service ready to talk to the Vendit API: the default
// stream catalog, the REST transport, and a token client bound to the
// configured auth endpoint. Options appended by the caller override any
// of these defaults.
func Setup(cfg Config, opts ...Option) (*Service, error) {
	catalog := core.NewStreamCatalog()
	if err := vendit.RegisterCatalog(catalog); err != nil {
		return nil, err
	}
	issuer := vendit.NewTokenClient(vendit.TokenClientConfig{
		TokenURL:  cfg.Auth.TokenURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: cfg.API.UserAgent,
	})
	base := []Option{
		core.WithStreamRegistry(catalog),
		core.WithTransportAdapter(transport.NewRESTAdapter(nil)),
		core.WithTokenIssuer(issuer),
	}
	return core.NewService(cfg, append(base, opts...)...)
}
