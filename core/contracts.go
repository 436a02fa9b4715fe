package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Logger re-exports the glog contract so satellite packages depend on core
// rather than on the logging module directly.
type Logger = glog.Logger

// LoggerProvider resolves named loggers for subsystems.
type LoggerProvider = glog.LoggerProvider

// FieldsLogger is implemented by loggers that accept structured fields.
type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Wire header names the Vendit API expects on authenticated calls.
const (
	HeaderToken  = "Token"
	HeaderAPIKey = "ApiKey"
)

// TransportRequest is a transport-neutral outbound request.
type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	Idempotency          string
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

type RateLimitKey struct {
	ProviderID string
	ScopeType  string
	ScopeID    string
	BucketKey  string
}

// ProviderResponseMeta carries the response signals a rate-limit policy
// inspects after each call.
type ProviderResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ProviderResponseMeta) error
}

// CredentialStore holds the durable account credentials.
type CredentialStore interface {
	GetCredentials(ctx context.Context) (Credentials, error)
	PutCredentials(ctx context.Context, credentials Credentials) error
}

// StateStore is the durable key-value surface for replication state: the
// cached token plus one bookmark per stream. Implementations must write
// atomically; readers see either the previous or the new document, never
// a torn one.
type StateStore interface {
	GetToken(ctx context.Context) (Token, error)
	PutToken(ctx context.Context, token Token) error
	DeleteToken(ctx context.Context) error
	GetBookmark(ctx context.Context, stream string) (Bookmark, error)
	PutBookmark(ctx context.Context, bookmark Bookmark) error
	DeleteBookmark(ctx context.Context, stream string) error
}

// SyncRunStore persists sync run rows for resumable stream passes.
type SyncRunStore interface {
	Create(ctx context.Context, run SyncRun) (SyncRun, error)
	Get(ctx context.Context, id string) (SyncRun, error)
	Update(ctx context.Context, run SyncRun) (SyncRun, error)
}

// TokenIssuer performs one network token issuance against the auth
// endpoint. Implementations classify failures with the shared taxonomy:
// transient faults are retryable, credential rejections are not.
type TokenIssuer interface {
	IssueToken(ctx context.Context, credentials Credentials) (Token, error)
}

// TokenSource hands out a usable token, refreshing under a single-flight
// guard when the cached one is stale. Invalidate drops the cached token so
// the next Token call forces an issuance. Cached returns the current
// in-memory token without triggering any refresh.
type TokenSource interface {
	Token(ctx context.Context) (Token, error)
	Invalidate(ctx context.Context) error
	Cached() Token
}

// Request is one authenticated API call as seen by the executor. Path is
// joined onto the configured base URL.
type Request struct {
	Method   string
	Path     string
	Query    map[string]string
	Headers  map[string]string
	Body     []byte
	Stream   string
	Metadata map[string]any
}

type RequestExecutor interface {
	Execute(ctx context.Context, req Request) (TransportResponse, error)
}

// RequestSigner attaches authentication material to an outbound request.
type RequestSigner interface {
	Sign(req *TransportRequest, token Token, credentials Credentials) error
}

// StreamRegistry resolves registered stream descriptors by name.
type StreamRegistry interface {
	Register(descriptor StreamDescriptor) error
	Get(name string) (StreamDescriptor, bool)
	List() []StreamDescriptor
}

// ExtractionService is the public surface of the assembled service.
type ExtractionService interface {
	Token(ctx context.Context) (Token, error)
	InvalidateToken(ctx context.Context) error
	EnsureTokenFresh(ctx context.Context, req EnsureTokenFreshRequest) (EnsureTokenFreshResult, error)
	Execute(ctx context.Context, req Request) (TransportResponse, error)
	RegisterStream(descriptor StreamDescriptor) error
	Streams() []StreamDescriptor
	Stream(name string) (StreamDescriptor, error)
	LoadBookmark(ctx context.Context, stream string) (Bookmark, error)
	CommitBookmark(ctx context.Context, bookmark Bookmark) error
	ResetBookmark(ctx context.Context, stream string) error
	Config() Config
	Dependencies() ServiceDependencies
}

// StateStoreProvider exposes the stores a repository factory builds.
type StateStoreProvider interface {
	StateStore() StateStore
	SyncRunStore() SyncRunStore
}

// RepositoryStoreFactory builds SQL-backed stores from an opaque
// persistence client without core importing the persistence module.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StateStoreProvider, error)
}

// JobExecutionMessage is the queue-neutral execution request used for
// scheduled refreshes and stream syncs.
type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}
