package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// TokenManager caches the Vendit bearer token in memory, refreshes it
// through the configured issuer when it goes stale, and mirrors issued
// tokens into the state store so restarts can skip an issuance. The in
// memory copy is authoritative; the persisted copy is only a warm start
// hint.
type TokenManager struct {
	issuer      TokenIssuer
	credentials CredentialStore
	state       StateStore
	logger      Logger
	metrics     MetricsRecorder
	locker      RefreshLocker
	scheduler   BackoffScheduler
	margin      time.Duration
	maxAttempts int
	nowFn       func() time.Time

	mu       sync.Mutex
	token    Token
	adopted  bool
	inflight *issueCall
}

// issueCall is the shared result of one in flight issuance. Waiters block
// on done while the leader talks to the token endpoint.
type issueCall struct {
	done  chan struct{}
	token Token
	err   error
}

type TokenManagerOption func(*TokenManager)

func WithTokenManagerLogger(logger Logger) TokenManagerOption {
	return func(m *TokenManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithTokenManagerMetrics(recorder MetricsRecorder) TokenManagerOption {
	return func(m *TokenManager) {
		if recorder != nil {
			m.metrics = recorder
		}
	}
}

func WithTokenManagerLocker(locker RefreshLocker) TokenManagerOption {
	return func(m *TokenManager) {
		m.locker = locker
	}
}

func WithTokenManagerScheduler(scheduler BackoffScheduler) TokenManagerOption {
	return func(m *TokenManager) {
		if scheduler != nil {
			m.scheduler = scheduler
		}
	}
}

// WithTokenManagerMargin sets how long before the recorded expiry a token
// stops counting as fresh.
func WithTokenManagerMargin(margin time.Duration) TokenManagerOption {
	return func(m *TokenManager) {
		if margin > 0 {
			m.margin = margin
		}
	}
}

func WithTokenManagerMaxAttempts(attempts int) TokenManagerOption {
	return func(m *TokenManager) {
		if attempts > 0 {
			m.maxAttempts = attempts
		}
	}
}

// WithTokenManagerClock overrides the time source, used by tests.
func WithTokenManagerClock(now func() time.Time) TokenManagerOption {
	return func(m *TokenManager) {
		if now != nil {
			m.nowFn = now
		}
	}
}

func NewTokenManager(issuer TokenIssuer, credentials CredentialStore, state StateStore, opts ...TokenManagerOption) (*TokenManager, error) {
	if issuer == nil {
		return nil, fmt.Errorf("core: token issuer is required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("core: credential store is required")
	}

	manager := &TokenManager{
		issuer:      issuer,
		credentials: credentials,
		state:       state,
		logger:      glog.Nop(),
		metrics:     NopMetricsRecorder{},
		margin:      DefaultTokenMargin,
		maxAttempts: DefaultMaxAttempts,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	if manager.scheduler == nil {
		manager.scheduler = ExponentialBackoffScheduler{Initial: DefaultInitialBackoff, Max: DefaultMaxBackoff}
	}
	return manager, nil
}

var _ TokenSource = (*TokenManager)(nil)

// Token returns a fresh token, issuing a new one when the cached copy is
// missing or inside the freshness margin. Concurrent callers that find a
// stale cache share one issuance instead of stampeding the token endpoint.
func (m *TokenManager) Token(ctx context.Context) (Token, error) {
	if m == nil {
		return Token{}, fmt.Errorf("core: token manager is nil")
	}

	m.mu.Lock()
	now := m.nowFn()
	if !m.adopted {
		m.adopted = true
		if stored, ok := m.adoptStoredToken(ctx, now); ok {
			m.token = stored
		}
	}
	if m.token.Fresh(now, m.margin) {
		token := m.token
		m.mu.Unlock()
		return token, nil
	}
	if m.inflight != nil {
		call := m.inflight
		m.mu.Unlock()
		return m.awaitIssue(ctx, call)
	}
	call := &issueCall{done: make(chan struct{})}
	m.inflight = call
	m.mu.Unlock()

	token, err := m.refresh(ctx)

	m.mu.Lock()
	call.token = token
	call.err = err
	if err == nil {
		m.token = token
	}
	m.inflight = nil
	m.mu.Unlock()
	close(call.done)

	return token, err
}

// Invalidate drops the cached token and clears the persisted copy so the
// next Token call performs a full issuance. State store failures are
// logged and swallowed; the stale persisted copy is harmless because
// adoption only happens at startup and a revoked token fails its first
// request anyway.
func (m *TokenManager) Invalidate(ctx context.Context) error {
	if m == nil {
		return fmt.Errorf("core: token manager is nil")
	}

	m.mu.Lock()
	m.token = Token{}
	m.adopted = true
	m.mu.Unlock()

	if m.state == nil {
		return nil
	}
	if err := m.state.DeleteToken(ctx); err != nil && !errors.Is(err, ErrTokenNotFound) {
		m.logger.Warn("vendit token invalidation could not clear state store", "error", err)
	}
	return nil
}

// Cached returns the current in memory token without triggering a refresh.
func (m *TokenManager) Cached() Token {
	if m == nil {
		return Token{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

func (m *TokenManager) awaitIssue(ctx context.Context, call *issueCall) (Token, error) {
	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
}

// adoptStoredToken runs once per process. It loads the persisted token and
// keeps it only when still fresh, so a restart between two syncs does not
// burn an issuance.
func (m *TokenManager) adoptStoredToken(ctx context.Context, now time.Time) (Token, bool) {
	if m.state == nil {
		return Token{}, false
	}
	stored, err := m.state.GetToken(ctx)
	if err != nil {
		if !errors.Is(err, ErrTokenNotFound) {
			m.logger.Warn("vendit token adoption failed", "error", err)
		}
		return Token{}, false
	}
	if !stored.Fresh(now, m.margin) {
		return Token{}, false
	}
	m.logger.Debug("vendit token adopted from state store", "expires_at", stored.ExpiresAt)
	return stored, true
}

func (m *TokenManager) refresh(ctx context.Context) (Token, error) {
	startedAt := m.nowFn()
	result, err := RunRefreshWithRetry(ctx, m.issueOnce, RefreshRunOptions{
		LockKey:     "vendit.token",
		MaxAttempts: m.maxAttempts,
		Locker:      m.locker,
		Scheduler:   m.scheduler,
	})
	m.observeRefresh(ctx, startedAt, result.Attempts, err)
	if err != nil {
		return Token{}, err
	}
	m.persist(ctx, result.Token)
	return result.Token, nil
}

// issueOnce performs a single issuance round trip. Missing credentials are
// surfaced as fatal so the retry loop aborts instead of rediscovering the
// same gap five times.
func (m *TokenManager) issueOnce(ctx context.Context) (Token, error) {
	creds, err := m.credentials.GetCredentials(ctx)
	if err != nil {
		if errors.Is(err, ErrCredentialsNotFound) {
			return Token{}, goerrors.Wrap(err, goerrors.CategoryNotFound, "vendit credentials are not configured").
				WithTextCode(ServiceErrorNotFound)
		}
		return Token{}, err
	}
	if err := creds.Validate(); err != nil {
		return Token{}, err
	}

	token, err := m.issuer.IssueToken(ctx, creds)
	if err != nil {
		return Token{}, err
	}
	if strings.TrimSpace(token.Value) == "" {
		return Token{}, NewAuthError("token endpoint returned an empty token", AuthReasonEmptyResponse)
	}
	if token.IssuedAt.IsZero() {
		token.IssuedAt = m.nowFn()
	}
	return token, nil
}

// persist mirrors the issued token into the state store. Failures are
// logged and swallowed: issuance already succeeded and the in memory copy
// serves requests either way.
func (m *TokenManager) persist(ctx context.Context, token Token) {
	if m.state == nil {
		return
	}
	if err := m.state.PutToken(ctx, token); err != nil {
		m.logger.Warn("vendit token persist failed", "error", err)
	}
}

func (m *TokenManager) observeRefresh(ctx context.Context, startedAt time.Time, attempts int, err error) {
	duration := m.nowFn().Sub(startedAt)
	status := "success"
	if err != nil {
		status = "failure"
	}
	tags := map[string]string{"status": status}
	m.metrics.IncCounter(ctx, "vendit.token_refresh.total", 1, tags)
	m.metrics.ObserveHistogram(ctx, "vendit.token_refresh.duration_ms", float64(duration.Milliseconds()), tags)

	if err != nil {
		m.logger.Error("vendit token refresh failed", "attempts", attempts, "error", err)
		return
	}
	m.logger.Info("vendit token refreshed", "attempts", attempts, "duration_ms", duration.Milliseconds())
}
