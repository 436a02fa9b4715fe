package core

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const defaultRefreshLockTTL = 30 * time.Second

// LockHandle releases a previously acquired refresh lock.
type LockHandle interface {
	Unlock(ctx context.Context) error
}

// RefreshLocker serializes token refresh across processes that share a
// state store. The in-process single flight inside TokenManager does not
// protect against sibling workers.
type RefreshLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// BackoffScheduler yields the delay to wait after the given failed attempt.
type BackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoffScheduler doubles the delay on every attempt and caps
// it at Max. Zero values fall back to the package defaults.
type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = DefaultMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// RefreshRunOptions tunes a single RunRefreshWithRetry invocation.
type RefreshRunOptions struct {
	LockKey     string
	MaxAttempts int
	LockTTL     time.Duration
	Locker      RefreshLocker
	Scheduler   BackoffScheduler
	Jitter      func(time.Duration) time.Duration
}

// RefreshRunResult reports the issued token and how many attempts it took.
type RefreshRunResult struct {
	Token    Token
	Attempts int
}

// RunRefreshWithRetry drives the issue function until it succeeds, the
// attempt ceiling is reached, or the error is unrecoverable. Invalid
// credential and other fatal failures abort immediately; transient
// failures wait out an exponential, jittered backoff that honors any
// Retry-After hint carried in error metadata.
func RunRefreshWithRetry(ctx context.Context, issue func(context.Context) (Token, error), opts RefreshRunOptions) (RefreshRunResult, error) {
	if issue == nil {
		return RefreshRunResult{}, fmt.Errorf("core: issue function is required")
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	scheduler := opts.Scheduler
	if scheduler == nil {
		scheduler = ExponentialBackoffScheduler{Initial: DefaultInitialBackoff, Max: DefaultMaxBackoff}
	}
	jitter := opts.Jitter
	if jitter == nil {
		jitter = jitterBackoffDelay
	}

	unlock := func() {}
	if opts.Locker != nil {
		lockTTL := opts.LockTTL
		if lockTTL <= 0 {
			lockTTL = defaultRefreshLockTTL
		}
		lockKey := strings.TrimSpace(opts.LockKey)
		if lockKey == "" {
			lockKey = "token"
		}
		handle, lockErr := opts.Locker.Acquire(ctx, lockKey, lockTTL)
		if lockErr != nil {
			return RefreshRunResult{}, lockErr
		}
		unlock = func() {
			_ = handle.Unlock(ctx)
		}
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		token, err := issue(ctx)
		if err == nil {
			return RefreshRunResult{Token: token, Attempts: attempt}, nil
		}
		lastErr = err

		if isUnrecoverableIssueError(err) {
			return RefreshRunResult{Attempts: attempt}, err
		}
		if attempt == maxAttempts {
			break
		}

		delay := jitter(scheduler.NextDelay(attempt))
		if hint := retryAfterHint(err); hint > delay {
			delay = hint
		}
		if waitErr := waitWithContext(ctx, delay); waitErr != nil {
			return RefreshRunResult{Attempts: attempt}, waitErr
		}
	}

	wrapped := goerrors.Wrap(lastErr, goerrors.CategoryAuth, fmt.Sprintf("token issuance failed after %d attempts", maxAttempts)).
		WithTextCode(ServiceErrorAuthFailed).
		WithMetadata(map[string]any{
			"reason":   AuthReasonRetriesExhausted,
			"attempts": maxAttempts,
		})
	return RefreshRunResult{Attempts: maxAttempts}, wrapped
}

func isUnrecoverableIssueError(err error) bool {
	if err == nil {
		return false
	}
	if IsAuthError(err) || IsFatalError(err) {
		return true
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(msg, "invalid credentials") ||
		strings.Contains(msg, "invalid api key")
}

// retryAfterHint surfaces a provider supplied Retry-After delay carried in
// error metadata under retry_after_seconds.
func retryAfterHint(err error) time.Duration {
	if err == nil {
		return 0
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil || len(richErr.Metadata) == 0 {
		return 0
	}
	raw, ok := richErr.Metadata["retry_after_seconds"]
	if !ok {
		return 0
	}
	switch typed := raw.(type) {
	case time.Duration:
		return typed
	case int:
		return time.Duration(typed) * time.Second
	case int64:
		return time.Duration(typed) * time.Second
	case float64:
		return time.Duration(typed * float64(time.Second))
	}
	return 0
}

// jitterBackoffDelay stretches the delay by up to 25% so simultaneous
// workers do not retry in lockstep. The result never drops below the base
// delay, which keeps Retry-After floors intact.
func jitterBackoffDelay(delay time.Duration) time.Duration {
	if delay <= 0 {
		return 0
	}
	spread := delay / 4
	if spread <= 0 {
		return delay
	}
	return delay + rand.N(spread)
}

func waitWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MemoryRefreshLocker is a single process RefreshLocker used by tests and
// by deployments that run one worker.
type MemoryRefreshLocker struct {
	mu    sync.Mutex
	locks map[string]time.Time
	nowFn func() time.Time
}

func NewMemoryRefreshLocker() *MemoryRefreshLocker {
	return &MemoryRefreshLocker{
		locks: make(map[string]time.Time),
		nowFn: func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryRefreshLocker) Acquire(_ context.Context, key string, ttl time.Duration) (LockHandle, error) {
	if l == nil {
		return nil, fmt.Errorf("core: refresh locker is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("core: lock key is required for lock acquisition")
	}
	if ttl <= 0 {
		ttl = defaultRefreshLockTTL
	}

	now := l.nowFn()
	l.mu.Lock()
	defer l.mu.Unlock()

	if until, ok := l.locks[key]; ok && now.Before(until) {
		return nil, fmt.Errorf("core: refresh lock already held for %q", key)
	}
	l.locks[key] = now.Add(ttl)
	return &memoryLockHandle{locker: l, key: key}, nil
}

type memoryLockHandle struct {
	locker *MemoryRefreshLocker
	key    string
	once   sync.Once
}

func (h *memoryLockHandle) Unlock(_ context.Context) error {
	if h == nil || h.locker == nil {
		return nil
	}
	h.once.Do(func() {
		h.locker.mu.Lock()
		delete(h.locker.locks, h.key)
		h.locker.mu.Unlock()
	})
	return nil
}
