package core

import (
	"context"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func noDelayOptions() RefreshRunOptions {
	return RefreshRunOptions{
		Scheduler: ExponentialBackoffScheduler{Initial: time.Nanosecond, Max: time.Nanosecond},
		Jitter:    func(time.Duration) time.Duration { return 0 },
	}
}

func TestRunRefreshWithRetry_RetriesAndSucceeds(t *testing.T) {
	issuer := &scriptedTokenIssuer{
		errs: []error{
			goerrors.New("temporary upstream error", goerrors.CategoryExternal),
			nil,
		},
	}

	opts := noDelayOptions()
	opts.MaxAttempts = 3
	result, err := RunRefreshWithRetry(context.Background(), func(ctx context.Context) (Token, error) {
		return issuer.IssueToken(ctx, Credentials{})
	}, opts)
	if err != nil {
		t.Fatalf("run refresh with retry: %v", err)
	}
	if result.Attempts != 2 {
		t.Fatalf("expected success on second attempt, got %d", result.Attempts)
	}
	if result.Token.Value == "" {
		t.Fatalf("expected issued token")
	}
}

func TestRunRefreshWithRetry_AbortsOnCredentialRejection(t *testing.T) {
	issuer := &scriptedTokenIssuer{
		errs: []error{
			NewAuthError("invalid credentials", AuthReasonInvalidCredentials),
		},
	}

	opts := noDelayOptions()
	opts.MaxAttempts = 5
	result, err := RunRefreshWithRetry(context.Background(), func(ctx context.Context) (Token, error) {
		return issuer.IssueToken(ctx, Credentials{})
	}, opts)
	if err == nil {
		t.Fatalf("expected credential rejection to surface")
	}
	if result.Attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", result.Attempts)
	}
	if issuer.callCount() != 1 {
		t.Fatalf("expected no retry after a definitive rejection, got %d calls", issuer.callCount())
	}
}

func TestRunRefreshWithRetry_ExhaustsBudget(t *testing.T) {
	issuer := &scriptedTokenIssuer{
		errs: []error{
			NewTransientError("503 from token endpoint", 503),
			NewTransientError("503 from token endpoint", 503),
			NewTransientError("503 from token endpoint", 503),
		},
	}

	opts := noDelayOptions()
	opts.MaxAttempts = 3
	_, err := RunRefreshWithRetry(context.Background(), func(ctx context.Context) (Token, error) {
		return issuer.IssueToken(ctx, Credentials{})
	}, opts)
	if err == nil {
		t.Fatalf("expected exhaustion error")
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if richErr.TextCode != ServiceErrorAuthFailed {
		t.Fatalf("expected %s, got %s", ServiceErrorAuthFailed, richErr.TextCode)
	}
	if richErr.Metadata["reason"] != AuthReasonRetriesExhausted {
		t.Fatalf("expected retries_exhausted reason, got %#v", richErr.Metadata["reason"])
	}
	if issuer.callCount() != 3 {
		t.Fatalf("expected the full attempt budget to be spent, got %d calls", issuer.callCount())
	}
}

func TestRunRefreshWithRetry_HonorsRetryAfterHint(t *testing.T) {
	var waited time.Duration
	opts := RefreshRunOptions{
		MaxAttempts: 2,
		Scheduler:   ExponentialBackoffScheduler{Initial: time.Millisecond, Max: time.Millisecond},
		Jitter: func(delay time.Duration) time.Duration {
			waited = delay
			return 0
		},
	}

	hinted := goerrors.New("throttled", goerrors.CategoryRateLimit).
		WithTextCode(ServiceErrorRateLimited).
		WithMetadata(map[string]any{"retry_after_seconds": 7})
	if hint := retryAfterHint(hinted); hint != 7*time.Second {
		t.Fatalf("expected 7s hint, got %s", hint)
	}

	calls := 0
	_, err := RunRefreshWithRetry(context.Background(), func(context.Context) (Token, error) {
		calls++
		if calls == 1 {
			return Token{}, NewTransientError("try later", 503)
		}
		return Token{Value: "tok_2", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}, opts)
	if err != nil {
		t.Fatalf("run refresh with retry: %v", err)
	}
	if waited != time.Millisecond {
		t.Fatalf("expected scheduler delay to flow through jitter, got %s", waited)
	}
}

func TestRunRefreshWithRetry_FailsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryRefreshLocker()
	handle, err := locker.Acquire(ctx, "vendit.token", defaultRefreshLockTTL)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	defer func() { _ = handle.Unlock(ctx) }()

	opts := noDelayOptions()
	opts.MaxAttempts = 1
	opts.LockKey = "vendit.token"
	opts.Locker = locker
	_, err = RunRefreshWithRetry(ctx, func(context.Context) (Token, error) {
		return Token{Value: "tok_1"}, nil
	}, opts)
	if err == nil || !strings.Contains(strings.ToLower(err.Error()), "lock") {
		t.Fatalf("expected lock contention error, got %v", err)
	}
}

func TestMemoryRefreshLocker_ReleaseAllowsReacquire(t *testing.T) {
	ctx := context.Background()
	locker := NewMemoryRefreshLocker()

	handle, err := locker.Acquire(ctx, "vendit.token", time.Minute)
	if err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	if _, err := locker.Acquire(ctx, "vendit.token", time.Minute); err == nil {
		t.Fatalf("expected held lock to refuse a second acquire")
	}
	if err := handle.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := locker.Acquire(ctx, "vendit.token", time.Minute); err != nil {
		t.Fatalf("expected reacquire after unlock, got %v", err)
	}
}

func TestMemoryRefreshLocker_ExpiredLockIsReclaimable(t *testing.T) {
	locker := NewMemoryRefreshLocker()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	locker.nowFn = func() time.Time { return base }

	if _, err := locker.Acquire(context.Background(), "vendit.token", time.Minute); err != nil {
		t.Fatalf("acquire lock: %v", err)
	}
	locker.nowFn = func() time.Time { return base.Add(2 * time.Minute) }
	if _, err := locker.Acquire(context.Background(), "vendit.token", time.Minute); err != nil {
		t.Fatalf("expected expired lock to be reclaimable, got %v", err)
	}
}

func TestExponentialBackoffScheduler_DoublesAndCaps(t *testing.T) {
	scheduler := ExponentialBackoffScheduler{Initial: time.Second, Max: 10 * time.Second}
	cases := map[int]time.Duration{
		0: time.Second,
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		4: 8 * time.Second,
		5: 10 * time.Second,
		9: 10 * time.Second,
	}
	for attempt, want := range cases {
		if got := scheduler.NextDelay(attempt); got != want {
			t.Fatalf("attempt %d: expected %s, got %s", attempt, want, got)
		}
	}

	defaulted := ExponentialBackoffScheduler{}
	if got := defaulted.NextDelay(1); got != DefaultInitialBackoff {
		t.Fatalf("expected zero-value scheduler to use defaults, got %s", got)
	}
}

func TestJitterBackoffDelay_NeverBelowBase(t *testing.T) {
	base := 4 * time.Second
	for i := 0; i < 50; i++ {
		jittered := jitterBackoffDelay(base)
		if jittered < base {
			t.Fatalf("expected jitter to only stretch the delay, got %s", jittered)
		}
		if jittered > base+base/4 {
			t.Fatalf("expected at most 25%% spread, got %s", jittered)
		}
	}
	if jitterBackoffDelay(0) != 0 {
		t.Fatalf("expected zero delay to stay zero")
	}
}
