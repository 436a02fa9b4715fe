package core

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
)

func newTestExecutor(t *testing.T, transport TransportAdapter, tokens TokenSource, tweak func(*ExecutorConfig)) *APIExecutor {
	t.Helper()
	cfg := ExecutorConfig{
		BaseURL:     "https://api.staging.vendit.online",
		UserAgent:   "go-vendit-test",
		MaxAttempts: 3,
		Tokens:      tokens,
		Credentials: seededCredentialStore(t),
		Transport:   transport,
		Scheduler:   ExponentialBackoffScheduler{Initial: time.Nanosecond, Max: time.Nanosecond},
		Sleep:       noSleep,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	executor, err := NewExecutor(cfg)
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	return executor
}

func TestExecutor_SignsAndSendsRequest(t *testing.T) {
	transport := &scriptedTransport{responses: []TransportResponse{
		{StatusCode: 200, Body: []byte(`[{"id":1}]`)},
	}}
	tokens := &staticTokenSource{token: Token{Value: "tok_1", ExpiresAt: time.Now().Add(time.Hour)}}
	executor := newTestExecutor(t, transport, tokens, nil)

	response, err := executor.Execute(context.Background(), Request{
		Method: "get",
		Path:   "/Api/GetProductsFromId/0",
		Query:  map[string]string{"amount": "100"},
		Stream: "products",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if response.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", response.StatusCode)
	}
	if response.Metadata["attempts"] != 1 {
		t.Fatalf("expected attempt count metadata, got %#v", response.Metadata)
	}

	sent := transport.requestAt(0)
	if sent.Method != http.MethodGet {
		t.Fatalf("expected normalized method, got %q", sent.Method)
	}
	if sent.URL != "https://api.staging.vendit.online/Api/GetProductsFromId/0" {
		t.Fatalf("unexpected url %q", sent.URL)
	}
	if sent.Headers[HeaderToken] != "tok_1" || sent.Headers[HeaderAPIKey] != "key_1" {
		t.Fatalf("expected signed headers, got %#v", sent.Headers)
	}
	if sent.Headers["User-Agent"] != "go-vendit-test" {
		t.Fatalf("expected user agent header, got %#v", sent.Headers)
	}
	if sent.Query["amount"] != "100" {
		t.Fatalf("expected query passthrough, got %#v", sent.Query)
	}
	if sent.Metadata["stream"] != "products" {
		t.Fatalf("expected stream metadata, got %#v", sent.Metadata)
	}
}

func TestExecutor_UnauthorizedReissuesTokenOnce(t *testing.T) {
	transport := &scriptedTransport{responses: []TransportResponse{
		{StatusCode: 401},
		{StatusCode: 200},
	}}
	reissued := Token{Value: "tok_2", ExpiresAt: time.Now().Add(time.Hour)}
	tokens := &staticTokenSource{
		token: Token{Value: "tok_1", ExpiresAt: time.Now().Add(time.Hour)},
		next:  &reissued,
	}
	executor := newTestExecutor(t, transport, tokens, nil)

	response, err := executor.Execute(context.Background(), Request{Path: "/Api/GetProductsFromId/0"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if response.StatusCode != 200 {
		t.Fatalf("expected recovery after reissue, got %d", response.StatusCode)
	}
	if tokens.invalidated != 1 {
		t.Fatalf("expected one invalidation, got %d", tokens.invalidated)
	}
	if got := transport.requestAt(1).Headers[HeaderToken]; got != "tok_2" {
		t.Fatalf("expected second call to carry the reissued token, got %q", got)
	}
}

func TestExecutor_SecondUnauthorizedIsAuthFailure(t *testing.T) {
	transport := &scriptedTransport{responses: []TransportResponse{
		{StatusCode: 401},
		{StatusCode: 401},
	}}
	tokens := &staticTokenSource{token: Token{Value: "tok_1", ExpiresAt: time.Now().Add(time.Hour)}}
	executor := newTestExecutor(t, transport, tokens, nil)

	_, err := executor.Execute(context.Background(), Request{Path: "/Api/GetProductsFromId/0"})
	if err == nil {
		t.Fatalf("expected auth failure")
	}
	if !IsAuthError(err) {
		t.Fatalf("expected auth classification, got %v", err)
	}
	if transport.requestCount() != 2 {
		t.Fatalf("expected exactly one reissued retry, got %d calls", transport.requestCount())
	}
}

func TestExecutor_RetriesTransientStatuses(t *testing.T) {
	transport := &scriptedTransport{responses: []TransportResponse{
		{StatusCode: 503},
		{StatusCode: 429},
		{StatusCode: 200},
	}}
	tokens := &staticTokenSource{token: Token{Value: "tok_1", ExpiresAt: time.Now().Add(time.Hour)}}
	executor := newTestExecutor(t, transport, tokens, nil)

	response, err := executor.Execute(context.Background(), Request{Path: "/Api/GetStockFromDateTime/2024-01-01T00:00:00"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if response.StatusCode != 200 {
		t.Fatalf("expected recovery, got %d", response.StatusCode)
	}
	if response.Metadata["attempts"] != 3 {
		t.Fatalf("expected three attempts, got %#v", response.Metadata["attempts"])
	}
}

func TestExecutor_TransientBudgetExhaustion(t *testing.T) {
	transport := &scriptedTransport{responses: []TransportResponse{
		{StatusCode: 503},
	}}
	tokens := &staticTokenSource{token: Token{Value: "tok_1", ExpiresAt: time.Now().Add(time.Hour)}}
	executor := newTestExecutor(t, transport, tokens, nil)

	_, err := executor.Execute(context.Background(), Request{Path: "/Api/GetProductsFromId/0"})
	if err == nil {
		t.Fatalf("expected exhaustion error")
	}
	if !IsTransientError(err) {
		t.Fatalf("expected transient classification, got %v", err)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error")
	}
	if richErr.Metadata["max_attempts"] != 3 {
		t.Fatalf("expected max_attempts metadata, got %#v", richErr.Metadata)
	}
	if transport.requestCount() != 3 {
		t.Fatalf("expected the full budget, got %d calls", transport.requestCount())
	}
}

func TestExecutor_RateLimitedCarriesRateLimitCode(t *testing.T) {
	transport := &scriptedTransport{responses: []TransportResponse{
		{StatusCode: 429},
	}}
	tokens := &staticTokenSource{token: Token{Value: "tok_1", ExpiresAt: time.Now().Add(time.Hour)}}
	executor := newTestExecutor(t, transport, tokens, func(cfg *ExecutorConfig) {
		cfg.MaxAttempts = 2
	})

	_, err := executor.Execute(context.Background(), Request{Path: "/Api/GetProductsFromId/0"})
	if err == nil {
		t.Fatalf("expected rate limit error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error")
	}
	if richErr.TextCode != ServiceErrorRateLimited {
		t.Fatalf("expected %s, got %s", ServiceErrorRateLimited, richErr.TextCode)
	}
}

func TestExecutor_FatalClientErrorDoesNotRetry(t *testing.T) {
	transport := &scriptedTransport{responses: []TransportResponse{
		{StatusCode: 422, Body: []byte(`{"error":"amount out of range"}`)},
	}}
	tokens := &staticTokenSource{token: Token{Value: "tok_1", ExpiresAt: time.Now().Add(time.Hour)}}
	executor := newTestExecutor(t, transport, tokens, nil)

	_, err := executor.Execute(context.Background(), Request{Path: "/Api/GetProductsFromId/0"})
	if err == nil {
		t.Fatalf("expected fatal error")
	}
	if !IsFatalError(err) {
		t.Fatalf("expected fatal classification, got %v", err)
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected rich error")
	}
	body, _ := richErr.Metadata["body"].(string)
	if !strings.Contains(body, "amount out of range") {
		t.Fatalf("expected diagnostic body excerpt, got %#v", richErr.Metadata)
	}
	if transport.requestCount() != 1 {
		t.Fatalf("expected no retries on 4xx, got %d calls", transport.requestCount())
	}
}

func TestTruncateForDiagnosticsKeepsRuneBoundaries(t *testing.T) {
	// A multibyte rune straddling the cut must be dropped whole, not split.
	body := []byte(strings.Repeat("a", 255) + "é" + strings.Repeat("b", 64))

	got := truncateForDiagnostics(body)
	if !utf8.ValidString(got) {
		t.Fatalf("expected valid utf-8 excerpt, got %q", got)
	}
	if got != strings.Repeat("a", 255) {
		t.Fatalf("expected cut before the straddling rune, got %d bytes", len(got))
	}

	short := truncateForDiagnostics([]byte("  {\"error\":\"café\"}  "))
	if short != `{"error":"café"}` {
		t.Fatalf("expected short body untouched, got %q", short)
	}
}

func TestExecutor_RetryAfterHeaderStretchesDelay(t *testing.T) {
	transport := &scriptedTransport{responses: []TransportResponse{
		{StatusCode: 429, Headers: map[string]string{"Retry-After": "3"}},
		{StatusCode: 200},
	}}
	tokens := &staticTokenSource{token: Token{Value: "tok_1", ExpiresAt: time.Now().Add(time.Hour)}}

	var slept []time.Duration
	executor := newTestExecutor(t, transport, tokens, func(cfg *ExecutorConfig) {
		cfg.Sleep = func(_ context.Context, delay time.Duration) error {
			slept = append(slept, delay)
			return nil
		}
	})

	if _, err := executor.Execute(context.Background(), Request{Path: "/Api/GetProductsFromId/0"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(slept) != 1 {
		t.Fatalf("expected one backoff wait, got %d", len(slept))
	}
	if slept[0] != 3*time.Second {
		t.Fatalf("expected retry-after floor of 3s, got %s", slept[0])
	}
}

func TestExecutor_NetworkErrorRetries(t *testing.T) {
	transport := &scriptedTransport{
		responses: []TransportResponse{{}, {StatusCode: 200}},
		errs:      []error{errTemporaryNetwork},
	}
	tokens := &staticTokenSource{token: Token{Value: "tok_1", ExpiresAt: time.Now().Add(time.Hour)}}
	executor := newTestExecutor(t, transport, tokens, nil)

	response, err := executor.Execute(context.Background(), Request{Path: "/Api/GetProductsFromId/0"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if response.StatusCode != 200 {
		t.Fatalf("expected recovery after network fault, got %d", response.StatusCode)
	}
	if transport.requestCount() != 2 {
		t.Fatalf("expected one retry, got %d calls", transport.requestCount())
	}
}

func TestExecutor_ContextCancellationStopsImmediately(t *testing.T) {
	transport := &scriptedTransport{errs: []error{context.Canceled}}
	tokens := &staticTokenSource{token: Token{Value: "tok_1", ExpiresAt: time.Now().Add(time.Hour)}}
	executor := newTestExecutor(t, transport, tokens, nil)

	_, err := executor.Execute(context.Background(), Request{Path: "/Api/GetProductsFromId/0"})
	if err == nil || !isContextCancellation(err) {
		t.Fatalf("expected cancellation passthrough, got %v", err)
	}
	if transport.requestCount() != 1 {
		t.Fatalf("expected no retries after cancellation, got %d calls", transport.requestCount())
	}
}

func TestExecutor_RateLimitPolicyGatesCalls(t *testing.T) {
	transport := &scriptedTransport{responses: []TransportResponse{{StatusCode: 200}}}
	tokens := &staticTokenSource{token: Token{Value: "tok_1", ExpiresAt: time.Now().Add(time.Hour)}}
	policy := &recordingRateLimitPolicy{}
	executor := newTestExecutor(t, transport, tokens, func(cfg *ExecutorConfig) {
		cfg.RateLimit = policy
	})

	if _, err := executor.Execute(context.Background(), Request{Path: "/Api/GetProductsFromId/0", Stream: "products"}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if policy.beforeCalls != 1 || policy.afterCalls != 1 {
		t.Fatalf("expected policy hooks around the call, got before=%d after=%d", policy.beforeCalls, policy.afterCalls)
	}
	if policy.lastKey.ProviderID != "vendit" || policy.lastKey.ScopeID != "svc_account" {
		t.Fatalf("unexpected rate limit key %#v", policy.lastKey)
	}
	if policy.lastKey.BucketKey != "products" {
		t.Fatalf("expected stream bucket, got %q", policy.lastKey.BucketKey)
	}
}

func TestJoinRequestURL(t *testing.T) {
	joined, err := joinRequestURL("https://api.staging.vendit.online", "Api/GetProductsFromId/0")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined != "https://api.staging.vendit.online/Api/GetProductsFromId/0" {
		t.Fatalf("unexpected join result %q", joined)
	}

	absolute, err := joinRequestURL("https://api.staging.vendit.online", "https://other.vendit.online/Api/GetToken")
	if err != nil {
		t.Fatalf("join absolute: %v", err)
	}
	if absolute != "https://other.vendit.online/Api/GetToken" {
		t.Fatalf("expected absolute passthrough, got %q", absolute)
	}

	if _, err := joinRequestURL("https://api.staging.vendit.online", " "); err == nil {
		t.Fatalf("expected empty path to fail")
	}
	if _, err := joinRequestURL("", "/Api/GetToken"); err == nil {
		t.Fatalf("expected missing base url to fail")
	}
}

func TestParseRetryAfterHeader(t *testing.T) {
	if delay, ok := parseRetryAfterHeader(map[string]string{"Retry-After": "5"}); !ok || delay != 5*time.Second {
		t.Fatalf("expected 5s, got %s ok=%v", delay, ok)
	}
	if delay, ok := parseRetryAfterHeader(map[string]string{"retry-after": "2"}); !ok || delay != 2*time.Second {
		t.Fatalf("expected case-insensitive lookup, got %s ok=%v", delay, ok)
	}
	future := time.Now().UTC().Add(time.Minute).Format(time.RFC1123)
	if delay, ok := parseRetryAfterHeader(map[string]string{"Retry-After": future}); !ok || delay <= 0 {
		t.Fatalf("expected positive delay from http date, got %s ok=%v", delay, ok)
	}
	if _, ok := parseRetryAfterHeader(map[string]string{"Retry-After": "soon"}); ok {
		t.Fatalf("expected unparseable header to be ignored")
	}
	if _, ok := parseRetryAfterHeader(nil); ok {
		t.Fatalf("expected missing headers to be ignored")
	}
}

var errTemporaryNetwork = &temporaryNetworkError{}

type temporaryNetworkError struct{}

func (*temporaryNetworkError) Error() string { return "connection reset by peer" }

type recordingRateLimitPolicy struct {
	beforeCalls int
	afterCalls  int
	lastKey     RateLimitKey
	lastMeta    ProviderResponseMeta
}

func (p *recordingRateLimitPolicy) BeforeCall(_ context.Context, key RateLimitKey) error {
	p.beforeCalls++
	p.lastKey = key
	return nil
}

func (p *recordingRateLimitPolicy) AfterCall(_ context.Context, key RateLimitKey, meta ProviderResponseMeta) error {
	p.afterCalls++
	p.lastKey = key
	p.lastMeta = meta
	return nil
}
