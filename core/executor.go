package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

var defaultRetryableStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// ExecutorConfig wires an APIExecutor. Tokens, Credentials, and Transport
// are required; everything else falls back to package defaults.
type ExecutorConfig struct {
	BaseURL              string
	Timeout              time.Duration
	UserAgent            string
	MaxAttempts          int
	MaxResponseBodyBytes int64
	Tokens               TokenSource
	Credentials          CredentialStore
	Signer               RequestSigner
	Transport            TransportAdapter
	RateLimit            RateLimitPolicy
	Scheduler            BackoffScheduler
	Logger               Logger
	Metrics              MetricsRecorder
	Sleep                func(ctx context.Context, delay time.Duration) error
}

// APIExecutor sends authenticated requests to the Vendit REST API. Every
// call is signed with the current token, throttled through the optional
// rate limit policy, and retried on transient failures. A 401 triggers a
// single token reissue before the call is declared an auth failure.
type APIExecutor struct {
	baseURL     string
	timeout     time.Duration
	userAgent   string
	maxAttempts int
	maxBody     int64
	tokens      TokenSource
	credentials CredentialStore
	signer      RequestSigner
	transport   TransportAdapter
	rateLimit   RateLimitPolicy
	scheduler   BackoffScheduler
	logger      Logger
	metrics     MetricsRecorder
	sleepFn     func(ctx context.Context, delay time.Duration) error
}

func NewExecutor(cfg ExecutorConfig) (*APIExecutor, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("core: token source is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("core: credential store is required")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("core: transport adapter is required")
	}

	executor := &APIExecutor{
		baseURL:     strings.TrimSpace(cfg.BaseURL),
		timeout:     cfg.Timeout,
		userAgent:   strings.TrimSpace(cfg.UserAgent),
		maxAttempts: cfg.MaxAttempts,
		maxBody:     cfg.MaxResponseBodyBytes,
		tokens:      cfg.Tokens,
		credentials: cfg.Credentials,
		signer:      cfg.Signer,
		transport:   cfg.Transport,
		rateLimit:   cfg.RateLimit,
		scheduler:   cfg.Scheduler,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		sleepFn:     cfg.Sleep,
	}
	if executor.baseURL == "" {
		executor.baseURL = DefaultAPIBaseURL
	}
	if executor.timeout <= 0 {
		executor.timeout = DefaultRequestTimeout
	}
	if executor.maxAttempts <= 0 {
		executor.maxAttempts = DefaultMaxAttempts
	}
	if executor.signer == nil {
		executor.signer = VenditHeaderSigner{}
	}
	if executor.scheduler == nil {
		executor.scheduler = ExponentialBackoffScheduler{Initial: DefaultInitialBackoff, Max: DefaultMaxBackoff}
	}
	if executor.logger == nil {
		executor.logger = glog.Nop()
	}
	if executor.metrics == nil {
		executor.metrics = NopMetricsRecorder{}
	}
	if executor.sleepFn == nil {
		executor.sleepFn = waitWithContext
	}
	return executor, nil
}

var _ RequestExecutor = (*APIExecutor)(nil)

// Execute performs one logical API call. Transient failures burn through
// the retry budget with exponential backoff; a 401 invalidates the cached
// token and repeats the call once with a freshly issued one; remaining 4xx
// statuses fail immediately.
func (e *APIExecutor) Execute(ctx context.Context, req Request) (TransportResponse, error) {
	if e == nil {
		return TransportResponse{}, fmt.Errorf("core: executor is nil")
	}
	startedAt := time.Now().UTC()

	template, err := e.buildTransportRequest(req)
	if err != nil {
		wrapped := NewFatalError(err.Error(), 0)
		e.observeRequest(ctx, startedAt, req, 0, 0, wrapped)
		return TransportResponse{}, wrapped
	}

	creds, err := e.loadCredentials(ctx)
	if err != nil {
		e.observeRequest(ctx, startedAt, req, 0, 0, err)
		return TransportResponse{}, err
	}
	rateKey := e.rateLimitKey(req, creds)

	var (
		attempts          int
		transientFailures int
		authRetried       bool
	)
	for {
		attempts++

		if e.rateLimit != nil {
			if beforeErr := e.rateLimit.BeforeCall(ctx, rateKey); beforeErr != nil {
				retry, failErr := e.noteTransientFailure(ctx, &transientFailures, beforeErr, 0, nil, attempts)
				if !retry {
					e.observeRequest(ctx, startedAt, req, attempts, 0, failErr)
					return TransportResponse{}, failErr
				}
				continue
			}
		}

		token, tokenErr := e.tokens.Token(ctx)
		if tokenErr != nil {
			e.observeRequest(ctx, startedAt, req, attempts, 0, tokenErr)
			return TransportResponse{}, tokenErr
		}

		transportRequest := cloneTransportRequest(template)
		if signErr := e.signer.Sign(&transportRequest, token, creds); signErr != nil {
			wrapped := NewFatalError(signErr.Error(), 0)
			e.observeRequest(ctx, startedAt, req, attempts, 0, wrapped)
			return TransportResponse{}, wrapped
		}

		response, callErr := e.transport.Do(ctx, transportRequest)
		if callErr != nil {
			if isContextCancellation(callErr) {
				e.observeRequest(ctx, startedAt, req, attempts, 0, callErr)
				return TransportResponse{}, callErr
			}
			retry, failErr := e.noteTransientFailure(ctx, &transientFailures, callErr, 0, nil, attempts)
			if !retry {
				e.observeRequest(ctx, startedAt, req, attempts, 0, failErr)
				return TransportResponse{}, failErr
			}
			continue
		}

		meta := responseMeta(response)
		if e.rateLimit != nil {
			if afterErr := e.rateLimit.AfterCall(ctx, rateKey, meta); afterErr != nil {
				e.logger.Warn("vendit rate limit state update failed", "error", afterErr)
			}
		}

		status := response.StatusCode
		switch {
		case status == http.StatusUnauthorized:
			if authRetried {
				authErr := NewAuthError("vendit rejected the reissued token", AuthReasonInvalidCredentials).
					WithMetadata(map[string]any{
						"reason":      AuthReasonInvalidCredentials,
						"status_code": status,
						"attempts":    attempts,
					})
				e.observeRequest(ctx, startedAt, req, attempts, status, authErr)
				return response, authErr
			}
			authRetried = true
			if invErr := e.tokens.Invalidate(ctx); invErr != nil {
				e.logger.Warn("vendit token invalidate failed", "error", invErr)
			}
			continue

		case slices.Contains(defaultRetryableStatuses, status):
			statusErr := fmt.Errorf("vendit returned status %d", status)
			retry, failErr := e.noteTransientFailure(ctx, &transientFailures, statusErr, status, meta.RetryAfter, attempts)
			if !retry {
				e.observeRequest(ctx, startedAt, req, attempts, status, failErr)
				return response, failErr
			}
			continue

		case status >= http.StatusBadRequest:
			fatalErr := NewFatalError(fmt.Sprintf("vendit request failed with status %d", status), status).
				WithMetadata(map[string]any{
					"status_code": status,
					"attempts":    attempts,
					"body":        truncateForDiagnostics(response.Body),
				})
			e.observeRequest(ctx, startedAt, req, attempts, status, fatalErr)
			return response, fatalErr
		}

		if response.Metadata == nil {
			response.Metadata = map[string]any{}
		}
		response.Metadata["attempts"] = attempts
		e.observeRequest(ctx, startedAt, req, attempts, status, nil)
		return response, nil
	}
}

// noteTransientFailure consumes one slot of the retry budget, waiting out
// the backoff delay when budget remains. It returns retry=false with the
// terminal error once the budget is exhausted or the wait is cancelled.
func (e *APIExecutor) noteTransientFailure(
	ctx context.Context,
	transientFailures *int,
	source error,
	statusCode int,
	retryAfter *time.Duration,
	attempts int,
) (bool, error) {
	*transientFailures++
	if *transientFailures >= e.maxAttempts {
		return false, transientCallError(source, statusCode, attempts, e.maxAttempts)
	}

	delay := jitterBackoffDelay(e.scheduler.NextDelay(*transientFailures))
	if retryAfter != nil && *retryAfter > delay {
		delay = *retryAfter
	}
	e.logger.Debug("vendit request retrying",
		"failure", source.Error(),
		"status_code", statusCode,
		"delay_ms", delay.Milliseconds(),
	)
	if sleepErr := e.sleepFn(ctx, delay); sleepErr != nil {
		return false, sleepErr
	}
	return true, nil
}

func (e *APIExecutor) buildTransportRequest(req Request) (TransportRequest, error) {
	requestURL, err := joinRequestURL(e.baseURL, req.Path)
	if err != nil {
		return TransportRequest{}, err
	}
	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	headers := copyStringMap(req.Headers)
	if e.userAgent != "" {
		if _, ok := headers["User-Agent"]; !ok {
			headers["User-Agent"] = e.userAgent
		}
	}
	if len(req.Body) > 0 {
		if _, ok := headers["Content-Type"]; !ok {
			headers["Content-Type"] = "application/json"
		}
	}

	metadata := copyAnyMap(req.Metadata)
	if strings.TrimSpace(req.Stream) != "" {
		metadata["stream"] = strings.TrimSpace(req.Stream)
	}

	return TransportRequest{
		Method:               method,
		URL:                  requestURL,
		Headers:              headers,
		Query:                copyStringMap(req.Query),
		Body:                 append([]byte(nil), req.Body...),
		Metadata:             metadata,
		Timeout:              e.timeout,
		MaxResponseBodyBytes: e.maxBody,
	}, nil
}

func (e *APIExecutor) loadCredentials(ctx context.Context) (Credentials, error) {
	creds, err := e.credentials.GetCredentials(ctx)
	if err != nil {
		if errors.Is(err, ErrCredentialsNotFound) {
			return Credentials{}, goerrors.Wrap(err, goerrors.CategoryNotFound, "vendit credentials are not configured").
				WithTextCode(ServiceErrorNotFound)
		}
		return Credentials{}, err
	}
	return creds, nil
}

func (e *APIExecutor) rateLimitKey(req Request, creds Credentials) RateLimitKey {
	scopeID := strings.TrimSpace(creds.Username)
	if scopeID == "" {
		scopeID = "default"
	}
	bucket := strings.TrimSpace(req.Stream)
	if bucket == "" {
		bucket = normalizeOperation(strings.TrimSpace(req.Method) + "_" + strings.TrimSpace(req.Path))
	}
	return RateLimitKey{
		ProviderID: "vendit",
		ScopeType:  "account",
		ScopeID:    scopeID,
		BucketKey:  bucket,
	}
}

func (e *APIExecutor) observeRequest(
	ctx context.Context,
	startedAt time.Time,
	req Request,
	attempts int,
	statusCode int,
	err error,
) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	tags := map[string]string{
		"method": strings.TrimSpace(strings.ToUpper(req.Method)),
		"status": status,
	}
	if stream := strings.TrimSpace(req.Stream); stream != "" {
		tags["stream"] = stream
	}
	duration := time.Since(startedAt)
	e.metrics.IncCounter(ctx, "vendit.request.total", 1, tags)
	e.metrics.ObserveHistogram(ctx, "vendit.request.duration_ms", float64(duration.Milliseconds()), tags)

	if err != nil {
		e.logger.Error("vendit request failed",
			"path", req.Path,
			"stream", req.Stream,
			"status_code", statusCode,
			"attempts", attempts,
			"error", err,
		)
		return
	}
	e.logger.Debug("vendit request completed",
		"path", req.Path,
		"stream", req.Stream,
		"status_code", statusCode,
		"attempts", attempts,
		"duration_ms", duration.Milliseconds(),
	)
}

func transientCallError(source error, statusCode int, attempts int, maxAttempts int) error {
	if source == nil {
		source = fmt.Errorf("vendit request failed")
	}
	category := goerrors.CategoryExternal
	textCode := ServiceErrorTransient
	if statusCode == http.StatusTooManyRequests || strings.Contains(strings.ToLower(source.Error()), "throttl") {
		category = goerrors.CategoryRateLimit
		textCode = ServiceErrorRateLimited
	}
	return goerrors.Wrap(source, category, fmt.Sprintf("vendit request failed after %d attempts", attempts)).
		WithTextCode(textCode).
		WithMetadata(map[string]any{
			"status_code":  statusCode,
			"attempts":     attempts,
			"max_attempts": maxAttempts,
		})
}

func responseMeta(response TransportResponse) ProviderResponseMeta {
	meta := ProviderResponseMeta{
		StatusCode: response.StatusCode,
		Headers:    copyStringMap(response.Headers),
		Metadata:   copyAnyMap(response.Metadata),
	}
	if retryAfter, ok := parseRetryAfterHeader(response.Headers); ok {
		meta.RetryAfter = &retryAfter
	}
	return meta
}

func parseRetryAfterHeader(headers map[string]string) (time.Duration, bool) {
	if len(headers) == 0 {
		return 0, false
	}
	raw := ""
	for key, value := range headers {
		if strings.EqualFold(strings.TrimSpace(key), "retry-after") {
			raw = strings.TrimSpace(value)
			break
		}
	}
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second, true
	}
	for _, layout := range []string{time.RFC1123, time.RFC1123Z} {
		if retryAt, err := time.Parse(layout, raw); err == nil {
			if retryAt.After(time.Now().UTC()) {
				return time.Until(retryAt), true
			}
		}
	}
	return 0, false
}

func joinRequestURL(baseURL string, path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("core: request path is required")
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path, nil
	}
	base := strings.TrimSpace(baseURL)
	if base == "" {
		return "", fmt.Errorf("core: base url is required")
	}
	joined, err := url.JoinPath(base, path)
	if err != nil {
		return "", fmt.Errorf("core: invalid request path %q: %w", path, err)
	}
	return joined, nil
}

func truncateForDiagnostics(body []byte) string {
	const limit = 256
	text := strings.TrimSpace(string(body))
	if len(text) <= limit {
		return text
	}
	// Back off to a rune boundary so the cut never splits a multibyte
	// character.
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func cloneTransportRequest(in TransportRequest) TransportRequest {
	return TransportRequest{
		Method:               in.Method,
		URL:                  in.URL,
		Headers:              copyStringMap(in.Headers),
		Query:                copyStringMap(in.Query),
		Body:                 append([]byte(nil), in.Body...),
		Metadata:             copyAnyMap(in.Metadata),
		Timeout:              in.Timeout,
		Idempotency:          in.Idempotency,
		MaxResponseBodyBytes: in.MaxResponseBodyBytes,
	}
}

func copyStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func isContextCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
