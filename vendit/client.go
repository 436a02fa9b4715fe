package vendit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-vendit/core"
)

const (
	defaultTokenRequestTimeout = 30 * time.Second
	maxTokenResponseBodyBytes  = 1 << 20
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenClientConfig wires the issuance client. Zero values fall back to the
// staging token endpoint and a 30s request timeout.
type TokenClientConfig struct {
	TokenURL   string
	Timeout    time.Duration
	UserAgent  string
	HTTPClient HTTPDoer
	Now        func() time.Time
}

// TokenClient obtains Vendit API tokens. The endpoint takes the credentials
// as query parameters on a bodyless POST and answers with the token and an
// absolute expiry in unix seconds.
type TokenClient struct {
	config     TokenClientConfig
	httpClient HTTPDoer
}

func NewTokenClient(cfg TokenClientConfig) *TokenClient {
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = core.DefaultAuthTokenURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTokenRequestTimeout
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &TokenClient{
		config: TokenClientConfig{
			TokenURL:  tokenURL,
			Timeout:   timeout,
			UserAgent: strings.TrimSpace(cfg.UserAgent),
			Now:       now,
		},
		httpClient: httpClient,
	}
}

func (c *TokenClient) IssueToken(ctx context.Context, credentials core.Credentials) (core.Token, error) {
	if c == nil || c.httpClient == nil {
		return core.Token{}, core.NewFatalError("vendit: token client requires an http client", 0)
	}
	if err := credentials.Validate(); err != nil {
		return core.Token{}, err
	}

	endpoint, err := url.Parse(c.config.TokenURL)
	if err != nil {
		return core.Token{}, core.NewFatalError(fmt.Sprintf("vendit: invalid token url %q", c.config.TokenURL), 0)
	}
	query := endpoint.Query()
	query.Set("apiKey", credentials.APIKey)
	query.Set("username", credentials.Username)
	query.Set("password", credentials.Password)
	endpoint.RawQuery = query.Encode()

	if ctx == nil {
		ctx = context.Background()
	}
	requestCtx := ctx
	cancel := func() {}
	if c.config.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return core.Token{}, core.NewFatalError(fmt.Sprintf("vendit: build token request: %v", err), 0)
	}
	httpReq.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.Token{}, core.NewTransientError(fmt.Sprintf("vendit: token request failed: %v", err), 0)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBodyBytes+1))
	if readErr != nil {
		return core.Token{}, core.NewTransientError(fmt.Sprintf("vendit: read token response: %v", readErr), response.StatusCode)
	}
	if int64(len(body)) > maxTokenResponseBodyBytes {
		return core.Token{}, core.NewFatalError(
			fmt.Sprintf("vendit: token response exceeds %d bytes", maxTokenResponseBodyBytes),
			response.StatusCode,
		)
	}

	if err := classifyIssueStatus(response.StatusCode); err != nil {
		return core.Token{}, err
	}
	return c.decodeTokenPayload(body, response.StatusCode)
}

// classifyIssueStatus sorts non-2xx token responses into the retryable and
// terminal buckets the refresh loop understands.
func classifyIssueStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusBadRequest:
		return core.NewAuthError(
			fmt.Sprintf("vendit: token endpoint rejected the credentials with status %d", status),
			core.AuthReasonInvalidCredentials,
		)
	case status == http.StatusTooManyRequests || status >= 500:
		return core.NewTransientError(fmt.Sprintf("vendit: token endpoint returned status %d", status), status)
	default:
		return core.NewFatalError(fmt.Sprintf("vendit: token endpoint returned status %d", status), status)
	}
}

func (c *TokenClient) decodeTokenPayload(body []byte, status int) (core.Token, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return core.Token{}, core.NewAuthError("vendit: token response was empty", core.AuthReasonEmptyResponse)
	}

	payload := map[string]any{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.Token{}, core.NewAuthError(
			fmt.Sprintf("vendit: token response was not valid json (status %d)", status),
			core.AuthReasonEmptyResponse,
		)
	}

	value := strings.TrimSpace(readAnyString(payload["token"]))
	if value == "" {
		value = strings.TrimSpace(readAnyString(payload["access_token"]))
	}
	if value == "" {
		return core.Token{}, core.NewAuthError("vendit: token response carried no token", core.AuthReasonEmptyResponse)
	}

	now := c.config.Now().UTC()
	token := core.Token{
		Value:    value,
		IssuedAt: now,
		Metadata: sanitizeTokenMetadata(payload),
	}

	// Absolute expiries take precedence over the relative expires_in shape.
	switch {
	case readAnyInt64(payload["expire"]) > 0:
		token.ExpiresAt = time.Unix(readAnyInt64(payload["expire"]), 0).UTC()
	case readAnyInt64(payload["expires_at"]) > 0:
		token.ExpiresAt = time.Unix(readAnyInt64(payload["expires_at"]), 0).UTC()
	case readAnyInt64(payload["expires_in"]) > 0:
		token.ExpiresAt = now.Add(time.Duration(readAnyInt64(payload["expires_in"])) * time.Second)
	}

	return token, nil
}

func sanitizeTokenMetadata(payload map[string]any) map[string]any {
	metadata := make(map[string]any, len(payload))
	for key, value := range payload {
		metadata[key] = value
	}
	delete(metadata, "token")
	delete(metadata, "access_token")
	delete(metadata, "refresh_token")
	return metadata
}

func readAnyString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case fmt.Stringer:
		return typed.String()
	default:
		return ""
	}
}

func readAnyInt64(value any) int64 {
	switch typed := value.(type) {
	case int:
		return int64(typed)
	case int64:
		return typed
	case float64:
		return int64(typed)
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed
		}
		if parsed, err := typed.Float64(); err == nil {
			return int64(parsed)
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

var _ core.TokenIssuer = (*TokenClient)(nil)
