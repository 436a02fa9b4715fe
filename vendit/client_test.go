package vendit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goliatone/go-vendit/core"
)

func testCredentials() core.Credentials {
	return core.Credentials{
		APIKey:   "key-456",
		Username: "integrations@example.com",
		Password: "s3cret",
	}
}

func TestTokenClient_IssuesTokenFromVenditShape(t *testing.T) {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"tok-123","expire":1700000600}`))
	}))
	defer server.Close()

	client := NewTokenClient(TokenClientConfig{
		TokenURL:   server.URL + "/Api/GetToken",
		HTTPClient: server.Client(),
	})

	token, err := client.IssueToken(context.Background(), testCredentials())
	if err != nil {
		t.Fatalf("expected issuance to succeed, got %v", err)
	}

	if captured == nil {
		t.Fatalf("expected the endpoint to receive a request")
	}
	if captured.Method != http.MethodPost {
		t.Fatalf("expected POST, got %q", captured.Method)
	}
	query := captured.URL.Query()
	if query.Get("apiKey") != "key-456" {
		t.Fatalf("expected apiKey query param, got %q", query.Get("apiKey"))
	}
	if query.Get("username") != "integrations@example.com" {
		t.Fatalf("expected username query param, got %q", query.Get("username"))
	}
	if query.Get("password") != "s3cret" {
		t.Fatalf("expected password query param, got %q", query.Get("password"))
	}
	if got := captured.Header.Get("Accept"); got != "application/json" {
		t.Fatalf("expected Accept application/json, got %q", got)
	}

	if token.Value != "tok-123" {
		t.Fatalf("expected token value tok-123, got %q", token.Value)
	}
	if want := time.Unix(1700000600, 0).UTC(); !token.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, token.ExpiresAt)
	}
	if _, leaked := token.Metadata["token"]; leaked {
		t.Fatalf("expected token value to be stripped from metadata")
	}
}

func TestTokenClient_IssuesTokenFromGenericShape(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()

	testCases := []struct {
		name string
		body string
		want time.Time
	}{
		{
			name: "relative expires_in",
			body: `{"access_token":"tok-9","expires_in":3600}`,
			want: now.Add(time.Hour),
		},
		{
			name: "absolute expires_at",
			body: `{"access_token":"tok-9","expires_at":1700007200}`,
			want: time.Unix(1700007200, 0).UTC(),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewTokenClient(TokenClientConfig{
				TokenURL:   server.URL,
				HTTPClient: server.Client(),
				Now:        func() time.Time { return now },
			})

			token, err := client.IssueToken(context.Background(), testCredentials())
			if err != nil {
				t.Fatalf("expected issuance to succeed, got %v", err)
			}
			if token.Value != "tok-9" {
				t.Fatalf("expected token value tok-9, got %q", token.Value)
			}
			if !token.ExpiresAt.Equal(tc.want) {
				t.Fatalf("expected expiry %s, got %s", tc.want, token.ExpiresAt)
			}
		})
	}
}

func TestTokenClient_EmptyResponsesAreAuthFailures(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{name: "empty body", body: ""},
		{name: "missing token field", body: `{"expire":1700000600}`},
		{name: "not json", body: "<html>gateway</html>"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewTokenClient(TokenClientConfig{TokenURL: server.URL, HTTPClient: server.Client()})
			_, err := client.IssueToken(context.Background(), testCredentials())
			if err == nil {
				t.Fatalf("expected error")
			}
			if !core.IsAuthError(err) {
				t.Fatalf("expected auth error, got %v", err)
			}
			if reason := core.AuthErrorReason(err); reason != core.AuthReasonEmptyResponse {
				t.Fatalf("expected reason %q, got %q", core.AuthReasonEmptyResponse, reason)
			}
		})
	}
}

func TestTokenClient_ClassifiesHTTPFailures(t *testing.T) {
	testCases := []struct {
		name   string
		status int
		check  func(error) bool
		kind   string
	}{
		{name: "unauthorized is terminal", status: http.StatusUnauthorized, check: core.IsAuthError, kind: "auth"},
		{name: "forbidden is terminal", status: http.StatusForbidden, check: core.IsAuthError, kind: "auth"},
		{name: "bad request is terminal", status: http.StatusBadRequest, check: core.IsAuthError, kind: "auth"},
		{name: "server error is retryable", status: http.StatusServiceUnavailable, check: core.IsTransientError, kind: "transient"},
		{name: "throttling is retryable", status: http.StatusTooManyRequests, check: core.IsTransientError, kind: "transient"},
		{name: "teapot is fatal", status: http.StatusTeapot, check: core.IsFatalError, kind: "fatal"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer server.Close()

			client := NewTokenClient(TokenClientConfig{TokenURL: server.URL, HTTPClient: server.Client()})
			_, err := client.IssueToken(context.Background(), testCredentials())
			if err == nil {
				t.Fatalf("expected error for status %d", tc.status)
			}
			if !tc.check(err) {
				t.Fatalf("expected %s error for status %d, got %v", tc.kind, tc.status, err)
			}
		})
	}
}

func TestTokenClient_NetworkFailuresAreTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	client := server.Client()
	server.Close()

	tokenClient := NewTokenClient(TokenClientConfig{TokenURL: endpoint, HTTPClient: client})
	_, err := tokenClient.IssueToken(context.Background(), testCredentials())
	if err == nil {
		t.Fatalf("expected connection error")
	}
	if !core.IsTransientError(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestTokenClient_RejectsIncompleteCredentials(t *testing.T) {
	client := NewTokenClient(TokenClientConfig{TokenURL: "https://oauth.staging.vendit.online/Api/GetToken"})
	_, err := client.IssueToken(context.Background(), core.Credentials{APIKey: "key"})
	if err == nil {
		t.Fatalf("expected validation error")
	}
}
