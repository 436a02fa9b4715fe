package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// recordingLogger captures log lines so tests can assert on the message
// stream without standing up a real sink.
type recordingLogger struct {
	mu    sync.Mutex
	lines map[string][]string
}

func (l *recordingLogger) record(level string, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lines == nil {
		l.lines = map[string][]string{}
	}
	line := message
	if len(args) > 0 {
		line = fmt.Sprintf("%s %v", message, args)
	}
	l.lines[level] = append(l.lines[level], line)
}

func (l *recordingLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *recordingLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *recordingLogger) WithContext(context.Context) glog.Logger { return l }

func (l *recordingLogger) sawInfoContaining(fragment string) bool {
	return l.sawLevelContaining("info", fragment)
}

func (l *recordingLogger) sawWarnContaining(fragment string) bool {
	return l.sawLevelContaining("warn", fragment)
}

func (l *recordingLogger) sawLevelContaining(level string, fragment string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines[level] {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}

func (l *recordingLogger) infoLines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines["info"]...)
}

// scriptedTokenIssuer returns canned tokens or errors in order, then keeps
// repeating the final entry.
type scriptedTokenIssuer struct {
	mu     sync.Mutex
	tokens []Token
	errs   []error
	calls  int
}

func (i *scriptedTokenIssuer) IssueToken(context.Context, Credentials) (Token, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	index := i.calls
	i.calls++
	if index < len(i.errs) && i.errs[index] != nil {
		return Token{}, i.errs[index]
	}
	if len(i.tokens) == 0 {
		return Token{Value: fmt.Sprintf("tok_%d", index+1), ExpiresAt: time.Now().UTC().Add(time.Hour)}, nil
	}
	if index >= len(i.tokens) {
		index = len(i.tokens) - 1
	}
	return i.tokens[index], nil
}

func (i *scriptedTokenIssuer) callCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls
}

// staticTokenSource hands out one fixed token, tracking invalidations.
type staticTokenSource struct {
	mu           sync.Mutex
	token        Token
	next         *Token
	invalidated  int
	issuedTokens int
}

func (s *staticTokenSource) Token(context.Context) (Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issuedTokens++
	return s.token, nil
}

func (s *staticTokenSource) Invalidate(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidated++
	if s.next != nil {
		s.token = *s.next
		s.next = nil
	}
	return nil
}

func (s *staticTokenSource) Cached() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// scriptedTransport replays canned responses in order and records every
// outbound request it sees.
type scriptedTransport struct {
	mu        sync.Mutex
	responses []TransportResponse
	errs      []error
	requests  []TransportRequest
}

func (t *scriptedTransport) Kind() string { return "scripted" }

func (t *scriptedTransport) Do(_ context.Context, req TransportRequest) (TransportResponse, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	index := len(t.requests)
	t.requests = append(t.requests, req)
	if index < len(t.errs) && t.errs[index] != nil {
		return TransportResponse{}, t.errs[index]
	}
	if len(t.responses) == 0 {
		return TransportResponse{StatusCode: 200}, nil
	}
	if index >= len(t.responses) {
		index = len(t.responses) - 1
	}
	return t.responses[index], nil
}

func (t *scriptedTransport) requestCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

func (t *scriptedTransport) requestAt(index int) TransportRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	if index < 0 || index >= len(t.requests) {
		return TransportRequest{}
	}
	return t.requests[index]
}

func seededCredentialStore(t interface{ Fatalf(string, ...any) }) *MemoryCredentialStore {
	store := NewMemoryCredentialStore()
	if err := store.PutCredentials(context.Background(), Credentials{
		APIKey:   "key_1",
		Username: "svc_account",
		Password: "pw",
	}); err != nil {
		t.Fatalf("seed credentials: %v", err)
	}
	return store
}

func noSleep(context.Context, time.Duration) error { return nil }
