package devkit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-vendit/core"
)

// TransportScript is one canned transport exchange.
type TransportScript struct {
	Response core.TransportResponse
	Err      error
}

// FakeTransportAdapter replays scripted responses in call order and records
// every request it sees. When calls outrun the script the final entry
// repeats, so a one-line script models a steady-state endpoint.
type FakeTransportAdapter struct {
	mu       sync.Mutex
	kind     string
	scripts  []TransportScript
	requests []core.TransportRequest
}

func NewFakeTransportAdapter(scripts ...TransportScript) *FakeTransportAdapter {
	return &FakeTransportAdapter{
		kind:    "fake",
		scripts: append([]TransportScript(nil), scripts...),
	}
}

// JSONPageScript builds a 200 script whose body is the JSON encoding of
// records, matching the bare-array page shape the Vendit API serves.
func JSONPageScript(records ...map[string]any) TransportScript {
	if records == nil {
		records = []map[string]any{}
	}
	body, err := json.Marshal(records)
	if err != nil {
		return TransportScript{Err: fmt.Errorf("devkit: encode page fixture: %w", err)}
	}
	return TransportScript{Response: core.TransportResponse{
		StatusCode: 200,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}}
}

// StatusScript builds a script that answers with a bare status code.
func StatusScript(statusCode int, headers map[string]string) TransportScript {
	return TransportScript{Response: core.TransportResponse{
		StatusCode: statusCode,
		Headers:    headers,
	}}
}

func (a *FakeTransportAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *FakeTransportAdapter) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, fmt.Errorf("devkit: fake transport adapter is nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, cloneTransportRequest(req))
	index := len(a.requests) - 1
	if index >= len(a.scripts) {
		index = len(a.scripts) - 1
	}
	if index < 0 {
		return core.TransportResponse{
			StatusCode: 200,
			Headers:    map[string]string{},
			Metadata:   map[string]any{"kind": a.kind},
		}, nil
	}
	script := a.scripts[index]
	return cloneTransportResponse(script.Response), script.Err
}

// Requests returns a copy of every request the adapter has seen.
func (a *FakeTransportAdapter) Requests() []core.TransportRequest {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]core.TransportRequest, 0, len(a.requests))
	for _, item := range a.requests {
		out = append(out, cloneTransportRequest(item))
	}
	return out
}

// RequestPaths returns the path portion of every recorded request URL.
func (a *FakeTransportAdapter) RequestPaths() []string {
	paths := []string{}
	for _, req := range a.Requests() {
		url := req.URL
		if idx := strings.Index(url, "://"); idx >= 0 {
			rest := url[idx+3:]
			if slash := strings.Index(rest, "/"); slash >= 0 {
				url = rest[slash:]
			}
		}
		paths = append(paths, url)
	}
	return paths
}

func cloneTransportRequest(in core.TransportRequest) core.TransportRequest {
	out := core.TransportRequest{
		Method:               in.Method,
		URL:                  in.URL,
		Headers:              map[string]string{},
		Query:                map[string]string{},
		Body:                 append([]byte(nil), in.Body...),
		Metadata:             map[string]any{},
		Timeout:              in.Timeout,
		Idempotency:          in.Idempotency,
		MaxResponseBodyBytes: in.MaxResponseBodyBytes,
	}
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	for key, value := range in.Query {
		out.Query[key] = value
	}
	for key, value := range in.Metadata {
		out.Metadata[key] = value
	}
	return out
}

func cloneTransportResponse(in core.TransportResponse) core.TransportResponse {
	out := core.TransportResponse{
		StatusCode: in.StatusCode,
		Headers:    map[string]string{},
		Body:       append([]byte(nil), in.Body...),
		Metadata:   map[string]any{},
	}
	for key, value := range in.Headers {
		out.Headers[key] = value
	}
	for key, value := range in.Metadata {
		out.Metadata[key] = value
	}
	return out
}

var _ core.TransportAdapter = (*FakeTransportAdapter)(nil)
