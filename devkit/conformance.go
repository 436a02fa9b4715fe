package devkit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-vendit/core"
)

func nowPlusHour() time.Time {
	return time.Now().UTC().Add(time.Hour)
}

// Conformance checks for the pluggable contracts. Custom implementations
// run these once in their own test suites to confirm they behave the way
// the extraction pipeline expects.

// ValidateTransportAdapterConformance checks the adapter surface contract:
// a stable kind and a Do method that honors context cancellation.
func ValidateTransportAdapterConformance(ctx context.Context, adapter core.TransportAdapter) error {
	if adapter == nil {
		return fmt.Errorf("devkit: transport adapter is nil")
	}
	kind := adapter.Kind()
	if kind == "" {
		return fmt.Errorf("devkit: transport adapter kind must not be empty")
	}
	if adapter.Kind() != kind {
		return fmt.Errorf("devkit: transport adapter kind must be stable")
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := adapter.Do(canceled, core.TransportRequest{
		Method: "GET",
		URL:    "https://devkit.invalid/conformance",
	}); err == nil {
		return fmt.Errorf("devkit: transport adapter must fail on canceled context")
	}
	return nil
}

// ValidateStateStoreConformance checks token and bookmark round trips,
// miss sentinels, and stream isolation.
func ValidateStateStoreConformance(ctx context.Context, store core.StateStore) error {
	if store == nil {
		return fmt.Errorf("devkit: state store is nil")
	}

	if _, err := store.GetToken(ctx); !errors.Is(err, core.ErrTokenNotFound) {
		return fmt.Errorf("devkit: empty store must return ErrTokenNotFound, got %v", err)
	}
	token := core.Token{Value: "tok_conformance", ExpiresAt: nowPlusHour()}
	if err := store.PutToken(ctx, token); err != nil {
		return fmt.Errorf("devkit: put token: %w", err)
	}
	loaded, err := store.GetToken(ctx)
	if err != nil {
		return fmt.Errorf("devkit: get token after put: %w", err)
	}
	if loaded.Value != token.Value {
		return fmt.Errorf("devkit: token value changed across round trip: %q", loaded.Value)
	}
	if err := store.DeleteToken(ctx); err != nil {
		return fmt.Errorf("devkit: delete token: %w", err)
	}
	if _, err := store.GetToken(ctx); !errors.Is(err, core.ErrTokenNotFound) {
		return fmt.Errorf("devkit: deleted token must return ErrTokenNotFound, got %v", err)
	}

	if _, err := store.GetBookmark(ctx, "devkit_stream_a"); !errors.Is(err, core.ErrBookmarkNotFound) {
		return fmt.Errorf("devkit: empty stream must return ErrBookmarkNotFound, got %v", err)
	}
	bookmarkA := core.Bookmark{Stream: "devkit_stream_a", Kind: core.CursorKindID, Value: "41"}
	bookmarkB := core.Bookmark{Stream: "devkit_stream_b", Kind: core.CursorKindUnix, Value: "1700000000"}
	if err := store.PutBookmark(ctx, bookmarkA); err != nil {
		return fmt.Errorf("devkit: put bookmark: %w", err)
	}
	if err := store.PutBookmark(ctx, bookmarkB); err != nil {
		return fmt.Errorf("devkit: put second bookmark: %w", err)
	}
	loadedA, err := store.GetBookmark(ctx, "devkit_stream_a")
	if err != nil {
		return fmt.Errorf("devkit: get bookmark after put: %w", err)
	}
	if loadedA.Value != bookmarkA.Value || loadedA.Kind != bookmarkA.Kind {
		return fmt.Errorf("devkit: bookmark changed across round trip: %+v", loadedA)
	}
	if loadedA.UpdatedAt.IsZero() {
		return fmt.Errorf("devkit: store must stamp bookmark updated_at")
	}
	if err := store.DeleteBookmark(ctx, "devkit_stream_a"); err != nil {
		return fmt.Errorf("devkit: delete bookmark: %w", err)
	}
	if _, err := store.GetBookmark(ctx, "devkit_stream_b"); err != nil {
		return fmt.Errorf("devkit: deleting one stream must not disturb another: %w", err)
	}
	if err := store.DeleteBookmark(ctx, "devkit_stream_b"); err != nil {
		return fmt.Errorf("devkit: cleanup second bookmark: %w", err)
	}
	return nil
}

// ValidateCredentialStoreConformance checks the miss sentinel, rejection
// of invalid credentials, and the read-your-write round trip.
func ValidateCredentialStoreConformance(ctx context.Context, store core.CredentialStore) error {
	if store == nil {
		return fmt.Errorf("devkit: credential store is nil")
	}
	if err := store.PutCredentials(ctx, core.Credentials{APIKey: "key_only"}); err == nil {
		return fmt.Errorf("devkit: store must reject incomplete credentials")
	}
	creds := TestCredentials()
	if err := store.PutCredentials(ctx, creds); err != nil {
		return fmt.Errorf("devkit: put credentials: %w", err)
	}
	loaded, err := store.GetCredentials(ctx)
	if err != nil {
		return fmt.Errorf("devkit: get credentials after put: %w", err)
	}
	if loaded.APIKey != creds.APIKey || loaded.Username != creds.Username || loaded.Password != creds.Password {
		return fmt.Errorf("devkit: credentials changed across round trip")
	}
	return nil
}

// ValidateTokenSourceConformance checks that the source hands out a
// non-empty token and that Invalidate clears the cached copy.
func ValidateTokenSourceConformance(ctx context.Context, source core.TokenSource) error {
	if source == nil {
		return fmt.Errorf("devkit: token source is nil")
	}
	token, err := source.Token(ctx)
	if err != nil {
		return fmt.Errorf("devkit: token source failed to issue: %w", err)
	}
	if token.IsZero() {
		return fmt.Errorf("devkit: token source returned a zero token")
	}
	if err := source.Invalidate(ctx); err != nil {
		return fmt.Errorf("devkit: invalidate: %w", err)
	}
	if cached := source.Cached(); !cached.IsZero() {
		return fmt.Errorf("devkit: invalidate must clear the cached token")
	}
	return nil
}
