package file

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-vendit/core"
)

func TestStore_TokenRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetToken(context.Background()); !errors.Is(err, core.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound before any write, got %v", err)
	}

	token := core.Token{
		Value:     "tok-123",
		ExpiresAt: time.Now().UTC().Add(time.Hour).Truncate(time.Second),
		IssuedAt:  time.Now().UTC().Truncate(time.Second),
	}
	if err := store.PutToken(context.Background(), token); err != nil {
		t.Fatalf("put token: %v", err)
	}

	loaded, err := store.GetToken(context.Background())
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if loaded.Value != token.Value {
		t.Fatalf("expected token value %q, got %q", token.Value, loaded.Value)
	}
	if !loaded.ExpiresAt.Equal(token.ExpiresAt) {
		t.Fatalf("expected expiry %s, got %s", token.ExpiresAt, loaded.ExpiresAt)
	}

	if err := store.DeleteToken(context.Background()); err != nil {
		t.Fatalf("delete token: %v", err)
	}
	if _, err := store.GetToken(context.Background()); !errors.Is(err, core.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound after delete, got %v", err)
	}
}

func TestStore_TokenSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	token := core.Token{Value: "tok-warm", ExpiresAt: time.Now().UTC().Add(time.Hour)}
	if err := store.PutToken(context.Background(), token); err != nil {
		t.Fatalf("put token: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	loaded, err := reopened.GetToken(context.Background())
	if err != nil {
		t.Fatalf("get token after reopen: %v", err)
	}
	if loaded.Value != "tok-warm" {
		t.Fatalf("expected warm start token, got %q", loaded.Value)
	}
}

func TestStore_BookmarksMergeIndependently(t *testing.T) {
	store := newTestStore(t)

	first := core.Bookmark{Stream: "products", Kind: core.CursorKindID, Value: "120"}
	second := core.Bookmark{Stream: "orders", Kind: core.CursorKindTimestamp, Value: "2024-03-01T10:00:00Z"}
	if err := store.PutBookmark(context.Background(), first); err != nil {
		t.Fatalf("put first bookmark: %v", err)
	}
	if err := store.PutBookmark(context.Background(), second); err != nil {
		t.Fatalf("put second bookmark: %v", err)
	}

	// Overwriting one stream must not disturb the other.
	first.Value = "360"
	if err := store.PutBookmark(context.Background(), first); err != nil {
		t.Fatalf("advance first bookmark: %v", err)
	}

	got, err := store.GetBookmark(context.Background(), "products")
	if err != nil {
		t.Fatalf("get products bookmark: %v", err)
	}
	if got.Value != "360" {
		t.Fatalf("expected advanced bookmark 360, got %q", got.Value)
	}
	other, err := store.GetBookmark(context.Background(), "orders")
	if err != nil {
		t.Fatalf("get orders bookmark: %v", err)
	}
	if other.Value != "2024-03-01T10:00:00Z" {
		t.Fatalf("orders bookmark was disturbed: %q", other.Value)
	}

	if err := store.DeleteBookmark(context.Background(), "products"); err != nil {
		t.Fatalf("delete bookmark: %v", err)
	}
	if _, err := store.GetBookmark(context.Background(), "products"); !errors.Is(err, core.ErrBookmarkNotFound) {
		t.Fatalf("expected ErrBookmarkNotFound after delete, got %v", err)
	}
}

func TestStore_WritesAtomicallyWithOwnerOnlyPerms(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.PutToken(context.Background(), core.Token{
		Value:     "tok-perm",
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}); err != nil {
		t.Fatalf("put token: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat state file: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}

	// No temp files may linger after a successful write.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read state dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the state file, found %d entries", len(entries))
	}
}

func TestStore_CorruptDocumentSurfaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}
	store, err := New(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := store.GetToken(context.Background()); err == nil {
		t.Fatalf("expected corrupt document to surface an error")
	}
}

func TestStore_LegacyCodecKeepsFlatShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	store, err := New(path, WithTokenCodec(core.LegacySecretsTokenCodec{}))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	expires := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Second)
	if err := store.PutToken(context.Background(), core.Token{Value: "tok-legacy", ExpiresAt: expires}); err != nil {
		t.Fatalf("put token: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	doc := struct {
		TokenFormat string          `json:"token_format"`
		Token       json.RawMessage `json:"token"`
	}{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.TokenFormat != core.TokenPayloadFormatLegacySecrets {
		t.Fatalf("expected legacy token format marker, got %q", doc.TokenFormat)
	}
	payload := struct {
		AccessToken string `json:"access_token"`
		Expire      int64  `json:"expire"`
	}{}
	if err := json.Unmarshal(doc.Token, &payload); err != nil {
		t.Fatalf("decode legacy payload: %v", err)
	}
	if payload.AccessToken != "tok-legacy" || payload.Expire != expires.Unix() {
		t.Fatalf("unexpected legacy payload: %+v", payload)
	}

	loaded, err := store.GetToken(context.Background())
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if loaded.Value != "tok-legacy" || !loaded.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected token after round trip: %+v", loaded)
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}
