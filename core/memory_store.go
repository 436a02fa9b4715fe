package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStateStore keeps the token and per stream bookmarks in process.
// It backs tests and ephemeral deployments that do not need durability.
type MemoryStateStore struct {
	mu        sync.Mutex
	token     Token
	hasToken  bool
	bookmarks map[string]Bookmark
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{bookmarks: map[string]Bookmark{}}
}

func (s *MemoryStateStore) GetToken(_ context.Context) (Token, error) {
	if s == nil {
		return Token{}, fmt.Errorf("core: state store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasToken {
		return Token{}, ErrTokenNotFound
	}
	return cloneToken(s.token), nil
}

func (s *MemoryStateStore) PutToken(_ context.Context, token Token) error {
	if s == nil {
		return fmt.Errorf("core: state store is not configured")
	}
	if strings.TrimSpace(token.Value) == "" {
		return fmt.Errorf("core: token value is required")
	}
	s.mu.Lock()
	s.token = cloneToken(token)
	s.hasToken = true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) DeleteToken(_ context.Context) error {
	if s == nil {
		return fmt.Errorf("core: state store is not configured")
	}
	s.mu.Lock()
	s.token = Token{}
	s.hasToken = false
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) GetBookmark(_ context.Context, stream string) (Bookmark, error) {
	if s == nil {
		return Bookmark{}, fmt.Errorf("core: state store is not configured")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return Bookmark{}, fmt.Errorf("core: stream name is required")
	}
	s.mu.Lock()
	bookmark, ok := s.bookmarks[stream]
	s.mu.Unlock()
	if !ok {
		return Bookmark{}, ErrBookmarkNotFound
	}
	return cloneBookmark(bookmark), nil
}

func (s *MemoryStateStore) PutBookmark(_ context.Context, bookmark Bookmark) error {
	if s == nil {
		return fmt.Errorf("core: state store is not configured")
	}
	if err := bookmark.Validate(); err != nil {
		return err
	}
	if bookmark.UpdatedAt.IsZero() {
		bookmark.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.bookmarks[strings.TrimSpace(bookmark.Stream)] = cloneBookmark(bookmark)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStateStore) DeleteBookmark(_ context.Context, stream string) error {
	if s == nil {
		return fmt.Errorf("core: state store is not configured")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return fmt.Errorf("core: stream name is required")
	}
	s.mu.Lock()
	delete(s.bookmarks, stream)
	s.mu.Unlock()
	return nil
}

var _ StateStore = (*MemoryStateStore)(nil)

// MemoryCredentialStore keeps a single account credential set in process.
// Production deployments typically seed it from configuration or replace
// it with the file backed store.
type MemoryCredentialStore struct {
	mu    sync.Mutex
	creds Credentials
	set   bool
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{}
}

func (s *MemoryCredentialStore) GetCredentials(_ context.Context) (Credentials, error) {
	if s == nil {
		return Credentials{}, fmt.Errorf("core: credential store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.set {
		return Credentials{}, ErrCredentialsNotFound
	}
	return cloneCredentials(s.creds), nil
}

func (s *MemoryCredentialStore) PutCredentials(_ context.Context, creds Credentials) error {
	if s == nil {
		return fmt.Errorf("core: credential store is not configured")
	}
	if err := creds.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.creds = cloneCredentials(creds)
	s.set = true
	s.mu.Unlock()
	return nil
}

var _ CredentialStore = (*MemoryCredentialStore)(nil)

func cloneToken(token Token) Token {
	cloned := token
	cloned.Metadata = copyAnyMap(token.Metadata)
	if len(token.Metadata) == 0 {
		cloned.Metadata = nil
	}
	return cloned
}

func cloneBookmark(bookmark Bookmark) Bookmark {
	cloned := bookmark
	cloned.Metadata = copyAnyMap(bookmark.Metadata)
	if len(bookmark.Metadata) == 0 {
		cloned.Metadata = nil
	}
	return cloned
}

func cloneCredentials(creds Credentials) Credentials {
	cloned := creds
	cloned.Metadata = copyAnyMap(creds.Metadata)
	if len(creds.Metadata) == 0 {
		cloned.Metadata = nil
	}
	return cloned
}
