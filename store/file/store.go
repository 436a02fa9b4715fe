// Package file persists extraction state as a single JSON document on
// disk. It suits single process deployments that need warm starts without
// a database: the token survives restarts and every bookmark commit is an
// atomic temp-file-plus-rename, so readers never observe a torn document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-vendit/core"
)

const stateDocumentVersion = 1

// Store implements core.StateStore over one JSON file. The token payload
// goes through a TokenCodec so deployments that still carry the legacy
// flat secrets shape can keep their file readable.
type Store struct {
	mu    sync.Mutex
	path  string
	codec core.TokenCodec
}

type Option func(*Store)

// WithTokenCodec overrides the codec used for the embedded token payload.
func WithTokenCodec(codec core.TokenCodec) Option {
	return func(s *Store) {
		if codec != nil {
			s.codec = codec
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("file: state path is required")
	}
	store := &Store{
		path:  path,
		codec: core.JSONTokenCodec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// stateDocument is the on disk shape. Token is an opaque payload in the
// codec's format; bookmarks are stored verbatim.
type stateDocument struct {
	Version     int                      `json:"version"`
	TokenFormat string                   `json:"token_format,omitempty"`
	Token       json.RawMessage          `json:"token,omitempty"`
	Bookmarks   map[string]core.Bookmark `json:"bookmarks,omitempty"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

func (s *Store) GetToken(_ context.Context) (core.Token, error) {
	if s == nil {
		return core.Token{}, fmt.Errorf("file: state store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return core.Token{}, err
	}
	if len(doc.Token) == 0 {
		return core.Token{}, core.ErrTokenNotFound
	}
	token, err := s.codec.Decode(doc.Token)
	if err != nil {
		return core.Token{}, fmt.Errorf("file: decode persisted token: %w", err)
	}
	if token.IsZero() {
		return core.Token{}, core.ErrTokenNotFound
	}
	return token, nil
}

func (s *Store) PutToken(_ context.Context, token core.Token) error {
	if s == nil {
		return fmt.Errorf("file: state store is not configured")
	}
	if strings.TrimSpace(token.Value) == "" {
		return fmt.Errorf("file: token value is required")
	}
	payload, err := s.codec.Encode(token)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(doc *stateDocument) {
		doc.Token = payload
		doc.TokenFormat = s.codec.Format()
	})
}

func (s *Store) DeleteToken(_ context.Context) error {
	if s == nil {
		return fmt.Errorf("file: state store is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(doc *stateDocument) {
		doc.Token = nil
		doc.TokenFormat = ""
	})
}

func (s *Store) GetBookmark(_ context.Context, stream string) (core.Bookmark, error) {
	if s == nil {
		return core.Bookmark{}, fmt.Errorf("file: state store is not configured")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return core.Bookmark{}, fmt.Errorf("file: stream name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return core.Bookmark{}, err
	}
	bookmark, ok := doc.Bookmarks[stream]
	if !ok || bookmark.IsZero() {
		return core.Bookmark{}, core.ErrBookmarkNotFound
	}
	return bookmark, nil
}

func (s *Store) PutBookmark(_ context.Context, bookmark core.Bookmark) error {
	if s == nil {
		return fmt.Errorf("file: state store is not configured")
	}
	if err := bookmark.Validate(); err != nil {
		return err
	}
	if bookmark.UpdatedAt.IsZero() {
		bookmark.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(doc *stateDocument) {
		if doc.Bookmarks == nil {
			doc.Bookmarks = map[string]core.Bookmark{}
		}
		doc.Bookmarks[strings.TrimSpace(bookmark.Stream)] = bookmark
	})
}

func (s *Store) DeleteBookmark(_ context.Context, stream string) error {
	if s == nil {
		return fmt.Errorf("file: state store is not configured")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return fmt.Errorf("file: stream name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(doc *stateDocument) {
		delete(doc.Bookmarks, stream)
	})
}

// update applies mutate to the current document and rewrites the file in
// one atomic step. Caller holds the lock.
func (s *Store) update(mutate func(doc *stateDocument)) error {
	doc, err := s.load()
	if err != nil {
		return err
	}
	mutate(&doc)
	doc.Version = stateDocumentVersion
	doc.UpdatedAt = time.Now().UTC()
	return s.write(doc)
}

func (s *Store) load() (stateDocument, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return stateDocument{Version: stateDocumentVersion}, nil
	}
	if err != nil {
		return stateDocument{}, fmt.Errorf("file: read state %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return stateDocument{Version: stateDocumentVersion}, nil
	}
	doc := stateDocument{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return stateDocument{}, fmt.Errorf("file: state %s is corrupt: %w", s.path, err)
	}
	return doc, nil
}

// write marshals the document to a sibling temp file and renames it over
// the target. The rename is what makes concurrent readers safe.
func (s *Store) write(doc stateDocument) error {
	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode state: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("file: create state dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("file: create temp state file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("file: write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("file: close temp state file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("file: chmod temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("file: replace state file %s: %w", s.path, err)
	}
	return nil
}

var _ core.StateStore = (*Store)(nil)
