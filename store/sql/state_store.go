package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-vendit/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StateStore persists the warm-start token copy and per stream bookmarks
// in SQL. Token rows are versioned and append-only so an operator can
// trace when each token was issued; reads always take the newest version.
type StateStore struct {
	db           *bun.DB
	tokenRepo    repository.Repository[*tokenRecord]
	bookmarkRepo repository.Repository[*bookmarkRecord]
	codec        core.TokenCodec
}

type StateStoreOption func(*StateStore)

// WithStateTokenCodec overrides the codec the token payload column uses.
func WithStateTokenCodec(codec core.TokenCodec) StateStoreOption {
	return func(s *StateStore) {
		if codec != nil {
			s.codec = codec
		}
	}
}

func NewStateStore(db *bun.DB, opts ...StateStoreOption) (*StateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	tokenRepo := repository.NewRepository[*tokenRecord](db, tokenHandlers())
	if validator, ok := tokenRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid token repository wiring: %w", err)
		}
	}
	bookmarkRepo := repository.NewRepository[*bookmarkRecord](db, bookmarkHandlers())
	if validator, ok := bookmarkRepo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid bookmark repository wiring: %w", err)
		}
	}
	store := &StateStore{
		db:           db,
		tokenRepo:    tokenRepo,
		bookmarkRepo: bookmarkRepo,
		codec:        core.JSONTokenCodec{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *StateStore) GetToken(ctx context.Context) (core.Token, error) {
	if s == nil || s.db == nil {
		return core.Token{}, fmt.Errorf("sqlstore: state store is not configured")
	}
	record := &tokenRecord{}
	err := s.db.NewSelect().
		Model(record).
		OrderExpr("?TableAlias.version DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Token{}, core.ErrTokenNotFound
		}
		return core.Token{}, err
	}
	token, err := s.codec.Decode(record.Payload)
	if err != nil {
		return core.Token{}, fmt.Errorf("sqlstore: decode token version %d: %w", record.Version, err)
	}
	if token.IsZero() {
		return core.Token{}, core.ErrTokenNotFound
	}
	return token, nil
}

// PutToken appends a new token version. Concurrent writers racing on the
// same version number retry once on the unique violation.
func (s *StateStore) PutToken(ctx context.Context, token core.Token) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: state store is not configured")
	}
	if strings.TrimSpace(token.Value) == "" {
		return fmt.Errorf("sqlstore: token value is required")
	}
	payload, err := s.codec.Encode(token)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for attempt := 0; attempt < 2; attempt++ {
			version, err := nextTokenVersionTx(ctx, tx)
			if err != nil {
				return err
			}
			record := &tokenRecord{
				ID:             uuid.NewString(),
				Version:        version,
				Payload:        payload,
				PayloadFormat:  s.codec.Format(),
				PayloadVersion: s.codec.Version(),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if !token.ExpiresAt.IsZero() {
				expires := token.ExpiresAt.UTC()
				record.ExpiresAt = &expires
			}
			if !token.IssuedAt.IsZero() {
				issued := token.IssuedAt.UTC()
				record.IssuedAt = &issued
			}
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			if insertErr == nil {
				return nil
			}
			if !isUniqueViolation(insertErr) || attempt > 0 {
				return insertErr
			}
		}
		return fmt.Errorf("sqlstore: token version allocation kept colliding")
	})
}

func (s *StateStore) DeleteToken(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: state store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*tokenRecord)(nil)).
		Where("1 = 1").
		Exec(ctx)
	return err
}

func (s *StateStore) GetBookmark(ctx context.Context, stream string) (core.Bookmark, error) {
	if s == nil || s.db == nil {
		return core.Bookmark{}, fmt.Errorf("sqlstore: state store is not configured")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return core.Bookmark{}, fmt.Errorf("sqlstore: stream name is required")
	}
	record := &bookmarkRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.stream = ?", stream).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.Bookmark{}, core.ErrBookmarkNotFound
		}
		return core.Bookmark{}, err
	}
	return record.toDomain(), nil
}

// PutBookmark upserts the stream's single bookmark row inside one
// transaction. A lost insert race falls back to updating the winner's row.
func (s *StateStore) PutBookmark(ctx context.Context, bookmark core.Bookmark) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: state store is not configured")
	}
	if err := bookmark.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if bookmark.UpdatedAt.IsZero() {
		bookmark.UpdatedAt = now
	}
	stream := strings.TrimSpace(bookmark.Stream)

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findBookmarkTx(ctx, tx, stream)
		if err != nil {
			return err
		}
		if record == nil {
			record = newBookmarkRecord(bookmark, now)
			record.ID = uuid.NewString()
			_, insertErr := tx.NewInsert().Model(record).Exec(ctx)
			if insertErr == nil {
				return nil
			}
			if !isUniqueViolation(insertErr) {
				return insertErr
			}
			record, err = findBookmarkTx(ctx, tx, stream)
			if err != nil {
				return err
			}
			if record == nil {
				return insertErr
			}
		}
		record.Kind = string(bookmark.Kind)
		record.Value = strings.TrimSpace(bookmark.Value)
		record.Metadata = copyAnyMap(bookmark.Metadata)
		record.UpdatedAt = bookmark.UpdatedAt.UTC()
		_, updateErr := tx.NewUpdate().Model(record).Where("id = ?", record.ID).Exec(ctx)
		return updateErr
	})
}

func (s *StateStore) DeleteBookmark(ctx context.Context, stream string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: state store is not configured")
	}
	stream = strings.TrimSpace(stream)
	if stream == "" {
		return fmt.Errorf("sqlstore: stream name is required")
	}
	_, err := s.db.NewDelete().
		Model((*bookmarkRecord)(nil)).
		Where("stream = ?", stream).
		Exec(ctx)
	return err
}

func nextTokenVersionTx(ctx context.Context, tx bun.Tx) (int, error) {
	var current sql.NullInt64
	err := tx.NewSelect().
		Model((*tokenRecord)(nil)).
		ColumnExpr("MAX(?TableAlias.version)").
		Scan(ctx, &current)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	if !current.Valid {
		return 1, nil
	}
	return int(current.Int64) + 1, nil
}

func findBookmarkTx(ctx context.Context, tx bun.Tx, stream string) (*bookmarkRecord, error) {
	record := &bookmarkRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.stream = ?", stream).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

var _ core.StateStore = (*StateStore)(nil)
