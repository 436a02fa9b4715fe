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

type SyncRunStore struct {
	db   *bun.DB
	repo repository.Repository[*syncRunRecord]
}

func NewSyncRunStore(db *bun.DB) (*SyncRunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncRunRecord](db, syncRunHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync run repository wiring: %w", err)
		}
	}
	return &SyncRunStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *SyncRunStore) Create(ctx context.Context, run core.SyncRun) (core.SyncRun, error) {
	if s == nil || s.db == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	if strings.TrimSpace(run.Stream) == "" {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run stream is required")
	}
	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	record := newSyncRunRecord(run, time.Now().UTC())
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return core.SyncRun{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncRunStore) Get(ctx context.Context, id string) (core.SyncRun, error) {
	if s == nil || s.db == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run id is required")
	}
	record := &syncRunRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.SyncRun{}, core.ErrSyncRunNotFound
		}
		return core.SyncRun{}, err
	}
	return record.toDomain(), nil
}

func (s *SyncRunStore) Update(ctx context.Context, run core.SyncRun) (core.SyncRun, error) {
	if s == nil || s.db == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	id := strings.TrimSpace(run.ID)
	if id == "" {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run id is required")
	}
	record := newSyncRunRecord(run, time.Now().UTC())
	result, err := s.db.NewUpdate().
		Model(record).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return core.SyncRun{}, err
	}
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected == 0 {
		return core.SyncRun{}, core.ErrSyncRunNotFound
	}
	return record.toDomain(), nil
}

// ListRecent returns the newest runs for one stream, most recent first.
// An empty stream lists runs across every stream.
func (s *SyncRunStore) ListRecent(ctx context.Context, stream string, limit int) ([]core.SyncRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	var records []*syncRunRecord
	query := s.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(limit)
	if stream = strings.TrimSpace(stream); stream != "" {
		query = query.Where("?TableAlias.stream = ?", stream)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, err
	}
	runs := make([]core.SyncRun, 0, len(records))
	for _, record := range records {
		runs = append(runs, record.toDomain())
	}
	return runs, nil
}

var _ core.SyncRunStore = (*SyncRunStore)(nil)
