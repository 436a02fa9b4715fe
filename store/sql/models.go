package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

// tokenRecord is one persisted token version. Rows are append-only; the
// highest version is the current warm-start copy.
type tokenRecord struct {
	bun.BaseModel `bun:"table:vendit_tokens,alias:vt"`

	ID             string     `bun:"id,pk"`
	Version        int        `bun:"version,notnull"`
	Payload        []byte     `bun:"payload,notnull"`
	PayloadFormat  string     `bun:"payload_format,notnull"`
	PayloadVersion int        `bun:"payload_version,notnull"`
	ExpiresAt      *time.Time `bun:"expires_at,nullzero"`
	IssuedAt       *time.Time `bun:"issued_at,nullzero"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type bookmarkRecord struct {
	bun.BaseModel `bun:"table:vendit_bookmarks,alias:vb"`

	ID        string         `bun:"id,pk"`
	Stream    string         `bun:"stream,notnull"`
	Kind      string         `bun:"kind,notnull"`
	Value     string         `bun:"value,notnull"`
	Metadata  map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncRunRecord struct {
	bun.BaseModel `bun:"table:vendit_sync_runs,alias:vsr"`

	ID            string         `bun:"id,pk"`
	Stream        string         `bun:"stream,notnull"`
	Mode          string         `bun:"mode,notnull"`
	Status        string         `bun:"status,notnull"`
	Checkpoint    string         `bun:"checkpoint"`
	Attempts      int            `bun:"attempts,notnull"`
	RecordCount   int64          `bun:"record_count,notnull"`
	PageCount     int            `bun:"page_count,notnull"`
	LastError     string         `bun:"last_error"`
	NextAttemptAt *time.Time     `bun:"next_attempt_at,nullzero"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:vendit_rate_limit_states,alias:vrl"`

	ID         string         `bun:"id,pk"`
	ProviderID string         `bun:"provider_id,notnull"`
	ScopeType  string         `bun:"scope_type,notnull"`
	ScopeID    string         `bun:"scope_id,notnull"`
	BucketKey  string         `bun:"bucket_key,notnull"`
	Limit      int            `bun:"limit_value,notnull"`
	Remaining  int            `bun:"remaining,notnull"`
	ResetAt    *time.Time     `bun:"reset_at,nullzero"`
	RetryAfter *int           `bun:"retry_after_seconds,nullzero"`
	Metadata   map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
