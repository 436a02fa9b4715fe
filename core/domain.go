package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrCredentialsNotFound = errors.New("core: credentials not found")
	ErrTokenNotFound       = errors.New("core: token not found")
	ErrBookmarkNotFound    = errors.New("core: bookmark not found")
	ErrBookmarkConflict    = errors.New("core: bookmark conflict")
	ErrSyncRunNotFound     = errors.New("core: sync run not found")
	ErrStreamNotFound      = errors.New("core: stream not found")
)

// Credentials is the durable credential set for one Vendit account.
type Credentials struct {
	APIKey   string         `json:"api_key"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (c Credentials) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("core: api key is required")
	}
	if strings.TrimSpace(c.Username) == "" {
		return fmt.Errorf("core: username is required")
	}
	if strings.TrimSpace(c.Password) == "" {
		return fmt.Errorf("core: password is required")
	}
	return nil
}

// Token is an issued access token with its absolute expiry. The copy held
// by the token manager is authoritative; persisted copies are a cache.
type Token struct {
	Value     string         `json:"value"`
	ExpiresAt time.Time      `json:"expires_at"`
	IssuedAt  time.Time      `json:"issued_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (t Token) IsZero() bool {
	return strings.TrimSpace(t.Value) == "" && t.ExpiresAt.IsZero()
}

// Fresh reports whether the token is still usable given the validity
// margin: now must sit strictly before expires_at - margin.
func (t Token) Fresh(now time.Time, margin time.Duration) bool {
	if strings.TrimSpace(t.Value) == "" || t.ExpiresAt.IsZero() {
		return false
	}
	if margin < 0 {
		margin = 0
	}
	return now.UTC().Before(t.ExpiresAt.UTC().Add(-margin))
}

type CursorKind string

const (
	CursorKindID        CursorKind = "id"
	CursorKindTimestamp CursorKind = "timestamp"
	CursorKindUnix      CursorKind = "unix"
)

func (k CursorKind) Valid() bool {
	switch k {
	case CursorKindID, CursorKindTimestamp, CursorKindUnix:
		return true
	default:
		return false
	}
}

// Bookmark is the committed replication position for one stream. Value
// holds the canonical string encoding for the bookmark's cursor kind:
// a decimal id, an RFC3339 timestamp, or decimal unix seconds.
type Bookmark struct {
	Stream    string         `json:"stream"`
	Kind      CursorKind     `json:"kind"`
	Value     string         `json:"value"`
	UpdatedAt time.Time      `json:"updated_at,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (b Bookmark) IsZero() bool {
	return strings.TrimSpace(b.Value) == ""
}

func (b Bookmark) Validate() error {
	if strings.TrimSpace(b.Stream) == "" {
		return fmt.Errorf("core: bookmark stream is required")
	}
	if !b.Kind.Valid() {
		return fmt.Errorf("core: bookmark cursor kind %q is invalid", b.Kind)
	}
	if strings.TrimSpace(b.Value) == "" {
		return fmt.Errorf("core: bookmark value is required")
	}
	return nil
}

// Record is one decoded API object.
type Record map[string]any

// Int64Field reads a numeric field, tolerating the JSON number shapes the
// API actually emits.
func (r Record) Int64Field(name string) (int64, bool) {
	raw, ok := r[name]
	if !ok {
		return 0, false
	}
	switch typed := raw.(type) {
	case int:
		return int64(typed), true
	case int64:
		return typed, true
	case float64:
		return int64(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return parsed, true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func (r Record) StringField(name string) (string, bool) {
	raw, ok := r[name]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok {
		return "", false
	}
	return value, true
}

// TimeField parses an RFC3339 or fractional-second timestamp field.
func (r Record) TimeField(name string) (time.Time, bool) {
	value, ok := r.StringField(name)
	if !ok {
		return time.Time{}, false
	}
	parsed, err := ParseCursorTime(value)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// ParseCursorTime accepts the timestamp shapes Vendit emits: RFC3339 with
// or without fractional seconds, and the bare millisecond form without a
// zone suffix that some endpoints return.
func ParseCursorTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("core: timestamp value is empty")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000", "2006-01-02T15:04:05"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("core: unparseable timestamp %q", value)
}

func (r Record) Clone() Record {
	if r == nil {
		return Record{}
	}
	out := make(Record, len(r))
	for key, value := range r {
		out[key] = value
	}
	return out
}

// StreamDescriptor declares one replicable stream: its endpoint, cursor
// wiring, and page sizing. Paths may carry a {position} placeholder that
// the client substitutes with the encoded cursor position.
type StreamDescriptor struct {
	Name         string
	Path         string
	Method       string
	IDField      string
	CursorField  string
	CursorKind   CursorKind
	PageSize     int
	DefaultStart string
	Metadata     map[string]any
}

func (d StreamDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("core: stream name is required")
	}
	if strings.TrimSpace(d.Path) == "" {
		return fmt.Errorf("core: stream path is required")
	}
	if !d.CursorKind.Valid() {
		return fmt.Errorf("core: stream %q cursor kind %q is invalid", d.Name, d.CursorKind)
	}
	return nil
}

type SyncRunStatus string

const (
	SyncRunStatusQueued    SyncRunStatus = "queued"
	SyncRunStatusRunning   SyncRunStatus = "running"
	SyncRunStatusSucceeded SyncRunStatus = "succeeded"
	SyncRunStatusFailed    SyncRunStatus = "failed"
	SyncRunStatusCanceled  SyncRunStatus = "canceled"
)

var allowedSyncRunTransitions = map[SyncRunStatus][]SyncRunStatus{
	SyncRunStatusQueued:    {SyncRunStatusRunning, SyncRunStatusCanceled},
	SyncRunStatusRunning:   {SyncRunStatusSucceeded, SyncRunStatusFailed, SyncRunStatusCanceled},
	SyncRunStatusFailed:    {SyncRunStatusQueued, SyncRunStatusRunning},
	SyncRunStatusSucceeded: {},
	SyncRunStatusCanceled:  {},
}

func (s SyncRunStatus) CanTransitionTo(next SyncRunStatus) bool {
	for _, allowed := range allowedSyncRunTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type SyncRunMode string

const (
	SyncRunModeFull        SyncRunMode = "full"
	SyncRunModeIncremental SyncRunMode = "incremental"
)

// SyncRun tracks one extraction pass over a stream.
type SyncRun struct {
	ID            string
	Stream        string
	Mode          SyncRunMode
	Status        SyncRunStatus
	Checkpoint    string
	Attempts      int
	RecordCount   int64
	PageCount     int
	LastError     string
	NextAttemptAt *time.Time
	Metadata      map[string]any
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *SyncRun) TransitionTo(next SyncRunStatus) error {
	if r == nil {
		return fmt.Errorf("core: sync run is nil")
	}
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("core: invalid sync run transition %s -> %s", r.Status, next)
	}
	r.Status = next
	return nil
}
