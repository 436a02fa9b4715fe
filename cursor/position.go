package cursor

import (
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-vendit/core"
)

// Position is a stream's replication cursor at one point in time. Value is
// the canonical string form for its kind: a decimal integer for id and
// unix, an RFC3339 instant for timestamp. The empty value means "from the
// beginning".
type Position struct {
	Kind  core.CursorKind
	Value string
}

func (p Position) IsZero() bool {
	return strings.TrimSpace(p.Value) == ""
}

// Bookmark converts the position into a persistable bookmark for a stream.
func (p Position) Bookmark(stream string) core.Bookmark {
	return core.Bookmark{
		Stream:    strings.TrimSpace(stream),
		Kind:      p.Kind,
		Value:     strings.TrimSpace(p.Value),
		UpdatedAt: time.Now().UTC(),
	}
}

// FromBookmark rebuilds the position a bookmark was committed at.
func FromBookmark(bookmark core.Bookmark) Position {
	return Position{
		Kind:  bookmark.Kind,
		Value: strings.TrimSpace(bookmark.Value),
	}
}

// Page is one decoded response page as the advance step sees it: the
// records plus the envelope's has-more flag. HasMore is nil when the
// envelope did not carry the field.
type Page struct {
	Records []core.Record
	HasMore *bool
}

// Strategy computes request positioning and bookmark advancement for one
// cursor kind. Implementations are stateless; the position travels through
// the call sites.
type Strategy interface {
	Kind() core.CursorKind

	// Initial derives the first position from a configured start value.
	// An empty start yields the kind's beginning-of-stream position.
	Initial(start string) (Position, error)

	// RequestParams returns the query parameters that request the page at
	// pos. Kinds that ride the URL path instead return an empty map.
	RequestParams(pos Position) map[string]string

	// Advance folds a page into the next position. done reports that the
	// stream is exhausted for this cycle. The returned position never
	// moves backwards relative to pos.
	Advance(pos Position, page Page) (Position, bool, error)
}

// ForDescriptor builds the strategy a stream descriptor asks for.
func ForDescriptor(descriptor core.StreamDescriptor) (Strategy, error) {
	if err := descriptor.Validate(); err != nil {
		return nil, err
	}
	switch descriptor.CursorKind {
	case core.CursorKindID:
		field := strings.TrimSpace(descriptor.CursorField)
		if field == "" {
			field = strings.TrimSpace(descriptor.IDField)
		}
		return &IDStrategy{IDField: field, PageSize: descriptor.PageSize}, nil
	case core.CursorKindTimestamp:
		return &TimestampStrategy{
			CursorField: strings.TrimSpace(descriptor.CursorField),
			PageSize:    descriptor.PageSize,
		}, nil
	case core.CursorKindUnix:
		return &UnixStrategy{CursorField: strings.TrimSpace(descriptor.CursorField)}, nil
	}
	return nil, badCursorError(fmt.Sprintf("cursor: kind %q is invalid", descriptor.CursorKind))
}

// badCursorError marks a cursor misconfiguration or malformed position with
// the shared taxonomy so callers classify it as non-retryable.
func badCursorError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithTextCode(core.ServiceErrorBadInput)
}

func wrapBadCursorError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, message).
		WithTextCode(core.ServiceErrorBadInput)
}
