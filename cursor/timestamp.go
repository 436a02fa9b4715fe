package cursor

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-vendit/core"
)

const (
	paramModifiedSince = "modifiedSince"
	paramOrderBy       = "orderBy"
	paramSort          = "sort"
	sortAscending      = "asc"
)

// TimestampStrategy pages through endpoints filtered by a modification
// instant. Requests order ascending on the cursor field so the maximum
// observed value is always on the last page seen.
type TimestampStrategy struct {
	// CursorField is the record field carrying the modification instant,
	// for example "modifiedDate".
	CursorField string
	// PageSize is the requested page length. A page shorter than this is
	// the last one.
	PageSize int
}

var _ Strategy = (*TimestampStrategy)(nil)

func (s *TimestampStrategy) Kind() core.CursorKind {
	return core.CursorKindTimestamp
}

func (s *TimestampStrategy) Initial(start string) (Position, error) {
	start = strings.TrimSpace(start)
	if start == "" {
		return Position{Kind: core.CursorKindTimestamp}, nil
	}
	parsed, err := core.ParseCursorTime(start)
	if err != nil {
		return Position{}, wrapBadCursorError(err, fmt.Sprintf("cursor: start value %q is not a timestamp", start))
	}
	return Position{Kind: core.CursorKindTimestamp, Value: formatCursorTime(parsed)}, nil
}

func (s *TimestampStrategy) RequestParams(pos Position) map[string]string {
	params := map[string]string{
		paramSort: sortAscending,
	}
	if field := strings.TrimSpace(s.CursorField); field != "" {
		params[paramOrderBy] = field
	}
	if s.PageSize > 0 {
		params[paramPageSize] = strconv.Itoa(s.PageSize)
	}
	if value := strings.TrimSpace(pos.Value); value != "" {
		params[paramModifiedSince] = value
	}
	return params
}

func (s *TimestampStrategy) Advance(pos Position, page Page) (Position, bool, error) {
	if len(page.Records) == 0 {
		return pos, true, nil
	}
	field := strings.TrimSpace(s.CursorField)
	if field == "" {
		return Position{}, false, badCursorError("cursor: timestamp strategy requires a cursor field")
	}

	current, err := parseTimestampPosition(pos)
	if err != nil {
		return Position{}, false, err
	}
	next := current
	seen := false
	for _, record := range page.Records {
		instant, ok := record.TimeField(field)
		if !ok {
			continue
		}
		seen = true
		if instant.After(next) {
			next = instant
		}
	}
	if !seen {
		return Position{}, false, badCursorError(fmt.Sprintf("cursor: no record in page carries timestamp field %q", field))
	}

	done := s.PageSize <= 0 || len(page.Records) < s.PageSize
	return Position{Kind: core.CursorKindTimestamp, Value: formatCursorTime(next)}, done, nil
}

// parseTimestampPosition reads a timestamp cursor value, treating the empty
// position as the zero instant.
func parseTimestampPosition(pos Position) (time.Time, error) {
	value := strings.TrimSpace(pos.Value)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := core.ParseCursorTime(value)
	if err != nil {
		return time.Time{}, wrapBadCursorError(err, fmt.Sprintf("cursor: position %q is not a timestamp", value))
	}
	return parsed, nil
}

func formatCursorTime(instant time.Time) string {
	return instant.UTC().Format(time.RFC3339Nano)
}
