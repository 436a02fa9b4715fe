package cursor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-vendit/core"
)

const (
	// PathPlaceholder marks where a path-positioned cursor value is
	// substituted into a stream path.
	PathPlaceholder = "{position}"

	// DefaultUnixField is the record field carrying the unix cursor value
	// when a descriptor does not name one.
	DefaultUnixField = "unix_timestamp"
)

// UnixStrategy pages through endpoints that take a unix timestamp in the
// URL path and report continuation through a has-more flag. The position is
// a unix time in seconds rendered as a decimal string.
type UnixStrategy struct {
	// CursorField is the record field carrying the unix value. Defaults to
	// DefaultUnixField.
	CursorField string
}

var _ Strategy = (*UnixStrategy)(nil)

func (s *UnixStrategy) Kind() core.CursorKind {
	return core.CursorKindUnix
}

func (s *UnixStrategy) Initial(start string) (Position, error) {
	start = strings.TrimSpace(start)
	if start == "" {
		return Position{Kind: core.CursorKindUnix, Value: "0"}, nil
	}
	if unix, err := strconv.ParseInt(start, 10, 64); err == nil {
		return Position{Kind: core.CursorKindUnix, Value: strconv.FormatInt(unix, 10)}, nil
	}
	parsed, err := core.ParseCursorTime(start)
	if err != nil {
		return Position{}, wrapBadCursorError(err, fmt.Sprintf("cursor: start value %q is neither unix seconds nor a timestamp", start))
	}
	return Position{Kind: core.CursorKindUnix, Value: strconv.FormatInt(parsed.Unix(), 10)}, nil
}

// RequestParams is empty for unix cursors; the position travels in the URL
// path through ExpandPath.
func (s *UnixStrategy) RequestParams(Position) map[string]string {
	return map[string]string{}
}

func (s *UnixStrategy) Advance(pos Position, page Page) (Position, bool, error) {
	done := len(page.Records) == 0 || page.HasMore == nil || !*page.HasMore
	if len(page.Records) == 0 {
		return pos, done, nil
	}

	current, err := parseNumericPosition(pos)
	if err != nil {
		return Position{}, false, err
	}
	field := s.field()
	next := current
	for _, record := range page.Records {
		unix, ok := record.Int64Field(field)
		if !ok {
			continue
		}
		if unix > next {
			next = unix
		}
	}
	return Position{Kind: core.CursorKindUnix, Value: strconv.FormatInt(next, 10)}, done, nil
}

func (s *UnixStrategy) field() string {
	if field := strings.TrimSpace(s.CursorField); field != "" {
		return field
	}
	return DefaultUnixField
}

// ExpandPath substitutes the position value into a path template. Paths
// without the placeholder are returned unchanged.
func ExpandPath(path string, pos Position) string {
	return strings.ReplaceAll(path, PathPlaceholder, strings.TrimSpace(pos.Value))
}
