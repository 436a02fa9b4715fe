package cursor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-vendit/core"
)

const (
	paramLastID   = "lastId"
	paramPageSize = "pageSize"
)

// IDStrategy pages through endpoints ordered by a monotonically increasing
// numeric identifier. Each request asks for records above the last seen id,
// and the stream is exhausted when a page comes back empty or short.
type IDStrategy struct {
	// IDField is the record field carrying the identifier, for example
	// "productId".
	IDField string
	// PageSize is the requested page length. A page shorter than this is
	// the last one.
	PageSize int
}

var _ Strategy = (*IDStrategy)(nil)

func (s *IDStrategy) Kind() core.CursorKind {
	return core.CursorKindID
}

func (s *IDStrategy) Initial(start string) (Position, error) {
	start = strings.TrimSpace(start)
	if start == "" {
		return Position{Kind: core.CursorKindID}, nil
	}
	id, err := strconv.ParseInt(start, 10, 64)
	if err != nil {
		return Position{}, wrapBadCursorError(err, fmt.Sprintf("cursor: start value %q is not a numeric id", start))
	}
	return Position{Kind: core.CursorKindID, Value: strconv.FormatInt(id, 10)}, nil
}

func (s *IDStrategy) RequestParams(pos Position) map[string]string {
	params := map[string]string{}
	if s.PageSize > 0 {
		params[paramPageSize] = strconv.Itoa(s.PageSize)
	}
	if value := strings.TrimSpace(pos.Value); value != "" {
		params[paramLastID] = value
	}
	return params
}

func (s *IDStrategy) Advance(pos Position, page Page) (Position, bool, error) {
	if len(page.Records) == 0 {
		return pos, true, nil
	}
	field := strings.TrimSpace(s.IDField)
	if field == "" {
		return Position{}, false, badCursorError("cursor: id strategy requires an id field")
	}

	current, err := parseNumericPosition(pos)
	if err != nil {
		return Position{}, false, err
	}
	next := current
	seen := false
	for _, record := range page.Records {
		id, ok := record.Int64Field(field)
		if !ok {
			continue
		}
		seen = true
		if id > next {
			next = id
		}
	}
	if !seen {
		return Position{}, false, badCursorError(fmt.Sprintf("cursor: no record in page carries id field %q", field))
	}

	done := s.PageSize <= 0 || len(page.Records) < s.PageSize
	return Position{Kind: core.CursorKindID, Value: strconv.FormatInt(next, 10)}, done, nil
}

// parseNumericPosition reads an integer cursor value, treating the empty
// position as the beginning of the stream.
func parseNumericPosition(pos Position) (int64, error) {
	value := strings.TrimSpace(pos.Value)
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, wrapBadCursorError(err, fmt.Sprintf("cursor: position %q is not numeric", value))
	}
	return parsed, nil
}
