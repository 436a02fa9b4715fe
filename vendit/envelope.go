package vendit

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/goliatone/go-vendit/core"
	"github.com/goliatone/go-vendit/cursor"
)

// Envelope is one decoded response page. HasMore is nil when the payload
// did not carry the flag.
type Envelope struct {
	Records []core.Record
	HasMore *bool
}

// DecodePage parses a Vendit response body into records. The API answers in
// four shapes: an object with an items array, an object with a results
// array, a bare array, or a single object. Optiply records missing the unix
// cursor field are stamped with the request position so advancement never
// regresses.
func DecodePage(body []byte, descriptor core.StreamDescriptor, position string) (Envelope, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return Envelope{Records: []core.Record{}}, nil
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return Envelope{}, fmt.Errorf("vendit: decode %s page: %w", descriptor.Name, err)
	}

	envelope := Envelope{}
	switch typed := payload.(type) {
	case []any:
		records, err := recordsFromElements(typed, descriptor.Name)
		if err != nil {
			return Envelope{}, err
		}
		envelope.Records = records
	case map[string]any:
		if hasMore, ok := typed["hasMore"].(bool); ok {
			envelope.HasMore = &hasMore
		}
		switch {
		case hasKey(typed, "items"):
			records, err := recordsFromListKey(typed, "items", descriptor.Name)
			if err != nil {
				return Envelope{}, err
			}
			envelope.Records = records
		case hasKey(typed, "results"):
			records, err := recordsFromListKey(typed, "results", descriptor.Name)
			if err != nil {
				return Envelope{}, err
			}
			envelope.Records = records
		default:
			envelope.Records = []core.Record{core.Record(typed)}
		}
	default:
		return Envelope{}, fmt.Errorf("vendit: %s page is neither an object nor an array", descriptor.Name)
	}

	for _, record := range envelope.Records {
		flattenPurchasePrice(record)
		stampUnixCursor(record, descriptor, position)
	}
	return envelope, nil
}

// Decoder adapts DecodePage to the page decoding contract the pagination
// engine consumes.
type Decoder struct{}

func (Decoder) DecodePage(body []byte, descriptor core.StreamDescriptor, position string) (cursor.Page, error) {
	envelope, err := DecodePage(body, descriptor, position)
	if err != nil {
		return cursor.Page{}, err
	}
	return cursor.Page{Records: envelope.Records, HasMore: envelope.HasMore}, nil
}

func hasKey(payload map[string]any, key string) bool {
	_, ok := payload[key]
	return ok
}

func recordsFromListKey(payload map[string]any, key string, stream string) ([]core.Record, error) {
	raw := payload[key]
	if raw == nil {
		return []core.Record{}, nil
	}
	elements, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("vendit: %s %s field is not an array", stream, key)
	}
	return recordsFromElements(elements, stream)
}

func recordsFromElements(elements []any, stream string) ([]core.Record, error) {
	records := make([]core.Record, 0, len(elements))
	for i, element := range elements {
		object, ok := element.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("vendit: %s element %d is not an object", stream, i)
		}
		records = append(records, core.Record(object))
	}
	return records, nil
}

// flattenPurchasePrice lifts the nested productPurchasePrice fields to the
// top level for supplier product records. The nested object stays in place.
func flattenPurchasePrice(record core.Record) {
	nested, ok := record["productPurchasePrice"].(map[string]any)
	if !ok {
		return
	}
	for _, field := range []string{"productPurchasePriceId", "purchasePriceEx"} {
		if _, exists := record[field]; exists {
			continue
		}
		if value, ok := nested[field]; ok {
			record[field] = value
		}
	}
}

func stampUnixCursor(record core.Record, descriptor core.StreamDescriptor, position string) {
	if descriptor.CursorKind != core.CursorKindUnix {
		return
	}
	field := strings.TrimSpace(descriptor.CursorField)
	if field == "" {
		field = UnixCursorField
	}
	if value, exists := record[field]; exists && value != nil {
		return
	}
	unix, err := strconv.ParseInt(strings.TrimSpace(position), 10, 64)
	if err != nil {
		return
	}
	record[field] = unix
}
