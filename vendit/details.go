package vendit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-vendit/core"
)

const (
	// findModifiedFieldID is the Vendit filter field for the last modified
	// instant.
	findModifiedFieldID = 204
	// findComparisonOnOrAfter selects records modified on or after the
	// filter value.
	findComparisonOnOrAfter = 2
	// findTimeLayout is the instant format the Find filter expects.
	findTimeLayout = "2006-01-02T15:04:05.000"

	detailBatchSize = 100
)

// Client exposes the detail expansion endpoints: Find for filtered id
// discovery, GetAllIds for full id listings, GetMultiple for batched record
// hydration, and GetWithDetails for single record expansion. All calls run
// through the request executor and inherit its auth and retry behavior.
type Client struct {
	executor core.RequestExecutor
	pageSize int
}

type ClientOption func(*Client)

// WithFindPageSize overrides the Find pagination window.
func WithFindPageSize(size int) ClientOption {
	return func(c *Client) {
		if size > 0 {
			c.pageSize = size
		}
	}
}

func NewClient(executor core.RequestExecutor, opts ...ClientOption) (*Client, error) {
	if executor == nil {
		return nil, fmt.Errorf("vendit: client requires a request executor")
	}
	client := &Client{
		executor: executor,
		pageSize: core.DefaultPageSize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// FindIDs pages through the Find endpoint collecting ids of records
// modified on or after since. Pagination advances by offset until a page
// comes back empty or short.
func (c *Client) FindIDs(ctx context.Context, entity string, since time.Time) ([]int64, error) {
	if c == nil || c.executor == nil {
		return nil, fmt.Errorf("vendit: client requires a request executor")
	}
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return nil, fmt.Errorf("vendit: entity is required")
	}

	ids := []int64{}
	offset := 0
	for {
		payload := map[string]any{
			"fieldFilters": []map[string]any{
				{
					"field":            findModifiedFieldID,
					"value":            since.UTC().Format(findTimeLayout),
					"filterComparison": findComparisonOnOrAfter,
				},
			},
			"paginationOffset": offset,
			"paginationLimit":  c.pageSize,
			"operator":         0,
		}
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("vendit: encode find payload: %w", err)
		}

		response, err := c.executor.Execute(ctx, core.Request{
			Method: http.MethodPost,
			Path:   FindPath(entity),
			Body:   body,
		})
		if err != nil {
			return nil, err
		}

		page, err := decodeIDList(response.Body, "results", entity)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		ids = append(ids, page...)
		if len(page) < c.pageSize {
			break
		}
		offset += c.pageSize
	}
	return ids, nil
}

// GetAllIDs fetches the complete id listing for an entity. The endpoint
// answers with a bare array.
func (c *Client) GetAllIDs(ctx context.Context, entity string) ([]int64, error) {
	if c == nil || c.executor == nil {
		return nil, fmt.Errorf("vendit: client requires a request executor")
	}
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return nil, fmt.Errorf("vendit: entity is required")
	}

	response, err := c.executor.Execute(ctx, core.Request{
		Method: http.MethodGet,
		Path:   GetAllIDsPath(entity),
	})
	if err != nil {
		return nil, err
	}
	return decodeIDList(response.Body, "", entity)
}

// GetMultiple hydrates records for the given ids, batching requests at the
// endpoint's 100 key ceiling and preserving id order across batches.
func (c *Client) GetMultiple(ctx context.Context, entity string, ids []int64) ([]core.Record, error) {
	if c == nil || c.executor == nil {
		return nil, fmt.Errorf("vendit: client requires a request executor")
	}
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return nil, fmt.Errorf("vendit: entity is required")
	}

	records := []core.Record{}
	for start := 0; start < len(ids); start += detailBatchSize {
		end := start + detailBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		body, err := json.Marshal(map[string]any{"primaryKeys": ids[start:end]})
		if err != nil {
			return nil, fmt.Errorf("vendit: encode primary keys: %w", err)
		}

		response, err := c.executor.Execute(ctx, core.Request{
			Method: http.MethodPost,
			Path:   GetMultiplePath(entity),
			Body:   body,
		})
		if err != nil {
			return nil, err
		}

		envelope, err := DecodePage(response.Body, core.StreamDescriptor{Name: entity}, "")
		if err != nil {
			return nil, err
		}
		records = append(records, envelope.Records...)
	}
	return records, nil
}

// GetWithDetails expands a single record by id.
func (c *Client) GetWithDetails(ctx context.Context, entity string, id int64) (core.Record, error) {
	if c == nil || c.executor == nil {
		return nil, fmt.Errorf("vendit: client requires a request executor")
	}
	entity = strings.TrimSpace(entity)
	if entity == "" {
		return nil, fmt.Errorf("vendit: entity is required")
	}

	response, err := c.executor.Execute(ctx, core.Request{
		Method: http.MethodGet,
		Path:   GetWithDetailsPath(entity, id),
	})
	if err != nil {
		return nil, err
	}

	envelope, err := DecodePage(response.Body, core.StreamDescriptor{Name: entity}, "")
	if err != nil {
		return nil, err
	}
	if len(envelope.Records) == 0 {
		return nil, goerrors.New(
			fmt.Sprintf("vendit: %s %d not found", entity, id),
			goerrors.CategoryNotFound,
		).WithTextCode(core.ServiceErrorNotFound).WithMetadata(map[string]any{"entity": entity, "id": id})
	}
	return envelope.Records[0], nil
}

// decodeIDList reads an id array either bare or nested under key. Vendit
// mixes numeric and string ids; both parse, empty entries are dropped.
func decodeIDList(body []byte, key string, entity string) ([]int64, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return []int64{}, nil
	}

	var elements []any
	if key == "" {
		if err := json.Unmarshal(body, &elements); err != nil {
			return nil, fmt.Errorf("vendit: decode %s id list: %w", entity, err)
		}
	} else {
		payload := map[string]any{}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("vendit: decode %s id list: %w", entity, err)
		}
		raw := payload[key]
		if raw == nil {
			return []int64{}, nil
		}
		typed, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("vendit: %s %s field is not an array", entity, key)
		}
		elements = typed
	}

	ids := make([]int64, 0, len(elements))
	for _, element := range elements {
		if id := readAnyInt64(element); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
