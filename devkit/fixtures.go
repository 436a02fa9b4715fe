package devkit

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-vendit/core"
	"github.com/goliatone/go-vendit/vendit"
)

// Fixtures for wiring extraction components in tests and local harnesses
// without touching the live Vendit API.

// TestCredentials returns a credential set that passes validation.
func TestCredentials() core.Credentials {
	return core.Credentials{
		APIKey:   "key_devkit",
		Username: "svc_devkit",
		Password: "pw_devkit",
	}
}

// SeededCredentialStore returns an in-memory store preloaded with
// TestCredentials.
func SeededCredentialStore() core.CredentialStore {
	store := core.NewMemoryCredentialStore()
	if err := store.PutCredentials(context.Background(), TestCredentials()); err != nil {
		panic(fmt.Sprintf("devkit: seed credential store: %v", err))
	}
	return store
}

// ProductRecords returns product rows shaped like the GetAll endpoint
// response, with ids ascending from firstID.
func ProductRecords(firstID int64, count int) []map[string]any {
	records := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		id := firstID + int64(i)
		records = append(records, map[string]any{
			"productId":   id,
			"description": fmt.Sprintf("Fixture product %d", id),
			"barcode":     fmt.Sprintf("87%09d", id),
			"priceInclVat": map[string]any{
				"amount":   9.95,
				"currency": "EUR",
			},
		})
	}
	return records
}

// OrderRecords returns order rows carrying the lastModified timestamp
// cursor, spaced one minute apart starting at base.
func OrderRecords(firstID int64, base time.Time, count int) []map[string]any {
	records := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		id := firstID + int64(i)
		records = append(records, map[string]any{
			"customerOrderHeaderId": id,
			"lastModified":          base.UTC().Add(time.Duration(i) * time.Minute).Format("2006-01-02T15:04:05"),
			"totalInclVat":          24.50,
		})
	}
	return records
}

// OptiplyRecords returns Optiply order rows. The unix cursor position is
// stamped by the page decoder from the request path, so the rows
// themselves only need their ids.
func OptiplyRecords(firstID int64, count int) []map[string]any {
	records := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		records = append(records, map[string]any{
			"customerOrderHeaderId": firstID + int64(i),
			"status":                "completed",
		})
	}
	return records
}

// StreamCatalogRegistry returns a registry preloaded with the default
// Vendit stream catalog.
func StreamCatalogRegistry() core.StreamRegistry {
	registry := core.NewStreamCatalog()
	if err := vendit.RegisterCatalog(registry); err != nil {
		panic(fmt.Sprintf("devkit: register stream catalog: %v", err))
	}
	return registry
}

// SeedBookmark writes a bookmark for a catalog stream into store,
// deriving the cursor kind from the stream descriptor.
func SeedBookmark(ctx context.Context, store core.StateStore, stream string, value string) error {
	if store == nil {
		return fmt.Errorf("devkit: state store is required")
	}
	var descriptor core.StreamDescriptor
	found := false
	for _, candidate := range vendit.Catalog() {
		if candidate.Name == stream {
			descriptor = candidate
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("devkit: stream %q is not in the default catalog", stream)
	}
	return store.PutBookmark(ctx, core.Bookmark{
		Stream: stream,
		Kind:   descriptor.CursorKind,
		Value:  value,
	})
}
