package govendit

import (
	"testing"

	"github.com/goliatone/go-vendit/core"
	"github.com/goliatone/go-vendit/vendit"
)

func TestSetup_WiresCatalogTransportAndIssuer(t *testing.T) {
	service, err := Setup(DefaultConfig())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	streams := service.Streams()
	if len(streams) != len(vendit.Catalog()) {
		t.Fatalf("expected full catalog, got %d streams", len(streams))
	}
	if _, err := service.Stream(vendit.StreamProducts); err != nil {
		t.Fatalf("products stream missing: %v", err)
	}

	deps := service.Dependencies()
	if deps.Transport == nil {
		t.Fatalf("expected rest transport to be wired")
	}
	if deps.TokenIssuer == nil {
		t.Fatalf("expected token issuer to be wired")
	}
}

func TestSetup_CallerOptionsOverrideDefaults(t *testing.T) {
	registry := core.NewStreamCatalog()
	if err := registry.Register(core.StreamDescriptor{
		Name:       "custom",
		Path:       "/Api/Custom/GetAll",
		Method:     "GET",
		IDField:    "customId",
		CursorKind: core.CursorKindID,
	}); err != nil {
		t.Fatalf("register custom stream: %v", err)
	}

	service, err := Setup(DefaultConfig(), WithStreamRegistry(registry))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if streams := service.Streams(); len(streams) != 1 || streams[0].Name != "custom" {
		t.Fatalf("expected caller registry to win, got %d streams", len(streams))
	}
}

func TestNewService_LeavesWiringToCaller(t *testing.T) {
	service, err := NewService(DefaultConfig())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if streams := service.Streams(); len(streams) != 0 {
		t.Fatalf("expected empty registry, got %d streams", len(streams))
	}
	if service.Executor() != nil {
		t.Fatalf("expected no executor without a transport adapter")
	}
}
