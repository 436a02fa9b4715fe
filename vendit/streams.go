package vendit

import (
	"fmt"
	"net/http"

	"github.com/goliatone/go-vendit/core"
)

// Stream names in the default catalog.
const (
	StreamProducts              = "products"
	StreamSuppliers             = "suppliers"
	StreamOrders                = "orders"
	StreamPurchaseOrders        = "purchase_orders"
	StreamSupplierProducts      = "supplier_products"
	StreamOrdersOptiply         = "orders_optiply"
	StreamPurchaseOrdersOptiply = "purchase_orders_optiply"
)

// UnixCursorField is the record field the Optiply streams replicate on.
const UnixCursorField = "unix_timestamp"

// defaultOptiplyStart is 2022-01-01T00:00:00Z, the earliest instant the
// Optiply endpoints serve data for.
const defaultOptiplyStart = "1640995200"

// Catalog returns the default stream descriptors. Flat collection streams
// page with a numeric id or modification timestamp; Optiply streams ride a
// unix position in the URL path.
func Catalog() []core.StreamDescriptor {
	return []core.StreamDescriptor{
		{
			Name:       StreamProducts,
			Path:       PathProductsGetAll,
			Method:     http.MethodGet,
			IDField:    "productId",
			CursorKind: core.CursorKindID,
			PageSize:   core.DefaultPageSize,
		},
		{
			Name:       StreamSuppliers,
			Path:       PathSuppliersGetAll,
			Method:     http.MethodGet,
			IDField:    "supplierId",
			CursorKind: core.CursorKindID,
			PageSize:   core.DefaultPageSize,
		},
		{
			Name:        StreamOrders,
			Path:        PathOrdersGetAll,
			Method:      http.MethodGet,
			IDField:     "customerOrderHeaderId",
			CursorField: "lastModified",
			CursorKind:  core.CursorKindTimestamp,
			PageSize:    core.DefaultPageSize,
		},
		{
			Name:       StreamPurchaseOrders,
			Path:       PathPurchaseOrdersGetAll,
			Method:     http.MethodGet,
			IDField:    "productPurchaseOrderId",
			CursorKind: core.CursorKindID,
			PageSize:   core.DefaultPageSize,
		},
		{
			Name:         StreamSupplierProducts,
			Path:         PathOptiplyProductSuppliers,
			Method:       http.MethodGet,
			IDField:      "productSupplierId",
			CursorField:  UnixCursorField,
			CursorKind:   core.CursorKindUnix,
			DefaultStart: defaultOptiplyStart,
		},
		{
			Name:         StreamOrdersOptiply,
			Path:         PathOptiplyOrders,
			Method:       http.MethodGet,
			IDField:      "customerOrderHeaderId",
			CursorField:  UnixCursorField,
			CursorKind:   core.CursorKindUnix,
			DefaultStart: defaultOptiplyStart,
		},
		{
			Name:         StreamPurchaseOrdersOptiply,
			Path:         PathOptiplyPurchaseOrders,
			Method:       http.MethodGet,
			IDField:      "productPurchaseOrderId",
			CursorField:  UnixCursorField,
			CursorKind:   core.CursorKindUnix,
			DefaultStart: defaultOptiplyStart,
		},
	}
}

// RegisterCatalog loads the default descriptors into a stream registry.
func RegisterCatalog(registry core.StreamRegistry) error {
	if registry == nil {
		return fmt.Errorf("vendit: stream registry is required")
	}
	for _, descriptor := range Catalog() {
		if err := registry.Register(descriptor); err != nil {
			return err
		}
	}
	return nil
}
