package vendit

import (
	"fmt"
	"strings"
)

// Full table collection endpoints.
const (
	PathProductsGetAll         = "/Products/GetAll"
	PathSuppliersGetAll        = "/Suppliers/GetAll"
	PathOrdersGetAll           = "/Orders/GetAll"
	PathPurchaseOrdersGetAll   = "/PurchaseOrders/GetAll"
	PathSupplierProductsGetAll = "/SupplierProducts/GetAll"
)

// Optiply change feed endpoints. The {position} segment carries the unix
// cursor value.
const (
	PathOptiplyOrders                = "/Optiply/GetOrdersFromDate/{position}/true"
	PathOptiplyPurchaseOrders        = "/Optiply/GetPurchaseOrdersFromDate/{position}/true"
	PathOptiplyProductSuppliers      = "/Optiply/GetProductSuppliersFromDate/{position}"
	PathOptiplyProductPurchaseOrders = "/Optiply/GetProductPurchaseOrdersFromDate/{position}"
)

// Entities exposing the Find / GetAllIds / GetMultiple / GetWithDetails
// detail surface.
const (
	EntityProducts         = "Products"
	EntitySuppliers        = "Suppliers"
	EntityOrders           = "Orders"
	EntityPurchaseOrders   = "PurchaseOrders"
	EntitySupplierProducts = "SupplierProducts"
)

func FindPath(entity string) string {
	return "/" + strings.Trim(strings.TrimSpace(entity), "/") + "/Find"
}

func GetAllIDsPath(entity string) string {
	return "/" + strings.Trim(strings.TrimSpace(entity), "/") + "/GetAllIds"
}

func GetMultiplePath(entity string) string {
	return "/" + strings.Trim(strings.TrimSpace(entity), "/") + "/GetMultiple"
}

func GetWithDetailsPath(entity string, id int64) string {
	return fmt.Sprintf("/%s/GetWithDetails/%d", strings.Trim(strings.TrimSpace(entity), "/"), id)
}
