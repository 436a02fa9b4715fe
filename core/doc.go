// Package core contains the canonical Vendit extraction contracts, entities,
// and orchestration logic: credentials, token lifecycle, the authenticated
// request executor, and bookmark state. Lower-level adapters must depend on
// this package; core must not depend on transport or storage adapters.
package core
