// Package vendit speaks the Vendit REST API wire contract: token issuance
// against the OAuth endpoint, the stream catalog over the collection and
// Optiply endpoints, response envelope decoding, and the detail expansion
// helpers (Find, GetAllIds, GetMultiple, GetWithDetails).
package vendit
