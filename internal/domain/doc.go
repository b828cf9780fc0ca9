// Package domain holds the core badmeter entities and contracts.
//
// Topics, identities, and vote records are related only by id lookups; neither
// entity owns the other. The Ledger interface is the single persistence
// contract, implemented in-memory (internal/ledger) and on PostgreSQL
// (internal/postgres). Vote outcomes are values, never errors.
package domain
