// Package ledger provides the in-memory Ledger implementation.
//
// It backs single-instance deployments and every unit test. All state lives
// in maps guarded by one RWMutex; the vote engine's per-pair lock table
// provides (topic, identity) serialization above it, so critical sections
// here stay short. Reads return copies, never internal pointers.
package ledger
