// Package vote implements the vote engine: the policy layer that turns a
// validated vote attempt into a ledger mutation and a typed outcome.
//
// Attempts for the same (topic, identity) pair are serialized through a
// ref-counted lock table; disjoint pairs run in parallel. The engine decides
// eligibility (purged topic, 1-vote-per-day, new-identity cooldown) and hands
// the decided vote to the Ledger, which commits it atomically.
package vote
