// Package sync implements the regulatory traceability synchronization
// engine: the orchestrator, the create-or-link resolver, the location
// resolver and the per-entity operations that keep the internal cultivation
// ledger consistent with the external state tracking system.
//
// The external system has no transactions and irreversible side effects, so
// every push path guarantees at-most-once external creation (enforced by
// compare-and-swap on the entity's sync status), bounded classified retries
// and exactly one append-only audit row per attempt.
package sync
