// Package store provides SQLite-backed durable storage for the sync engine.
//
// The store holds two things:
//   - Queued operations: the Durable Operation Queue, an append-only ledger
//     of remote effects waiting to be replayed, scoped by user
//   - Template cache: one JSON blob of personal workout templates per user,
//     read at launch before the network answers
//
// # Ordering
//
// Every queued operation is stamped with a wall-clock millisecond timestamp
// that never decreases within a process, and a strictly increasing logical
// seq. All queue reads use ORDER BY timestamp ASC, seq ASC, id ASC so two
// operations enqueued in the same millisecond still have a total order.
//
// # Validation
//
// Rows read back from disk are never trusted. Each row is checked against a
// CUE schema (see validate.go); rows that fail are skipped with a warning and
// can be removed with PurgeCorrupt.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=FULL: an Enqueue that returned survives power loss
//   - busy_timeout=5000: wait for locks up to 5 seconds
package store
