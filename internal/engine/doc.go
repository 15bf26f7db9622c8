// Package engine implements the offline-first mutation pipeline.
//
// Every state-changing action flows through Executor, which applies the
// change to local state first and then settles it against the remote
// store. Reconciler drains the durable operation queue once connectivity
// or session state allows.
//
// ARCHITECTURE:
//
// Mutation Protocol (Executor):
// 1. OptimisticUpdate runs synchronously, before any network round-trip
// 2. RemoteOperation runs under the RetryPolicy
// 3. On success nothing else happens
// 4. On failure while offline the operation is queued; if queuing fails
//    the optimistic update is rolled back
// 5. On failure while online the optimistic update is rolled back
//
// Reconciliation (Reconciler):
// At most one pass runs per process. A pass replays the user's queued
// operations in (timestamp, seq, id) order and removes each one only
// after the remote store confirmed it. The first failure ends the pass so
// a later operation never lands before an earlier one.
//
// Remote effects are upserts and id-keyed deletes, so replaying an
// operation that already reached the remote store is harmless.
package engine
