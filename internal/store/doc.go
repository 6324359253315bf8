// Package store provides the SQLite-backed key-value document store.
//
// Everything the engine persists - the dependency graph, the dirty set, the
// world-state ledger, applied-event records, hook instances, overlays and
// generated artifacts - lives here as a JSON document under a slash-separated
// key. The engine requires only get/put/list/delete plus two extras:
//
//   - Batch/Commit: multi-document writes in a single transaction. Apply,
//     rollback and chain activation each mutate several documents that must
//     change together; a half-applied activation is an invariant violation.
//   - Append: ndjson accumulation for the generation usage log.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//
// The scheduling model is single logical writer: events, rollbacks and
// activations are applied sequentially, while regeneration workers only read
// shared state and write their own artifact keys.
package store
