// Package store provides SQLite-backed durable storage for requex event
// journals.
//
// The journal is append-only:
//   - Events: every dispatched event, tagged with a stream token
//   - Checkpoints: the canonical state a query reached at a given seq
//
// The engine itself never persists anything; the CLI appends events here,
// dispatches them, and replays streams to verify determinism.
//
// # Ordering
//
// All ordering uses seq INTEGER, a per-journal logical clock, never
// timestamps. Every read is ORDER BY seq ASC, id ASC COLLATE BINARY, so a
// replay sees events in exactly the order they were journaled.
//
// # Identity
//
// Event IDs are content addresses (ir.EventID): SHA-256 over the canonical
// JSON of (stream, type, payload, seq) with domain separation. Writing the
// same record twice is a no-op.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
