// Package journal provides a SQLite-backed append-only log of applied edits.
//
// Every record the engine applies is written with its logical seq, op,
// canonical JSON arguments and content digest. Reading the log back in seq
// order and applying it to a fresh timeline rebuilds the same state: the
// records already carry every generated id.
//
// # Invariants
//
//   - Ordering uses seq, the engine's logical clock, never wall time.
//   - Writes are idempotent on seq; writing the same record twice is a no-op.
//   - A stored digest that no longer matches its record fails replay.
//
// # Database Configuration
//
// Connections are opened with go-sqlite3 DSN parameters:
//
//   - _journal_mode=WAL: concurrent reads during writes
//   - _synchronous=NORMAL
//   - _busy_timeout=5000
//
// The schema version lives in PRAGMA user_version.
package journal
