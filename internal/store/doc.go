// Package store holds the authoritative set of track elements.
//
// The Store validates element placement, keeps a per-track interval index
// ordered by (start, seq) and answers overlap queries in O(log n + k). It
// never touches the processing graph: resolution and graph updates are the
// resolver's and graphsync's job.
//
// Thread-safety model:
//   - A Store is owned by exactly one writer (the engine's edit path)
//   - Readers on other goroutines use published snapshots, never the Store
//   - Clone produces an independent copy for rollback and replay checks
package store
