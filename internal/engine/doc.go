// Package engine is the timeline context object: it owns the element store,
// layers, objects, keyframe curves and the sync controller of one timeline
// and is the only way to edit them.
//
// Single-writer edit path:
// Every edit is an ir.EditRecord. Apply runs one record at a time under the
// edit mutex: dispatch to the coordinator, recompute the stacks the edit
// touched at the playhead, diff and publish a new snapshot. The edit has
// fully applied or been fully rejected by the time Apply returns.
//
// Readers:
// Snapshot and Curve load atomically published immutable values and never
// wait for an edit. Subscribers receive one Update per applied edit through
// an unbounded queue, so a slow graph or journal never stalls editing.
//
// Determinism:
// Records are stamped from the logical Clock and carry every generated id.
// Applying the same records to a fresh timeline rebuilds the same state and
// the same snapshot digests.
package engine
