// Package harness runs timeline scenarios written in YAML.
//
// A scenario is a list of edit records applied in order to a fresh
// timeline, with optional per-step expectations and final assertions. The
// harness uses a sequential id generator and a fresh logical clock, so the
// same scenario always produces the same trace. Traces are compared
// against golden files in testdata/golden:
//
//	go test ./internal/harness -update
//
// regenerates them.
//
// Every run also drives a graphsync.Mirror from the timeline's update
// stream; the "mirror" assertion checks that replaying the emitted batches
// reproduces the published snapshot.
package harness
