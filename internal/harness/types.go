package harness

import (
	"time"

	"github.com/roach88/stackline/internal/ir"
)

// TraceEvent is one applied or rejected step.
type TraceEvent struct {
	// Seq is the edit's logical clock value, 0 for a rejected edit.
	Seq int64 `json:"seq,omitempty"`

	Op   string      `json:"op"`
	Args ir.IRObject `json:"args"`

	// Version is the snapshot version after the step.
	Version uint64 `json:"version"`

	// Instructions are the batch's graph instructions as "track: op id @pos".
	Instructions []string `json:"instructions,omitempty"`

	// Warnings are warning codes.
	Warnings []string `json:"warnings,omitempty"`

	// Error is the rejection code.
	Error string `json:"error,omitempty"`
}

// FinalState is the timeline's published state after the last step.
type FinalState struct {
	Version  uint64                        `json:"version"`
	Position time.Duration                 `json:"position"`
	Stacks   map[ir.TrackID][]ir.ElementID `json:"stacks"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation and assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEvent `json:"trace"`

	// Errors are failed expectations and assertions.
	Errors []string `json:"errors,omitempty"`

	Final FinalState `json:"final"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Count returns how many applied steps have op.
func (r *Result) Count(op string) int {
	n := 0
	for _, ev := range r.Trace {
		if ev.Op == op && ev.Error == "" {
			n++
		}
	}
	return n
}
