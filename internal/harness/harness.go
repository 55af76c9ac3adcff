package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/stackline/internal/engine"
	"github.com/roach88/stackline/internal/graphsync"
	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/testutil"
)

// Harness executes one scenario against a fresh timeline.
type Harness struct {
	timeline *engine.Timeline
	sub      *engine.Subscription
	mirror   *graphsync.Mirror
	logger   *slog.Logger
}

// Run executes a scenario and returns its result. Step failures and failed
// assertions are reported in the result; the error is reserved for
// scenarios that cannot run at all.
//
// Execution flow:
//  1. Create a timeline with sequential ids and subscribe a mirror
//  2. Apply each step, checking its expect clause
//  3. Close the timeline and pump every batch into the mirror
//  4. Evaluate the assertions
func Run(scenario *Scenario) (*Result, error) {
	cfg, err := scenario.Config.Engine(engine.Config{})
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	tl, err := engine.New(cfg, engine.WithIDGenerator(testutil.NewIDGenerator()))
	if err != nil {
		return nil, fmt.Errorf("failed to create timeline: %w", err)
	}
	defer tl.Close()

	h := &Harness{
		timeline: tl,
		sub:      tl.Subscribe(),
		mirror:   graphsync.NewMirror(),
		logger:   slog.Default().With("scenario", scenario.Name),
	}

	ctx := context.Background()
	result := NewResult()
	if err := h.executeSteps(ctx, scenario.Steps, result); err != nil {
		return nil, err
	}

	snap := tl.Snapshot()
	result.Final = FinalState{
		Version:  snap.Version(),
		Position: snap.Position(),
		Stacks:   snap.Stacks(),
	}

	tl.Close()
	if err := graphsync.Pump(ctx, h.sub, h.mirror); err != nil {
		result.AddError(fmt.Sprintf("mirror: %v", err))
	}

	actx := &AssertionContext{Timeline: tl, Mirror: h.mirror, Result: result}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeSteps(ctx context.Context, steps []Step, result *Result) error {
	for i, step := range steps {
		args, err := ir.ObjectFromMap(step.Args)
		if err != nil {
			return fmt.Errorf("step %d: failed to convert args: %w", i, err)
		}

		u, applyErr := h.timeline.Apply(ctx, ir.EditRecord{Op: ir.Op(step.Op), Args: args})
		ev := traceEvent(step.Op, args, u, applyErr)
		if applyErr != nil {
			ev.Version = h.timeline.Snapshot().Version()
		}
		result.Trace = append(result.Trace, ev)

		for _, msg := range checkExpect(step.Expect, ev, h.timeline.Snapshot()) {
			result.AddError(fmt.Sprintf("step %d (%s): %s", i, step.Op, msg))
		}

		h.logger.Debug("step applied",
			"step", i,
			"op", step.Op,
			"seq", ev.Seq,
			"version", ev.Version,
			"error", ev.Error,
		)
	}
	return nil
}

func traceEvent(op string, args ir.IRObject, u engine.Update, err error) TraceEvent {
	if err != nil {
		return TraceEvent{Op: op, Args: args, Error: errorCode(err)}
	}
	ev := TraceEvent{
		Seq:     u.Edit.Seq,
		Op:      op,
		Args:    u.Edit.Args,
		Version: u.Version,
	}
	if u.Batch != nil {
		for _, tb := range u.Batch.Tracks {
			for _, in := range tb.Instructions {
				ev.Instructions = append(ev.Instructions, fmt.Sprintf("%s: %s", tb.Track, in))
			}
		}
	}
	for _, w := range u.Warnings {
		ev.Warnings = append(ev.Warnings, string(w.Code))
	}
	return ev
}

// errorCode names a rejection by its error code.
func errorCode(err error) string {
	if code := ir.CodeOf(err); code != "" {
		return string(code)
	}
	var de *engine.DispatchError
	if errors.As(err, &de) {
		return string(de.Code)
	}
	return err.Error()
}

func checkExpect(exp *Expect, ev TraceEvent, snap *graphsync.Snapshot) []string {
	var errs []string
	want := ""
	if exp != nil {
		want = exp.Error
	}
	if ev.Error != want {
		switch {
		case want == "":
			errs = append(errs, fmt.Sprintf("unexpected error %s", ev.Error))
		case ev.Error == "":
			errs = append(errs, fmt.Sprintf("expected error %s, edit was applied", want))
		default:
			errs = append(errs, fmt.Sprintf("expected error %s, got %s", want, ev.Error))
		}
	}
	if exp == nil {
		return errs
	}

	if exp.Warnings != nil && !slices.Equal(exp.Warnings, ev.Warnings) {
		errs = append(errs, fmt.Sprintf("expected warnings %v, got %v", exp.Warnings, ev.Warnings))
	}
	for track, ids := range exp.Stack {
		got := snap.Stack(ir.TrackID(track))
		if !equalIDs(ids, got) {
			errs = append(errs, fmt.Sprintf("track %s: expected stack %v, got %v", track, ids, got))
		}
	}
	if exp.Version != nil && uint64(*exp.Version) != ev.Version {
		errs = append(errs, fmt.Sprintf("expected version %d, got %d", *exp.Version, ev.Version))
	}
	return errs
}

func equalIDs(want []string, got []ir.ElementID) bool {
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if ir.ElementID(want[i]) != got[i] {
			return false
		}
	}
	return true
}
