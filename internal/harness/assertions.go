package harness

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/stackline/internal/engine"
	"github.com/roach88/stackline/internal/graphsync"
	"github.com/roach88/stackline/internal/ir"
)

// AssertionContext is what assertions are evaluated against.
type AssertionContext struct {
	Timeline *engine.Timeline
	Mirror   *graphsync.Mirror
	Result   *Result
}

// AssertionError is a failed assertion.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all passed.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertStackAt:
		return assertStackAt(a, actx.Timeline)
	case AssertSnapshot:
		got := actx.Timeline.Snapshot().Stack(ir.TrackID(a.Track))
		if !equalIDs(a.Stack, got) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s stack %v", a.Track, a.Stack),
				Actual:   fmt.Sprint(got),
			}
		}
		return nil
	case AssertElement:
		return assertElement(a, actx.Timeline)
	case AssertKeyframe:
		return assertKeyframe(a, actx.Timeline)
	case AssertMirror:
		snap := actx.Timeline.Snapshot()
		if !actx.Mirror.Matches(snap) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("mirror at version %d", snap.Version()),
				Actual:   fmt.Sprintf("mirror at version %d after %d batches", actx.Mirror.Version(), actx.Mirror.Applied()),
			}
		}
		return nil
	case AssertOpCount:
		if got := actx.Result.Count(a.Op); got != a.Count {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%d applied %s edits", a.Count, a.Op),
				Actual:   strconv.Itoa(got),
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func assertStackAt(a Assertion, tl *engine.Timeline) error {
	at, err := time.ParseDuration(a.At)
	if err != nil {
		return err
	}
	s, err := tl.StackAt(ir.TrackID(a.Track), at)
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprint(a.Stack), Actual: err.Error()}
	}
	if got := s.IDs(); !equalIDs(a.Stack, got) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s at %s: %v", a.Track, at, a.Stack),
			Actual:   fmt.Sprint(got),
		}
	}
	return nil
}

func assertElement(a Assertion, tl *engine.Timeline) error {
	e, err := tl.Element(ir.ElementID(a.Element))
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: "element " + a.Element, Actual: err.Error()}
	}
	actual := elementFields(e)

	want, err := ir.ObjectFromMap(a.Fields)
	if err != nil {
		return fmt.Errorf("element %s: %w", a.Element, err)
	}
	for _, k := range want.SortedKeys() {
		got, ok := actual[k]
		if !ok {
			return fmt.Errorf("element %s: unknown field %q", a.Element, k)
		}
		if !fieldMatches(want, k, got) {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("%s.%s = %v", a.Element, k, want[k]),
				Actual:   fmt.Sprint(got),
			}
		}
	}
	return nil
}

// elementFields exposes the comparable attributes of an element.
func elementFields(e ir.TrackElement) map[string]any {
	return map[string]any{
		"track":      string(e.TrackID),
		"kind":       e.Kind.String(),
		"effect":     e.Effect,
		"asset":      e.AssetID,
		"start":      e.Start,
		"duration":   e.Duration,
		"in_point":   e.InPoint,
		"priority":   int64(e.Priority),
		"active":     e.Active,
		"expandable": e.Expandable,
	}
}

func fieldMatches(want ir.IRObject, key string, got any) bool {
	switch g := got.(type) {
	case time.Duration:
		d, err := want.GetDuration(key)
		return err == nil && d == g
	case int64:
		n, err := want.GetInt(key)
		return err == nil && n == g
	case bool:
		b, err := want.GetBool(key)
		return err == nil && b == g
	case string:
		s, err := want.GetString(key)
		return err == nil && s == g
	}
	return false
}

func assertKeyframe(a Assertion, tl *engine.Timeline) error {
	at, err := time.ParseDuration(a.At)
	if err != nil {
		return err
	}
	want, err := strconv.ParseFloat(a.Value, 64)
	if err != nil {
		return fmt.Errorf("keyframe value: %w", err)
	}
	got, ok := tl.Evaluate(ir.ElementID(a.Element), a.Property, at)
	if !ok {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s.%s at %s = %s", a.Element, a.Property, at, a.Value),
			Actual:   "no keyframes",
		}
	}
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s.%s at %s = %s", a.Element, a.Property, at, a.Value),
			Actual:   strconv.FormatFloat(got, 'g', -1, 64),
		}
	}
	return nil
}
