// Package resolver computes, for a track and an instant, which elements are
// active and in what order they are applied.
//
// Stacks are ordered by (priority asc, Source before Operation, seq asc):
// the element closest to the raw media comes first. Equal keys are broken
// by insertion order, so resolution is total and never fails on a
// well-formed store. A gap yields an empty stack, which is a valid state,
// unless the track carries expandable elements: those join every stack from
// 0 up to the track's stop, the end of its last regular element.
package resolver

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/roach88/stackline/internal/ir"
)

// Open bounds for windows that extend past every element.
const (
	Beginning = time.Duration(math.MinInt64)
	Forever   = time.Duration(math.MaxInt64)
)

// ElementIndex is the read side of the element store that resolution needs.
// *store.Store implements it.
type ElementIndex interface {
	Tracks() []ir.Track
	QueryOverlapping(track ir.TrackID, r ir.TimeRange) ([]ir.TrackElement, error)
	StartingAfter(track ir.TrackID, t time.Duration) ([]ir.TrackElement, error)
	StartingBefore(track ir.TrackID, t time.Duration) ([]ir.TrackElement, error)
	Expandables(track ir.TrackID) ([]ir.TrackElement, error)
	Stop(track ir.TrackID) (time.Duration, error)
}

// Stack is an ordered list of active elements at one instant.
type Stack []ir.TrackElement

// IDs returns the element ids in stack order.
func (s Stack) IDs() []ir.ElementID {
	out := make([]ir.ElementID, len(s))
	for i, e := range s {
		out[i] = e.ID
	}
	return out
}

// Compare orders two elements within a stack.
func Compare(a, b ir.TrackElement) int {
	return cmp.Or(
		cmp.Compare(a.Priority, b.Priority),
		cmp.Compare(a.Kind, b.Kind),
		cmp.Compare(a.Seq, b.Seq),
	)
}

// Resolver answers stack queries against an element index. It holds no
// state of its own.
type Resolver struct {
	index ElementIndex
}

// New creates a resolver over idx.
func New(idx ElementIndex) *Resolver {
	return &Resolver{index: idx}
}

// Tracks returns the tracks of the underlying index in registration order.
func (r *Resolver) Tracks() []ir.Track {
	return r.index.Tracks()
}

// StackAt returns the active elements whose [start, end) contains t.
// Expandable elements are reported stretched over [0, stop).
func (r *Resolver) StackAt(track ir.TrackID, t time.Duration) (Stack, error) {
	if t == Forever {
		return Stack{}, nil
	}
	elems, err := r.index.QueryOverlapping(track, ir.TimeRange{Start: t, End: t + 1})
	if err != nil {
		return nil, err
	}
	fill, stop, err := r.expandables(track)
	if err != nil {
		return nil, err
	}
	stack := make(Stack, 0, len(elems)+len(fill))
	for _, e := range elems {
		if e.Active {
			stack = append(stack, e)
		}
	}
	if t >= 0 && t < stop {
		stack = append(stack, fill...)
	}
	slices.SortFunc(stack, Compare)
	return stack, nil
}

// expandables returns the active expandable elements of a track stretched
// to [0, stop), with stop itself. fill is empty when nothing would be
// filled.
func (r *Resolver) expandables(track ir.TrackID) (fill []ir.TrackElement, stop time.Duration, err error) {
	all, err := r.index.Expandables(track)
	if err != nil || len(all) == 0 {
		return nil, 0, err
	}
	stop, err = r.index.Stop(track)
	if err != nil || stop <= 0 {
		return nil, 0, err
	}
	for _, e := range all {
		if e.Active {
			e.Start, e.Duration = 0, stop
			fill = append(fill, e)
		}
	}
	return fill, stop, nil
}

// Resolve returns the stack of every track at t.
func (r *Resolver) Resolve(t time.Duration) (map[ir.TrackID]Stack, error) {
	out := make(map[ir.TrackID]Stack)
	for _, tr := range r.index.Tracks() {
		s, err := r.StackAt(tr.ID, t)
		if err != nil {
			return nil, err
		}
		out[tr.ID] = s
	}
	return out, nil
}

// NextChange returns the first instant strictly after t at which the stack
// of track differs from the stack at t. ok is false when the stack never
// changes again.
func (r *Resolver) NextChange(track ir.TrackID, t time.Duration) (time.Duration, bool, error) {
	stack, err := r.StackAt(track, t)
	if err != nil {
		return 0, false, err
	}
	next := Forever
	for _, e := range stack {
		next = min(next, e.End())
	}
	later, err := r.index.StartingAfter(track, t)
	if err != nil {
		return 0, false, err
	}
	// later is ordered by start, so the first active entry is the earliest.
	for _, e := range later {
		if e.Active {
			next = min(next, e.Start)
			break
		}
	}
	fill, _, err := r.expandables(track)
	if err != nil {
		return 0, false, err
	}
	if len(fill) > 0 && t < 0 {
		next = min(next, 0)
	}
	return next, next != Forever, nil
}

// prevChange returns the last instant at or before t at which the stack
// changed, or Beginning.
func (r *Resolver) prevChange(track ir.TrackID, t time.Duration) (time.Duration, error) {
	if t == Forever {
		return Beginning, nil
	}
	earlier, err := r.index.StartingBefore(track, t+1)
	if err != nil {
		return 0, err
	}
	prev := Beginning
	for _, e := range earlier {
		if !e.Active {
			continue
		}
		b := e.Start
		if e.End() <= t {
			b = e.End()
		}
		prev = max(prev, b)
	}
	fill, stop, err := r.expandables(track)
	if err != nil {
		return 0, err
	}
	switch {
	case len(fill) == 0:
	case t >= stop:
		prev = max(prev, stop)
	case t >= 0:
		prev = max(prev, 0)
	}
	return prev, nil
}

// Window returns the stack at t together with its validity window: the
// largest half-open interval containing t over which the stack is the same.
// Unbounded sides are Beginning and Forever.
func (r *Resolver) Window(track ir.TrackID, t time.Duration) (Stack, ir.TimeRange, error) {
	stack, err := r.StackAt(track, t)
	if err != nil {
		return nil, ir.TimeRange{}, err
	}
	start, err := r.prevChange(track, t)
	if err != nil {
		return nil, ir.TimeRange{}, err
	}
	stop, _, err := r.NextChange(track, t)
	if err != nil {
		return nil, ir.TimeRange{}, err
	}
	return stack, ir.TimeRange{Start: start, End: stop}, nil
}

// Segment is a maximal piece of a range over which the stack is constant.
type Segment struct {
	Range ir.TimeRange
	Stack Stack
}

// Segments splits span into consecutive pieces with constant stacks.
// Adjacent segments always have different stacks.
func (r *Resolver) Segments(track ir.TrackID, span ir.TimeRange) ([]Segment, error) {
	var out []Segment
	for t := span.Start; t < span.End; {
		stack, err := r.StackAt(track, t)
		if err != nil {
			return nil, err
		}
		next, _, err := r.NextChange(track, t)
		if err != nil {
			return nil, err
		}
		end := min(next, span.End)
		out = append(out, Segment{Range: ir.TimeRange{Start: t, End: end}, Stack: stack})
		t = end
	}
	return out, nil
}

// Affected is AffectedRanges widened for tracks that carry expandable
// elements. Any change on such a track can move its stop, so the whole
// track is reported.
func (r *Resolver) Affected(changes []Change) (map[ir.TrackID][]ir.TimeRange, error) {
	out := AffectedRanges(changes)
	for _, c := range changes {
		for _, e := range []*ir.TrackElement{c.Before, c.After} {
			if e == nil {
				continue
			}
			expand := e.Expandable
			if !expand {
				all, err := r.index.Expandables(e.TrackID)
				if err != nil {
					return nil, err
				}
				expand = len(all) > 0
			}
			if expand {
				out[e.TrackID] = []ir.TimeRange{{Start: Beginning, End: Forever}}
			}
		}
	}
	return out, nil
}

// Change is the before and after state of one element touched by an edit.
// Before is nil for additions and After is nil for removals.
type Change struct {
	Before *ir.TrackElement
	After  *ir.TrackElement
}

// AffectedRanges returns, per track, the merged time ranges whose stacks an
// edit may have changed: the union of the before and after spans of every
// changed element. Only these ranges need re-resolution.
func AffectedRanges(changes []Change) map[ir.TrackID][]ir.TimeRange {
	raw := make(map[ir.TrackID][]ir.TimeRange)
	for _, c := range changes {
		for _, e := range []*ir.TrackElement{c.Before, c.After} {
			if e != nil {
				raw[e.TrackID] = append(raw[e.TrackID], e.Range())
			}
		}
	}
	out := make(map[ir.TrackID][]ir.TimeRange, len(raw))
	for track, ranges := range raw {
		if merged := ir.MergeRanges(ranges); len(merged) > 0 {
			out[track] = merged
		}
	}
	return out
}

// Covers reports whether t falls inside any of the ranges.
func Covers(ranges []ir.TimeRange, t time.Duration) bool {
	for _, r := range ranges {
		if r.Contains(t) {
			return true
		}
	}
	return false
}
