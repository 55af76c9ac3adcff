package store

import (
	"slices"
	"sort"
	"time"

	"github.com/roach88/stackline/internal/ir"
)

// trackIndex orders a track's elements by (Start, Seq) and keeps a prefix
// maximum of end times. maxEnd is non-decreasing, which lets an overlap query
// skip every element that ends before the range with one binary search.
//
// Expandable elements are kept apart, ordered by Seq: their placement does
// not take part in interval queries.
type trackIndex struct {
	track       ir.Track
	entries     []*ir.TrackElement
	maxEnd      []time.Duration
	expandables []*ir.TrackElement
}

func newTrackIndex(t ir.Track) *trackIndex {
	return &trackIndex{track: t}
}

func entryLess(a *ir.TrackElement, start time.Duration, seq int64) bool {
	if a.Start != start {
		return a.Start < start
	}
	return a.Seq < seq
}

func (x *trackIndex) position(e *ir.TrackElement) int {
	return sort.Search(len(x.entries), func(i int) bool {
		return !entryLess(x.entries[i], e.Start, e.Seq)
	})
}

func (x *trackIndex) insert(e *ir.TrackElement) {
	if e.Expandable {
		i := sort.Search(len(x.expandables), func(i int) bool {
			return x.expandables[i].Seq >= e.Seq
		})
		x.expandables = slices.Insert(x.expandables, i, e)
		return
	}
	i := x.position(e)
	x.entries = slices.Insert(x.entries, i, e)
	x.maxEnd = slices.Insert(x.maxEnd, i, 0)
	x.rebuildFrom(i)
}

// remove must be called before e's Start or Seq change.
func (x *trackIndex) remove(e *ir.TrackElement) {
	if e.Expandable {
		x.expandables = slices.DeleteFunc(x.expandables, func(o *ir.TrackElement) bool { return o == e })
		return
	}
	i := x.position(e)
	for i < len(x.entries) && x.entries[i] != e {
		i++
	}
	if i == len(x.entries) {
		return
	}
	x.entries = slices.Delete(x.entries, i, i+1)
	x.maxEnd = slices.Delete(x.maxEnd, i, i+1)
	x.rebuildFrom(i)
}

func (x *trackIndex) rebuildFrom(i int) {
	for ; i < len(x.entries); i++ {
		end := x.entries[i].End()
		if i > 0 && x.maxEnd[i-1] > end {
			end = x.maxEnd[i-1]
		}
		x.maxEnd[i] = end
	}
}

// overlapping returns the entries whose span intersects r, in index order.
func (x *trackIndex) overlapping(r ir.TimeRange) []*ir.TrackElement {
	if r.Empty() {
		return nil
	}
	// Entries at or after hi start at or after r.End.
	hi := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Start >= r.End
	})
	// Entries before lo all end at or before r.Start.
	lo := sort.Search(hi, func(i int) bool {
		return x.maxEnd[i] > r.Start
	})
	var out []*ir.TrackElement
	for _, e := range x.entries[lo:hi] {
		if e.End() > r.Start {
			out = append(out, e)
		}
	}
	return out
}

// startingAfter returns the entries whose Start is strictly after t, in
// index order.
func (x *trackIndex) startingAfter(t time.Duration) []*ir.TrackElement {
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Start > t
	})
	return x.entries[i:]
}

// startingBefore returns the entries whose Start is strictly before t, in
// index order.
func (x *trackIndex) startingBefore(t time.Duration) []*ir.TrackElement {
	i := sort.Search(len(x.entries), func(i int) bool {
		return x.entries[i].Start >= t
	})
	return x.entries[:i]
}

// stop is the end of the last regular element, or 0 for a track without
// any. Inactive elements count.
func (x *trackIndex) stop() time.Duration {
	if len(x.maxEnd) == 0 {
		return 0
	}
	return x.maxEnd[len(x.maxEnd)-1]
}

// all returns regular and expandable entries ordered by (Start, Seq).
func (x *trackIndex) all() []*ir.TrackElement {
	if len(x.expandables) == 0 {
		return x.entries
	}
	out := make([]*ir.TrackElement, 0, len(x.entries)+len(x.expandables))
	out = append(append(out, x.entries...), x.expandables...)
	slices.SortStableFunc(out, func(a, b *ir.TrackElement) int {
		if entryLess(a, b.Start, b.Seq) {
			return -1
		}
		if entryLess(b, a.Start, a.Seq) {
			return 1
		}
		return 0
	})
	return out
}
