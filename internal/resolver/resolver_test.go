package resolver

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/store"
)

const sec = time.Second

type fixture struct {
	t *testing.T
	s *store.Store
	r *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New()
	require.NoError(t, s.AddTrack(ir.Track{ID: "v1", Medium: ir.MediumVideo}))
	return &fixture{t: t, s: s, r: New(s)}
}

func (f *fixture) add(id string, kind ir.Kind, start, dur time.Duration, prio int) {
	f.t.Helper()
	_, err := f.s.Add(ir.TrackElement{
		ID:       ir.ElementID(id),
		TrackID:  "v1",
		ObjectID: ir.ObjectID(id),
		Kind:     kind,
		Start:    start,
		Duration: dur,
		Priority: prio,
		Active:   true,
	})
	require.NoError(f.t, err)
}

func (f *fixture) stack(at time.Duration) []ir.ElementID {
	f.t.Helper()
	s, err := f.r.StackAt("v1", at)
	require.NoError(f.t, err)
	return s.IDs()
}

// Source A [0,10) priority 0 with effect B [2,6) priority 1.
func scenario(t *testing.T) *fixture {
	f := newFixture(t)
	f.add("A", ir.KindSource, 0, 10*sec, 0)
	f.add("B", ir.KindOperation, 2*sec, 4*sec, 1)
	return f
}

func TestStackAt_Scenario(t *testing.T) {
	f := scenario(t)
	assert.Equal(t, []ir.ElementID{"A", "B"}, f.stack(4*sec))
	assert.Equal(t, []ir.ElementID{"A"}, f.stack(8*sec))
	assert.Equal(t, []ir.ElementID{"A"}, f.stack(6*sec), "end is exclusive")
	assert.Equal(t, []ir.ElementID{"A", "B"}, f.stack(2*sec), "start is inclusive")
}

func TestStackAt_RemoveSource(t *testing.T) {
	f := scenario(t)
	_, err := f.s.Remove("A")
	require.NoError(t, err)
	assert.Equal(t, []ir.ElementID{"B"}, f.stack(4*sec))
}

func TestStackAt_OperationBelowSource(t *testing.T) {
	f := scenario(t)
	_, err := f.s.SetPriority("B", -1)
	require.NoError(t, err)
	assert.Equal(t, []ir.ElementID{"B", "A"}, f.stack(4*sec))
}

func TestStackAt_SourceBeforeOperationAtEqualPriority(t *testing.T) {
	f := newFixture(t)
	f.add("fx", ir.KindOperation, 0, 10*sec, 0)
	f.add("clip", ir.KindSource, 0, 10*sec, 0)
	assert.Equal(t, []ir.ElementID{"clip", "fx"}, f.stack(sec))
}

func TestStackAt_EqualPriorityInsertionOrder(t *testing.T) {
	f := newFixture(t)
	f.add("first", ir.KindSource, 0, 10*sec, 0)
	f.add("second", ir.KindSource, 5*sec, 10*sec, 0)
	f.add("third", ir.KindSource, 0, 10*sec, 0)

	assert.Equal(t, []ir.ElementID{"first", "second", "third"}, f.stack(6*sec))
	assert.Equal(t, f.stack(6*sec), f.stack(6*sec), "tie-break is deterministic")
}

func TestStackAt_GapAndOutOfRange(t *testing.T) {
	f := newFixture(t)
	f.add("a", ir.KindSource, 0, 2*sec, 0)
	f.add("b", ir.KindSource, 5*sec, 2*sec, 0)

	assert.Empty(t, f.stack(3*sec))
	assert.Empty(t, f.stack(-sec))
	assert.Empty(t, f.stack(time.Hour))
	assert.Empty(t, f.stack(Forever))

	_, err := f.r.StackAt("nope", 0)
	assert.True(t, ir.IsNotFound(err))
}

func TestStackAt_SkipsInactive(t *testing.T) {
	f := scenario(t)
	_, err := f.s.SetActive("B", false)
	require.NoError(t, err)
	assert.Equal(t, []ir.ElementID{"A"}, f.stack(4*sec))
}

func TestStackAt_NonOverlappingAtMostOne(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 20; i++ {
		f.add(fmt.Sprintf("c%02d", i), ir.KindSource, time.Duration(i)*sec, sec, i%3)
	}
	for ms := -500; ms < 21000; ms += 250 {
		assert.LessOrEqual(t, len(f.stack(time.Duration(ms)*time.Millisecond)), 1)
	}
}

func TestNextChange(t *testing.T) {
	f := scenario(t)

	next, ok, err := f.r.NextChange("v1", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2*sec, next)

	next, _, _ = f.r.NextChange("v1", 4*sec)
	assert.Equal(t, 6*sec, next)

	next, _, _ = f.r.NextChange("v1", 6*sec)
	assert.Equal(t, 10*sec, next)

	_, ok, err = f.r.NextChange("v1", 10*sec)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNextChange_SkipsInactiveStart(t *testing.T) {
	f := newFixture(t)
	f.add("a", ir.KindSource, 0, sec, 0)
	f.add("hidden", ir.KindSource, 3*sec, sec, 0)
	f.add("b", ir.KindSource, 5*sec, sec, 0)
	_, err := f.s.SetActive("hidden", false)
	require.NoError(t, err)

	next, ok, err := f.r.NextChange("v1", 2*sec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5*sec, next)
}

func TestWindow(t *testing.T) {
	f := scenario(t)

	stack, w, err := f.r.Window("v1", 4*sec)
	require.NoError(t, err)
	assert.Equal(t, []ir.ElementID{"A", "B"}, stack.IDs())
	assert.Equal(t, ir.TimeRange{Start: 2 * sec, End: 6 * sec}, w)

	_, w, err = f.r.Window("v1", 7*sec)
	require.NoError(t, err)
	assert.Equal(t, ir.TimeRange{Start: 6 * sec, End: 10 * sec}, w)

	stack, w, err = f.r.Window("v1", 12*sec)
	require.NoError(t, err)
	assert.Empty(t, stack)
	assert.Equal(t, ir.TimeRange{Start: 10 * sec, End: Forever}, w)

	_, w, err = f.r.Window("v1", -sec)
	require.NoError(t, err)
	assert.Equal(t, ir.TimeRange{Start: Beginning, End: 0}, w)
}

func TestSegments(t *testing.T) {
	f := scenario(t)
	f.add("C", ir.KindSource, 12*sec, 2*sec, 0)

	segs, err := f.r.Segments("v1", ir.TimeRange{Start: 0, End: 15 * sec})
	require.NoError(t, err)

	var got []string
	for _, s := range segs {
		got = append(got, fmt.Sprintf("%s %v", s.Range, s.Stack.IDs()))
	}
	assert.Equal(t, []string{
		"[0s, 2s) [A]",
		"[2s, 6s) [A B]",
		"[6s, 10s) [A]",
		"[10s, 12s) []",
		"[12s, 14s) [C]",
		"[14s, 15s) []",
	}, got)
}

// Every instant of a segment resolves to the segment's stack, and adjacent
// segments differ.
func TestSegments_ConsistentWithStackAt(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	f := newFixture(t)
	for i := 0; i < 40; i++ {
		kind := ir.KindSource
		if rng.Intn(2) == 0 {
			kind = ir.KindOperation
		}
		f.add(fmt.Sprintf("e%02d", i), kind,
			time.Duration(rng.Intn(60))*sec, time.Duration(1+rng.Intn(10))*sec, rng.Intn(5)-2)
	}

	segs, err := f.r.Segments("v1", ir.TimeRange{Start: 0, End: 80 * sec})
	require.NoError(t, err)
	require.NotEmpty(t, segs)
	assert.Equal(t, time.Duration(0), segs[0].Range.Start)
	assert.Equal(t, 80*sec, segs[len(segs)-1].Range.End)

	for i, seg := range segs {
		if i > 0 {
			assert.Equal(t, segs[i-1].Range.End, seg.Range.Start, "segments are contiguous")
			assert.NotEqual(t, segs[i-1].Stack.IDs(), seg.Stack.IDs(), "adjacent segments differ")
		}
		for _, at := range []time.Duration{seg.Range.Start, (seg.Range.Start + seg.Range.End) / 2, seg.Range.End - 1} {
			assert.Equal(t, seg.Stack.IDs(), f.stack(at), "stack at %s", at)
		}
	}
}

func TestResolve_AllTracks(t *testing.T) {
	f := scenario(t)
	require.NoError(t, f.s.AddTrack(ir.Track{ID: "a1", Medium: ir.MediumAudio}))

	all, err := f.r.Resolve(4 * sec)
	require.NoError(t, err)
	assert.Equal(t, []ir.ElementID{"A", "B"}, all["v1"].IDs())
	assert.Empty(t, all["a1"])
}

func TestAffectedRanges(t *testing.T) {
	before := ir.TrackElement{ID: "a", TrackID: "v1", Start: 0, Duration: 2 * sec}
	after := before
	after.Start = 10 * sec
	added := ir.TrackElement{ID: "b", TrackID: "v1", Start: sec, Duration: 2 * sec}
	audio := ir.TrackElement{ID: "m", TrackID: "a1", Start: 0, Duration: sec}

	got := AffectedRanges([]Change{
		{Before: &before, After: &after},
		{After: &added},
		{Before: &audio},
	})
	assert.Equal(t, []ir.TimeRange{{Start: 0, End: 3 * sec}, {Start: 10 * sec, End: 12 * sec}}, got["v1"])
	assert.Equal(t, []ir.TimeRange{{Start: 0, End: sec}}, got["a1"])

	assert.True(t, Covers(got["v1"], 11*sec))
	assert.False(t, Covers(got["v1"], 5*sec))
	assert.Empty(t, AffectedRanges(nil))
}

// S [2,4) and T [6,8) with an expandable background whose own placement
// is ignored.
func background(t *testing.T) *fixture {
	f := newFixture(t)
	f.add("S", ir.KindSource, 2*sec, 2*sec, 0)
	f.add("T", ir.KindSource, 6*sec, 2*sec, 0)
	_, err := f.s.Add(ir.TrackElement{
		ID:         "bg",
		TrackID:    "v1",
		ObjectID:   "bg",
		Kind:       ir.KindSource,
		Start:      0,
		Duration:   sec,
		Priority:   100,
		Active:     true,
		Expandable: true,
	})
	require.NoError(t, err)
	return f
}

func TestStackAt_ExpandableFillsUpToStop(t *testing.T) {
	f := background(t)

	assert.Equal(t, []ir.ElementID{"bg"}, f.stack(0))
	assert.Equal(t, []ir.ElementID{"S", "bg"}, f.stack(3*sec))
	assert.Equal(t, []ir.ElementID{"bg"}, f.stack(5*sec), "gap is filled")
	assert.Equal(t, []ir.ElementID{"T", "bg"}, f.stack(7*sec))
	assert.Empty(t, f.stack(8*sec), "nothing past the last regular element")

	s, err := f.r.StackAt("v1", 5*sec)
	require.NoError(t, err)
	assert.Equal(t, ir.TimeRange{Start: 0, End: 8 * sec}, s[0].Range())

	_, err = f.s.Move("T", 10*sec)
	require.NoError(t, err)
	assert.Equal(t, []ir.ElementID{"bg"}, f.stack(9*sec), "stop follows the last element")

	_, err = f.s.SetActive("bg", false)
	require.NoError(t, err)
	assert.Empty(t, f.stack(5*sec))
}

func TestStackAt_ExpandableAloneResolvesNothing(t *testing.T) {
	f := newFixture(t)
	_, err := f.s.Add(ir.TrackElement{
		ID: "bg", TrackID: "v1", Kind: ir.KindSource, Duration: sec, Active: true, Expandable: true,
	})
	require.NoError(t, err)
	assert.Empty(t, f.stack(0))

	_, ok, err := f.r.NextChange("v1", 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWindow_Expandable(t *testing.T) {
	f := background(t)

	tests := []struct {
		at    time.Duration
		stack []ir.ElementID
		want  ir.TimeRange
	}{
		{sec, []ir.ElementID{"bg"}, ir.TimeRange{Start: 0, End: 2 * sec}},
		{5 * sec, []ir.ElementID{"bg"}, ir.TimeRange{Start: 4 * sec, End: 6 * sec}},
		{7 * sec, []ir.ElementID{"T", "bg"}, ir.TimeRange{Start: 6 * sec, End: 8 * sec}},
		{9 * sec, []ir.ElementID{}, ir.TimeRange{Start: 8 * sec, End: Forever}},
	}
	for _, tt := range tests {
		t.Run(tt.at.String(), func(t *testing.T) {
			stack, w, err := f.r.Window("v1", tt.at)
			require.NoError(t, err)
			assert.Equal(t, tt.stack, stack.IDs())
			assert.Equal(t, tt.want, w)
		})
	}
}

func TestSegments_Expandable(t *testing.T) {
	f := background(t)

	segs, err := f.r.Segments("v1", ir.TimeRange{Start: 0, End: 10 * sec})
	require.NoError(t, err)

	var got []string
	for _, s := range segs {
		got = append(got, fmt.Sprintf("%s %v", s.Range, s.Stack.IDs()))
	}
	want := []string{
		fmt.Sprintf("%s %v", ir.TimeRange{Start: 0, End: 2 * sec}, []ir.ElementID{"bg"}),
		fmt.Sprintf("%s %v", ir.TimeRange{Start: 2 * sec, End: 4 * sec}, []ir.ElementID{"S", "bg"}),
		fmt.Sprintf("%s %v", ir.TimeRange{Start: 4 * sec, End: 6 * sec}, []ir.ElementID{"bg"}),
		fmt.Sprintf("%s %v", ir.TimeRange{Start: 6 * sec, End: 8 * sec}, []ir.ElementID{"T", "bg"}),
		fmt.Sprintf("%s %v", ir.TimeRange{Start: 8 * sec, End: 10 * sec}, []ir.ElementID{}),
	}
	assert.Equal(t, want, got)
}

func TestAffected_WidensTracksWithExpandables(t *testing.T) {
	f := background(t)
	require.NoError(t, f.s.AddTrack(ir.Track{ID: "a1", Medium: ir.MediumAudio}))

	before, err := f.s.Get("T")
	require.NoError(t, err)
	after, err := f.s.Move("T", 3*sec)
	require.NoError(t, err)
	audio := ir.TrackElement{ID: "m", TrackID: "a1", Start: 0, Duration: sec}

	got, err := f.r.Affected([]Change{{Before: &before, After: &after}, {After: &audio}})
	require.NoError(t, err)
	assert.Equal(t, []ir.TimeRange{{Start: Beginning, End: Forever}}, got["v1"])
	assert.Equal(t, []ir.TimeRange{{Start: 0, End: sec}}, got["a1"])
	assert.True(t, Covers(got["v1"], 6*sec), "the region T left is re-resolved")
}
