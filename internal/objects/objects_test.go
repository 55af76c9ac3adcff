package objects

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/keyframe"
	"github.com/roach88/stackline/internal/layers"
	"github.com/roach88/stackline/internal/resolver"
	"github.com/roach88/stackline/internal/store"
)

const sec = time.Second

type fixture struct {
	t      *testing.T
	store  *store.Store
	layers *layers.Manager
	curves *keyframe.Registry
	c      *Coordinator
	r      *resolver.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := store.New()
	require.NoError(t, s.AddTrack(ir.Track{ID: "v1", Medium: ir.MediumVideo}))
	require.NoError(t, s.AddTrack(ir.Track{ID: "a1", Medium: ir.MediumAudio}))
	lm := layers.NewManager(100)
	curves := keyframe.NewRegistry()
	f := &fixture{t: t, store: s, layers: lm, curves: curves, c: New(s, lm, curves), r: resolver.New(s)}
	_, err := f.c.AddLayer("base", 0)
	require.NoError(t, err)
	_, err = f.c.AddLayer("top", 1)
	require.NoError(t, err)
	return f
}

func el(id string, track ir.TrackID, kind ir.Kind, start, dur time.Duration) Member {
	return Member{Element: ir.TrackElement{
		ID:       ir.ElementID(id),
		TrackID:  track,
		Kind:     kind,
		Start:    start,
		Duration: dur,
	}}
}

func (f *fixture) create(id ir.ObjectID, layer ir.LayerID, members ...Member) Result {
	f.t.Helper()
	res, err := f.c.Create(id, layer, members)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) get(id string) ir.TrackElement {
	f.t.Helper()
	e, err := f.store.Get(ir.ElementID(id))
	require.NoError(f.t, err)
	return e
}

func (f *fixture) stack(track ir.TrackID, at time.Duration) []ir.ElementID {
	f.t.Helper()
	s, err := f.r.StackAt(track, at)
	require.NoError(f.t, err)
	return s.IDs()
}

func TestCreate_DefaultPriorities(t *testing.T) {
	f := newFixture(t)
	res := f.create("clip", "top",
		el("fx1", "v1", ir.KindOperation, 0, 10*sec),
		el("src", "v1", ir.KindSource, 0, 10*sec),
		el("fx2", "v1", ir.KindOperation, 0, 10*sec),
	)

	assert.Equal(t, 100, f.get("src").Priority)
	assert.Equal(t, 101, f.get("fx1").Priority)
	assert.Equal(t, 102, f.get("fx2").Priority)
	assert.Len(t, res.Changes, 3)
	assert.Empty(t, res.Warnings)

	assert.Equal(t, []ir.ElementID{"src", "fx1", "fx2"}, f.stack("v1", sec))

	o, err := f.c.Get("clip")
	require.NoError(t, err)
	assert.Equal(t, ir.LayerID("top"), o.Layer)
	assert.Equal(t, []ir.ElementID{"fx1", "src", "fx2"}, o.Members)

	owner, err := f.c.ObjectOf("fx2")
	require.NoError(t, err)
	assert.Equal(t, ir.ObjectID("clip"), owner)
}

func TestCreate_ExplicitPriority(t *testing.T) {
	f := newFixture(t)
	m := el("fx", "v1", ir.KindOperation, 0, sec)
	m.Element.Priority = -1
	m.Explicit = true
	f.create("o", "base", el("src", "v1", ir.KindSource, 0, sec), m)

	assert.Equal(t, []ir.ElementID{"fx", "src"}, f.stack("v1", 0))
}

func TestCreate_AtomicOnInvalidMember(t *testing.T) {
	f := newFixture(t)
	_, err := f.c.Create("o", "base", []Member{
		el("good", "v1", ir.KindSource, 0, sec),
		el("bad", "v1", ir.KindSource, 0, 0),
	})
	assert.True(t, ir.IsInvalidRange(err))
	assert.Equal(t, 0, f.store.Len())
	_, err = f.c.Get("o")
	assert.True(t, ir.IsNotFound(err))

	_, err = f.c.Create("o", "nope", []Member{el("x", "v1", ir.KindSource, 0, sec)})
	assert.True(t, ir.IsNotFound(err))

	_, err = f.c.Create("o", "base", nil)
	assert.True(t, ir.IsInvalidRange(err))

	_, err = f.c.Create("o", "base", []Member{
		el("dup", "v1", ir.KindSource, 0, sec),
		el("dup", "a1", ir.KindSource, 0, sec),
	})
	assert.True(t, ir.IsInvalidRange(err))
}

func TestCreate_SourceConflictWarning(t *testing.T) {
	f := newFixture(t)
	f.create("a", "base", el("A", "v1", ir.KindSource, 0, 10*sec))
	res := f.create("b", "base", el("B", "v1", ir.KindSource, 5*sec, 10*sec))

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, ir.CodePriorityConflict, res.Warnings[0].Code)
	assert.Equal(t, []ir.ElementID{"A", "B"}, f.stack("v1", 6*sec), "insertion order breaks the tie")
}

func TestAddMember(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base", el("src", "v1", ir.KindSource, 0, sec))
	_, err := f.c.AddMember("o", el("fx", "v1", ir.KindOperation, 0, sec))
	require.NoError(t, err)

	assert.Equal(t, 1, f.get("fx").Priority)
	o, _ := f.c.Get("o")
	assert.Equal(t, []ir.ElementID{"src", "fx"}, o.Members)

	_, err = f.c.AddMember("zzz", el("x", "v1", ir.KindSource, 0, sec))
	assert.True(t, ir.IsNotFound(err))
}

func TestAddMember_SkipsPrioritiesInUse(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base",
		el("src", "v1", ir.KindSource, 0, sec),
		el("fx1", "v1", ir.KindOperation, 0, sec),
		el("fx2", "v1", ir.KindOperation, 0, sec),
	)
	assert.Equal(t, 2, f.get("fx2").Priority)

	_, err := f.c.RemoveElement("fx1")
	require.NoError(t, err)
	_, err = f.c.AddMember("o", el("fx3", "v1", ir.KindOperation, 0, sec))
	require.NoError(t, err)

	assert.Equal(t, 3, f.get("fx3").Priority)
	assert.Equal(t, []ir.ElementID{"src", "fx2", "fx3"}, f.stack("v1", 0))
}

func TestMove_PreservesOffsets(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base",
		el("v", "v1", ir.KindSource, 2*sec, 4*sec),
		el("a", "a1", ir.KindSource, 3*sec, 4*sec),
	)

	res, err := f.c.Move("o", 10*sec)
	require.NoError(t, err)
	assert.Equal(t, 10*sec, f.get("v").Start)
	assert.Equal(t, 11*sec, f.get("a").Start)

	affected := resolver.AffectedRanges(res.Changes)
	assert.Equal(t, []ir.TimeRange{{Start: 2 * sec, End: 6 * sec}, {Start: 10 * sec, End: 14 * sec}}, affected["v1"])

	_, err = f.c.Move("o", -sec)
	assert.True(t, ir.IsInvalidRange(err))
	assert.Equal(t, 10*sec, f.get("v").Start, "rejected move changes nothing")
	assert.Equal(t, 11*sec, f.get("a").Start)
}

func TestTrim_FollowsEdges(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base",
		el("long", "v1", ir.KindSource, 0, 10*sec),
		el("inner", "a1", ir.KindSource, 2*sec, 4*sec),
	)

	_, err := f.c.Trim("o", sec, 8*sec)
	require.NoError(t, err)

	long := f.get("long")
	assert.Equal(t, ir.TimeRange{Start: sec, End: 9 * sec}, long.Range())
	assert.Equal(t, sec, long.InPoint, "start edge advanced the in-point")

	inner := f.get("inner")
	assert.Equal(t, ir.TimeRange{Start: 2 * sec, End: 6 * sec}, inner.Range(), "interior member untouched")
	assert.Equal(t, time.Duration(0), inner.InPoint)
}

func TestTrim_ClipsInterior(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base",
		el("long", "v1", ir.KindSource, 0, 10*sec),
		el("inner", "a1", ir.KindSource, 2*sec, 4*sec),
	)

	_, err := f.c.Trim("o", 3*sec, 2*sec)
	require.NoError(t, err)
	inner := f.get("inner")
	assert.Equal(t, ir.TimeRange{Start: 3 * sec, End: 5 * sec}, inner.Range())
	assert.Equal(t, sec, inner.InPoint)
}

func TestTrim_Rejections(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base",
		el("long", "v1", ir.KindSource, 0, 10*sec),
		el("inner", "a1", ir.KindSource, 2*sec, 2*sec),
	)

	_, err := f.c.Trim("o", 5*sec, 5*sec)
	assert.True(t, ir.IsInvalidRange(err), "inner would be left empty")
	assert.Equal(t, ir.TimeRange{Start: 0, End: 10 * sec}, f.get("long").Range())

	_, err = f.c.Trim("o", 0, 0)
	assert.True(t, ir.IsInvalidRange(err))

	_, err = f.c.Trim("o", -sec, 12*sec)
	assert.True(t, ir.IsInvalidRange(err), "in-point would go negative")
}

func TestSplit(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base",
		el("v", "v1", ir.KindSource, 0, 10*sec),
		el("a", "a1", ir.KindSource, 2*sec, 6*sec),
	)

	_, err := f.c.Split("o", 4*sec, "o2", []ir.ElementID{"v2", "a2"})
	require.NoError(t, err)

	v, v2 := f.get("v"), f.get("v2")
	assert.Equal(t, ir.TimeRange{Start: 0, End: 4 * sec}, v.Range())
	assert.Equal(t, ir.TimeRange{Start: 4 * sec, End: 10 * sec}, v2.Range())
	assert.Equal(t, 4*sec, v2.InPoint)
	assert.Equal(t, v.Priority, v2.Priority)
	assert.Equal(t, ir.ObjectID("o2"), v2.ObjectID)

	a2 := f.get("a2")
	assert.Equal(t, 2*sec, a2.InPoint)
	assert.Equal(t, ir.TimeRange{Start: 4 * sec, End: 8 * sec}, a2.Range())

	o2, err := f.c.Get("o2")
	require.NoError(t, err)
	assert.Equal(t, ir.LayerID("base"), o2.Layer)
	assert.Equal(t, []ir.ElementID{"v2", "a2"}, o2.Members)

	// The halves cover exactly the original span.
	assert.Equal(t, []ir.ElementID{"v"}, f.stack("v1", 4*sec-1))
	assert.Equal(t, []ir.ElementID{"v2"}, f.stack("v1", 4*sec))
}

func TestSplit_InvalidPoint(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base",
		el("v", "v1", ir.KindSource, 0, 10*sec),
		el("a", "a1", ir.KindSource, 2*sec, 2*sec),
	)

	for _, at := range []time.Duration{0, 2 * sec, 5 * sec, 10 * sec} {
		_, err := f.c.Split("o", at, "o2", []ir.ElementID{"v2", "a2"})
		assert.True(t, ir.IsInvalidSplitPoint(err), "split at %s", at)
	}
	assert.Equal(t, 2, f.store.Len())

	_, err := f.c.Split("o", 3*sec, "o2", []ir.ElementID{"v2"})
	assert.True(t, ir.IsInvalidRange(err), "missing ids")
	_, err = f.c.Split("o", 3*sec, "o", []ir.ElementID{"v2", "a2"})
	assert.True(t, ir.IsInvalidRange(err), "existing object id")
}

func TestSplit_Keyframes(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base", el("fx", "v1", ir.KindOperation, 0, 10*sec))

	c := keyframe.New(10 * sec)
	c, err := c.Insert(0, 0, keyframe.ModeLinear)
	require.NoError(t, err)
	c, err = c.Insert(8*sec, 8, keyframe.ModeLinear)
	require.NoError(t, err)
	f.curves.Store(keyframe.Key{Element: "fx", Property: "alpha"}, c)

	_, err = f.c.Split("o", 4*sec, "o2", []ir.ElementID{"fx2"})
	require.NoError(t, err)

	left := f.curves.Load(keyframe.Key{Element: "fx", Property: "alpha"})
	right := f.curves.Load(keyframe.Key{Element: "fx2", Property: "alpha"})
	require.NotNil(t, left)
	require.NotNil(t, right)
	assert.Equal(t, 4*sec, left.Duration())

	v, _ := right.Evaluate(0)
	assert.InDelta(t, 4.0, v, 1e-9)
	v, _ = right.Evaluate(2 * sec)
	assert.InDelta(t, 6.0, v, 1e-9)
	v, _ = left.Evaluate(2 * sec)
	assert.InDelta(t, 2.0, v, 1e-9)
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base",
		el("v", "v1", ir.KindSource, 0, sec),
		el("a", "a1", ir.KindSource, 0, sec),
	)
	f.curves.Store(keyframe.Key{Element: "v", Property: "alpha"}, keyframe.New(sec))

	res, err := f.c.Remove("o")
	require.NoError(t, err)
	assert.Len(t, res.Changes, 2)
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 0, f.curves.Len())

	_, err = f.c.Remove("o")
	assert.True(t, ir.IsNotFound(err))
}

func TestRemoveElement(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base",
		el("v", "v1", ir.KindSource, 0, sec),
		el("a", "a1", ir.KindSource, 0, sec),
	)

	_, err := f.c.RemoveElement("v")
	require.NoError(t, err)
	o, err := f.c.Get("o")
	require.NoError(t, err)
	assert.Equal(t, []ir.ElementID{"a"}, o.Members)

	_, err = f.c.RemoveElement("a")
	require.NoError(t, err)
	_, err = f.c.Get("o")
	assert.True(t, ir.IsNotFound(err), "empty object is dropped")

	_, err = f.c.RemoveElement("a")
	assert.True(t, ir.IsNotFound(err))
}

func TestGroupUngroup(t *testing.T) {
	f := newFixture(t)
	f.create("video", "top", el("v", "v1", ir.KindSource, 0, sec))
	f.create("audio", "base", el("a", "a1", ir.KindSource, 0, sec))

	res, err := f.c.Group([]ir.ObjectID{"video", "audio"}, "both")
	require.NoError(t, err)
	assert.Empty(t, res.Changes, "grouping does not change stacks")

	o, err := f.c.Get("both")
	require.NoError(t, err)
	assert.Equal(t, ir.LayerID("top"), o.Layer)
	assert.Equal(t, []ir.ElementID{"v", "a"}, o.Members)
	_, err = f.c.Get("video")
	assert.True(t, ir.IsNotFound(err))
	assert.Equal(t, ir.ObjectID("both"), f.get("a").ObjectID)

	media, err := f.c.Media("both")
	require.NoError(t, err)
	assert.Equal(t, []ir.Medium{ir.MediumAudio, ir.MediumVideo}, media)

	_, err = f.c.Ungroup("both", []ir.ObjectID{"v-only"})
	require.NoError(t, err)

	o, _ = f.c.Get("both")
	assert.Equal(t, []ir.ElementID{"a"}, o.Members)
	o, _ = f.c.Get("v-only")
	assert.Equal(t, []ir.ElementID{"v"}, o.Members)
	owner, _ := f.c.ObjectOf("v")
	assert.Equal(t, ir.ObjectID("v-only"), owner)
}

func TestGroup_Errors(t *testing.T) {
	f := newFixture(t)
	f.create("x", "base", el("v", "v1", ir.KindSource, 0, sec))

	_, err := f.c.Group(nil, "g")
	assert.True(t, ir.IsInvalidRange(err))
	_, err = f.c.Group([]ir.ObjectID{"x", "nope"}, "g")
	assert.True(t, ir.IsNotFound(err))
	_, err = f.c.Group([]ir.ObjectID{"x", "x"}, "g")
	assert.True(t, ir.IsInvalidRange(err))
	_, err = f.c.Group([]ir.ObjectID{"x"}, "x")
	assert.True(t, ir.IsInvalidRange(err))

	_, err = f.c.Ungroup("x", nil)
	assert.NoError(t, err, "single medium needs no new ids")
}

func TestUngroup_Errors(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.AddTrack(ir.Track{ID: "t1", Medium: ir.MediumText}))
	f.create("clip", "base",
		el("a", "a1", ir.KindSource, 0, sec),
		el("t", "t1", ir.KindSource, 0, sec),
		el("v", "v1", ir.KindSource, 0, sec),
	)
	f.create("other", "base", el("o", "v1", ir.KindSource, 2*sec, sec))

	_, err := f.c.Ungroup("nope", nil)
	assert.True(t, ir.IsNotFound(err))
	_, err = f.c.Ungroup("clip", []ir.ObjectID{"x"})
	assert.True(t, ir.IsInvalidRange(err), "too few ids")
	_, err = f.c.Ungroup("clip", []ir.ObjectID{"x", "y", "z"})
	assert.True(t, ir.IsInvalidRange(err), "extra ids")
	_, err = f.c.Ungroup("clip", []ir.ObjectID{"x", "x"})
	assert.True(t, ir.IsInvalidRange(err), "duplicate ids")
	_, err = f.c.Ungroup("clip", []ir.ObjectID{"x", "other"})
	assert.True(t, ir.IsInvalidRange(err), "existing id")
	_, err = f.c.Ungroup("clip", []ir.ObjectID{"", "y"})
	assert.True(t, ir.IsInvalidRange(err), "empty id")

	o, err := f.c.Get("clip")
	require.NoError(t, err)
	assert.Equal(t, []ir.ElementID{"a", "t", "v"}, o.Members, "rejected ungroups leave the object intact")
	_, err = f.c.Get("x")
	assert.True(t, ir.IsNotFound(err))

	_, err = f.c.Ungroup("clip", []ir.ObjectID{"x", "y"})
	require.NoError(t, err)
	for _, id := range []string{"a", "t", "v"} {
		owner, err := f.c.ObjectOf(ir.ElementID(id))
		require.NoError(t, err)
		o, err := f.c.Get(owner)
		require.NoError(t, err)
		assert.Equal(t, []ir.ElementID{ir.ElementID(id)}, o.Members, "element %s", id)
	}
}

func TestMoveToLayer(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base",
		el("src", "v1", ir.KindSource, 0, sec),
		el("fx", "v1", ir.KindOperation, 0, sec),
	)

	_, err := f.c.MoveToLayer("o", "top")
	require.NoError(t, err)
	assert.Equal(t, 100, f.get("src").Priority)
	assert.Equal(t, 101, f.get("fx").Priority)
	o, _ := f.c.Get("o")
	assert.Equal(t, ir.LayerID("top"), o.Layer)
}

func TestMoveToLayer_RejectsOutOfBand(t *testing.T) {
	f := newFixture(t)
	f.create("o", "top", el("src", "v1", ir.KindSource, 0, sec))
	_, err := f.c.SetPriority("src", 50)
	require.NoError(t, err)

	_, err = f.c.MoveToLayer("o", "base")
	assert.True(t, ir.IsPriorityConflict(err))
	assert.Equal(t, 50, f.get("src").Priority)
	o, _ := f.c.Get("o")
	assert.Equal(t, ir.LayerID("top"), o.Layer)
}

func TestMoveToLayer_RejectsNewSourceConflict(t *testing.T) {
	f := newFixture(t)
	f.create("low", "base", el("A", "v1", ir.KindSource, 0, 10*sec))
	f.create("high", "top", el("B", "v1", ir.KindSource, 5*sec, 10*sec))

	_, err := f.c.MoveToLayer("high", "base")
	assert.True(t, ir.IsPriorityConflict(err))
	assert.Equal(t, 100, f.get("B").Priority, "rolled back")
	o, _ := f.c.Get("high")
	assert.Equal(t, ir.LayerID("top"), o.Layer)
}

func TestLayerEdits_Reband(t *testing.T) {
	f := newFixture(t)
	f.create("o", "top",
		el("src", "v1", ir.KindSource, 0, sec),
		el("fx", "v1", ir.KindOperation, 0, sec),
	)

	res, err := f.c.AddLayer("bottom", 0)
	require.NoError(t, err)
	assert.Equal(t, 200, f.get("src").Priority)
	assert.Equal(t, 201, f.get("fx").Priority)
	assert.NotEmpty(t, res.Changes)

	_, err = f.c.MoveLayer("top", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, f.get("src").Priority)

	_, err = f.c.RemoveLayer("top")
	require.NoError(t, err)
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, 2, f.layers.Len())
	b, _ := f.layers.Band("base")
	assert.Equal(t, 100, b.Base)
}

func TestLayerEdits_RejectedMoveKeepsOrder(t *testing.T) {
	f := newFixture(t)
	f.create("o", "top", el("src", "v1", ir.KindSource, 0, sec))

	fx := el("fx", "v1", ir.KindOperation, 0, sec)
	fx.Element.Priority = 100 + 150
	fx.Explicit = true
	_, err := f.c.AddMember("o", fx)
	require.NoError(t, err)

	_, err = f.c.MoveLayer("top", 0)
	assert.True(t, ir.IsPriorityConflict(err))
	l, _ := f.layers.Layer("top")
	assert.Equal(t, 1, l.Rank)
	assert.Equal(t, 250, f.get("fx").Priority)
}

func TestSingleElementEdits(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base", el("src", "v1", ir.KindSource, 0, 10*sec))

	_, err := f.c.MoveElement("src", 3*sec)
	require.NoError(t, err)
	assert.Equal(t, 3*sec, f.get("src").Start)

	_, err = f.c.TrimElement("src", 3*sec, 2*sec, sec)
	require.NoError(t, err)
	assert.Equal(t, ir.TimeRange{Start: 3 * sec, End: 5 * sec}, f.get("src").Range())

	_, err = f.c.SetActive("src", false)
	require.NoError(t, err)
	assert.Empty(t, f.stack("v1", 4*sec))

	_, err = f.c.TrimElement("src", 0, -sec, 0)
	assert.True(t, ir.IsInvalidRange(err))
	_, err = f.c.MoveElement("nope", 0)
	assert.True(t, ir.IsNotFound(err))
}

func TestTrimElement_ResizesCurves(t *testing.T) {
	f := newFixture(t)
	f.create("o", "base", el("fx", "v1", ir.KindOperation, 0, 10*sec))
	f.curves.Store(keyframe.Key{Element: "fx", Property: "alpha"}, keyframe.New(10*sec))

	_, err := f.c.TrimElement("fx", 0, 4*sec, 0)
	require.NoError(t, err)
	assert.Equal(t, 4*sec, f.curves.Load(keyframe.Key{Element: "fx", Property: "alpha"}).Duration())
}
