package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stackline/internal/graphsync"
	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/keyframe"
)

const sec = time.Second

// newTimeline returns a timeline with video track v1 and layer base at
// rank 0, playhead at 4s.
func newTimeline(t *testing.T, opts ...Option) *Timeline {
	t.Helper()
	opts = append([]Option{WithIDGenerator(NewSequentialGenerator())}, opts...)
	tl, err := New(Config{Playhead: 4 * sec}, opts...)
	require.NoError(t, err)
	t.Cleanup(tl.Close)

	ctx := context.Background()
	_, err = tl.AddTrack(ctx, "v1", ir.MediumVideo)
	require.NoError(t, err)
	_, err = tl.AddLayer(ctx, "base", 0)
	require.NoError(t, err)
	return tl
}

// scenario adds Source A [0,10) and Operation B [2,6).
func scenario(t *testing.T, opts ...Option) *Timeline {
	t.Helper()
	tl := newTimeline(t, opts...)
	ctx := context.Background()
	_, err := tl.AddElement(ctx, "base", ElementSpec{ID: "A", Track: "v1", Kind: ir.KindSource, Duration: 10 * sec})
	require.NoError(t, err)
	_, err = tl.AddElement(ctx, "base", ElementSpec{
		ID: "B", Track: "v1", Kind: ir.KindOperation, Effect: "agingtv",
		Start: 2 * sec, Duration: 4 * sec,
	})
	require.NoError(t, err)
	return tl
}

func stack(t *testing.T, tl *Timeline, at time.Duration) []ir.ElementID {
	t.Helper()
	s, err := tl.StackAt("v1", at)
	require.NoError(t, err)
	return s.IDs()
}

func TestNew_Defaults(t *testing.T) {
	tl, err := New(Config{})
	require.NoError(t, err)
	defer tl.Close()
	assert.Equal(t, uint64(0), tl.Snapshot().Version())
	assert.Equal(t, time.Duration(0), tl.Position())

	_, err = New(Config{LayerHeight: -1})
	assert.Error(t, err)
	_, err = New(Config{Playhead: -sec})
	assert.Error(t, err)
}

func TestTimeline_Scenario(t *testing.T) {
	tl := scenario(t)

	assert.Equal(t, []ir.ElementID{"A", "B"}, tl.Snapshot().Stack("v1"))
	assert.Equal(t, []ir.ElementID{"A"}, stack(t, tl, 8*sec))

	b, err := tl.Element("B")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Priority, "operations default to band base + 1")
}

func TestTimeline_RemoveSourceEmitsOneRemove(t *testing.T) {
	tl := scenario(t)
	before := tl.Snapshot().Version()

	u, err := tl.RemoveElement(context.Background(), "A")
	require.NoError(t, err)
	require.NotNil(t, u.Batch)
	assert.Equal(t, before+1, u.Version)
	require.Len(t, u.Batch.Tracks, 1)
	assert.Equal(t,
		[]graphsync.Instruction{{Op: graphsync.OpRemove, Element: "A", Position: 0}},
		u.Batch.Tracks[0].Instructions)
	assert.Equal(t, []ir.ElementID{"B"}, tl.Snapshot().Stack("v1"))
}

func TestTimeline_PriorityBelowSource(t *testing.T) {
	tl := scenario(t)
	u, err := tl.SetPriority(context.Background(), "B", -1)
	require.NoError(t, err)
	require.NotNil(t, u.Batch)
	assert.Equal(t, 1, u.Batch.Len())
	assert.Equal(t, []ir.ElementID{"B", "A"}, tl.Snapshot().Stack("v1"))
}

func TestTimeline_EditAwayFromPlayheadKeepsVersion(t *testing.T) {
	tl := scenario(t)
	before := tl.Snapshot()

	u, err := tl.AddElement(context.Background(), "base", ElementSpec{
		ID: "C", Track: "v1", Kind: ir.KindSource, Start: 20 * sec, Duration: sec,
	})
	require.NoError(t, err)
	assert.Nil(t, u.Batch)
	assert.Same(t, before, tl.Snapshot())
	assert.Equal(t, before.Version(), u.Version)
}

func TestTimeline_ExpandableFollowsTrackStop(t *testing.T) {
	tl := newTimeline(t)
	ctx := context.Background()

	_, err := tl.AddElement(ctx, "base", ElementSpec{ID: "A", Track: "v1", Kind: ir.KindSource, Duration: 2 * sec})
	require.NoError(t, err)
	u, err := tl.AddElement(ctx, "base", ElementSpec{
		ID: "bg", Track: "v1", Kind: ir.KindSource, Duration: sec, Expandable: true,
	})
	require.NoError(t, err)
	assert.Nil(t, u.Batch, "the playhead is past the track's stop")

	// C lies away from the playhead but moves the stop past it.
	u, err = tl.AddElement(ctx, "base", ElementSpec{ID: "C", Track: "v1", Kind: ir.KindSource, Start: 8 * sec, Duration: sec})
	require.NoError(t, err)
	require.NotNil(t, u.Batch)
	require.Len(t, u.Batch.Tracks, 1)
	assert.Equal(t,
		[]graphsync.Instruction{{Op: graphsync.OpInsert, Element: "bg", Position: 0}},
		u.Batch.Tracks[0].Instructions)
	assert.Equal(t, []ir.ElementID{"bg"}, tl.Snapshot().Stack("v1"))

	stack, window, err := tl.Window("v1", 4*sec)
	require.NoError(t, err)
	assert.Equal(t, []ir.ElementID{"bg"}, stack.IDs())
	assert.Equal(t, ir.TimeRange{Start: 2 * sec, End: 8 * sec}, window)

	u, err = tl.RemoveElement(ctx, "C")
	require.NoError(t, err)
	require.NotNil(t, u.Batch)
	assert.Equal(t,
		[]graphsync.Instruction{{Op: graphsync.OpRemove, Element: "bg", Position: 0}},
		u.Batch.Tracks[0].Instructions)
	assert.Empty(t, tl.Snapshot().Stack("v1"))

	_, err = tl.Split(ctx, "obj-2", 500*time.Millisecond)
	assert.True(t, ir.IsInvalidSplitPoint(err), "expandable members cannot be split")
}

func TestTimeline_ConflictWarning(t *testing.T) {
	tl := scenario(t)
	u, err := tl.AddElement(context.Background(), "base", ElementSpec{
		ID: "C", Track: "v1", Kind: ir.KindSource, Duration: 5 * sec,
	})
	require.NoError(t, err)
	require.Len(t, u.Warnings, 1)
	assert.Equal(t, ir.CodePriorityConflict, u.Warnings[0].Code)
	assert.Equal(t, []ir.ElementID{"A", "C", "B"}, tl.Snapshot().Stack("v1"), "insertion order breaks the tie")
}

func TestTimeline_RejectedEditLeavesNoTrace(t *testing.T) {
	tl := scenario(t)
	snap, seq := tl.Snapshot(), tl.LastSeq()

	_, err := tl.AddElement(context.Background(), "base", ElementSpec{ID: "C", Track: "v1", Duration: 0})
	assert.True(t, ir.IsInvalidRange(err))

	_, err = tl.MoveElement(context.Background(), "missing", sec)
	assert.True(t, ir.IsNotFound(err))

	_, err = tl.Split(context.Background(), "obj-1", 10*sec)
	assert.True(t, ir.IsInvalidSplitPoint(err))

	assert.Same(t, snap, tl.Snapshot())
	assert.Equal(t, seq, tl.LastSeq())
	assert.Len(t, tl.Elements(), 2)
}

func TestApply_DispatchErrors(t *testing.T) {
	tl := newTimeline(t)
	ctx := context.Background()

	_, err := tl.Apply(ctx, ir.EditRecord{Op: "teleport"})
	assert.True(t, IsUnknownOp(err))

	_, err = tl.Apply(ctx, ir.EditRecord{Op: ir.OpMove, Args: ir.IRObject{"element": ir.IRString("A")}})
	assert.True(t, IsBadArgument(err))
	assert.ErrorContains(t, err, `"start"`)

	_, err = tl.Apply(ctx, ir.EditRecord{Op: ir.OpAddTrack, Args: ir.IRObject{
		"id": ir.IRString("x"), "medium": ir.IRString("smell"),
	}})
	assert.True(t, IsBadArgument(err))
}

func TestApply_GeneratedIDsAreRecorded(t *testing.T) {
	tl := newTimeline(t)
	u, err := tl.AddElement(context.Background(), "base", ElementSpec{Track: "v1", Duration: sec})
	require.NoError(t, err)

	assert.Equal(t, ir.IRString("el-1"), u.Edit.Args["id"])
	assert.Equal(t, ir.IRString("obj-1"), u.Edit.Args["object"])
	assert.Equal(t, int64(3), u.Edit.Seq, "third edit after add_track and add_layer")

	o, err := tl.Object("obj-1")
	require.NoError(t, err)
	assert.Equal(t, []ir.ElementID{"el-1"}, o.Members)
}

func TestApply_DoesNotMutateCallerArgs(t *testing.T) {
	tl := newTimeline(t)
	args := ir.IRObject{
		"layer": ir.IRString("base"),
		"members": ir.IRArray{ir.IRObject{
			"track": ir.IRString("v1"), "start": ir.IRInt(0), "duration": ir.IRString("2s"),
		}},
	}
	u, err := tl.Apply(context.Background(), ir.EditRecord{Op: ir.OpCreateObject, Args: args})
	require.NoError(t, err)

	assert.False(t, args.Has("id"))
	assert.False(t, args["members"].(ir.IRArray)[0].(ir.IRObject).Has("id"))
	member := u.Edit.Args["members"].(ir.IRArray)[0].(ir.IRObject)
	assert.Equal(t, ir.IRString("el-1"), member["id"])
}

func TestTimeline_ObjectEdits(t *testing.T) {
	tl := newTimeline(t)
	ctx := context.Background()
	_, err := tl.AddTrack(ctx, "a1", ir.MediumAudio)
	require.NoError(t, err)

	_, err = tl.CreateObject(ctx, "clip", "base",
		ElementSpec{ID: "v", Track: "v1", Duration: 10 * sec},
		ElementSpec{ID: "a", Track: "a1", Duration: 10 * sec},
	)
	require.NoError(t, err)

	_, err = tl.MoveObject(ctx, "clip", 2*sec)
	require.NoError(t, err)
	a, err := tl.Element("a")
	require.NoError(t, err)
	assert.Equal(t, 2*sec, a.Start, "members move together")

	u, err := tl.Split(ctx, "clip", 7*sec)
	require.NoError(t, err)
	assert.Equal(t, ir.IRString("obj-1"), u.Edit.Args["new_object"])
	right, err := tl.Object("obj-1")
	require.NoError(t, err)
	assert.Len(t, right.Members, 2)

	u, err = tl.Ungroup(ctx, "clip")
	require.NoError(t, err)
	assert.Len(t, u.Edit.Args["new_ids"], 1)
	assert.Len(t, tl.Objects(), 3)
}

func TestTimeline_Keyframes(t *testing.T) {
	tl := scenario(t)
	ctx := context.Background()

	_, err := tl.SetKeyframe(ctx, "A", "alpha", 0, 0, keyframe.ModeLinear)
	require.NoError(t, err)
	_, err = tl.SetKeyframe(ctx, "A", "alpha", 9*sec, 0.9, 0)
	require.NoError(t, err)

	v, ok := tl.Evaluate("A", "alpha", 5*sec)
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)

	_, err = tl.SetKeyframe(ctx, "A", "alpha", 10*sec, 1, 0)
	assert.True(t, ir.IsInvalidRange(err), "points must lie inside the element")

	_, err = tl.RemoveKeyframe(ctx, "A", "alpha", 3*sec)
	assert.True(t, ir.IsNotFound(err))
	_, err = tl.RemoveKeyframe(ctx, "A", "beta", 0)
	assert.True(t, ir.IsNotFound(err))

	// Splitting the object carries the curve over to both halves.
	u, err := tl.Split(ctx, "obj-1", 5*sec)
	require.NoError(t, err)
	tail := ir.ElementID(u.Edit.Args["new_ids"].(ir.IRArray)[0].(ir.IRString))
	v, ok = tl.Evaluate(tail, "alpha", 0)
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-9)
	assert.Equal(t, 5*sec, tl.Curve("A", "alpha").Duration())

	_, err = tl.RemoveKeyframe(ctx, "A", "alpha", 0)
	require.NoError(t, err)
}

func TestTimeline_Seek(t *testing.T) {
	tl := scenario(t)
	u, err := tl.Seek(context.Background(), 8*sec)
	require.NoError(t, err)
	require.NotNil(t, u.Batch)
	assert.Equal(t, 8*sec, tl.Position())
	assert.Equal(t, []ir.ElementID{"A"}, tl.Snapshot().Stack("v1"))

	_, err = tl.Seek(context.Background(), -sec)
	assert.True(t, ir.IsInvalidRange(err))
}

func TestTimeline_WindowAndNextChange(t *testing.T) {
	tl := scenario(t)
	s, w, err := tl.Window("v1", 4*sec)
	require.NoError(t, err)
	assert.Equal(t, []ir.ElementID{"A", "B"}, s.IDs())
	assert.Equal(t, ir.TimeRange{Start: 2 * sec, End: 6 * sec}, w)

	next, ok, err := tl.NextChange("v1", 6*sec)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 10*sec, next)

	segs, err := tl.Segments("v1", ir.Span(0, 10*sec))
	require.NoError(t, err)
	assert.Len(t, segs, 3)
}

func TestSubscribe_MirrorFollowsEdits(t *testing.T) {
	tl := scenario(t)
	sub := tl.Subscribe()
	mirror := graphsync.NewMirror()

	var wg sync.WaitGroup
	var pumpErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		pumpErr = graphsync.Pump(context.Background(), sub, mirror)
	}()

	ctx := context.Background()
	_, err := tl.SetPriority(ctx, "B", -1)
	require.NoError(t, err)
	_, err = tl.AddElement(ctx, "base", ElementSpec{ID: "C", Track: "v1", Kind: ir.KindOperation, Start: 3 * sec, Duration: sec})
	require.NoError(t, err)
	_, err = tl.RemoveElement(ctx, "A")
	require.NoError(t, err)
	_, err = tl.Seek(ctx, 3*sec)
	require.NoError(t, err)

	sub.Close()
	wg.Wait()
	require.NoError(t, pumpErr)
	assert.True(t, mirror.Matches(tl.Snapshot()))
	assert.Equal(t, tl.Snapshot().Version(), mirror.Version())
}

func TestSubscribe_DeliversEveryEdit(t *testing.T) {
	tl := newTimeline(t)
	sub := tl.Subscribe()
	ctx := context.Background()

	seed, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Empty(t, seed.Edit.Op)
	require.NotNil(t, seed.Batch)

	_, err = tl.AddLayer(ctx, "top", 1)
	require.NoError(t, err)
	u, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, ir.OpAddLayer, u.Edit.Op)
	assert.Nil(t, u.Batch, "layer edits without members leave the graph alone")
}

func TestClose(t *testing.T) {
	tl := newTimeline(t)
	sub := tl.Subscribe()
	tl.Close()

	_, err := tl.AddLayer(context.Background(), "x", 0)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = sub.Next(context.Background())
	require.NoError(t, err, "seed is still readable")
	_, err = sub.Next(context.Background())
	assert.Error(t, err)
}

// waitFor reads updates until one carries op.
func waitFor(t *testing.T, sub *Subscription, op ir.Op) Update {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		u, err := sub.Next(ctx)
		require.NoError(t, err)
		if u.Edit.Op == op {
			return u
		}
	}
}

func TestAssets_DeferredValidationDeactivates(t *testing.T) {
	var calls sync.Map
	provider := AssetFunc(func(_ context.Context, id string) (time.Duration, error) {
		calls.Store(id, true)
		return 4 * sec, nil
	})
	tl := newTimeline(t, WithAssetProvider(provider))
	sub := tl.Subscribe()
	ctx := context.Background()

	_, err := tl.AddElement(ctx, "base", ElementSpec{ID: "long", Track: "v1", Asset: "clip.mov", Duration: 10 * sec})
	require.NoError(t, err, "unknown assets are accepted")
	_, err = tl.AddElement(ctx, "base", ElementSpec{
		ID: "short", Track: "v1", Asset: "clip.mov", Start: 20 * sec, Duration: 2 * sec,
	})
	require.NoError(t, err)

	u := waitFor(t, sub, ir.OpAssetInfo)
	require.Len(t, u.Errors, 1)
	assert.True(t, ir.IsInvalidRange(u.Errors[0]))
	assert.Equal(t, ir.IRInt(4*sec), u.Edit.Args["duration"])

	long, err := tl.Element("long")
	require.NoError(t, err)
	assert.False(t, long.Active)
	short, err := tl.Element("short")
	require.NoError(t, err)
	assert.True(t, short.Active)
	assert.Empty(t, tl.Snapshot().Stack("v1"))

	_, ok := calls.Load("clip.mov")
	assert.True(t, ok)
}

func TestAssets_LookupFailureDeactivates(t *testing.T) {
	provider := AssetFunc(func(context.Context, string) (time.Duration, error) {
		return 0, errors.New("no such file")
	})
	tl := newTimeline(t, WithAssetProvider(provider))
	sub := tl.Subscribe()

	_, err := tl.AddElement(context.Background(), "base", ElementSpec{ID: "x", Track: "v1", Asset: "gone.mov", Duration: sec})
	require.NoError(t, err)

	u := waitFor(t, sub, ir.OpAssetInfo)
	require.Len(t, u.Errors, 1)
	assert.ErrorContains(t, u.Errors[0], "no such file")
	x, err := tl.Element("x")
	require.NoError(t, err)
	assert.False(t, x.Active)
}

func TestReplay_RebuildsSameState(t *testing.T) {
	tl := scenario(t)
	sub := tl.Subscribe()
	ctx := context.Background()

	_, err := tl.SetPriority(ctx, "B", -1)
	require.NoError(t, err)
	_, err = tl.Split(ctx, "obj-1", 7*sec)
	require.NoError(t, err)
	_, err = tl.SetKeyframe(ctx, "B", "strength", sec, 0.25, keyframe.ModeHold)
	require.NoError(t, err)
	_, err = tl.Seek(ctx, 8*sec)
	require.NoError(t, err)
	sub.Close()

	// The scenario edits happened before Subscribe; rebuild them too.
	fresh, err := New(Config{Playhead: 4 * sec})
	require.NoError(t, err)
	defer fresh.Close()
	_, err = fresh.AddTrack(ctx, "v1", ir.MediumVideo)
	require.NoError(t, err)
	_, err = fresh.AddLayer(ctx, "base", 0)
	require.NoError(t, err)
	_, err = fresh.Apply(ctx, ir.EditRecord{Op: ir.OpAddElement, Args: ir.IRObject{
		"id": ir.IRString("A"), "object": ir.IRString("obj-1"), "layer": ir.IRString("base"),
		"track": ir.IRString("v1"), "start": ir.IRInt(0), "duration": ir.IRDuration(10 * sec),
	}})
	require.NoError(t, err)
	_, err = fresh.Apply(ctx, ir.EditRecord{Op: ir.OpAddElement, Args: ir.IRObject{
		"id": ir.IRString("B"), "object": ir.IRString("obj-2"), "layer": ir.IRString("base"),
		"track": ir.IRString("v1"), "kind": ir.IRString("operation"), "effect": ir.IRString("agingtv"),
		"start": ir.IRDuration(2 * sec), "duration": ir.IRDuration(4 * sec),
	}})
	require.NoError(t, err)

	for {
		u, err := sub.Next(ctx)
		if err != nil {
			break
		}
		if u.Edit.Op == "" {
			continue
		}
		_, err = fresh.Apply(ctx, u.Edit)
		require.NoError(t, err, "replaying %s", u.Edit.Op)
	}

	assert.Equal(t, tl.Snapshot().Digest(), fresh.Snapshot().Digest())
	assert.Equal(t, tl.Elements(), fresh.Elements())
	assert.Equal(t, tl.LastSeq(), fresh.LastSeq())
	assert.Equal(t, tl.Curve("B", "strength").Points(), fresh.Curve("B", "strength").Points())
}
