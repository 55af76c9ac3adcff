package engine

import (
	"context"
	"time"

	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/keyframe"
)

// The typed edit methods below build an ir.EditRecord and run it through
// Apply, so they are journaled and replayed like any other edit.

// ElementSpec describes an element to place. An empty ID is generated. A
// nil Priority takes the layer default.
type ElementSpec struct {
	ID       ir.ElementID
	Track    ir.TrackID
	Kind     ir.Kind
	Effect   string
	Asset    string
	Start    time.Duration
	Duration time.Duration
	InPoint  time.Duration
	Priority *int

	// Expandable makes the element fill the track's gaps.
	Expandable bool
}

func (s ElementSpec) args() ir.IRObject {
	obj := ir.IRObject{
		"track":    ir.IRString(s.Track),
		"start":    ir.IRDuration(s.Start),
		"duration": ir.IRDuration(s.Duration),
	}
	if s.ID != "" {
		obj["id"] = ir.IRString(s.ID)
	}
	if s.Kind != 0 {
		obj["kind"] = ir.IRString(s.Kind.String())
	}
	if s.Effect != "" {
		obj["effect"] = ir.IRString(s.Effect)
	}
	if s.Asset != "" {
		obj["asset"] = ir.IRString(s.Asset)
	}
	if s.InPoint != 0 {
		obj["in_point"] = ir.IRDuration(s.InPoint)
	}
	if s.Priority != nil {
		obj["priority"] = ir.IRInt(*s.Priority)
	}
	if s.Expandable {
		obj["expandable"] = ir.IRBool(true)
	}
	return obj
}

func (t *Timeline) edit(ctx context.Context, op ir.Op, args ir.IRObject) (Update, error) {
	return t.Apply(ctx, ir.EditRecord{Op: op, Args: args})
}

// AddTrack registers a track.
func (t *Timeline) AddTrack(ctx context.Context, id ir.TrackID, medium ir.Medium) (Update, error) {
	return t.edit(ctx, ir.OpAddTrack, ir.IRObject{"id": ir.IRString(id), "medium": ir.IRString(medium)})
}

// AddLayer inserts a layer at rank, shifting the layers at and above it.
func (t *Timeline) AddLayer(ctx context.Context, id ir.LayerID, rank int) (Update, error) {
	return t.edit(ctx, ir.OpAddLayer, ir.IRObject{"id": ir.IRString(id), "rank": ir.IRInt(rank)})
}

// RemoveLayer deletes a layer and every object on it.
func (t *Timeline) RemoveLayer(ctx context.Context, id ir.LayerID) (Update, error) {
	return t.edit(ctx, ir.OpRemoveLayer, ir.IRObject{"id": ir.IRString(id)})
}

// MoveLayer moves a layer to rank.
func (t *Timeline) MoveLayer(ctx context.Context, id ir.LayerID, rank int) (Update, error) {
	return t.edit(ctx, ir.OpMoveLayer, ir.IRObject{"id": ir.IRString(id), "rank": ir.IRInt(rank)})
}

// AddElement places an element in a new single-member object on layer.
func (t *Timeline) AddElement(ctx context.Context, layer ir.LayerID, spec ElementSpec) (Update, error) {
	args := spec.args()
	args["layer"] = ir.IRString(layer)
	return t.edit(ctx, ir.OpAddElement, args)
}

// AddMember places an element into an existing object.
func (t *Timeline) AddMember(ctx context.Context, object ir.ObjectID, spec ElementSpec) (Update, error) {
	args := spec.args()
	args["object"] = ir.IRString(object)
	return t.edit(ctx, ir.OpAddElement, args)
}

// CreateObject places a multi-member object. An empty id is generated.
func (t *Timeline) CreateObject(ctx context.Context, id ir.ObjectID, layer ir.LayerID, members ...ElementSpec) (Update, error) {
	arr := make(ir.IRArray, len(members))
	for i, m := range members {
		arr[i] = m.args()
	}
	args := ir.IRObject{"layer": ir.IRString(layer), "members": arr}
	if id != "" {
		args["id"] = ir.IRString(id)
	}
	return t.edit(ctx, ir.OpCreateObject, args)
}

// RemoveElement deletes one element.
func (t *Timeline) RemoveElement(ctx context.Context, el ir.ElementID) (Update, error) {
	return t.edit(ctx, ir.OpRemove, ir.IRObject{"element": ir.IRString(el)})
}

// MoveElement changes one element's start.
func (t *Timeline) MoveElement(ctx context.Context, el ir.ElementID, start time.Duration) (Update, error) {
	return t.edit(ctx, ir.OpMove, ir.IRObject{"element": ir.IRString(el), "start": ir.IRDuration(start)})
}

// TrimElement changes one element's start, duration and in-point.
func (t *Timeline) TrimElement(ctx context.Context, el ir.ElementID, start, duration, inPoint time.Duration) (Update, error) {
	return t.edit(ctx, ir.OpTrim, ir.IRObject{
		"element":  ir.IRString(el),
		"start":    ir.IRDuration(start),
		"duration": ir.IRDuration(duration),
		"in_point": ir.IRDuration(inPoint),
	})
}

// SetPriority reprioritizes one element.
func (t *Timeline) SetPriority(ctx context.Context, el ir.ElementID, priority int) (Update, error) {
	return t.edit(ctx, ir.OpSetPriority, ir.IRObject{"element": ir.IRString(el), "priority": ir.IRInt(priority)})
}

// SetActive enables or disables one element.
func (t *Timeline) SetActive(ctx context.Context, el ir.ElementID, active bool) (Update, error) {
	return t.edit(ctx, ir.OpSetActive, ir.IRObject{"element": ir.IRString(el), "active": ir.IRBool(active)})
}

// RemoveObject deletes an object with all members.
func (t *Timeline) RemoveObject(ctx context.Context, id ir.ObjectID) (Update, error) {
	return t.edit(ctx, ir.OpRemoveObject, ir.IRObject{"object": ir.IRString(id)})
}

// MoveObject moves an object so that it starts at start.
func (t *Timeline) MoveObject(ctx context.Context, id ir.ObjectID, start time.Duration) (Update, error) {
	return t.edit(ctx, ir.OpMoveObject, ir.IRObject{"object": ir.IRString(id), "start": ir.IRDuration(start)})
}

// TrimObject changes an object's span.
func (t *Timeline) TrimObject(ctx context.Context, id ir.ObjectID, start, duration time.Duration) (Update, error) {
	return t.edit(ctx, ir.OpTrimObject, ir.IRObject{
		"object":   ir.IRString(id),
		"start":    ir.IRDuration(start),
		"duration": ir.IRDuration(duration),
	})
}

// Split cuts an object at at. The new object's id is in the returned
// update's Edit.Args["new_object"].
func (t *Timeline) Split(ctx context.Context, id ir.ObjectID, at time.Duration) (Update, error) {
	return t.edit(ctx, ir.OpSplit, ir.IRObject{"object": ir.IRString(id), "at": ir.IRDuration(at)})
}

// Group merges objects into a new one.
func (t *Timeline) Group(ctx context.Context, ids ...ir.ObjectID) (Update, error) {
	return t.edit(ctx, ir.OpGroup, ir.IRObject{"objects": ir.StringArray(ids)})
}

// Ungroup splits an object into one object per medium.
func (t *Timeline) Ungroup(ctx context.Context, id ir.ObjectID) (Update, error) {
	return t.edit(ctx, ir.OpUngroup, ir.IRObject{"object": ir.IRString(id)})
}

// MoveToLayer moves an object to another layer.
func (t *Timeline) MoveToLayer(ctx context.Context, id ir.ObjectID, layer ir.LayerID) (Update, error) {
	return t.edit(ctx, ir.OpMoveToLayer, ir.IRObject{"object": ir.IRString(id), "layer": ir.IRString(layer)})
}

// SetKeyframe sets a control point of an element property.
func (t *Timeline) SetKeyframe(ctx context.Context, el ir.ElementID, property string, at time.Duration, value float64, mode keyframe.Mode) (Update, error) {
	if mode == 0 {
		mode = keyframe.ModeLinear
	}
	return t.edit(ctx, ir.OpSetKeyframe, ir.IRObject{
		"element":  ir.IRString(el),
		"property": ir.IRString(property),
		"at":       ir.IRDuration(at),
		"value":    ir.IRFloat(value),
		"mode":     ir.IRString(mode.String()),
	})
}

// RemoveKeyframe removes the control point at at.
func (t *Timeline) RemoveKeyframe(ctx context.Context, el ir.ElementID, property string, at time.Duration) (Update, error) {
	return t.edit(ctx, ir.OpRemoveKey, ir.IRObject{
		"element":  ir.IRString(el),
		"property": ir.IRString(property),
		"at":       ir.IRDuration(at),
	})
}

// Seek moves the playhead and re-resolves every track.
func (t *Timeline) Seek(ctx context.Context, position time.Duration) (Update, error) {
	return t.edit(ctx, ir.OpSeek, ir.IRObject{"position": ir.IRDuration(position)})
}
