package objects

import (
	"log/slog"
	"time"

	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/keyframe"
)

// Create places a new object on a layer together with its members. Members
// get their object id assigned and, unless Explicit, the layer's default
// priority: the band base for Sources and base+1, base+2, ... for
// Operations in placement order.
func (c *Coordinator) Create(id ir.ObjectID, layer ir.LayerID, members []Member) (Result, error) {
	if id == "" {
		return Result{}, ir.NewInvalidRange("", "object id is required")
	}
	if _, ok := c.objects[id]; ok {
		return Result{}, ir.NewInvalidRange(string(id), "duplicate object")
	}
	if len(members) == 0 {
		return Result{}, ir.NewInvalidRange(string(id), "object needs at least one member")
	}
	if _, err := c.layers.Layer(layer); err != nil {
		return Result{}, err
	}

	placed, err := c.place(&Object{ID: id, Layer: layer}, members)
	if err != nil {
		return Result{}, err
	}

	tx := c.begin()
	obj := &Object{ID: id, Layer: layer}
	for _, e := range placed {
		if _, err := tx.add(e); err != nil {
			tx.rollback()
			return Result{}, err
		}
		obj.Members = append(obj.Members, e.ID)
	}
	tx.putObject(obj)

	slog.Debug("object created", "object_id", id, "layer_id", layer, "members", len(placed))
	return tx.commit(c.sourceConflicts(obj.Members)), nil
}

// AddMember places one more element into an existing object.
func (c *Coordinator) AddMember(id ir.ObjectID, m Member) (Result, error) {
	o, ok := c.objects[id]
	if !ok {
		return Result{}, ir.NewNotFound("object", string(id))
	}
	placed, err := c.place(o, []Member{m})
	if err != nil {
		return Result{}, err
	}

	tx := c.begin()
	if _, err := tx.add(placed[0]); err != nil {
		tx.rollback()
		return Result{}, err
	}
	next := o.clone()
	next.Members = append(next.Members, placed[0].ID)
	tx.putObject(next)
	return tx.commit(c.sourceConflicts([]ir.ElementID{placed[0].ID})), nil
}

// place assigns object ids and default priorities and validates every
// member against the store before anything is applied.
func (c *Coordinator) place(o *Object, members []Member) ([]ir.TrackElement, error) {
	band, err := c.layers.Band(o.Layer)
	if err != nil {
		return nil, err
	}
	// ops is the next free Operation slot above the highest one in use, so
	// removing an Operation never hands its neighbour's priority out again.
	ops := 0
	taken := func(e ir.TrackElement) {
		if e.Kind == ir.KindOperation && e.Priority-band.Base > ops {
			ops = e.Priority - band.Base
		}
	}
	for _, el := range o.Members {
		if e, err := c.store.Get(el); err == nil {
			taken(e)
		}
	}

	seen := make(map[ir.ElementID]bool)
	out := make([]ir.TrackElement, 0, len(members))
	for _, m := range members {
		e := m.Element
		if e.ID == "" {
			return nil, ir.NewInvalidRange(string(o.ID), "member id is required")
		}
		if seen[e.ID] || c.store.Has(e.ID) {
			return nil, ir.NewInvalidRange(string(e.ID), "duplicate element id")
		}
		seen[e.ID] = true
		e.ObjectID = o.ID
		e.Active = true
		e.Seq = 0
		if !m.Explicit {
			p, err := c.layers.DefaultPriority(o.Layer, e.Kind, ops)
			if err != nil {
				return nil, err
			}
			e.Priority = p
		}
		taken(e)
		if err := c.store.Validate(e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Remove deletes an object and all of its members.
func (c *Coordinator) Remove(id ir.ObjectID) (Result, error) {
	o, ok := c.objects[id]
	if !ok {
		return Result{}, ir.NewNotFound("object", string(id))
	}
	tx := c.begin()
	for _, el := range o.Members {
		if _, err := tx.remove(el); err != nil {
			tx.rollback()
			return Result{}, err
		}
	}
	tx.deleteObject(id)
	return tx.commit(nil), nil
}

// RemoveElement deletes one element. An object left without members is
// deleted as well.
func (c *Coordinator) RemoveElement(el ir.ElementID) (Result, error) {
	id, err := c.ObjectOf(el)
	if err != nil {
		return Result{}, err
	}
	o := c.objects[id]
	tx := c.begin()
	if _, err := tx.remove(el); err != nil {
		tx.rollback()
		return Result{}, err
	}
	next := o.clone()
	next.Members = removeID(next.Members, el)
	if len(next.Members) == 0 {
		tx.deleteObject(id)
	} else {
		tx.putObject(next)
	}
	return tx.commit(nil), nil
}

func removeID(ids []ir.ElementID, el ir.ElementID) []ir.ElementID {
	out := ids[:0]
	for _, id := range ids {
		if id != el {
			out = append(out, id)
		}
	}
	return out
}

// Move shifts every member by the same delta so that the object's start
// (its earliest member start) becomes start.
func (c *Coordinator) Move(id ir.ObjectID, start time.Duration) (Result, error) {
	members, err := c.members(id)
	if err != nil {
		return Result{}, err
	}
	delta := start - spanOf(members).Start

	next := make([]ir.TrackElement, len(members))
	for i, e := range members {
		e.Start += delta
		if err := c.store.Validate(e); err != nil {
			return Result{}, err
		}
		next[i] = e
	}
	return c.applyUpdates(next, false)
}

// Trim changes an object's span to [start, start+duration). Members aligned
// with the old start follow the new start, advancing or retarding their
// in-point by the same amount; members aligned with the old end follow the
// new end; interior members are clipped to the new span.
func (c *Coordinator) Trim(id ir.ObjectID, start, duration time.Duration) (Result, error) {
	members, err := c.members(id)
	if err != nil {
		return Result{}, err
	}
	if duration <= 0 {
		return Result{}, ir.NewInvalidRange(string(id), "duration %s must be positive", duration)
	}
	old := spanOf(members)
	span := ir.Span(start, duration)

	next := make([]ir.TrackElement, len(members))
	for i, e := range members {
		s, end, in := e.Start, e.End(), e.InPoint
		if e.Start == old.Start {
			s = span.Start
		}
		if e.End() == old.End {
			end = span.End
		}
		s = max(s, span.Start)
		end = min(end, span.End)
		in += s - e.Start

		if end <= s {
			return Result{}, ir.NewInvalidRange(string(e.ID),
				"trim to %s leaves member with no duration", span)
		}
		if in < 0 {
			return Result{}, ir.NewInvalidRange(string(e.ID),
				"trim to %s moves in-point before the media start", span)
		}
		trimmed, err := c.store.Trimmed(e.ID, s, end-s, in)
		if err != nil {
			return Result{}, err
		}
		if err := c.store.Validate(trimmed); err != nil {
			return Result{}, err
		}
		next[i] = trimmed
	}
	return c.applyUpdates(next, false)
}

// Split cuts an object at t, which must lie strictly inside every member.
// The originals are truncated to end at t and a new object on the same
// layer receives a copy of each member covering the rest, with the in-point
// advanced by the cut offset. newIDs names the copies in member order.
// Keyframe curves are split with their elements.
func (c *Coordinator) Split(id ir.ObjectID, t time.Duration, newObject ir.ObjectID, newIDs []ir.ElementID) (Result, error) {
	o, ok := c.objects[id]
	if !ok {
		return Result{}, ir.NewNotFound("object", string(id))
	}
	members, err := c.members(id)
	if err != nil {
		return Result{}, err
	}
	for _, e := range members {
		if e.Expandable {
			return Result{}, ir.NewInvalidSplitPoint(string(id),
				"member %s is expandable and has no split point", e.ID)
		}
		if t <= e.Start || t >= e.End() {
			return Result{}, ir.NewInvalidSplitPoint(string(id),
				"split at %s is not strictly inside member %s %s", t, e.ID, e.Range())
		}
	}
	if newObject == "" || c.objects[newObject] != nil {
		return Result{}, ir.NewInvalidRange(string(newObject), "split needs a fresh object id")
	}
	if len(newIDs) != len(members) {
		return Result{}, ir.NewInvalidRange(string(id),
			"split needs %d new element ids, got %d", len(members), len(newIDs))
	}
	seen := make(map[ir.ElementID]bool)
	for _, nid := range newIDs {
		if nid == "" || seen[nid] || c.store.Has(nid) {
			return Result{}, ir.NewInvalidRange(string(nid), "split needs fresh element ids")
		}
		seen[nid] = true
	}

	tx := c.begin()
	right := &Object{ID: newObject, Layer: o.Layer}
	for i, e := range members {
		offset := t - e.Start

		tail := e
		tail.ID = newIDs[i]
		tail.ObjectID = newObject
		tail.Start = t
		tail.Duration = e.End() - t
		tail.InPoint = e.InPoint + offset
		tail.Seq = 0

		head := e
		head.Duration = offset

		if _, err := tx.update(head); err != nil {
			tx.rollback()
			return Result{}, err
		}
		if _, err := tx.add(tail); err != nil {
			tx.rollback()
			return Result{}, err
		}
		right.Members = append(right.Members, tail.ID)

		for prop, curve := range c.curves.ForElement(e.ID) {
			l, r := curve.Split(offset)
			tx.setCurve(keyframe.Key{Element: e.ID, Property: prop}, l)
			tx.setCurve(keyframe.Key{Element: tail.ID, Property: prop}, r)
		}
	}
	tx.putObject(right)

	slog.Debug("object split", "object_id", id, "new_object_id", newObject, "at", t)
	return tx.commit(nil), nil
}

// Group merges objects into a new object on the layer of the first one.
// Element placement and priorities are unchanged.
func (c *Coordinator) Group(ids []ir.ObjectID, newObject ir.ObjectID) (Result, error) {
	if len(ids) == 0 {
		return Result{}, ir.NewInvalidRange(string(newObject), "group needs at least one object")
	}
	if newObject == "" || c.objects[newObject] != nil {
		return Result{}, ir.NewInvalidRange(string(newObject), "group needs a fresh object id")
	}
	seen := make(map[ir.ObjectID]bool)
	for _, id := range ids {
		if _, ok := c.objects[id]; !ok {
			return Result{}, ir.NewNotFound("object", string(id))
		}
		if seen[id] {
			return Result{}, ir.NewInvalidRange(string(id), "object listed twice")
		}
		seen[id] = true
	}

	tx := c.begin()
	merged := &Object{ID: newObject, Layer: c.objects[ids[0]].Layer}
	for _, id := range ids {
		for _, el := range c.objects[id].Members {
			if err := tx.setObject(el, newObject); err != nil {
				tx.rollback()
				return Result{}, err
			}
			merged.Members = append(merged.Members, el)
		}
		tx.deleteObject(id)
	}
	tx.putObject(merged)
	return tx.commit(nil), nil
}

// Ungroup splits an object into one object per medium, ordered as Media
// reports them. The first medium keeps the original object; the others go
// to newIDs in order.
func (c *Coordinator) Ungroup(id ir.ObjectID, newIDs []ir.ObjectID) (Result, error) {
	o, ok := c.objects[id]
	if !ok {
		return Result{}, ir.NewNotFound("object", string(id))
	}
	members, err := c.members(id)
	if err != nil {
		return Result{}, err
	}
	groups, err := c.byMedium(members)
	if err != nil {
		return Result{}, err
	}
	if len(newIDs) != len(groups)-1 {
		return Result{}, ir.NewInvalidRange(string(id),
			"ungroup needs %d new object ids, got %d", len(groups)-1, len(newIDs))
	}
	seen := make(map[ir.ObjectID]bool)
	for _, nid := range newIDs {
		if nid == "" || c.objects[nid] != nil {
			return Result{}, ir.NewInvalidRange(string(nid), "ungroup needs fresh object ids")
		}
		if seen[nid] {
			return Result{}, ir.NewInvalidRange(string(nid), "object id listed twice")
		}
		seen[nid] = true
	}

	tx := c.begin()
	for i, g := range groups {
		target := id
		if i > 0 {
			target = newIDs[i-1]
		}
		for _, el := range g.members {
			if err := tx.setObject(el, target); err != nil {
				tx.rollback()
				return Result{}, err
			}
		}
		tx.putObject(&Object{ID: target, Layer: o.Layer, Members: g.members})
	}
	return tx.commit(nil), nil
}

// MoveToLayer moves an object to another layer, rebanding every member's
// priority. The move is rejected with PriorityConflict when a member's
// offset does not fit the target band or when it would create a new
// Source conflict.
func (c *Coordinator) MoveToLayer(id ir.ObjectID, layer ir.LayerID) (Result, error) {
	o, ok := c.objects[id]
	if !ok {
		return Result{}, ir.NewNotFound("object", string(id))
	}
	from, err := c.layers.Band(o.Layer)
	if err != nil {
		return Result{}, err
	}
	to, err := c.layers.Band(layer)
	if err != nil {
		return Result{}, err
	}
	members, err := c.members(id)
	if err != nil {
		return Result{}, err
	}
	next, err := rebandMembers(members, from, to)
	if err != nil {
		return Result{}, err
	}

	tx := c.begin()
	warnings, err := c.applyIn(tx, next, true)
	if err != nil {
		return Result{}, err
	}
	moved := o.clone()
	moved.Layer = layer
	tx.putObject(moved)
	return tx.commit(warnings), nil
}

// applyUpdates applies a validated batch of element updates atomically.
// With strict set, any Source conflict that did not exist before rolls the
// batch back; otherwise conflicts become warnings.
func (c *Coordinator) applyUpdates(next []ir.TrackElement, strict bool) (Result, error) {
	tx := c.begin()
	warnings, err := c.applyIn(tx, next, strict)
	if err != nil {
		return Result{}, err
	}
	return tx.commit(warnings), nil
}

func (c *Coordinator) applyIn(tx *txn, next []ir.TrackElement, strict bool) ([]ir.Warning, error) {
	ids := make([]ir.ElementID, len(next))
	for i, e := range next {
		ids[i] = e.ID
	}
	var before map[[2]string]bool
	if strict {
		before = c.conflictPairs(ids)
	}
	for _, e := range next {
		if _, err := tx.update(e); err != nil {
			tx.rollback()
			return nil, err
		}
	}
	if strict {
		for pair := range c.conflictPairs(ids) {
			if !before[pair] {
				tx.rollback()
				return nil, ir.NewPriorityConflict(pair[0],
					"reprioritization makes sources %s and %s share a priority", pair[0], pair[1])
			}
		}
	}
	return c.sourceConflicts(changedIDs(tx.changes)), nil
}

// MoveElement, TrimElement, SetPriority and SetActive edit a single element
// without touching the rest of its object.

// MoveElement changes one element's start.
func (c *Coordinator) MoveElement(el ir.ElementID, start time.Duration) (Result, error) {
	e, err := c.store.Get(el)
	if err != nil {
		return Result{}, err
	}
	e.Start = start
	return c.applyUpdates([]ir.TrackElement{e}, false)
}

// TrimElement changes one element's start, duration and in-point.
func (c *Coordinator) TrimElement(el ir.ElementID, start, duration, inPoint time.Duration) (Result, error) {
	tx := c.begin()
	if _, err := tx.trim(el, start, duration, inPoint); err != nil {
		tx.rollback()
		return Result{}, err
	}
	return tx.commit(c.sourceConflicts([]ir.ElementID{el})), nil
}

// SetPriority reprioritizes one element. Equal-priority Source overlaps
// are accepted with a warning.
func (c *Coordinator) SetPriority(el ir.ElementID, priority int) (Result, error) {
	e, err := c.store.Get(el)
	if err != nil {
		return Result{}, err
	}
	e.Priority = priority
	return c.applyUpdates([]ir.TrackElement{e}, false)
}

// SetActive enables or disables one element.
func (c *Coordinator) SetActive(el ir.ElementID, active bool) (Result, error) {
	e, err := c.store.Get(el)
	if err != nil {
		return Result{}, err
	}
	e.Active = active
	return c.applyUpdates([]ir.TrackElement{e}, false)
}
