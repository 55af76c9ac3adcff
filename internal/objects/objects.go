// Package objects coordinates timeline objects: groups of track elements,
// possibly on several tracks, that move, trim and split together.
//
// Every coordinator edit is atomic. Members are validated up front and the
// edit is applied through a transaction that can restore the element store
// and the object table if a later check fails, so a rejected edit leaves no
// trace. A successful edit returns the element changes the resolver needs to
// recompute only the affected time ranges.
package objects

import (
	"slices"
	"strings"

	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/keyframe"
	"github.com/roach88/stackline/internal/layers"
	"github.com/roach88/stackline/internal/resolver"
	"github.com/roach88/stackline/internal/store"
)

// Object is a timeline object. Members keeps placement order.
type Object struct {
	ID      ir.ObjectID    `json:"id"`
	Layer   ir.LayerID     `json:"layer"`
	Members []ir.ElementID `json:"members"`
}

func (o *Object) clone() *Object {
	return &Object{ID: o.ID, Layer: o.Layer, Members: slices.Clone(o.Members)}
}

// Member describes an element to place inside an object. Without Explicit
// the element's Priority is replaced by the layer default.
type Member struct {
	Element  ir.TrackElement
	Explicit bool
}

// Result is what a successful edit changed.
type Result struct {
	Changes  []resolver.Change
	Warnings []ir.Warning
}

// Coordinator owns the object table and applies structural edits to the
// element store. It is driven by the single edit path.
type Coordinator struct {
	store     *store.Store
	layers    *layers.Manager
	curves    *keyframe.Registry
	objects   map[ir.ObjectID]*Object
	byElement map[ir.ElementID]ir.ObjectID
}

// New creates a coordinator over the given store, layer manager and curve
// registry.
func New(s *store.Store, lm *layers.Manager, curves *keyframe.Registry) *Coordinator {
	return &Coordinator{
		store:     s,
		layers:    lm,
		curves:    curves,
		objects:   make(map[ir.ObjectID]*Object),
		byElement: make(map[ir.ElementID]ir.ObjectID),
	}
}

// Get returns a copy of an object.
func (c *Coordinator) Get(id ir.ObjectID) (Object, error) {
	o, ok := c.objects[id]
	if !ok {
		return Object{}, ir.NewNotFound("object", string(id))
	}
	return *o.clone(), nil
}

// Objects returns every object sorted by id.
func (c *Coordinator) Objects() []Object {
	out := make([]Object, 0, len(c.objects))
	for _, o := range c.objects {
		out = append(out, *o.clone())
	}
	slices.SortFunc(out, func(a, b Object) int { return compareIDs(a.ID, b.ID) })
	return out
}

// ObjectsOn returns the objects on a layer sorted by id.
func (c *Coordinator) ObjectsOn(layer ir.LayerID) []Object {
	var out []Object
	for _, o := range c.Objects() {
		if o.Layer == layer {
			out = append(out, o)
		}
	}
	return out
}

// ObjectOf returns the object owning an element.
func (c *Coordinator) ObjectOf(el ir.ElementID) (ir.ObjectID, error) {
	id, ok := c.byElement[el]
	if !ok {
		return "", ir.NewNotFound("element", string(el))
	}
	return id, nil
}

// Span returns the union of an object's member spans.
func (c *Coordinator) Span(id ir.ObjectID) (ir.TimeRange, error) {
	members, err := c.members(id)
	if err != nil {
		return ir.TimeRange{}, err
	}
	return spanOf(members), nil
}

// Media returns the distinct media of an object's members in name order.
// Ungroup produces one object per entry.
func (c *Coordinator) Media(id ir.ObjectID) ([]ir.Medium, error) {
	members, err := c.members(id)
	if err != nil {
		return nil, err
	}
	groups, err := c.byMedium(members)
	if err != nil {
		return nil, err
	}
	out := make([]ir.Medium, len(groups))
	for i, g := range groups {
		out[i] = g.medium
	}
	return out, nil
}

func (c *Coordinator) members(id ir.ObjectID) ([]ir.TrackElement, error) {
	o, ok := c.objects[id]
	if !ok {
		return nil, ir.NewNotFound("object", string(id))
	}
	out := make([]ir.TrackElement, 0, len(o.Members))
	for _, el := range o.Members {
		e, err := c.store.Get(el)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func spanOf(members []ir.TrackElement) ir.TimeRange {
	if len(members) == 0 {
		return ir.TimeRange{}
	}
	span := members[0].Range()
	for _, e := range members[1:] {
		span.Start = min(span.Start, e.Start)
		span.End = max(span.End, e.End())
	}
	return span
}

type mediumGroup struct {
	medium  ir.Medium
	members []ir.ElementID
}

func (c *Coordinator) byMedium(members []ir.TrackElement) ([]mediumGroup, error) {
	var groups []mediumGroup
	for _, e := range members {
		tr, err := c.store.Track(e.TrackID)
		if err != nil {
			return nil, err
		}
		i := slices.IndexFunc(groups, func(g mediumGroup) bool { return g.medium == tr.Medium })
		if i < 0 {
			groups = append(groups, mediumGroup{medium: tr.Medium})
			i = len(groups) - 1
		}
		groups[i].members = append(groups[i].members, e.ID)
	}
	slices.SortFunc(groups, func(a, b mediumGroup) int { return compareIDs(a.medium, b.medium) })
	return groups, nil
}

func compareIDs[S ~string](a, b S) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// sourceConflicts collects PriorityConflict warnings for the Source
// elements among changed.
func (c *Coordinator) sourceConflicts(changed []ir.ElementID) []ir.Warning {
	var out []ir.Warning
	seen := make(map[string]bool)
	for _, id := range changed {
		for _, w := range c.store.Conflicts(id) {
			ids := slices.Sorted(slices.Values(w.IDs))
			key := strings.Join(ids, "\x00")
			if !seen[key] {
				seen[key] = true
				out = append(out, w)
			}
		}
	}
	return out
}

// conflictPairs returns the unordered Source pairs in conflict involving any
// of ids.
func (c *Coordinator) conflictPairs(ids []ir.ElementID) map[[2]string]bool {
	out := make(map[[2]string]bool)
	for _, id := range ids {
		for _, w := range c.store.Conflicts(id) {
			for _, other := range w.IDs[1:] {
				pair := [2]string{string(id), other}
				if pair[0] > pair[1] {
					pair[0], pair[1] = pair[1], pair[0]
				}
				out[pair] = true
			}
		}
	}
	return out
}

func changedIDs(changes []resolver.Change) []ir.ElementID {
	var out []ir.ElementID
	for _, ch := range changes {
		if ch.After != nil {
			out = append(out, ch.After.ID)
		}
	}
	return out
}
