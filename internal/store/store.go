package store

import (
	"cmp"
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/roach88/stackline/internal/ir"
)

// Store is the in-memory element store. The zero value is not usable; call
// New.
type Store struct {
	tracks     map[ir.TrackID]*trackIndex
	trackOrder []ir.TrackID
	elements   map[ir.ElementID]*ir.TrackElement

	// assets maps asset id to its known duration. Missing entries mean the
	// metadata has not arrived yet.
	assets map[string]time.Duration

	lastSeq int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		tracks:   make(map[ir.TrackID]*trackIndex),
		elements: make(map[ir.ElementID]*ir.TrackElement),
		assets:   make(map[string]time.Duration),
	}
}

// AddTrack registers a track. Track ids are unique.
func (s *Store) AddTrack(t ir.Track) error {
	if t.ID == "" {
		return ir.NewInvalidRange("", "track id is required")
	}
	if _, err := ir.ParseMedium(string(t.Medium)); err != nil {
		return ir.NewInvalidRange(string(t.ID), "%v", err)
	}
	if _, ok := s.tracks[t.ID]; ok {
		return ir.NewInvalidRange(string(t.ID), "duplicate track")
	}
	s.tracks[t.ID] = newTrackIndex(t)
	s.trackOrder = append(s.trackOrder, t.ID)
	return nil
}

// Track returns a registered track.
func (s *Store) Track(id ir.TrackID) (ir.Track, error) {
	x, ok := s.tracks[id]
	if !ok {
		return ir.Track{}, ir.NewNotFound("track", string(id))
	}
	return x.track, nil
}

// Tracks returns every track in registration order.
func (s *Store) Tracks() []ir.Track {
	out := make([]ir.Track, len(s.trackOrder))
	for i, id := range s.trackOrder {
		out[i] = s.tracks[id].track
	}
	return out
}

// Len returns the number of elements in the store.
func (s *Store) Len() int {
	return len(s.elements)
}

// LastSeq returns the highest sequence number handed out so far.
func (s *Store) LastSeq() int64 {
	return s.lastSeq
}

// SetAssetDuration records the duration of an asset once its metadata is
// known. Later Add and Trim calls validate in-points against it.
func (s *Store) SetAssetDuration(assetID string, d time.Duration) {
	s.assets[assetID] = d
}

// AssetDuration returns the known duration of an asset.
func (s *Store) AssetDuration(assetID string) (time.Duration, bool) {
	d, ok := s.assets[assetID]
	return d, ok
}

// Validate checks an element's placement without storing it. It is used by
// Add and by callers that validate a batch before applying any of it.
func (s *Store) Validate(e ir.TrackElement) error {
	id := string(e.ID)
	switch {
	case e.Duration <= 0:
		return ir.NewInvalidRange(id, "duration %s must be positive", e.Duration)
	case e.Start < 0:
		return ir.NewInvalidRange(id, "start %s must not be negative", e.Start)
	case e.InPoint < 0:
		return ir.NewInvalidRange(id, "in-point %s must not be negative", e.InPoint)
	case e.Start > math.MaxInt64-e.Duration:
		return ir.NewInvalidRange(id, "start %s plus duration %s overflows", e.Start, e.Duration)
	case e.InPoint > math.MaxInt64-e.Duration:
		return ir.NewInvalidRange(id, "in-point %s plus duration %s overflows", e.InPoint, e.Duration)
	case e.Kind != ir.KindSource && e.Kind != ir.KindOperation:
		return ir.NewInvalidRange(id, "unknown element kind %d", int(e.Kind))
	}
	if _, ok := s.tracks[e.TrackID]; !ok {
		return ir.NewNotFound("track", string(e.TrackID))
	}
	// Inactive elements are not checked against the asset: deactivation is
	// how elements that outgrew their media are parked.
	if e.AssetID != "" && e.Active {
		if avail, ok := s.assets[e.AssetID]; ok && e.InPoint+e.Duration > avail {
			return ir.NewInvalidRange(id, "in-point %s plus duration %s exceeds asset %s length %s",
				e.InPoint, e.Duration, e.AssetID, avail)
		}
	}
	return nil
}

// Add inserts a new element. A zero Seq is replaced by the next sequence
// number; a non-zero Seq (replay, clone) is kept.
func (s *Store) Add(e ir.TrackElement) (ir.TrackElement, error) {
	if e.ID == "" {
		return ir.TrackElement{}, ir.NewInvalidRange("", "element id is required")
	}
	if _, ok := s.elements[e.ID]; ok {
		return ir.TrackElement{}, ir.NewInvalidRange(string(e.ID), "duplicate element id")
	}
	if err := s.Validate(e); err != nil {
		return ir.TrackElement{}, err
	}
	if e.Seq == 0 {
		s.lastSeq++
		e.Seq = s.lastSeq
	} else if e.Seq > s.lastSeq {
		s.lastSeq = e.Seq
	}

	stored := e
	s.elements[e.ID] = &stored
	s.tracks[e.TrackID].insert(&stored)
	return stored, nil
}

// Remove deletes an element and returns its last state.
func (s *Store) Remove(id ir.ElementID) (ir.TrackElement, error) {
	e, ok := s.elements[id]
	if !ok {
		return ir.TrackElement{}, ir.NewNotFound("element", string(id))
	}
	s.tracks[e.TrackID].remove(e)
	delete(s.elements, id)
	return *e, nil
}

// Get returns a copy of an element.
func (s *Store) Get(id ir.ElementID) (ir.TrackElement, error) {
	e, ok := s.elements[id]
	if !ok {
		return ir.TrackElement{}, ir.NewNotFound("element", string(id))
	}
	return *e, nil
}

// Has reports whether an element exists.
func (s *Store) Has(id ir.ElementID) bool {
	_, ok := s.elements[id]
	return ok
}

// Update replaces the mutable placement of an existing element: Start,
// Duration, InPoint, Priority and Active. Identity fields (track, object,
// kind, effect, asset, seq) are taken from the stored element.
func (s *Store) Update(next ir.TrackElement) (ir.TrackElement, error) {
	cur, ok := s.elements[next.ID]
	if !ok {
		return ir.TrackElement{}, ir.NewNotFound("element", string(next.ID))
	}
	merged := *cur
	merged.Start = next.Start
	merged.Duration = next.Duration
	merged.InPoint = next.InPoint
	merged.Priority = next.Priority
	merged.Active = next.Active
	if err := s.Validate(merged); err != nil {
		return ir.TrackElement{}, err
	}

	idx := s.tracks[cur.TrackID]
	reindex := merged.Start != cur.Start || merged.Duration != cur.Duration
	if reindex {
		idx.remove(cur)
	}
	*cur = merged
	if reindex {
		idx.insert(cur)
	}
	return merged, nil
}

// SetObject reassigns an element to another timeline object.
func (s *Store) SetObject(id ir.ElementID, obj ir.ObjectID) error {
	e, ok := s.elements[id]
	if !ok {
		return ir.NewNotFound("element", string(id))
	}
	e.ObjectID = obj
	return nil
}

// Move changes an element's start, keeping its duration.
func (s *Store) Move(id ir.ElementID, start time.Duration) (ir.TrackElement, error) {
	e, err := s.Get(id)
	if err != nil {
		return ir.TrackElement{}, err
	}
	e.Start = start
	return s.Update(e)
}

// Trim changes an element's start, duration and in-point together. When the
// asset duration is known the in-point is clamped to [0, asset-duration];
// a duration longer than the asset is rejected. Without metadata the values
// are kept as given and checked once the metadata arrives.
func (s *Store) Trim(id ir.ElementID, start, duration, inPoint time.Duration) (ir.TrackElement, error) {
	e, err := s.Trimmed(id, start, duration, inPoint)
	if err != nil {
		return ir.TrackElement{}, err
	}
	return s.Update(e)
}

// Trimmed computes the element Trim would produce without storing it.
func (s *Store) Trimmed(id ir.ElementID, start, duration, inPoint time.Duration) (ir.TrackElement, error) {
	e, err := s.Get(id)
	if err != nil {
		return ir.TrackElement{}, err
	}
	if duration <= 0 {
		return ir.TrackElement{}, ir.NewInvalidRange(string(id), "duration %s must be positive", duration)
	}
	if avail, ok := s.assets[e.AssetID]; ok && e.AssetID != "" {
		if duration > avail {
			return ir.TrackElement{}, ir.NewInvalidRange(string(id),
				"duration %s exceeds asset %s length %s", duration, e.AssetID, avail)
		}
		inPoint = min(max(inPoint, 0), avail-duration)
	}
	e.Start = start
	e.Duration = duration
	e.InPoint = inPoint
	return e, nil
}

// SetPriority changes an element's priority.
func (s *Store) SetPriority(id ir.ElementID, priority int) (ir.TrackElement, error) {
	e, err := s.Get(id)
	if err != nil {
		return ir.TrackElement{}, err
	}
	e.Priority = priority
	return s.Update(e)
}

// SetActive enables or disables an element. Inactive elements stay placed
// but are never resolved into a stack.
func (s *Store) SetActive(id ir.ElementID, active bool) (ir.TrackElement, error) {
	e, err := s.Get(id)
	if err != nil {
		return ir.TrackElement{}, err
	}
	e.Active = active
	return s.Update(e)
}

// QueryOverlapping returns the elements on a track whose span intersects r,
// sorted by (priority asc, start asc, seq asc). Inactive elements are
// included; resolution filters them. Expandable elements are never
// returned by interval queries.
func (s *Store) QueryOverlapping(track ir.TrackID, r ir.TimeRange) ([]ir.TrackElement, error) {
	x, ok := s.tracks[track]
	if !ok {
		return nil, ir.NewNotFound("track", string(track))
	}
	out := deref(x.overlapping(r))
	slices.SortFunc(out, func(a, b ir.TrackElement) int {
		return cmp.Or(
			cmp.Compare(a.Priority, b.Priority),
			cmp.Compare(a.Start, b.Start),
			cmp.Compare(a.Seq, b.Seq),
		)
	})
	return out, nil
}

// StartingAfter returns the elements on a track starting strictly after t,
// ordered by (start, seq).
func (s *Store) StartingAfter(track ir.TrackID, t time.Duration) ([]ir.TrackElement, error) {
	x, ok := s.tracks[track]
	if !ok {
		return nil, ir.NewNotFound("track", string(track))
	}
	return deref(x.startingAfter(t)), nil
}

// StartingBefore returns the elements on a track starting strictly before
// t, ordered by (start, seq).
func (s *Store) StartingBefore(track ir.TrackID, t time.Duration) ([]ir.TrackElement, error) {
	x, ok := s.tracks[track]
	if !ok {
		return nil, ir.NewNotFound("track", string(track))
	}
	return deref(x.startingBefore(t)), nil
}

// ElementsOn returns every element on a track ordered by (start, seq).
func (s *Store) ElementsOn(track ir.TrackID) ([]ir.TrackElement, error) {
	x, ok := s.tracks[track]
	if !ok {
		return nil, ir.NewNotFound("track", string(track))
	}
	return deref(x.all()), nil
}

// Expandables returns the expandable elements of a track in insertion
// order, inactive ones included.
func (s *Store) Expandables(track ir.TrackID) ([]ir.TrackElement, error) {
	x, ok := s.tracks[track]
	if !ok {
		return nil, ir.NewNotFound("track", string(track))
	}
	return deref(x.expandables), nil
}

// Stop returns the end of the last regular element on a track, or 0 when
// it has none. Expandable elements resolve up to it.
func (s *Store) Stop(track ir.TrackID) (time.Duration, error) {
	x, ok := s.tracks[track]
	if !ok {
		return 0, ir.NewNotFound("track", string(track))
	}
	return x.stop(), nil
}

// Elements returns every element ordered by (track registration, start, seq).
func (s *Store) Elements() []ir.TrackElement {
	out := make([]ir.TrackElement, 0, len(s.elements))
	for _, id := range s.trackOrder {
		out = append(out, deref(s.tracks[id].all())...)
	}
	return out
}

// Conflicts reports Source elements that share the given Source element's
// track and priority and overlap it. Such stacks are still resolved, by
// insertion order, but the ordering is probably not what the user meant.
func (s *Store) Conflicts(id ir.ElementID) []ir.Warning {
	e, ok := s.elements[id]
	if !ok || e.Kind != ir.KindSource || !e.Active || e.Expandable {
		return nil
	}
	var ids []string
	for _, other := range s.tracks[e.TrackID].overlapping(e.Range()) {
		if other.ID == e.ID || other.Kind != ir.KindSource || !other.Active {
			continue
		}
		if other.Priority == e.Priority {
			ids = append(ids, string(other.ID))
		}
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	return []ir.Warning{{
		Code:    ir.CodePriorityConflict,
		Message: fmt.Sprintf("source %s overlaps sources at equal priority %d on track %s", e.ID, e.Priority, e.TrackID),
		IDs:     append([]string{string(e.ID)}, ids...),
	}}
}

// Clone returns an independent deep copy.
func (s *Store) Clone() *Store {
	c := &Store{
		tracks:     make(map[ir.TrackID]*trackIndex, len(s.tracks)),
		trackOrder: slices.Clone(s.trackOrder),
		elements:   make(map[ir.ElementID]*ir.TrackElement, len(s.elements)),
		assets:     maps.Clone(s.assets),
		lastSeq:    s.lastSeq,
	}
	for id, x := range s.tracks {
		cx := &trackIndex{
			track:       x.track,
			entries:     make([]*ir.TrackElement, len(x.entries)),
			maxEnd:      slices.Clone(x.maxEnd),
			expandables: make([]*ir.TrackElement, len(x.expandables)),
		}
		for i, e := range x.entries {
			dup := *e
			cx.entries[i] = &dup
			c.elements[dup.ID] = &dup
		}
		for i, e := range x.expandables {
			dup := *e
			cx.expandables[i] = &dup
			c.elements[dup.ID] = &dup
		}
		c.tracks[id] = cx
	}
	return c
}

func deref(in []*ir.TrackElement) []ir.TrackElement {
	out := make([]ir.TrackElement, len(in))
	for i, e := range in {
		out[i] = *e
	}
	return out
}
