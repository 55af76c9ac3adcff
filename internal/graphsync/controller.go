package graphsync

import (
	"log/slog"
	"maps"
	"sync/atomic"
	"time"

	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/resolver"
)

// Resolver is the part of the stack resolver the controller needs.
// *resolver.Resolver implements it.
type Resolver interface {
	Tracks() []ir.Track
	StackAt(track ir.TrackID, t time.Duration) (resolver.Stack, error)
}

// Controller maintains the playhead and the published snapshot.
//
// Thread-safety model:
//   - Snapshot(): lock-free, safe from any goroutine
//   - Refresh/Seek/RefreshAll: edit path only, never concurrently
//
// A new snapshot is published only when a stack or the playhead changed;
// its version is the previous version plus one.
type Controller struct {
	resolver Resolver
	current  atomic.Pointer[Snapshot]
}

// NewController resolves every track at position and publishes version 0.
func NewController(r Resolver, position time.Duration) (*Controller, error) {
	c := &Controller{resolver: r}
	order, stacks, err := c.resolveAll(position)
	if err != nil {
		return nil, err
	}
	snap, err := newSnapshot(0, position, order, stacks)
	if err != nil {
		return nil, err
	}
	c.current.Store(snap)
	return c, nil
}

// Snapshot returns the latest published snapshot.
func (c *Controller) Snapshot() *Snapshot {
	return c.current.Load()
}

// Position returns the current playhead.
func (c *Controller) Position() time.Duration {
	return c.current.Load().position
}

func (c *Controller) resolveAll(t time.Duration) ([]ir.TrackID, map[ir.TrackID][]ir.ElementID, error) {
	tracks := c.resolver.Tracks()
	order := make([]ir.TrackID, len(tracks))
	stacks := make(map[ir.TrackID][]ir.ElementID, len(tracks))
	for i, tr := range tracks {
		s, err := c.resolver.StackAt(tr.ID, t)
		if err != nil {
			return nil, nil, err
		}
		order[i] = tr.ID
		stacks[tr.ID] = s.IDs()
	}
	return order, stacks, nil
}

// Refresh re-resolves the tracks whose affected ranges contain the
// playhead, plus tracks the snapshot has not seen yet. ok is false when
// nothing changed and no snapshot was published.
func (c *Controller) Refresh(affected map[ir.TrackID][]ir.TimeRange) (Batch, bool, error) {
	prev := c.current.Load()
	t := prev.position

	stacks := maps.Clone(prev.stacks)
	order := prev.order
	batch := Batch{Version: prev.version + 1, Position: t}
	grew := false

	for _, tr := range c.resolver.Tracks() {
		old, known := prev.stacks[tr.ID]
		if !known {
			order = append(append([]ir.TrackID(nil), order...), tr.ID)
			grew = true
		} else if !resolver.Covers(affected[tr.ID], t) {
			continue
		}
		s, err := c.resolver.StackAt(tr.ID, t)
		if err != nil {
			return Batch{}, false, err
		}
		ids := s.IDs()
		if instrs := Diff(old, ids); len(instrs) > 0 {
			batch.Tracks = append(batch.Tracks, TrackBatch{Track: tr.ID, Instructions: instrs})
		}
		stacks[tr.ID] = ids
	}

	if batch.Empty() && !grew {
		return Batch{}, false, nil
	}
	if err := c.publish(batch.Version, t, order, stacks); err != nil {
		return Batch{}, false, err
	}
	return batch, true, nil
}

// Seek moves the playhead to t and re-resolves every track.
func (c *Controller) Seek(t time.Duration) (Batch, bool, error) {
	prev := c.current.Load()
	order, stacks, err := c.resolveAll(t)
	if err != nil {
		return Batch{}, false, err
	}

	batch := Batch{Version: prev.version + 1, Position: t}
	for _, id := range order {
		if instrs := Diff(prev.stacks[id], stacks[id]); len(instrs) > 0 {
			batch.Tracks = append(batch.Tracks, TrackBatch{Track: id, Instructions: instrs})
		}
	}
	if batch.Empty() && t == prev.position && len(order) == len(prev.order) {
		return Batch{}, false, nil
	}
	if err := c.publish(batch.Version, t, order, stacks); err != nil {
		return Batch{}, false, err
	}
	slog.Debug("playhead moved", "position", t, "version", batch.Version, "instructions", batch.Len())
	return batch, true, nil
}

func (c *Controller) publish(version uint64, t time.Duration, order []ir.TrackID, stacks map[ir.TrackID][]ir.ElementID) error {
	snap, err := newSnapshot(version, t, order, stacks)
	if err != nil {
		return err
	}
	c.current.Store(snap)
	return nil
}
