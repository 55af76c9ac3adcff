package graphsync

import (
	"slices"
	"time"

	"github.com/roach88/stackline/internal/ir"
)

// Snapshot is one published resolution of every track at the playhead.
// It is never mutated after publication; readers may hold it as long as
// they like.
type Snapshot struct {
	version  uint64
	position time.Duration
	order    []ir.TrackID
	stacks   map[ir.TrackID][]ir.ElementID
	digest   string
}

func newSnapshot(version uint64, position time.Duration, order []ir.TrackID, stacks map[ir.TrackID][]ir.ElementID) (*Snapshot, error) {
	digest, err := ir.StackDigest(int64(position), stacks)
	if err != nil {
		return nil, err
	}
	return &Snapshot{
		version:  version,
		position: position,
		order:    order,
		stacks:   stacks,
		digest:   digest,
	}, nil
}

// Version increases by one with every publication.
func (s *Snapshot) Version() uint64 { return s.version }

// Position is the playhead the stacks were resolved at.
func (s *Snapshot) Position() time.Duration { return s.position }

// Digest is a content hash of the position and all stacks.
func (s *Snapshot) Digest() string { return s.digest }

// Tracks returns the track ids in registration order.
func (s *Snapshot) Tracks() []ir.TrackID { return slices.Clone(s.order) }

// Stack returns a copy of a track's ordered element ids.
func (s *Snapshot) Stack(track ir.TrackID) []ir.ElementID {
	return slices.Clone(s.stacks[track])
}

// Stacks returns a copy of every stack.
func (s *Snapshot) Stacks() map[ir.TrackID][]ir.ElementID {
	out := make(map[ir.TrackID][]ir.ElementID, len(s.stacks))
	for id, st := range s.stacks {
		out[id] = slices.Clone(st)
	}
	return out
}

// TrackBatch holds the instructions for one track, in application order.
type TrackBatch struct {
	Track        ir.TrackID    `json:"track"`
	Instructions []Instruction `json:"instructions"`
}

// Batch is the graph update that turns the previous snapshot into the one
// with Version.
type Batch struct {
	Version  uint64        `json:"version"`
	Position time.Duration `json:"position"`
	Tracks   []TrackBatch  `json:"tracks,omitempty"`
}

// Empty reports whether the batch carries no instruction.
func (b Batch) Empty() bool {
	for _, tb := range b.Tracks {
		if len(tb.Instructions) > 0 {
			return false
		}
	}
	return true
}

// Len counts the instructions across all tracks.
func (b Batch) Len() int {
	n := 0
	for _, tb := range b.Tracks {
		n += len(tb.Instructions)
	}
	return n
}
