package graphsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/stackline/internal/ir"
)

// GraphSink is the external processing graph. Apply receives batches in
// version order and must apply each batch's instructions in order.
type GraphSink interface {
	Apply(ctx context.Context, b Batch) error
}

// BatchSource yields graph batches in version order. NextBatch blocks until
// a batch is available and returns io.EOF once the source is closed and
// drained.
type BatchSource interface {
	NextBatch(ctx context.Context) (Batch, error)
}

// Pump drains src into sink until the source is closed, the context is
// cancelled or the sink fails. Run it on its own goroutine: edits never wait
// for the graph.
func Pump(ctx context.Context, src BatchSource, sink GraphSink) error {
	for {
		b, err := src.NextBatch(ctx)
		if errors.Is(err, io.EOF) {
			slog.Debug("graph pump drained")
			return nil
		}
		if err != nil {
			return err
		}
		if err := sink.Apply(ctx, b); err != nil {
			slog.Error("graph sink rejected batch", "version", b.Version, "error", err)
			return fmt.Errorf("apply batch %d: %w", b.Version, err)
		}
	}
}

// Mirror is a GraphSink that keeps its own copy of every track's element
// list. It stands in for the processing graph in tests and in the scenario
// harness, where its lists are compared against published snapshots.
type Mirror struct {
	mu      sync.Mutex
	lists   map[ir.TrackID][]ir.ElementID
	version uint64
	started bool
	applied int
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{lists: make(map[ir.TrackID][]ir.ElementID)}
}

// Apply implements GraphSink. Batches must arrive with increasing versions.
func (m *Mirror) Apply(_ context.Context, b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started && b.Version <= m.version {
		return fmt.Errorf("batch version %d not after %d", b.Version, m.version)
	}
	next := make(map[ir.TrackID][]ir.ElementID, len(b.Tracks))
	for _, tb := range b.Tracks {
		list, err := Apply(m.lists[tb.Track], tb.Instructions)
		if err != nil {
			return fmt.Errorf("track %s: %w", tb.Track, err)
		}
		next[tb.Track] = list
	}
	for id, list := range next {
		m.lists[id] = list
	}
	m.version = b.Version
	m.started = true
	m.applied += b.Len()
	return nil
}

// Stack returns the mirrored list of a track.
func (m *Mirror) Stack(track ir.TrackID) []ir.ElementID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ir.ElementID(nil), m.lists[track]...)
}

// Version returns the version of the last applied batch.
func (m *Mirror) Version() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// Applied counts the instructions applied so far.
func (m *Mirror) Applied() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}

// Matches reports whether the mirror holds exactly the stacks of snap.
func (m *Mirror) Matches(snap *Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range snap.order {
		want := snap.stacks[id]
		got := m.lists[id]
		if len(want) != len(got) {
			return false
		}
		for i := range want {
			if want[i] != got[i] {
				return false
			}
		}
	}
	return true
}
