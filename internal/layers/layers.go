// Package layers maintains the total order of layers and maps each layer to
// its default priority band.
//
// The layer at rank r owns priorities [r*height, (r+1)*height). A Source
// placed on a layer gets the band base; Operations stacked on it get base+1,
// base+2 and so on in placement order. Explicit reprioritization may move an
// element outside its band; rebanding then rejects it rather than guess.
//
// Changing the layer order shifts the bands of every layer between the old
// and new positions. The Manager only plans such changes: a Plan lists the
// band shifts, the caller reprioritizes the affected elements, and Commit
// installs the new order once that succeeded. Until Commit the Manager is
// untouched, which keeps layer edits transactional.
package layers

import (
	"fmt"
	"slices"

	"github.com/roach88/stackline/internal/ir"
)

// DefaultHeight is the number of priorities in one layer band.
const DefaultHeight = 1000

// Layer is one entry of the layer order.
type Layer struct {
	ID   ir.LayerID `json:"id"`
	Rank int        `json:"rank"`
}

// Band is the half-open priority range [Base, Limit) owned by a layer.
type Band struct {
	Base  int `json:"base"`
	Limit int `json:"limit"`
}

// Contains reports whether p lies inside the band.
func (b Band) Contains(p int) bool {
	return p >= b.Base && p < b.Limit
}

func (b Band) String() string {
	return fmt.Sprintf("[%d, %d)", b.Base, b.Limit)
}

// Manager owns the layer order. Like the element store it is driven by the
// single edit path and is not safe for concurrent use.
type Manager struct {
	height int
	order  []ir.LayerID
}

// NewManager creates an empty manager. A non-positive height falls back to
// DefaultHeight.
func NewManager(height int) *Manager {
	if height <= 0 {
		height = DefaultHeight
	}
	return &Manager{height: height}
}

// Height returns the band size.
func (m *Manager) Height() int {
	return m.height
}

// Len returns the number of layers.
func (m *Manager) Len() int {
	return len(m.order)
}

// Layers returns every layer ordered by rank.
func (m *Manager) Layers() []Layer {
	out := make([]Layer, len(m.order))
	for i, id := range m.order {
		out[i] = Layer{ID: id, Rank: i}
	}
	return out
}

// Layer looks up a layer by id.
func (m *Manager) Layer(id ir.LayerID) (Layer, error) {
	i := slices.Index(m.order, id)
	if i < 0 {
		return Layer{}, ir.NewNotFound("layer", string(id))
	}
	return Layer{ID: id, Rank: i}, nil
}

// BandOf returns the band for a rank.
func (m *Manager) BandOf(rank int) Band {
	return Band{Base: rank * m.height, Limit: (rank + 1) * m.height}
}

// Band returns the band currently owned by a layer.
func (m *Manager) Band(id ir.LayerID) (Band, error) {
	l, err := m.Layer(id)
	if err != nil {
		return Band{}, err
	}
	return m.BandOf(l.Rank), nil
}

// DefaultPriority returns the priority a new element gets on a layer.
// ordinal is the highest Operation offset already used in the same object;
// the new Operation goes one above it.
func (m *Manager) DefaultPriority(id ir.LayerID, kind ir.Kind, ordinal int) (int, error) {
	band, err := m.Band(id)
	if err != nil {
		return 0, err
	}
	if kind == ir.KindSource {
		return band.Base, nil
	}
	p := band.Base + 1 + ordinal
	if !band.Contains(p) {
		return 0, ir.NewPriorityConflict(string(id), "layer %s band %s is full", id, band)
	}
	return p, nil
}

// Reband maps priorities from one band to another, preserving each
// element's offset from the band base. A priority whose offset does not fit
// the target band rejects the whole set.
func Reband(from, to Band, priorities []int) ([]int, error) {
	out := make([]int, len(priorities))
	for i, p := range priorities {
		np := to.Base + (p - from.Base)
		if !to.Contains(np) {
			return nil, ir.NewPriorityConflict("",
				"priority %d has offset %d outside target band %s", p, p-from.Base, to)
		}
		out[i] = np
	}
	return out, nil
}

// Shift records one layer whose band changes under a Plan.
type Shift struct {
	Layer ir.LayerID
	From  Band
	To    Band
}

// Plan is a pending change to the layer order.
type Plan struct {
	m      *Manager
	order  []ir.LayerID
	Shifts []Shift
}

// Commit installs the planned order. A plan built against an older order
// must not be committed; the edit path never interleaves plans.
func (p *Plan) Commit() {
	p.m.order = p.order
}

// Order returns the planned layer order.
func (p *Plan) Order() []Layer {
	out := make([]Layer, len(p.order))
	for i, id := range p.order {
		out[i] = Layer{ID: id, Rank: i}
	}
	return out
}

func (m *Manager) plan(next []ir.LayerID) *Plan {
	p := &Plan{m: m, order: next}
	for newRank, id := range next {
		oldRank := slices.Index(m.order, id)
		if oldRank < 0 || oldRank == newRank {
			continue
		}
		p.Shifts = append(p.Shifts, Shift{Layer: id, From: m.BandOf(oldRank), To: m.BandOf(newRank)})
	}
	return p
}

// PlanAdd plans inserting a layer at rank. Ranks beyond the end append;
// existing layers at or below rank shift down by one.
func (m *Manager) PlanAdd(id ir.LayerID, rank int) (*Plan, error) {
	if id == "" {
		return nil, ir.NewInvalidRange("", "layer id is required")
	}
	if slices.Contains(m.order, id) {
		return nil, ir.NewInvalidRange(string(id), "duplicate layer")
	}
	if rank < 0 {
		return nil, ir.NewInvalidRange(string(id), "layer rank %d must not be negative", rank)
	}
	rank = min(rank, len(m.order))
	return m.plan(slices.Insert(slices.Clone(m.order), rank, id)), nil
}

// PlanRemove plans dropping a layer; layers below it shift up by one.
func (m *Manager) PlanRemove(id ir.LayerID) (*Plan, error) {
	i := slices.Index(m.order, id)
	if i < 0 {
		return nil, ir.NewNotFound("layer", string(id))
	}
	return m.plan(slices.Delete(slices.Clone(m.order), i, i+1)), nil
}

// PlanMove plans moving a layer to a new rank, shifting the layers between
// its old and new position by one.
func (m *Manager) PlanMove(id ir.LayerID, rank int) (*Plan, error) {
	i := slices.Index(m.order, id)
	if i < 0 {
		return nil, ir.NewNotFound("layer", string(id))
	}
	if rank < 0 {
		return nil, ir.NewInvalidRange(string(id), "layer rank %d must not be negative", rank)
	}
	rank = min(rank, len(m.order)-1)
	next := slices.Delete(slices.Clone(m.order), i, i+1)
	return m.plan(slices.Insert(next, rank, id)), nil
}
