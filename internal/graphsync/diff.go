// Package graphsync keeps an external processing graph in step with the
// resolved stacks.
//
// The Controller re-resolves the tracks an edit touched at the playhead,
// diffs each new stack against the last published one and publishes an
// immutable Snapshot. The diff is a minimal list of Insert, Remove and
// Reorder instructions: an element that stays in place is never touched, so
// the graph does not glitch on unrelated edits.
package graphsync

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/stackline/internal/ir"
)

// OpKind is the graph operation of one instruction.
type OpKind string

const (
	OpInsert  OpKind = "insert"
	OpRemove  OpKind = "remove"
	OpReorder OpKind = "reorder"
)

// Instruction is one graph update on a track's element list. Position is
// an index into the list as it is when the instruction is applied: for
// Insert and Reorder the index the element ends up at, for Remove the index
// it is removed from.
type Instruction struct {
	Op       OpKind       `json:"op"`
	Element  ir.ElementID `json:"element"`
	Position int          `json:"position"`
}

func (in Instruction) String() string {
	return fmt.Sprintf("%s %s @%d", in.Op, in.Element, in.Position)
}

// Diff returns the instructions that turn old into next. Ids must be
// unique within each list.
//
// Removals come first, in old order. The kept elements that lie on a
// longest increasing subsequence of their new indices stay where they are;
// every other element is then inserted or reordered in ascending new index,
// directly after its predecessor in next. The result has
// removed + inserted + (kept - LIS) instructions, which is minimal.
func Diff(old, next []ir.ElementID) []Instruction {
	newIndex := make(map[ir.ElementID]int, len(next))
	for i, id := range next {
		newIndex[id] = i
	}

	var out []Instruction
	work := make([]ir.ElementID, 0, len(old))
	for _, id := range old {
		if _, ok := newIndex[id]; !ok {
			out = append(out, Instruction{Op: OpRemove, Element: id, Position: len(work)})
			continue
		}
		work = append(work, id)
	}

	seq := make([]int, len(work))
	for i, id := range work {
		seq[i] = newIndex[id]
	}
	stay := make(map[ir.ElementID]bool, len(work))
	for _, i := range longestIncreasing(seq) {
		stay[work[i]] = true
	}
	kept := make(map[ir.ElementID]bool, len(work))
	for _, id := range work {
		kept[id] = true
	}

	for j, id := range next {
		if stay[id] {
			continue
		}
		op := OpInsert
		if kept[id] {
			op = OpReorder
			work = slices.Delete(work, slices.Index(work, id), slices.Index(work, id)+1)
		}
		pos := 0
		if j > 0 {
			pos = slices.Index(work, next[j-1]) + 1
		}
		work = slices.Insert(work, pos, id)
		out = append(out, Instruction{Op: op, Element: id, Position: pos})
	}
	return out
}

// longestIncreasing returns the indices of one longest strictly increasing
// subsequence of seq, in order.
func longestIncreasing(seq []int) []int {
	// tails[k] is the index in seq of the smallest tail of an increasing
	// subsequence of length k+1.
	var tails []int
	prev := make([]int, len(seq))
	for i, v := range seq {
		k := sort.Search(len(tails), func(k int) bool { return seq[tails[k]] >= v })
		if k > 0 {
			prev[i] = tails[k-1]
		} else {
			prev[i] = -1
		}
		if k == len(tails) {
			tails = append(tails, i)
		} else {
			tails[k] = i
		}
	}
	out := make([]int, len(tails))
	if len(tails) == 0 {
		return out
	}
	for i, k := tails[len(tails)-1], len(tails)-1; k >= 0; i, k = prev[i], k-1 {
		out[k] = i
	}
	return out
}

// Apply replays instructions on a copy of list.
func Apply(list []ir.ElementID, instrs []Instruction) ([]ir.ElementID, error) {
	out := slices.Clone(list)
	for n, in := range instrs {
		switch in.Op {
		case OpInsert:
			if in.Position < 0 || in.Position > len(out) {
				return nil, fmt.Errorf("instruction %d (%s): position out of range [0, %d]", n, in, len(out))
			}
			if slices.Contains(out, in.Element) {
				return nil, fmt.Errorf("instruction %d (%s): element already present", n, in)
			}
			out = slices.Insert(out, in.Position, in.Element)
		case OpRemove:
			if in.Position < 0 || in.Position >= len(out) || out[in.Position] != in.Element {
				return nil, fmt.Errorf("instruction %d (%s): element not at position", n, in)
			}
			out = slices.Delete(out, in.Position, in.Position+1)
		case OpReorder:
			i := slices.Index(out, in.Element)
			if i < 0 {
				return nil, fmt.Errorf("instruction %d (%s): element not present", n, in)
			}
			out = slices.Delete(out, i, i+1)
			if in.Position < 0 || in.Position > len(out) {
				return nil, fmt.Errorf("instruction %d (%s): position out of range [0, %d]", n, in, len(out))
			}
			out = slices.Insert(out, in.Position, in.Element)
		default:
			return nil, fmt.Errorf("instruction %d: unknown op %q", n, in.Op)
		}
	}
	return out, nil
}
