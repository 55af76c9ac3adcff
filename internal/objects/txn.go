package objects

import (
	"time"

	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/keyframe"
	"github.com/roach88/stackline/internal/resolver"
)

// txn records every mutation of one coordinator edit so a late failure can
// restore the store and object table exactly. Curve updates are buffered and
// only published on commit, so readers never see a curve from an edit that
// was rolled back.
type txn struct {
	c       *Coordinator
	changes []resolver.Change
	undo    []func()

	curves map[keyframe.Key]*keyframe.Curve
	drop   []ir.ElementID
}

func (c *Coordinator) begin() *txn {
	return &txn{c: c, curves: make(map[keyframe.Key]*keyframe.Curve)}
}

func (tx *txn) add(e ir.TrackElement) (ir.TrackElement, error) {
	stored, err := tx.c.store.Add(e)
	if err != nil {
		return ir.TrackElement{}, err
	}
	tx.undo = append(tx.undo, func() { _, _ = tx.c.store.Remove(stored.ID) })
	tx.c.byElement[stored.ID] = stored.ObjectID
	tx.undo = append(tx.undo, func() { delete(tx.c.byElement, stored.ID) })
	tx.changes = append(tx.changes, resolver.Change{After: &stored})
	return stored, nil
}

func (tx *txn) remove(id ir.ElementID) (ir.TrackElement, error) {
	before, err := tx.c.store.Remove(id)
	if err != nil {
		return ir.TrackElement{}, err
	}
	tx.undo = append(tx.undo, func() { _, _ = tx.c.store.Add(before) })
	delete(tx.c.byElement, id)
	tx.undo = append(tx.undo, func() { tx.c.byElement[id] = before.ObjectID })
	tx.changes = append(tx.changes, resolver.Change{Before: &before})
	tx.drop = append(tx.drop, id)
	return before, nil
}

func (tx *txn) update(next ir.TrackElement) (ir.TrackElement, error) {
	before, err := tx.c.store.Get(next.ID)
	if err != nil {
		return ir.TrackElement{}, err
	}
	after, err := tx.c.store.Update(next)
	if err != nil {
		return ir.TrackElement{}, err
	}
	tx.undo = append(tx.undo, func() { _, _ = tx.c.store.Update(before) })
	tx.changes = append(tx.changes, resolver.Change{Before: &before, After: &after})
	if after.Duration != before.Duration {
		for prop, cur := range tx.c.curves.ForElement(after.ID) {
			key := keyframe.Key{Element: after.ID, Property: prop}
			if pending, ok := tx.curves[key]; ok {
				cur = pending
			}
			tx.curves[key] = cur.WithDuration(after.Duration)
		}
	}
	return after, nil
}

// trim goes through the store's trim rules so known asset bounds clamp the
// in-point.
func (tx *txn) trim(id ir.ElementID, start, duration, inPoint time.Duration) (ir.TrackElement, error) {
	next, err := tx.c.store.Trimmed(id, start, duration, inPoint)
	if err != nil {
		return ir.TrackElement{}, err
	}
	return tx.update(next)
}

func (tx *txn) setObject(id ir.ElementID, obj ir.ObjectID) error {
	prev, ok := tx.c.byElement[id]
	if !ok {
		return ir.NewNotFound("element", string(id))
	}
	if err := tx.c.store.SetObject(id, obj); err != nil {
		return err
	}
	tx.c.byElement[id] = obj
	tx.undo = append(tx.undo, func() {
		_ = tx.c.store.SetObject(id, prev)
		tx.c.byElement[id] = prev
	})
	return nil
}

func (tx *txn) putObject(o *Object) {
	prev, existed := tx.c.objects[o.ID]
	tx.c.objects[o.ID] = o
	tx.undo = append(tx.undo, func() {
		if existed {
			tx.c.objects[o.ID] = prev
			return
		}
		delete(tx.c.objects, o.ID)
	})
}

func (tx *txn) deleteObject(id ir.ObjectID) {
	prev, ok := tx.c.objects[id]
	if !ok {
		return
	}
	delete(tx.c.objects, id)
	tx.undo = append(tx.undo, func() { tx.c.objects[id] = prev })
}

func (tx *txn) setCurve(key keyframe.Key, c *keyframe.Curve) {
	tx.curves[key] = c
}

func (tx *txn) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *txn) commit(warnings []ir.Warning) Result {
	if len(tx.curves) > 0 {
		tx.c.curves.StoreAll(tx.curves)
	}
	for _, id := range tx.drop {
		if !tx.c.store.Has(id) {
			tx.c.curves.DeleteElement(id)
		}
	}
	return Result{Changes: tx.changes, Warnings: warnings}
}
