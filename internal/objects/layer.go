package objects

import (
	"errors"
	"log/slog"

	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/layers"
)

// Layer edits shift the bands of every layer between the old and new
// positions. Each shifted layer's members are rebanded in one transaction
// and the new order is only committed once every member fits.

// AddLayer inserts a layer at rank.
func (c *Coordinator) AddLayer(id ir.LayerID, rank int) (Result, error) {
	plan, err := c.layers.PlanAdd(id, rank)
	if err != nil {
		return Result{}, err
	}
	return c.applyPlan(plan, nil)
}

// RemoveLayer deletes a layer together with every object on it.
func (c *Coordinator) RemoveLayer(id ir.LayerID) (Result, error) {
	plan, err := c.layers.PlanRemove(id)
	if err != nil {
		return Result{}, err
	}
	return c.applyPlan(plan, func(tx *txn) error {
		for _, o := range c.ObjectsOn(id) {
			for _, el := range o.Members {
				if _, err := tx.remove(el); err != nil {
					return err
				}
			}
			tx.deleteObject(o.ID)
		}
		return nil
	})
}

// MoveLayer moves a layer to a new rank.
func (c *Coordinator) MoveLayer(id ir.LayerID, rank int) (Result, error) {
	plan, err := c.layers.PlanMove(id, rank)
	if err != nil {
		return Result{}, err
	}
	return c.applyPlan(plan, nil)
}

func (c *Coordinator) applyPlan(plan *layers.Plan, prepare func(*txn) error) (Result, error) {
	tx := c.begin()
	if prepare != nil {
		if err := prepare(tx); err != nil {
			tx.rollback()
			return Result{}, err
		}
	}

	var next []ir.TrackElement
	for _, sh := range plan.Shifts {
		for _, o := range c.ObjectsOn(sh.Layer) {
			members, err := c.members(o.ID)
			if err != nil {
				tx.rollback()
				return Result{}, err
			}
			moved, err := rebandMembers(members, sh.From, sh.To)
			if err != nil {
				tx.rollback()
				return Result{}, err
			}
			next = append(next, moved...)
		}
	}

	warnings, err := c.applyIn(tx, next, true)
	if err != nil {
		return Result{}, err
	}
	plan.Commit()
	slog.Debug("layer order changed", "layers", len(plan.Order()), "shifted", len(plan.Shifts))
	return tx.commit(warnings), nil
}

func rebandMembers(members []ir.TrackElement, from, to layers.Band) ([]ir.TrackElement, error) {
	prios := make([]int, len(members))
	for i, e := range members {
		prios[i] = e.Priority
	}
	moved, err := layers.Reband(from, to, prios)
	if err != nil {
		var ee *ir.EditError
		if errors.As(err, &ee) && len(members) > 0 {
			ee.ID = string(members[0].ObjectID)
		}
		return nil, err
	}
	out := make([]ir.TrackElement, len(members))
	for i, e := range members {
		e.Priority = moved[i]
		out[i] = e
	}
	return out, nil
}
