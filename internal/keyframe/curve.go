// Package keyframe evaluates animated effect parameters.
//
// A Curve is an immutable, time-ordered list of control points. Every
// mutation returns a new Curve, so a reader that loaded a curve keeps a
// consistent version no matter what the edit path does afterwards.
package keyframe

import (
	"fmt"
	"slices"
	"time"

	"github.com/roach88/stackline/internal/ir"
)

// Mode is the interpolation applied to the segment starting at a point.
type Mode int

const (
	// ModeLinear interpolates straight to the next point.
	ModeLinear Mode = iota + 1
	// ModeHold keeps the point's value until the next point.
	ModeHold
)

func (m Mode) String() string {
	switch m {
	case ModeLinear:
		return "linear"
	case ModeHold:
		return "hold"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts "linear", "hold" and its alias "step".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "linear", "":
		return ModeLinear, nil
	case "hold", "step":
		return ModeHold, nil
	default:
		return 0, fmt.Errorf("unknown interpolation mode %q", s)
	}
}

// Point is a control point. Time is relative to the owning element's start.
type Point struct {
	Time  time.Duration `json:"time"`
	Value float64       `json:"value"`
	Mode  Mode          `json:"mode"`
}

// Curve is an immutable control-point sequence bounded to [0, Duration).
// Point times are strictly increasing.
type Curve struct {
	duration time.Duration
	points   []Point
	version  uint64
}

// New creates an empty curve accepting points in [0, duration).
func New(duration time.Duration) *Curve {
	return &Curve{duration: duration}
}

// Duration returns the exclusive upper bound for point times.
func (c *Curve) Duration() time.Duration { return c.duration }

// Version counts mutations since the curve was created.
func (c *Curve) Version() uint64 { return c.version }

// Len returns the number of control points.
func (c *Curve) Len() int { return len(c.points) }

// Points returns a copy of the control points.
func (c *Curve) Points() []Point { return slices.Clone(c.points) }

// search returns the index of the first point with Time >= t.
func (c *Curve) search(t time.Duration) (int, bool) {
	return slices.BinarySearchFunc(c.points, t, func(p Point, t time.Duration) int {
		switch {
		case p.Time < t:
			return -1
		case p.Time > t:
			return 1
		default:
			return 0
		}
	})
}

func (c *Curve) derive(points []Point) *Curve {
	return &Curve{duration: c.duration, points: points, version: c.version + 1}
}

// Insert returns a curve with a point at t. An existing point at t has its
// value and mode replaced rather than duplicated.
func (c *Curve) Insert(t time.Duration, value float64, mode Mode) (*Curve, error) {
	if t < 0 || t >= c.duration {
		return nil, ir.NewInvalidRange("", "keyframe time %s outside [0, %s)", t, c.duration)
	}
	if mode == 0 {
		mode = ModeLinear
	}
	p := Point{Time: t, Value: value, Mode: mode}
	i, found := c.search(t)
	points := slices.Clone(c.points)
	if found {
		points[i] = p
	} else {
		points = slices.Insert(points, i, p)
	}
	return c.derive(points), nil
}

// Remove returns a curve without the point at exactly t.
func (c *Curve) Remove(t time.Duration) (*Curve, error) {
	i, found := c.search(t)
	if !found {
		return nil, &ir.EditError{
			Code:    ir.CodeNotFound,
			Message: fmt.Sprintf("no keyframe at %s", t),
		}
	}
	return c.derive(slices.Delete(slices.Clone(c.points), i, i+1)), nil
}

// Evaluate returns the value at t. Before the first point and after the last
// point the nearest point's value is returned. ok is false for an empty
// curve. Evaluate is a pure function of the curve and t.
func (c *Curve) Evaluate(t time.Duration) (value float64, ok bool) {
	n := len(c.points)
	if n == 0 {
		return 0, false
	}
	if t <= c.points[0].Time {
		return c.points[0].Value, true
	}
	if t >= c.points[n-1].Time {
		return c.points[n-1].Value, true
	}
	i, found := c.search(t)
	if found {
		return c.points[i].Value, true
	}
	return interpolate(c.points[i-1], c.points[i], t), true
}

func interpolate(left, right Point, t time.Duration) float64 {
	if left.Mode == ModeHold {
		return left.Value
	}
	frac := float64(t-left.Time) / float64(right.Time-left.Time)
	return left.Value + (right.Value-left.Value)*frac
}

// WithDuration returns a curve with a new bound. Shrinking drops the points
// at or beyond the bound and evaluates the same as the original up to it.
func (c *Curve) WithDuration(d time.Duration) *Curve {
	if d < c.duration {
		left, _ := c.Split(d)
		return left
	}
	return &Curve{duration: d, points: c.points, version: c.version + 1}
}

// Split cuts the curve at offset. The left curve keeps the points before the
// cut and is bounded to offset; the right curve holds the remaining points
// shifted back by offset and bounded to the rest of the original duration.
// The right side always starts with the value the original had at the cut,
// and the left side ends with the value it had one nanosecond before it, so
// both halves evaluate exactly as the original did.
func (c *Curve) Split(offset time.Duration) (left, right *Curve) {
	left = &Curve{duration: offset, version: c.version + 1}
	right = &Curve{duration: c.duration - offset}
	if len(c.points) == 0 {
		return left, right
	}

	i, found := c.search(offset)
	left.points = slices.Clone(c.points[:i])
	if i > 0 && i < len(c.points) && c.points[i-1].Mode == ModeLinear {
		last := offset - 1
		if last > c.points[i-1].Time {
			v, _ := c.Evaluate(last)
			left.points = append(left.points, Point{Time: last, Value: v, Mode: ModeLinear})
		}
	}

	atCut, _ := c.Evaluate(offset)
	mode := ModeLinear
	if found {
		mode = c.points[i].Mode
		i++
	} else if i > 0 {
		mode = c.points[i-1].Mode
	}
	right.points = append(right.points, Point{Time: 0, Value: atCut, Mode: mode})
	for _, p := range c.points[i:] {
		p.Time -= offset
		right.points = append(right.points, p)
	}
	return left, right
}
