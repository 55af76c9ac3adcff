package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/roach88/stackline/internal/graphsync"
	"github.com/roach88/stackline/internal/ir"
	"github.com/roach88/stackline/internal/keyframe"
	"github.com/roach88/stackline/internal/layers"
	"github.com/roach88/stackline/internal/objects"
	"github.com/roach88/stackline/internal/resolver"
	"github.com/roach88/stackline/internal/store"
)

// Config holds the timeline parameters that are fixed at construction.
type Config struct {
	// LayerHeight is the width of each layer's priority band. Zero selects
	// layers.DefaultHeight.
	LayerHeight int

	// Playhead is the initial position the snapshot is resolved at.
	Playhead time.Duration
}

// Update is published to every subscriber for each applied edit.
type Update struct {
	// Version is the snapshot version after the edit.
	Version uint64

	// Edit is the applied record with its seq and generated ids filled in.
	// It is zero for the seed update a subscription starts with.
	Edit ir.EditRecord

	// Snapshot is the snapshot published by or current after the edit.
	Snapshot *graphsync.Snapshot

	// Batch is the graph update, nil when the graph did not change.
	Batch *graphsync.Batch

	// Warnings are non-fatal priority conflicts the edit created.
	Warnings []ir.Warning

	// Errors are problems detected while applying the edit that did not
	// reject it, such as elements deactivated because their asset turned
	// out shorter than their in-point and duration.
	Errors []error
}

// Timeline is one editable timeline.
//
// Thread-safety model:
//   - Apply and every edit method: serialized by the edit mutex
//   - Snapshot, Curve, Evaluate: lock-free, safe from any goroutine
//   - query methods (StackAt, Window, Element, ...): take the edit mutex
type Timeline struct {
	mu      sync.Mutex
	closed  bool
	clock   *Clock
	ids     IDGenerator
	store   *store.Store
	layers  *layers.Manager
	curves  *keyframe.Registry
	objects *objects.Coordinator
	res     *resolver.Resolver
	ctrl    *graphsync.Controller

	subMu   sync.Mutex
	subs    map[int]*updateQueue
	nextSub int

	assets  AssetProvider
	pending map[string]bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures a Timeline.
type Option func(*Timeline)

// WithIDGenerator sets the generator for ids an edit does not name.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(t *Timeline) { t.ids = g }
}

// WithClock sets the logical clock, e.g. to resume after a journal.
func WithClock(c *Clock) Option {
	return func(t *Timeline) { t.clock = c }
}

// WithAssetProvider enables asynchronous asset metadata lookups.
func WithAssetProvider(p AssetProvider) Option {
	return func(t *Timeline) { t.assets = p }
}

// New creates an empty timeline.
func New(cfg Config, opts ...Option) (*Timeline, error) {
	if cfg.LayerHeight == 0 {
		cfg.LayerHeight = layers.DefaultHeight
	}
	if cfg.LayerHeight < 0 {
		return nil, fmt.Errorf("layer height %d must be positive", cfg.LayerHeight)
	}
	if cfg.Playhead < 0 {
		return nil, fmt.Errorf("playhead %s must not be negative", cfg.Playhead)
	}

	s := store.New()
	lm := layers.NewManager(cfg.LayerHeight)
	curves := keyframe.NewRegistry()
	res := resolver.New(s)
	ctrl, err := graphsync.NewController(res, cfg.Playhead)
	if err != nil {
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Timeline{
		clock:   NewClock(),
		ids:     UUIDv7Generator{},
		store:   s,
		layers:  lm,
		curves:  curves,
		objects: objects.New(s, lm, curves),
		res:     res,
		ctrl:    ctrl,
		subs:    make(map[int]*updateQueue),
		pending: make(map[string]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Apply validates and applies one edit record. The record's Seq is
// assigned from the clock unless it is already set (replay). Ids the record
// leaves out are generated and written into the returned Update's Edit.
//
// A rejected edit returns an error wrapping an *ir.EditError or a
// *DispatchError and leaves the timeline unchanged.
func (t *Timeline) Apply(ctx context.Context, rec ir.EditRecord) (Update, error) {
	if err := ctx.Err(); err != nil {
		return Update{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return Update{}, ErrClosed
	}
	return t.apply(rec)
}

func (t *Timeline) apply(rec ir.EditRecord) (Update, error) {
	rec.Args = cloneArgs(rec.Args)
	out, err := t.dispatch(&rec)
	if err != nil {
		slog.Debug("edit rejected", "op", rec.Op, "error", err)
		return Update{}, fmt.Errorf("%s: %w", rec.Op, err)
	}

	if rec.Seq == 0 {
		rec.Seq = t.clock.Next()
	} else {
		t.clock.Observe(rec.Seq)
	}

	var (
		batch   graphsync.Batch
		changed bool
	)
	if out.seek {
		batch, changed, err = t.ctrl.Seek(out.position)
	} else {
		var affected map[ir.TrackID][]ir.TimeRange
		affected, err = t.res.Affected(out.result.Changes)
		if err == nil {
			batch, changed, err = t.ctrl.Refresh(affected)
		}
	}
	if err != nil {
		// The edit is committed; only the snapshot is stale.
		slog.Error("resolution failed after edit", "op", rec.Op, "seq", rec.Seq, "error", err)
		return Update{}, fmt.Errorf("%s: resolve: %w", rec.Op, err)
	}

	snap := t.ctrl.Snapshot()
	u := Update{
		Version:  snap.Version(),
		Edit:     rec,
		Snapshot: snap,
		Warnings: out.result.Warnings,
		Errors:   out.errs,
	}
	if changed {
		u.Batch = &batch
	}

	for _, w := range u.Warnings {
		slog.Warn("edit warning", "op", rec.Op, "seq", rec.Seq, "code", w.Code, "ids", w.IDs)
	}
	for _, e := range u.Errors {
		slog.Warn("edit error", "op", rec.Op, "seq", rec.Seq, "error", e)
	}
	slog.Debug("edit applied",
		"op", rec.Op,
		"seq", rec.Seq,
		"version", u.Version,
		"instructions", batch.Len(),
	)

	t.requestAssets(out.result.Changes)
	t.publish(u)
	return u, nil
}

func cloneArgs(obj ir.IRObject) ir.IRObject {
	if obj == nil {
		return ir.IRObject{}
	}
	out := maps.Clone(obj)
	for k, v := range out {
		switch val := v.(type) {
		case ir.IRObject:
			out[k] = cloneArgs(val)
		case ir.IRArray:
			arr := make(ir.IRArray, len(val))
			for i, elem := range val {
				if o, ok := elem.(ir.IRObject); ok {
					arr[i] = cloneArgs(o)
				} else {
					arr[i] = elem
				}
			}
			out[k] = arr
		}
	}
	return out
}

// Subscribe registers a subscriber. The first update it receives is a seed
// carrying the current snapshot and a batch that inserts every current
// stack into an empty graph; every later update follows an applied edit.
func (t *Timeline) Subscribe() *Subscription {
	t.mu.Lock()
	defer t.mu.Unlock()

	q := newUpdateQueue()
	snap := t.ctrl.Snapshot()
	seed := graphsync.Batch{Version: snap.Version(), Position: snap.Position()}
	for _, id := range snap.Tracks() {
		if instrs := graphsync.Diff(nil, snap.Stack(id)); len(instrs) > 0 {
			seed.Tracks = append(seed.Tracks, graphsync.TrackBatch{Track: id, Instructions: instrs})
		}
	}
	q.Enqueue(Update{Version: snap.Version(), Snapshot: snap, Batch: &seed})
	if t.closed {
		q.Close()
		return &Subscription{q: q, cancel: func() {}}
	}

	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = q
	t.subMu.Unlock()

	return &Subscription{q: q, cancel: func() {
		t.subMu.Lock()
		delete(t.subs, id)
		t.subMu.Unlock()
	}}
}

func (t *Timeline) publish(u Update) {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for _, q := range t.subs {
		q.Enqueue(u)
	}
}

// Close stops asset lookups, waits for their goroutines and closes every
// subscription. Subscribers can still drain what was queued.
func (t *Timeline) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.cancel()
	t.mu.Unlock()

	t.wg.Wait()

	t.subMu.Lock()
	defer t.subMu.Unlock()
	for id, q := range t.subs {
		q.Close()
		delete(t.subs, id)
	}
	slog.Debug("timeline closed")
}

// Snapshot returns the latest published snapshot without locking.
func (t *Timeline) Snapshot() *graphsync.Snapshot {
	return t.ctrl.Snapshot()
}

// Position returns the playhead.
func (t *Timeline) Position() time.Duration {
	return t.ctrl.Position()
}

// LastSeq returns the seq of the last applied edit.
func (t *Timeline) LastSeq() int64 {
	return t.clock.Current()
}

// Curve returns the published curve of an element property, or nil.
func (t *Timeline) Curve(el ir.ElementID, property string) *keyframe.Curve {
	return t.curves.Load(keyframe.Key{Element: el, Property: property})
}

// Evaluate returns an animated property's value at t, relative to the
// element's start. ok is false when the property has no keyframes.
func (t *Timeline) Evaluate(el ir.ElementID, property string, at time.Duration) (float64, bool) {
	c := t.Curve(el, property)
	if c == nil {
		return 0, false
	}
	return c.Evaluate(at)
}

// StackAt resolves one track at an arbitrary instant.
func (t *Timeline) StackAt(track ir.TrackID, at time.Duration) (resolver.Stack, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.res.StackAt(track, at)
}

// Window returns the stack at an instant with its validity window.
func (t *Timeline) Window(track ir.TrackID, at time.Duration) (resolver.Stack, ir.TimeRange, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.res.Window(track, at)
}

// NextChange returns the next instant after at where the track's stack
// changes.
func (t *Timeline) NextChange(track ir.TrackID, at time.Duration) (time.Duration, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.res.NextChange(track, at)
}

// Segments splits span into pieces with a constant stack.
func (t *Timeline) Segments(track ir.TrackID, span ir.TimeRange) ([]resolver.Segment, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.res.Segments(track, span)
}

// Tracks returns the tracks in registration order.
func (t *Timeline) Tracks() []ir.Track {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Tracks()
}

// Layers returns the layers by rank.
func (t *Timeline) Layers() []layers.Layer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.layers.Layers()
}

// Element returns one element.
func (t *Timeline) Element(id ir.ElementID) (ir.TrackElement, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Get(id)
}

// Elements returns every element ordered by track, start and seq.
func (t *Timeline) Elements() []ir.TrackElement {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.store.Elements()
}

// Object returns one timeline object.
func (t *Timeline) Object(id ir.ObjectID) (objects.Object, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.objects.Get(id)
}

// Objects returns every timeline object sorted by id.
func (t *Timeline) Objects() []objects.Object {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.objects.Objects()
}
