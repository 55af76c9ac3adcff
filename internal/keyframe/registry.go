package keyframe

import (
	"maps"
	"sync"
	"sync/atomic"

	"github.com/roach88/stackline/internal/ir"
)

// Key identifies the curve driving one property of one element.
type Key struct {
	Element  ir.ElementID
	Property string
}

// Registry publishes curves copy-on-write.
//
// Thread-safety model:
//   - Load/ForElement: lock-free, safe from any goroutine, never blocked
//     by writers
//   - Store/Delete/DeleteElement: serialized by an internal mutex; the
//     engine additionally calls them only from its edit path
//
// Every write publishes a fresh map, so a reader iterating the result of
// ForElement sees one consistent version.
type Registry struct {
	mu      sync.Mutex
	current atomic.Pointer[map[Key]*Curve]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := map[Key]*Curve{}
	r.current.Store(&empty)
	return r
}

func (r *Registry) snapshot() map[Key]*Curve {
	return *r.current.Load()
}

// Load returns the published curve for key, or nil.
func (r *Registry) Load(key Key) *Curve {
	return r.snapshot()[key]
}

// Len returns the number of published curves.
func (r *Registry) Len() int {
	return len(r.snapshot())
}

// ForElement returns every published curve of an element keyed by property.
func (r *Registry) ForElement(id ir.ElementID) map[string]*Curve {
	out := make(map[string]*Curve)
	for k, c := range r.snapshot() {
		if k.Element == id {
			out[k.Property] = c
		}
	}
	return out
}

// Store publishes c for key. A nil curve deletes the key.
func (r *Registry) Store(key Key, c *Curve) {
	r.update(func(m map[Key]*Curve) {
		if c == nil {
			delete(m, key)
			return
		}
		m[key] = c
	})
}

// StoreAll publishes several curves in one version.
func (r *Registry) StoreAll(curves map[Key]*Curve) {
	r.update(func(m map[Key]*Curve) {
		for k, c := range curves {
			if c == nil {
				delete(m, k)
				continue
			}
			m[k] = c
		}
	})
}

// DeleteElement drops every curve owned by an element.
func (r *Registry) DeleteElement(id ir.ElementID) {
	r.update(func(m map[Key]*Curve) {
		for k := range m {
			if k.Element == id {
				delete(m, k)
			}
		}
	})
}

func (r *Registry) update(fn func(map[Key]*Curve)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := maps.Clone(r.snapshot())
	fn(next)
	r.current.Store(&next)
}
