package testutil

import (
	"fmt"
	"sync"
)

// IDGenerator hands out "prefix-N" ids with a counter per prefix and
// remembers every id it issued.
//
// Unlike engine.SequentialGenerator it can be reset, so one generator can
// drive the same scenario several times with identical ids.
//
// Thread-safety: all methods are safe for concurrent use.
type IDGenerator struct {
	mu       sync.Mutex
	counters map[string]int
	issued   []string
}

// NewIDGenerator creates a generator whose first id per prefix is
// "prefix-1".
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{counters: make(map[string]int)}
}

// Generate implements engine.IDGenerator.
func (g *IDGenerator) Generate(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[prefix]++
	id := fmt.Sprintf("%s-%d", prefix, g.counters[prefix])
	g.issued = append(g.issued, id)
	return id
}

// Issued returns every id generated so far, in order.
func (g *IDGenerator) Issued() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.issued...)
}

// Reset forgets all counters. The next id per prefix is "prefix-1" again.
func (g *IDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters = make(map[string]int)
	g.issued = nil
}
