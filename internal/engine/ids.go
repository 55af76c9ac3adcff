package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Id prefixes passed to IDGenerator.Generate.
const (
	PrefixElement = "el"
	PrefixObject  = "obj"
)

// IDGenerator names elements and objects that an edit creates without an
// explicit id. Generated ids are written back into the edit record, so
// replay never calls the generator.
type IDGenerator interface {
	Generate(prefix string) string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids. The prefix is
// ignored.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a hyphenated UUIDv7.
func (UUIDv7Generator) Generate(string) string {
	return uuid.Must(uuid.NewV7()).String()
}

// SequentialGenerator numbers ids per prefix: "el-1", "el-2", "obj-1".
// Output depends only on call order, which makes it the default for the
// scenario harness and golden traces.
type SequentialGenerator struct {
	mu    sync.Mutex
	count map[string]int
}

// NewSequentialGenerator creates a generator with all counters at zero.
func NewSequentialGenerator() *SequentialGenerator {
	return &SequentialGenerator{count: make(map[string]int)}
}

// Generate returns the next id for prefix.
func (g *SequentialGenerator) Generate(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.count[prefix]++
	return fmt.Sprintf("%s-%d", prefix, g.count[prefix])
}

// FixedGenerator returns predetermined ids in order regardless of prefix.
// It panics once exhausted so that a test creating more ids than expected
// fails loudly.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
func (g *FixedGenerator) Generate(string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
