package model

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator hands out identifiers for cuts, sets, jumbos and suggestions.
// It is injected so callers control determinism.
type IDGenerator interface {
	NewID(kind string) string
}

// UUIDGenerator produces short random ids such as "cut-1a2b3c4d".
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(kind string) string {
	return kind + "-" + uuid.New().String()[:8]
}

// SequenceGenerator produces "cut-1", "cut-2", ... per kind. Each instance
// keeps its own counters and is safe for concurrent use.
type SequenceGenerator struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewSequenceGenerator returns a generator starting at 1 for every kind.
func NewSequenceGenerator() *SequenceGenerator {
	return &SequenceGenerator{counts: make(map[string]int)}
}

func (g *SequenceGenerator) NewID(kind string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counts[kind]++
	return fmt.Sprintf("%s-%d", kind, g.counts[kind])
}
