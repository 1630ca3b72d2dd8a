package event

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator issues event ids that are unique for the life of the process.
type IDGenerator struct {
	mu     sync.Mutex
	issued map[string]struct{}
	source func() string
}

// NewIDGenerator creates a generator backed by random UUIDs.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		issued: make(map[string]struct{}),
		source: func() string { return strings.ReplaceAll(uuid.NewString(), "-", "") },
	}
}

// SetSource overrides the random source (for testing).
func (g *IDGenerator) SetSource(fn func() string) {
	g.source = fn
}

// New returns an id never returned before by g.
func (g *IDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for {
		id := g.source()
		if _, seen := g.issued[id]; seen {
			continue
		}
		g.issued[id] = struct{}{}
		return id
	}
}
