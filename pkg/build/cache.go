package build

import (
	"sync"

	"github.com/google/uuid"
)

// Cache remembers which source directories were already processed during one
// deployment run. Callers create one per run and share it between every
// Orchestrator and code location used in that run. It is never persisted.
type Cache struct {
	mu    sync.Mutex
	runID string
	seen  map[string]struct{}
	order []string
}

// NewCache creates an empty cache with a fresh run ID.
func NewCache() *Cache {
	return &Cache{
		runID: uuid.NewString(),
		seen:  make(map[string]struct{}),
	}
}

// RunID identifies the deployment run in logs.
func (c *Cache) RunID() string {
	return c.runID
}

// Mark records path and reports whether it was newly added.
func (c *Cache) Mark(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[path]; ok {
		return false
	}
	c.seen[path] = struct{}{}
	c.order = append(c.order, path)
	return true
}

// Seen reports whether path was already processed.
func (c *Cache) Seen(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[path]
	return ok
}

// Paths returns processed paths in the order they were first marked.
func (c *Cache) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}
