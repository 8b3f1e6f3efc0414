package youtilitics

import "sync"

// ReadingCache holds the most recently fetched batch per service id.
// Entries are overwritten on every fetch and never evicted.
type ReadingCache struct {
	mu      sync.RWMutex
	batches map[string][]Reading
}

func NewReadingCache() *ReadingCache {
	return &ReadingCache{batches: make(map[string][]Reading)}
}

// Put replaces the batch for a service
func (c *ReadingCache) Put(serviceID string, readings []Reading) {
	batch := make([]Reading, len(readings))
	copy(batch, readings)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches[serviceID] = batch
}

// Get returns a copy of the batch for a service
func (c *ReadingCache) Get(serviceID string) []Reading {
	c.mu.RLock()
	defer c.mu.RUnlock()

	batch := c.batches[serviceID]
	out := make([]Reading, len(batch))
	copy(out, batch)
	return out
}
