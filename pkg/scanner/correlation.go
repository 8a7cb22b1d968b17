package scanner

import (
	"sync"

	"github.com/sentinelsec/sentinel-core/pkg/types"
)

// CorrelationCache pairs in-flight requests with the response that arrives
// later. An entry lives from request processing until the matching response
// is processed; a request that never sees a response stays cached for the
// life of the process, which is why Len feeds a gauge.
type CorrelationCache struct {
	mu      sync.RWMutex
	entries map[string]*types.RequestContext
}

func NewCorrelationCache() *CorrelationCache {
	return &CorrelationCache{
		entries: make(map[string]*types.RequestContext),
	}
}

// Put stores a request context under its correlation id, replacing any
// previous entry with the same id.
func (c *CorrelationCache) Put(req *types.RequestContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[req.ID] = req
}

// Get returns the cached request context for an id without removing it.
func (c *CorrelationCache) Get(id string) (*types.RequestContext, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	req, ok := c.entries[id]
	return req, ok
}

// Remove deletes and returns the entry for an id in one step, so response
// processing cannot leave a consumed entry behind.
func (c *CorrelationCache) Remove(id string) (*types.RequestContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.entries[id]
	if ok {
		delete(c.entries, id)
	}
	return req, ok
}

func (c *CorrelationCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
