package karma

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/emilythestrangee/baraza/backend/internal/models"
)

// cache holds recently read or computed karma. Entries expire after ttl so a
// triple persisted by another process (the procedure, karmactl) shows up
// without an explicit purge.
//
// A positive ttl starts an expiry goroutine that never stops, so a cache is
// meant to live as long as the process.
type cache struct {
	mu  sync.Mutex
	lru *expirable.LRU[uuid.UUID, models.Karma]
}

func newCache(size int, ttl time.Duration) *cache {
	if size <= 0 {
		return nil
	}
	return &cache{lru: expirable.NewLRU[uuid.UUID, models.Karma](size, nil, ttl)}
}

func (c *cache) get(id uuid.UUID) (models.Karma, bool) {
	if c == nil {
		return models.Karma{}, false
	}
	return c.lru.Get(id)
}

// set stores a freshly computed value.
func (c *cache) set(id uuid.UUID, k models.Karma) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(id, k)
}

// fill stores a value read from the database unless a computation has
// already cached a newer one.
func (c *cache) fill(id uuid.UUID, k models.Karma) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.lru.Contains(id) {
		c.lru.Add(id, k)
	}
}

func (c *cache) forget(id uuid.UUID) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(id)
}
