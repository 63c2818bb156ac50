package permissions

import (
	"context"
	"sync"
	"time"

	"github.com/iot-for-tillgenglighet/signage-hub/internal/pkg/models"
)

//Entry is one cached resolution. Verified is false when the permission was
//derived from a directory failure rather than an actual membership answer.
type Entry struct {
	Permission models.Permission `json:"permission"`
	ResolvedAt time.Time         `json:"resolvedAt"`
	Verified   bool              `json:"verified"`
}

//Cache stores resolved permissions keyed by user email
type Cache interface {
	Get(ctx context.Context, email string) (Entry, bool)
	Set(ctx context.Context, email string, entry Entry)
	Delete(ctx context.Context, email string)
	//Sweep evicts entries for which expired returns true and reports how many went
	Sweep(ctx context.Context, expired func(Entry) bool) int
}

//MemoryCache is a process local Cache
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]Entry
}

//NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]Entry{}}
}

func (c *MemoryCache) Get(ctx context.Context, email string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[email]
	return e, ok
}

func (c *MemoryCache) Set(ctx context.Context, email string, entry Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[email] = entry
}

func (c *MemoryCache) Delete(ctx context.Context, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, email)
}

func (c *MemoryCache) Sweep(ctx context.Context, expired func(Entry) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for email, e := range c.entries {
		if expired(e) {
			delete(c.entries, email)
			removed++
		}
	}
	return removed
}

//Len returns the number of cached entries
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
