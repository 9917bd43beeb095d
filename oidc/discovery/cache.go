package discovery

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Cache holds discovery documents keyed by well-known URL.
type Cache interface {
	Get(key string) (*Document, bool)
	Set(key string, doc *Document)
}

// NoCache never holds anything, so every lookup goes to the network.
type NoCache struct{}

func (NoCache) Get(string) (*Document, bool) { return nil, false }
func (NoCache) Set(string, *Document)        {}

// TTLCache keeps each document for a fixed time from when it was fetched.
type TTLCache struct {
	items *ttlcache.Cache[string, Document]
}

func NewTTLCache(ttl time.Duration) *TTLCache {
	return &TTLCache{
		items: ttlcache.New[string, Document](
			ttlcache.WithTTL[string, Document](ttl),
			// Reads don't extend the lifetime
			ttlcache.WithDisableTouchOnHit[string, Document](),
		),
	}
}

// Get returns a copy, so the cached value can't be mutated by callers.
func (c *TTLCache) Get(key string) (*Document, bool) {
	item := c.items.Get(key)
	if item == nil || item.IsExpired() {
		return nil, false
	}
	doc := item.Value()
	return &doc, true
}

func (c *TTLCache) Set(key string, doc *Document) {
	if doc == nil {
		return
	}
	c.items.Set(key, *doc, ttlcache.DefaultTTL)
}
