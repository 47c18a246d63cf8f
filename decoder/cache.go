package decoder

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Cache memoizes decode results, keyed by payload identity and signature.
// Concurrent decodes of the same key collapse into one through the
// single-flight group; completed results live in a bounded LRU.
type Cache struct {
	entries *lru.Cache[string, *Decoded]
	flight  singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewCache creates a cache bounded to capacity entries.
func NewCache(capacity int) (*Cache, error) {
	entries, err := lru.New[string, *Decoded](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

// Key builds the cache key for a payload/signature pair.
func Key(payloadID, signature string) string {
	return payloadID + "|" + signature
}

// Get returns the cached result for key, computing and storing it with
// decode on a miss. Decode errors are not cached.
func (c *Cache) Get(key string, decode func() (*Decoded, error)) (*Decoded, error) {
	if d, ok := c.entries.Get(key); ok {
		c.hits.Add(1)
		return d, nil
	}
	c.misses.Add(1)

	v, err, _ := c.flight.Do(key, func() (any, error) {
		if d, ok := c.entries.Get(key); ok {
			return d, nil
		}
		d, err := decode()
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, d)
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Decoded), nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return c.entries.Len() }

// Hits returns the cumulative hit count.
func (c *Cache) Hits() uint64 { return c.hits.Load() }

// Misses returns the cumulative miss count.
func (c *Cache) Misses() uint64 { return c.misses.Load() }
