package anchors

import (
	"container/list"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// Cache memoizes Detect by document content. Keys are BLAKE2b-256 digests of
// the bytes, so a re-rendered document under the same ref is never served
// stale coordinates. Registries are read-only and shared between callers.
type Cache struct {
	mu      sync.Mutex
	size    int
	order   *list.List
	entries map[[blake2b.Size256]byte]*list.Element

	detect func([]byte) (*Registry, error)
}

type cacheEntry struct {
	key [blake2b.Size256]byte
	reg *Registry
}

// NewCache returns a cache holding up to size registries. A size below 1
// disables caching.
func NewCache(size int) *Cache {
	return &Cache{
		size:    size,
		order:   list.New(),
		entries: make(map[[blake2b.Size256]byte]*list.Element),
		detect:  Detect,
	}
}

// Detect returns the registry of data, computing it on a miss. Errors are
// not cached.
func (c *Cache) Detect(data []byte) (*Registry, error) {
	if c.size < 1 {
		return c.detect(data)
	}
	key := blake2b.Sum256(data)

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		reg := el.Value.(*cacheEntry).reg
		c.mu.Unlock()
		return reg, nil
	}
	c.mu.Unlock()

	reg, err := c.detect(data)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*cacheEntry).reg, nil
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, reg: reg})
	for c.order.Len() > c.size {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.entries, last.Value.(*cacheEntry).key)
	}
	return reg, nil
}

// Len returns the number of cached registries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
