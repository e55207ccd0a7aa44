// Package nodecache implements merk.NodeCache: a bounded LRU of raw,
// encoded Merk node payloads, adapted from cache/cache.go's
// IndexTermCache/cache.memory.Cache (an LRU of parsed transaction index
// terms keyed by txid). The shape carries over directly: a small
// interface over golang-lru/v2, sized once at construction, shared across
// every subtree a treecache.Cache opens during one grove operation.
package nodecache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache is an in-memory LRU of raw Merk node payloads, keyed by an
// already-namespaced byte key (merk.Tree.OpenCached prefixes each node key
// with its subtree prefix before calling in, so two subtrees never
// collide).
type Cache struct {
	mu  sync.RWMutex
	lru *lru.Cache[string, []byte]
}

// New creates a node cache holding at most size entries.
func New(size int) (*Cache, error) {
	l, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Get retrieves a cached node payload.
func (c *Cache) Get(key []byte) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lru.Get(string(key))
}

// Put stores a node payload, evicting the least recently used entry if the
// cache is at capacity.
func (c *Cache) Put(key []byte, raw []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(string(key), append([]byte(nil), raw...))
}

// Delete removes a node payload, e.g. after the node it backs is deleted
// from storage.
func (c *Cache) Delete(key []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(string(key))
}
