// Package cache provides named durable caches for the offline cache agent.
// A provider manages any number of named caches; each cache is a persistent
// mapping from request identity to the serialized response bytes most
// recently stored for it. Caches survive agent restarts until explicitly
// deleted by name.
package cache

import (
	"sort"
	"sync"
)

// CacheProvider manages named caches in one storage namespace.
//
// Implementations must be thread-safe!
type CacheProvider interface {
	// Open returns the cache with the given name, creating it if absent.
	// An opened cache must show up in Names even while empty.
	Open(name string) (Cache, error)
	// Names returns the names of all caches known to the provider.
	Names() ([]string, error)
	// Delete removes the named cache and all of its entries.
	// Deleting an unknown name is not an error.
	Delete(name string) error
}

// Cache is one named cache. It stores and retrieves []byte values, which
// represent serialized HTTP responses.
//
// Implementations must be thread-safe!
type Cache interface {
	// Get returns the stored bytes for the given key, if they exist.
	// It also returns a boolean indicating whether retrieval was successful.
	Get(key string) ([]byte, bool, error)
	// Put stores the given bytes under the given key, replacing any
	// previous value.
	Put(key string, bytes []byte) error
	// Purge removes the entry for the given key.
	Purge(key string) error
	// AllKeys calls the given callback for each key in the cache.
	AllKeys(cb func(string)) error
	// Has checks if the specified key exists in the cache.
	Has(key string) bool
}

// MemProvider is an in-memory provider, mostly useful for tests and for
// running without durable storage.
type MemProvider struct {
	mu     sync.RWMutex
	caches map[string]map[string][]byte
}

func NewMemProvider() *MemProvider {
	return &MemProvider{
		caches: make(map[string]map[string][]byte),
	}
}

func (m *MemProvider) Open(name string) (Cache, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.caches[name]; !ok {
		m.caches[name] = make(map[string][]byte)
	}
	return &memCache{provider: m, name: name}, nil
}

func (m *MemProvider) Names() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemProvider) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.caches, name)
	return nil
}

type memCache struct {
	provider *MemProvider
	name     string
}

func (c *memCache) Get(key string) ([]byte, bool, error) {
	c.provider.mu.RLock()
	defer c.provider.mu.RUnlock()
	entries, ok := c.provider.caches[c.name]
	if !ok {
		return nil, false, nil
	}
	bytes, ok := entries[key]
	return bytes, ok, nil
}

func (c *memCache) Put(key string, bytes []byte) error {
	c.provider.mu.Lock()
	defer c.provider.mu.Unlock()
	entries, ok := c.provider.caches[c.name]
	if !ok {
		// the cache was deleted after this handle was opened
		entries = make(map[string][]byte)
		c.provider.caches[c.name] = entries
	}
	entries[key] = bytes
	return nil
}

func (c *memCache) Purge(key string) error {
	c.provider.mu.Lock()
	defer c.provider.mu.Unlock()
	if entries, ok := c.provider.caches[c.name]; ok {
		delete(entries, key)
	}
	return nil
}

func (c *memCache) AllKeys(cb func(string)) error {
	c.provider.mu.RLock()
	keys := make([]string, 0, len(c.provider.caches[c.name]))
	for key := range c.provider.caches[c.name] {
		keys = append(keys, key)
	}
	c.provider.mu.RUnlock()
	sort.Strings(keys)
	for _, key := range keys {
		cb(key)
	}
	return nil
}

func (c *memCache) Has(key string) bool {
	c.provider.mu.RLock()
	defer c.provider.mu.RUnlock()
	entries, ok := c.provider.caches[c.name]
	if !ok {
		return false
	}
	_, ok = entries[key]
	return ok
}
