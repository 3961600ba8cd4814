package storage

import (
	"sync/atomic"

	"github.com/janelia-flyem/mrf/dvid"

	"github.com/coocood/freecache"
	"github.com/dustin/go-humanize"
)

// Cached is a read-through, write-through cache in front of a Store.  Values
// larger than 1/1024 of the cache size are not cached and always read from the
// underlying store.
type Cached struct {
	Store
	cache *freecache.Cache

	attempts uint64
	hits     uint64
}

// NewCached wraps store with a cache of approximately numBytes.  If numBytes is not
// positive the store is returned unwrapped.
func NewCached(store Store, numBytes int) Store {
	if numBytes <= 0 {
		return store
	}
	dvid.Infof("Created freecache of ~ %s in front of %s\n", humanize.Bytes(uint64(numBytes)), store)
	return &Cached{
		Store: store,
		cache: freecache.NewCache(numBytes),
	}
}

func (c *Cached) String() string {
	return "cached " + c.Store.String()
}

// Get returns the value from cache if present, otherwise from the store.
func (c *Cached) Get(key []byte) ([]byte, error) {
	atomic.AddUint64(&c.attempts, 1)
	value, err := c.cache.Get(key)
	if err == nil {
		atomic.AddUint64(&c.hits, 1)
		return value, nil
	}
	if err != freecache.ErrNotFound {
		return nil, err
	}
	if value, err = c.Store.Get(key); err != nil || value == nil {
		return value, err
	}
	c.set(key, value)
	return value, nil
}

// Put writes to the store and then the cache.
func (c *Cached) Put(key, value []byte) error {
	if err := c.Store.Put(key, value); err != nil {
		c.cache.Del(key)
		return err
	}
	c.set(key, value)
	return nil
}

// Delete removes the key from the cache and the store.
func (c *Cached) Delete(key []byte) error {
	c.cache.Del(key)
	return c.Store.Delete(key)
}

// Stats returns the number of Get calls and how many were served from cache.
func (c *Cached) Stats() (attempts, hits uint64) {
	return atomic.LoadUint64(&c.attempts), atomic.LoadUint64(&c.hits)
}

func (c *Cached) set(key, value []byte) {
	if err := c.cache.Set(key, value, 0); err != nil {
		c.cache.Del(key)
		dvid.Debugf("Not caching %s value for key %q: %v\n", humanize.Bytes(uint64(len(value))), key, err)
	}
}
