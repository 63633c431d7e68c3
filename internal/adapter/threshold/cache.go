package threshold

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/flood-trigger-service/internal/domain"
	"github.com/couchcryptid/flood-trigger-service/internal/observability"
)

// Loader resolves a station's threshold for its basin's return period.
type Loader interface {
	LoadThreshold(ctx context.Context, country string, basin domain.BasinConfig, station domain.Station) (domain.Threshold, error)
}

type resetter interface {
	Reset()
}

// CachedStore wraps a Loader with an in-memory LRU cache.
type CachedStore struct {
	inner   Loader
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedStore creates a cache decorator around a threshold loader.
func NewCachedStore(inner Loader, maxEntries int, metrics *observability.Metrics) *CachedStore {
	return &CachedStore{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedStore) LoadThreshold(ctx context.Context, country string, basin domain.BasinConfig, station domain.Station) (domain.Threshold, error) {
	key := fmt.Sprintf("%s|%s|%s|%g|%t", country, basin.ID, station.ID, basin.Policy.ReturnPeriod, basin.Policy.Interpolate)
	if th, ok := c.cache.get(key); ok {
		c.metrics.ThresholdCache.WithLabelValues("hit").Inc()
		return th, nil
	}
	c.metrics.ThresholdCache.WithLabelValues("miss").Inc()

	th, err := c.inner.LoadThreshold(ctx, country, basin, station)
	if err != nil {
		// Failures are not cached so a file that appears later is picked up.
		return th, err
	}
	c.cache.put(key, th)
	return th, nil
}

// Reset empties the cache and any grid cache held by the wrapped loader.
func (c *CachedStore) Reset() {
	c.cache.purge()
	if r, ok := c.inner.(resetter); ok {
		r.Reset()
	}
}

// lruCache is a simple thread-safe LRU cache of thresholds.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value domain.Threshold
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) (domain.Threshold, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.Threshold{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.Threshold) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.head, c.tail = nil, nil
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
