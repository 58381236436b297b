package fdsn

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/seismic-noise-etl/internal/domain"
	"github.com/couchcryptid/seismic-noise-etl/internal/observability"
)

// SensitivityFetcher looks up instrument gain for a stream on a day.
type SensitivityFetcher interface {
	FetchSensitivity(ctx context.Context, id domain.StreamID, day time.Time) (float64, error)
}

// CachedSensitivity wraps a SensitivityFetcher with an in-memory LRU cache.
// Instrument gain changes only when hardware is swapped, so entries are
// keyed per stream and calendar year rather than per day.
type CachedSensitivity struct {
	inner   SensitivityFetcher
	metrics *observability.Metrics

	mu         sync.Mutex
	maxEntries int
	order      *list.List               // front = most recently used
	entries    map[string]*list.Element // value: *cacheEntry
}

type cacheEntry struct {
	key   string
	value float64
}

// NewCachedSensitivity creates a cache decorator around a fetcher.
func NewCachedSensitivity(inner SensitivityFetcher, maxEntries int, metrics *observability.Metrics) *CachedSensitivity {
	return &CachedSensitivity{
		inner:      inner,
		metrics:    metrics,
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *CachedSensitivity) FetchSensitivity(ctx context.Context, id domain.StreamID, day time.Time) (float64, error) {
	key := fmt.Sprintf("%s|%d", id, day.UTC().Year())
	if v, ok := c.get(key); ok {
		c.metrics.SensitivityCache.WithLabelValues("hit").Inc()
		return v, nil
	}
	c.metrics.SensitivityCache.WithLabelValues("miss").Inc()

	v, err := c.inner.FetchSensitivity(ctx, id, day)
	if err != nil {
		return 0, err
	}
	c.put(key, v)
	return v, nil
}

func (c *CachedSensitivity) get(key string) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return 0, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

func (c *CachedSensitivity) put(key string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).value = value
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, value: value})

	if c.order.Len() > c.maxEntries {
		tail := c.order.Back()
		c.order.Remove(tail)
		delete(c.entries, tail.Value.(*cacheEntry).key)
	}
}
