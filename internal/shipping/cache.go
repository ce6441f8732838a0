package shipping

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/spikeboom/love-cosmetics-website-sub000/internal/domain"
)

type ttlCache[V any] struct {
	ttl       time.Duration
	now       func() time.Time
	mu        sync.RWMutex
	m         map[string]cacheEntry[V]
	nextSweep time.Time
}

type cacheEntry[V any] struct {
	value   V
	expires time.Time
}

func newTTLCache[V any](ttl time.Duration, now func() time.Time) *ttlCache[V] {
	return &ttlCache[V]{
		ttl: ttl,
		now: now,
		m:   make(map[string]cacheEntry[V]),
	}
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	var zero V
	if c == nil {
		return zero, false
	}
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return zero, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[V]) Put(key string, value V) {
	if c == nil {
		return
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	// Expired entries are dropped at most once per ttl.
	if !now.Before(c.nextSweep) {
		for k, entry := range c.m {
			if now.After(entry.expires) {
				delete(c.m, k)
			}
		}
		c.nextSweep = now.Add(c.ttl)
	}
	c.m[key] = cacheEntry[V]{value: value, expires: now.Add(c.ttl)}
}

// quoteCacheKey fingerprints the destination and the physical attributes the carrier prices on.
func quoteCacheKey(postalCode string, items []domain.CartLineItem) string {
	return postalCode + "|" + ItemsKey(items)
}

// ItemsKey fingerprints the items a quote was computed for, independent of their order.
func ItemsKey(items []domain.CartLineItem) string {
	parts := make([]string, len(items))
	for i, item := range items {
		pkg := item.Package
		parts[i] = strings.Join([]string{
			strings.ToUpper(strings.TrimSpace(item.ProductID)),
			fmt.Sprintf("%d", item.Quantity),
			fmt.Sprintf("%d", item.UnitPrice),
			fmt.Sprintf("%d", pkg.WeightGrams),
			fmt.Sprintf("%gx%gx%g", pkg.WidthCM, pkg.HeightCM, pkg.LengthCM),
		}, ",")
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}
