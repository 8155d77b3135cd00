// Package state keeps crawl bookkeeping and persists scan results.
package state

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Deduplicator is a set of strings backed by a Bloom filter with an exact
// map behind it, so membership answers are never false positives.
type Deduplicator struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
}

// NewDeduplicator creates a deduplicator sized for estimatedItems.
func NewDeduplicator(estimatedItems int) *Deduplicator {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	return &Deduplicator{
		filter: bloom.NewWithEstimates(uint(estimatedItems), 0.001),
		exact:  make(map[string]struct{}),
	}
}

// Add records key. It reports whether key was new. A negative Bloom
// test skips the map lookup.
func (d *Deduplicator) Add(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.filter.TestString(key) {
		if _, exists := d.exact[key]; exists {
			return false
		}
	}
	d.filter.AddString(key)
	d.exact[key] = struct{}{}
	return true
}

// Count returns the number of distinct keys.
func (d *Deduplicator) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.exact)
}
