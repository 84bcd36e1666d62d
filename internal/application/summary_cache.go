package application

import (
	"sync"
	"time"
)

// summaryCache keeps recently computed ledger summaries so that repeated
// dashboard reads do not rescan the transaction table. Writers invalidate it.
type summaryCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	entries    map[string]summaryCacheEntry
}

type summaryCacheEntry struct {
	summary   Summary
	expiresAt time.Time
}

func newSummaryCache(ttl time.Duration, maxEntries int, now func() time.Time) *summaryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 64
	}
	if now == nil {
		now = time.Now
	}
	return &summaryCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]summaryCacheEntry),
	}
}

func (c *summaryCache) Get(key string) (Summary, bool) {
	if c == nil {
		return Summary{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Summary{}, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return Summary{}, false
	}
	return cloneSummary(entry.summary), true
}

func (c *summaryCache) Store(key string, summary Summary) {
	if c == nil {
		return
	}
	cloned := cloneSummary(summary)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = summaryCacheEntry{summary: cloned, expiresAt: expiry}
}

func (c *summaryCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = make(map[string]summaryCacheEntry)
	c.mu.Unlock()
}

func (c *summaryCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *summaryCache) evictOneLocked() {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range c.entries {
		if oldestKey == "" || entry.expiresAt.Before(oldest) {
			oldestKey, oldest = key, entry.expiresAt
		}
	}
	delete(c.entries, oldestKey)
}

func cloneSummary(summary Summary) Summary {
	out := summary
	out.From = cloneTime(summary.From)
	out.To = cloneTime(summary.To)
	if summary.Categories != nil {
		out.Categories = make([]CategoryTotal, len(summary.Categories))
		copy(out.Categories, summary.Categories)
	}
	return out
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func summaryCacheKey(from, to *time.Time) string {
	key := ""
	if from != nil {
		key += from.Format(time.DateOnly)
	}
	key += "|"
	if to != nil {
		key += to.Format(time.DateOnly)
	}
	return key
}
