package application

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSummaryCacheStoresAndReturnsCopies(t *testing.T) {
	current := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newSummaryCache(time.Minute, 4, func() time.Time { return current })

	original := Summary{
		Income:     decimal.RequireFromString("100"),
		Categories: []CategoryTotal{{Category: "salary", Total: decimal.RequireFromString("100")}},
	}
	cache.Store("key", original)

	// Mutating the original slice should not affect the cached copy.
	original.Categories[0].Category = "mutated"

	cached, ok := cache.Get("key")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if cached.Categories[0].Category != "salary" {
		t.Fatalf("expected cached category to remain unchanged, got %s", cached.Categories[0].Category)
	}

	cached.Categories[0].Category = "changed"
	again, ok := cache.Get("key")
	if !ok {
		t.Fatalf("expected cache hit on second read")
	}
	if again.Categories[0].Category != "salary" {
		t.Fatalf("expected cache to return independent copy, got %s", again.Categories[0].Category)
	}
}

func TestSummaryCacheExpiresEntries(t *testing.T) {
	current := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newSummaryCache(time.Second, 4, func() time.Time { return current })

	cache.Store("key", Summary{})
	if _, ok := cache.Get("key"); !ok {
		t.Fatalf("expected cache hit before expiry")
	}

	current = current.Add(2 * time.Second)
	if _, ok := cache.Get("key"); ok {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestSummaryCacheEvictsOldestWhenFull(t *testing.T) {
	current := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := newSummaryCache(time.Minute, 2, func() time.Time { return current })

	cache.Store("first", Summary{})
	current = current.Add(time.Second)
	cache.Store("second", Summary{})
	current = current.Add(time.Second)
	cache.Store("third", Summary{})

	if _, ok := cache.Get("first"); ok {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if _, ok := cache.Get("third"); !ok {
		t.Fatalf("expected newest entry to be cached")
	}
}

func TestSummaryCacheInvalidate(t *testing.T) {
	cache := newSummaryCache(time.Minute, 4, time.Now)
	cache.Store("key", Summary{})
	cache.Invalidate()
	if _, ok := cache.Get("key"); ok {
		t.Fatalf("expected cache to be empty after invalidation")
	}
}
