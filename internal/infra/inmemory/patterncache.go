package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/dvloznov/savings-autopilot/internal/clock"
	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// PatternCache is an in-memory engine.PatternCache with per-entry TTLs.
// Expired entries are dropped lazily on read.
type PatternCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	clk     clock.Clock
}

type cacheEntry struct {
	analysis  *domain.IncomeAnalysis
	expiresAt time.Time
}

// NewPatternCache creates a cache on the system clock.
func NewPatternCache() *PatternCache {
	return NewPatternCacheWithClock(clock.Real{})
}

// NewPatternCacheWithClock creates a cache with an injected clock.
func NewPatternCacheWithClock(clk clock.Clock) *PatternCache {
	return &PatternCache{entries: make(map[string]cacheEntry), clk: clk}
}

// Get implements engine.PatternCache.
func (c *PatternCache) Get(ctx context.Context, key string) (*domain.IncomeAnalysis, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if c.clk.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return entry.analysis, true
}

// Put implements engine.PatternCache.
func (c *PatternCache) Put(ctx context.Context, key string, analysis *domain.IncomeAnalysis, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		analysis:  analysis,
		expiresAt: c.clk.Now().Add(ttl),
	}
}

var _ engine.PatternCache = (*PatternCache)(nil)
