// Package redis caches income analyses in Redis so repeated executions for
// the same account within a batch window skip re-scanning transactions.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dvloznov/savings-autopilot/internal/domain"
	"github.com/dvloznov/savings-autopilot/internal/engine"
)

// keyPrefix namespaces cache entries in a shared Redis.
const keyPrefix = "savings-autopilot:"

// PatternCache implements engine.PatternCache on Redis. The cache is
// advisory: every failure degrades to a miss and is logged at debug level.
type PatternCache struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewPatternCache creates a cache on the given client.
func NewPatternCache(client *redis.Client, log zerolog.Logger) *PatternCache {
	return &PatternCache{client: client, log: log}
}

// Get implements engine.PatternCache.
func (c *PatternCache) Get(ctx context.Context, key string) (*domain.IncomeAnalysis, bool) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug().Err(err).Str("key", key).Msg("Pattern cache read failed")
		}
		return nil, false
	}

	var analysis domain.IncomeAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("Pattern cache entry corrupt, dropping")
		c.client.Del(ctx, keyPrefix+key)
		return nil, false
	}
	return &analysis, true
}

// Put implements engine.PatternCache.
func (c *PatternCache) Put(ctx context.Context, key string, analysis *domain.IncomeAnalysis, ttl time.Duration) {
	raw, err := json.Marshal(analysis)
	if err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("Pattern cache encode failed")
		return
	}
	if err := c.client.Set(ctx, keyPrefix+key, raw, ttl).Err(); err != nil {
		c.log.Debug().Err(err).Str("key", key).Msg("Pattern cache write failed")
	}
}

var _ engine.PatternCache = (*PatternCache)(nil)
