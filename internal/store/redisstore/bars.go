package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"autopilot-engine/internal/cache"
	"autopilot-engine/pkg/market"
)

const defaultBarsTTL = time.Minute

// CachingProvider decorates a market.Provider with a Redis cache keyed by
// instrument, interval and lookback. Cache failures fall through to the
// inner provider.
type CachingProvider struct {
	inner market.Provider
	rdb   *redis.Client
	ttl   time.Duration
}

// NewCachingProvider wraps inner. A nil client disables caching.
func NewCachingProvider(rdb *redis.Client, ttl time.Duration, inner market.Provider) *CachingProvider {
	if ttl <= 0 {
		ttl = defaultBarsTTL
	}
	return &CachingProvider{inner: inner, rdb: rdb, ttl: ttl}
}

// FetchBars implements market.Provider.
func (c *CachingProvider) FetchBars(ctx context.Context, instrument, interval string, lookback int) (*market.PriceSeries, error) {
	if c.rdb == nil {
		return c.inner.FetchBars(ctx, instrument, interval, lookback)
	}
	key := cache.BarsKey(instrument, interval, lookback)

	if b, err := c.rdb.Get(ctx, key).Bytes(); err == nil && len(b) > 0 {
		var bars []market.Bar
		if err := json.Unmarshal(b, &bars); err == nil && len(bars) > 0 {
			return market.NewPriceSeries(instrument, interval, bars), nil
		}
		_ = c.rdb.Del(ctx, key).Err()
	}

	series, err := c.inner.FetchBars(ctx, instrument, interval, lookback)
	if err != nil {
		return nil, err
	}
	if series.Len() > 0 {
		if b, err := json.Marshal(series.Bars); err == nil {
			_ = c.rdb.Set(ctx, key, b, c.ttl).Err()
		}
	}
	return series, nil
}
