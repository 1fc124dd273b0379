// Package redisstore keeps run reports, the paper portfolio and a bar cache
// in Redis.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/config"
)

const pingTimeout = 5 * time.Second

// NewClient creates a Redis client and pings the server. It returns nil
// without error when no address is configured.
func NewClient(cfg config.RedisConf) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	logx.Infof("redis connected to %s", cfg.Addr)
	return rdb, nil
}
