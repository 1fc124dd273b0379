package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/cache"
	"autopilot-engine/pkg/portfolio"
)

// PortfolioStore persists ledger snapshots so the paper account survives
// restarts.
type PortfolioStore struct {
	rdb *redis.Client
}

func NewPortfolioStore(rdb *redis.Client) *PortfolioStore {
	return &PortfolioStore{rdb: rdb}
}

// Save writes st without expiry.
func (s *PortfolioStore) Save(ctx context.Context, st portfolio.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redisstore: encode portfolio: %w", err)
	}
	if err := s.rdb.Set(ctx, cache.PortfolioKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: save portfolio: %w", err)
	}
	return nil
}

// Load returns the stored snapshot. ok is false when nothing was saved.
func (s *PortfolioStore) Load(ctx context.Context) (st portfolio.State, ok bool, err error) {
	data, err := s.rdb.Get(ctx, cache.PortfolioKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return portfolio.State{}, false, nil
	}
	if err != nil {
		return portfolio.State{}, false, fmt.Errorf("redisstore: load portfolio: %w", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return portfolio.State{}, false, fmt.Errorf("redisstore: decode portfolio: %w", err)
	}
	return st, true, nil
}

// Attach saves every change the ledger reports. Failures are logged; the
// in-memory ledger stays authoritative.
func (s *PortfolioStore) Attach(ctx context.Context, ledger *portfolio.Ledger) {
	ledger.OnChange(func(st portfolio.State) {
		if err := s.Save(ctx, st); err != nil {
			logx.WithContext(ctx).Errorf("portfolio snapshot: %v", err)
		}
	})
}
