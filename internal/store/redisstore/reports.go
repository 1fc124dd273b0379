package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"autopilot-engine/internal/cache"
	"autopilot-engine/pkg/autopilot"
)

const defaultHistoryLimit = 200

// ReportStore keeps the last run report and a capped history list.
type ReportStore struct {
	rdb   *redis.Client
	limit int64
}

// NewReportStore returns a store capping history at limit entries.
func NewReportStore(rdb *redis.Client, limit int64) *ReportStore {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &ReportStore{rdb: rdb, limit: limit}
}

// Deliver implements autopilot.ReportSink.
func (s *ReportStore) Deliver(ctx context.Context, report *autopilot.RunReport) error {
	if report == nil {
		return errors.New("redisstore: nil report")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redisstore: encode run %s: %w", report.RunID, err)
	}
	if err := s.rdb.Set(ctx, cache.LastRunKey(), data, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set last run: %w", err)
	}
	if err := s.rdb.LPush(ctx, cache.HistoryKey(), data).Err(); err != nil {
		return fmt.Errorf("redisstore: push history: %w", err)
	}
	if err := s.rdb.LTrim(ctx, cache.HistoryKey(), 0, s.limit-1).Err(); err != nil {
		return fmt.Errorf("redisstore: trim history: %w", err)
	}
	return nil
}

// Last returns the most recent report, or nil when none was stored.
func (s *ReportStore) Last(ctx context.Context) (*autopilot.RunReport, error) {
	data, err := s.rdb.Get(ctx, cache.LastRunKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get last run: %w", err)
	}
	var r autopilot.RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("redisstore: decode last run: %w", err)
	}
	return &r, nil
}

// History returns up to limit reports, newest first. Undecodable entries
// are skipped.
func (s *ReportStore) History(ctx context.Context, limit int64) ([]*autopilot.RunReport, error) {
	if limit <= 0 || limit > s.limit {
		limit = s.limit
	}
	raw, err := s.rdb.LRange(ctx, cache.HistoryKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: read history: %w", err)
	}
	out := make([]*autopilot.RunReport, 0, len(raw))
	for _, item := range raw {
		var r autopilot.RunReport
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}
