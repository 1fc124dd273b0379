package market

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/zeromicro/go-zero/core/logx"
)

const defaultRetention = 1000

// SeriesStore caches bars per instrument and interval. Each Refresh pulls the
// newest bars from the provider, merges them last-write-wins into the cached
// series and trims the result to the retention window.
type SeriesStore struct {
	mu         sync.RWMutex
	provider   Provider
	retention  int
	archive    Archive
	serveStale bool
	series     map[string]*PriceSeries
}

// StoreOption customises a SeriesStore.
type StoreOption func(*SeriesStore)

// WithArchive persists merged bars and allows seeding from history.
func WithArchive(a Archive) StoreOption {
	return func(s *SeriesStore) { s.archive = a }
}

// WithServeStale lets Refresh fall back to cached or archived bars when the
// provider fails. Off by default: a failed fetch is DATA_UNAVAILABLE.
func WithServeStale(enabled bool) StoreOption {
	return func(s *SeriesStore) { s.serveStale = enabled }
}

// NewSeriesStore constructs a store backed by provider.
func NewSeriesStore(provider Provider, retention int, opts ...StoreOption) *SeriesStore {
	if retention <= 0 {
		retention = defaultRetention
	}
	s := &SeriesStore{
		provider:  provider,
		retention: retention,
		series:    make(map[string]*PriceSeries),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func storeKey(instrument, interval string) string {
	return strings.ToUpper(strings.TrimSpace(instrument)) + "|" + strings.TrimSpace(interval)
}

// Refresh fetches the newest lookback bars and returns a copy of the merged
// series, limited to lookback bars.
func (s *SeriesStore) Refresh(ctx context.Context, instrument, interval string, lookback int) (*PriceSeries, error) {
	if s.provider == nil {
		return nil, Unavailable(instrument, errors.New("no provider configured"))
	}
	fetched, err := s.provider.FetchBars(ctx, instrument, interval, lookback)
	if err == nil && fetched.Len() == 0 {
		err = Unavailable(instrument, errors.New("empty series"))
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err = Unavailable(instrument, err)
		if s.serveStale {
			if stale := s.stale(ctx, instrument, interval, lookback); stale.Len() > 0 {
				logx.WithContext(ctx).Infof("market store: serving %d stale bars for %s: %v", stale.Len(), instrument, err)
				return stale, nil
			}
		}
		return nil, err
	}

	key := storeKey(instrument, interval)
	s.mu.Lock()
	cur, ok := s.series[key]
	if !ok {
		cur = &PriceSeries{Instrument: instrument, Interval: interval}
		s.series[key] = cur
	}
	cur.Merge(fetched.Bars)
	cur.Trim(s.retention)
	out := cur.Tail(lookback)
	s.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.SaveBars(ctx, instrument, interval, fetched.Bars); err != nil {
			logx.WithContext(ctx).Errorf("market store: archive %s: %v", instrument, err)
		}
	}
	return out, nil
}

// Get returns a copy of the cached series.
func (s *SeriesStore) Get(instrument, interval string) (*PriceSeries, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cur, ok := s.series[storeKey(instrument, interval)]
	if !ok {
		return nil, false
	}
	return cur.Clone(), true
}

// Warm seeds the cache from the archive. Instruments without history are
// skipped.
func (s *SeriesStore) Warm(ctx context.Context, instruments []string, interval string) error {
	if s.archive == nil {
		return nil
	}
	for _, inst := range instruments {
		bars, err := s.archive.LoadBars(ctx, inst, interval, s.retention)
		if err != nil {
			return err
		}
		if len(bars) == 0 {
			continue
		}
		s.mu.Lock()
		key := storeKey(inst, interval)
		cur, ok := s.series[key]
		if !ok {
			cur = &PriceSeries{Instrument: inst, Interval: interval}
			s.series[key] = cur
		}
		cur.Merge(bars)
		cur.Trim(s.retention)
		s.mu.Unlock()
	}
	return nil
}

func (s *SeriesStore) stale(ctx context.Context, instrument, interval string, lookback int) *PriceSeries {
	if cached, ok := s.Get(instrument, interval); ok && cached.Len() > 0 {
		return cached.Tail(lookback)
	}
	if s.archive == nil {
		return nil
	}
	bars, err := s.archive.LoadBars(ctx, instrument, interval, lookback)
	if err != nil {
		logx.WithContext(ctx).Errorf("market store: load archive %s: %v", instrument, err)
		return nil
	}
	return NewPriceSeries(instrument, interval, bars)
}
