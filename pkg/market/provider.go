package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrDataUnavailable signals that a provider could not supply bars for an
// instrument, either because it is unreachable or because it returned an
// empty series. Callers skip the instrument for the current run.
var ErrDataUnavailable = errors.New("market: data unavailable")

// Provider exposes historical OHLCV bars.
type Provider interface {
	// FetchBars returns up to lookback of the newest bars for the instrument.
	FetchBars(ctx context.Context, instrument, interval string, lookback int) (*PriceSeries, error)
}

// Unavailable wraps cause so that errors.Is(err, ErrDataUnavailable) holds.
func Unavailable(instrument string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrDataUnavailable, instrument)
	}
	if errors.Is(cause, ErrDataUnavailable) {
		return cause
	}
	return fmt.Errorf("%w: %s: %w", ErrDataUnavailable, instrument, cause)
}

// StaticProvider serves fixed series from memory. Instruments are matched
// case-insensitively; the interval argument is ignored.
type StaticProvider struct {
	mu     sync.RWMutex
	series map[string]*PriceSeries
}

// NewStaticProvider builds a StaticProvider from the supplied series.
func NewStaticProvider(series ...*PriceSeries) *StaticProvider {
	p := &StaticProvider{series: make(map[string]*PriceSeries, len(series))}
	for _, s := range series {
		p.Set(s)
	}
	return p
}

// Set replaces the series served for s.Instrument.
func (p *StaticProvider) Set(s *PriceSeries) {
	if s == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.series[strings.ToUpper(s.Instrument)] = s.Clone()
}

// FetchBars implements Provider.
func (p *StaticProvider) FetchBars(ctx context.Context, instrument, interval string, lookback int) (*PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	s, ok := p.series[strings.ToUpper(instrument)]
	p.mu.RUnlock()
	if !ok || s.Len() == 0 {
		return nil, Unavailable(instrument, nil)
	}
	return s.Tail(lookback), nil
}
