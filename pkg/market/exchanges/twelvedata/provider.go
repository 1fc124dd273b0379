package twelvedata

import (
	"context"
	"errors"
	"fmt"

	"autopilot-engine/pkg/market"
)

// ProviderName is the market config type for this provider.
const ProviderName = "twelvedata"

func init() {
	market.RegisterProvider(ProviderName, func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		opts := []Option{WithBaseURL(cfg.BaseURL), WithAPIKey(cfg.APIKey)}
		if cfg.MaxRetries > 0 {
			opts = append(opts, WithMaxRetries(cfg.MaxRetries))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, WithHTTPClient(newHTTPClient(cfg.Timeout)))
		}
		return NewProvider(NewClient(opts...)), nil
	})
}

// Provider adapts Client to market.Provider.
type Provider struct {
	client *Client
}

// NewProvider wraps client.
func NewProvider(client *Client) *Provider {
	if client == nil {
		client = NewClient()
	}
	return &Provider{client: client}
}

// FetchBars implements market.Provider. Any failure other than context
// cancellation is reported as market.ErrDataUnavailable.
func (p *Provider) FetchBars(ctx context.Context, instrument, interval string, lookback int) (*market.PriceSeries, error) {
	resp, err := p.client.TimeSeries(ctx, instrument, interval, lookback)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, market.Unavailable(instrument, err)
	}
	bars := make([]market.Bar, 0, len(resp.Values))
	for _, v := range resp.Values {
		bar, err := v.Bar()
		if err != nil {
			return nil, market.Unavailable(instrument, fmt.Errorf("twelvedata: %w", err))
		}
		bars = append(bars, bar)
	}
	series := market.NewPriceSeries(instrument, interval, bars)
	if series.Len() == 0 {
		return nil, market.Unavailable(instrument, errors.New("twelvedata: empty time series"))
	}
	return series.Tail(lookback), nil
}
