// Package signal supplies external directional readings that feed the
// scorer alongside backtest statistics.
package signal

import (
	"context"
	"math"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/mr"
)

// Reading is one source's view on an instrument. Strength lies in [-1,1];
// negative is bearish. Unavailable readings carry no strength.
type Reading struct {
	Source    string    `json:"source"`
	Strength  float64   `json:"strength"`
	Available bool      `json:"available"`
	Weight    float64   `json:"weight"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Provider reads an external signal.
type Provider interface {
	Name() string
	Read(ctx context.Context, instrument string) (Reading, error)
}

// Unavailable returns the reading recorded when a provider fails.
func Unavailable(source string, weight float64, detail string) Reading {
	return Reading{Source: source, Weight: weight, Detail: detail}
}

// Clamp bounds a strength to [-1,1]; non-finite values become 0.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

// Collect queries all providers concurrently and returns their readings in
// provider order. A provider error yields Available=false rather than
// failing the collection.
func Collect(ctx context.Context, providers []Provider, instrument string) []Reading {
	readings := make([]Reading, len(providers))
	if len(providers) == 0 {
		return readings
	}
	fns := make([]func(), len(providers))
	for i, p := range providers {
		i, p := i, p
		fns[i] = func() {
			r, err := p.Read(ctx, instrument)
			if err != nil {
				logx.WithContext(ctx).Infof("signal: %s unavailable for %s: %v", p.Name(), instrument, err)
				readings[i] = Unavailable(p.Name(), r.Weight, err.Error())
				return
			}
			if r.Source == "" {
				r.Source = p.Name()
			}
			if r.Available {
				r.Strength = Clamp(r.Strength)
			} else {
				r.Strength = 0
			}
			readings[i] = r
		}
	}
	mr.FinishVoid(fns...)
	return readings
}
