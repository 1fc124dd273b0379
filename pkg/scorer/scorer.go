// Package scorer turns backtest statistics and external signals into a
// bounded confidence for a candidate trade.
package scorer

import (
	"math"

	"autopilot-engine/pkg/backtest"
	"autopilot-engine/pkg/signal"
)

// SubScores are the individual terms, each in [0,1].
type SubScores struct {
	Performance float64 `json:"performance"`
	Risk        float64 `json:"risk"`
	External    float64 `json:"external"`
	// ExternalAvailable is false when no reading was available and the
	// external weight was redistributed.
	ExternalAvailable bool `json:"external_available"`
}

// Candidate is a scored strategy for one instrument. The scheduler fills
// the pricing hints before risk evaluation.
type Candidate struct {
	Instrument     string             `json:"instrument"`
	StrategyID     string             `json:"strategy_id"`
	Direction      backtest.Direction `json:"direction"`
	Confidence     float64            `json:"confidence"`
	SubScores      SubScores          `json:"sub_scores"`
	Backtest       backtest.Stats     `json:"backtest"`
	SignalNow      bool               `json:"signal_now"`
	Signals        []signal.Reading   `json:"signals,omitempty"`
	EntryPriceHint float64            `json:"entry_price_hint"`
	ATR            float64            `json:"atr"`
}

// Scorer is immutable and safe for concurrent use.
type Scorer struct {
	cfg Config
}

// New validates cfg and returns a Scorer. Unset tuning parameters take
// their defaults.
func New(cfg Config) (*Scorer, error) {
	cfg.ApplyDefaults()
	offset := *cfg.SharpeOffset
	cfg.SharpeOffset = &offset
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (s *Scorer) Config() Config { return s.cfg }

// Score computes the confidence of one backtest result. Readings that are
// not available are ignored; if none are available the external weight is
// shared between performance and risk in proportion to their weights.
func (s *Scorer) Score(instrument, strategyID string, result backtest.Result, readings []signal.Reading) Candidate {
	stats := result.Stats
	sub := SubScores{
		Performance: s.performance(stats),
		Risk:        clamp01(1 - stats.MaxDrawdown/s.cfg.DrawdownTolerance),
	}

	w := s.cfg.Weights
	if strength, ok := aggregate(readings); ok {
		sub.External = clamp01((strength + 1) / 2)
		sub.ExternalAvailable = true
	} else {
		w = redistribute(w)
	}

	confidence := w.Performance*sub.Performance + w.Risk*sub.Risk
	if sub.ExternalAvailable {
		confidence += w.ExternalSignal * sub.External
	}

	signals := make([]signal.Reading, len(readings))
	copy(signals, readings)
	return Candidate{
		Instrument: instrument,
		StrategyID: strategyID,
		Confidence: clamp01(confidence),
		SubScores:  sub,
		Backtest:   stats,
		SignalNow:  result.SignalNow,
		Signals:    signals,
	}
}

func (s *Scorer) performance(st backtest.Stats) float64 {
	if st.TradeCount < s.cfg.MinTrades {
		return 0
	}
	sharpe := clamp01((st.SharpeLike + *s.cfg.SharpeOffset) / s.cfg.SharpeSpan)
	return clamp01(0.5*clamp01(st.WinRate) + 0.5*sharpe)
}

// aggregate returns the weighted mean strength of the available readings.
// Zero weights fall back to an unweighted mean.
func aggregate(readings []signal.Reading) (float64, bool) {
	var sum, weights, plain float64
	n := 0
	for _, r := range readings {
		if !r.Available || !isFinite(r.Strength) {
			continue
		}
		strength := signal.Clamp(r.Strength)
		n++
		plain += strength
		if r.Weight > 0 && isFinite(r.Weight) {
			sum += r.Weight * strength
			weights += r.Weight
		}
	}
	if n == 0 {
		return 0, false
	}
	if weights > 0 {
		return signal.Clamp(sum / weights), true
	}
	return signal.Clamp(plain / float64(n)), true
}

func redistribute(w Weights) Weights {
	base := w.Performance + w.Risk
	if base <= 0 {
		return Weights{Performance: 0.5, Risk: 0.5}
	}
	scale := (base + w.ExternalSignal) / base
	return Weights{Performance: w.Performance * scale, Risk: w.Risk * scale}
}

// Best returns the highest-confidence candidate. Ties keep the earlier one.
func Best(candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Confidence > best.Confidence {
			best = c
		}
	}
	return best, true
}

func clamp01(v float64) float64 {
	if !isFinite(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
