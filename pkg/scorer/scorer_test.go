package scorer

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopilot-engine/pkg/backtest"
	"autopilot-engine/pkg/confkit"
	"autopilot-engine/pkg/signal"
)

func newScorer(t *testing.T, mutate func(*Config)) *Scorer {
	t.Helper()
	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func result(winRate, sharpe, dd float64, trades int) backtest.Result {
	return backtest.Result{Stats: backtest.Stats{
		TradeCount:  trades,
		WinRate:     winRate,
		SharpeLike:  sharpe,
		MaxDrawdown: dd,
	}}
}

func TestScoreBlendsSubScores(t *testing.T) {
	s := newScorer(t, nil)
	readings := []signal.Reading{{Source: "bias", Strength: 0.5, Available: true, Weight: 1}}

	c := s.Score("AAPL", "rsi_reversion", result(0.6, 0.5, 0.2, 10), readings)

	assert.Equal(t, "AAPL", c.Instrument)
	assert.Equal(t, "rsi_reversion", c.StrategyID)
	assert.InDelta(t, 0.55, c.SubScores.Performance, 1e-12)
	assert.InDelta(t, 0.8, c.SubScores.Risk, 1e-12)
	assert.InDelta(t, 0.75, c.SubScores.External, 1e-12)
	assert.True(t, c.SubScores.ExternalAvailable)
	assert.InDelta(t, 0.665, c.Confidence, 1e-12)
	require.Len(t, c.Signals, 1)
}

func TestScoreRedistributesWhenNoSignalAvailable(t *testing.T) {
	s := newScorer(t, nil)
	readings := []signal.Reading{{Source: "news", Strength: 0.9, Available: false, Weight: 1}}

	c := s.Score("AAPL", "x", result(0.6, 0.5, 0.2, 10), readings)

	assert.False(t, c.SubScores.ExternalAvailable)
	assert.Zero(t, c.SubScores.External)
	// 0.55*0.625 + 0.8*0.375
	assert.InDelta(t, 0.64375, c.Confidence, 1e-12)

	none := s.Score("AAPL", "x", result(0.6, 0.5, 0.2, 10), nil)
	assert.InDelta(t, c.Confidence, none.Confidence, 1e-12)
}

func TestScoreWeightsReadings(t *testing.T) {
	s := newScorer(t, nil)
	readings := []signal.Reading{
		{Strength: 0.8, Available: true, Weight: 3},
		{Strength: -0.4, Available: true, Weight: 1},
		{Strength: -1, Available: false, Weight: 10},
	}
	c := s.Score("AAPL", "x", result(0.6, 0.5, 0.2, 10), readings)
	assert.InDelta(t, 0.75, c.SubScores.External, 1e-12)
}

func TestScoreMinTrades(t *testing.T) {
	s := newScorer(t, func(c *Config) { c.MinTrades = 5 })
	readings := []signal.Reading{{Strength: 0.5, Available: true, Weight: 1}}

	c := s.Score("AAPL", "x", result(0.6, 0.5, 0.2, 3), readings)
	assert.Zero(t, c.SubScores.Performance)
	assert.InDelta(t, 0.39, c.Confidence, 1e-12)
}

func TestScoreStaysInUnitInterval(t *testing.T) {
	s := newScorer(t, nil)
	inputs := []backtest.Result{
		result(0, 0, 0, 0),
		result(1, 1e9, 0, 100),
		result(-3, -1e9, 5, 2),
		result(math.NaN(), math.Inf(1), math.NaN(), 4),
		result(math.Inf(-1), math.NaN(), math.Inf(1), 4),
	}
	strengths := []float64{-5, -1, 0, 1, 7, math.NaN()}
	for _, in := range inputs {
		for _, st := range strengths {
			c := s.Score("X", "y", in, []signal.Reading{{Strength: st, Available: true, Weight: 1}})
			assert.GreaterOrEqual(t, c.Confidence, 0.0)
			assert.LessOrEqual(t, c.Confidence, 1.0)
			for _, v := range []float64{c.SubScores.Performance, c.SubScores.Risk, c.SubScores.External} {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
			}
		}
	}
}

func TestScoreDoesNotShareReadings(t *testing.T) {
	s := newScorer(t, nil)
	readings := []signal.Reading{{Source: "a", Strength: 0.1, Available: true, Weight: 1}}
	c := s.Score("X", "y", result(0.5, 0, 0, 2), readings)
	readings[0].Source = "mutated"
	assert.Equal(t, "a", c.Signals[0].Source)
}

func TestRedistributeAllExternal(t *testing.T) {
	w := redistribute(Weights{ExternalSignal: 1})
	assert.InDelta(t, 1.0, w.Sum(), 1e-12)
}

func TestBestPrefersEarlierOnTie(t *testing.T) {
	best, ok := Best([]Candidate{
		{StrategyID: "a", Confidence: 0.4},
		{StrategyID: "b", Confidence: 0.7},
		{StrategyID: "c", Confidence: 0.7},
	})
	require.True(t, ok)
	assert.Equal(t, "b", best.StrategyID)

	_, ok = Best(nil)
	assert.False(t, ok)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"weights under one", func(c *Config) { c.Weights.Risk = 0.2 }},
		{"weights over one", func(c *Config) { c.Weights.Performance = 0.6 }},
		{"negative weight", func(c *Config) { c.Weights = Weights{Performance: 1.2, Risk: -0.2} }},
		{"nan weight", func(c *Config) { c.Weights.Risk = math.NaN() }},
		{"span", func(c *Config) { c.SharpeSpan = -1 }},
		{"tolerance", func(c *Config) { c.DrawdownTolerance = -0.5 }},
		{"min trades", func(c *Config) { c.MinTrades = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := New(cfg)
			require.Error(t, err)
			assert.ErrorIs(t, err, confkit.ErrConfigInvalid)
		})
	}
}

func TestWeightsWithinTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Performance: 0.5, Risk: 0.3, ExternalSignal: 0.2000004}
	_, err := New(cfg)
	assert.NoError(t, err)
}

func TestLoadConfigFromReader(t *testing.T) {
	cfg, err := LoadConfigFromReader(strings.NewReader(`
weights:
  performance: 0.6
  risk: 0.4
  external_signal: 0
sharpe_offset: 0
min_trades: 3
`))
	require.NoError(t, err)
	require.NotNil(t, cfg.SharpeOffset)
	assert.Equal(t, 0.0, *cfg.SharpeOffset)
	assert.Equal(t, defaultSharpeSpan, cfg.SharpeSpan)
	assert.Equal(t, defaultDrawdownTolerance, cfg.DrawdownTolerance)
	assert.Equal(t, 3, cfg.MinTrades)

	cfg, err = LoadConfigFromReader(strings.NewReader("weights: {performance: 1}\n"))
	require.NoError(t, err)
	assert.Equal(t, defaultSharpeOffset, *cfg.SharpeOffset)

	_, err = LoadConfigFromReader(strings.NewReader("weights: {performance: 0.5, risk: 0.4}\n"))
	assert.ErrorIs(t, err, confkit.ErrConfigInvalid)
}
