package scorer

import (
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"autopilot-engine/pkg/confkit"
)

const (
	defaultSharpeOffset      = 0.5
	defaultSharpeSpan        = 2.0
	defaultDrawdownTolerance = 1.0

	weightTolerance = 1e-6
)

// Weights blend the sub-scores into a confidence. They must sum to 1.
type Weights struct {
	Performance    float64 `yaml:"performance" json:"performance"`
	Risk           float64 `yaml:"risk" json:"risk"`
	ExternalSignal float64 `yaml:"external_signal" json:"external_signal"`
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	return w.Performance + w.Risk + w.ExternalSignal
}

// Config tunes the scorer.
type Config struct {
	Weights Weights `yaml:"weights" json:"weights"`
	// SharpeOffset defaults to 0.5 when unset; 0 is a valid offset.
	SharpeOffset      *float64 `yaml:"sharpe_offset,omitempty" json:"sharpe_offset,omitempty"`
	SharpeSpan        float64  `yaml:"sharpe_span" json:"sharpe_span"`
	DrawdownTolerance float64  `yaml:"drawdown_tolerance" json:"drawdown_tolerance"`
	// MinTrades zeroes the performance term for thinner backtests.
	MinTrades int `yaml:"min_trades" json:"min_trades"`
}

// DefaultConfig returns a complete configuration with the stock weights.
func DefaultConfig() Config {
	cfg := Config{Weights: Weights{Performance: 0.5, Risk: 0.3, ExternalSignal: 0.2}}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig reads scorer configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scorer config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader decodes, defaults and validates a scorer config.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read scorer config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal scorer config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset tuning parameters. Zero span and tolerance
// mean unset. Weights are never defaulted or renormalised.
func (c *Config) ApplyDefaults() {
	if c.SharpeOffset == nil {
		offset := defaultSharpeOffset
		c.SharpeOffset = &offset
	}
	if c.SharpeSpan == 0 {
		c.SharpeSpan = defaultSharpeSpan
	}
	if c.DrawdownTolerance == 0 {
		c.DrawdownTolerance = defaultDrawdownTolerance
	}
}

// Validate rejects weights that do not sum to 1 and non-positive spans.
func (c *Config) Validate() error {
	w := c.Weights
	for name, v := range map[string]float64{
		"performance":     w.Performance,
		"risk":            w.Risk,
		"external_signal": w.ExternalSignal,
	} {
		if v < 0 || !isFinite(v) {
			return confkit.Invalidf("scorer config: weight %s must be a non-negative number, got %v", name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightTolerance {
		return confkit.Invalidf("scorer config: weights must sum to 1, got %.6f", sum)
	}
	if c.SharpeOffset == nil || !isFinite(*c.SharpeOffset) {
		return confkit.Invalidf("scorer config: sharpe_offset must be a finite number")
	}
	if c.SharpeSpan <= 0 {
		return confkit.Invalidf("scorer config: sharpe_span must be positive")
	}
	if c.DrawdownTolerance <= 0 {
		return confkit.Invalidf("scorer config: drawdown_tolerance must be positive")
	}
	if c.MinTrades < 0 {
		return confkit.Invalidf("scorer config: min_trades cannot be negative")
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
