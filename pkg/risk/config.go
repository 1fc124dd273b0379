package risk

import (
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"autopilot-engine/pkg/confkit"
)

// Config bounds what a single run may propose. Every field is required in
// YAML; there are no implicit defaults.
type Config struct {
	MinScore        float64 `yaml:"min_score" json:"min_score"`
	MaxTradesPerRun int     `yaml:"max_trades_per_run" json:"max_trades_per_run"`
	// MaxOpenPositions of 0 disables the open position cap.
	MaxOpenPositions int             `yaml:"max_open_positions" json:"max_open_positions"`
	RiskPerTradePct  float64         `yaml:"risk_per_trade_pct" json:"risk_per_trade_pct"`
	MaxPositionPct   float64         `yaml:"max_position_pct" json:"max_position_pct"`
	StopMultiplier   float64         `yaml:"stop_multiplier" json:"stop_multiplier"`
	RewardRisk       float64         `yaml:"reward_risk" json:"reward_risk"`
	LotSize          decimal.Decimal `yaml:"lot_size" json:"lot_size"`
}

// DefaultConfig mirrors the stock etc/autopilot.yaml risk section.
func DefaultConfig() Config {
	return Config{
		MinScore:        0.7,
		MaxTradesPerRun: 3,
		RiskPerTradePct: 0.01,
		MaxPositionPct:  0.10,
		StopMultiplier:  2,
		RewardRisk:      2,
		LotSize:         decimal.NewFromInt(1),
	}
}

// LoadConfig reads risk configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open risk config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader decodes and validates a risk config.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read risk config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal risk config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the configuration bounds.
func (c *Config) Validate() error {
	if !confkit.InUnitInterval(c.MinScore) {
		return confkit.Invalidf("risk config: min_score must be within [0,1], got %v", c.MinScore)
	}
	if c.MaxTradesPerRun < 0 {
		return confkit.Invalidf("risk config: max_trades_per_run cannot be negative")
	}
	if c.MaxOpenPositions < 0 {
		return confkit.Invalidf("risk config: max_open_positions cannot be negative")
	}
	for name, v := range map[string]float64{
		"risk_per_trade_pct": c.RiskPerTradePct,
		"max_position_pct":   c.MaxPositionPct,
	} {
		if !(v > 0 && v <= 1) {
			return confkit.Invalidf("risk config: %s must be within (0,1], got %v", name, v)
		}
	}
	if !(c.StopMultiplier > 0) {
		return confkit.Invalidf("risk config: stop_multiplier must be positive")
	}
	if !(c.RewardRisk > 0) {
		return confkit.Invalidf("risk config: reward_risk must be positive")
	}
	if !c.LotSize.IsPositive() {
		return confkit.Invalidf("risk config: lot_size must be positive")
	}
	return nil
}
