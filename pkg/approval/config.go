package approval

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"autopilot-engine/pkg/confkit"
)

// Config selects the gate.
type Config struct {
	// Type is one of auto, deny, manual, threshold or webhook.
	Type          string          `yaml:"type"`
	MinConfidence float64         `yaml:"min_confidence"`
	MaxNotional   decimal.Decimal `yaml:"max_notional"`
	URL           string          `yaml:"url"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// LoadConfig reads approval configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open approval config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader decodes and validates a Config.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read approval config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal approval config: %w", err)
	}
	if err := cfg.Normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalise applies defaults and parses the timeout.
func (c *Config) Normalise() error {
	c.Type = strings.ToLower(strings.TrimSpace(c.Type))
	if c.Type == "" {
		c.Type = "manual"
	}
	c.URL = strings.TrimSpace(os.ExpandEnv(c.URL))
	c.TimeoutRaw = strings.TrimSpace(c.TimeoutRaw)
	if c.TimeoutRaw != "" {
		d, err := confkit.ParsePositiveDuration("approval config", "timeout", c.TimeoutRaw)
		if err != nil {
			return err
		}
		c.Timeout = d
	}
	return nil
}

// Validate checks type specific fields.
func (c *Config) Validate() error {
	switch c.Type {
	case "auto", "deny", "manual":
	case "threshold":
		if !confkit.InUnitInterval(c.MinConfidence) {
			return confkit.Invalidf("approval config: min_confidence must be within [0,1]")
		}
		if c.MaxNotional.IsNegative() {
			return confkit.Invalidf("approval config: max_notional cannot be negative")
		}
	case "webhook":
		if c.URL == "" {
			return confkit.Invalidf("approval config: webhook gate requires url")
		}
	default:
		return confkit.Invalidf("approval config: unsupported type %q", c.Type)
	}
	return nil
}

// Build returns the configured gate.
func (c *Config) Build() Gate {
	switch c.Type {
	case "auto":
		return Static(Approved)
	case "deny":
		return Static(Rejected)
	case "threshold":
		return Threshold{MinConfidence: c.MinConfidence, MaxNotional: c.MaxNotional}
	case "webhook":
		return NewWebhook(c.URL, c.Timeout)
	default:
		return Static(Pending)
	}
}
