package exchange

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"autopilot-engine/pkg/confkit"
	"autopilot-engine/pkg/portfolio"
)

// Config captures configuration for one or more executors.
type Config struct {
	Default   string                     `yaml:"default"`
	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// ProviderConfig describes how to construct a specific executor.
type ProviderConfig struct {
	Type string `yaml:"type"`

	// sim
	FeeBps      float64 `yaml:"fee_bps"`
	SlippageBps float64 `yaml:"slippage_bps"`

	// rest
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// Deps carries shared state builders may read.
type Deps struct {
	Ledger *portfolio.Ledger
}

// ProviderBuilder constructs an Executor from configuration.
type ProviderBuilder func(name string, cfg *ProviderConfig, deps Deps) (Executor, error)

var (
	providerRegistry   = make(map[string]ProviderBuilder)
	providerRegistryMu sync.RWMutex
)

// RegisterProvider associates a builder with an executor type.
func RegisterProvider(typeName string, builder ProviderBuilder) {
	providerRegistryMu.Lock()
	defer providerRegistryMu.Unlock()
	providerRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func lookupProviderBuilder(typeName string) (ProviderBuilder, bool) {
	providerRegistryMu.RLock()
	defer providerRegistryMu.RUnlock()
	builder, ok := providerRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return builder, ok
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exchange config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read exchange config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal exchange config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	c.Default = strings.TrimSpace(c.Default)
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &ProviderConfig{}
			c.Providers[name] = provider
		}
		provider.expandEnv()
		if err := provider.parseDurations(name); err != nil {
			return err
		}
	}
	if c.Default == "" && len(c.Providers) == 1 {
		for name := range c.Providers {
			c.Default = name
		}
	}
	return nil
}

func (p *ProviderConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.BaseURL = strings.TrimSpace(os.ExpandEnv(p.BaseURL))
	p.APIKey = strings.TrimSpace(os.ExpandEnv(p.APIKey))
	p.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.TimeoutRaw))
}

func (p *ProviderConfig) parseDurations(name string) error {
	if p.TimeoutRaw == "" {
		p.Timeout = 0
		return nil
	}
	d, err := confkit.ParsePositiveDuration("exchange config", fmt.Sprintf("providers.%s.timeout", name), p.TimeoutRaw)
	if err != nil {
		return err
	}
	p.Timeout = d
	return nil
}

// Validate ensures all providers have sane configuration.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return confkit.Invalidf("exchange config: providers cannot be empty")
	}
	if c.Default == "" {
		return confkit.Invalidf("exchange config: default provider is required when several are defined")
	}
	if _, ok := c.Providers[c.Default]; !ok {
		return confkit.Invalidf("exchange config: default provider %q not defined", c.Default)
	}
	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return confkit.Invalidf("exchange config: provider name cannot be empty")
		}
		if err := provider.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) validate(name string) error {
	if p == nil {
		return confkit.Invalidf("exchange config: provider %s is nil", name)
	}
	if strings.TrimSpace(p.Type) == "" {
		return confkit.Invalidf("exchange config: provider %s must specify type", name)
	}
	if _, ok := lookupProviderBuilder(p.Type); !ok {
		return confkit.Invalidf("exchange config: provider %s has unsupported type %q", name, p.Type)
	}
	if p.FeeBps < 0 || p.SlippageBps < 0 {
		return confkit.Invalidf("exchange config: provider %s fee_bps and slippage_bps cannot be negative", name)
	}
	if strings.EqualFold(p.Type, "rest") && p.BaseURL == "" {
		return confkit.Invalidf("exchange config: provider %s requires base_url", name)
	}
	return nil
}

// BuildDefault instantiates the default executor.
func (c *Config) BuildDefault(deps Deps) (Executor, error) {
	providerCfg := c.Providers[c.Default]
	if providerCfg == nil {
		return nil, fmt.Errorf("exchange: default provider %q not defined", c.Default)
	}
	builder, ok := lookupProviderBuilder(providerCfg.Type)
	if !ok {
		return nil, fmt.Errorf("exchange provider %s: unsupported type %q", c.Default, providerCfg.Type)
	}
	executor, err := builder(c.Default, providerCfg, deps)
	if err != nil {
		return nil, fmt.Errorf("exchange provider %s: %w", c.Default, err)
	}
	return executor, nil
}
