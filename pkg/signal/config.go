package signal

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"autopilot-engine/pkg/confkit"
	"autopilot-engine/pkg/llm"
	"autopilot-engine/pkg/market"
)

// Config lists the external signal sources. It is embedded in the
// autopilot config under "signals".
type Config struct {
	Sources []SourceConfig `yaml:"sources" json:"sources"`
}

// SourceConfig configures one source.
type SourceConfig struct {
	Name   string  `yaml:"name" json:"name"`
	Type   string  `yaml:"type" json:"type"`
	Weight float64 `yaml:"weight" json:"weight"`

	// static
	Values map[string]float64 `yaml:"values,omitempty" json:"values,omitempty"`

	// sentiment
	Model      string              `yaml:"model,omitempty" json:"model,omitempty"`
	Headlines  map[string][]string `yaml:"headlines,omitempty" json:"headlines,omitempty"`
	PromptFile string              `yaml:"prompt_file,omitempty" json:"prompt_file,omitempty"`
	CacheTTL   time.Duration       `yaml:"-" json:"-"`
	CacheRaw   string              `yaml:"cache_ttl,omitempty" json:"cache_ttl,omitempty"`
	Timeout    time.Duration       `yaml:"-" json:"-"`
	TimeoutRaw string              `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// SeriesSource returns cached bars for prompt context.
type SeriesSource interface {
	Get(instrument, interval string) (*market.PriceSeries, bool)
}

// Deps carries the collaborators builders may need.
type Deps struct {
	LLM      llm.ChatClient
	Series   SeriesSource
	Interval string
}

// Builder constructs a Provider from configuration.
type Builder func(cfg SourceConfig, deps Deps) (Provider, error)

var (
	builders   = map[string]Builder{}
	buildersMu sync.RWMutex
)

// Register makes a source type available to Build.
func Register(typeName string, b Builder) {
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[strings.ToLower(strings.TrimSpace(typeName))] = b
}

func lookup(typeName string) (Builder, bool) {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	b, ok := builders[strings.ToLower(strings.TrimSpace(typeName))]
	return b, ok
}

func init() {
	Register("static", func(cfg SourceConfig, _ Deps) (Provider, error) {
		return NewStatic(cfg.Name, cfg.Weight, cfg.Values), nil
	})
}

// Normalise applies defaults and parses durations.
func (c *Config) Normalise() error {
	for i := range c.Sources {
		src := &c.Sources[i]
		src.Name = strings.TrimSpace(src.Name)
		src.Type = strings.ToLower(strings.TrimSpace(src.Type))
		if src.Name == "" {
			src.Name = src.Type
		}
		if src.Weight == 0 {
			src.Weight = 1
		}
		if src.CacheRaw != "" {
			d, err := confkit.ParsePositiveDuration("signal config", src.Name+".cache_ttl", src.CacheRaw)
			if err != nil {
				return err
			}
			src.CacheTTL = d
		}
		if src.TimeoutRaw != "" {
			d, err := confkit.ParsePositiveDuration("signal config", src.Name+".timeout", src.TimeoutRaw)
			if err != nil {
				return err
			}
			src.Timeout = d
		}
	}
	return nil
}

// Validate checks source types, names and weights.
func (c *Config) Validate() error {
	seen := map[string]struct{}{}
	for _, src := range c.Sources {
		if src.Type == "" {
			return confkit.Invalidf("signal config: source %q must specify type", src.Name)
		}
		if _, ok := lookup(src.Type); !ok {
			return confkit.Invalidf("signal config: source %q has unsupported type %q", src.Name, src.Type)
		}
		if src.Weight < 0 {
			return confkit.Invalidf("signal config: source %q weight cannot be negative", src.Name)
		}
		if _, dup := seen[src.Name]; dup {
			return confkit.Invalidf("signal config: duplicate source %q", src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	return nil
}

// Build instantiates every configured source in order.
func (c *Config) Build(deps Deps) ([]Provider, error) {
	out := make([]Provider, 0, len(c.Sources))
	for _, src := range c.Sources {
		b, ok := lookup(src.Type)
		if !ok {
			return nil, fmt.Errorf("signal source %s: unsupported type %q", src.Name, src.Type)
		}
		p, err := b(src, deps)
		if err != nil {
			return nil, fmt.Errorf("signal source %s: %w", src.Name, err)
		}
		out = append(out, p)
	}
	return out, nil
}
