package autopilot

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"autopilot-engine/pkg/backtest"
	"autopilot-engine/pkg/confkit"
	"autopilot-engine/pkg/market/indicators"
	"autopilot-engine/pkg/risk"
	"autopilot-engine/pkg/scorer"
	"autopilot-engine/pkg/signal"
)

// Mode decides whether approved proposals reach the executor.
type Mode string

const (
	// ModePropose stops after the approval gate.
	ModePropose Mode = "propose"
	// ModeExecute sends approved proposals to the executor.
	ModeExecute Mode = "execute"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModePropose || m == ModeExecute
}

// Config is the schema of etc/autopilot.yaml.
type Config struct {
	Autopilot  SchedulerConfig         `yaml:"autopilot"`
	Backtest   backtest.Options        `yaml:"backtest"`
	Strategies []backtest.StrategySpec `yaml:"strategies"`
	Scorer     scorer.Config           `yaml:"scorer"`
	Risk       risk.Config             `yaml:"risk"`
	Signals    signal.Config           `yaml:"signals"`

	baseDir string
}

// SchedulerConfig drives the run loop.
type SchedulerConfig struct {
	Watchlist      []string        `yaml:"watchlist"`
	Interval       string          `yaml:"interval"`
	Lookback       int             `yaml:"lookback"`
	MaxConcurrency int             `yaml:"max_concurrency"`
	Mode           Mode            `yaml:"mode"`
	StartingCash   decimal.Decimal `yaml:"starting_cash"`
	RunOnStart     bool            `yaml:"run_on_start"`
	// ATRIndicator names the series the risk engine sizes stops with.
	ATRIndicator string `yaml:"atr_indicator"`
	// SnapshotIndicators are computed for every instrument and reported
	// with their newest values.
	SnapshotIndicators []string `yaml:"snapshot_indicators"`
	JournalDir         string   `yaml:"journal_dir"`

	Schedule   time.Duration `yaml:"-"`
	RunTimeout time.Duration `yaml:"-"`

	ScheduleRaw   string `yaml:"schedule"`
	RunTimeoutRaw string `yaml:"run_timeout"`
}

// DefaultSnapshotIndicators are reported when the config lists none.
var DefaultSnapshotIndicators = []string{"sma_20", "sma_50", "ema_20", "rsi_14", "macd_hist", "atr_14"}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open autopilot config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file, filepath.Dir(path))
}

// LoadConfigFromReader constructs a Config from a reader with the provided base directory.
func LoadConfigFromReader(r io.Reader, baseDir string) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read autopilot config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal autopilot config: %w", err)
	}
	cfg.baseDir = baseDir

	cfg.applyDefaults()
	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	cfg.expandFields()
	if err := cfg.Signals.Normalise(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	a := &c.Autopilot
	if strings.TrimSpace(a.Interval) == "" {
		a.Interval = "1d"
	}
	if a.Lookback == 0 {
		a.Lookback = 300
	}
	if a.MaxConcurrency == 0 {
		a.MaxConcurrency = 4
	}
	if a.Mode == "" {
		a.Mode = ModePropose
	}
	if a.StartingCash.IsZero() {
		a.StartingCash = decimal.NewFromInt(100000)
	}
	if strings.TrimSpace(a.ATRIndicator) == "" {
		a.ATRIndicator = "atr_14"
	}
	if len(a.SnapshotIndicators) == 0 {
		a.SnapshotIndicators = append([]string(nil), DefaultSnapshotIndicators...)
	}
	if strings.TrimSpace(a.ScheduleRaw) == "" {
		a.ScheduleRaw = "15m"
	}
	if strings.TrimSpace(a.RunTimeoutRaw) == "" {
		a.RunTimeoutRaw = "5m"
	}
	c.Scorer.ApplyDefaults()
}

func (c *Config) parseDurations() error {
	var err error
	c.Autopilot.Schedule, err = confkit.ParsePositiveDuration("autopilot config", "autopilot.schedule", c.Autopilot.ScheduleRaw)
	if err != nil {
		return err
	}
	c.Autopilot.RunTimeout, err = confkit.ParsePositiveDuration("autopilot config", "autopilot.run_timeout", c.Autopilot.RunTimeoutRaw)
	return err
}

func (c *Config) expandFields() {
	a := &c.Autopilot
	a.Interval = strings.TrimSpace(a.Interval)
	a.Mode = Mode(strings.ToLower(strings.TrimSpace(string(a.Mode))))
	a.ATRIndicator = strings.ToLower(strings.TrimSpace(a.ATRIndicator))
	a.Watchlist = normaliseWatchlist(a.Watchlist)
	a.JournalDir = c.resolvePath(a.JournalDir)
	for i := range c.Signals.Sources {
		src := &c.Signals.Sources[i]
		src.PromptFile = c.resolvePath(src.PromptFile)
	}
}

// normaliseWatchlist upper-cases symbols and drops blanks and repeats while
// keeping the configured order.
func normaliseWatchlist(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		sym := strings.ToUpper(strings.TrimSpace(os.ExpandEnv(raw)))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

func (c *Config) resolvePath(path string) string {
	path = strings.TrimSpace(os.ExpandEnv(path))
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.baseDir, path)
}

// Validate ensures configuration sanity.
func (c *Config) Validate() error {
	a := c.Autopilot
	if len(a.Watchlist) == 0 {
		return confkit.Invalidf("autopilot config: autopilot.watchlist cannot be empty")
	}
	if a.Lookback < 2 {
		return confkit.Invalidf("autopilot config: autopilot.lookback must be at least 2, got %d", a.Lookback)
	}
	if a.MaxConcurrency < 1 {
		return confkit.Invalidf("autopilot config: autopilot.max_concurrency must be positive, got %d", a.MaxConcurrency)
	}
	if !a.Mode.Valid() {
		return confkit.Invalidf("autopilot config: autopilot.mode must be propose or execute, got %q", a.Mode)
	}
	if !a.StartingCash.IsPositive() {
		return confkit.Invalidf("autopilot config: autopilot.starting_cash must be positive")
	}
	if err := indicators.Validate(append([]string{a.ATRIndicator}, a.SnapshotIndicators...)); err != nil {
		return fmt.Errorf("autopilot config: %w", err)
	}
	if c.Backtest.FeeBps < 0 || c.Backtest.SlippageBps < 0 {
		return confkit.Invalidf("autopilot config: backtest costs cannot be negative")
	}
	if len(c.Strategies) == 0 {
		return confkit.Invalidf("autopilot config: at least one strategy must be defined")
	}
	if _, err := backtest.BuildStrategies(c.Strategies); err != nil {
		return fmt.Errorf("autopilot config: %w", err)
	}
	if err := c.Scorer.Validate(); err != nil {
		return fmt.Errorf("autopilot config: %w", err)
	}
	if err := c.Risk.Validate(); err != nil {
		return fmt.Errorf("autopilot config: %w", err)
	}
	if err := c.Signals.Validate(); err != nil {
		return fmt.Errorf("autopilot config: %w", err)
	}
	return nil
}

// IndicatorSpecs lists every indicator a run computes: strategy inputs, the
// ATR series and the snapshot set.
func (c *Config) IndicatorSpecs(strategies []*backtest.Strategy) []string {
	extra := append([]string{c.Autopilot.ATRIndicator}, c.Autopilot.SnapshotIndicators...)
	return backtest.RequiredIndicators(strategies, extra...)
}
