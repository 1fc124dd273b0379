package backtest

import (
	"fmt"
	"sort"
	"strings"

	"autopilot-engine/pkg/confkit"
	"autopilot-engine/pkg/market/indicators"
)

// Direction is the side a strategy trades.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Strategy is a compiled rule set. Exit may be nil, in which case trades
// close on MaxHoldingBars or at the end of the series.
type Strategy struct {
	ID             string
	Direction      Direction
	Entry          Rule
	Exit           Rule
	MaxHoldingBars int
	Indicators     []string
}

// StrategySpec is the YAML form of a Strategy.
type StrategySpec struct {
	ID             string    `yaml:"id" json:"id"`
	Direction      string    `yaml:"direction" json:"direction"`
	Entry          RuleSpec  `yaml:"entry" json:"entry"`
	Exit           *RuleSpec `yaml:"exit,omitempty" json:"exit,omitempty"`
	MaxHoldingBars int       `yaml:"max_holding_bars" json:"max_holding_bars"`
	Indicators     []string  `yaml:"indicators,omitempty" json:"indicators,omitempty"`
}

// Build validates the spec, including every referenced indicator name, and
// compiles it.
func (s StrategySpec) Build() (*Strategy, error) {
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return nil, confkit.Invalidf("strategy: id is required")
	}
	dir := Direction(strings.ToLower(strings.TrimSpace(s.Direction)))
	switch dir {
	case "":
		dir = Long
	case Long, Short:
	default:
		return nil, confkit.Invalidf("strategy %s: direction must be long or short, got %q", id, s.Direction)
	}
	if s.MaxHoldingBars < 0 {
		return nil, confkit.Invalidf("strategy %s: max_holding_bars cannot be negative", id)
	}
	entry, err := s.Entry.Build()
	if err != nil {
		return nil, fmt.Errorf("strategy %s entry: %w", id, err)
	}
	strat := &Strategy{ID: id, Direction: dir, Entry: entry, MaxHoldingBars: s.MaxHoldingBars}
	refs := append([]string{}, s.Indicators...)
	refs = append(refs, s.Entry.Indicators()...)
	if s.Exit != nil {
		exit, err := s.Exit.Build()
		if err != nil {
			return nil, fmt.Errorf("strategy %s exit: %w", id, err)
		}
		strat.Exit = exit
		refs = append(refs, s.Exit.Indicators()...)
	}
	strat.Indicators = dedupe(refs)
	if err := indicators.Validate(strat.Indicators); err != nil {
		return nil, fmt.Errorf("strategy %s: %w", id, err)
	}
	return strat, nil
}

// BuildStrategies compiles specs in order and rejects duplicate ids.
func BuildStrategies(specs []StrategySpec) ([]*Strategy, error) {
	seen := make(map[string]struct{}, len(specs))
	out := make([]*Strategy, 0, len(specs))
	for _, spec := range specs {
		strat, err := spec.Build()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[strat.ID]; dup {
			return nil, confkit.Invalidf("strategy %s: duplicate id", strat.ID)
		}
		seen[strat.ID] = struct{}{}
		out = append(out, strat)
	}
	return out, nil
}

// RequiredIndicators merges the indicator names of several strategies plus
// any extras, sorted.
func RequiredIndicators(strategies []*Strategy, extra ...string) []string {
	var all []string
	for _, s := range strategies {
		all = append(all, s.Indicators...)
	}
	all = append(all, extra...)
	return dedupe(all)
}

func dedupe(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n = norm(n); n != "" {
			set[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
