package backtest

import (
	"fmt"
	"strings"

	"autopilot-engine/pkg/confkit"
	"autopilot-engine/pkg/market/indicators"
)

// EvalContext exposes the indicator values a rule may read. Rules only look
// at indices up to the bar being evaluated.
type EvalContext struct {
	Set *indicators.Set
}

func (ev EvalContext) value(name string, i int) (float64, bool) {
	if i < 0 {
		return 0, false
	}
	return ev.Set.At(name, i)
}

// Rule is a predicate over bar i.
type Rule interface {
	Eval(ev EvalContext, i int) bool
}

// Rule kinds accepted in RuleSpec.Type.
const (
	RuleThreshold = "threshold"
	RuleCross     = "cross"
	RuleBreakout  = "breakout"
	RuleAll       = "all"
	RuleAny       = "any"
)

// Comparison operators for threshold rules.
const (
	OpLT  = "lt"
	OpLTE = "lte"
	OpGT  = "gt"
	OpGTE = "gte"
)

// Cross and breakout directions.
const (
	Above = "above"
	Below = "below"
)

// Threshold compares one indicator with a constant.
type Threshold struct {
	Indicator string
	Op        string
	Value     float64
}

func (r Threshold) Eval(ev EvalContext, i int) bool {
	v, ok := ev.value(r.Indicator, i)
	if !ok {
		return false
	}
	switch r.Op {
	case OpLT:
		return v < r.Value
	case OpLTE:
		return v <= r.Value
	case OpGT:
		return v > r.Value
	case OpGTE:
		return v >= r.Value
	}
	return false
}

// Cross fires on the bar where Fast moves from one side of Slow (or of the
// constant Level when Slow is empty) to the other.
type Cross struct {
	Fast      string
	Slow      string
	Level     float64
	Direction string
}

func (r Cross) Eval(ev EvalContext, i int) bool {
	fastPrev, ok1 := ev.value(r.Fast, i-1)
	fastCur, ok2 := ev.value(r.Fast, i)
	if !ok1 || !ok2 {
		return false
	}
	slowPrev, slowCur := r.Level, r.Level
	if r.Slow != "" {
		var okA, okB bool
		slowPrev, okA = ev.value(r.Slow, i-1)
		slowCur, okB = ev.value(r.Slow, i)
		if !okA || !okB {
			return false
		}
	}
	if r.Direction == Below {
		return fastPrev >= slowPrev && fastCur < slowCur
	}
	return fastPrev <= slowPrev && fastCur > slowCur
}

// Breakout compares a price column with Indicator shifted by Multiplier
// times Band. With no band the indicator is used as is.
type Breakout struct {
	Price      string
	Indicator  string
	Band       string
	Multiplier float64
	Direction  string
}

func (r Breakout) Eval(ev EvalContext, i int) bool {
	px, ok := ev.value(r.Price, i)
	if !ok {
		return false
	}
	level, ok := ev.value(r.Indicator, i)
	if !ok {
		return false
	}
	offset := 0.0
	if r.Band != "" {
		band, ok := ev.value(r.Band, i)
		if !ok {
			return false
		}
		offset = r.Multiplier * band
	}
	if r.Direction == Below {
		return px < level-offset
	}
	return px > level+offset
}

// All holds when every child rule holds.
type All []Rule

func (r All) Eval(ev EvalContext, i int) bool {
	for _, child := range r {
		if !child.Eval(ev, i) {
			return false
		}
	}
	return len(r) > 0
}

// Any holds when at least one child rule holds.
type Any []Rule

func (r Any) Eval(ev EvalContext, i int) bool {
	for _, child := range r {
		if child.Eval(ev, i) {
			return true
		}
	}
	return false
}

// RuleSpec is the declarative form of a Rule, discriminated by Type.
type RuleSpec struct {
	Type       string     `yaml:"type" json:"type"`
	Indicator  string     `yaml:"indicator,omitempty" json:"indicator,omitempty"`
	Op         string     `yaml:"op,omitempty" json:"op,omitempty"`
	Value      *float64   `yaml:"value,omitempty" json:"value,omitempty"`
	Fast       string     `yaml:"fast,omitempty" json:"fast,omitempty"`
	Slow       string     `yaml:"slow,omitempty" json:"slow,omitempty"`
	Level      *float64   `yaml:"level,omitempty" json:"level,omitempty"`
	Direction  string     `yaml:"direction,omitempty" json:"direction,omitempty"`
	Price      string     `yaml:"price,omitempty" json:"price,omitempty"`
	Band       string     `yaml:"band,omitempty" json:"band,omitempty"`
	Multiplier float64    `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
	Rules      []RuleSpec `yaml:"rules,omitempty" json:"rules,omitempty"`
}

// Build validates the spec and returns the Rule it describes. Errors wrap
// confkit.ErrConfigInvalid.
func (s RuleSpec) Build() (Rule, error) {
	kind := strings.ToLower(strings.TrimSpace(s.Type))
	switch kind {
	case RuleThreshold:
		if s.Indicator == "" {
			return nil, confkit.Invalidf("threshold rule: indicator is required")
		}
		if s.Value == nil {
			return nil, confkit.Invalidf("threshold rule on %s: value is required", s.Indicator)
		}
		op := strings.ToLower(s.Op)
		switch op {
		case OpLT, OpLTE, OpGT, OpGTE:
		default:
			return nil, confkit.Invalidf("threshold rule on %s: unsupported op %q", s.Indicator, s.Op)
		}
		return Threshold{Indicator: norm(s.Indicator), Op: op, Value: *s.Value}, nil
	case RuleCross:
		if s.Fast == "" {
			return nil, confkit.Invalidf("cross rule: fast is required")
		}
		if s.Slow == "" && s.Level == nil {
			return nil, confkit.Invalidf("cross rule on %s: slow or level is required", s.Fast)
		}
		dir, err := direction("cross", s.Direction)
		if err != nil {
			return nil, err
		}
		r := Cross{Fast: norm(s.Fast), Slow: norm(s.Slow), Direction: dir}
		if s.Level != nil {
			r.Level = *s.Level
		}
		return r, nil
	case RuleBreakout:
		if s.Indicator == "" {
			return nil, confkit.Invalidf("breakout rule: indicator is required")
		}
		if s.Multiplier < 0 {
			return nil, confkit.Invalidf("breakout rule on %s: multiplier cannot be negative", s.Indicator)
		}
		dir, err := direction("breakout", s.Direction)
		if err != nil {
			return nil, err
		}
		price := norm(s.Price)
		if price == "" {
			price = indicators.Close
		}
		return Breakout{Price: price, Indicator: norm(s.Indicator), Band: norm(s.Band), Multiplier: s.Multiplier, Direction: dir}, nil
	case RuleAll, RuleAny:
		if len(s.Rules) == 0 {
			return nil, confkit.Invalidf("%s rule: at least one child rule is required", kind)
		}
		children := make([]Rule, 0, len(s.Rules))
		for idx, child := range s.Rules {
			r, err := child.Build()
			if err != nil {
				return nil, fmt.Errorf("%s rule child %d: %w", kind, idx, err)
			}
			children = append(children, r)
		}
		if kind == RuleAll {
			return All(children), nil
		}
		return Any(children), nil
	case "":
		return nil, confkit.Invalidf("rule type is required")
	}
	return nil, confkit.Invalidf("unknown rule type %q", s.Type)
}

// Indicators lists every series name the spec reads, children included.
func (s RuleSpec) Indicators() []string {
	var out []string
	for _, name := range []string{s.Indicator, s.Fast, s.Slow, s.Price, s.Band} {
		if n := norm(name); n != "" {
			out = append(out, n)
		}
	}
	for _, child := range s.Rules {
		out = append(out, child.Indicators()...)
	}
	return out
}

func direction(kind, raw string) (string, error) {
	switch d := strings.ToLower(strings.TrimSpace(raw)); d {
	case "", Above:
		return Above, nil
	case Below:
		return Below, nil
	default:
		return "", confkit.Invalidf("%s rule: direction must be above or below, got %q", kind, raw)
	}
}

func norm(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
