package indicators

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"autopilot-engine/pkg/confkit"
	"autopilot-engine/pkg/market"
)

// Price columns always present in a Set.
const (
	Open  = "open"
	High  = "high"
	Low   = "low"
	Close = "close"
)

// Default MACD parameters used by the bare "macd" spec.
const (
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// Set maps indicator names to series aligned with the source PriceSeries.
type Set struct {
	n      int
	series map[string][]float64
}

// NewSet returns an empty set for a series of length n.
func NewSet(n int) *Set {
	return &Set{n: n, series: make(map[string][]float64)}
}

// Len returns the length every series in the set shares.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return s.n
}

// Put stores a series under name. It panics if the length differs from the
// set, which is a programming error.
func (s *Set) Put(name string, values []float64) {
	if len(values) != s.n {
		panic(fmt.Sprintf("indicators: series %s has %d entries, set has %d", name, len(values), s.n))
	}
	s.series[name] = values
}

// Series returns the full series for name.
func (s *Set) Series(name string) ([]float64, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.series[name]
	return v, ok
}

// At returns the value of name at bar i. The boolean is false when the
// series is unknown, i is out of range or the value is undefined.
func (s *Set) At(name string, i int) (float64, bool) {
	v, ok := s.Series(name)
	if !ok || i < 0 || i >= len(v) {
		return math.NaN(), false
	}
	if !IsDefined(v[i]) {
		return v[i], false
	}
	return v[i], true
}

// Latest returns the value of name at the newest bar.
func (s *Set) Latest(name string) (float64, bool) {
	return s.At(name, s.Len()-1)
}

// Names lists the series names in lexical order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.series))
	for k := range s.series {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the newest defined value of every series. Undefined
// values are omitted.
func (s *Set) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	for _, name := range s.Names() {
		if v, ok := s.Latest(name); ok {
			out[name] = v
		}
	}
	return out
}

// Compute evaluates the requested indicator specs over series. Recognised
// specs are sma_N, ema_N, rsi_N, atr_N, hh_N, ll_N, macd and macd_F_S_G. The
// MACD specs also add <name>_signal and <name>_hist. Price columns are always
// included. Unknown or malformed specs return confkit.ErrConfigInvalid.
func Compute(series *market.PriceSeries, specs []string) (*Set, error) {
	set := NewSet(series.Len())
	if series.Len() > 0 {
		set.Put(Open, series.Opens())
		set.Put(High, series.Highs())
		set.Put(Low, series.Lows())
		set.Put(Close, series.Closes())
	} else {
		for _, col := range []string{Open, High, Low, Close} {
			set.Put(col, []float64{})
		}
	}
	for _, raw := range specs {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		if _, ok := set.series[name]; ok {
			continue
		}
		name = baseName(name)
		if _, ok := set.series[name]; ok {
			continue
		}
		if err := computeOne(set, series, name); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Validate checks spec names without computing anything.
func Validate(specs []string) error {
	for _, raw := range specs {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || isPriceColumn(name) {
			continue
		}
		if _, _, err := parseSpec(baseName(name)); err != nil {
			return err
		}
	}
	return nil
}

// baseName maps derived MACD series names back to the spec that produces
// them: macd_signal and macd_12_26_9_hist are computed by macd and
// macd_12_26_9.
func baseName(name string) string {
	if !strings.HasPrefix(name, "macd") {
		return name
	}
	for _, suffix := range []string{"_signal", "_hist"} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

func isPriceColumn(name string) bool {
	switch name {
	case Open, High, Low, Close:
		return true
	}
	return false
}

func computeOne(set *Set, series *market.PriceSeries, name string) error {
	kind, params, err := parseSpec(name)
	if err != nil {
		return err
	}
	var bars []market.Bar
	if series != nil {
		bars = series.Bars
	}
	closes, _ := set.Series(Close)
	switch kind {
	case "sma":
		set.Put(name, SMA(closes, params[0]))
	case "ema":
		set.Put(name, EMA(closes, params[0]))
	case "rsi":
		set.Put(name, RSI(closes, params[0]))
	case "atr":
		set.Put(name, ATR(bars, params[0]))
	case "hh":
		set.Put(name, HighestHigh(bars, params[0]))
	case "ll":
		set.Put(name, LowestLow(bars, params[0]))
	case "macd":
		macd, signal, hist := MACD(closes, params[0], params[1], params[2])
		set.Put(name, macd)
		set.Put(name+"_signal", signal)
		set.Put(name+"_hist", hist)
	}
	return nil
}

func parseSpec(name string) (string, []int, error) {
	parts := strings.Split(name, "_")
	kind := parts[0]
	switch kind {
	case "sma", "ema", "rsi", "atr", "hh", "ll":
		if len(parts) != 2 {
			return "", nil, confkit.Invalidf("indicator %q: expected %s_<period>", name, kind)
		}
		p, err := parsePeriod(name, parts[1])
		if err != nil {
			return "", nil, err
		}
		return kind, []int{p}, nil
	case "macd":
		switch len(parts) {
		case 1:
			return kind, []int{DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal}, nil
		case 4:
			params := make([]int, 3)
			for i := range params {
				p, err := parsePeriod(name, parts[i+1])
				if err != nil {
					return "", nil, err
				}
				params[i] = p
			}
			if params[0] >= params[1] {
				return "", nil, confkit.Invalidf("indicator %q: fast period must be below slow period", name)
			}
			return kind, params, nil
		}
		return "", nil, confkit.Invalidf("indicator %q: expected macd or macd_<fast>_<slow>_<signal>", name)
	}
	return "", nil, confkit.Invalidf("indicator %q: unknown indicator", name)
}

func parsePeriod(name, raw string) (int, error) {
	p, err := strconv.Atoi(raw)
	if err != nil || p <= 0 {
		return 0, confkit.Invalidf("indicator %q: period %q must be a positive integer", name, raw)
	}
	return p, nil
}
