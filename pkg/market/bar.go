package market

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Bar is one OHLCV sample for an instrument over a fixed interval.
type Bar struct {
	Time   time.Time `json:"t"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Volume float64   `json:"v"`
}

func (b Bar) finite() bool {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return !b.Time.IsZero()
}

// PriceSeries is an ordered run of bars for one instrument. Timestamps are
// strictly increasing; gaps are allowed.
type PriceSeries struct {
	Instrument string `json:"instrument"`
	Interval   string `json:"interval"`
	Bars       []Bar  `json:"bars"`
}

// NewPriceSeries normalises bars into a valid series: bars are sorted by
// time, duplicates collapse to the last one supplied and bars carrying a
// zero time or non-finite value are dropped.
func NewPriceSeries(instrument, interval string, bars []Bar) *PriceSeries {
	s := &PriceSeries{Instrument: instrument, Interval: interval}
	s.Bars = normalise(bars)
	return s
}

func normalise(bars []Bar) []Bar {
	clean := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.finite() {
			clean = append(clean, b)
		}
	}
	sort.SliceStable(clean, func(i, j int) bool { return clean[i].Time.Before(clean[j].Time) })
	out := clean[:0]
	for _, b := range clean {
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// Len returns the number of bars.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Merge folds bars into the series. A bar whose timestamp already exists
// replaces the stored one.
func (s *PriceSeries) Merge(bars []Bar) {
	if len(bars) == 0 {
		return
	}
	combined := make([]Bar, 0, len(s.Bars)+len(bars))
	combined = append(combined, s.Bars...)
	combined = append(combined, bars...)
	s.Bars = normalise(combined)
}

// Trim keeps at most max of the newest bars. max <= 0 keeps everything.
func (s *PriceSeries) Trim(max int) {
	if max <= 0 || len(s.Bars) <= max {
		return
	}
	kept := make([]Bar, max)
	copy(kept, s.Bars[len(s.Bars)-max:])
	s.Bars = kept
}

// Tail returns a copy holding the newest n bars (all bars when n <= 0).
func (s *PriceSeries) Tail(n int) *PriceSeries {
	c := s.Clone()
	c.Trim(n)
	return c
}

// Clone returns a deep copy.
func (s *PriceSeries) Clone() *PriceSeries {
	if s == nil {
		return nil
	}
	bars := make([]Bar, len(s.Bars))
	copy(bars, s.Bars)
	return &PriceSeries{Instrument: s.Instrument, Interval: s.Interval, Bars: bars}
}

// Last returns the newest bar.
func (s *PriceSeries) Last() (Bar, bool) {
	if s.Len() == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Validate checks the strictly increasing timestamp invariant.
func (s *PriceSeries) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		if !s.Bars[i].Time.After(s.Bars[i-1].Time) {
			return fmt.Errorf("market: series %s: bar %d at %s not after %s",
				s.Instrument, i, s.Bars[i].Time.Format(time.RFC3339), s.Bars[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Opens returns the open column.
func (s *PriceSeries) Opens() []float64 { return s.column(func(b Bar) float64 { return b.Open }) }

// Highs returns the high column.
func (s *PriceSeries) Highs() []float64 { return s.column(func(b Bar) float64 { return b.High }) }

// Lows returns the low column.
func (s *PriceSeries) Lows() []float64 { return s.column(func(b Bar) float64 { return b.Low }) }

// Closes returns the close column.
func (s *PriceSeries) Closes() []float64 { return s.column(func(b Bar) float64 { return b.Close }) }

func (s *PriceSeries) column(pick func(Bar) float64) []float64 {
	out := make([]float64, s.Len())
	for i := range out {
		out[i] = pick(s.Bars[i])
	}
	return out
}
