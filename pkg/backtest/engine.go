package backtest

import (
	"time"

	"autopilot-engine/pkg/market"
	"autopilot-engine/pkg/market/indicators"
)

// ExitReason records why a trade was closed.
type ExitReason string

const (
	ExitSignal  ExitReason = "signal"
	ExitMaxHold ExitReason = "max_hold"
	ExitForced  ExitReason = "forced"
)

// Options tunes the simulation costs.
type Options struct {
	FeeBps      float64 `yaml:"fee_bps" json:"fee_bps"`           // per-side fee in basis points
	SlippageBps float64 `yaml:"slippage_bps" json:"slippage_bps"` // adverse fill adjustment in bps
}

// Trade is one completed round trip. Indices point into the source series.
type Trade struct {
	Direction   Direction  `json:"direction"`
	EntryIndex  int        `json:"entry_index"`
	ExitIndex   int        `json:"exit_index"`
	EntryTime   time.Time  `json:"entry_time"`
	ExitTime    time.Time  `json:"exit_time"`
	EntryPrice  float64    `json:"entry_price"`
	ExitPrice   float64    `json:"exit_price"`
	RealizedPnL float64    `json:"realized_pnl"` // per unit, net of fees
	Return      float64    `json:"return"`
	HoldingBars int        `json:"holding_bars"`
	Reason      ExitReason `json:"reason"`
	Forced      bool       `json:"forced"`
}

// Result summarises a backtest of one strategy over one series.
type Result struct {
	Instrument  string    `json:"instrument"`
	StrategyID  string    `json:"strategy_id"`
	Bars        int       `json:"bars"`
	Trades      []Trade   `json:"trades"`
	Stats       Stats     `json:"stats"`
	EquityCurve []float64 `json:"equity_curve"`
	// SignalNow is true when the entry rule holds on the newest bar.
	SignalNow bool `json:"signal_now"`
}

// Run replays strat over series bar by bar. A signal on bar i fills at the
// open of bar i+1, so a signal on the last bar never trades. A trade still
// open when the series ends is closed at the last close and flagged forced.
func Run(series *market.PriceSeries, set *indicators.Set, strat *Strategy, opts Options) Result {
	res := Result{Bars: series.Len()}
	if series != nil {
		res.Instrument = series.Instrument
	}
	if strat == nil {
		res.Stats = computeStats(nil)
		res.EquityCurve = equityCurve(nil)
		return res
	}
	res.StrategyID = strat.ID
	n := series.Len()
	if n == 0 || set == nil || set.Len() != n {
		res.Stats = computeStats(nil)
		res.EquityCurve = equityCurve(nil)
		return res
	}

	ev := EvalContext{Set: set}
	book := tradeBook{direction: strat.Direction, feeBps: opts.FeeBps, slippageBps: opts.SlippageBps}
	pendingEntry := false
	var pendingExit ExitReason

	for i := 0; i < n; i++ {
		bar := series.Bars[i]
		if pendingExit != "" && book.isOpen() {
			res.Trades = append(res.Trades, book.close(i, bar.Time, bar.Open, pendingExit))
			pendingExit = ""
		}
		if pendingEntry && !book.isOpen() {
			book.open(i, bar.Time, bar.Open)
			pendingEntry = false
		}
		if i == n-1 {
			break
		}
		if !book.isOpen() {
			pendingEntry = strat.Entry.Eval(ev, i)
			continue
		}
		switch {
		case strat.Exit != nil && strat.Exit.Eval(ev, i):
			pendingExit = ExitSignal
		case strat.MaxHoldingBars > 0 && i+1-book.entryIndex >= strat.MaxHoldingBars:
			pendingExit = ExitMaxHold
		}
	}
	if book.isOpen() {
		last := series.Bars[n-1]
		res.Trades = append(res.Trades, book.close(n-1, last.Time, last.Close, ExitForced))
	}
	res.SignalNow = strat.Entry.Eval(ev, n-1)

	returns := make([]float64, len(res.Trades))
	for i, t := range res.Trades {
		returns[i] = t.Return
	}
	res.Stats = computeStats(res.Trades)
	res.EquityCurve = equityCurve(returns)
	return res
}

func applySlippage(px, bps float64, isBuy bool) float64 {
	if bps == 0 {
		return px
	}
	m := 1 + bps/10000.0
	if isBuy {
		return px * m
	}
	return px / m
}
