package backtest

import "time"

// tradeBook holds at most one open position and turns fills into Trades.
type tradeBook struct {
	direction   Direction
	feeBps      float64
	slippageBps float64

	openFlag   bool
	entryIndex int
	entryTime  time.Time
	entryPx    float64
}

func (b *tradeBook) isOpen() bool { return b.openFlag }

// open fills the entry. Longs buy, shorts sell.
func (b *tradeBook) open(i int, ts time.Time, px float64) {
	b.openFlag = true
	b.entryIndex = i
	b.entryTime = ts
	b.entryPx = applySlippage(px, b.slippageBps, b.direction == Long)
}

// close fills the exit and returns the trade. PnL is per unit and the
// return is measured against the entry notional, both net of fees on both
// sides.
func (b *tradeBook) close(i int, ts time.Time, px float64, reason ExitReason) Trade {
	exitPx := applySlippage(px, b.slippageBps, b.direction == Short)
	gross := (exitPx - b.entryPx) * b.direction.Sign()
	fees := (b.entryPx + exitPx) * b.feeBps / 10000.0
	pnl := gross - fees
	ret := 0.0
	if b.entryPx > 0 {
		ret = pnl / b.entryPx
	}
	t := Trade{
		Direction:   b.direction,
		EntryIndex:  b.entryIndex,
		ExitIndex:   i,
		EntryTime:   b.entryTime,
		ExitTime:    ts,
		EntryPrice:  b.entryPx,
		ExitPrice:   exitPx,
		RealizedPnL: pnl,
		Return:      ret,
		HoldingBars: i - b.entryIndex,
		Reason:      reason,
		Forced:      reason == ExitForced,
	}
	*b = tradeBook{direction: b.direction, feeBps: b.feeBps, slippageBps: b.slippageBps}
	return t
}
