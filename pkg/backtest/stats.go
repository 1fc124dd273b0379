package backtest

import "math"

// MaxProfitFactor caps the profit factor when there are wins and no losses.
const MaxProfitFactor = 999.0

// Stats aggregates completed and forced trades. Degenerate inputs resolve to
// neutral zeros rather than NaN or infinity.
type Stats struct {
	TradeCount     int     `json:"trade_count"`
	Wins           int     `json:"wins"`
	WinRate        float64 `json:"win_rate"`
	TotalReturn    float64 `json:"total_return"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	SharpeLike     float64 `json:"sharpe_like"`
	ProfitFactor   float64 `json:"profit_factor"`
	AvgHoldingBars float64 `json:"avg_holding_bars"`
}

func computeStats(trades []Trade) Stats {
	st := Stats{TradeCount: len(trades)}
	if len(trades) == 0 {
		return st
	}
	returns := make([]float64, len(trades))
	var grossWin, grossLoss, holding float64
	for i, t := range trades {
		returns[i] = t.Return
		holding += float64(t.HoldingBars)
		switch {
		case t.Return > 0:
			st.Wins++
			grossWin += t.Return
		case t.Return < 0:
			grossLoss -= t.Return
		}
	}
	st.WinRate = float64(st.Wins) / float64(len(trades))
	st.AvgHoldingBars = holding / float64(len(trades))

	curve := equityCurve(returns)
	st.TotalReturn = curve[len(curve)-1] - 1
	st.MaxDrawdown = maxDrawdown(curve)
	st.SharpeLike = sharpeLike(returns)

	switch {
	case grossLoss == 0 && grossWin > 0:
		st.ProfitFactor = MaxProfitFactor
	case grossLoss > 0:
		st.ProfitFactor = math.Min(grossWin/grossLoss, MaxProfitFactor)
	}
	return st
}

// equityCurve compounds trade returns starting from 1.0. Equity never
// drops below zero; a loss beyond the whole stake ends the curve at zero.
func equityCurve(returns []float64) []float64 {
	curve := make([]float64, 0, len(returns)+1)
	eq := 1.0
	curve = append(curve, eq)
	for _, r := range returns {
		eq = math.Max(eq*(1+r), 0)
		curve = append(curve, eq)
	}
	return curve
}

// maxDrawdown returns the largest peak-to-trough fall as a fraction in [0,1].
func maxDrawdown(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	peak := series[0]
	mdd := 0.0
	for _, v := range series {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > mdd {
			mdd = dd
		}
	}
	return math.Min(mdd, 1)
}

// sharpeLike is mean over population standard deviation of trade returns.
func sharpeLike(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := 0.0
	for _, r := range returns {
		m += r
	}
	m /= float64(len(returns))
	v := 0.0
	for _, r := range returns {
		d := r - m
		v += d * d
	}
	v /= float64(len(returns))
	sd := math.Sqrt(v)
	if sd < 1e-12 || math.IsNaN(sd) {
		return 0
	}
	return m / sd
}
