// Package indicators computes technical indicators over price columns. Every
// function returns a slice aligned with its input; entries inside the warm-up
// window are NaN, which callers test with IsDefined.
package indicators

import (
	"math"

	"autopilot-engine/pkg/market"
)

// IsDefined reports whether an indicator value has been computed.
func IsDefined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func undefined(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA produces the simple moving average over a trailing window. A window
// containing an undefined value is itself undefined.
func SMA(prices []float64, period int) []float64 {
	result := undefined(len(prices))
	if period <= 0 || len(prices) < period {
		return result
	}
	sum := 0.0
	invalid := 0
	for i, p := range prices {
		if math.IsNaN(p) {
			invalid++
		} else {
			sum += p
		}
		if i >= period {
			old := prices[i-period]
			if math.IsNaN(old) {
				invalid--
			} else {
				sum -= old
			}
		}
		if i >= period-1 && invalid == 0 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

// EMA produces the exponential moving average for the supplied prices.
func EMA(prices []float64, period int) []float64 {
	result := undefined(len(prices))
	if period <= 0 || len(prices) < period {
		return result
	}
	multiplier := 2.0 / float64(period+1)

	start := -1
	var seed float64
	for i := period - 1; i < len(prices); i++ {
		windowValid := true
		sum := 0.0
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(prices[j]) {
				windowValid = false
				break
			}
			sum += prices[j]
		}
		if windowValid {
			start = i
			seed = sum / float64(period)
			break
		}
	}
	if start == -1 {
		return result
	}
	result[start] = seed

	for i := start + 1; i < len(prices); i++ {
		if math.IsNaN(prices[i]) {
			result[i] = result[i-1]
			continue
		}
		prev := result[i-1]
		result[i] = (prices[i]-prev)*multiplier + prev
	}
	return result
}

// MACD returns MACD, signal, and histogram series.
func MACD(prices []float64, fast, slow, signalPeriod int) ([]float64, []float64, []float64) {
	n := len(prices)
	if fast <= 0 || slow <= 0 || signalPeriod <= 0 {
		return undefined(n), undefined(n), undefined(n)
	}
	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)

	macd := make([]float64, n)
	for i := range prices {
		if math.IsNaN(emaFast[i]) || math.IsNaN(emaSlow[i]) {
			macd[i] = math.NaN()
		} else {
			macd[i] = emaFast[i] - emaSlow[i]
		}
	}

	signal := EMA(macd, signalPeriod)
	hist := make([]float64, n)
	for i := range hist {
		if math.IsNaN(macd[i]) || math.IsNaN(signal[i]) {
			hist[i] = math.NaN()
		} else {
			hist[i] = macd[i] - signal[i]
		}
	}
	return macd, signal, hist
}

// RSI computes the Relative Strength Index across the supplied prices using
// Wilder smoothing.
func RSI(prices []float64, period int) []float64 {
	rsi := undefined(len(prices))
	if period <= 0 || len(prices) <= period {
		return rsi
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	rsi[period] = computeRSI(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain := math.Max(change, 0)
		loss := math.Max(-change, 0)

		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)

		rsi[i] = computeRSI(avgGain, avgLoss)
	}
	return rsi
}

// TrueRange returns the per-bar true range. The first bar has no previous
// close, so its range is high-low.
func TrueRange(bars []market.Bar) []float64 {
	tr := make([]float64, len(bars))
	for i := range bars {
		highLow := bars[i].High - bars[i].Low
		if i == 0 {
			tr[i] = highLow
			continue
		}
		highClose := math.Abs(bars[i].High - bars[i-1].Close)
		lowClose := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(highLow, math.Max(highClose, lowClose))
	}
	return tr
}

// ATR computes the Average True Range with Wilder smoothing, seeded by the
// mean of the first period true ranges.
func ATR(bars []market.Bar, period int) []float64 {
	atr := undefined(len(bars))
	if period <= 0 || len(bars) < period {
		return atr
	}
	tr := TrueRange(bars)
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	prev := sum / float64(period)
	atr[period-1] = prev
	for i := period; i < len(bars); i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		atr[i] = prev
	}
	return atr
}

// HighestHigh returns, for each bar, the highest high of the period bars
// before it. The current bar is excluded so that a breakout can be detected
// against it.
func HighestHigh(bars []market.Bar, period int) []float64 {
	return channel(bars, period, func(b market.Bar) float64 { return b.High }, math.Max)
}

// LowestLow is the counterpart of HighestHigh over lows.
func LowestLow(bars []market.Bar, period int) []float64 {
	return channel(bars, period, func(b market.Bar) float64 { return b.Low }, math.Min)
}

func channel(bars []market.Bar, period int, pick func(market.Bar) float64, fold func(a, b float64) float64) []float64 {
	out := undefined(len(bars))
	if period <= 0 || len(bars) <= period {
		return out
	}
	for i := period; i < len(bars); i++ {
		v := pick(bars[i-period])
		for j := i - period + 1; j < i; j++ {
			v = fold(v, pick(bars[j]))
		}
		out[i] = v
	}
	return out
}

func computeRSI(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50.0
	case avgLoss == 0:
		return 100.0
	case avgGain == 0:
		return 0.0
	default:
		rs := avgGain / avgLoss
		return 100.0 - (100.0 / (1.0 + rs))
	}
}
