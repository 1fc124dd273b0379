package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autopilot-engine/pkg/confkit"
	"autopilot-engine/pkg/market"
)

var trendCloses = []float64{100, 101, 102, 103, 105, 107, 106, 108, 110, 111, 112, 115, 117, 119, 118, 120, 121, 123, 125, 124, 126, 127, 129, 130, 132, 133, 134, 135, 136, 138, 139, 141, 140, 142, 144, 143, 145, 147, 149, 148, 150, 151, 149, 148, 150, 152, 151, 153, 154, 156, 155, 157, 158, 160, 161, 159, 158, 157, 159, 160}

func barsFromCloses(closes []float64, spread float64) []market.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Time:  start.Add(time.Duration(i) * time.Hour),
			Open:  c,
			High:  c + spread,
			Low:   c - spread,
			Close: c,
		}
	}
	return bars
}

func requireAllUndefined(t *testing.T, values []float64, n int) {
	t.Helper()
	require.Len(t, values, n)
	for i, v := range values {
		require.False(t, IsDefined(v), "index %d should be undefined, got %v", i, v)
	}
}

func TestSMA(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6}
	result := SMA(data, 3)
	require.Len(t, result, len(data))
	require.True(t, math.IsNaN(result[0]))
	require.True(t, math.IsNaN(result[1]))
	require.InDelta(t, 2.0, result[2], 1e-9)
	require.InDelta(t, 5.0, result[5], 1e-9)

	sma20 := SMA(trendCloses, 20)
	require.InDelta(t, 154.9, sma20[len(sma20)-1], 1e-9)
}

func TestSMA_UndefinedInputPoisonsWindow(t *testing.T) {
	data := []float64{1, 2, math.NaN(), 4, 5, 6}
	result := SMA(data, 2)
	require.InDelta(t, 1.5, result[1], 1e-9)
	require.False(t, IsDefined(result[2]))
	require.False(t, IsDefined(result[3]))
	require.InDelta(t, 4.5, result[4], 1e-9)
}

func TestEMA(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6}
	result := EMA(data, 3)
	require.Len(t, result, len(data))
	require.True(t, math.IsNaN(result[0]))
	require.True(t, math.IsNaN(result[1]))
	require.InDelta(t, 2.0, result[2], 1e-9)
	require.InDelta(t, 3.0, result[3], 1e-9)
	require.InDelta(t, 4.0, result[4], 1e-9)
	require.InDelta(t, 5.0, result[5], 1e-9)
}

func TestMACD(t *testing.T) {
	macd, signal, hist := MACD(trendCloses, 12, 26, 9)
	require.Len(t, macd, len(trendCloses))
	require.Len(t, signal, len(trendCloses))
	require.Len(t, hist, len(trendCloses))

	last := len(trendCloses) - 1
	require.InDelta(t, 5.582947, macd[last], 1e-6)
	require.InDelta(t, 6.307087, signal[last], 1e-6)
	require.InDelta(t, -0.724141, hist[last], 1e-6)

	for i := range hist {
		if IsDefined(macd[i]) && IsDefined(signal[i]) {
			require.InDelta(t, macd[i]-signal[i], hist[i], 1e-12)
		} else {
			require.False(t, IsDefined(hist[i]))
		}
	}
}

func TestRSI(t *testing.T) {
	rsi := RSI(trendCloses, 14)
	require.Len(t, rsi, len(trendCloses))
	require.InDelta(t, 73.084185, rsi[len(rsi)-1], 1e-6)
	for i, v := range rsi {
		if i < 14 {
			require.False(t, IsDefined(v))
			continue
		}
		require.GreaterOrEqual(t, v, 0.0)
		require.LessOrEqual(t, v, 100.0)
	}
}

func TestRSI_Extremes(t *testing.T) {
	flat := make([]float64, 20)
	rising := make([]float64, 20)
	falling := make([]float64, 20)
	for i := range flat {
		flat[i] = 100
		rising[i] = 100 + float64(i)
		falling[i] = 100 - float64(i)
	}
	require.Equal(t, 50.0, RSI(flat, 14)[19])
	require.Equal(t, 100.0, RSI(rising, 14)[19])
	require.Equal(t, 0.0, RSI(falling, 14)[19])
}

func TestATR(t *testing.T) {
	closes := []float64{100, 101, 102, 104, 103, 105, 107, 106, 108, 110, 112, 111, 113, 115, 114, 116, 118, 117, 119, 121}
	bars := barsFromCloses(closes, 1.5)

	tr := TrueRange(bars)
	require.InDelta(t, 3.0, tr[0], 1e-9)

	atr := ATR(bars, 14)
	require.Len(t, atr, len(bars))
	require.False(t, IsDefined(atr[12]))
	require.InDelta(t, 46.0/14.0, atr[13], 1e-9)
	require.InDelta(t, 3.307182, atr[len(atr)-1], 1e-6)
}

func TestChannels(t *testing.T) {
	bars := barsFromCloses([]float64{10, 12, 11, 15, 9}, 0)
	hh := HighestHigh(bars, 3)
	ll := LowestLow(bars, 3)
	require.False(t, IsDefined(hh[2]))
	require.InDelta(t, 12.0, hh[3], 1e-9)
	require.InDelta(t, 15.0, hh[4], 1e-9)
	require.InDelta(t, 10.0, ll[3], 1e-9)
	require.InDelta(t, 11.0, ll[4], 1e-9)
}

func TestShortOrInvalidInputIsUndefined(t *testing.T) {
	short := []float64{1, 2, 3}
	shortBars := barsFromCloses(short, 1)

	requireAllUndefined(t, SMA(short, 5), 3)
	requireAllUndefined(t, EMA(short, 5), 3)
	requireAllUndefined(t, RSI(short, 3), 3)
	requireAllUndefined(t, ATR(shortBars, 5), 3)
	requireAllUndefined(t, SMA(short, 0), 3)
	requireAllUndefined(t, EMA(short, -1), 3)
	requireAllUndefined(t, RSI(nil, 14), 0)

	macd, signal, hist := MACD(short, 12, 26, 9)
	requireAllUndefined(t, macd, 3)
	requireAllUndefined(t, signal, 3)
	requireAllUndefined(t, hist, 3)

	macd, _, _ = MACD(short, 0, 26, 9)
	requireAllUndefined(t, macd, 3)
}

func TestCompute(t *testing.T) {
	series := market.NewPriceSeries("BTC", "1h", barsFromCloses(trendCloses, 1))
	set, err := Compute(series, []string{"SMA_20", "rsi_14", "atr_14", "macd", "macd_signal", "hh_10", " "})
	require.NoError(t, err)
	require.Equal(t, len(trendCloses), set.Len())

	for _, name := range []string{Open, High, Low, Close, "sma_20", "rsi_14", "atr_14", "macd", "macd_signal", "macd_hist", "hh_10"} {
		values, ok := set.Series(name)
		require.True(t, ok, name)
		require.Len(t, values, len(trendCloses), name)
	}

	v, ok := set.Latest("sma_20")
	require.True(t, ok)
	require.InDelta(t, 154.9, v, 1e-9)

	_, ok = set.At("sma_20", 0)
	require.False(t, ok)
	_, ok = set.At("missing", 5)
	require.False(t, ok)

	snap := set.Snapshot()
	require.InDelta(t, 160.0, snap[Close], 1e-9)
	require.Contains(t, snap, "rsi_14")
}

func TestCompute_InvalidSpecs(t *testing.T) {
	series := market.NewPriceSeries("BTC", "1h", barsFromCloses(trendCloses, 1))
	for _, spec := range []string{"vwap_10", "sma", "sma_x", "rsi_0", "macd_26_12_9", "macd_1_2"} {
		_, err := Compute(series, []string{spec})
		require.ErrorIs(t, err, confkit.ErrConfigInvalid, spec)
		require.ErrorIs(t, Validate([]string{spec}), confkit.ErrConfigInvalid, spec)
	}
	require.NoError(t, Validate([]string{"close", "macd_12_26_9_hist", "ema_50"}))
}

func TestCompute_EmptySeries(t *testing.T) {
	set, err := Compute(market.NewPriceSeries("BTC", "1h", nil), []string{"sma_5", "macd"})
	require.NoError(t, err)
	require.Equal(t, 0, set.Len())
	_, ok := set.Latest(Close)
	require.False(t, ok)
	require.Empty(t, set.Snapshot())
}
