package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopilot-engine/pkg/autopilot"
)

const testConfig = `
autopilot:
  watchlist: [AAPL]
  lookback: 100
strategies:
  - id: sma_cross
    entry: {type: cross, fast: sma_5, slow: sma_20, direction: above}
    exit: {type: cross, fast: sma_5, slow: sma_20, direction: below}
  - id: rsi_reversion
    entry: {type: threshold, indicator: rsi_14, op: lt, value: 30}
scorer:
  weights: {performance: 0.5, risk: 0.3, external_signal: 0.2}
risk:
  min_score: 0.7
  max_trades_per_run: 3
  risk_per_trade_pct: 0.01
  max_position_pct: 0.1
  stop_multiplier: 2
  reward_risk: 2
  lot_size: "1"
`

func writeCSV(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("ts,open,high,low,close,volume\n")
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 100 + 15*float64((i/10)%2) + float64(i%10)
		fmt.Fprintf(&b, "%s,%.2f,%.2f,%.2f,%.2f,500\n", start.AddDate(0, 0, i).Format("2006-01-02"), c, c+1, c-1, c)
	}
	path := filepath.Join(t.TempDir(), "AAPL.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func loadConfig(t *testing.T) *autopilot.Config {
	t.Helper()
	cfg, err := autopilot.LoadConfigFromReader(strings.NewReader(testConfig), t.TempDir())
	require.NoError(t, err)
	return cfg
}

func TestParseSymbols(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT"}, parseSymbols(" aapl, msft;AAPL "))
	assert.Empty(t, parseSymbols(""))
}

func TestRunner_AllStrategies(t *testing.T) {
	r := runner{cfg: loadConfig(t), provider: newFileProvider("AAPL", writeCSV(t, 120))}
	out, err := r.run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "sma_cross", out[0].StrategyID)
	assert.Equal(t, 100, out[0].Bars)
	assert.GreaterOrEqual(t, out[0].Confidence, 0.0)
	assert.LessOrEqual(t, out[0].Confidence, 1.0)
	assert.Empty(t, out[0].Error)
}

func TestRunner_FilterAndExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	r := runner{
		cfg:       loadConfig(t),
		provider:  newFileProvider("AAPL", writeCSV(t, 120)),
		strategy:  "sma_cross",
		exportDir: dir,
		format:    "json",
	}
	out, err := r.run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, out, 1)

	bars, err := filepath.Glob(filepath.Join(dir, "AAPL_1d_bars.json"))
	require.NoError(t, err)
	assert.Len(t, bars, 1)
	trades, err := filepath.Glob(filepath.Join(dir, "AAPL_sma_cross_*_trades.json"))
	require.NoError(t, err)
	assert.Len(t, trades, 1)
	reports, err := filepath.Glob(filepath.Join(dir, "AAPL_sma_cross_*_report.json"))
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestRunner_Errors(t *testing.T) {
	r := runner{cfg: loadConfig(t), provider: newFileProvider("AAPL", writeCSV(t, 50)), strategy: "nope"}
	_, err := r.run(context.Background(), []string{"AAPL"})
	require.Error(t, err)

	r = runner{cfg: loadConfig(t), provider: newFileProvider("AAPL", writeCSV(t, 50)), exportDir: t.TempDir(), format: "xlsx"}
	_, err = r.run(context.Background(), []string{"AAPL"})
	require.Error(t, err)

	r = runner{cfg: loadConfig(t), provider: newFileProvider("AAPL", filepath.Join(t.TempDir(), "missing.csv"))}
	out, err := r.run(context.Background(), []string{"AAPL"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.NotEmpty(t, out[0].Error)
}
