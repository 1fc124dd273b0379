// Package export writes bars and backtest trades as csv, json or parquet.
package export

import (
	"fmt"
	"strings"
	"time"

	"autopilot-engine/pkg/backtest"
	"autopilot-engine/pkg/market"
)

// BarRow is the flat form of a market.Bar.
type BarRow struct {
	Timestamp int64   `json:"t" parquet:"t"` // Unix milliseconds
	Open      float64 `json:"o" parquet:"o"`
	High      float64 `json:"h" parquet:"h"`
	Low       float64 `json:"l" parquet:"l"`
	Close     float64 `json:"c" parquet:"c"`
	Volume    float64 `json:"v" parquet:"v"`
}

// TradeRow is the flat form of a backtest.Trade.
type TradeRow struct {
	StrategyID  string  `json:"strategy_id" parquet:"strategy_id"`
	Direction   string  `json:"direction" parquet:"direction"`
	EntryTime   int64   `json:"entry_time" parquet:"entry_time"` // Unix milliseconds
	ExitTime    int64   `json:"exit_time" parquet:"exit_time"`
	EntryPrice  float64 `json:"entry_price" parquet:"entry_price"`
	ExitPrice   float64 `json:"exit_price" parquet:"exit_price"`
	RealizedPnL float64 `json:"realized_pnl" parquet:"realized_pnl"`
	Return      float64 `json:"return" parquet:"return"`
	HoldingBars int64   `json:"holding_bars" parquet:"holding_bars"`
	Reason      string  `json:"reason" parquet:"reason"`
	Forced      bool    `json:"forced" parquet:"forced"`
}

// Saver writes rows to a file in one format.
type Saver interface {
	Extension() string
	SaveBars(rows []BarRow, path string) error
	SaveTrades(rows []TradeRow, path string) error
}

// NewSaver returns the saver for format (csv, parquet, json), or nil if the
// format is not supported.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv":
		return CSVSaver{}
	case "parquet":
		return ParquetSaver{}
	case "json":
		return JSONSaver{}
	default:
		return nil
	}
}

// MustSaver is like NewSaver but panics on an unknown format.
func MustSaver(format string) Saver {
	s := NewSaver(format)
	if s == nil {
		panic(fmt.Sprintf("export: unsupported format %q (use csv, parquet, json)", format))
	}
	return s
}

// BarRows flattens a series.
func BarRows(series *market.PriceSeries) []BarRow {
	if series == nil {
		return nil
	}
	out := make([]BarRow, len(series.Bars))
	for i, b := range series.Bars {
		out[i] = BarRow{
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return out
}

// TradeRows flattens the trades of a result.
func TradeRows(res backtest.Result) []TradeRow {
	out := make([]TradeRow, len(res.Trades))
	for i, t := range res.Trades {
		out[i] = TradeRow{
			StrategyID:  res.StrategyID,
			Direction:   string(t.Direction),
			EntryTime:   millis(t.EntryTime),
			ExitTime:    millis(t.ExitTime),
			EntryPrice:  t.EntryPrice,
			ExitPrice:   t.ExitPrice,
			RealizedPnL: t.RealizedPnL,
			Return:      t.Return,
			HoldingBars: int64(t.HoldingBars),
			Reason:      string(t.Reason),
			Forced:      t.Forced,
		}
	}
	return out
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
