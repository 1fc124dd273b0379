package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/internal/export"
	"autopilot-engine/pkg/autopilot"
	"autopilot-engine/pkg/backtest"
	"autopilot-engine/pkg/market"
	"autopilot-engine/pkg/market/csvfeed"
	"autopilot-engine/pkg/market/indicators"
	"autopilot-engine/pkg/scorer"
)

// fileProvider serves one CSV file for one instrument.
type fileProvider struct {
	instrument string
	path       string
}

func newFileProvider(instrument, path string) *fileProvider {
	return &fileProvider{instrument: instrument, path: path}
}

func (p *fileProvider) FetchBars(ctx context.Context, instrument, interval string, lookback int) (*market.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	series, err := csvfeed.LoadFile(p.instrument, interval, p.path)
	if err != nil {
		return nil, market.Unavailable(instrument, err)
	}
	return series.Tail(lookback), nil
}

// strategySummary is one line of CLI output.
type strategySummary struct {
	Instrument string           `json:"instrument"`
	StrategyID string           `json:"strategy_id"`
	Bars       int              `json:"bars"`
	Stats      backtest.Stats   `json:"stats"`
	SignalNow  bool             `json:"signal_now"`
	Confidence float64          `json:"confidence"`
	SubScores  scorer.SubScores `json:"sub_scores"`
	Error      string           `json:"error,omitempty"`
}

type runner struct {
	cfg       *autopilot.Config
	provider  market.Provider
	strategy  string
	lookback  int
	exportDir string
	format    string
}

func (r runner) run(ctx context.Context, symbols []string) ([]strategySummary, error) {
	strategies, err := backtest.BuildStrategies(r.cfg.Strategies)
	if err != nil {
		return nil, err
	}
	if r.strategy != "" {
		strategies = filterStrategies(strategies, r.strategy)
		if len(strategies) == 0 {
			return nil, fmt.Errorf("strategy %q is not configured", r.strategy)
		}
	}
	sc, err := scorer.New(r.cfg.Scorer)
	if err != nil {
		return nil, err
	}
	var saver export.Saver
	if r.exportDir != "" {
		if saver = export.NewSaver(r.format); saver == nil {
			return nil, fmt.Errorf("unsupported export format %q (use csv, parquet, json)", r.format)
		}
		if err := os.MkdirAll(r.exportDir, 0o755); err != nil {
			return nil, err
		}
	}

	lookback := r.lookback
	if lookback <= 0 {
		lookback = r.cfg.Autopilot.Lookback
	}
	interval := r.cfg.Autopilot.Interval
	specs := r.cfg.IndicatorSpecs(strategies)

	var out []strategySummary
	for _, sym := range symbols {
		series, err := r.provider.FetchBars(ctx, sym, interval, lookback)
		if err != nil {
			logx.Errorf("backtest %s: %v", sym, err)
			out = append(out, strategySummary{Instrument: sym, Error: err.Error()})
			continue
		}
		set, err := indicators.Compute(series, specs)
		if err != nil {
			return nil, fmt.Errorf("indicators for %s: %w", sym, err)
		}
		if saver != nil {
			path := filepath.Join(r.exportDir, fmt.Sprintf("%s_%s_bars.%s", sym, interval, saver.Extension()))
			if err := saver.SaveBars(export.BarRows(series), path); err != nil {
				return nil, fmt.Errorf("export bars for %s: %w", sym, err)
			}
		}
		for _, strat := range strategies {
			res := backtest.Run(series, set, strat, r.cfg.Backtest)
			cand := sc.Score(sym, strat.ID, res, nil)
			out = append(out, strategySummary{
				Instrument: sym,
				StrategyID: strat.ID,
				Bars:       res.Bars,
				Stats:      res.Stats,
				SignalNow:  res.SignalNow,
				Confidence: cand.Confidence,
				SubScores:  cand.SubScores,
			})
			if saver != nil {
				if err := r.exportResult(saver, sym, &res); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

func (r runner) exportResult(saver export.Saver, sym string, res *backtest.Result) error {
	stamp := time.Now().UTC().Format("20060102_150405")
	base := filepath.Join(r.exportDir, fmt.Sprintf("%s_%s_%s", sym, res.StrategyID, stamp))
	if err := saver.SaveTrades(export.TradeRows(*res), base+"_trades."+saver.Extension()); err != nil {
		return fmt.Errorf("export trades for %s/%s: %w", sym, res.StrategyID, err)
	}
	if err := backtest.WriteReport(base+"_report.json", res); err != nil {
		return fmt.Errorf("write report for %s/%s: %w", sym, res.StrategyID, err)
	}
	return nil
}

func filterStrategies(all []*backtest.Strategy, id string) []*backtest.Strategy {
	for _, s := range all {
		if s.ID == id {
			return []*backtest.Strategy{s}
		}
	}
	return nil
}
