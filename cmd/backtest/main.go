package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/pkg/autopilot"
	"autopilot-engine/pkg/confkit"
	"autopilot-engine/pkg/market"
	_ "autopilot-engine/pkg/market/csvfeed"
	_ "autopilot-engine/pkg/market/exchanges/twelvedata"
)

func main() {
	var (
		configPath  = flag.String("config", "etc/autopilot.yaml", "autopilot config (strategies, scorer, backtest costs)")
		marketPath  = flag.String("market", "etc/market.yaml", "market config used when -csv is empty")
		csvPath     = flag.String("csv", "", "CSV file with ts,open,high,low,close[,volume] rows; overrides -market")
		symbolsFlag = flag.String("symbols", "", "comma-separated instruments (default: config watchlist)")
		strategy    = flag.String("strategy", "", "only run this strategy id")
		lookback    = flag.Int("lookback", 0, "bars to evaluate (default: config lookback)")
		exportDir   = flag.String("export", "", "directory for per-run bar, trade and report files")
		format      = flag.String("format", "csv", "export format: csv, json or parquet")
	)
	flag.Parse()

	confkit.LoadDotenvOnce()
	cfg, err := autopilot.LoadConfig(*configPath)
	if err != nil {
		fatalf("load autopilot config: %v", err)
	}

	symbols := parseSymbols(*symbolsFlag)
	if len(symbols) == 0 {
		symbols = cfg.Autopilot.Watchlist
	}
	var provider market.Provider
	if *csvPath != "" {
		if len(symbols) != 1 {
			fatalf("-csv needs exactly one symbol, got %v", symbols)
		}
		provider = newFileProvider(symbols[0], *csvPath)
	} else {
		mcfg, err := market.LoadConfig(*marketPath)
		if err != nil {
			fatalf("load market config: %v", err)
		}
		provider, err = mcfg.BuildDefault()
		if err != nil {
			fatalf("build market provider: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner{
		cfg:       cfg,
		provider:  provider,
		strategy:  strings.TrimSpace(*strategy),
		lookback:  *lookback,
		exportDir: *exportDir,
		format:    *format,
	}
	summaries, err := r.run(ctx, symbols)
	if err != nil {
		fatalf("%v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summaries); err != nil {
		fatalf("encode output: %v", err)
	}
}

func parseSymbols(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field = strings.ToUpper(strings.TrimSpace(field))
		if field == "" {
			continue
		}
		if _, exists := seen[field]; exists {
			continue
		}
		seen[field] = struct{}{}
		out = append(out, field)
	}
	return out
}

func fatalf(format string, args ...interface{}) {
	logx.Errorf(format, args...)
	os.Exit(1)
}
