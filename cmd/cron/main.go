package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"autopilot-engine/internal/cli"
	"autopilot-engine/internal/config"
	marketpersist "autopilot-engine/internal/persistence/market"
	_ "autopilot-engine/pkg/market/csvfeed"
	_ "autopilot-engine/pkg/market/exchanges/twelvedata"
)

const shutdownTimeout = 10 * time.Second // Grace period for shutdown

func main() {
	var (
		configPath = flag.String("f", "etc/autopilot-api.yaml", "the config file")
		interval   = flag.Duration("interval", 0, "ingest interval (default: autopilot schedule)")
		once       = flag.Bool("once", false, "ingest once and exit")
	)
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("[main] Starting bar ingest monitor...")

	appCfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[main] Failed to load config: %v", err)
	}
	log.Printf("[main] Configuration loaded:")
	for _, line := range cli.ConfigSummaryLines(appCfg) {
		log.Printf("  - %s", line)
	}
	if !appCfg.Market.Loaded() {
		log.Fatalf("[main] Market config is required")
	}
	if appCfg.Archive.Path == "" {
		log.Fatalf("[main] Archive.Path is required for ingestion")
	}

	provider, err := appCfg.Market.Value.BuildDefault()
	if err != nil {
		log.Fatalf("[main] Failed to build market provider: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	archive, err := marketpersist.Open(ctx, appCfg.Archive.Path)
	if err != nil {
		log.Fatalf("[main] Failed to open bar archive: %v", err)
	}
	defer archive.Close()

	ap := appCfg.Autopilot.Value.Autopilot
	every := *interval
	if every <= 0 {
		every = ap.Schedule
	}
	ing := newIngestor(provider, archive, ap.Watchlist, ap.Interval, ap.Lookback)
	log.Printf("  - Monitored Symbols: %v", ap.Watchlist)
	log.Printf("  - Ingest Interval: %s", every)

	if *once {
		ing.ingestAll(ctx)
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ing.run(ctx, every)
	}()

	log.Println("[main] Ingest monitor started. Press Ctrl+C to stop.")
	<-ctx.Done()
	log.Println("[main] Shutdown signal received, stopping tasks...")

	select {
	case <-done:
		log.Println("[main] All tasks stopped cleanly")
	case <-time.After(shutdownTimeout):
		log.Println("[main] Shutdown timeout exceeded, forcing exit")
	}
}
