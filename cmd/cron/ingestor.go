package main

import (
	"context"
	"log"
	"time"

	"autopilot-engine/pkg/market"
)

const fetchTimeout = 15 * time.Second // Timeout for one instrument fetch

// ingestor mirrors the newest bars of every watchlist instrument into the
// archive so the autopilot can serve stale data when the provider is down.
type ingestor struct {
	provider   market.Provider
	archive    market.Archive
	symbols    []string
	interval   string
	lookback   int
	now        func() time.Time
	lastBar    map[string]time.Time
	staleAfter time.Duration
}

func newIngestor(provider market.Provider, archive market.Archive, symbols []string, interval string, lookback int) *ingestor {
	return &ingestor{
		provider:   provider,
		archive:    archive,
		symbols:    symbols,
		interval:   interval,
		lookback:   lookback,
		now:        time.Now,
		lastBar:    make(map[string]time.Time, len(symbols)),
		staleAfter: staleThreshold(interval),
	}
}

// run ingests immediately and then on every tick until ctx is done.
func (g *ingestor) run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	g.ingestAll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("[ingest] Stopping ingest monitor")
			return
		case <-ticker.C:
			g.ingestAll(ctx)
		}
	}
}

// ingestAll returns the number of instruments archived successfully.
func (g *ingestor) ingestAll(parentCtx context.Context) int {
	ok := 0
	for _, sym := range g.symbols {
		if parentCtx.Err() != nil {
			return ok
		}
		if g.ingest(parentCtx, sym) {
			ok++
		}
	}
	return ok
}

func (g *ingestor) ingest(parentCtx context.Context, sym string) bool {
	ctx, cancel := context.WithTimeout(parentCtx, fetchTimeout)
	defer cancel()

	start := time.Now()
	series, err := g.provider.FetchBars(ctx, sym, g.interval, g.lookback)
	elapsed := time.Since(start)
	if err != nil {
		log.Printf("[ingest.%s] [ERROR] %v, took %dms", sym, err, elapsed.Milliseconds())
		return false
	}
	last, ok := series.Last()
	if !ok {
		log.Printf("[ingest.%s] [WARN] empty series, took %dms", sym, elapsed.Milliseconds())
		return false
	}
	if err := g.archive.SaveBars(ctx, sym, g.interval, series.Bars); err != nil {
		log.Printf("[ingest.%s] [ERROR] archive: %v", sym, err)
		return false
	}

	prev := g.lastBar[sym]
	g.lastBar[sym] = last.Time
	age := g.now().Sub(last.Time)
	switch {
	case g.staleAfter > 0 && age > g.staleAfter:
		log.Printf("[ingest.%s] [WARN] newest bar %s is %s old, took %dms", sym, last.Time.Format(time.RFC3339), age.Round(time.Second), elapsed.Milliseconds())
	case !prev.IsZero() && !last.Time.After(prev):
		log.Printf("[ingest.%s] [OK] %d bars, no new bar since %s, took %dms", sym, series.Len(), prev.Format(time.RFC3339), elapsed.Milliseconds())
	default:
		log.Printf("[ingest.%s] [OK] %d bars, close=%.4f at %s, took %dms", sym, series.Len(), last.Close, last.Time.Format(time.RFC3339), elapsed.Milliseconds())
	}
	return true
}

// staleThreshold allows a few missed bars (and a weekend for daily data)
// before a series counts as stale.
func staleThreshold(interval string) time.Duration {
	switch interval {
	case "1d":
		return 4 * 24 * time.Hour
	case "1w", "1wk":
		return 10 * 24 * time.Hour
	}
	d, err := time.ParseDuration(interval)
	if err != nil || d <= 0 {
		return 0
	}
	return 5 * d
}
