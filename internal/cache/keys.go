package cache

import (
	"strconv"
	"strings"
	"time"

	"autopilot-engine/internal/config"
)

// Namespace is the Redis key prefix for the autopilot service.
const Namespace = "autopilot"

// TTLClass represents a config-driven TTL bucket.
type TTLClass string

const (
	TTLShort  TTLClass = "short"
	TTLMedium TTLClass = "medium"
	TTLLong   TTLClass = "long"
)

// TTLSet normalises cache TTLs from config into time.Duration values.
type TTLSet struct {
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}

// NewTTLSet converts config TTLs (in seconds) into durations.
func NewTTLSet(cfg config.CacheTTL) TTLSet {
	return TTLSet{
		Short:  durationOrDefault(cfg.Short, 10*time.Second),
		Medium: durationOrDefault(cfg.Medium, time.Minute),
		Long:   durationOrDefault(cfg.Long, 5*time.Minute),
	}
}

func durationOrDefault(seconds int, fallback time.Duration) time.Duration {
	if seconds < 0 {
		return 0
	}
	if seconds == 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Duration returns the configured duration for the given TTL class.
func (t TTLSet) Duration(class TTLClass) time.Duration {
	switch class {
	case TTLShort:
		return t.Short
	case TTLMedium:
		return t.Medium
	case TTLLong:
		return t.Long
	default:
		return 0
	}
}

// Scaled applies a multiplier to a TTL class, useful for half/double TTL variants.
func (t TTLSet) Scaled(class TTLClass, factor float64) time.Duration {
	base := t.Duration(class)
	if base <= 0 || factor <= 0 {
		return base
	}
	return time.Duration(float64(base) * factor)
}

func formatKey(parts ...string) string {
	values := make([]string, 0, len(parts)+1)
	values = append(values, Namespace)
	for _, part := range parts {
		clean := strings.TrimSpace(part)
		if clean == "" {
			continue
		}
		values = append(values, clean)
	}
	return strings.Join(values, ":")
}

// --- Run Reports ------------------------------------------------------------

// LastRunKey holds the most recent run report.
func LastRunKey() string {
	return formatKey("last_run")
}

// HistoryKey is a capped list of run reports, newest first.
func HistoryKey() string {
	return formatKey("history")
}

// --- Portfolio ----------------------------------------------------------------

// PortfolioKey holds the paper ledger snapshot restored on boot.
func PortfolioKey() string {
	return formatKey("portfolio")
}

// --- Market Data --------------------------------------------------------------

// BarsKey caches a provider response for one instrument, interval and lookback.
func BarsKey(instrument, interval string, lookback int) string {
	return formatKey("bars", strings.ToUpper(instrument), interval, strconv.Itoa(lookback))
}

// --- TTL Helpers ------------------------------------------------------------

// BarsTTL returns the TTL for cached provider responses. Kept below the
// default schedule so each run sees fresh bars.
func BarsTTL(ttl TTLSet) time.Duration {
	return ttl.Duration(TTLMedium)
}

// FormatCacheKey is exported for dynamic key construction when patterns
// are not covered by helpers.
func FormatCacheKey(parts ...string) string {
	return formatKey(parts...)
}
