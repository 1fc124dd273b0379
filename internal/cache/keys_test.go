package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"autopilot-engine/internal/config"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "autopilot:last_run", LastRunKey())
	assert.Equal(t, "autopilot:history", HistoryKey())
	assert.Equal(t, "autopilot:portfolio", PortfolioKey())
	assert.Equal(t, "autopilot:bars:AAPL:1d:300", BarsKey("aapl", "1d", 300))
	assert.Equal(t, "autopilot:a:b", FormatCacheKey("a", " ", "b"))
}

func TestTTLSet(t *testing.T) {
	ttl := NewTTLSet(config.CacheTTL{Short: 0, Medium: 30, Long: -1})
	assert.Equal(t, 10*time.Second, ttl.Short)
	assert.Equal(t, 30*time.Second, ttl.Medium)
	assert.Equal(t, time.Duration(0), ttl.Long)
	assert.Equal(t, 30*time.Second, BarsTTL(ttl))
	assert.Equal(t, 15*time.Second, ttl.Scaled(TTLMedium, 0.5))
	assert.Equal(t, time.Duration(0), ttl.Duration("unknown"))
}
