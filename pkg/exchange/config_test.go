package exchange_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopilot-engine/pkg/confkit"
	exchange "autopilot-engine/pkg/exchange"
	"autopilot-engine/pkg/exchange/rest"
	"autopilot-engine/pkg/exchange/sim"
)

func TestLoadConfigAndBuildDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BROKER_URL", "https://broker.example.com")

	configYAML := `
default: paper
providers:
  paper:
    type: sim
    fee_bps: 2
    slippage_bps: 5
  bridge:
    type: rest
    base_url: ${BROKER_URL}
    timeout: 5s
`
	path := filepath.Join(dir, "exchange.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := exchange.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "paper", cfg.Default)
	assert.Equal(t, "https://broker.example.com", cfg.Providers["bridge"].BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Providers["bridge"].Timeout)

	executor, err := cfg.BuildDefault(exchange.Deps{})
	require.NoError(t, err)
	assert.IsType(t, &sim.Executor{}, executor)

	cfg.Default = "bridge"
	executor, err = cfg.BuildDefault(exchange.Deps{})
	require.NoError(t, err)
	assert.IsType(t, &rest.Executor{}, executor)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"empty", "providers: {}\n"},
		{"unknown type", "providers:\n  x:\n    type: carrier-pigeon\n"},
		{"rest without url", "providers:\n  x:\n    type: rest\n"},
		{"negative fee", "providers:\n  x:\n    type: sim\n    fee_bps: -1\n"},
		{"bad timeout", "providers:\n  x:\n    type: sim\n    timeout: never\n"},
		{"missing default", "providers:\n  a:\n    type: sim\n  b:\n    type: sim\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := exchange.LoadConfigFromReader(strings.NewReader(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, confkit.ErrConfigInvalid)
		})
	}
}
