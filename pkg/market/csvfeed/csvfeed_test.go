package csvfeed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopilot-engine/pkg/market"
)

func TestParse_OHLCVWithHeader(t *testing.T) {
	data := `timestamp,open,high,low,close,volume
2024-01-01T00:00:00Z,100,105,99,104,10
2024-01-01T01:00:00Z,104,106,103,105,12
`
	series, err := Parse("BTC", "1h", strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())
	assert.Equal(t, market.Bar{
		Time: time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), Open: 104, High: 106, Low: 103, Close: 105, Volume: 12,
	}, series.Bars[1])
}

func TestParse_CloseOnlyAndEpochs(t *testing.T) {
	data := "1704067200,100\n1704070800000,101\n"
	series, err := Parse("BTC", "1h", strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 2, series.Len())
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), series.Bars[1].Time)
	assert.Equal(t, 101.0, series.Bars[1].High)
}

func TestParse_BadRow(t *testing.T) {
	_, err := Parse("BTC", "1h", strings.NewReader("2024-01-01,1,2,3\n"))
	require.Error(t, err)
	_, err = Parse("BTC", "1h", strings.NewReader("ts,close\nnot-a-time,1\n"))
	require.Error(t, err)
}

func TestProvider_FetchBars(t *testing.T) {
	dir := t.TempDir()
	body := "ts,close\n2024-01-01,1\n2024-01-02,2\n2024-01-03,3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "AAPL_1day.csv"), []byte(body), 0o600))

	p := New(dir)
	series, err := p.FetchBars(context.Background(), "aapl", "1day", 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, series.Closes())

	_, err = p.FetchBars(context.Background(), "MSFT", "1day", 2)
	require.ErrorIs(t, err, market.ErrDataUnavailable)
}
