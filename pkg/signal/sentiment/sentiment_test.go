package sentiment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopilot-engine/pkg/llm"
	"autopilot-engine/pkg/market"
	"autopilot-engine/pkg/signal"
)

type fakeChat struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	score   float64
	err     error
}

func (f *fakeChat) Chat(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not used")
}

func (f *fakeChat) ChatStructured(_ context.Context, req *llm.ChatRequest, target any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, req.Messages[len(req.Messages)-1].Content)
	if f.err != nil {
		return f.err
	}
	r := target.(*Rating)
	r.Score = f.score
	r.Rationale = "  earnings beat  "
	return nil
}

type seriesMap map[string]*market.PriceSeries

func (m seriesMap) Get(instrument, _ string) (*market.PriceSeries, bool) {
	s, ok := m[instrument]
	return s, ok
}

func TestReadRatesHeadlinesAndCaches(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := market.NewPriceSeries("AAPL", "1d", []market.Bar{
		{Time: base, Open: 100, High: 101, Low: 99, Close: 100},
		{Time: base.Add(24 * time.Hour), Open: 100, High: 111, Low: 99, Close: 110},
	})
	chat := &fakeChat{score: 1.7}
	p, err := New(chat, Options{
		Weight:    0.5,
		Headlines: map[string][]string{"aapl": {"Apple beats estimates"}},
		Series:    seriesMap{"AAPL": series},
		Interval:  "1d",
	})
	require.NoError(t, err)

	r, err := p.Read(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.True(t, r.Available)
	assert.Equal(t, 1.0, r.Strength)
	assert.Equal(t, 0.5, r.Weight)
	assert.Equal(t, "earnings beat", r.Detail)
	assert.Equal(t, TypeName, r.Source)

	require.Len(t, chat.prompts, 1)
	assert.Contains(t, chat.prompts[0], "- Apple beats estimates")
	assert.Contains(t, chat.prompts[0], "100.00, 110.00")
	assert.Contains(t, chat.prompts[0], "10.0%")

	_, err = p.Read(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, 1, chat.calls, "second read served from cache")
}

func TestReadWithoutHeadlinesSkipsModel(t *testing.T) {
	chat := &fakeChat{}
	p, err := New(chat, Options{})
	require.NoError(t, err)

	r, err := p.Read(context.Background(), "MSFT")
	require.NoError(t, err)
	assert.False(t, r.Available)
	assert.Zero(t, chat.calls)
}

func TestReadErrorBecomesUnavailableInCollect(t *testing.T) {
	chat := &fakeChat{err: errors.New("rate limited")}
	p, err := New(chat, Options{Name: "news", Weight: 2, Headlines: map[string][]string{"TSLA": {"recall"}}})
	require.NoError(t, err)

	readings := signal.Collect(context.Background(), []signal.Provider{p}, "TSLA")
	require.Len(t, readings, 1)
	assert.False(t, readings[0].Available)
	assert.Equal(t, "news", readings[0].Source)
	assert.True(t, strings.Contains(readings[0].Detail, "rate limited"))
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(nil, Options{})
	require.Error(t, err)
}

func TestRegisteredBuilder(t *testing.T) {
	cfg := signal.Config{Sources: []signal.SourceConfig{{Name: "news", Type: "sentiment"}}}
	require.NoError(t, cfg.Normalise())
	require.NoError(t, cfg.Validate())

	_, err := cfg.Build(signal.Deps{})
	require.Error(t, err, "llm client missing")

	providers, err := cfg.Build(signal.Deps{LLM: &fakeChat{}})
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "news", providers[0].Name())
}
