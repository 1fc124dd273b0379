package autopilot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopilot-engine/pkg/approval"
	"autopilot-engine/pkg/exchange"
	"autopilot-engine/pkg/exchange/sim"
	"autopilot-engine/pkg/market"
	"autopilot-engine/pkg/notify"
	"autopilot-engine/pkg/portfolio"
	"autopilot-engine/pkg/risk"
	"autopilot-engine/pkg/signal"
)

var t0 = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

// externalOnly makes confidence a direct function of the static signal:
// confidence = (strength + 1) / 2.
const externalOnly = `
autopilot:
  watchlist: [%s]
  lookback: 60
  max_concurrency: 3
  schedule: 1m
  run_timeout: %s
  starting_cash: "100000"
strategies:
  - id: always_long
    entry: {type: threshold, indicator: close, op: gt, value: 0}
    max_holding_bars: 5
scorer:
  weights: {performance: 0, risk: 0, external_signal: 1}
risk:
  min_score: 0.7
  max_trades_per_run: %d
  max_open_positions: 0
  risk_per_trade_pct: 0.01
  max_position_pct: 0.1
  stop_multiplier: 2
  reward_risk: 2
  lot_size: "1"
`

func testConfig(t *testing.T, watchlist []string, maxTrades int, timeout string) *Config {
	t.Helper()
	raw := fmt.Sprintf(externalOnly, strings.Join(watchlist, ", "), timeout, maxTrades)
	cfg, err := LoadConfigFromReader(strings.NewReader(raw), t.TempDir())
	require.NoError(t, err)
	return cfg
}

// zigzag oscillates around 100 so ATR is positive.
func zigzag(instrument string, n int) *market.PriceSeries {
	bars := make([]market.Bar, n)
	for i := range bars {
		c := 100.0
		if i%2 == 1 {
			c = 102
		}
		bars[i] = market.Bar{Time: t0.AddDate(0, 0, i-n), Open: c - 1, High: c + 1, Low: c - 2, Close: c, Volume: 1000}
	}
	return market.NewPriceSeries(instrument, "1d", bars)
}

func flatSeries(instrument string, n int, px float64) *market.PriceSeries {
	bars := make([]market.Bar, n)
	for i := range bars {
		bars[i] = market.Bar{Time: t0.AddDate(0, 0, i-n), Open: px, High: px, Low: px, Close: px}
	}
	return market.NewPriceSeries(instrument, "1d", bars)
}

func staticStore(series ...*market.PriceSeries) *market.SeriesStore {
	return market.NewSeriesStore(market.NewStaticProvider(series...), 0)
}

type countingMetrics struct {
	mu        sync.Mutex
	skipped   int
	runs      map[RunStatus]int
	rejected  map[risk.Code]int
	proposals int
	execOK    int
	execFail  int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{runs: map[RunStatus]int{}, rejected: map[risk.Code]int{}}
}

func (m *countingMetrics) RunFinished(s RunStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[s]++
}

func (m *countingMetrics) TriggerSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func (m *countingMetrics) InstrumentFinished(InstrumentStatus) {}

func (m *countingMetrics) ProposalEmitted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals++
}

func (m *countingMetrics) CandidateRejected(code risk.Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[code]++
}

func (m *countingMetrics) ExecutionFinished(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ok {
		m.execOK++
	} else {
		m.execFail++
	}
}

func (m *countingMetrics) skips() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skipped
}

// blockingSource holds every Refresh until release is closed or ctx ends.
type blockingSource struct {
	inner   BarSource
	block   map[string]bool
	release chan struct{}
	entered chan string
}

func (b *blockingSource) Refresh(ctx context.Context, instrument, interval string, lookback int) (*market.PriceSeries, error) {
	if b.block[instrument] {
		select {
		case b.entered <- instrument:
		default:
		}
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.inner.Refresh(ctx, instrument, interval, lookback)
}

type failingSource struct {
	inner BarSource
	fail  map[string]error
}

func (f failingSource) Refresh(ctx context.Context, instrument, interval string, lookback int) (*market.PriceSeries, error) {
	if err, ok := f.fail[instrument]; ok {
		return nil, err
	}
	return f.inner.Refresh(ctx, instrument, interval, lookback)
}

type countingGate struct {
	mu      sync.Mutex
	verdict approval.Verdict
	err     error
	calls   int
}

func (g *countingGate) Submit(context.Context, risk.Proposal) (approval.Verdict, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.verdict, g.err
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, p risk.Proposal) (*exchange.ExecutionReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, p.Instrument)
	if f.err != nil {
		return nil, exchange.Failed(p, f.err)
	}
	return &exchange.ExecutionReport{
		OrderID:    "fake-" + p.Instrument,
		Status:     exchange.StatusFilled,
		FilledQty:  p.Quantity,
		AvgPrice:   p.EntryPriceHint,
		ExecutedAt: t0,
	}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *recordingNotifier) Send(_ context.Context, a notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recordingNotifier) levels() []notify.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Level, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Level
	}
	return out
}

func strengths(values map[string]float64) []signal.Provider {
	return []signal.Provider{signal.NewStatic("desk", 1, values)}
}

func newScheduler(t *testing.T, cfg *Config, deps Deps, opts ...Option) *Scheduler {
	t.Helper()
	if deps.Ledger == nil {
		deps.Ledger = portfolio.NewLedger(cfg.Autopilot.StartingCash)
	}
	if deps.Clock == nil {
		deps.Clock = NewVirtualClock(t0)
	}
	s, err := New(cfg, deps, opts...)
	require.NoError(t, err)
	return s
}

func resultFor(t *testing.T, r *RunReport, sym string) InstrumentResult {
	t.Helper()
	for _, ir := range r.Instruments {
		if ir.Instrument == sym {
			return ir
		}
	}
	t.Fatalf("no result for %s", sym)
	return InstrumentResult{}
}

func TestRunOnce_RunLimitTruncatesInWatchlistOrder(t *testing.T) {
	syms := []string{"AAA", "BBB", "CCC", "DDD", "EEE"}
	cfg := testConfig(t, syms, 2, "5s")
	var series []*market.PriceSeries
	values := map[string]float64{}
	for _, s := range syms {
		series = append(series, zigzag(s, 80))
		values[s] = 1
	}
	metrics := newCountingMetrics()
	s := newScheduler(t, cfg, Deps{Series: staticStore(series...), Signals: strengths(values), Metrics: metrics})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, RunCompleted, report.Status)

	props := report.Proposals()
	require.Len(t, props, 2)
	assert.Equal(t, "AAA", props[0].Instrument)
	assert.Equal(t, "BBB", props[1].Instrument)
	assert.Equal(t, 1, props[0].RunCounter)
	assert.Equal(t, 2, props[1].RunCounter)
	for _, sym := range syms[2:] {
		ir := resultFor(t, report, sym)
		require.NotNil(t, ir.Rejection, sym)
		assert.Equal(t, risk.RunLimitReached, ir.Rejection.Code)
	}
	assert.Equal(t, 2, metrics.proposals)
	assert.Equal(t, 3, metrics.rejected[risk.RunLimitReached])
	assert.Equal(t, 1, metrics.runs[RunCompleted])

	// Repeated runs truncate identically.
	again, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, again.Proposals(), 2)
	assert.Equal(t, "AAA", again.Proposals()[0].Instrument)
	assert.Equal(t, "BBB", again.Proposals()[1].Instrument)
	assert.Equal(t, int64(2), again.Seq)
}

func TestRunOnce_FlatSeriesEmitsNoProposals(t *testing.T) {
	raw := `
autopilot:
  watchlist: [FLAT]
  lookback: 120
strategies:
  - id: sma_cross
    entry: {type: cross, fast: sma_20, slow: sma_50, direction: above}
    exit: {type: cross, fast: sma_20, slow: sma_50, direction: below}
  - id: rsi_reversion
    entry: {type: threshold, indicator: rsi_14, op: lt, value: 30}
    exit: {type: threshold, indicator: rsi_14, op: gt, value: 55}
scorer:
  weights: {performance: 0.5, risk: 0.3, external_signal: 0.2}
risk:
  min_score: 0.7
  max_trades_per_run: 3
  risk_per_trade_pct: 0.01
  max_position_pct: 0.1
  stop_multiplier: 2
  reward_risk: 2
  lot_size: "1"
`
	cfg, err := LoadConfigFromReader(strings.NewReader(raw), t.TempDir())
	require.NoError(t, err)
	s := newScheduler(t, cfg, Deps{Series: staticStore(flatSeries("FLAT", 120, 50))})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Proposals())

	ir := resultFor(t, report, "FLAT")
	assert.Equal(t, InstrumentOK, ir.Status)
	require.NotNil(t, ir.Candidate)
	assert.Equal(t, 0, ir.Candidate.Backtest.TradeCount)
	require.NotNil(t, ir.Rejection)
	assert.Equal(t, risk.LowConfidence, ir.Rejection.Code)
	assert.Equal(t, 50.0, ir.LastClose)
	assert.Equal(t, 50.0, ir.Indicators["sma_20"])
	assert.Contains(t, ir.Indicators, "atr_14")
}

func TestRunOnce_ConfidenceJustBelowMinScoreIsRejected(t *testing.T) {
	cfg := testConfig(t, []string{"LOW", "HIGH"}, 3, "5s")
	// (0.38+1)/2 = 0.69 and (0.42+1)/2 = 0.71
	sigs := strengths(map[string]float64{"LOW": 0.38, "HIGH": 0.42})
	s := newScheduler(t, cfg, Deps{Series: staticStore(zigzag("LOW", 80), zigzag("HIGH", 80)), Signals: sigs})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	low := resultFor(t, report, "LOW")
	require.NotNil(t, low.Candidate)
	assert.InDelta(t, 0.69, low.Candidate.Confidence, 1e-9)
	assert.Nil(t, low.Proposal)
	require.NotNil(t, low.Rejection)
	assert.Equal(t, risk.LowConfidence, low.Rejection.Code)

	high := resultFor(t, report, "HIGH")
	require.NotNil(t, high.Proposal)
	assert.InDelta(t, 0.71, high.Proposal.Confidence, 1e-9)
	assert.Equal(t, 1, high.Proposal.RunCounter)
}

func TestRunOnce_SkipsUnavailableAndIsolatesErrors(t *testing.T) {
	cfg := testConfig(t, []string{"AAA", "GONE", "BAD", "DDD"}, 5, "5s")
	src := failingSource{
		inner: staticStore(zigzag("AAA", 80), zigzag("BAD", 80), zigzag("DDD", 80)),
		fail:  map[string]error{"BAD": errors.New("decode failure")},
	}
	s := newScheduler(t, cfg, Deps{Series: src, Signals: strengths(map[string]float64{"AAA": 1, "DDD": 1})})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, report.Status)

	assert.Equal(t, InstrumentOK, resultFor(t, report, "AAA").Status)
	gone := resultFor(t, report, "GONE")
	assert.Equal(t, InstrumentSkipped, gone.Status)
	assert.Contains(t, gone.Error, "data unavailable")
	bad := resultFor(t, report, "BAD")
	assert.Equal(t, InstrumentError, bad.Status)
	assert.Contains(t, bad.Error, "decode failure")
	assert.Equal(t, InstrumentOK, resultFor(t, report, "DDD").Status)
	assert.Len(t, report.Proposals(), 2)
	assert.Equal(t, map[InstrumentStatus]int{InstrumentOK: 2, InstrumentSkipped: 1, InstrumentError: 1}, report.Counts())
}

func TestRunOnce_ExecuteModeAppliesConfirmedFills(t *testing.T) {
	cfg := testConfig(t, []string{"AAA", "BBB"}, 3, "5s")
	cfg.Autopilot.Mode = ModeExecute
	ledger := portfolio.NewLedger(decimal.NewFromInt(100000))
	s := newScheduler(t, cfg, Deps{
		Series:   staticStore(zigzag("AAA", 80), zigzag("BBB", 80)),
		Signals:  strengths(map[string]float64{"AAA": 1, "BBB": 1}),
		Ledger:   ledger,
		Gate:     approval.Static(approval.Approved),
		Executor: sim.New(ledger),
	})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Executed())

	st := ledger.Snapshot()
	assert.True(t, st.HasPosition("AAA"))
	assert.True(t, st.HasPosition("BBB"))
	assert.True(t, st.Cash.LessThan(decimal.NewFromInt(100000)))
	for _, ir := range report.Instruments {
		assert.Equal(t, approval.Approved, ir.Verdict)
		assert.Equal(t, ModeExecute, ir.Mode)
		require.NotNil(t, ir.Execution)
		assert.True(t, ir.Execution.FilledQty.Equal(ir.Proposal.Quantity))
	}

	// Open positions now block new proposals.
	next, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, next.Proposals())
	assert.Equal(t, risk.PositionExists, resultFor(t, next, "AAA").Rejection.Code)
}

func TestRunOnce_ExecutionFailureLeavesPortfolioUntouched(t *testing.T) {
	cfg := testConfig(t, []string{"AAA"}, 3, "5s")
	cfg.Autopilot.Mode = ModeExecute
	ledger := portfolio.NewLedger(decimal.NewFromInt(100000))
	exec := &fakeExecutor{err: errors.New("broker down")}
	alerts := &recordingNotifier{}
	metrics := newCountingMetrics()
	s := newScheduler(t, cfg, Deps{
		Series:   staticStore(zigzag("AAA", 80)),
		Signals:  strengths(map[string]float64{"AAA": 1}),
		Ledger:   ledger,
		Gate:     approval.Static(approval.Approved),
		Executor: exec,
		Notifier: alerts,
		Metrics:  metrics,
	})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	ir := resultFor(t, report, "AAA")
	require.NotNil(t, ir.Proposal)
	assert.Nil(t, ir.Execution)
	assert.True(t, strings.HasPrefix(ir.ExecutionError, ExecutionFailed), ir.ExecutionError)
	assert.Contains(t, ir.ExecutionError, "broker down")
	assert.Equal(t, []string{"AAA"}, exec.calls, "no retry")
	assert.Equal(t, 1, metrics.execFail)

	st := ledger.Snapshot()
	assert.True(t, st.Cash.Equal(decimal.NewFromInt(100000)))
	assert.False(t, st.HasPosition("AAA"))
	assert.Contains(t, alerts.levels(), notify.Critical)
}

func TestRunOnce_ModeIsReadOncePerProposal(t *testing.T) {
	cfg := testConfig(t, []string{"AAA", "BBB", "CCC"}, 3, "5s")
	exec := &fakeExecutor{}
	var mu sync.Mutex
	reads := 0
	modeFn := func() Mode {
		mu.Lock()
		defer mu.Unlock()
		reads++
		if reads == 2 {
			return ModeExecute
		}
		return ModePropose
	}
	s := newScheduler(t, cfg, Deps{
		Series:   staticStore(zigzag("AAA", 80), zigzag("BBB", 80), zigzag("CCC", 80)),
		Signals:  strengths(map[string]float64{"AAA": 1, "BBB": 1, "CCC": 1}),
		Gate:     approval.Static(approval.Approved),
		Executor: exec,
	}, WithModeFunc(modeFn))

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, reads)
	assert.Equal(t, []string{"BBB"}, exec.calls)
	assert.Equal(t, ModePropose, resultFor(t, report, "AAA").Mode)
	assert.Equal(t, ModeExecute, resultFor(t, report, "BBB").Mode)
}

func TestRunOnce_PendingAndGateErrorsNeverExecute(t *testing.T) {
	cfg := testConfig(t, []string{"AAA"}, 3, "5s")
	cfg.Autopilot.Mode = ModeExecute
	for name, gate := range map[string]*countingGate{
		"pending": {verdict: approval.Pending},
		"error":   {verdict: approval.Approved, err: errors.New("webhook timeout")},
		"bogus":   {verdict: approval.Verdict("maybe")},
	} {
		t.Run(name, func(t *testing.T) {
			exec := &fakeExecutor{}
			s := newScheduler(t, cfg, Deps{
				Series:   staticStore(zigzag("AAA", 80)),
				Signals:  strengths(map[string]float64{"AAA": 1}),
				Gate:     gate,
				Executor: exec,
			})
			report, err := s.RunOnce(context.Background())
			require.NoError(t, err)
			assert.Equal(t, approval.Pending, resultFor(t, report, "AAA").Verdict)
			assert.Empty(t, exec.calls)
			assert.Equal(t, 1, gate.calls)
		})
	}
}

func TestRunOnce_TimeoutAbandonsUnfinishedInstruments(t *testing.T) {
	cfg := testConfig(t, []string{"FAST", "SLOW"}, 3, "100ms")
	gate := &countingGate{verdict: approval.Approved}
	src := &blockingSource{
		inner:   staticStore(zigzag("FAST", 80), zigzag("SLOW", 80)),
		block:   map[string]bool{"SLOW": true},
		release: make(chan struct{}),
		entered: make(chan string, 1),
	}
	s := newScheduler(t, cfg, Deps{
		Series:  src,
		Signals: strengths(map[string]float64{"FAST": 1, "SLOW": 1}),
		Gate:    gate,
	})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RunPartial, report.Status)
	assert.Equal(t, InstrumentAbandoned, resultFor(t, report, "SLOW").Status)

	fast := resultFor(t, report, "FAST")
	assert.Equal(t, InstrumentOK, fast.Status)
	require.NotNil(t, fast.Proposal)
	assert.Contains(t, fast.ExecutionError, "not handed off")
	assert.Empty(t, fast.Verdict)
	assert.Equal(t, 0, gate.calls)
	assert.Equal(t, StateIdle, s.State())
}

func TestTrigger_MutualExclusionWithVirtualClock(t *testing.T) {
	cfg := testConfig(t, []string{"AAA"}, 3, "1h")
	clock := NewVirtualClock(t0)
	metrics := newCountingMetrics()
	src := &blockingSource{
		inner:   staticStore(zigzag("AAA", 80)),
		block:   map[string]bool{"AAA": true},
		release: make(chan struct{}),
		entered: make(chan string, 1),
	}
	s := newScheduler(t, cfg, Deps{Series: src, Clock: clock, Metrics: metrics})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()
	require.Eventually(t, func() bool { return clock.Tickers() == 1 }, time.Second, time.Millisecond)

	clock.Advance(time.Minute)
	select {
	case <-src.entered:
	case <-time.After(time.Second):
		t.Fatal("first run never started")
	}
	require.True(t, s.Running())
	assert.Equal(t, StateIndicators, s.State())

	for i := 1; i <= 2; i++ {
		clock.Advance(time.Minute)
		require.Eventually(t, func() bool { return metrics.skips() == i }, time.Second, time.Millisecond)
	}
	_, err := s.Trigger(ctx, clock.Now())
	require.ErrorIs(t, err, ErrRunInProgress)

	close(src.release)
	require.Eventually(t, func() bool { return s.Last() != nil }, time.Second, time.Millisecond)
	last := s.Last()
	assert.Equal(t, t0.Add(time.Minute), last.TriggeredAt)
	assert.Equal(t, []time.Time{t0.Add(2 * time.Minute), t0.Add(3 * time.Minute), t0.Add(3 * time.Minute)}, last.SkippedTriggers)
	assert.Equal(t, int64(1), last.Seq, "skipped triggers are not queued")

	cancel()
	require.NoError(t, <-done)
	assert.False(t, s.Running())
}

func TestTrigger_SkipsLandInDeliveredReport(t *testing.T) {
	cfg := testConfig(t, []string{"AAA"}, 3, "1h")
	metrics := newCountingMetrics()
	src := &blockingSource{
		inner:   staticStore(zigzag("AAA", 80)),
		block:   map[string]bool{"AAA": true},
		release: make(chan struct{}),
		entered: make(chan string, 1),
	}
	delivered := make(chan *RunReport, 2)
	unblock := make(chan struct{})
	s := newScheduler(t, cfg, Deps{Series: src, Metrics: metrics, Sinks: []ReportSink{
		SinkFunc(func(_ context.Context, r *RunReport) error {
			delivered <- r
			if r.Seq == 1 {
				<-unblock
			}
			return nil
		}),
	}})

	ctx := context.Background()
	done := make(chan *RunReport, 1)
	go func() {
		r, err := s.Trigger(ctx, t0)
		assert.NoError(t, err)
		done <- r
	}()
	select {
	case <-src.entered:
	case <-time.After(time.Second):
		t.Fatal("first run never started")
	}

	_, err := s.Trigger(ctx, t0.Add(time.Second))
	require.ErrorIs(t, err, ErrRunInProgress)
	close(src.release)

	var first *RunReport
	select {
	case first = <-delivered:
	case <-time.After(time.Second):
		t.Fatal("first report never delivered")
	}
	assert.Equal(t, []time.Time{t0.Add(time.Second)}, first.SkippedTriggers)

	// The first sink is still blocked; the guard is already released.
	assert.False(t, s.Running())
	second, err := s.Trigger(ctx, t0.Add(2*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Seq)
	assert.Same(t, second, <-delivered)

	close(unblock)
	assert.Same(t, first, <-done)
	assert.Equal(t, 1, metrics.skips())
	assert.Same(t, second, s.Last())
}

func TestRun_ObserversSeeFullLifecycle(t *testing.T) {
	cfg := testConfig(t, []string{"AAA"}, 3, "5s")
	var mu sync.Mutex
	var seen []State
	s := newScheduler(t, cfg, Deps{Series: staticStore(zigzag("AAA", 80))}, WithObserver(func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tr.To)
	}))

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []State{StateScanning, StateIndicators, StateBacktest, StateScore, StateRisk, StateProposalsEmitted, StateIdle}, seen)
	assert.NotEmpty(t, report.RunID)
}

func TestStateMachine_RejectsIllegalMoves(t *testing.T) {
	sm := newStateMachine(func() time.Time { return t0 })
	require.ErrorIs(t, sm.transition("r", StateIdle, StateBacktest), ErrIllegalTransition)
	require.ErrorIs(t, sm.transition("r", StateScanning, StateIndicators), ErrIllegalTransition)
	require.NoError(t, sm.transition("r", StateIdle, StateScanning))
	require.ErrorIs(t, sm.transition("r", StateScanning, StateRisk), ErrIllegalTransition)
	require.NoError(t, sm.transition("r", StateScanning, StateIdle), "abort back to idle")
	require.ErrorIs(t, sm.transition("r", StateIdle, StateIdle), ErrIllegalTransition)
	assert.Equal(t, StateIdle, sm.current())
}

func TestRun_SinkFailuresAreNotFatal(t *testing.T) {
	cfg := testConfig(t, []string{"AAA"}, 3, "5s")
	var got *RunReport
	alerts := &recordingNotifier{}
	s := newScheduler(t, cfg, Deps{
		Series:   staticStore(zigzag("AAA", 80)),
		Signals:  strengths(map[string]float64{"AAA": 1}),
		Notifier: alerts,
		Sinks: []ReportSink{
			SinkFunc(func(context.Context, *RunReport) error { return errors.New("redis down") }),
			SinkFunc(func(_ context.Context, r *RunReport) error { got = r; return nil }),
		},
	})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Same(t, report, got)
	assert.Same(t, report, s.Last())
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, notify.Info, alerts.alerts[0].Level)
	assert.Contains(t, alerts.alerts[0].Message, "1. AAA buy always_long")
}

func TestScheduler_SetMode(t *testing.T) {
	cfg := testConfig(t, []string{"AAA"}, 3, "5s")
	s := newScheduler(t, cfg, Deps{Series: staticStore(zigzag("AAA", 80))})
	assert.Equal(t, ModePropose, s.Mode())
	require.NoError(t, s.SetMode(ModeExecute))
	assert.Equal(t, ModeExecute, s.Mode())
	require.Error(t, s.SetMode("yolo"))
	assert.Equal(t, ModeExecute, s.Mode())
}

func TestNew_RequiresCollaborators(t *testing.T) {
	cfg := testConfig(t, []string{"AAA"}, 3, "5s")
	_, err := New(cfg, Deps{Ledger: portfolio.NewLedger(decimal.NewFromInt(1))})
	require.Error(t, err)
	_, err = New(cfg, Deps{Series: staticStore()})
	require.Error(t, err)
	_, err = New(nil, Deps{})
	require.Error(t, err)
}
