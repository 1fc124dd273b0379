// Package autopilot runs the scan, backtest, score and risk pipeline over a
// watchlist on a schedule and hands the resulting proposals to an approval
// gate and, in execute mode, to an executor.
package autopilot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/pkg/approval"
	"autopilot-engine/pkg/backtest"
	"autopilot-engine/pkg/exchange"
	"autopilot-engine/pkg/market"
	"autopilot-engine/pkg/market/indicators"
	"autopilot-engine/pkg/notify"
	"autopilot-engine/pkg/portfolio"
	"autopilot-engine/pkg/risk"
	"autopilot-engine/pkg/scorer"
	"autopilot-engine/pkg/signal"
)

// ErrRunInProgress is returned by Trigger while another run is active.
var ErrRunInProgress = errors.New("autopilot: run in progress")

// BarSource refreshes and returns the series for an instrument.
// *market.SeriesStore satisfies it.
type BarSource interface {
	Refresh(ctx context.Context, instrument, interval string, lookback int) (*market.PriceSeries, error)
}

// Metrics receives run counters. internal/metrics provides the Prometheus
// implementation.
type Metrics interface {
	RunFinished(status RunStatus, d time.Duration)
	TriggerSkipped()
	InstrumentFinished(status InstrumentStatus)
	ProposalEmitted()
	CandidateRejected(code risk.Code)
	ExecutionFinished(ok bool)
}

type nopMetrics struct{}

func (nopMetrics) RunFinished(RunStatus, time.Duration) {}
func (nopMetrics) TriggerSkipped()                      {}
func (nopMetrics) InstrumentFinished(InstrumentStatus)  {}
func (nopMetrics) ProposalEmitted()                     {}
func (nopMetrics) CandidateRejected(risk.Code)          {}
func (nopMetrics) ExecutionFinished(bool)               {}

// Deps are the collaborators of a Scheduler. Series and Ledger are
// required; the rest have defaults.
type Deps struct {
	Series   BarSource
	Signals  []signal.Provider
	Ledger   *portfolio.Ledger
	Gate     approval.Gate
	Executor exchange.Executor
	Notifier notify.Notifier
	Sinks    []ReportSink
	Clock    Clock
	Metrics  Metrics
	// TopN bounds the proposals listed in the run summary alert.
	TopN int
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithModeFunc replaces the mode source. It is read once per proposal.
func WithModeFunc(fn func() Mode) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.modeFunc = fn
		}
	}
}

// WithObserver registers a state transition observer.
func WithObserver(obs Observer) Option {
	return func(s *Scheduler) {
		if obs != nil {
			s.observers = append(s.observers, obs)
		}
	}
}

// Scheduler owns the run loop. At most one run is active at a time.
type Scheduler struct {
	cfg        SchedulerConfig
	btOpts     backtest.Options
	strategies []*backtest.Strategy
	specs      []string
	scorer     *scorer.Scorer
	risk       *risk.Engine

	series   BarSource
	signals  []signal.Provider
	ledger   *portfolio.Ledger
	gate     approval.Gate
	executor exchange.Executor
	notifier notify.Notifier
	sinks    []ReportSink
	clock    Clock
	metrics  Metrics
	topN     int

	mode      atomic.Value
	modeFunc  func() Mode
	observers []Observer
	sm        *stateMachine

	running atomic.Bool
	seq     atomic.Int64

	mu     sync.Mutex
	active *RunReport
	last   *RunReport
}

// New validates cfg and wires the scheduler.
func New(cfg *Config, deps Deps, opts ...Option) (*Scheduler, error) {
	if cfg == nil {
		return nil, errors.New("autopilot: config is required")
	}
	if deps.Series == nil {
		return nil, errors.New("autopilot: bar source is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("autopilot: ledger is required")
	}
	strategies, err := backtest.BuildStrategies(cfg.Strategies)
	if err != nil {
		return nil, err
	}
	sc, err := scorer.New(cfg.Scorer)
	if err != nil {
		return nil, err
	}

	s := &Scheduler{
		cfg:        cfg.Autopilot,
		btOpts:     cfg.Backtest,
		strategies: strategies,
		specs:      cfg.IndicatorSpecs(strategies),
		scorer:     sc,
		series:     deps.Series,
		signals:    deps.Signals,
		ledger:     deps.Ledger,
		gate:       deps.Gate,
		executor:   deps.Executor,
		notifier:   deps.Notifier,
		sinks:      deps.Sinks,
		clock:      deps.Clock,
		metrics:    deps.Metrics,
		topN:       deps.TopN,
	}
	if s.gate == nil {
		s.gate = approval.Static(approval.Pending)
	}
	if s.notifier == nil {
		s.notifier = notify.NewLog()
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}
	if s.metrics == nil {
		s.metrics = nopMetrics{}
	}
	if s.topN <= 0 {
		s.topN = 5
	}
	s.risk, err = risk.NewEngine(cfg.Risk, risk.WithClock(s.clock.Now))
	if err != nil {
		return nil, err
	}
	s.mode.Store(cfg.Autopilot.Mode)
	s.modeFunc = s.Mode
	for _, opt := range opts {
		opt(s)
	}
	s.sm = newStateMachine(s.clock.Now, s.observers...)
	return s, nil
}

// Mode returns the current execution mode.
func (s *Scheduler) Mode() Mode {
	return s.mode.Load().(Mode)
}

// SetMode switches between propose and execute. It affects proposals handed
// off after the call, including those of an active run.
func (s *Scheduler) SetMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("autopilot: unknown mode %q", m)
	}
	s.mode.Store(m)
	return nil
}

// State returns the stage of the active run, or IDLE.
func (s *Scheduler) State() State { return s.sm.current() }

// Running reports whether a run is active.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Last returns the most recent finished run, or nil.
func (s *Scheduler) Last() *RunReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Watchlist returns the configured instruments in order.
func (s *Scheduler) Watchlist() []string {
	return append([]string(nil), s.cfg.Watchlist...)
}

// Start triggers a run on every tick of the clock until ctx is done, then
// waits for the active run to finish. Ticks that arrive during a run are
// skipped and recorded on that run.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.Schedule)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	fire := func(at time.Time) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Trigger(ctx, at); err != nil && !errors.Is(err, ErrRunInProgress) {
				logx.WithContext(ctx).Errorf("autopilot: run failed: %v", err)
			}
		}()
	}

	logx.WithContext(ctx).Infof("autopilot: scheduler started (every %s, %d instruments, mode=%s)", s.cfg.Schedule, len(s.cfg.Watchlist), s.Mode())
	if s.cfg.RunOnStart {
		fire(s.clock.Now())
	}
	for {
		select {
		case <-ctx.Done():
			logx.WithContext(ctx).Info("autopilot: scheduler stopping")
			return nil
		case at := <-ticker.C():
			fire(at)
		}
	}
}

// RunOnce performs one synchronous run now.
func (s *Scheduler) RunOnce(ctx context.Context) (*RunReport, error) {
	return s.Trigger(ctx, s.clock.Now())
}

// Trigger starts a run unless one is active. A rejected trigger is never
// queued; it is appended to the active run's SkippedTriggers. Sinks receive
// the report only after the guard is released.
func (s *Scheduler) Trigger(ctx context.Context, at time.Time) (*RunReport, error) {
	s.mu.Lock()
	if !s.running.CompareAndSwap(false, true) {
		runID := s.active.RunID
		s.active.SkippedTriggers = append(s.active.SkippedTriggers, at)
		s.mu.Unlock()
		s.metrics.TriggerSkipped()
		logx.WithContext(ctx).Infof("autopilot: trigger at %s skipped, run %s in progress", at.Format(time.RFC3339), runID)
		return nil, ErrRunInProgress
	}
	report := &RunReport{
		RunID:       uuid.NewString(),
		Seq:         s.seq.Add(1),
		TriggeredAt: at,
		StartedAt:   s.clock.Now(),
	}
	s.active = report
	s.mu.Unlock()

	err := s.run(ctx, report)

	s.mu.Lock()
	s.active = nil
	if err == nil {
		s.last = report
	}
	s.running.Store(false)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	logger := logx.WithContext(ctx).WithFields(logx.Field("run_id", report.RunID))
	logger.WithDuration(report.Duration()).Infof("autopilot: run %d %s, %d proposals, %d executed, %d skipped triggers",
		report.Seq, report.Status, len(report.Proposals()), report.Executed(), len(report.SkippedTriggers))
	s.publish(context.WithoutCancel(ctx), logger, report)
	return report, nil
}

// instrumentRun carries one instrument through the pipeline.
type instrumentRun struct {
	res     *InstrumentResult
	series  *market.PriceSeries
	set     *indicators.Set
	results []backtest.Result
	// stage and done are guarded by the tracker.
	stage State
	done  bool
}

var stageRank = map[State]int{
	StateIdle:             0,
	StateScanning:         1,
	StateIndicators:       2,
	StateBacktest:         3,
	StateScore:            4,
	StateRisk:             5,
	StateProposalsEmitted: 6,
}

// tracker advances the run state to the stage of the slowest unfinished
// instrument, so the run is in BACKTEST once every instrument has left
// INDICATORS.
type tracker struct {
	mu    sync.Mutex
	sm    *stateMachine
	runID string
	items []*instrumentRun
	state State
	err   error
}

func (t *tracker) enter(it *instrumentRun, stage State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it.stage = stage
	t.sync()
}

func (t *tracker) finish(it *instrumentRun) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it.done = true
	t.sync()
}

func (t *tracker) sync() {
	target := StateScore
	for _, it := range t.items {
		if !it.done && stageRank[it.stage] < stageRank[target] {
			target = it.stage
		}
	}
	for t.err == nil && stageRank[t.state] < stageRank[target] {
		next := nextState[t.state]
		if err := t.sm.transition(t.runID, t.state, next); err != nil {
			t.err = err
			return
		}
		t.state = next
	}
}

func (s *Scheduler) run(ctx context.Context, report *RunReport) (err error) {
	runID := report.RunID
	logger := logx.WithContext(ctx).WithFields(logx.Field("run_id", runID))
	defer func() {
		if cur := s.sm.current(); cur != StateIdle {
			if terr := s.sm.transition(runID, cur, StateIdle); terr != nil && err == nil {
				err = terr
			}
		}
	}()

	if err := s.sm.transition(runID, StateIdle, StateScanning); err != nil {
		return err
	}
	watchlist := s.Watchlist()
	report.Instruments = make([]InstrumentResult, len(watchlist))
	items := make([]*instrumentRun, len(watchlist))
	for i, sym := range watchlist {
		report.Instruments[i] = InstrumentResult{Instrument: sym, Status: InstrumentAbandoned}
		items[i] = &instrumentRun{res: &report.Instruments[i], stage: StateIndicators}
	}
	logger.Infof("autopilot: run %d scanning %d instruments", report.Seq, len(watchlist))

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.RunTimeout)
	defer cancel()

	if err := s.sm.transition(runID, StateScanning, StateIndicators); err != nil {
		return err
	}
	tr := &tracker{sm: s.sm, runID: runID, items: items, state: StateIndicators}
	s.fanOut(runCtx, logger, tr)
	if tr.err != nil {
		return tr.err
	}

	if err := s.sm.transition(runID, StateScore, StateRisk); err != nil {
		return err
	}
	s.evaluateRisk(runID, items)

	if err := s.sm.transition(runID, StateRisk, StateProposalsEmitted); err != nil {
		return err
	}
	status := RunCompleted
	for _, it := range items {
		if it.res.Proposal == nil {
			continue
		}
		if cerr := runCtx.Err(); cerr != nil {
			it.res.ExecutionError = "not handed off: " + cerr.Error()
			status = RunPartial
			continue
		}
		s.handoff(runCtx, logger, it.res)
	}

	for _, ir := range report.Instruments {
		s.metrics.InstrumentFinished(ir.Status)
		if ir.Status == InstrumentAbandoned {
			status = RunPartial
		}
	}

	s.mu.Lock()
	report.FinishedAt = s.clock.Now()
	report.Status = status
	s.mu.Unlock()

	if err := s.sm.transition(runID, StateProposalsEmitted, StateIdle); err != nil {
		return err
	}
	s.metrics.RunFinished(status, report.Duration())
	return nil
}

// fanOut runs the per-instrument pipeline with at most MaxConcurrency
// workers. Instruments not finished when ctx expires stay abandoned.
func (s *Scheduler) fanOut(ctx context.Context, logger logx.Logger, tr *tracker) {
	pending := make(chan *instrumentRun, len(tr.items))
	for _, it := range tr.items {
		pending <- it
	}
	close(pending)

	workers := min(s.cfg.MaxConcurrency, len(tr.items))
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for it := range pending {
				s.process(ctx, logger, tr, it)
				tr.finish(it)
			}
		}()
	}
	wg.Wait()
	tr.mu.Lock()
	tr.sync()
	tr.mu.Unlock()
}

func (s *Scheduler) process(ctx context.Context, logger logx.Logger, tr *tracker, it *instrumentRun) {
	steps := []struct {
		stage State
		fn    func(context.Context, *instrumentRun) error
	}{
		{StateIndicators, s.loadIndicators},
		{StateBacktest, s.backtestAll},
		{StateScore, s.scoreBest},
	}
	for _, step := range steps {
		tr.enter(it, step.stage)
		if ctx.Err() != nil {
			return
		}
		err := s.safeCall(ctx, it, step.fn)
		switch {
		case err == nil:
			continue
		case ctx.Err() != nil:
			// run timeout; left abandoned
		case errors.Is(err, market.ErrDataUnavailable):
			it.res.Status = InstrumentSkipped
			it.res.Error = err.Error()
			logger.Infof("autopilot: %s skipped: %v", it.res.Instrument, err)
		default:
			it.res.Status = InstrumentError
			it.res.Error = err.Error()
			logger.Errorf("autopilot: %s failed in %s: %v", it.res.Instrument, step.stage, err)
		}
		return
	}
	it.res.Status = InstrumentOK
}

func (s *Scheduler) safeCall(ctx context.Context, it *instrumentRun, fn func(context.Context, *instrumentRun) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("autopilot: panic: %v", r)
		}
	}()
	return fn(ctx, it)
}

func (s *Scheduler) loadIndicators(ctx context.Context, it *instrumentRun) error {
	sym := it.res.Instrument
	series, err := s.series.Refresh(ctx, sym, s.cfg.Interval, s.cfg.Lookback)
	if err != nil {
		return err
	}
	set, err := indicators.Compute(series, s.specs)
	if err != nil {
		return fmt.Errorf("autopilot: indicators for %s: %w", sym, err)
	}
	it.series, it.set = series, set
	it.res.Bars = series.Len()
	if last, ok := series.Last(); ok {
		it.res.LastClose = last.Close
	}
	snap := make(map[string]float64, len(s.cfg.SnapshotIndicators))
	for _, name := range s.cfg.SnapshotIndicators {
		if v, ok := set.Latest(name); ok {
			snap[name] = v
		}
	}
	it.res.Indicators = snap
	return nil
}

func (s *Scheduler) backtestAll(ctx context.Context, it *instrumentRun) error {
	it.results = make([]backtest.Result, 0, len(s.strategies))
	for _, strat := range s.strategies {
		if err := ctx.Err(); err != nil {
			return err
		}
		it.results = append(it.results, backtest.Run(it.series, it.set, strat, s.btOpts))
	}
	return nil
}

func (s *Scheduler) scoreBest(ctx context.Context, it *instrumentRun) error {
	sym := it.res.Instrument
	readings := signal.Collect(ctx, s.signals, sym)
	if err := ctx.Err(); err != nil {
		return err
	}
	atr, ok := it.set.Latest(s.cfg.ATRIndicator)
	if !ok {
		atr = 0
	}

	candidates := make([]scorer.Candidate, len(it.results))
	outcomes := make([]StrategyOutcome, len(it.results))
	for i, res := range it.results {
		strat := s.strategies[i]
		c := s.scorer.Score(sym, strat.ID, res, readings)
		c.Direction = strat.Direction
		c.EntryPriceHint = it.res.LastClose
		c.ATR = atr
		candidates[i] = c
		outcomes[i] = StrategyOutcome{
			StrategyID: strat.ID,
			Direction:  strat.Direction,
			Stats:      res.Stats,
			SignalNow:  res.SignalNow,
			Confidence: c.Confidence,
		}
	}
	it.res.Strategies = outcomes
	if best, ok := scorer.Best(candidates); ok {
		it.res.Candidate = &best
	}
	return nil
}

// evaluateRisk runs sequentially in watchlist order against one portfolio
// snapshot so the run limit truncates deterministically.
func (s *Scheduler) evaluateRisk(runID string, items []*instrumentRun) {
	riskRun := s.risk.NewRun(runID)
	st := s.ledger.Snapshot()
	for _, it := range items {
		if it.res.Status != InstrumentOK || it.res.Candidate == nil {
			continue
		}
		prop, rej := riskRun.Evaluate(*it.res.Candidate, st)
		if rej != nil {
			it.res.Rejection = rej
			s.metrics.CandidateRejected(rej.Code)
			continue
		}
		it.res.Proposal = prop
		s.metrics.ProposalEmitted()
	}
}

// handoff submits one proposal to the gate and, when approved in execute
// mode, to the executor. Only a confirmed execution touches the ledger.
func (s *Scheduler) handoff(ctx context.Context, logger logx.Logger, res *InstrumentResult) {
	p := *res.Proposal
	mode := s.modeFunc()
	res.Mode = mode

	verdict, err := s.gate.Submit(ctx, p)
	if err != nil {
		logger.Errorf("autopilot: approval for %s failed, treating as pending: %v", p.Instrument, err)
		verdict = approval.Pending
	}
	if !verdict.Valid() {
		verdict = approval.Pending
	}
	res.Verdict = verdict
	if mode != ModeExecute || verdict != approval.Approved {
		return
	}

	if s.executor == nil {
		s.executionFailed(ctx, logger, res, exchange.Failed(p, errors.New("no executor configured")))
		return
	}
	report, err := s.executor.Execute(ctx, p)
	if err == nil && !report.Filled() {
		err = exchange.Failed(p, fmt.Errorf("order %s not filled", orderID(report)))
	}
	if err != nil {
		s.executionFailed(ctx, logger, res, err)
		return
	}
	res.Execution = report
	s.metrics.ExecutionFinished(true)
	if _, err := s.ledger.ApplyConfirmedExecution(report.Fill(p)); err != nil {
		res.ExecutionError = "ledger: " + err.Error()
		logger.Errorf("autopilot: apply fill %s for %s: %v", report.OrderID, p.Instrument, err)
		s.alert(ctx, logger, notify.Critical, "ledger update failed: "+p.Instrument, res.ExecutionError)
		return
	}
	logger.Infof("autopilot: executed %s %s qty=%s @ %s (order %s)", p.Side, p.Instrument, report.FilledQty, report.AvgPrice, report.OrderID)
}

func (s *Scheduler) executionFailed(ctx context.Context, logger logx.Logger, res *InstrumentResult, err error) {
	res.ExecutionError = ExecutionFailed + ": " + err.Error()
	s.metrics.ExecutionFinished(false)
	logger.Errorf("autopilot: %s", res.ExecutionError)
	s.alert(ctx, logger, notify.Critical, "execution failed: "+res.Instrument, res.ExecutionError)
}

func (s *Scheduler) alert(ctx context.Context, logger logx.Logger, level notify.Level, title, msg string) {
	if err := s.notifier.Send(ctx, notify.Alert{Level: level, Title: title, Message: msg}); err != nil {
		logger.Errorf("autopilot: notify %q: %v", title, err)
	}
}

// publish delivers the report to every sink and sends the run summary.
// Failures are logged only.
func (s *Scheduler) publish(ctx context.Context, logger logx.Logger, report *RunReport) {
	for _, sink := range s.sinks {
		if err := sink.Deliver(ctx, report); err != nil {
			logger.Errorf("autopilot: report sink %T: %v", sink, err)
		}
	}
	if len(report.Proposals()) == 0 && report.Status == RunCompleted {
		return
	}
	level := notify.Info
	if report.Status == RunPartial {
		level = notify.Warning
	}
	s.alert(ctx, logger, level, fmt.Sprintf("autopilot run %d %s", report.Seq, report.Status), report.Summary(s.topN))
}

func orderID(r *exchange.ExecutionReport) string {
	if r == nil {
		return "<nil>"
	}
	return r.OrderID
}
