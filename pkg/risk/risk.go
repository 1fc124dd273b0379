// Package risk converts scored candidates into sized order proposals or
// explains why a candidate was rejected. It reads portfolio snapshots and
// never mutates them.
package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"autopilot-engine/pkg/backtest"
	"autopilot-engine/pkg/portfolio"
	"autopilot-engine/pkg/scorer"
)

// Code identifies a rejection reason.
type Code string

const (
	LowConfidence         Code = "LOW_CONFIDENCE"
	RunLimitReached       Code = "RUN_LIMIT_REACHED"
	PositionExists        Code = "POSITION_EXISTS"
	MaxPositions          Code = "MAX_POSITIONS"
	VolatilityUnavailable Code = "VOLATILITY_UNAVAILABLE"
	InvalidPrice          Code = "INVALID_PRICE"
	SizeTooSmall          Code = "SIZE_TOO_SMALL"
	InvalidBracket        Code = "INVALID_BRACKET"
)

// Rejection explains why no proposal was issued.
type Rejection struct {
	Instrument string `json:"instrument"`
	StrategyID string `json:"strategy_id"`
	Code       Code   `json:"code"`
	Detail     string `json:"detail"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("risk: %s %s: %s", r.Instrument, r.Code, r.Detail)
}

// Proposal is a sized, bracketed order awaiting approval.
type Proposal struct {
	ID             string             `json:"id"`
	RunID          string             `json:"run_id"`
	Instrument     string             `json:"instrument"`
	StrategyID     string             `json:"strategy_id"`
	Direction      backtest.Direction `json:"direction"`
	Side           portfolio.Side     `json:"side"`
	Quantity       decimal.Decimal    `json:"quantity"`
	EntryPriceHint decimal.Decimal    `json:"entry_price_hint"`
	StopLoss       decimal.Decimal    `json:"stop_loss"`
	TakeProfit     decimal.Decimal    `json:"take_profit"`
	CapitalAtRisk  decimal.Decimal    `json:"capital_at_risk"`
	Notional       decimal.Decimal    `json:"notional"`
	Confidence     float64            `json:"confidence"`
	RunCounter     int                `json:"run_counter"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Engine holds the validated limits. It is stateless across runs.
type Engine struct {
	cfg Config
	now func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the timestamp source for proposals.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine validates cfg.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine limits.
func (e *Engine) Config() Config { return e.cfg }

// Run counts proposals issued within one scheduler run.
type Run struct {
	engine *Engine
	id     string

	mu     sync.Mutex
	issued int
}

// NewRun starts a fresh proposal counter.
func (e *Engine) NewRun(runID string) *Run {
	return &Run{engine: e, id: runID}
}

// Issued returns the number of proposals emitted so far.
func (r *Run) Issued() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.issued
}

// Evaluate applies the rules in order and returns exactly one of a
// proposal or a rejection.
func (r *Run) Evaluate(c scorer.Candidate, st portfolio.State) (*Proposal, *Rejection) {
	cfg := r.engine.cfg
	reject := func(code Code, format string, args ...any) (*Proposal, *Rejection) {
		return nil, &Rejection{Instrument: c.Instrument, StrategyID: c.StrategyID, Code: code, Detail: fmt.Sprintf(format, args...)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if math.IsNaN(c.Confidence) || c.Confidence < cfg.MinScore {
		return reject(LowConfidence, "confidence %.4f below min_score %.4f", c.Confidence, cfg.MinScore)
	}
	if r.issued >= cfg.MaxTradesPerRun {
		return reject(RunLimitReached, "%d of %d proposals already issued this run", r.issued, cfg.MaxTradesPerRun)
	}
	if st.HasPosition(c.Instrument) {
		return reject(PositionExists, "position already open")
	}
	if cfg.MaxOpenPositions > 0 && st.OpenPositions() >= cfg.MaxOpenPositions {
		return reject(MaxPositions, "%d open positions, limit %d", st.OpenPositions(), cfg.MaxOpenPositions)
	}
	if !positiveFinite(c.ATR) {
		return reject(VolatilityUnavailable, "atr unavailable")
	}
	if !positiveFinite(c.EntryPriceHint) {
		return reject(InvalidPrice, "entry price hint %v", c.EntryPriceHint)
	}

	s := size(cfg, st.Cash, c.EntryPriceHint, c.ATR)
	if !s.qty.IsPositive() {
		return reject(SizeTooSmall, "cash %s cannot fund one lot of %s", st.Cash.StringFixed(2), cfg.LotSize.String())
	}

	reward := s.stopDistance.Mul(decimal.NewFromFloat(cfg.RewardRisk))
	stop, take := s.entry.Sub(s.stopDistance), s.entry.Add(reward)
	side := portfolio.Buy
	if c.Direction == backtest.Short {
		stop, take = s.entry.Add(s.stopDistance), s.entry.Sub(reward)
		side = portfolio.Sell
	}
	if !stop.IsPositive() || !take.IsPositive() {
		return reject(InvalidBracket, "stop %s take_profit %s", stop.String(), take.String())
	}

	r.issued++
	return &Proposal{
		ID:             uuid.NewString(),
		RunID:          r.id,
		Instrument:     c.Instrument,
		StrategyID:     c.StrategyID,
		Direction:      directionOf(c.Direction),
		Side:           side,
		Quantity:       s.qty,
		EntryPriceHint: s.entry,
		StopLoss:       stop,
		TakeProfit:     take,
		CapitalAtRisk:  s.qty.Mul(s.stopDistance),
		Notional:       s.qty.Mul(s.entry),
		Confidence:     c.Confidence,
		RunCounter:     r.issued,
		CreatedAt:      r.engine.now(),
	}, nil
}

type sizing struct {
	entry        decimal.Decimal
	stopDistance decimal.Decimal
	qty          decimal.Decimal
}

// size takes the smaller of the notional cap and the risk budget divided
// by the stop distance, rounded down to whole lots.
func size(cfg Config, cash decimal.Decimal, entryHint, atr float64) sizing {
	entry := decimal.NewFromFloat(entryHint)
	stopDistance := decimal.NewFromFloat(atr).Mul(decimal.NewFromFloat(cfg.StopMultiplier))
	out := sizing{entry: entry, stopDistance: stopDistance, qty: decimal.Zero}
	if !cash.IsPositive() || !stopDistance.IsPositive() {
		return out
	}

	maxPos := decimal.NewFromFloat(cfg.MaxPositionPct)
	riskPct := decimal.NewFromFloat(math.Min(cfg.RiskPerTradePct, cfg.MaxPositionPct))

	byNotional := cash.Mul(maxPos).Div(entry)
	byRisk := cash.Mul(riskPct).Div(stopDistance)
	raw := decimal.Min(byNotional, byRisk)
	qty := raw.Div(cfg.LotSize).Floor().Mul(cfg.LotSize)

	// Div rounds at DivisionPrecision; step back a lot if that crossed a bound.
	budget, notionalCap := cash.Mul(riskPct), cash.Mul(maxPos)
	for qty.IsPositive() && (qty.Mul(stopDistance).GreaterThan(budget) || qty.Mul(entry).GreaterThan(notionalCap)) {
		qty = qty.Sub(cfg.LotSize)
	}
	if qty.IsNegative() {
		qty = decimal.Zero
	}
	out.qty = qty
	return out
}

func directionOf(d backtest.Direction) backtest.Direction {
	if d == "" {
		return backtest.Long
	}
	return d
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
