// Package sim is a paper executor: it fills proposals immediately at the
// entry hint adjusted for slippage.
package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/pkg/exchange"
	"autopilot-engine/pkg/portfolio"
	"autopilot-engine/pkg/risk"
)

// TypeName is the registered executor type.
const TypeName = "sim"

var bps = decimal.NewFromInt(10000)

// Executor fills every valid proposal in full. When a ledger is attached,
// buys the account cannot fund are refused.
type Executor struct {
	ledger      *portfolio.Ledger
	feeBps      decimal.Decimal
	slippageBps decimal.Decimal
	now         func() time.Time
}

// Option customises an Executor.
type Option func(*Executor)

// WithFeeBps charges a fee on the filled notional.
func WithFeeBps(v float64) Option {
	return func(e *Executor) { e.feeBps = decimal.NewFromFloat(v) }
}

// WithSlippageBps moves fills against the order side.
func WithSlippageBps(v float64) Option {
	return func(e *Executor) { e.slippageBps = decimal.NewFromFloat(v) }
}

// WithClock overrides the execution timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// New constructs a paper executor. ledger may be nil.
func New(ledger *portfolio.Ledger, opts ...Option) *Executor {
	e := &Executor{ledger: ledger, feeBps: decimal.Zero, slippageBps: decimal.Zero, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements exchange.Executor. It never touches the ledger; the
// caller applies the returned fill.
func (e *Executor) Execute(ctx context.Context, p risk.Proposal) (*exchange.ExecutionReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, exchange.Failed(p, err)
	}
	if !p.Quantity.IsPositive() || !p.EntryPriceHint.IsPositive() {
		return nil, exchange.Failed(p, fmt.Errorf("sim: quantity %s and price %s must be positive", p.Quantity, p.EntryPriceHint))
	}

	slip := decimal.NewFromInt(1).Add(e.slippageBps.Div(bps))
	price := p.EntryPriceHint.Mul(slip)
	if p.Side == portfolio.Sell {
		price = p.EntryPriceHint.Mul(decimal.NewFromInt(2).Sub(slip))
	}
	if !price.IsPositive() {
		return nil, exchange.Failed(p, fmt.Errorf("sim: slippage drove price to %s", price))
	}
	notional := p.Quantity.Mul(price)
	fee := notional.Mul(e.feeBps).Div(bps)

	if e.ledger != nil && p.Side == portfolio.Buy {
		if cash := e.ledger.Snapshot().Cash; notional.Add(fee).GreaterThan(cash) {
			return nil, exchange.Failed(p, fmt.Errorf("%w: need %s, have %s", portfolio.ErrInsufficientCash, notional.Add(fee).StringFixed(2), cash.StringFixed(2)))
		}
	}

	report := &exchange.ExecutionReport{
		OrderID:    "sim-" + uuid.NewString(),
		Status:     exchange.StatusFilled,
		FilledQty:  p.Quantity,
		AvgPrice:   price,
		Fee:        fee,
		ExecutedAt: e.now(),
	}
	logx.WithContext(ctx).Infof("sim: filled %s %s %s @ %s (order %s)", p.Side, p.Quantity, p.Instrument, price.StringFixed(4), report.OrderID)
	return report, nil
}

func init() {
	exchange.RegisterProvider(TypeName, func(_ string, cfg *exchange.ProviderConfig, deps exchange.Deps) (exchange.Executor, error) {
		return New(deps.Ledger, WithFeeBps(cfg.FeeBps), WithSlippageBps(cfg.SlippageBps)), nil
	})
}
