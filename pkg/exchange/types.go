package exchange

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"autopilot-engine/pkg/portfolio"
	"autopilot-engine/pkg/risk"
)

// ErrExecutionFailed wraps every broker-side failure.
var ErrExecutionFailed = errors.New("exchange: execution failed")

// Status of an execution.
type Status string

const (
	StatusFilled   Status = "filled"
	StatusPartial  Status = "partial"
	StatusRejected Status = "rejected"
)

// ExecutionReport is the broker's confirmation of an order.
type ExecutionReport struct {
	OrderID    string          `json:"order_id"`
	Status     Status          `json:"status"`
	FilledQty  decimal.Decimal `json:"filled_qty"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
	Fee        decimal.Decimal `json:"fee"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// Filled reports whether any quantity was executed.
func (r *ExecutionReport) Filled() bool {
	return r != nil && (r.Status == StatusFilled || r.Status == StatusPartial) && r.FilledQty.IsPositive()
}

// Fill converts a confirmed report into a ledger fill for p.
func (r *ExecutionReport) Fill(p risk.Proposal) portfolio.Fill {
	return portfolio.Fill{
		OrderID:    r.OrderID,
		Instrument: p.Instrument,
		Side:       p.Side,
		Quantity:   r.FilledQty,
		Price:      r.AvgPrice,
		Fee:        r.Fee,
		At:         r.ExecutedAt,
	}
}

// Failed wraps cause with ErrExecutionFailed and the proposal identity.
func Failed(p risk.Proposal, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s %s", ErrExecutionFailed, p.Instrument, p.ID)
	}
	if errors.Is(cause, ErrExecutionFailed) {
		return cause
	}
	return fmt.Errorf("%w: %s %s: %w", ErrExecutionFailed, p.Instrument, p.ID, cause)
}
