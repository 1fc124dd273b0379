package autopilot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"autopilot-engine/pkg/approval"
	"autopilot-engine/pkg/backtest"
	"autopilot-engine/pkg/exchange"
	"autopilot-engine/pkg/risk"
	"autopilot-engine/pkg/scorer"
)

// RunStatus summarises how a run ended.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	// RunPartial means the run timeout abandoned at least one instrument.
	RunPartial RunStatus = "partial"
)

// InstrumentStatus is the outcome of one watchlist entry.
type InstrumentStatus string

const (
	InstrumentOK        InstrumentStatus = "ok"
	InstrumentSkipped   InstrumentStatus = "skipped"
	InstrumentError     InstrumentStatus = "error"
	InstrumentAbandoned InstrumentStatus = "abandoned"
)

// ExecutionFailed is the decision code recorded when the executor fails.
const ExecutionFailed = "EXECUTION_FAILED"

// StrategyOutcome is the backtest summary of one strategy.
type StrategyOutcome struct {
	StrategyID string             `json:"strategy_id"`
	Direction  backtest.Direction `json:"direction"`
	Stats      backtest.Stats     `json:"stats"`
	SignalNow  bool               `json:"signal_now"`
	Confidence float64            `json:"confidence"`
}

// InstrumentResult holds everything decided about one instrument.
type InstrumentResult struct {
	Instrument string           `json:"instrument"`
	Status     InstrumentStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	Bars       int              `json:"bars"`
	LastClose  float64          `json:"last_close,omitempty"`
	// Indicators holds the newest defined value of each snapshot series.
	Indicators map[string]float64        `json:"indicators,omitempty"`
	Strategies []StrategyOutcome         `json:"strategies,omitempty"`
	Candidate  *scorer.Candidate         `json:"candidate,omitempty"`
	Proposal   *risk.Proposal            `json:"proposal,omitempty"`
	Rejection  *risk.Rejection           `json:"rejection,omitempty"`
	Mode       Mode                      `json:"mode,omitempty"`
	Verdict    approval.Verdict          `json:"verdict,omitempty"`
	Execution  *exchange.ExecutionReport `json:"execution,omitempty"`
	// ExecutionError carries ExecutionFailed plus the cause, or the reason a
	// proposal never reached the gate.
	ExecutionError string `json:"execution_error,omitempty"`
}

// RunReport is the record of one run.
type RunReport struct {
	RunID           string             `json:"run_id"`
	Seq             int64              `json:"seq"`
	TriggeredAt     time.Time          `json:"triggered_at"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      time.Time          `json:"finished_at"`
	Status          RunStatus          `json:"status"`
	Instruments     []InstrumentResult `json:"instruments"`
	SkippedTriggers []time.Time        `json:"skipped_triggers,omitempty"`
}

// Duration is the wall time the run took.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Proposals returns the proposals in watchlist order.
func (r *RunReport) Proposals() []risk.Proposal {
	var out []risk.Proposal
	for _, ir := range r.Instruments {
		if ir.Proposal != nil {
			out = append(out, *ir.Proposal)
		}
	}
	return out
}

// Rejections returns the rejections in watchlist order.
func (r *RunReport) Rejections() []risk.Rejection {
	var out []risk.Rejection
	for _, ir := range r.Instruments {
		if ir.Rejection != nil {
			out = append(out, *ir.Rejection)
		}
	}
	return out
}

// Executed counts proposals with a filled execution.
func (r *RunReport) Executed() int {
	n := 0
	for _, ir := range r.Instruments {
		if ir.Execution != nil && ir.Execution.Filled() {
			n++
		}
	}
	return n
}

// Counts tallies instruments by status.
func (r *RunReport) Counts() map[InstrumentStatus]int {
	out := make(map[InstrumentStatus]int, 4)
	for _, ir := range r.Instruments {
		out[ir.Status]++
	}
	return out
}

// TopProposals returns up to n proposals by descending confidence. Ties keep
// watchlist order.
func (r *RunReport) TopProposals(n int) []risk.Proposal {
	props := r.Proposals()
	sort.SliceStable(props, func(i, j int) bool { return props[i].Confidence > props[j].Confidence })
	if n >= 0 && len(props) > n {
		props = props[:n]
	}
	return props
}

// Summary renders a short plain-text digest for notifications.
func (r *RunReport) Summary(topN int) string {
	counts := r.Counts()
	var b strings.Builder
	fmt.Fprintf(&b, "run %s (%s) in %s: %d ok, %d skipped, %d error, %d abandoned\n",
		r.RunID, r.Status, r.Duration().Round(time.Millisecond),
		counts[InstrumentOK], counts[InstrumentSkipped], counts[InstrumentError], counts[InstrumentAbandoned])
	top := r.TopProposals(topN)
	if len(top) == 0 {
		b.WriteString("no proposals")
		return b.String()
	}
	for i, p := range top {
		fmt.Fprintf(&b, "%d. %s %s %s qty=%s entry=%s sl=%s tp=%s conf=%.2f\n",
			i+1, p.Instrument, p.Side, p.StrategyID, p.Quantity, p.EntryPriceHint.StringFixed(2),
			p.StopLoss.StringFixed(2), p.TakeProfit.StringFixed(2), p.Confidence)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ReportSink receives every finished run.
type ReportSink interface {
	Deliver(ctx context.Context, report *RunReport) error
}

// SinkFunc adapts a function to ReportSink.
type SinkFunc func(ctx context.Context, report *RunReport) error

func (f SinkFunc) Deliver(ctx context.Context, report *RunReport) error { return f(ctx, report) }
