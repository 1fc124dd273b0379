package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"autopilot-engine/internal/repo"
	"autopilot-engine/pkg/autopilot"
)

var _ autopilot.ReportSink = (*Service)(nil)

// Service writes run reports into the Postgres audit tables.
type Service struct {
	sqlConn sqlx.SqlConn
}

// Config enumerates dependencies needed to persist run reports.
type Config struct {
	SQLConn sqlx.SqlConn
}

// NewService wires the audit writer. Returns nil when no connection is given.
func NewService(cfg Config) *Service {
	if cfg.SQLConn == nil {
		return nil
	}
	return &Service{sqlConn: cfg.SQLConn}
}

// EnsureSchema creates the audit tables when missing.
func (s *Service) EnsureSchema(ctx context.Context) error {
	if s == nil || s.sqlConn == nil {
		return nil
	}
	if _, err := s.sqlConn.ExecCtx(ctx, repo.Schema); err != nil {
		return fmt.Errorf("audit schema: %w", err)
	}
	return nil
}

// Deliver implements autopilot.ReportSink.
func (s *Service) Deliver(ctx context.Context, report *autopilot.RunReport) error {
	return s.RecordRun(ctx, report)
}

// RecordRun inserts the run summary and one decision row per instrument in
// a single transaction. Re-recording a run is a no-op.
func (s *Service) RecordRun(ctx context.Context, report *autopilot.RunReport) error {
	if s == nil || s.sqlConn == nil {
		return nil
	}
	if report == nil {
		return errors.New("audit: nil report")
	}
	run := runRecord(report)
	decisions := decisionRecords(report)

	runStmt := `
INSERT INTO public.autopilot_runs (
    run_id, seq, status, triggered_at, started_at, finished_at,
    instruments, proposals, rejections, executed, skipped_triggers
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
ON CONFLICT (run_id) DO NOTHING`

	decisionStmt := `
INSERT INTO public.autopilot_decisions (
    run_id, ordinal, instrument, status, error, strategy_id, direction, confidence,
    proposal_id, side, quantity, entry_price, stop_loss, take_profit,
    rejection_code, rejection_detail, mode, verdict, order_id, execution_error
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20
)
ON CONFLICT (run_id, instrument) DO NOTHING`

	err := s.sqlConn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		if _, err := session.ExecCtx(ctx, runStmt,
			run.RunID, run.Seq, run.Status, run.TriggeredAt, run.StartedAt, run.FinishedAt,
			run.Instruments, run.Proposals, run.Rejections, run.Executed, run.SkippedTriggers,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for _, d := range decisions {
			if _, err := session.ExecCtx(ctx, decisionStmt,
				d.RunID, d.Ordinal, d.Instrument, d.Status, d.Error, d.StrategyID, d.Direction, d.Confidence,
				d.ProposalID, d.Side, d.Quantity, d.EntryPrice, d.StopLoss, d.TakeProfit,
				d.RejectionCode, d.RejectionDetail, d.Mode, d.Verdict, d.OrderID, d.ExecutionError,
			); err != nil {
				return fmt.Errorf("insert decision %s: %w", d.Instrument, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("audit run %s: %w", report.RunID, err)
	}
	logx.WithContext(ctx).Infof("audit: recorded run %s with %d decisions", report.RunID, len(decisions))
	return nil
}

func runRecord(r *autopilot.RunReport) repo.RunRecord {
	triggered := r.TriggeredAt
	if triggered.IsZero() {
		triggered = r.StartedAt
	}
	return repo.RunRecord{
		RunID:           r.RunID,
		Seq:             r.Seq,
		Status:          string(r.Status),
		TriggeredAt:     triggered,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		Instruments:     int64(len(r.Instruments)),
		Proposals:       int64(len(r.Proposals())),
		Rejections:      int64(len(r.Rejections())),
		Executed:        int64(r.Executed()),
		SkippedTriggers: int64(len(r.SkippedTriggers)),
	}
}

func decisionRecords(r *autopilot.RunReport) []repo.DecisionRecord {
	out := make([]repo.DecisionRecord, 0, len(r.Instruments))
	for i, ir := range r.Instruments {
		d := repo.DecisionRecord{
			RunID:          r.RunID,
			Ordinal:        int64(i),
			Instrument:     ir.Instrument,
			Status:         string(ir.Status),
			Error:          ir.Error,
			Mode:           string(ir.Mode),
			Verdict:        string(ir.Verdict),
			ExecutionError: ir.ExecutionError,
		}
		if c := ir.Candidate; c != nil {
			d.StrategyID = c.StrategyID
			d.Direction = string(c.Direction)
			d.Confidence = c.Confidence
		}
		if p := ir.Proposal; p != nil {
			d.ProposalID = p.ID
			d.Side = string(p.Side)
			d.Quantity = decimalString(p.Quantity)
			d.EntryPrice = decimalString(p.EntryPriceHint)
			d.StopLoss = decimalString(p.StopLoss)
			d.TakeProfit = decimalString(p.TakeProfit)
		}
		if rej := ir.Rejection; rej != nil {
			d.RejectionCode = string(rej.Code)
			d.RejectionDetail = rej.Detail
		}
		if ex := ir.Execution; ex != nil {
			d.OrderID = ex.OrderID
		}
		out = append(out, d)
	}
	return out
}

func decimalString(d decimal.Decimal) string {
	if d.IsZero() {
		return ""
	}
	return d.String()
}
