package repo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

// Schema creates the audit tables.
const Schema = `
CREATE TABLE IF NOT EXISTS autopilot_runs (
    run_id           TEXT PRIMARY KEY,
    seq              BIGINT NOT NULL,
    status           TEXT NOT NULL,
    triggered_at     TIMESTAMPTZ NOT NULL,
    started_at       TIMESTAMPTZ NOT NULL,
    finished_at      TIMESTAMPTZ NOT NULL,
    instruments      BIGINT NOT NULL DEFAULT 0,
    proposals        BIGINT NOT NULL DEFAULT 0,
    rejections       BIGINT NOT NULL DEFAULT 0,
    executed         BIGINT NOT NULL DEFAULT 0,
    skipped_triggers BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS autopilot_decisions (
    run_id           TEXT NOT NULL REFERENCES autopilot_runs (run_id) ON DELETE CASCADE,
    ordinal          BIGINT NOT NULL,
    instrument       TEXT NOT NULL,
    status           TEXT NOT NULL,
    error            TEXT NOT NULL DEFAULT '',
    strategy_id      TEXT NOT NULL DEFAULT '',
    direction        TEXT NOT NULL DEFAULT '',
    confidence       DOUBLE PRECISION NOT NULL DEFAULT 0,
    proposal_id      TEXT NOT NULL DEFAULT '',
    side             TEXT NOT NULL DEFAULT '',
    quantity         TEXT NOT NULL DEFAULT '',
    entry_price      TEXT NOT NULL DEFAULT '',
    stop_loss        TEXT NOT NULL DEFAULT '',
    take_profit      TEXT NOT NULL DEFAULT '',
    rejection_code   TEXT NOT NULL DEFAULT '',
    rejection_detail TEXT NOT NULL DEFAULT '',
    mode             TEXT NOT NULL DEFAULT '',
    verdict          TEXT NOT NULL DEFAULT '',
    order_id         TEXT NOT NULL DEFAULT '',
    execution_error  TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (run_id, instrument)
);`

// RunRecord provides a normalised view of the autopilot_runs table.
type RunRecord struct {
	RunID           string    `db:"run_id" json:"run_id"`
	Seq             int64     `db:"seq" json:"seq"`
	Status          string    `db:"status" json:"status"`
	TriggeredAt     time.Time `db:"triggered_at" json:"triggered_at"`
	StartedAt       time.Time `db:"started_at" json:"started_at"`
	FinishedAt      time.Time `db:"finished_at" json:"finished_at"`
	Instruments     int64     `db:"instruments" json:"instruments"`
	Proposals       int64     `db:"proposals" json:"proposals"`
	Rejections      int64     `db:"rejections" json:"rejections"`
	Executed        int64     `db:"executed" json:"executed"`
	SkippedTriggers int64     `db:"skipped_triggers" json:"skipped_triggers"`
}

// DecisionRecord is one instrument outcome within a run. Decimal amounts
// are stored as their exact string form.
type DecisionRecord struct {
	RunID           string  `db:"run_id" json:"run_id"`
	Ordinal         int64   `db:"ordinal" json:"ordinal"`
	Instrument      string  `db:"instrument" json:"instrument"`
	Status          string  `db:"status" json:"status"`
	Error           string  `db:"error" json:"error,omitempty"`
	StrategyID      string  `db:"strategy_id" json:"strategy_id,omitempty"`
	Direction       string  `db:"direction" json:"direction,omitempty"`
	Confidence      float64 `db:"confidence" json:"confidence"`
	ProposalID      string  `db:"proposal_id" json:"proposal_id,omitempty"`
	Side            string  `db:"side" json:"side,omitempty"`
	Quantity        string  `db:"quantity" json:"quantity,omitempty"`
	EntryPrice      string  `db:"entry_price" json:"entry_price,omitempty"`
	StopLoss        string  `db:"stop_loss" json:"stop_loss,omitempty"`
	TakeProfit      string  `db:"take_profit" json:"take_profit,omitempty"`
	RejectionCode   string  `db:"rejection_code" json:"rejection_code,omitempty"`
	RejectionDetail string  `db:"rejection_detail" json:"rejection_detail,omitempty"`
	Mode            string  `db:"mode" json:"mode,omitempty"`
	Verdict         string  `db:"verdict" json:"verdict,omitempty"`
	OrderID         string  `db:"order_id" json:"order_id,omitempty"`
	ExecutionError  string  `db:"execution_error" json:"execution_error,omitempty"`
}

// RunsRepo exposes read helpers for the audit trail.
type RunsRepo interface {
	// Recent returns runs ordered by sequence descending.
	Recent(ctx context.Context, limit int) ([]RunRecord, error)
	// Decisions returns the decisions of one run in watchlist order.
	Decisions(ctx context.Context, runID string) ([]DecisionRecord, error)
}

type runsRepo struct {
	conn sqlx.SqlConn
}

func newRunsRepo(deps Dependencies) RunsRepo {
	return &runsRepo{
		conn: deps.DBConn,
	}
}

func (r *runsRepo) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
SELECT
    run_id,
    seq,
    status,
    triggered_at,
    started_at,
    finished_at,
    instruments,
    proposals,
    rejections,
    executed,
    skipped_triggers
FROM public.autopilot_runs
ORDER BY started_at DESC, seq DESC
LIMIT $1`

	var rows []RunRecord
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("repo: recent runs: %w", err)
	}
	return rows, nil
}

func (r *runsRepo) Decisions(ctx context.Context, runID string) ([]DecisionRecord, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("repo: run id is required")
	}

	query := `
SELECT
    run_id,
    ordinal,
    instrument,
    status,
    error,
    strategy_id,
    direction,
    confidence,
    proposal_id,
    side,
    quantity,
    entry_price,
    stop_loss,
    take_profit,
    rejection_code,
    rejection_detail,
    mode,
    verdict,
    order_id,
    execution_error
FROM public.autopilot_decisions
WHERE run_id = $1
ORDER BY ordinal ASC`

	var rows []DecisionRecord
	if err := r.conn.QueryRowsCtx(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("repo: decisions for %s: %w", runID, err)
	}
	return rows, nil
}
