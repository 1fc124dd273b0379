package exchange

import (
	"context"

	"autopilot-engine/pkg/risk"
)

// Executor submits an approved proposal to a broker. Implementations must
// not retry; a failed submission is reported once and left to the operator.
type Executor interface {
	Execute(ctx context.Context, p risk.Proposal) (*ExecutionReport, error)
}
