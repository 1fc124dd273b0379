// Package approval decides whether a risked proposal may be executed.
package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/pkg/risk"
)

// Verdict is the gate's answer for one proposal.
type Verdict string

const (
	Approved Verdict = "approved"
	Rejected Verdict = "rejected"
	// Pending means a human has not answered yet. It is terminal for the
	// current run; the proposal is not revisited.
	Pending Verdict = "pending"
)

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	switch v {
	case Approved, Rejected, Pending:
		return true
	}
	return false
}

// Gate reviews proposals.
type Gate interface {
	Submit(ctx context.Context, p risk.Proposal) (Verdict, error)
}

// Static returns the same verdict for every proposal.
type Static Verdict

func (s Static) Submit(context.Context, risk.Proposal) (Verdict, error) {
	return Verdict(s), nil
}

// Threshold approves proposals that are confident and small enough and
// leaves the rest pending for an operator.
type Threshold struct {
	MinConfidence float64
	// MaxNotional of zero disables the notional check.
	MaxNotional decimal.Decimal
}

func (t Threshold) Submit(_ context.Context, p risk.Proposal) (Verdict, error) {
	if p.Confidence < t.MinConfidence {
		return Pending, nil
	}
	if t.MaxNotional.IsPositive() && p.Notional.GreaterThan(t.MaxNotional) {
		return Pending, nil
	}
	return Approved, nil
}

// Webhook asks an external reviewer. The endpoint answers
// {"verdict":"approved|rejected|pending"}.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook builds a webhook gate.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, client: &http.Client{Timeout: timeout}}
}

type webhookAnswer struct {
	Verdict Verdict `json:"verdict"`
	Reason  string  `json:"reason,omitempty"`
}

func (w *Webhook) Submit(ctx context.Context, p risk.Proposal) (Verdict, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return Pending, fmt.Errorf("approval webhook: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return Pending, fmt.Errorf("approval webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return Pending, fmt.Errorf("approval webhook: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusAccepted {
		return Pending, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Pending, fmt.Errorf("approval webhook: unexpected status %d", resp.StatusCode)
	}
	var ans webhookAnswer
	if err := json.NewDecoder(resp.Body).Decode(&ans); err != nil {
		return Pending, fmt.Errorf("approval webhook: decode: %w", err)
	}
	ans.Verdict = Verdict(strings.ToLower(strings.TrimSpace(string(ans.Verdict))))
	if !ans.Verdict.Valid() {
		return Pending, fmt.Errorf("approval webhook: unknown verdict %q", ans.Verdict)
	}
	if ans.Reason != "" {
		logx.WithContext(ctx).Infof("approval webhook: %s %s: %s", p.Instrument, ans.Verdict, ans.Reason)
	}
	return ans.Verdict, nil
}
