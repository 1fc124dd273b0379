// Package rest forwards approved proposals to a broker bridge over HTTP.
// The bridge answers with an execution report; no retries are attempted.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/pkg/exchange"
	"autopilot-engine/pkg/risk"
)

// TypeName is the registered executor type.
const TypeName = "rest"

const defaultTimeout = 10 * time.Second

// OrderRequest is the body posted to {base_url}/orders.
type OrderRequest struct {
	ClientOrderID string          `json:"client_order_id"`
	Instrument    string          `json:"instrument"`
	Side          string          `json:"side"`
	Type          string          `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	StopLoss      decimal.Decimal `json:"stop_loss"`
	TakeProfit    decimal.Decimal `json:"take_profit"`
}

// Executor implements exchange.Executor against a REST bridge.
type Executor struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customises an Executor.
type Option func(*Executor)

// WithHTTPClient injects the transport, mostly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		if c != nil {
			e.httpClient = c
		}
	}
}

// New constructs an Executor.
func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) (*Executor, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("rest executor: base url is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	e := &Executor{baseURL: baseURL, apiKey: apiKey, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute implements exchange.Executor.
func (e *Executor) Execute(ctx context.Context, p risk.Proposal) (*exchange.ExecutionReport, error) {
	body, err := json.Marshal(OrderRequest{
		ClientOrderID: p.ID,
		Instrument:    p.Instrument,
		Side:          string(p.Side),
		Type:          "market",
		Quantity:      p.Quantity,
		StopLoss:      p.StopLoss,
		TakeProfit:    p.TakeProfit,
	})
	if err != nil {
		return nil, exchange.Failed(p, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, exchange.Failed(p, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", p.ID)
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	start := time.Now()
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, exchange.Failed(p, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, exchange.Failed(p, err)
	}
	logx.WithContext(ctx).WithDuration(time.Since(start)).Infof("rest executor: %s %s -> %d", p.Instrument, p.ID, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, exchange.Failed(p, fmt.Errorf("broker status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	}
	var report exchange.ExecutionReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, exchange.Failed(p, fmt.Errorf("decode report: %w", err))
	}
	if !report.Filled() {
		return nil, exchange.Failed(p, fmt.Errorf("order %s %s", report.OrderID, report.Status))
	}
	if report.ExecutedAt.IsZero() {
		report.ExecutedAt = time.Now()
	}
	return &report, nil
}

func init() {
	exchange.RegisterProvider(TypeName, func(_ string, cfg *exchange.ProviderConfig, _ exchange.Deps) (exchange.Executor, error) {
		return New(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	})
}
