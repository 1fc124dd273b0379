// Package metrics exports scheduler activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zeromicro/go-zero/core/logx"

	"autopilot-engine/pkg/autopilot"
	"autopilot-engine/pkg/risk"
)

var _ autopilot.Metrics = (*Metrics)(nil)

var states = []autopilot.State{
	autopilot.StateIdle,
	autopilot.StateScanning,
	autopilot.StateIndicators,
	autopilot.StateBacktest,
	autopilot.StateScore,
	autopilot.StateRisk,
	autopilot.StateProposalsEmitted,
}

// Metrics holds all Prometheus metrics for the autopilot scheduler.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal        *prometheus.CounterVec // labels: status
	RunDuration      prometheus.Histogram
	SkippedTriggers  prometheus.Counter
	InstrumentsTotal *prometheus.CounterVec // labels: status
	ProposalsTotal   prometheus.Counter
	RejectionsTotal  *prometheus.CounterVec // labels: code
	ExecutionsTotal  *prometheus.CounterVec // labels: result
	RunState         *prometheus.GaugeVec   // labels: state, 1 for the current stage
}

// New registers all metrics on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopilot_runs_total",
			Help: "Finished runs by status",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autopilot_run_duration_seconds",
			Help:    "Wall time of a run from SCANNING to IDLE",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		SkippedTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopilot_skipped_triggers_total",
			Help: "Triggers dropped because a run was active",
		}),
		InstrumentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopilot_instruments_total",
			Help: "Processed watchlist entries by outcome",
		}, []string{"status"}),
		ProposalsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autopilot_proposals_total",
			Help: "Risked proposals emitted",
		}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopilot_rejections_total",
			Help: "Candidates rejected by the risk engine",
		}, []string{"code"}),
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autopilot_executions_total",
			Help: "Executor submissions by result",
		}, []string{"result"}),
		RunState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autopilot_run_state",
			Help: "Current scheduler stage (1 = active)",
		}, []string{"state"}),
	}
	m.registry.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.SkippedTriggers,
		m.InstrumentsTotal,
		m.ProposalsTotal,
		m.RejectionsTotal,
		m.ExecutionsTotal,
		m.RunState,
		collectors.NewGoCollector(),
	)
	m.setState(autopilot.StateIdle)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RunFinished(status autopilot.RunStatus, d time.Duration) {
	m.RunsTotal.WithLabelValues(string(status)).Inc()
	m.RunDuration.Observe(d.Seconds())
}

func (m *Metrics) TriggerSkipped() { m.SkippedTriggers.Inc() }

func (m *Metrics) InstrumentFinished(status autopilot.InstrumentStatus) {
	m.InstrumentsTotal.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ProposalEmitted() { m.ProposalsTotal.Inc() }

func (m *Metrics) CandidateRejected(code risk.Code) {
	m.RejectionsTotal.WithLabelValues(string(code)).Inc()
}

func (m *Metrics) ExecutionFinished(ok bool) {
	result := "failed"
	if ok {
		result = "filled"
	}
	m.ExecutionsTotal.WithLabelValues(result).Inc()
}

// Observe is an autopilot.Observer tracking the current stage.
func (m *Metrics) Observe(tr autopilot.Transition) {
	m.setState(tr.To)
}

func (m *Metrics) setState(current autopilot.State) {
	for _, st := range states {
		v := 0.0
		if st == current {
			v = 1
		}
		m.RunState.WithLabelValues(string(st)).Set(v)
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes Handler on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr, path string) error {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logx.Infof("metrics listening on %s%s", addr, path)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
