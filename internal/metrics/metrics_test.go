package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autopilot-engine/pkg/autopilot"
	"autopilot-engine/pkg/risk"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.RunFinished(autopilot.RunCompleted, 2*time.Second)
	m.RunFinished(autopilot.RunPartial, time.Second)
	m.RunFinished(autopilot.RunCompleted, time.Second)
	m.TriggerSkipped()
	m.InstrumentFinished(autopilot.InstrumentOK)
	m.InstrumentFinished(autopilot.InstrumentSkipped)
	m.ProposalEmitted()
	m.CandidateRejected(risk.LowConfidence)
	m.CandidateRejected(risk.LowConfidence)
	m.ExecutionFinished(true)
	m.ExecutionFinished(false)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("partial")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SkippedTriggers))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstrumentsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProposalsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("LOW_CONFIDENCE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("filled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExecutionsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestMetrics_StateGauge(t *testing.T) {
	m := New()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunState.WithLabelValues("IDLE")))

	m.Observe(autopilot.Transition{From: autopilot.StateIdle, To: autopilot.StateScanning})
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunState.WithLabelValues("IDLE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunState.WithLabelValues("SCANNING")))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ProposalEmitted()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "autopilot_proposals_total 1")
	assert.Contains(t, string(body), `autopilot_run_state{state="IDLE"} 1`)
}
