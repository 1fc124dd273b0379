package autopilot

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the stage of the active run.
type State string

const (
	StateIdle             State = "IDLE"
	StateScanning         State = "SCANNING"
	StateIndicators       State = "INDICATORS"
	StateBacktest         State = "BACKTEST"
	StateScore            State = "SCORE"
	StateRisk             State = "RISK"
	StateProposalsEmitted State = "PROPOSALS_EMITTED"
)

// ErrIllegalTransition is returned for a move outside the run lifecycle.
var ErrIllegalTransition = errors.New("autopilot: illegal state transition")

var nextState = map[State]State{
	StateIdle:             StateScanning,
	StateScanning:         StateIndicators,
	StateIndicators:       StateBacktest,
	StateBacktest:         StateScore,
	StateScore:            StateRisk,
	StateRisk:             StateProposalsEmitted,
	StateProposalsEmitted: StateIdle,
}

// Transition is delivered to observers on every state change.
type Transition struct {
	RunID string    `json:"run_id"`
	From  State     `json:"from"`
	To    State     `json:"to"`
	At    time.Time `json:"at"`
}

// Observer receives transitions synchronously; it must not block.
type Observer func(Transition)

type stateMachine struct {
	mu        sync.Mutex
	state     State
	observers []Observer
	now       func() time.Time
}

func newStateMachine(now func() time.Time, observers ...Observer) *stateMachine {
	return &stateMachine{state: StateIdle, observers: observers, now: now}
}

func (m *stateMachine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// transition moves from -> to. Only the next stage of the lifecycle is
// accepted, except that any stage may fall back to IDLE when a run aborts.
func (m *stateMachine) transition(runID string, from, to State) error {
	m.mu.Lock()
	if m.state != from {
		m.mu.Unlock()
		return fmt.Errorf("%w: in %s, not %s", ErrIllegalTransition, m.state, from)
	}
	if nextState[from] != to && !(to == StateIdle && from != StateIdle) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	m.state = to
	tr := Transition{RunID: runID, From: from, To: to, At: m.now()}
	observers := m.observers
	m.mu.Unlock()

	for _, obs := range observers {
		obs(tr)
	}
	return nil
}
