// Package portfolio owns the paper account: cash and open positions. The
// Ledger is the single writer; everything else works on snapshots.
package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidFill rejects fills with missing or non-positive fields.
	ErrInvalidFill = errors.New("portfolio: invalid fill")
	// ErrInsufficientCash rejects buys that cost more than the cash held.
	ErrInsufficientCash = errors.New("portfolio: insufficient cash")
)

// Side of a fill.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

const maxFillHistory = 500

// Position is a net holding. Quantity is negative for shorts.
type Position struct {
	Instrument string          `json:"instrument"`
	Quantity   decimal.Decimal `json:"quantity"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
	OpenedAt   time.Time       `json:"opened_at"`
}

// Short reports whether the position is net short.
func (p Position) Short() bool { return p.Quantity.IsNegative() }

// State is a point-in-time copy of the account.
type State struct {
	Cash      decimal.Decimal     `json:"cash"`
	Positions map[string]Position `json:"positions"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{Cash: s.Cash, UpdatedAt: s.UpdatedAt, Positions: make(map[string]Position, len(s.Positions))}
	for k, v := range s.Positions {
		out.Positions[k] = v
	}
	return out
}

// HasPosition reports whether instrument has a non-zero holding.
func (s State) HasPosition(instrument string) bool {
	p, ok := s.Positions[key(instrument)]
	return ok && !p.Quantity.IsZero()
}

// OpenPositions counts non-zero holdings.
func (s State) OpenPositions() int {
	n := 0
	for _, p := range s.Positions {
		if !p.Quantity.IsZero() {
			n++
		}
	}
	return n
}

// Instruments lists held instruments in sorted order.
func (s State) Instruments() []string {
	out := make([]string, 0, len(s.Positions))
	for k := range s.Positions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Fill is a confirmed execution reported by a broker.
type Fill struct {
	OrderID    string          `json:"order_id"`
	Instrument string          `json:"instrument"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Fee        decimal.Decimal `json:"fee"`
	At         time.Time       `json:"at"`
}

func (f Fill) validate() error {
	if strings.TrimSpace(f.Instrument) == "" {
		return fmt.Errorf("%w: instrument is required", ErrInvalidFill)
	}
	if f.Side != Buy && f.Side != Sell {
		return fmt.Errorf("%w: side %q", ErrInvalidFill, f.Side)
	}
	if !f.Quantity.IsPositive() || !f.Price.IsPositive() {
		return fmt.Errorf("%w: quantity and price must be positive", ErrInvalidFill)
	}
	if f.Fee.IsNegative() {
		return fmt.Errorf("%w: fee cannot be negative", ErrInvalidFill)
	}
	return nil
}

// Ledger guards the account state.
type Ledger struct {
	mu        sync.RWMutex
	state     State
	fills     []Fill
	listeners []func(State)
	now       func() time.Time
}

// NewLedger opens an account holding cash and no positions.
func NewLedger(cash decimal.Decimal) *Ledger {
	return Restore(State{Cash: cash})
}

// Restore opens a ledger from a persisted snapshot.
func Restore(st State) *Ledger {
	st = st.Clone()
	normalised := make(map[string]Position, len(st.Positions))
	for k, p := range st.Positions {
		if p.Quantity.IsZero() {
			continue
		}
		p.Instrument = key(k)
		normalised[key(k)] = p
	}
	st.Positions = normalised
	return &Ledger{state: st, now: time.Now}
}

// OnChange registers fn to receive a snapshot after every applied fill.
// Listeners run outside the lock in registration order.
func (l *Ledger) OnChange(fn func(State)) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Clone()
}

// Fills returns the most recent confirmed fills, oldest first.
func (l *Ledger) Fills() []Fill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// ApplyConfirmedExecution is the only mutation of the account. Buys debit
// cost plus fee and sells credit proceeds less fee; positions net by
// signed quantity and keep a volume-weighted average price while growing.
func (l *Ledger) ApplyConfirmedExecution(f Fill) (State, error) {
	if err := f.validate(); err != nil {
		return State{}, err
	}
	f.Instrument = key(f.Instrument)

	l.mu.Lock()
	notional := f.Quantity.Mul(f.Price)
	signed := f.Quantity
	cash := l.state.Cash
	if f.Side == Buy {
		cost := notional.Add(f.Fee)
		if cost.GreaterThan(cash) {
			l.mu.Unlock()
			return State{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, cost.StringFixed(2), cash.StringFixed(2))
		}
		cash = cash.Sub(cost)
	} else {
		signed = signed.Neg()
		cash = cash.Add(notional).Sub(f.Fee)
	}

	at := f.At
	if at.IsZero() {
		at = l.now()
		f.At = at
	}
	if l.state.Positions == nil {
		l.state.Positions = make(map[string]Position)
	}
	pos := l.state.Positions[f.Instrument]
	next := netPosition(pos, signed, f.Price, at)
	next.Instrument = f.Instrument
	if next.Quantity.IsZero() {
		delete(l.state.Positions, f.Instrument)
	} else {
		l.state.Positions[f.Instrument] = next
	}
	l.state.Cash = cash
	l.state.UpdatedAt = at

	l.fills = append(l.fills, f)
	if len(l.fills) > maxFillHistory {
		l.fills = l.fills[len(l.fills)-maxFillHistory:]
	}
	snapshot := l.state.Clone()
	listeners := append([]func(State){}, l.listeners...)
	l.mu.Unlock()

	for _, fn := range listeners {
		fn(snapshot.Clone())
	}
	return snapshot, nil
}

func netPosition(pos Position, signed, price decimal.Decimal, at time.Time) Position {
	qty := pos.Quantity
	switch {
	case qty.IsZero():
		return Position{Quantity: signed, AvgPrice: price, OpenedAt: at}
	case qty.Sign() == signed.Sign():
		total := qty.Add(signed)
		cost := qty.Abs().Mul(pos.AvgPrice).Add(signed.Abs().Mul(price))
		pos.Quantity = total
		pos.AvgPrice = cost.Div(total.Abs())
		return pos
	default:
		total := qty.Add(signed)
		if total.IsZero() || total.Sign() == qty.Sign() {
			pos.Quantity = total
			return pos
		}
		// flipped through zero
		return Position{Quantity: total, AvgPrice: price, OpenedAt: at}
	}
}

func key(instrument string) string {
	return strings.ToUpper(strings.TrimSpace(instrument))
}
