package signal

import (
	"context"
	"strings"
	"time"
)

// Static serves fixed strengths per instrument, e.g. an operator bias or a
// test fixture. Instruments without an entry read as unavailable.
type Static struct {
	name   string
	weight float64
	values map[string]float64
	now    func() time.Time
}

// NewStatic builds a Static provider. Keys are matched case-insensitively.
func NewStatic(name string, weight float64, values map[string]float64) *Static {
	normalised := make(map[string]float64, len(values))
	for k, v := range values {
		normalised[strings.ToUpper(strings.TrimSpace(k))] = Clamp(v)
	}
	return &Static{name: name, weight: weight, values: normalised, now: time.Now}
}

func (s *Static) Name() string { return s.name }

// Read implements Provider.
func (s *Static) Read(ctx context.Context, instrument string) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	v, ok := s.values[strings.ToUpper(strings.TrimSpace(instrument))]
	if !ok {
		return Unavailable(s.name, s.weight, "no value configured"), nil
	}
	return Reading{Source: s.name, Strength: v, Available: true, Weight: s.weight, At: s.now()}, nil
}
