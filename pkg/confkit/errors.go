package confkit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfigInvalid marks configuration that must abort startup. Package
// validators wrap it so callers can tell a bad config apart from an I/O error.
var ErrConfigInvalid = errors.New("config invalid")

// Invalidf formats a validation failure wrapping ErrConfigInvalid.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConfigInvalid)
}

// ParsePositiveDuration parses a non-empty, strictly positive duration. The
// scope prefixes error messages, e.g. "autopilot config".
func ParsePositiveDuration(scope, field, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, Invalidf("%s: %s is required", scope, field)
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, Invalidf("%s: invalid %s %q: %v", scope, field, value, err)
	}
	if d <= 0 {
		return 0, Invalidf("%s: %s must be positive, got %s", scope, field, d)
	}
	return d, nil
}

// InUnitInterval reports whether v lies in [0,1].
func InUnitInterval(v float64) bool {
	return v >= 0 && v <= 1
}
