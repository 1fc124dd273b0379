package twelvedata

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"autopilot-engine/pkg/market"
)

// TimeSeriesResponse is the time_series payload. Numeric values arrive as
// strings.
type TimeSeriesResponse struct {
	Status  string `json:"status"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Meta    struct {
		Symbol   string `json:"symbol"`
		Interval string `json:"interval"`
		Timezone string `json:"exchange_timezone"`
	} `json:"meta"`
	Values []Value `json:"values"`
}

// Value is one bar in a TimeSeriesResponse.
type Value struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

var datetimeLayouts = []string{"2006-01-02 15:04:05", "2006-01-02"}

// Bar converts a Value. Volume is optional because FX and index series omit it.
func (v Value) Bar() (market.Bar, error) {
	var ts time.Time
	var err error
	for _, layout := range datetimeLayouts {
		if ts, err = time.Parse(layout, v.Datetime); err == nil {
			break
		}
	}
	if err != nil {
		return market.Bar{}, fmt.Errorf("parse time %q: %w", v.Datetime, err)
	}
	bar := market.Bar{Time: ts.UTC()}
	if bar.Open, err = parseNumber("open", v.Open); err != nil {
		return market.Bar{}, err
	}
	if bar.High, err = parseNumber("high", v.High); err != nil {
		return market.Bar{}, err
	}
	if bar.Low, err = parseNumber("low", v.Low); err != nil {
		return market.Bar{}, err
	}
	if bar.Close, err = parseNumber("close", v.Close); err != nil {
		return market.Bar{}, err
	}
	if vol := strings.TrimSpace(v.Volume); vol != "" {
		if bar.Volume, err = parseNumber("volume", vol); err != nil {
			return market.Bar{}, err
		}
	}
	return bar, nil
}

func parseNumber(field, raw string) (float64, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", field, raw, err)
	}
	return n, nil
}
