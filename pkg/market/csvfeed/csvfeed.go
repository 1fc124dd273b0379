// Package csvfeed serves bars from OHLCV CSV files, one file per instrument.
package csvfeed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"autopilot-engine/pkg/market"
)

func init() {
	market.RegisterProvider("csv", func(name string, cfg *market.ProviderConfig) (market.Provider, error) {
		if cfg.Dir == "" {
			return nil, fmt.Errorf("csv provider %s: dir is required", name)
		}
		return New(cfg.Dir), nil
	})
}

// Provider reads <dir>/<INSTRUMENT>_<interval>.csv, falling back to
// <dir>/<INSTRUMENT>.csv.
type Provider struct {
	dir string
}

// New constructs a Provider rooted at dir.
func New(dir string) *Provider {
	return &Provider{dir: dir}
}

// FetchBars implements market.Provider.
func (p *Provider) FetchBars(ctx context.Context, instrument, interval string, lookback int) (*market.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := p.resolve(instrument, interval)
	if err != nil {
		return nil, market.Unavailable(instrument, err)
	}
	series, err := LoadFile(instrument, interval, path)
	if err != nil {
		return nil, market.Unavailable(instrument, err)
	}
	if series.Len() == 0 {
		return nil, market.Unavailable(instrument, errors.New("csv file has no bars"))
	}
	return series.Tail(lookback), nil
}

func (p *Provider) resolve(instrument, interval string) (string, error) {
	sym := strings.ToUpper(strings.TrimSpace(instrument))
	candidates := []string{filepath.Join(p.dir, sym+".csv")}
	if interval != "" {
		candidates = append([]string{filepath.Join(p.dir, sym+"_"+interval+".csv")}, candidates...)
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("no csv file for %s in %s", sym, p.dir)
}

// LoadFile parses a CSV file into a series.
func LoadFile(instrument, interval, path string) (*market.PriceSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(instrument, interval, f)
}

// Parse reads ts,open,high,low,close[,volume] rows. Two-column ts,close rows
// are accepted too, in which case every price column takes the close. A
// leading header row is skipped; rows that fail to parse are an error.
func Parse(instrument, interval string, r io.Reader) (*market.PriceSeries, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	bars := make([]market.Bar, 0, len(records))
	for i, rec := range records {
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}
		if i == 0 && isHeader(rec) {
			continue
		}
		bar, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("csvfeed: row %d: %w", i+1, err)
		}
		bars = append(bars, bar)
	}
	return market.NewPriceSeries(instrument, interval, bars), nil
}

func isHeader(rec []string) bool {
	last := strings.TrimSpace(rec[len(rec)-1])
	_, err := strconv.ParseFloat(last, 64)
	return err != nil
}

func parseRow(rec []string) (market.Bar, error) {
	ts, err := parseTime(rec[0])
	if err != nil {
		return market.Bar{}, err
	}
	nums := make([]float64, 0, len(rec)-1)
	for _, field := range rec[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return market.Bar{}, fmt.Errorf("parse %q: %w", field, err)
		}
		nums = append(nums, v)
	}
	switch len(nums) {
	case 1:
		c := nums[0]
		return market.Bar{Time: ts, Open: c, High: c, Low: c, Close: c}, nil
	case 4:
		return market.Bar{Time: ts, Open: nums[0], High: nums[1], Low: nums[2], Close: nums[3]}, nil
	case 5:
		return market.Bar{Time: ts, Open: nums[0], High: nums[1], Low: nums[2], Close: nums[3], Volume: nums[4]}, nil
	default:
		return market.Bar{}, fmt.Errorf("expected 2, 5 or 6 columns, got %d", len(rec))
	}
}

func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time %q", raw)
}
