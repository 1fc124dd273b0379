// Package journal keeps an on-disk trail of run reports, one JSON file per
// run.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"autopilot-engine/pkg/autopilot"
)

const filePrefix = "run_"

// Writer persists run reports to a directory as JSON files (journal style).
type Writer struct {
	dir   string
	nowFn func() time.Time

	mu  sync.Mutex
	seq int
}

// NewWriter constructs a journal writer.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = "journal"
	}
	_ = os.MkdirAll(dir, 0o755)
	return &Writer{dir: dir, nowFn: time.Now}
}

// Dir returns the journal directory.
func (w *Writer) Dir() string { return w.dir }

// Deliver implements autopilot.ReportSink.
func (w *Writer) Deliver(_ context.Context, report *autopilot.RunReport) error {
	_, err := w.WriteRun(report)
	return err
}

// WriteRun writes a report to run_<timestamp>_<seq>.json and returns the
// path.
func (w *Writer) WriteRun(report *autopilot.RunReport) (string, error) {
	if report == nil {
		return "", fmt.Errorf("journal: nil report")
	}
	ts := report.StartedAt
	if ts.IsZero() {
		ts = w.nowFn()
	}
	w.mu.Lock()
	w.seq++
	seq := w.seq
	w.mu.Unlock()

	name := fmt.Sprintf("%s%s_%05d.json", filePrefix, ts.UTC().Format("20060102_150405"), seq)
	path := filepath.Join(w.dir, name)
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("journal: encode run %s: %w", report.RunID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("journal: %w", err)
	}
	return path, nil
}

// Recent loads up to limit reports, newest first.
func (w *Writer) Recent(limit int) ([]*autopilot.RunReport, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	out := make([]*autopilot.RunReport, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(w.dir, name))
		if err != nil {
			return nil, fmt.Errorf("journal: %w", err)
		}
		var r autopilot.RunReport
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("journal: decode %s: %w", name, err)
		}
		out = append(out, &r)
	}
	return out, nil
}
