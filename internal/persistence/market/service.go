package marketpersist

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // register sqlite3 driver
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"autopilot-engine/pkg/market"
)

var _ market.Archive = (*Service)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS bars (
    instrument TEXT    NOT NULL,
    interval   TEXT    NOT NULL,
    ts         INTEGER NOT NULL,
    open       REAL    NOT NULL,
    high       REAL    NOT NULL,
    low        REAL    NOT NULL,
    close      REAL    NOT NULL,
    volume     REAL    NOT NULL,
    PRIMARY KEY (instrument, interval, ts)
);`

// Service archives bars in SQLite so the series store can seed from
// history when a provider is down.
type Service struct {
	sqlConn sqlx.SqlConn
}

// Config enumerates dependencies required to archive bars.
type Config struct {
	SQLConn sqlx.SqlConn
}

// NewService wires an archive. Returns nil when no connection is given.
func NewService(cfg Config) *Service {
	if cfg.SQLConn == nil {
		return nil
	}
	return &Service{sqlConn: cfg.SQLConn}
}

// Open creates the database file and schema at path and returns the
// archive.
func Open(ctx context.Context, path string) (*Service, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("bar archive: %w", err)
		}
	}
	conn := sqlx.NewSqlConn("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if db, err := conn.RawDB(); err == nil {
		// SQLite allows one writer.
		db.SetMaxOpenConns(1)
	}
	if _, err := conn.ExecCtx(ctx, schema); err != nil {
		return nil, fmt.Errorf("bar archive schema: %w", err)
	}
	logx.Infof("bar archive opened at %s", path)
	return NewService(Config{SQLConn: conn}), nil
}

// SaveBars upserts bars in one transaction.
func (s *Service) SaveBars(ctx context.Context, instrument, interval string, bars []market.Bar) error {
	if s == nil || s.sqlConn == nil || len(bars) == 0 {
		return nil
	}
	instrument = strings.ToUpper(strings.TrimSpace(instrument))
	stmt := `
INSERT INTO bars (instrument, interval, ts, open, high, low, close, volume)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (instrument, interval, ts) DO UPDATE SET
    open = excluded.open,
    high = excluded.high,
    low = excluded.low,
    close = excluded.close,
    volume = excluded.volume;`
	return s.sqlConn.TransactCtx(ctx, func(ctx context.Context, session sqlx.Session) error {
		for _, b := range bars {
			if _, err := session.ExecCtx(ctx, stmt, instrument, interval, b.Time.Unix(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
				return fmt.Errorf("archive %s %s: %w", instrument, b.Time.Format(time.RFC3339), err)
			}
		}
		return nil
	})
}

type barRow struct {
	Ts     int64   `db:"ts"`
	Open   float64 `db:"open"`
	High   float64 `db:"high"`
	Low    float64 `db:"low"`
	Close  float64 `db:"close"`
	Volume float64 `db:"volume"`
}

// LoadBars returns up to limit of the newest archived bars, oldest first.
func (s *Service) LoadBars(ctx context.Context, instrument, interval string, limit int) ([]market.Bar, error) {
	if s == nil || s.sqlConn == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1000
	}
	query := `
SELECT ts, open, high, low, close, volume
FROM bars
WHERE instrument = ? AND interval = ?
ORDER BY ts DESC
LIMIT ?`
	var rows []barRow
	if err := s.sqlConn.QueryRowsCtx(ctx, &rows, query, strings.ToUpper(strings.TrimSpace(instrument)), interval, limit); err != nil {
		return nil, fmt.Errorf("load archived bars %s: %w", instrument, err)
	}
	out := make([]market.Bar, len(rows))
	for i, r := range rows {
		out[len(rows)-1-i] = market.Bar{
			Time:   time.Unix(r.Ts, 0).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return out, nil
}

// Close releases the underlying database.
func (s *Service) Close() error {
	if s == nil || s.sqlConn == nil {
		return nil
	}
	db, err := s.sqlConn.RawDB()
	if err != nil {
		return err
	}
	return db.Close()
}
