package export

import (
	"encoding/csv"
	"os"
	"strconv"
)

// CSVSaver writes rows as CSV with a header line.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) SaveBars(rows []BarRow, path string) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, []string{"t", "o", "h", "l", "c", "v"})
	for _, r := range rows {
		records = append(records, []string{
			strconv.FormatInt(r.Timestamp, 10),
			formatFloat(r.Open),
			formatFloat(r.High),
			formatFloat(r.Low),
			formatFloat(r.Close),
			formatFloat(r.Volume),
		})
	}
	return writeCSV(path, records)
}

func (CSVSaver) SaveTrades(rows []TradeRow, path string) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, []string{
		"strategy_id", "direction", "entry_time", "exit_time", "entry_price",
		"exit_price", "realized_pnl", "return", "holding_bars", "reason", "forced",
	})
	for _, r := range rows {
		records = append(records, []string{
			r.StrategyID,
			r.Direction,
			strconv.FormatInt(r.EntryTime, 10),
			strconv.FormatInt(r.ExitTime, 10),
			formatFloat(r.EntryPrice),
			formatFloat(r.ExitPrice),
			formatFloat(r.RealizedPnL),
			formatFloat(r.Return),
			strconv.FormatInt(r.HoldingBars, 10),
			r.Reason,
			strconv.FormatBool(r.Forced),
		})
	}
	return writeCSV(path, records)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return err
	}
	return f.Sync()
}
