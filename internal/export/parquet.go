package export

import (
	"github.com/parquet-go/parquet-go"
)

// ParquetSaver writes rows as Parquet.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) SaveBars(rows []BarRow, path string) error {
	return parquet.WriteFile(path, rows)
}

func (ParquetSaver) SaveTrades(rows []TradeRow, path string) error {
	return parquet.WriteFile(path, rows)
}
