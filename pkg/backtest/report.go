package backtest

import (
	"encoding/json"
	"os"
)

// WriteReport persists a result as indented JSON.
func WriteReport(path string, r *Result) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
