package market

import "context"

// Archive persists bars outside the process so the store can be seeded on
// boot and fall back to history when a provider is down.
type Archive interface {
	// SaveBars upserts bars keyed by instrument, interval and timestamp.
	SaveBars(ctx context.Context, instrument, interval string, bars []Bar) error
	// LoadBars returns up to limit of the newest archived bars, oldest first.
	LoadBars(ctx context.Context, instrument, interval string, limit int) ([]Bar, error)
}
