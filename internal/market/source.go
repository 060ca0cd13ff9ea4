// Package market provides read-only candle data for signal evaluation.
package market

import "context"

// Source fetches public candle history. Implementations must be safe for
// concurrent use by per-symbol evaluation cycles.
type Source interface {
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	LastPrice(ctx context.Context, symbol string) (float64, error)
	Close() error
}
