// Package leverage learns a safe starting leverage per pair.
//
// The ladder is fixed: successes step up 2 -> 3 -> 5 -> 10, failures step
// down in reverse until the floor, below which the caller falls back to a
// non-margin order. The cache stores the minimum leverage ever verified to
// work, not the largest.
package leverage

import (
	"context"
	"fmt"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/logger"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"
)

// Ladder is the fixed sequence of leverage multiples tried in order.
var Ladder = []float64{2, 3, 5, 10}

// VerifyInterval bounds how long a verified leverage is trusted. An older
// entry still seeds the starting point but is re-verified by the next order.
const VerifyInterval = 24 * time.Hour

// Cache owns the persisted leverage records. The execution layer reads a
// starting value and reports successes and failures back.
type Cache struct {
	st    store.Store
	nowFn func() time.Time
}

func NewCache(st store.Store) *Cache {
	return &Cache{st: st, nowFn: time.Now}
}

// InitialLeverage picks the starting leverage for a margin order on symbol,
// capped by the exchange-reported maximum (0 = unknown) and the configured
// ceiling (0 = uncapped). Never below 1.
func (c *Cache) InitialLeverage(ctx context.Context, symbol string, apiMaxLeverage, configuredLeverage float64) float64 {
	start := Ladder[0]

	rec, err := c.st.Leverages().Find(ctx, symbol)
	if err != nil {
		// The conservative ladder start is always safe.
		logger.Warnf("leverage: reading cache for %s failed, starting at %.0fx: %v", symbol, start, err)
		rec = nil
	}
	if rec != nil && rec.MinVerified > 0 {
		verifiedAt := time.Unix(rec.VerifiedAtUnix, 0)
		if c.nowFn().Sub(verifiedAt) > VerifyInterval {
			// Stale: reuse the verified value as the starting point but do
			// not step up until it verifies again.
			start = rec.MinVerified
		} else {
			start = stepUp(rec.MinVerified)
		}
		if rec.LastFailed > 0 && start >= rec.LastFailed {
			if down := stepDown(rec.LastFailed); down > 0 {
				start = down
			} else {
				start = 1
			}
		}
	}

	if apiMaxLeverage > 0 && start > apiMaxLeverage {
		start = apiMaxLeverage
	}
	if configuredLeverage > 0 && start > configuredLeverage {
		start = configuredLeverage
	}
	if start < 1 {
		start = 1
	}
	return start
}

// NextTryAfterFailure records the failed leverage and returns the next lower
// ladder value, or nil once the ladder is exhausted below minLeverage (the
// caller must fall back to a non-margin order).
func (c *Cache) NextTryAfterFailure(ctx context.Context, symbol string, failedLeverage, minLeverage float64) (*float64, error) {
	if minLeverage <= 0 {
		minLeverage = 1.0
	}
	rec, err := c.st.Leverages().Find(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("reading leverage cache: %w", err)
	}
	if rec == nil {
		rec = &model.LeverageModel{Symbol: symbol}
	}
	rec.LastFailed = failedLeverage
	rec.Attempts++
	if err := c.st.Leverages().Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving leverage cache: %w", err)
	}

	next := stepDown(failedLeverage)
	if next < minLeverage {
		logger.Infof("leverage: ladder exhausted for %s (failed=%.0fx), falling back to spot", symbol, failedLeverage)
		return nil, nil
	}
	return &next, nil
}

// RecordSuccess stores the minimum verified-working leverage for the pair.
func (c *Cache) RecordSuccess(ctx context.Context, symbol string, leverage float64) error {
	rec, err := c.st.Leverages().Find(ctx, symbol)
	if err != nil {
		return fmt.Errorf("reading leverage cache: %w", err)
	}
	if rec == nil {
		rec = &model.LeverageModel{Symbol: symbol}
	}
	if rec.MinVerified <= 0 || leverage < rec.MinVerified {
		rec.MinVerified = leverage
	}
	rec.LastFailed = 0
	rec.Attempts++
	rec.VerifiedAtUnix = c.nowFn().Unix()
	return c.st.Leverages().Save(ctx, rec)
}

// stepUp returns the next ladder value strictly above lev, or the ladder top.
func stepUp(lev float64) float64 {
	for _, step := range Ladder {
		if step > lev {
			return step
		}
	}
	return Ladder[len(Ladder)-1]
}

// stepDown returns the next ladder value strictly below lev, or 0 when none.
func stepDown(lev float64) float64 {
	for i := len(Ladder) - 1; i >= 0; i-- {
		if Ladder[i] < lev {
			return Ladder[i]
		}
	}
	return 0
}
