// Package throttle implements the per-(symbol, strategy, side) signal gate.
//
// A signal may fire again for the same key only after a fixed elapsed time
// and a minimum price move. A configuration change arms a one-shot bypass
// and rewrites the price baseline without touching the timestamp; that is
// the canonical reset behavior and is preserved literally.
package throttle

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/logger"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"
)

// TimeGateSeconds is the fixed minimum elapsed time between two emissions of
// the same (symbol, strategy, side) signal. Not user-configurable; the
// boundary is inclusive.
const TimeGateSeconds = 60

// ReasonForcedAfterConfigChange marks an emission allowed by the one-shot
// bypass flag.
const ReasonForcedAfterConfigChange = "FORCED_AFTER_CONFIG_CHANGE"

// Decision is the gate's answer for one signal.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Gate owns the persisted throttle records. Read-then-write is serialized
// per key; distinct keys proceed concurrently.
type Gate struct {
	st store.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGate(st store.Store) *Gate {
	return &Gate{st: st, locks: make(map[string]*sync.Mutex)}
}

func (g *Gate) keyLock(symbol, strategy, side string) *sync.Mutex {
	key := symbol + "|" + strategy + "|" + side
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[key]
	if !ok {
		l = &sync.Mutex{}
		g.locks[key] = l
	}
	return l
}

// ShouldEmit decides whether a signal for the key may fire at currentPrice.
// On Allowed the caller must follow up with RecordEmission; the gate itself
// persists only on the bypass-clear path.
func (g *Gate) ShouldEmit(ctx context.Context, symbol, strategy, side string, currentPrice float64, now time.Time, minPriceChangePct float64) (Decision, error) {
	lock := g.keyLock(symbol, strategy, side)
	lock.Lock()
	defer lock.Unlock()

	rec, err := g.st.Throttles().Find(ctx, symbol, strategy, side)
	if err != nil {
		return Decision{}, fmt.Errorf("loading throttle record: %w", err)
	}

	if rec != nil && rec.ForceBypass {
		// Consume the one-shot bypass. Failure to clear must not fail the
		// check, only the next call would see the flag again.
		rec.ForceBypass = false
		if err := g.st.Throttles().Save(ctx, rec); err != nil {
			logger.Warnf("throttle: clearing bypass flag failed for %s/%s/%s: %v", symbol, strategy, side, err)
		}
		return Decision{Allowed: true, Reason: ReasonForcedAfterConfigChange}, nil
	}

	// A missing record, or one without a complete baseline, is a legitimate
	// first-time state, not an error.
	if rec == nil || !rec.HasBaseline() {
		return Decision{Allowed: true, Reason: "first signal"}, nil
	}

	elapsed := now.Sub(time.Unix(*rec.LastTime, 0)).Seconds()
	if elapsed < TimeGateSeconds {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("time gate not met: elapsed=%.1fs required=%ds", elapsed, TimeGateSeconds),
		}, nil
	}

	required := math.Max(minPriceChangePct, 0)
	changePct := 0.0
	if *rec.LastPrice != 0 {
		changePct = math.Abs(currentPrice-*rec.LastPrice) / *rec.LastPrice * 100
	}
	if required > 0 && changePct < required {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("price gate not met: change=%.4f%% required=%.4f%%", changePct, required),
		}, nil
	}

	return Decision{
		Allowed: true,
		Reason:  fmt.Sprintf("gates passed: elapsed=%.1fs change=%.4f%%", elapsed, changePct),
	}, nil
}

// RecordEmission persists the new baseline after an emitted signal: price and
// timestamp advance together and the bypass flag is cleared.
func (g *Gate) RecordEmission(ctx context.Context, symbol, strategy, side string, price float64, now time.Time, configHash string) error {
	lock := g.keyLock(symbol, strategy, side)
	lock.Lock()
	defer lock.Unlock()

	rec, err := g.st.Throttles().Find(ctx, symbol, strategy, side)
	if err != nil {
		return fmt.Errorf("loading throttle record: %w", err)
	}
	if rec == nil {
		rec = &model.ThrottleModel{Symbol: symbol, Strategy: strategy, Side: side}
	}
	rec.PrevPrice = rec.LastPrice
	p := price
	ts := now.Unix()
	rec.LastPrice = &p
	rec.LastTime = &ts
	rec.ForceBypass = false
	rec.ConfigHash = configHash
	return g.st.Throttles().Save(ctx, rec)
}

// ResetOnConfigChange applies the reset protocol for (symbol, strategy): the
// price baseline is rewritten to currentPrice (or cleared when nil), the
// previous price is cleared and the one-shot bypass is armed. last_time is
// deliberately left untouched: a config change authorizes one immediate
// bypass, it is not an emission. side may narrow the reset to one side;
// empty resets both.
func (g *Gate) ResetOnConfigChange(ctx context.Context, symbol, strategy, side string, currentPrice *float64, configHash string) error {
	sides := []string{model.SideBuy, model.SideSell}
	if side != "" {
		sides = []string{side}
	}
	for _, sd := range sides {
		lock := g.keyLock(symbol, strategy, sd)
		lock.Lock()
		rec, err := g.st.Throttles().Find(ctx, symbol, strategy, sd)
		if err != nil {
			lock.Unlock()
			return fmt.Errorf("loading throttle record: %w", err)
		}
		if rec == nil {
			rec = &model.ThrottleModel{Symbol: symbol, Strategy: strategy, Side: sd}
		}
		if currentPrice != nil {
			p := *currentPrice
			rec.LastPrice = &p
		} else {
			rec.LastPrice = nil
		}
		rec.PrevPrice = nil
		rec.ForceBypass = true
		rec.ConfigHash = configHash
		err = g.st.Throttles().Save(ctx, rec)
		lock.Unlock()
		if err != nil {
			return err
		}
		logger.Infof("throttle: reset baseline for %s/%s/%s (bypass armed, hash=%s)", symbol, strategy, sd, configHash)
	}
	return nil
}
