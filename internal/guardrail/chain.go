// Package guardrail enforces the layered safety policy in front of every
// capital-risking call.
//
// Checks run in a fixed order and short-circuit on the first failure. Any
// check that cannot determine its answer denies: the chain fails closed.
// Denials are values, not errors; the reason string is the only channel
// through which callers learn why an action was blocked.
package guardrail

import (
	"context"
	"fmt"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/config"
	"github.com/ccruz0/crypto-2.0-sub003/internal/logger"
	"github.com/ccruz0/crypto-2.0-sub003/internal/pkg/symbol"
	"github.com/ccruz0/crypto-2.0-sub003/internal/position"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store"
)

// Decision is the chain's answer. Reason is empty when allowed.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func deny(format string, v ...any) Decision {
	return Decision{Allowed: false, Reason: fmt.Sprintf(format, v...)}
}

// Chain evaluates the policy against the live config and the order ledger.
type Chain struct {
	cfgFn      func() *config.Config
	reconciler *position.Reconciler
	st         store.Store
	nowFn      func() time.Time
}

func NewChain(cfgFn func() *config.Config, reconciler *position.Reconciler, st store.Store) *Chain {
	return &Chain{cfgFn: cfgFn, reconciler: reconciler, st: st, nowFn: time.Now}
}

// CanPlaceOrder runs the full chain for one prospective order.
// ignoreTradeEnabled skips only the per-symbol trade flag; it exists for
// protective stop-loss/take-profit legs on an already-open position.
func (c *Chain) CanPlaceOrder(ctx context.Context, sym string, usdValue float64, side string, ignoreTradeEnabled bool) Decision {
	cfg := c.cfgFn()
	if cfg == nil {
		return deny("guardrail: config unavailable")
	}
	sym = symbol.Normalize(sym)

	// 1. Global live-trading toggle.
	if !cfg.Trading.LiveTrading {
		return deny("guardrail: live trading disabled")
	}
	// 2. Global kill switch.
	if cfg.Trading.KillSwitch {
		return deny("guardrail: kill switch engaged")
	}
	// 3. Per-symbol opt-in, skippable for protective legs.
	symCfg := cfg.FindSymbol(sym)
	if !ignoreTradeEnabled {
		if symCfg == nil {
			return deny("guardrail: symbol %s not configured", sym)
		}
		if !symCfg.TradeEnabled {
			return deny("guardrail: trading disabled for %s", sym)
		}
	}
	// 4. Environment-level final override. True does not bypass the checks
	// above; false denies unconditionally.
	if cfg.Trading.TradeOverride != nil && !*cfg.Trading.TradeOverride {
		return deny("guardrail: trade override is off")
	}
	// 5. Optional allow-list.
	if len(cfg.Trading.Allowlist) > 0 {
		found := false
		for _, allowed := range cfg.Trading.Allowlist {
			if symbol.Normalize(allowed) == sym {
				found = true
				break
			}
		}
		if !found {
			return deny("guardrail: %s not in allowlist", sym)
		}
	}

	return c.checkRiskLimits(ctx, cfg, symCfg, sym, usdValue)
}

// checkRiskLimits evaluates the quantitative ceilings in order. An internal
// failure during any computation denies; the cause is logged, never exposed
// to the trading decision.
func (c *Chain) checkRiskLimits(ctx context.Context, cfg *config.Config, symCfg *config.SymbolConfig, sym string, usdValue float64) Decision {
	// (a) Total open positions across all symbols.
	totalOpen, err := c.reconciler.TotalOpenPositions(ctx)
	if err != nil {
		logger.Errorf("guardrail: total open positions failed for %s: %v", sym, err)
		return deny("guardrail: open positions check failed")
	}
	if totalOpen >= cfg.Trading.MaxOpenOrders {
		return deny("guardrail: max open orders reached: open=%d limit=%d", totalOpen, cfg.Trading.MaxOpenOrders)
	}

	// (b) Per-symbol daily ceiling, strategy config first, global fallback.
	base := symbol.Base(sym)
	dailyLimit := cfg.Trading.MaxOrdersPerSymbolDay
	if symCfg != nil && symCfg.MaxOrdersPerDay > 0 {
		dailyLimit = symCfg.MaxOrdersPerDay
	}
	now := c.nowFn().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	todayCount, err := c.st.Orders().CountForBaseSince(ctx, base, dayStart)
	if err != nil {
		logger.Errorf("guardrail: daily order count failed for %s: %v", base, err)
		return deny("guardrail: daily order count check failed")
	}
	if todayCount >= int64(dailyLimit) {
		return deny("guardrail: daily order limit reached for %s: today=%d limit=%d", base, todayCount, dailyLimit)
	}

	// (c) Per-order USD ceiling.
	if usdValue > cfg.Trading.MaxUSDPerOrder {
		return deny("guardrail: order value too large: usd=%.2f limit=%.2f", usdValue, cfg.Trading.MaxUSDPerOrder)
	}

	// (d) Minimum spacing since the last order for this base currency.
	lastAt, err := c.st.Orders().LastOrderTimeForBase(ctx, base)
	if err != nil {
		logger.Errorf("guardrail: last order time failed for %s: %v", base, err)
		return deny("guardrail: order spacing check failed")
	}
	if lastAt != nil {
		elapsed := c.nowFn().Sub(*lastAt)
		minSpacing := time.Duration(cfg.Trading.MinSecondsBetween) * time.Second
		if elapsed <= minSpacing {
			return deny("guardrail: orders too close for %s: elapsed=%.0fs required=%ds",
				base, elapsed.Seconds(), cfg.Trading.MinSecondsBetween)
		}
	}

	return Decision{Allowed: true}
}
