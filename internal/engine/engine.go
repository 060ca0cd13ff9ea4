// Package engine runs the per-symbol evaluation cycle: signal, throttle,
// guardrails, execution, in that order. A throttle-allowed signal emits its
// alert and records the baseline before the guardrail decides on the order;
// every stage can stop the cycle and every outcome is recorded for the
// diagnostics endpoints.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/config"
	"github.com/ccruz0/crypto-2.0-sub003/internal/exchange"
	"github.com/ccruz0/crypto-2.0-sub003/internal/execution"
	"github.com/ccruz0/crypto-2.0-sub003/internal/guardrail"
	"github.com/ccruz0/crypto-2.0-sub003/internal/logger"
	"github.com/ccruz0/crypto-2.0-sub003/internal/market"
	"github.com/ccruz0/crypto-2.0-sub003/internal/notifier"
	"github.com/ccruz0/crypto-2.0-sub003/internal/signal"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"
	"github.com/ccruz0/crypto-2.0-sub003/internal/throttle"

	"golang.org/x/sync/errgroup"
)

// Stages a cycle can stop at, recorded on every CycleResult.
const (
	StageSignal    = "signal"
	StageThrottle  = "throttle"
	StageGuardrail = "guardrail"
	StageExecute   = "execute"
)

const maxRecentResults = 200

// CycleResult is one symbol's outcome for one cycle.
type CycleResult struct {
	Symbol   string    `json:"symbol"`
	Strategy string    `json:"strategy"`
	Action   string    `json:"action"`
	Price    float64   `json:"price,omitempty"`
	Stage    string    `json:"stage"`
	Allowed  bool      `json:"allowed"`
	Reason   string    `json:"reason,omitempty"`
	OrderID  string    `json:"order_id,omitempty"`
	Variant  string    `json:"variant,omitempty"`
	DryRun   bool      `json:"dry_run,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// orderSync is the slice of the exchange client status sync needs.
type orderSync interface {
	GetOrderDetail(ctx context.Context, orderID string) (exchange.OrderDetail, error)
}

// Engine owns one evaluation cycle per scheduler tick. Symbols are evaluated
// concurrently but a symbol never overlaps itself across ticks.
type Engine struct {
	cfgFn     func() *config.Config
	source    market.Source
	evaluator *signal.Evaluator
	gate      *throttle.Gate
	chain     *guardrail.Chain
	executor  *execution.Executor
	syncer    orderSync
	st        store.Store
	notify    notifier.TextNotifier
	nowFn     func() time.Time

	inflight sync.Map

	mu     sync.RWMutex
	recent []CycleResult
}

func New(
	cfgFn func() *config.Config,
	source market.Source,
	evaluator *signal.Evaluator,
	gate *throttle.Gate,
	chain *guardrail.Chain,
	executor *execution.Executor,
	syncer orderSync,
	st store.Store,
	notify notifier.TextNotifier,
) *Engine {
	if notify == nil {
		notify = notifier.Noop{}
	}
	return &Engine{
		cfgFn:     cfgFn,
		source:    source,
		evaluator: evaluator,
		gate:      gate,
		chain:     chain,
		executor:  executor,
		syncer:    syncer,
		st:        st,
		notify:    notify,
		nowFn:     time.Now,
	}
}

// RunCycle evaluates every configured symbol once. Errors are per-symbol;
// one symbol failing never aborts the others.
func (e *Engine) RunCycle(ctx context.Context) {
	cfg := e.cfgFn()
	if cfg == nil || len(cfg.Symbols) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i := range cfg.Symbols {
		symCfg := cfg.Symbols[i]
		g.Go(func() error {
			key := strings.ToUpper(symCfg.Symbol)
			if _, busy := e.inflight.LoadOrStore(key, struct{}{}); busy {
				logger.Warnf("engine: %s previous cycle still running, skipping", key)
				return nil
			}
			defer e.inflight.Delete(key)
			e.evaluateSymbol(gctx, cfg, symCfg)
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) evaluateSymbol(ctx context.Context, cfg *config.Config, symCfg config.SymbolConfig) {
	now := e.nowFn()
	res := CycleResult{
		Symbol:   symCfg.Symbol,
		Strategy: symCfg.StrategyKey(),
		Action:   signal.ActionHold,
		Stage:    StageSignal,
		At:       now,
	}
	defer func() { e.record(res) }()

	candles, err := e.source.FetchHistory(ctx, symCfg.Symbol, cfg.Market.Interval, cfg.Market.CandleLimit)
	if err != nil {
		res.Error = fmt.Sprintf("fetching candles: %v", err)
		logger.Warnf("engine: %s %s", symCfg.Symbol, res.Error)
		return
	}
	sig, err := e.evaluator.Evaluate(symCfg.Symbol, candles)
	if err != nil {
		res.Error = err.Error()
		logger.Warnf("engine: %s signal evaluation failed: %v", symCfg.Symbol, err)
		return
	}
	res.Action = sig.Action
	res.Price = sig.Price
	res.Reason = sig.Reason

	if sig.Action == signal.ActionHold {
		return
	}
	if !e.alertEnabled(symCfg, sig.Action) {
		res.Reason = "alerts disabled for side"
		return
	}

	res.Stage = StageThrottle
	minChange := symCfg.MinPriceChange
	if minChange < 0 {
		minChange = 0
	}
	gateDec, err := e.gate.ShouldEmit(ctx, symCfg.Symbol, symCfg.StrategyKey(), sig.Action, sig.Price, now, minChange)
	if err != nil {
		res.Error = fmt.Sprintf("throttle gate: %v", err)
		logger.Errorf("engine: %s %s", symCfg.Symbol, res.Error)
		return
	}
	res.Reason = gateDec.Reason
	if !gateDec.Allowed {
		return
	}

	// The alert is emitted and the throttle baseline persisted at the
	// throttle-allow point. Order placement is a separate decision below:
	// a guardrail denial must not suppress the alert or re-arm the gate.
	if err := e.gate.RecordEmission(ctx, symCfg.Symbol, symCfg.StrategyKey(), sig.Action, sig.Price, now, symCfg.ThrottleHash()); err != nil {
		logger.Errorf("engine: %s recording emission failed: %v", symCfg.Symbol, err)
	}
	e.notifyAlert(symCfg, sig)

	usd := symCfg.TradeAmountUSD
	res.Stage = StageGuardrail
	guardDec := e.chain.CanPlaceOrder(ctx, symCfg.Symbol, usd, sig.Action, false)
	res.Allowed = guardDec.Allowed
	res.Reason = guardDec.Reason
	if !guardDec.Allowed {
		logger.Infof("engine: %s %s blocked: %s", symCfg.Symbol, sig.Action, guardDec.Reason)
		return
	}

	res.Stage = StageExecute
	if sig.Price <= 0 {
		res.Allowed = false
		res.Error = "signal price is zero"
		return
	}
	spec := execution.OrderSpec{
		Symbol:        symCfg.Symbol,
		Side:          sig.Action,
		Price:         sig.Price,
		Quantity:      usd / sig.Price,
		PriceDecimals: 8,
		QtyDecimals:   6,
	}
	place := e.executor.Place(ctx, spec, 0, symCfg.MaxLeverage, symCfg.MarginAllowed, cfg.Trading.DryRun, "engine")
	res.OrderID = place.OrderID
	res.Variant = place.Variant
	res.DryRun = place.DryRun
	if !place.OK() {
		res.Allowed = false
		res.Error = place.Error
		logger.Errorf("engine: %s %s placement failed: %s (tried %v)",
			symCfg.Symbol, sig.Action, place.Error, place.TriedVariants)
		e.notifyFailure(symCfg, sig, place)
		return
	}

	e.notifySuccess(symCfg, sig, spec, place)
}

// alertEnabled applies the per-side alert flags.
func (e *Engine) alertEnabled(symCfg config.SymbolConfig, action string) bool {
	if !symCfg.AlertEnabled {
		return false
	}
	switch action {
	case signal.ActionBuy:
		return symCfg.BuyAlertEnabled
	case signal.ActionSell:
		return symCfg.SellAlertEnabled
	}
	return false
}

// OnConfigChange applies the throttle reset protocol for every symbol whose
// whitelisted fields changed. The current market price becomes the new
// baseline when it can be fetched; otherwise the baseline clears.
func (e *Engine) OnConfigChange(cfg *config.Config, changes []config.SymbolChange) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	for _, ch := range changes {
		var pricePtr *float64
		if price, err := e.source.LastPrice(ctx, ch.Symbol); err != nil {
			logger.Warnf("engine: fetching reset price for %s failed: %v", ch.Symbol, err)
		} else if price > 0 {
			pricePtr = &price
		}
		if err := e.gate.ResetOnConfigChange(ctx, ch.Symbol, ch.Strategy, "", pricePtr, ch.NewHash); err != nil {
			logger.Errorf("engine: throttle reset for %s/%s failed: %v", ch.Symbol, ch.Strategy, err)
			continue
		}
		logger.Infof("engine: throttle reset for %s/%s (hash %s -> %s)", ch.Symbol, ch.Strategy, ch.OldHash, ch.NewHash)
	}
}

// SyncOrders refreshes pending ledger rows from the exchange. Dry-run rows
// never existed on the exchange and are skipped.
func (e *Engine) SyncOrders(ctx context.Context) {
	pending, err := e.st.Orders().ListPending(ctx)
	if err != nil {
		logger.Errorf("engine: listing pending orders failed: %v", err)
		return
	}
	for _, row := range pending {
		if row.DryRun {
			continue
		}
		detail, err := e.syncer.GetOrderDetail(ctx, row.OrderID)
		if err != nil {
			logger.Warnf("engine: syncing order %s failed: %v", row.OrderID, err)
			continue
		}
		if detail.Status == "" || detail.Status == row.Status {
			continue
		}
		if err := e.st.Orders().UpdateFromExchange(ctx, row.OrderID, detail.Status, detail.FilledQty, detail.AvgPrice, detail.UpdateTimeMs); err != nil {
			logger.Errorf("engine: updating order %s failed: %v", row.OrderID, err)
			continue
		}
		if detail.Status == model.StatusFilled && row.Side == model.SideBuy && row.Role == model.RoleNone {
			e.placeProtectiveLegs(ctx, row, detail)
		}
	}
}

// placeProtectiveLegs places the stop-loss and take-profit SELL legs for a
// filled entry. Legs bypass the per-symbol trade flag but still pass the
// rest of the guardrail chain. Already-placed legs are never duplicated.
func (e *Engine) placeProtectiveLegs(ctx context.Context, entry model.OrderModel, detail exchange.OrderDetail) {
	cfg := e.cfgFn()
	if cfg == nil {
		return
	}
	symCfg := cfg.FindSymbol(entry.Symbol)
	if symCfg == nil || (symCfg.StopLossPct <= 0 && symCfg.TakeProfitPct <= 0) {
		return
	}

	existing, err := e.st.Orders().ListByParent(ctx, entry.OrderID)
	if err != nil {
		logger.Errorf("engine: listing protective legs for %s failed: %v", entry.OrderID, err)
		return
	}
	placed := make(map[string]bool, len(existing))
	for _, leg := range existing {
		placed[leg.Role] = true
	}

	fillPrice := detail.AvgPrice
	if fillPrice <= 0 {
		fillPrice = entry.Price
	}
	qty := detail.FilledQty
	if qty <= 0 {
		qty = entry.Quantity
	}
	if fillPrice <= 0 || qty <= 0 {
		return
	}

	legs := []struct {
		role    string
		pct     float64
		trigger float64
	}{
		{model.RoleStopLoss, symCfg.StopLossPct, fillPrice * (1 - symCfg.StopLossPct/100)},
		{model.RoleTakeProfit, symCfg.TakeProfitPct, fillPrice * (1 + symCfg.TakeProfitPct/100)},
	}
	for _, leg := range legs {
		if leg.pct <= 0 || placed[leg.role] {
			continue
		}
		spec := execution.OrderSpec{
			Symbol:        entry.Symbol,
			Side:          model.SideSell,
			Role:          leg.role,
			Price:         leg.trigger,
			Quantity:      qty,
			TriggerPrice:  leg.trigger,
			PriceDecimals: 8,
			QtyDecimals:   6,
			ParentOrderID: entry.OrderID,
		}
		guardDec := e.chain.CanPlaceOrder(ctx, entry.Symbol, spec.USDValue(), model.SideSell, true)
		if !guardDec.Allowed {
			logger.Warnf("engine: %s %s leg for %s blocked: %s", entry.Symbol, leg.role, entry.OrderID, guardDec.Reason)
			continue
		}
		place := e.executor.Place(ctx, spec, 0, 0, false, cfg.Trading.DryRun, "protective-leg")
		if !place.OK() {
			logger.Errorf("engine: %s %s leg for %s failed: %s", entry.Symbol, leg.role, entry.OrderID, place.Error)
			continue
		}
		logger.Infof("engine: %s %s leg %s placed for entry %s", entry.Symbol, leg.role, place.OrderID, entry.OrderID)
	}
}

// RecentResults returns the newest cycle outcomes, newest first.
func (e *Engine) RecentResults() []CycleResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]CycleResult, len(e.recent))
	copy(out, e.recent)
	return out
}

func (e *Engine) record(res CycleResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recent = append([]CycleResult{res}, e.recent...)
	if len(e.recent) > maxRecentResults {
		e.recent = e.recent[:maxRecentResults]
	}
}

func (e *Engine) notifyAlert(symCfg config.SymbolConfig, sig signal.Signal) {
	msg := notifier.OrderMessage{
		Icon:      "🔔",
		Title:     "Signal alert",
		Symbol:    symCfg.Symbol,
		Side:      sig.Action,
		Price:     sig.Price,
		Reason:    sig.Reason,
		Timestamp: e.nowFn(),
	}
	if err := e.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("engine: notify failed: %v", err)
	}
}

func (e *Engine) notifySuccess(symCfg config.SymbolConfig, sig signal.Signal, spec execution.OrderSpec, place execution.Result) {
	msg := notifier.OrderMessage{
		Icon:      "✅",
		Title:     "Order placed",
		Symbol:    symCfg.Symbol,
		Side:      sig.Action,
		Price:     spec.Price,
		Quantity:  spec.Quantity,
		USDValue:  spec.USDValue(),
		OrderID:   place.OrderID,
		Variant:   place.Variant,
		Reason:    sig.Reason,
		DryRun:    place.DryRun,
		Timestamp: e.nowFn(),
	}
	if err := e.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("engine: notify failed: %v", err)
	}
}

func (e *Engine) notifyFailure(symCfg config.SymbolConfig, sig signal.Signal, place execution.Result) {
	reason := place.Error
	if place.LastError != nil {
		reason = fmt.Sprintf("%s (last: %s)", place.Error, place.LastError.Error())
	}
	msg := notifier.OrderMessage{
		Icon:      "⛔",
		Title:     "Order placement failed",
		Symbol:    symCfg.Symbol,
		Side:      sig.Action,
		Reason:    reason,
		Timestamp: e.nowFn(),
	}
	if err := e.notify.SendText(msg.RenderMarkdown()); err != nil {
		logger.Warnf("engine: notify failed: %v", err)
	}
}

var _ orderSync = (*exchange.Client)(nil)
