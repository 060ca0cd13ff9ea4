// Package position derives open exposure from the order ledger.
//
// Nothing here is cached: every query recomputes from the ledger so that a
// guardrail check always sees the writes of previous cycles.
package position

import (
	"context"
	"fmt"

	"github.com/ccruz0/crypto-2.0-sub003/internal/pkg/symbol"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"

	"github.com/shopspring/decimal"
)

// View is the derived open-position picture for one symbol or base currency.
type View struct {
	Symbol        string  `json:"symbol"`
	PendingBuys   int     `json:"pending_buys"`
	FilledBuyQty  float64 `json:"filled_buy_qty"`
	FilledSellQty float64 `json:"filled_sell_qty"`
	NetQty        float64 `json:"net_qty"`
	OpenLots      int     `json:"open_lots"`
}

// Open returns pending BUYs plus still-open filled lots.
func (v View) Open() int { return v.PendingBuys + v.OpenLots }

// Reconciler reads the order ledger; it never writes.
type Reconciler struct {
	st store.Store
}

func NewReconciler(st store.Store) *Reconciler {
	return &Reconciler{st: st}
}

// OpenPositions returns the open-position count for sym. A bare base symbol
// aggregates every quoted pair for that base.
func (r *Reconciler) OpenPositions(ctx context.Context, sym string) (int, error) {
	view, err := r.Snapshot(ctx, sym)
	if err != nil {
		return 0, err
	}
	return view.Open(), nil
}

// Snapshot computes the full derived view for sym.
func (r *Reconciler) Snapshot(ctx context.Context, sym string) (View, error) {
	sym = symbol.Normalize(sym)
	base := symbol.Base(sym)
	if base == "" {
		return View{}, fmt.Errorf("invalid symbol %q", sym)
	}
	rows, err := r.st.Orders().ListByBase(ctx, base)
	if err != nil {
		return View{}, fmt.Errorf("reading ledger for %s: %w", base, err)
	}

	view := View{Symbol: sym}
	var buyLots []decimal.Decimal // filled BUY quantities, oldest first
	buyTotal := decimal.Zero
	sellTotal := decimal.Zero

	for _, row := range rows {
		if !symbol.SameExposure(sym, row.Symbol) {
			continue
		}
		switch row.Side {
		case model.SideBuy:
			if row.IsProtective() {
				continue
			}
			if row.IsPending() {
				view.PendingBuys++
				continue
			}
			if row.Status == model.StatusFilled {
				qty := filledQty(row)
				if qty.IsPositive() {
					buyLots = append(buyLots, qty)
					buyTotal = buyTotal.Add(qty)
				}
			}
		case model.SideSell:
			// Plain exits and protective legs all reduce exposure.
			if row.Status == model.StatusFilled {
				sellTotal = sellTotal.Add(filledQty(row))
			}
		}
	}

	view.FilledBuyQty, _ = buyTotal.Float64()
	view.FilledSellQty, _ = sellTotal.Float64()
	net := buyTotal.Sub(sellTotal)
	if net.IsNegative() {
		net = decimal.Zero
	}
	view.NetQty, _ = net.Float64()
	view.OpenLots = openLotsFIFO(buyLots, buyTotal, sellTotal)
	return view, nil
}

// openLotsFIFO consumes sellTotal against buy lots oldest first. A lot
// counts as open once the running SELL consumption can no longer fully cover
// it, even when partially consumed.
func openLotsFIFO(buyLots []decimal.Decimal, buyTotal, sellTotal decimal.Decimal) int {
	if sellTotal.GreaterThanOrEqual(buyTotal) {
		return 0
	}
	remaining := sellTotal
	open := 0
	for _, lot := range buyLots {
		if remaining.GreaterThanOrEqual(lot) {
			remaining = remaining.Sub(lot)
			continue
		}
		open++
		remaining = decimal.Zero
	}
	return open
}

// TotalOpenPositions aggregates open positions per unique base currency
// across every symbol with BUY activity, so exposure spread across quote
// currencies is counted once.
func (r *Reconciler) TotalOpenPositions(ctx context.Context) (int, error) {
	bases, err := r.st.Orders().BuyBases(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing buy bases: %w", err)
	}
	total := 0
	for _, base := range bases {
		open, err := r.OpenPositions(ctx, base)
		if err != nil {
			return 0, err
		}
		total += open
	}
	return total, nil
}

func filledQty(row model.OrderModel) decimal.Decimal {
	qty := row.FilledQty
	if qty <= 0 {
		qty = row.Quantity
	}
	return decimal.NewFromFloat(qty)
}
