// Package execution places orders against an exchange that rejects specific
// parameter encodings and permission states.
//
// The core loop is "try next in list": each known-good encoding variant is
// attempted once, a permission rejection earns exactly one batched-method
// fallback, and exhaustion yields a structured error carrying every tried
// variant label and the last observed rejection. Failure is never swallowed.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/exchange"
	"github.com/ccruz0/crypto-2.0-sub003/internal/leverage"
	"github.com/ccruz0/crypto-2.0-sub003/internal/logger"
	"github.com/ccruz0/crypto-2.0-sub003/internal/pkg/symbol"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store"
	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"

	"github.com/google/uuid"
)

// Failure categories surfaced on terminal results.
const (
	CategoryFormat     = "format"
	CategoryPermission = "permission"
	CategoryTransient  = "transient"
	CategoryExchange   = "exchange"
)

// Result is the structured outcome of one placement attempt. Either OrderID
// is set, or Error/ErrorCode/LastError describe why every attempt failed.
type Result struct {
	OrderID           string             `json:"order_id,omitempty"`
	Variant           string             `json:"variant,omitempty"`
	Leverage          float64            `json:"leverage,omitempty"`
	DryRun            bool               `json:"dry_run,omitempty"`
	Error             string             `json:"error,omitempty"`
	ErrorCode         int                `json:"error_code,omitempty"`
	Category          string             `json:"category,omitempty"`
	TriedVariants     []string           `json:"tried_variants,omitempty"`
	LastError         *exchange.APIError `json:"last_error,omitempty"`
	FallbackAttempted bool               `json:"fallback_attempted,omitempty"`
}

// OK reports whether an order was actually placed.
func (r Result) OK() bool { return r.OrderID != "" }

// api is the slice of the exchange client the executor needs.
type api interface {
	CreateOrder(ctx context.Context, params map[string]any) (exchange.OrderAck, error)
	CreateOrderList(ctx context.Context, orders []map[string]any) ([]exchange.OrderAck, error)
}

// Executor owns order placement and is the only writer of new ledger rows.
type Executor struct {
	client   api
	st       store.Store
	levCache *leverage.Cache
}

func NewExecutor(client api, st store.Store, levCache *leverage.Cache) *Executor {
	return &Executor{client: client, st: st, levCache: levCache}
}

// Place attempts the order, stepping the leverage ladder down on terminal
// margin failures until the order degrades to a non-margin placement.
// maxLeverage caps margin sizing (0 = non-margin order). source labels the
// caller for the ledger.
func (e *Executor) Place(ctx context.Context, spec OrderSpec, apiMaxLeverage, configuredLeverage float64, margin bool, dryRun bool, source string) Result {
	// Ledger rows must carry the canonical BASE_QUOTE form or the per-base
	// risk queries (daily count, spacing, open positions) miss the order.
	spec.Symbol = symbol.Normalize(spec.Symbol)
	if spec.ClientOrderID == "" {
		spec.ClientOrderID = uuid.NewString()
	}
	if dryRun {
		return e.recordDryRun(ctx, spec, source)
	}

	if !margin {
		spec.Leverage = 0
		res := e.placeWithVariants(ctx, spec)
		e.afterAttempt(ctx, spec, res, source)
		return res
	}

	lev := e.levCache.InitialLeverage(ctx, spec.Symbol, apiMaxLeverage, configuredLeverage)
	var res Result
	for {
		spec.Leverage = lev
		res = e.placeWithVariants(ctx, spec)
		if res.OK() {
			if err := e.levCache.RecordSuccess(ctx, spec.Symbol, lev); err != nil {
				logger.Warnf("execution: recording leverage success for %s failed: %v", spec.Symbol, err)
			}
			res.Leverage = lev
			break
		}
		next, err := e.levCache.NextTryAfterFailure(ctx, spec.Symbol, lev, 1.0)
		if err != nil {
			logger.Warnf("execution: leverage step-down for %s failed: %v", spec.Symbol, err)
			break
		}
		if next == nil {
			// Ladder exhausted: one final non-margin attempt.
			spec.Leverage = 0
			res = e.placeWithVariants(ctx, spec)
			break
		}
		logger.Infof("execution: %s retrying at lower leverage %.0fx (failed at %.0fx)", spec.Symbol, *next, lev)
		lev = *next
	}
	e.afterAttempt(ctx, spec, res, source)
	return res
}

// placeWithVariants walks the variant table once. The first success wins; a
// permission rejection triggers exactly one batched fallback; a timeout
// counts as a failed attempt for its variant, never an identical retry.
func (e *Executor) placeWithVariants(ctx context.Context, spec OrderSpec) Result {
	res := Result{}
	for _, variant := range Variants {
		params := variant.Encode(spec)
		ack, err := e.client.CreateOrder(ctx, params)
		if err == nil {
			res.OrderID = ack.OrderID
			res.Variant = variant.Label
			return res
		}
		res.TriedVariants = append(res.TriedVariants, variant.Label)

		var apiErr *exchange.APIError
		if !errors.As(err, &apiErr) {
			// Transient I/O: advance to the next variant like any rejection.
			logger.Warnf("execution: %s variant %s transient failure: %v", spec.Symbol, variant.Label, err)
			res.LastError = &exchange.APIError{Code: 0, Message: err.Error()}
			res.Category = CategoryTransient
			continue
		}
		res.LastError = apiErr
		res.ErrorCode = apiErr.Code

		switch {
		case exchange.IsFormatRejection(apiErr.Code):
			logger.Debugf("execution: %s variant %s rejected (code=%d), advancing", spec.Symbol, variant.Label, apiErr.Code)
			res.Category = CategoryFormat
			continue
		case exchange.IsPermissionRejection(apiErr.Code):
			res.Category = CategoryPermission
			return e.fallbackOnce(ctx, spec, params, res)
		default:
			// Unknown rejection: re-encoding will not change the answer.
			res.Category = CategoryExchange
			res.Error = fmt.Sprintf("order rejected: %s", apiErr.Error())
			return res
		}
	}
	res.Error = fmt.Sprintf("all %d parameter variants exhausted for %s %s", len(Variants), spec.Symbol, spec.Side)
	return res
}

// fallbackOnce makes the single batched-method attempt after a permission
// rejection of the primary method.
func (e *Executor) fallbackOnce(ctx context.Context, spec OrderSpec, params map[string]any, res Result) Result {
	res.FallbackAttempted = true
	logger.Infof("execution: %s create-order disabled (code=%d), trying batched fallback", spec.Symbol, res.ErrorCode)
	acks, err := e.client.CreateOrderList(ctx, []map[string]any{params})
	if err == nil && len(acks) > 0 {
		res.OrderID = acks[0].OrderID
		res.Variant = "batch-fallback"
		res.Error = ""
		return res
	}
	res.TriedVariants = append(res.TriedVariants, "batch-fallback")
	var apiErr *exchange.APIError
	if errors.As(err, &apiErr) {
		res.LastError = apiErr
		res.ErrorCode = apiErr.Code
	} else if err != nil {
		res.LastError = &exchange.APIError{Message: err.Error()}
	}
	res.Error = fmt.Sprintf("primary method disabled and batched fallback failed for %s %s", spec.Symbol, spec.Side)
	return res
}

// afterAttempt writes a successful placement into the ledger. Failures do
// not create ledger rows; they are surfaced through the Result.
func (e *Executor) afterAttempt(ctx context.Context, spec OrderSpec, res Result, source string) {
	if !res.OK() {
		return
	}
	if err := e.insertLedgerRow(ctx, spec, res, source, false); err != nil {
		// The order exists on the exchange; losing the row is an operator
		// problem, not grounds to report the placement as failed.
		logger.Errorf("execution: ledger insert failed for order %s: %v", res.OrderID, err)
	}
}

func (e *Executor) recordDryRun(ctx context.Context, spec OrderSpec, source string) Result {
	res := Result{
		OrderID: "dryrun-" + spec.ClientOrderID,
		Variant: "dry-run",
		DryRun:  true,
	}
	if err := e.insertLedgerRow(ctx, spec, res, source, true); err != nil {
		logger.Errorf("execution: dry-run ledger insert failed: %v", err)
	}
	return res
}

func (e *Executor) insertLedgerRow(ctx context.Context, spec OrderSpec, res Result, source string, dryRun bool) error {
	raw, _ := json.Marshal(res)
	return e.st.Orders().Insert(ctx, &model.OrderModel{
		OrderID:       res.OrderID,
		ClientOrderID: spec.ClientOrderID,
		Symbol:        spec.Symbol,
		Side:          spec.Side,
		Role:          spec.Role,
		ParentOrderID: spec.ParentOrderID,
		Status:        model.StatusNew,
		Price:         spec.Price,
		Quantity:      spec.Quantity,
		TriggerPrice:  spec.TriggerPrice,
		USDValue:      spec.USDValue(),
		Source:        source,
		Variant:       res.Variant,
		DryRun:        dryRun,
		RawData:       raw,
		CreatedAtUnix: time.Now().Unix(),
	})
}
