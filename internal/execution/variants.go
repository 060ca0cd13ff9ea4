package execution

import (
	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"

	"github.com/shopspring/decimal"
)

// OrderSpec is the normalized order intent, before wire encoding.
type OrderSpec struct {
	Symbol        string
	Side          string // model.SideBuy / model.SideSell
	Role          string // model.RoleNone / RoleStopLoss / RoleTakeProfit
	Price         float64
	Quantity      float64
	TriggerPrice  float64
	PriceDecimals int32
	QtyDecimals   int32
	Leverage      float64 // 0 = non-margin
	ClientOrderID string
	// ParentOrderID links a protective leg to the filled entry it guards.
	ParentOrderID string
}

// USDValue is the notional used for guardrail and ledger bookkeeping.
func (s OrderSpec) USDValue() float64 { return s.Price * s.Quantity }

func (s OrderSpec) orderType() string {
	switch s.Role {
	case model.RoleStopLoss:
		return "STOP_LOSS"
	case model.RoleTakeProfit:
		return "TAKE_PROFIT"
	default:
		return "LIMIT"
	}
}

// Variant is one known-good parameter encoding. The exchange's accepted
// shapes are not uniform across fields, so price, quantity, trigger
// condition and time-in-force each vary between entries.
type Variant struct {
	Label  string
	Encode func(OrderSpec) map[string]any
}

// Variants is the ordered table the executor walks. Order matters: the
// first entries are the shapes observed to succeed most often.
var Variants = []Variant{
	{
		Label: "string-exact",
		Encode: func(s OrderSpec) map[string]any {
			p := baseParams(s)
			p["price"] = decimal.NewFromFloat(s.Price).String()
			p["quantity"] = decimal.NewFromFloat(s.Quantity).String()
			if s.TriggerPrice > 0 {
				p["trigger_price"] = decimal.NewFromFloat(s.TriggerPrice).String()
			}
			p["time_in_force"] = "GOOD_TILL_CANCEL"
			return p
		},
	},
	{
		Label: "string-fixed-precision",
		Encode: func(s OrderSpec) map[string]any {
			p := baseParams(s)
			p["price"] = decimal.NewFromFloat(s.Price).StringFixed(s.PriceDecimals)
			p["quantity"] = decimal.NewFromFloat(s.Quantity).StringFixed(s.QtyDecimals)
			if s.TriggerPrice > 0 {
				p["ref_price"] = decimal.NewFromFloat(s.TriggerPrice).StringFixed(s.PriceDecimals)
			}
			p["time_in_force"] = "GOOD_TILL_CANCEL"
			return p
		},
	},
	{
		Label: "numeric",
		Encode: func(s OrderSpec) map[string]any {
			p := baseParams(s)
			p["price"] = s.Price
			p["quantity"] = s.Quantity
			if s.TriggerPrice > 0 {
				p["trigger_price"] = s.TriggerPrice
			}
			return p
		},
	},
	{
		Label: "ref-price-mark",
		Encode: func(s OrderSpec) map[string]any {
			p := baseParams(s)
			p["price"] = decimal.NewFromFloat(s.Price).StringFixed(s.PriceDecimals)
			p["quantity"] = s.Quantity
			if s.TriggerPrice > 0 {
				p["ref_price"] = decimal.NewFromFloat(s.TriggerPrice).String()
				p["ref_price_type"] = "MARK_PRICE"
			}
			return p
		},
	},
}

func baseParams(s OrderSpec) map[string]any {
	p := map[string]any{
		"instrument_name": s.Symbol,
		"side":            s.Side,
		"type":            s.orderType(),
	}
	if s.ClientOrderID != "" {
		p["client_oid"] = s.ClientOrderID
	}
	if s.Leverage > 0 {
		p["leverage"] = decimal.NewFromFloat(s.Leverage).String()
	}
	return p
}
