package model

import "gorm.io/datatypes"

// Order side and role values as sent on the wire.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"

	RoleNone       = ""
	RoleStopLoss   = "STOP_LOSS"
	RoleTakeProfit = "TAKE_PROFIT"
)

// Order statuses. NEW/ACTIVE/PARTIALLY_FILLED count as pending exposure;
// FILLED/CANCELED/EXPIRED/REJECTED are terminal.
const (
	StatusNew             = "NEW"
	StatusActive          = "ACTIVE"
	StatusPartiallyFilled = "PARTIALLY_FILLED"
	StatusFilled          = "FILLED"
	StatusCanceled        = "CANCELED"
	StatusExpired         = "EXPIRED"
	StatusRejected        = "REJECTED"
)

// PendingStatuses are the statuses that still reserve exposure.
var PendingStatuses = []string{StatusNew, StatusActive, StatusPartiallyFilled}

// OrderModel is one row of the append-only order ledger. Rows are written
// once on placement and only mutated by exchange status sync.
type OrderModel struct {
	ID            int64  `gorm:"column:id;primaryKey"`
	OrderID       string `gorm:"column:order_id;uniqueIndex"`
	ClientOrderID string `gorm:"column:client_order_id"`
	Symbol        string `gorm:"column:symbol;index"`
	Side          string `gorm:"column:side"`
	Role          string `gorm:"column:role"`
	Status        string `gorm:"column:status;index"`
	Price         float64
	Quantity      float64
	FilledQty     float64 `gorm:"column:filled_qty"`
	AvgPrice      float64 `gorm:"column:avg_price"`
	USDValue      float64 `gorm:"column:usd_value"`
	TriggerPrice  float64 `gorm:"column:trigger_price"`
	ParentOrderID string  `gorm:"column:parent_order_id"`
	GroupID       string  `gorm:"column:group_id"`
	Source        string  `gorm:"column:source"`
	Variant       string  `gorm:"column:variant"`
	DryRun        bool    `gorm:"column:dry_run"`
	ExchangeTime  int64   `gorm:"column:exchange_time"`
	ExchangeSync  int64   `gorm:"column:exchange_sync"`
	RawData       datatypes.JSON `gorm:"column:raw_data;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (OrderModel) TableName() string { return "orders" }

// IsPending reports whether the row still reserves exposure.
func (o OrderModel) IsPending() bool {
	switch o.Status {
	case StatusNew, StatusActive, StatusPartiallyFilled:
		return true
	}
	return false
}

// IsProtective reports whether the row is a stop-loss or take-profit leg.
func (o OrderModel) IsProtective() bool {
	return o.Role == RoleStopLoss || o.Role == RoleTakeProfit
}

// ThrottleModel is one (symbol, strategy, side) throttle record. Price and
// timestamp are pointers: both set after an emission, both nil before the
// first one. A config-change reset rewrites the price baseline and arms the
// one-shot bypass without touching the timestamp.
type ThrottleModel struct {
	ID          int64    `gorm:"column:id;primaryKey"`
	Symbol      string   `gorm:"column:symbol;uniqueIndex:idx_throttle_key,priority:1"`
	Strategy    string   `gorm:"column:strategy;uniqueIndex:idx_throttle_key,priority:2"`
	Side        string   `gorm:"column:side;uniqueIndex:idx_throttle_key,priority:3"`
	LastPrice   *float64 `gorm:"column:last_price"`
	PrevPrice   *float64 `gorm:"column:previous_price"`
	LastTime    *int64   `gorm:"column:last_time"`
	ForceBypass bool     `gorm:"column:force_bypass"`
	ConfigHash  string   `gorm:"column:config_hash"`
	UpdatedAtUnix int64  `gorm:"column:updated_at"`
}

func (ThrottleModel) TableName() string { return "throttle_records" }

// HasBaseline reports whether the record carries a complete prior emission.
func (t ThrottleModel) HasBaseline() bool {
	return t.LastPrice != nil && t.LastTime != nil
}

// LeverageModel caches the learned leverage state per pair.
type LeverageModel struct {
	ID           int64   `gorm:"column:id;primaryKey"`
	Symbol       string  `gorm:"column:symbol;uniqueIndex"`
	MinVerified  float64 `gorm:"column:min_verified"`
	LastFailed   float64 `gorm:"column:last_failed"`
	Attempts     int     `gorm:"column:attempts"`
	VerifiedAtUnix int64 `gorm:"column:verified_at"`
}

func (LeverageModel) TableName() string { return "leverage_records" }
