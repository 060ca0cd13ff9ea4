package store

import (
	"context"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"
)

// Store is the entry point for database access.
type Store interface {
	// Orders returns the order ledger repository.
	Orders() OrderRepository
	// Throttles returns the throttle record repository.
	Throttles() ThrottleRepository
	// Leverages returns the leverage cache repository.
	Leverages() LeverageRepository
	// Begin starts a transaction scope.
	Begin(ctx context.Context) (UnitOfWork, error)
	// Close closes the store connection.
	Close() error
}

// UnitOfWork defines a transaction scope.
type UnitOfWork interface {
	Commit() error
	Rollback() error

	Orders() OrderRepository
	Throttles() ThrottleRepository
	Leverages() LeverageRepository
}

// OrderRepository handles order ledger persistence. Insert is used exactly
// once per placement; UpdateFromExchange is reserved for status sync.
type OrderRepository interface {
	Insert(ctx context.Context, order *model.OrderModel) error
	UpdateFromExchange(ctx context.Context, orderID, status string, filledQty, avgPrice float64, exchangeTime int64) error
	FindByOrderID(ctx context.Context, orderID string) (*model.OrderModel, error)
	// ListByBase returns every ledger row whose symbol belongs to the given
	// base currency (the bare base or any quoted pair on it), oldest first.
	ListByBase(ctx context.Context, base string) ([]model.OrderModel, error)
	// ListPending returns non-terminal rows across all symbols.
	ListPending(ctx context.Context) ([]model.OrderModel, error)
	// BuyBases returns the distinct base currencies with any BUY activity.
	BuyBases(ctx context.Context) ([]string, error)
	// CountForBaseSince counts orders placed for the base currency at or
	// after the cutoff.
	CountForBaseSince(ctx context.Context, base string, since time.Time) (int64, error)
	// LastOrderTimeForBase returns the creation time of the most recent
	// order for the base currency, or nil when none exists.
	LastOrderTimeForBase(ctx context.Context, base string) (*time.Time, error)
	// ListByParent returns the protective legs placed against the given
	// entry order.
	ListByParent(ctx context.Context, parentOrderID string) ([]model.OrderModel, error)
	ListRecent(ctx context.Context, limit int) ([]model.OrderModel, error)
}

// ThrottleRepository handles throttle record persistence.
type ThrottleRepository interface {
	// Find returns the record for the exact key, or (nil, nil) when absent.
	Find(ctx context.Context, symbol, strategy, side string) (*model.ThrottleModel, error)
	// FindForKey returns both side records for (symbol, strategy).
	FindForKey(ctx context.Context, symbol, strategy string) ([]model.ThrottleModel, error)
	// Save upserts by (symbol, strategy, side).
	Save(ctx context.Context, rec *model.ThrottleModel) error
	List(ctx context.Context) ([]model.ThrottleModel, error)
}

// LeverageRepository handles the per-symbol leverage cache.
type LeverageRepository interface {
	Find(ctx context.Context, symbol string) (*model.LeverageModel, error)
	Save(ctx context.Context, rec *model.LeverageModel) error
	List(ctx context.Context) ([]model.LeverageModel, error)
}
