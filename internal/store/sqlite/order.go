package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"

	"gorm.io/gorm"
)

// orderRepository implements the OrderRepository interface.
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepo creates a new orderRepository.
func NewOrderRepo(db *gorm.DB) *orderRepository {
	return &orderRepository{db: db}
}

// Insert writes a freshly placed order. The ledger is append-only: placement
// inserts, only status sync mutates.
func (r *orderRepository) Insert(ctx context.Context, order *model.OrderModel) error {
	if order == nil {
		return errors.New("order cannot be nil")
	}
	now := time.Now().Unix()
	if order.CreatedAtUnix == 0 {
		order.CreatedAtUnix = now
	}
	order.UpdatedAtUnix = now
	return r.db.WithContext(ctx).Create(order).Error
}

// UpdateFromExchange applies a status-sync event to an existing row.
func (r *orderRepository) UpdateFromExchange(ctx context.Context, orderID, status string, filledQty, avgPrice float64, exchangeTime int64) error {
	now := time.Now().Unix()
	return r.db.WithContext(ctx).
		Model(&model.OrderModel{}).
		Where("order_id = ?", orderID).
		Updates(map[string]any{
			"status":        status,
			"filled_qty":    filledQty,
			"avg_price":     avgPrice,
			"exchange_time": exchangeTime,
			"exchange_sync": now,
			"updated_at":    now,
		}).Error
}

func (r *orderRepository) FindByOrderID(ctx context.Context, orderID string) (*model.OrderModel, error) {
	var order model.OrderModel
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByBase returns every row for the base currency, oldest first. A bare
// base symbol matches all quoted pairs for that base.
func (r *orderRepository) ListByBase(ctx context.Context, base string) ([]model.OrderModel, error) {
	var orders []model.OrderModel
	if err := r.db.WithContext(ctx).
		Where(`symbol = ? OR symbol LIKE ? ESCAPE '\'`, base, base+`\_%`).
		Order("created_at ASC, id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListPending(ctx context.Context) ([]model.OrderModel, error) {
	var orders []model.OrderModel
	if err := r.db.WithContext(ctx).
		Where("status IN ?", model.PendingStatuses).
		Order("created_at ASC, id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// BuyBases returns distinct base currencies with BUY activity. The base is
// everything before the quote separator.
func (r *orderRepository) BuyBases(ctx context.Context) ([]string, error) {
	var symbols []string
	if err := r.db.WithContext(ctx).
		Model(&model.OrderModel{}).
		Where("side = ?", model.SideBuy).
		Distinct().
		Pluck("symbol", &symbols).Error; err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(symbols))
	bases := make([]string, 0, len(symbols))
	for _, s := range symbols {
		base := s
		for i := 0; i < len(s); i++ {
			if s[i] == '_' {
				base = s[:i]
				break
			}
		}
		if _, ok := seen[base]; ok {
			continue
		}
		seen[base] = struct{}{}
		bases = append(bases, base)
	}
	return bases, nil
}

func (r *orderRepository) CountForBaseSince(ctx context.Context, base string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.OrderModel{}).
		Where(`symbol = ? OR symbol LIKE ? ESCAPE '\'`, base, base+`\_%`).
		Where("created_at >= ?", since.Unix()).
		Count(&count).Error
	return count, err
}

func (r *orderRepository) LastOrderTimeForBase(ctx context.Context, base string) (*time.Time, error) {
	var order model.OrderModel
	err := r.db.WithContext(ctx).
		Where(`symbol = ? OR symbol LIKE ? ESCAPE '\'`, base, base+`\_%`).
		Order("created_at DESC, id DESC").
		First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := time.Unix(order.CreatedAtUnix, 0)
	return &t, nil
}

func (r *orderRepository) ListByParent(ctx context.Context, parentOrderID string) ([]model.OrderModel, error) {
	var orders []model.OrderModel
	if err := r.db.WithContext(ctx).
		Where("parent_order_id = ?", parentOrderID).
		Order("created_at ASC, id ASC").
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListRecent(ctx context.Context, limit int) ([]model.OrderModel, error) {
	var orders []model.OrderModel
	if limit <= 0 {
		limit = 100
	}
	if err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
