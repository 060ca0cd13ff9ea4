package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// throttleRepository implements the ThrottleRepository interface.
type throttleRepository struct {
	db *gorm.DB
}

// NewThrottleRepo creates a new throttleRepository.
func NewThrottleRepo(db *gorm.DB) *throttleRepository {
	return &throttleRepository{db: db}
}

func (r *throttleRepository) Find(ctx context.Context, symbol, strategy, side string) (*model.ThrottleModel, error) {
	var rec model.ThrottleModel
	err := r.db.WithContext(ctx).
		Where("symbol = ? AND strategy = ? AND side = ?", symbol, strategy, side).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *throttleRepository) FindForKey(ctx context.Context, symbol, strategy string) ([]model.ThrottleModel, error) {
	var recs []model.ThrottleModel
	if err := r.db.WithContext(ctx).
		Where("symbol = ? AND strategy = ?", symbol, strategy).
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// Save upserts by the (symbol, strategy, side) key.
func (r *throttleRepository) Save(ctx context.Context, rec *model.ThrottleModel) error {
	if rec == nil {
		return errors.New("throttle record cannot be nil")
	}
	rec.UpdatedAtUnix = time.Now().Unix()
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "strategy"}, {Name: "side"}},
		UpdateAll: true,
	}).Create(rec).Error
}

func (r *throttleRepository) List(ctx context.Context) ([]model.ThrottleModel, error) {
	var recs []model.ThrottleModel
	if err := r.db.WithContext(ctx).
		Order("symbol ASC, strategy ASC, side ASC").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
