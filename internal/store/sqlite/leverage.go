package sqlite

import (
	"context"
	"errors"

	"github.com/ccruz0/crypto-2.0-sub003/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// leverageRepository implements the LeverageRepository interface.
type leverageRepository struct {
	db *gorm.DB
}

// NewLeverageRepo creates a new leverageRepository.
func NewLeverageRepo(db *gorm.DB) *leverageRepository {
	return &leverageRepository{db: db}
}

func (r *leverageRepository) Find(ctx context.Context, symbol string) (*model.LeverageModel, error) {
	var rec model.LeverageModel
	err := r.db.WithContext(ctx).Where("symbol = ?", symbol).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Save upserts by symbol.
func (r *leverageRepository) Save(ctx context.Context, rec *model.LeverageModel) error {
	if rec == nil {
		return errors.New("leverage record cannot be nil")
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		UpdateAll: true,
	}).Create(rec).Error
}

func (r *leverageRepository) List(ctx context.Context) ([]model.LeverageModel, error) {
	var recs []model.LeverageModel
	if err := r.db.WithContext(ctx).Order("symbol ASC").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
