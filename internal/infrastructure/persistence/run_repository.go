package persistence

import (
	"context"
	"errors"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRunRepository implements ledger.RunRepository using GORM
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// Save inserts or updates a run record
func (r *GormRunRepository) Save(ctx context.Context, run *ledger.RunRecord) error {
	model, err := models.NewRunModel(run)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(model).Error
}

// LastSuccessful returns the most recently started succeeded run
func (r *GormRunRepository) LastSuccessful(ctx context.Context) (*ledger.RunRecord, error) {
	var model models.RunModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(ledger.RunStatusSucceeded)).
		Order("started_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("no successful run recorded")
		}
		return nil, err
	}
	return model.ToDomain()
}

// List returns the latest runs, newest first
func (r *GormRunRepository) List(ctx context.Context, limit int) ([]ledger.RunRecord, error) {
	query := r.db.WithContext(ctx).Order("started_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []models.RunModel
	if err := query.Find(&runs).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.RunRecord, 0, len(runs))
	for i := range runs {
		rec, err := runs[i].ToDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}
