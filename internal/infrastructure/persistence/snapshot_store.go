package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormSnapshotStore implements ledger.SnapshotStore. Every publish inserts
// a complete new version and moves the current pointer in the same
// transaction, so readers see either the old or the new version.
type GormSnapshotStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormSnapshotStore creates a new GormSnapshotStore
func NewGormSnapshotStore(db *gorm.DB) *GormSnapshotStore {
	return &GormSnapshotStore{db: db, now: time.Now}
}

// Publish writes snap as a new version and makes it current
func (s *GormSnapshotStore) Publish(ctx context.Context, snap *ledger.Snapshot) (int64, error) {
	header, err := models.NewSnapshotModel(snap)
	if err != nil {
		return 0, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(header).Error; err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}

		rows := make([]models.LedgerRowModel, len(snap.Rows))
		for i, r := range snap.Rows {
			rows[i] = models.NewLedgerRowModel(header.Version, i, r)
		}
		if err := createRows(tx, rows); err != nil {
			return err
		}

		exceptions := make([]models.ExceptionModel, len(snap.Exceptions))
		for i, e := range snap.Exceptions {
			exceptions[i] = models.NewExceptionModel(header.Version, i, e)
		}
		if err := createRows(tx, exceptions); err != nil {
			return err
		}

		pointer := models.CurrentSnapshotModel{
			ID:        models.CurrentPointerID,
			Version:   header.Version,
			UpdatedAt: s.now().UTC(),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"version", "updated_at"}),
		}).Create(&pointer).Error; err != nil {
			return fmt.Errorf("swap current pointer: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return header.Version, nil
}

// Current returns the header of the current snapshot
func (s *GormSnapshotStore) Current(ctx context.Context) (*ledger.SnapshotHeader, error) {
	var pointer models.CurrentSnapshotModel
	if err := s.db.WithContext(ctx).First(&pointer, models.CurrentPointerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ledger.ErrNoSnapshot
		}
		return nil, err
	}
	return s.Header(ctx, pointer.Version)
}

// Header returns the header of a specific version
func (s *GormSnapshotStore) Header(ctx context.Context, version int64) (*ledger.SnapshotHeader, error) {
	var model models.SnapshotModel
	if err := s.db.WithContext(ctx).First(&model, version).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage(fmt.Sprintf("snapshot version %d not found", version))
		}
		return nil, err
	}
	return model.ToHeader()
}

// Rows returns the rows of version in export order
func (s *GormSnapshotStore) Rows(ctx context.Context, version int64, q ledger.RowQuery) ([]ledger.LedgerRow, error) {
	query := s.db.WithContext(ctx).Where("snapshot_version = ?", version)
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, st := range q.Statuses {
			statuses[i] = string(st)
		}
		query = query.Where("billing_status IN ?", statuses)
	}
	query = paginate(query, q.Offset, q.Limit)

	var rows []models.LedgerRowModel
	if err := query.Order("position ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.LedgerRow, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// Row returns one row of version by sequence number
func (s *GormSnapshotStore) Row(ctx context.Context, version int64, sequenceNo string) (*ledger.LedgerRow, error) {
	var model models.LedgerRowModel
	if err := s.db.WithContext(ctx).
		Where("snapshot_version = ? AND sequence_no = ?", version, sequenceNo).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound.WithMessage("order " + sequenceNo + " not found")
		}
		return nil, err
	}
	row := model.ToDomain()
	return &row, nil
}

// Exceptions returns the exceptions of version in export order
func (s *GormSnapshotStore) Exceptions(ctx context.Context, version int64, q ledger.ExceptionQuery) ([]ledger.ExceptionRecord, error) {
	query := s.db.WithContext(ctx).Where("snapshot_version = ?", version)
	if len(q.Kinds) > 0 {
		kinds := make([]string, len(q.Kinds))
		for i, k := range q.Kinds {
			kinds[i] = string(k)
		}
		query = query.Where("kind IN ?", kinds)
	}
	if q.MinSeverity != "" {
		query = query.Where("severity_rank >= ?", q.MinSeverity.Rank())
	}
	if q.OrderKey != "" {
		query = query.Where("order_key = ?", q.OrderKey)
	}
	query = paginate(query, q.Offset, q.Limit)

	var records []models.ExceptionModel
	if err := query.Order("position ASC").Find(&records).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.ExceptionRecord, len(records))
	for i := range records {
		out[i] = records[i].ToDomain()
	}
	return out, nil
}

// Versions lists snapshot headers, newest first
func (s *GormSnapshotStore) Versions(ctx context.Context, limit int) ([]ledger.SnapshotHeader, error) {
	query := s.db.WithContext(ctx).Order("version DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var snapshots []models.SnapshotModel
	if err := query.Find(&snapshots).Error; err != nil {
		return nil, err
	}
	out := make([]ledger.SnapshotHeader, 0, len(snapshots))
	for i := range snapshots {
		h, err := snapshots[i].ToHeader()
		if err != nil {
			return nil, err
		}
		out = append(out, *h)
	}
	return out, nil
}

func paginate(query *gorm.DB, offset, limit int) *gorm.DB {
	if offset > 0 {
		query = query.Offset(offset)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	return query
}
