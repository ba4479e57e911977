package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// insertBatchSize bounds the rows per INSERT statement
const insertBatchSize = 500

// GormRawStore implements ledger.RawStore using GORM. Batches are only
// ever inserted.
type GormRawStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormRawStore creates a new GormRawStore
func NewGormRawStore(db *gorm.DB) *GormRawStore {
	return &GormRawStore{db: db, now: time.Now}
}

// Append writes the batch header and its rows in one transaction. The
// database assigns the arrival sequence, which is copied onto every row.
// The unique fingerprint index turns a concurrent resubmission into
// ledger.ErrDuplicateBatch.
func (s *GormRawStore) Append(ctx context.Context, batch *ledger.RawBatch) (*ledger.BatchInfo, error) {
	if batch == nil || !batch.Info.Kind.IsValid() {
		return nil, ledger.ErrUnknownKind
	}

	info := batch.Info
	if info.ID == "" {
		info.ID = uuid.New().String()
	}
	if info.CreatedAt.IsZero() {
		info.CreatedAt = s.now()
	}
	info.RowCount = batch.Len()

	var header models.RawBatchModel
	header.FromDomain(info)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&header).Error; err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		env := func(rowIndex int) ledger.Envelope {
			return ledger.Envelope{BatchID: header.ID, BatchSeq: header.Seq, RowIndex: rowIndex, IngestedAt: header.IngestedAt}
		}

		switch info.Kind {
		case ledger.RecordKindOrder:
			rows := make([]models.RawOrderModel, len(batch.Orders))
			for i, r := range batch.Orders {
				r.Envelope = env(r.RowIndex)
				rows[i] = models.NewRawOrderModel(r)
			}
			return createRows(tx, rows)
		case ledger.RecordKindInvoice:
			rows := make([]models.RawInvoiceModel, len(batch.Invoices))
			for i, r := range batch.Invoices {
				r.Envelope = env(r.RowIndex)
				rows[i] = models.NewRawInvoiceModel(r)
			}
			return createRows(tx, rows)
		case ledger.RecordKindPayment:
			rows := make([]models.RawPaymentModel, len(batch.Payments))
			for i, r := range batch.Payments {
				r.Envelope = env(r.RowIndex)
				rows[i] = models.NewRawPaymentModel(r)
			}
			return createRows(tx, rows)
		case ledger.RecordKindCorporate:
			rows := make([]models.RawCorporateModel, len(batch.Corporates))
			for i, r := range batch.Corporates {
				r.Envelope = env(r.RowIndex)
				rows[i] = models.NewRawCorporateModel(r)
			}
			return createRows(tx, rows)
		}
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ledger.ErrDuplicateBatch.WithCause(err)
	}
	if err != nil {
		return nil, err
	}

	out := header.ToDomain()
	return &out, nil
}

func createRows[T any](tx *gorm.DB, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	if err := tx.CreateInBatches(rows, insertBatchSize).Error; err != nil {
		return fmt.Errorf("insert raw rows: %w", err)
	}
	return nil
}

// FindByFingerprint returns the batch with the given content fingerprint
func (s *GormRawStore) FindByFingerprint(ctx context.Context, fingerprint string) (*ledger.BatchInfo, error) {
	var model models.RawBatchModel
	if err := s.db.WithContext(ctx).
		Where("fingerprint = ?", fingerprint).
		Order("seq ASC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	info := model.ToDomain()
	return &info, nil
}

// LoadAll reads every raw row of every kind in arrival order
func (s *GormRawStore) LoadAll(ctx context.Context) (*ledger.RawSet, error) {
	db := s.db.WithContext(ctx)
	set := &ledger.RawSet{}

	var orders []models.RawOrderModel
	if err := db.Order("batch_seq ASC, row_index ASC").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("load raw orders: %w", err)
	}
	set.Orders = make([]ledger.OrderRecord, len(orders))
	for i := range orders {
		set.Orders[i] = orders[i].ToDomain()
	}

	var invoices []models.RawInvoiceModel
	if err := db.Order("batch_seq ASC, row_index ASC").Find(&invoices).Error; err != nil {
		return nil, fmt.Errorf("load raw invoices: %w", err)
	}
	set.Invoices = make([]ledger.InvoiceRecord, len(invoices))
	for i := range invoices {
		set.Invoices[i] = invoices[i].ToDomain()
	}

	var payments []models.RawPaymentModel
	if err := db.Order("batch_seq ASC, row_index ASC").Find(&payments).Error; err != nil {
		return nil, fmt.Errorf("load raw payments: %w", err)
	}
	set.Payments = make([]ledger.PaymentRecord, len(payments))
	for i := range payments {
		set.Payments[i] = payments[i].ToDomain()
	}

	var corporates []models.RawCorporateModel
	if err := db.Order("batch_seq ASC, row_index ASC").Find(&corporates).Error; err != nil {
		return nil, fmt.Errorf("load raw corporates: %w", err)
	}
	set.Corporates = make([]ledger.CorporateRecord, len(corporates))
	for i := range corporates {
		set.Corporates[i] = corporates[i].ToDomain()
	}

	return set, nil
}

// ListBatches lists batch headers with the total count. The default order is
// arrival, newest first.
func (s *GormRawStore) ListBatches(ctx context.Context, filter ledger.BatchFilter) ([]ledger.BatchInfo, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.RawBatchModel{})
	if filter.Kind != "" {
		query = query.Where("kind = ?", filter.Kind)
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = paginate(query, filter.Offset, filter.Limit)

	var batches []models.RawBatchModel
	if err := query.Order(batchOrder(filter)).Find(&batches).Error; err != nil {
		return nil, 0, err
	}

	out := make([]ledger.BatchInfo, len(batches))
	for i := range batches {
		out[i] = batches[i].ToDomain()
	}
	return out, total, nil
}
