package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// SnapshotModel is one published ledger version
type SnapshotModel struct {
	Version     int64     `gorm:"primaryKey;autoIncrement"`
	RunID       string    `gorm:"type:varchar(36);not null;index"`
	AsOf        time.Time `gorm:"type:date;not null"`
	PublishedAt time.Time `gorm:"not null"`
	Checksum    string    `gorm:"type:varchar(64);not null;index"`
	RowCount    int       `gorm:"not null;default:0"`
	Summary     string    `gorm:"type:text;not null"`
	Warnings    string    `gorm:"type:text;not null"`
}

// TableName returns the table name for GORM
func (SnapshotModel) TableName() string {
	return "ledger_snapshots"
}

// NewSnapshotModel creates a model from a snapshot header. Version is left
// to the database.
func NewSnapshotModel(s *ledger.Snapshot) (*SnapshotModel, error) {
	summary, err := json.Marshal(s.Summary)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	warnings, err := json.Marshal(s.Warnings)
	if err != nil {
		return nil, fmt.Errorf("encode warnings: %w", err)
	}
	return &SnapshotModel{
		RunID:       s.RunID,
		AsOf:        s.AsOf,
		PublishedAt: s.PublishedAt.UTC(),
		Checksum:    s.Checksum,
		RowCount:    len(s.Rows),
		Summary:     string(summary),
		Warnings:    string(warnings),
	}, nil
}

// ToHeader converts the model to a SnapshotHeader
func (m *SnapshotModel) ToHeader() (*ledger.SnapshotHeader, error) {
	h := &ledger.SnapshotHeader{
		Version:     m.Version,
		RunID:       m.RunID,
		AsOf:        ledger.Truncate(m.AsOf, time.UTC),
		PublishedAt: m.PublishedAt.UTC(),
		Checksum:    m.Checksum,
		RowCount:    m.RowCount,
	}
	if err := json.Unmarshal([]byte(m.Summary), &h.Summary); err != nil {
		return nil, fmt.Errorf("decode summary of version %d: %w", m.Version, err)
	}
	if err := json.Unmarshal([]byte(m.Warnings), &h.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings of version %d: %w", m.Version, err)
	}
	return h, nil
}

// CurrentSnapshotModel is the single-row pointer to the published version
type CurrentSnapshotModel struct {
	ID        int       `gorm:"primaryKey;autoIncrement:false"`
	Version   int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CurrentSnapshotModel) TableName() string {
	return "ledger_current"
}

// CurrentPointerID is the primary key of the only pointer row
const CurrentPointerID = 1

// LedgerRowModel is one row of a snapshot. Position is the export order.
type LedgerRowModel struct {
	ID                int64               `gorm:"primaryKey;autoIncrement"`
	SnapshotVersion   int64               `gorm:"not null;index:idx_ledger_rows_version_position,priority:1;index:idx_ledger_rows_version_seq,priority:1"`
	Position          int                 `gorm:"not null;index:idx_ledger_rows_version_position,priority:2"`
	SequenceNo        string              `gorm:"type:varchar(64);not null;index:idx_ledger_rows_version_seq,priority:2"`
	OrganizationName  string              `gorm:"type:varchar(255)"`
	ProcurementName   string              `gorm:"type:varchar(512)"`
	ContractDate      *time.Time          `gorm:"type:date"`
	ContractorName    string              `gorm:"type:varchar(255)"`
	ContractAmount    decimal.NullDecimal `gorm:"type:numeric"`
	CorporateNumber   string              `gorm:"type:varchar(32)"`
	IngestedAt        time.Time           `gorm:"not null"`
	CorporateName     string              `gorm:"type:varchar(255)"`
	AddressPrefecture string              `gorm:"type:varchar(64)"`
	AddressCity       string              `gorm:"type:varchar(128)"`
	TotalInvoiced     decimal.Decimal     `gorm:"type:numeric;not null"`
	TotalPaid         decimal.Decimal     `gorm:"type:numeric;not null"`
	InvoiceCount      int                 `gorm:"not null;default:0"`
	PaymentCount      int                 `gorm:"not null;default:0"`
	LastInvoiceDate   *time.Time          `gorm:"type:date"`
	LastPaymentDate   *time.Time          `gorm:"type:date"`
	DueDate           *time.Time          `gorm:"type:date"`
	DaysOverdue       int                 `gorm:"not null;default:0"`
	BillingStatus     string              `gorm:"type:varchar(16);not null;index"`
	PaymentStatus     string              `gorm:"type:varchar(16);not null"`
	InvalidReason     string              `gorm:"type:varchar(255)"`
}

// TableName returns the table name for GORM
func (LedgerRowModel) TableName() string {
	return "ledger_rows"
}

// NewLedgerRowModel creates a model for row at position in version
func NewLedgerRowModel(version int64, position int, r ledger.LedgerRow) LedgerRowModel {
	return LedgerRowModel{
		SnapshotVersion:   version,
		Position:          position,
		SequenceNo:        r.SequenceNo,
		OrganizationName:  r.OrganizationName,
		ProcurementName:   r.ProcurementName,
		ContractDate:      r.ContractDate,
		ContractorName:    r.ContractorName,
		ContractAmount:    r.ContractAmount,
		CorporateNumber:   r.CorporateNumber,
		IngestedAt:        r.IngestedAt.UTC(),
		CorporateName:     r.CorporateName,
		AddressPrefecture: r.AddressPrefecture,
		AddressCity:       r.AddressCity,
		TotalInvoiced:     r.TotalInvoiced,
		TotalPaid:         r.TotalPaid,
		InvoiceCount:      r.InvoiceCount,
		PaymentCount:      r.PaymentCount,
		LastInvoiceDate:   r.LastInvoiceDate,
		LastPaymentDate:   r.LastPaymentDate,
		DueDate:           r.DueDate,
		DaysOverdue:       r.DaysOverdue,
		BillingStatus:     string(r.BillingStatus),
		PaymentStatus:     string(r.PaymentStatus),
		InvalidReason:     r.InvalidReason,
	}
}

// ToDomain converts the model to a LedgerRow
func (m *LedgerRowModel) ToDomain() ledger.LedgerRow {
	return ledger.LedgerRow{
		SequenceNo:        m.SequenceNo,
		OrganizationName:  m.OrganizationName,
		ProcurementName:   m.ProcurementName,
		ContractDate:      utcDate(m.ContractDate),
		ContractorName:    m.ContractorName,
		ContractAmount:    m.ContractAmount,
		CorporateNumber:   m.CorporateNumber,
		IngestedAt:        m.IngestedAt.UTC(),
		CorporateName:     m.CorporateName,
		AddressPrefecture: m.AddressPrefecture,
		AddressCity:       m.AddressCity,
		TotalInvoiced:     m.TotalInvoiced,
		TotalPaid:         m.TotalPaid,
		InvoiceCount:      m.InvoiceCount,
		PaymentCount:      m.PaymentCount,
		LastInvoiceDate:   utcDate(m.LastInvoiceDate),
		LastPaymentDate:   utcDate(m.LastPaymentDate),
		DueDate:           utcDate(m.DueDate),
		DaysOverdue:       m.DaysOverdue,
		BillingStatus:     ledger.BillingStatus(m.BillingStatus),
		PaymentStatus:     ledger.PaymentStatus(m.PaymentStatus),
		InvalidReason:     m.InvalidReason,
	}
}

// ExceptionModel is one exception of a snapshot. Position is the export order.
type ExceptionModel struct {
	ID              int64      `gorm:"primaryKey;autoIncrement"`
	SnapshotVersion int64      `gorm:"not null;index:idx_ledger_exceptions_version_position,priority:1"`
	Position        int        `gorm:"not null;index:idx_ledger_exceptions_version_position,priority:2"`
	OrderKey        string     `gorm:"type:varchar(64);not null;index"`
	Kind            string     `gorm:"type:varchar(32);not null"`
	Severity        string     `gorm:"type:varchar(16);not null"`
	SeverityRank    int        `gorm:"not null"`
	DetectedAt      time.Time  `gorm:"type:date;not null"`
	Detail          string     `gorm:"type:text"`
	DocumentKind    string     `gorm:"type:varchar(16)"`
	DocumentRef     string     `gorm:"type:varchar(64)"`
	DaysSinceOrder  *int
	DaysOverdue     *int
	DueDate         *time.Time `gorm:"type:date"`
}

// TableName returns the table name for GORM
func (ExceptionModel) TableName() string {
	return "ledger_exceptions"
}

// NewExceptionModel creates a model for exception at position in version
func NewExceptionModel(version int64, position int, e ledger.ExceptionRecord) ExceptionModel {
	return ExceptionModel{
		SnapshotVersion: version,
		Position:        position,
		OrderKey:        e.OrderKey,
		Kind:            string(e.Kind),
		Severity:        string(e.Severity),
		SeverityRank:    e.Severity.Rank(),
		DetectedAt:      e.DetectedAt,
		Detail:          e.Detail,
		DocumentKind:    string(e.DocumentKind),
		DocumentRef:     e.DocumentRef,
		DaysSinceOrder:  e.DaysSinceOrder,
		DaysOverdue:     e.DaysOverdue,
		DueDate:         e.DueDate,
	}
}

// ToDomain converts the model to an ExceptionRecord
func (m *ExceptionModel) ToDomain() ledger.ExceptionRecord {
	return ledger.ExceptionRecord{
		OrderKey:       m.OrderKey,
		Kind:           ledger.ExceptionKind(m.Kind),
		Severity:       ledger.Severity(m.Severity),
		DetectedAt:     ledger.Truncate(m.DetectedAt, time.UTC),
		Detail:         m.Detail,
		DocumentKind:   ledger.RecordKind(m.DocumentKind),
		DocumentRef:    m.DocumentRef,
		DaysSinceOrder: m.DaysSinceOrder,
		DaysOverdue:    m.DaysOverdue,
		DueDate:        utcDate(m.DueDate),
	}
}

// RunModel is one entry of the run history
type RunModel struct {
	ID              string     `gorm:"type:varchar(36);primaryKey"`
	Trigger         string     `gorm:"type:varchar(32);not null"`
	Status          string     `gorm:"type:varchar(16);not null;index"`
	AsOf            time.Time  `gorm:"type:date;not null"`
	StartedAt       time.Time  `gorm:"not null;index"`
	FinishedAt      *time.Time
	SnapshotVersion *int64
	Checksum        string     `gorm:"type:varchar(64)"`
	Warnings        string     `gorm:"type:text;not null"`
	Error           string     `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (RunModel) TableName() string {
	return "ledger_runs"
}

// NewRunModel creates a model from a RunRecord
func NewRunModel(r *ledger.RunRecord) (*RunModel, error) {
	warnings, err := json.Marshal(r.Warnings)
	if err != nil {
		return nil, fmt.Errorf("encode warnings: %w", err)
	}
	return &RunModel{
		ID:              r.ID,
		Trigger:         r.Trigger,
		Status:          string(r.Status),
		AsOf:            r.AsOf,
		StartedAt:       r.StartedAt.UTC(),
		FinishedAt:      r.FinishedAt,
		SnapshotVersion: r.SnapshotVersion,
		Checksum:        r.Checksum,
		Warnings:        string(warnings),
		Error:           r.Error,
	}, nil
}

// ToDomain converts the model to a RunRecord
func (m *RunModel) ToDomain() (*ledger.RunRecord, error) {
	r := &ledger.RunRecord{
		ID:              m.ID,
		Trigger:         m.Trigger,
		Status:          ledger.RunStatus(m.Status),
		AsOf:            ledger.Truncate(m.AsOf, time.UTC),
		StartedAt:       m.StartedAt.UTC(),
		SnapshotVersion: m.SnapshotVersion,
		Checksum:        m.Checksum,
		Error:           m.Error,
	}
	if m.FinishedAt != nil {
		f := m.FinishedAt.UTC()
		r.FinishedAt = &f
	}
	if err := json.Unmarshal([]byte(m.Warnings), &r.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings of run %s: %w", m.ID, err)
	}
	return r, nil
}

// All returns every ledger model in dependency order for AutoMigrate
func All() []any {
	return []any{
		&RawBatchModel{},
		&RawOrderModel{},
		&RawInvoiceModel{},
		&RawPaymentModel{},
		&RawCorporateModel{},
		&SnapshotModel{},
		&CurrentSnapshotModel{},
		&LedgerRowModel{},
		&ExceptionModel{},
		&RunModel{},
	}
}
