package models

import (
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// RawBatchModel is one appended source batch. Seq is the arrival order.
type RawBatchModel struct {
	Seq         int64             `gorm:"primaryKey;autoIncrement"`
	ID          string            `gorm:"type:varchar(36);not null;uniqueIndex"`
	Kind        ledger.RecordKind `gorm:"type:varchar(16);not null;index"`
	IngestedAt  time.Time         `gorm:"not null"`
	Source      string            `gorm:"type:varchar(255)"`
	Fingerprint string            `gorm:"type:varchar(64);not null;uniqueIndex"`
	RowCount    int               `gorm:"not null;default:0"`
	ValidRows   int               `gorm:"not null;default:0"`
	Coerced     int               `gorm:"column:coerced_fields;not null;default:0"`
	CreatedAt   time.Time         `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RawBatchModel) TableName() string {
	return "raw_batches"
}

// ToDomain converts the model to BatchInfo
func (m *RawBatchModel) ToDomain() ledger.BatchInfo {
	return ledger.BatchInfo{
		ID:          m.ID,
		Kind:        m.Kind,
		Seq:         m.Seq,
		IngestedAt:  m.IngestedAt.UTC(),
		Source:      m.Source,
		Fingerprint: m.Fingerprint,
		RowCount:    m.RowCount,
		ValidRows:   m.ValidRows,
		Coerced:     m.Coerced,
		CreatedAt:   m.CreatedAt.UTC(),
	}
}

// FromDomain populates the model from BatchInfo. Seq is left to the database.
func (m *RawBatchModel) FromDomain(b ledger.BatchInfo) {
	m.ID = b.ID
	m.Kind = b.Kind
	m.IngestedAt = b.IngestedAt.UTC()
	m.Source = b.Source
	m.Fingerprint = b.Fingerprint
	m.RowCount = b.RowCount
	m.ValidRows = b.ValidRows
	m.Coerced = b.Coerced
	m.CreatedAt = b.CreatedAt.UTC()
}

// RawEnvelope holds the envelope columns shared by every raw row table
type RawEnvelope struct {
	ID         int64     `gorm:"primaryKey;autoIncrement"`
	BatchID    string    `gorm:"type:varchar(36);not null;index"`
	BatchSeq   int64     `gorm:"not null;index"`
	RowIndex   int       `gorm:"not null"`
	IngestedAt time.Time `gorm:"not null"`
}

func (e RawEnvelope) toDomain() ledger.Envelope {
	return ledger.Envelope{BatchID: e.BatchID, BatchSeq: e.BatchSeq, RowIndex: e.RowIndex, IngestedAt: e.IngestedAt.UTC()}
}

func envelopeFrom(e ledger.Envelope) RawEnvelope {
	return RawEnvelope{BatchID: e.BatchID, BatchSeq: e.BatchSeq, RowIndex: e.RowIndex, IngestedAt: e.IngestedAt.UTC()}
}

// RawOrderModel is one raw order row
type RawOrderModel struct {
	RawEnvelope
	SequenceNo       string              `gorm:"type:varchar(64);index"`
	OrganizationName string              `gorm:"type:varchar(255)"`
	ProcurementName  string              `gorm:"type:varchar(512)"`
	ContractDate     *time.Time          `gorm:"type:date"`
	ContractorName   string              `gorm:"type:varchar(255)"`
	ContractAmount   decimal.NullDecimal `gorm:"type:numeric"`
	CorporateNumber  string              `gorm:"type:varchar(32)"`
}

// TableName returns the table name for GORM
func (RawOrderModel) TableName() string {
	return "raw_orders"
}

// ToDomain converts the model to an OrderRecord
func (m *RawOrderModel) ToDomain() ledger.OrderRecord {
	return ledger.OrderRecord{
		Envelope:         m.toDomain(),
		SequenceNo:       m.SequenceNo,
		OrganizationName: m.OrganizationName,
		ProcurementName:  m.ProcurementName,
		ContractDate:     utcDate(m.ContractDate),
		ContractorName:   m.ContractorName,
		ContractAmount:   m.ContractAmount,
		CorporateNumber:  m.CorporateNumber,
	}
}

// NewRawOrderModel creates a model from an OrderRecord
func NewRawOrderModel(r ledger.OrderRecord) RawOrderModel {
	return RawOrderModel{
		RawEnvelope:      envelopeFrom(r.Envelope),
		SequenceNo:       r.SequenceNo,
		OrganizationName: r.OrganizationName,
		ProcurementName:  r.ProcurementName,
		ContractDate:     r.ContractDate,
		ContractorName:   r.ContractorName,
		ContractAmount:   r.ContractAmount,
		CorporateNumber:  r.CorporateNumber,
	}
}

// RawInvoiceModel is one raw invoice row
type RawInvoiceModel struct {
	RawEnvelope
	OrderID       string              `gorm:"type:varchar(64);index"`
	InvoiceNumber string              `gorm:"type:varchar(64)"`
	Amount        decimal.NullDecimal `gorm:"type:numeric"`
	InvoiceDate   *time.Time          `gorm:"type:date"`
}

// TableName returns the table name for GORM
func (RawInvoiceModel) TableName() string {
	return "raw_invoices"
}

// ToDomain converts the model to an InvoiceRecord
func (m *RawInvoiceModel) ToDomain() ledger.InvoiceRecord {
	return ledger.InvoiceRecord{
		Envelope:      m.toDomain(),
		OrderID:       m.OrderID,
		InvoiceNumber: m.InvoiceNumber,
		Amount:        m.Amount,
		InvoiceDate:   utcDate(m.InvoiceDate),
	}
}

// NewRawInvoiceModel creates a model from an InvoiceRecord
func NewRawInvoiceModel(r ledger.InvoiceRecord) RawInvoiceModel {
	return RawInvoiceModel{
		RawEnvelope:   envelopeFrom(r.Envelope),
		OrderID:       r.OrderID,
		InvoiceNumber: r.InvoiceNumber,
		Amount:        r.Amount,
		InvoiceDate:   r.InvoiceDate,
	}
}

// RawPaymentModel is one raw payment row
type RawPaymentModel struct {
	RawEnvelope
	OrderID       string              `gorm:"type:varchar(64);index"`
	InvoiceNumber string              `gorm:"type:varchar(64)"`
	Amount        decimal.NullDecimal `gorm:"type:numeric"`
	PaymentDate   *time.Time          `gorm:"type:date"`
	Note          string              `gorm:"type:text"`
}

// TableName returns the table name for GORM
func (RawPaymentModel) TableName() string {
	return "raw_payments"
}

// ToDomain converts the model to a PaymentRecord
func (m *RawPaymentModel) ToDomain() ledger.PaymentRecord {
	return ledger.PaymentRecord{
		Envelope:      m.toDomain(),
		OrderID:       m.OrderID,
		InvoiceNumber: m.InvoiceNumber,
		Amount:        m.Amount,
		PaymentDate:   utcDate(m.PaymentDate),
		Note:          m.Note,
	}
}

// NewRawPaymentModel creates a model from a PaymentRecord
func NewRawPaymentModel(r ledger.PaymentRecord) RawPaymentModel {
	return RawPaymentModel{
		RawEnvelope:   envelopeFrom(r.Envelope),
		OrderID:       r.OrderID,
		InvoiceNumber: r.InvoiceNumber,
		Amount:        r.Amount,
		PaymentDate:   r.PaymentDate,
		Note:          r.Note,
	}
}

// RawCorporateModel is one raw corporate master row
type RawCorporateModel struct {
	RawEnvelope
	CorporateNumber   string `gorm:"type:varchar(32);index"`
	CorporateName     string `gorm:"type:varchar(255)"`
	AddressPrefecture string `gorm:"type:varchar(64)"`
	AddressCity       string `gorm:"type:varchar(128)"`
}

// TableName returns the table name for GORM
func (RawCorporateModel) TableName() string {
	return "raw_corporates"
}

// ToDomain converts the model to a CorporateRecord
func (m *RawCorporateModel) ToDomain() ledger.CorporateRecord {
	return ledger.CorporateRecord{
		Envelope:          m.toDomain(),
		CorporateNumber:   m.CorporateNumber,
		CorporateName:     m.CorporateName,
		AddressPrefecture: m.AddressPrefecture,
		AddressCity:       m.AddressCity,
	}
}

// NewRawCorporateModel creates a model from a CorporateRecord
func NewRawCorporateModel(r ledger.CorporateRecord) RawCorporateModel {
	return RawCorporateModel{
		RawEnvelope:       envelopeFrom(r.Envelope),
		CorporateNumber:   r.CorporateNumber,
		CorporateName:     r.CorporateName,
		AddressPrefecture: r.AddressPrefecture,
		AddressCity:       r.AddressCity,
	}
}

// utcDate normalizes a date column read back from the driver to midnight UTC
func utcDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := ledger.Truncate(*t, time.UTC)
	return &d
}
