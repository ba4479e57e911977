// Package ledger contains the reconciliation core: record types, the
// deduplicator, the reconciler, the billing status classifier and the
// exception detector. Everything here is pure and deterministic; I/O lives
// in the application and infrastructure layers.
package ledger

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind identifies the source type of a raw batch
type RecordKind string

const (
	RecordKindOrder     RecordKind = "order"
	RecordKindInvoice   RecordKind = "invoice"
	RecordKindPayment   RecordKind = "payment"
	RecordKindCorporate RecordKind = "corporate" // Corporate master used for enrichment
)

// AllRecordKinds lists the kinds in pipeline load order
var AllRecordKinds = []RecordKind{RecordKindOrder, RecordKindInvoice, RecordKindPayment, RecordKindCorporate}

// IsValid checks if the kind is known
func (k RecordKind) IsValid() bool {
	return slices.Contains(AllRecordKinds, k)
}

// String returns the string representation of RecordKind
func (k RecordKind) String() string {
	return string(k)
}

// ParseRecordKind parses a kind name, case-insensitively
func ParseRecordKind(s string) (RecordKind, error) {
	k := RecordKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		names := make([]string, len(AllRecordKinds))
		for i, known := range AllRecordKinds {
			names[i] = known.String()
		}
		return "", ErrUnknownKind.WithMessage(fmt.Sprintf("unknown record kind %q, want one of %s", s, strings.Join(names, ", ")))
	}
	return k, nil
}

// Envelope carries the ingestion metadata attached to every raw row.
// BatchSeq is the monotonically increasing arrival order of the batch and
// RowIndex the zero-based position of the row within its batch.
type Envelope struct {
	BatchID    string    `json:"batch_id"`
	BatchSeq   int64     `json:"batch_seq"`
	RowIndex   int       `json:"row_index"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Before reports whether e was ingested before other: earlier snapshot
// timestamp first, then earlier batch arrival, then earlier row.
func (e Envelope) Before(other Envelope) bool {
	if !e.IngestedAt.Equal(other.IngestedAt) {
		return e.IngestedAt.Before(other.IngestedAt)
	}
	if e.BatchSeq != other.BatchSeq {
		return e.BatchSeq < other.BatchSeq
	}
	return e.RowIndex < other.RowIndex
}

// OrderRecord is one ingested version of a procurement order.
// Nullable fields are nil when the source value was missing or unparsable.
type OrderRecord struct {
	Envelope
	SequenceNo       string              `json:"sequence_no"`
	OrganizationName string              `json:"organization_name"`
	ProcurementName  string              `json:"procurement_name"`
	ContractDate     *time.Time          `json:"contract_date"`
	ContractorName   string              `json:"contractor_name"`
	ContractAmount   decimal.NullDecimal `json:"contract_amount"`
	CorporateNumber  string              `json:"corporate_number"`
}

// Key returns the business key
func (r OrderRecord) Key() string { return r.SequenceNo }

// Meta returns the ingestion envelope
func (r OrderRecord) Meta() Envelope { return r.Envelope }

// InvoiceRecord is a single invoice fact referencing an order by key.
// OrderID is not required to match a known order.
type InvoiceRecord struct {
	Envelope
	OrderID       string              `json:"order_id"`
	InvoiceNumber string              `json:"invoice_number,omitempty"`
	Amount        decimal.NullDecimal `json:"amount"`
	InvoiceDate   *time.Time          `json:"invoice_date"`
}

// PaymentRecord is a single payment fact referencing an order by key
type PaymentRecord struct {
	Envelope
	OrderID       string              `json:"order_id"`
	InvoiceNumber string              `json:"invoice_number,omitempty"`
	Amount        decimal.NullDecimal `json:"amount"`
	PaymentDate   *time.Time          `json:"payment_date"`
	Note          string              `json:"note,omitempty"`
}

// CorporateRecord is one ingested version of a corporate master entry
type CorporateRecord struct {
	Envelope
	CorporateNumber   string `json:"corporate_number"`
	CorporateName     string `json:"corporate_name"`
	AddressPrefecture string `json:"address_prefecture"`
	AddressCity       string `json:"address_city"`
}

// Key returns the business key
func (r CorporateRecord) Key() string { return r.CorporateNumber }

// Meta returns the ingestion envelope
func (r CorporateRecord) Meta() Envelope { return r.Envelope }

// RawSet is the union of all raw batches read from the raw store
type RawSet struct {
	Orders     []OrderRecord
	Invoices   []InvoiceRecord
	Payments   []PaymentRecord
	Corporates []CorporateRecord
}

// Truncate returns t at midnight UTC of its calendar date in loc.
func Truncate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b (b - a)
func DaysBetween(a, b time.Time) int {
	a = Truncate(a, time.UTC)
	b = Truncate(b, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
