package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used on every external surface
const DateLayout = "2006-01-02"

// Summary holds the KPIs of a snapshot
type Summary struct {
	TotalOrders     int                   `json:"total_orders"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	TotalInvoiced   decimal.Decimal       `json:"total_invoiced"`
	TotalPaid       decimal.Decimal       `json:"total_paid"`
	UnbilledAmount  decimal.Decimal       `json:"unbilled_amount"`
	OverdueAmount   decimal.Decimal       `json:"overdue_amount"`
	ExceptionCount  int                   `json:"exception_count"`
	ByStatus        map[BillingStatus]int `json:"by_status"`
	ByExceptionKind map[ExceptionKind]int `json:"by_exception_kind"`
}

// Summarize computes KPIs over rows and exceptions
func Summarize(rows []LedgerRow, exceptions []ExceptionRecord) Summary {
	s := Summary{
		TotalOrders:     len(rows),
		TotalAmount:     decimal.Zero,
		TotalInvoiced:   decimal.Zero,
		TotalPaid:       decimal.Zero,
		UnbilledAmount:  decimal.Zero,
		OverdueAmount:   decimal.Zero,
		ExceptionCount:  len(exceptions),
		ByStatus:        make(map[BillingStatus]int, len(AllBillingStatuses)),
		ByExceptionKind: make(map[ExceptionKind]int),
	}
	for _, st := range AllBillingStatuses {
		s.ByStatus[st] = 0
	}
	for _, row := range rows {
		s.ByStatus[row.BillingStatus]++
		s.TotalInvoiced = s.TotalInvoiced.Add(row.TotalInvoiced)
		s.TotalPaid = s.TotalPaid.Add(row.TotalPaid)
		if row.ContractAmount.Valid {
			s.TotalAmount = s.TotalAmount.Add(row.ContractAmount.Decimal)
		}
		switch row.BillingStatus {
		case BillingStatusUnbilled:
			if row.ContractAmount.Valid {
				s.UnbilledAmount = s.UnbilledAmount.Add(row.ContractAmount.Decimal)
			}
		case BillingStatusOverdue:
			s.OverdueAmount = s.OverdueAmount.Add(row.Outstanding())
		}
	}
	for _, e := range exceptions {
		s.ByExceptionKind[e.Kind]++
	}
	return s
}

// Warnings are the row-level problem counts of a run. They never abort it.
type Warnings struct {
	DiscardedKeys      map[RecordKind]int `json:"discarded_keys"`
	SupersededVersions map[RecordKind]int `json:"superseded_versions"`
	NullInvoiceAmounts int                `json:"null_invoice_amounts"`
	NullPaymentAmounts int                `json:"null_payment_amounts"`
	InvalidOrders      int                `json:"invalid_orders"`
	OrphanInvoices     int                `json:"orphan_invoices"`
	OrphanPayments     int                `json:"orphan_payments"`
}

// Total returns the sum of all warning counts
func (w Warnings) Total() int {
	n := w.NullInvoiceAmounts + w.NullPaymentAmounts + w.InvalidOrders
	for _, c := range w.DiscardedKeys {
		n += c
	}
	return n
}

// Content is the deterministic payload of a snapshot: identical raw data
// and options always produce byte-identical Content.
type Content struct {
	AsOf       time.Time         `json:"as_of"`
	Rows       []LedgerRow       `json:"rows"`
	Exceptions []ExceptionRecord `json:"exceptions"`
	Summary    Summary           `json:"summary"`
}

// Canonical returns the canonical JSON encoding of the content
func (c Content) Canonical() ([]byte, error) {
	// encoding/json emits struct fields in declaration order and map keys sorted.
	return json.Marshal(c)
}

// Checksum returns the hex sha256 of the canonical encoding
func (c Content) Checksum() (string, error) {
	b, err := c.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Snapshot is one published, immutable ledger version
type Snapshot struct {
	Version     int64     `json:"version"`
	RunID       string    `json:"run_id"`
	PublishedAt time.Time `json:"published_at"`
	Checksum    string    `json:"checksum"`
	Warnings    Warnings  `json:"warnings"`
	Content
}

// SnapshotHeader describes a snapshot without its rows
type SnapshotHeader struct {
	Version     int64     `json:"version"`
	RunID       string    `json:"run_id"`
	AsOf        time.Time `json:"as_of"`
	PublishedAt time.Time `json:"published_at"`
	Checksum    string    `json:"checksum"`
	RowCount    int       `json:"row_count"`
	Summary     Summary   `json:"summary"`
	Warnings    Warnings  `json:"warnings"`
}

// Header returns the snapshot header
func (s *Snapshot) Header() SnapshotHeader {
	return SnapshotHeader{
		Version:     s.Version,
		RunID:       s.RunID,
		AsOf:        s.AsOf,
		PublishedAt: s.PublishedAt,
		Checksum:    s.Checksum,
		RowCount:    len(s.Rows),
		Summary:     s.Summary,
		Warnings:    s.Warnings,
	}
}
