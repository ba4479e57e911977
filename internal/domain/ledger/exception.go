package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ExceptionKind identifies a condition requiring human action
type ExceptionKind string

const (
	ExceptionAmountMismatch ExceptionKind = "AMOUNT_MISMATCH"
	ExceptionOverdue        ExceptionKind = "OVERDUE"
	ExceptionMissingInvoice ExceptionKind = "MISSING_INVOICE"
	ExceptionOrphanDocument ExceptionKind = "ORPHAN_DOCUMENT"
)

// AllExceptionKinds lists every exception kind
var AllExceptionKinds = []ExceptionKind{
	ExceptionAmountMismatch, ExceptionOverdue, ExceptionMissingInvoice, ExceptionOrphanDocument,
}

// IsValid checks if the kind is known
func (k ExceptionKind) IsValid() bool {
	switch k {
	case ExceptionAmountMismatch, ExceptionOverdue, ExceptionMissingInvoice, ExceptionOrphanDocument:
		return true
	}
	return false
}

// Severity ranks how urgently an exception needs attention
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// IsValid checks if the severity is known
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank orders severities, higher is more urgent
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// ExceptionRecord is one detected exception. For ORPHAN_DOCUMENT the
// document fields identify the orphan invoice or payment.
type ExceptionRecord struct {
	OrderKey       string        `json:"order_key"`
	Kind           ExceptionKind `json:"kind"`
	Severity       Severity      `json:"severity"`
	DetectedAt     time.Time     `json:"detected_at"`
	Detail         string        `json:"detail"`
	DocumentKind   RecordKind    `json:"document_kind,omitempty"`
	DocumentRef    string        `json:"document_ref,omitempty"`
	DaysSinceOrder *int          `json:"days_since_order,omitempty"`
	DaysOverdue    *int          `json:"days_overdue,omitempty"`
	DueDate        *time.Time    `json:"due_date,omitempty"`
}

// identity is the set key of an exception
func (e ExceptionRecord) identity() string {
	return string(e.Kind) + "|" + e.OrderKey + "|" + string(e.DocumentKind) + "|" + e.DocumentRef
}

// DetectorConfig holds exception thresholds
type DetectorConfig struct {
	// Tolerance is the allowed |total_invoiced - contract_amount| before
	// AMOUNT_MISMATCH fires. Default 0.
	Tolerance decimal.Decimal
	// GracePeriod is how long after the contract date an order may stay
	// unbilled before MISSING_INVOICE fires. Default 30 days.
	GracePeriod time.Duration
}

// DefaultDetectorConfig returns the default thresholds
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		Tolerance:   decimal.Zero,
		GracePeriod: 30 * 24 * time.Hour,
	}
}

// Detector scans classified rows and orphan documents for exceptions
type Detector struct {
	config DetectorConfig
}

// NewDetector creates a detector. Negative thresholds are clamped to zero.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Tolerance.IsNegative() {
		cfg.Tolerance = decimal.Zero
	}
	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = 0
	}
	return &Detector{config: cfg}
}

// Detect returns the exception set for a run evaluated at asOf. Several
// kinds may fire for one order. Duplicates collapse and the result is
// sorted by order key, kind and document reference.
func (d *Detector) Detect(rows []LedgerRow, orphanInvoices []InvoiceRecord, orphanPayments []PaymentRecord, asOf time.Time) []ExceptionRecord {
	detectedAt := Truncate(asOf, time.UTC)
	set := make(map[string]ExceptionRecord)
	add := func(e ExceptionRecord) {
		e.DetectedAt = detectedAt
		set[e.identity()] = e
	}

	for _, row := range rows {
		for _, e := range d.detectRow(row, asOf) {
			add(e)
		}
	}
	for _, inv := range orphanInvoices {
		add(orphanException(RecordKindInvoice, inv.OrderID, inv.Envelope, inv.InvoiceNumber, inv.Amount))
	}
	for _, pay := range orphanPayments {
		add(orphanException(RecordKindPayment, pay.OrderID, pay.Envelope, pay.InvoiceNumber, pay.Amount))
	}

	out := make([]ExceptionRecord, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderKey != out[j].OrderKey {
			return out[i].OrderKey < out[j].OrderKey
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].DocumentKind != out[j].DocumentKind {
			return out[i].DocumentKind < out[j].DocumentKind
		}
		return out[i].DocumentRef < out[j].DocumentRef
	})
	return out
}

func (d *Detector) detectRow(row LedgerRow, asOf time.Time) []ExceptionRecord {
	var found []ExceptionRecord
	facts := row.Facts(asOf)

	var daysSince *int
	if row.ContractDate != nil {
		n := DaysBetween(*row.ContractDate, asOf)
		daysSince = &n
	}

	if row.BillingStatus == BillingStatusPaid || row.BillingStatus == BillingStatusOverdue {
		if row.ContractAmount.Valid {
			diff := row.TotalInvoiced.Sub(row.ContractAmount.Decimal).Abs()
			if diff.GreaterThan(d.config.Tolerance) {
				found = append(found, ExceptionRecord{
					OrderKey:       row.SequenceNo,
					Kind:           ExceptionAmountMismatch,
					Severity:       SeverityHigh,
					DaysSinceOrder: daysSince,
					Detail: fmt.Sprintf("invoiced %s differs from contract amount %s by %s",
						row.TotalInvoiced.String(), row.ContractAmount.Decimal.String(), diff.String()),
				})
			}
		}
	}

	// INVALID takes precedence in the classifier, so an invalid row with a past
	// due balance gets no OVERDUE exception.
	if row.BillingStatus == BillingStatusOverdue && IsOverdue(facts) {
		days := DaysOverdue(facts)
		due := *row.DueDate
		found = append(found, ExceptionRecord{
			OrderKey:       row.SequenceNo,
			Kind:           ExceptionOverdue,
			Severity:       overdueSeverity(days),
			DaysSinceOrder: daysSince,
			DaysOverdue:    &days,
			DueDate:        &due,
			Detail: fmt.Sprintf("outstanding %s was due %s (%d days overdue)",
				row.Outstanding().String(), due.Format(DateLayout), days),
		})
	}

	if d.missingInvoice(row, asOf) {
		found = append(found, ExceptionRecord{
			OrderKey:       row.SequenceNo,
			Kind:           ExceptionMissingInvoice,
			Severity:       d.missingInvoiceSeverity(*row.ContractDate, asOf),
			DaysSinceOrder: daysSince,
			Detail: fmt.Sprintf("contract amount %s has no invoice %d days after contract date",
				row.ContractAmount.Decimal.String(), *daysSince),
		})
	}

	return found
}

// missingInvoice: positive contract amount, nothing invoiced, and the
// contract date is older than the grace period.
func (d *Detector) missingInvoice(row LedgerRow, asOf time.Time) bool {
	if !row.ContractAmount.Valid || !row.ContractAmount.Decimal.IsPositive() {
		return false
	}
	if !row.TotalInvoiced.IsZero() || row.ContractDate == nil {
		return false
	}
	deadline := Truncate(*row.ContractDate, time.UTC).Add(d.config.GracePeriod)
	return Truncate(asOf, time.UTC).After(deadline)
}

func (d *Detector) missingInvoiceSeverity(contractDate, asOf time.Time) Severity {
	deadline := Truncate(contractDate, time.UTC).Add(2 * d.config.GracePeriod)
	if Truncate(asOf, time.UTC).After(deadline) {
		return SeverityHigh
	}
	return SeverityMedium
}

// overdueSeverity follows the dunning ladder: reminder from day 1, escalation
// from day 7, trading stop from day 14.
func overdueSeverity(days int) Severity {
	switch {
	case days >= 14:
		return SeverityCritical
	case days >= 7:
		return SeverityMedium
	}
	return SeverityLow
}

func orphanException(kind RecordKind, orderID string, env Envelope, invoiceNumber string, amount decimal.NullDecimal) ExceptionRecord {
	amt := "unknown"
	if amount.Valid {
		amt = amount.Decimal.String()
	}
	detail := fmt.Sprintf("%s of %s references unknown order %q", kind, amt, orderID)
	if invoiceNumber != "" {
		detail += fmt.Sprintf(" (invoice %s)", invoiceNumber)
	}
	return ExceptionRecord{
		OrderKey:     orderID,
		Kind:         ExceptionOrphanDocument,
		Severity:     SeverityMedium,
		DocumentKind: kind,
		DocumentRef:  fmt.Sprintf("%s#%d", env.BatchID, env.RowIndex),
		Detail:       detail,
	}
}
