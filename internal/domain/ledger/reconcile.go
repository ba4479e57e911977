package ledger

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerRow is the denormalized, classified view of one order
type LedgerRow struct {
	SequenceNo       string              `json:"sequence_no"`
	OrganizationName string              `json:"organization_name"`
	ProcurementName  string              `json:"procurement_name"`
	ContractDate     *time.Time          `json:"contract_date"`
	ContractorName   string              `json:"contractor_name"`
	ContractAmount   decimal.NullDecimal `json:"contract_amount"`
	CorporateNumber  string              `json:"corporate_number"`
	IngestedAt       time.Time           `json:"ingested_at"`

	CorporateName     string `json:"corporate_name,omitempty"`
	AddressPrefecture string `json:"address_prefecture,omitempty"`
	AddressCity       string `json:"address_city,omitempty"`

	TotalInvoiced   decimal.Decimal `json:"total_invoiced"`
	TotalPaid       decimal.Decimal `json:"total_paid"`
	InvoiceCount    int             `json:"invoice_count"`
	PaymentCount    int             `json:"payment_count"`
	LastInvoiceDate *time.Time      `json:"last_invoice_date"`
	LastPaymentDate *time.Time      `json:"last_payment_date"`
	// DueDate is the due date of the earliest invoice not yet covered by
	// payments, or of the latest invoice once everything is paid.
	DueDate     *time.Time `json:"due_date"`
	DaysOverdue int        `json:"days_overdue"`

	BillingStatus BillingStatus `json:"billing_status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	InvalidReason string        `json:"invalid_reason,omitempty"`
}

// OrderDate is the display ordering date (alias of the contract date)
func (r LedgerRow) OrderDate() *time.Time { return r.ContractDate }

// Outstanding returns invoiced minus paid, floored at zero
func (r LedgerRow) Outstanding() decimal.Decimal {
	diff := r.TotalInvoiced.Sub(r.TotalPaid)
	if diff.IsNegative() {
		return decimal.Zero
	}
	return diff
}

// Facts returns the classifier inputs for this row
func (r LedgerRow) Facts(asOf time.Time) Facts {
	return Facts{
		SequenceNo:     r.SequenceNo,
		ContractAmount: r.ContractAmount,
		ContractDate:   r.ContractDate,
		TotalInvoiced:  r.TotalInvoiced,
		TotalPaid:      r.TotalPaid,
		DueDate:        r.DueDate,
		CurrentDate:    asOf,
	}
}

// ReconcileStats counts row-level issues found while aggregating
type ReconcileStats struct {
	NullInvoiceAmounts int `json:"null_invoice_amounts"`
	NullPaymentAmounts int `json:"null_payment_amounts"`
	MatchedInvoices    int `json:"matched_invoices"`
	MatchedPayments    int `json:"matched_payments"`
}

// Reconciliation is the Reconciler's output
type Reconciliation struct {
	Rows           []LedgerRow
	OrphanInvoices []InvoiceRecord
	OrphanPayments []PaymentRecord
	Stats          ReconcileStats
}

// Reconciler joins current orders with their invoice and payment facts
type Reconciler struct {
	policy DuePolicy
}

// NewReconciler creates a reconciler using policy for due dates.
// A nil policy falls back to EndOfFollowingMonth.
func NewReconciler(policy DuePolicy) *Reconciler {
	if policy == nil {
		policy = EndOfFollowingMonth{}
	}
	return &Reconciler{policy: policy}
}

// Reconcile performs a left outer join from orders into invoice and payment
// aggregates. Orders without documents get zero totals; documents whose
// order_id matches no order are returned as orphans. Sums are exact decimals.
func (r *Reconciler) Reconcile(orders []OrderRecord, invoices []InvoiceRecord, payments []PaymentRecord, corporates []CorporateRecord) Reconciliation {
	out := Reconciliation{Rows: make([]LedgerRow, 0, len(orders))}

	known := make(map[string]struct{}, len(orders))
	for _, o := range orders {
		known[strings.TrimSpace(o.SequenceNo)] = struct{}{}
	}

	invoicesByOrder := make(map[string][]InvoiceRecord)
	for _, inv := range invoices {
		key := strings.TrimSpace(inv.OrderID)
		if _, ok := known[key]; !ok || key == "" {
			out.OrphanInvoices = append(out.OrphanInvoices, inv)
			continue
		}
		invoicesByOrder[key] = append(invoicesByOrder[key], inv)
		out.Stats.MatchedInvoices++
	}

	paymentsByOrder := make(map[string][]PaymentRecord)
	for _, pay := range payments {
		key := strings.TrimSpace(pay.OrderID)
		if _, ok := known[key]; !ok || key == "" {
			out.OrphanPayments = append(out.OrphanPayments, pay)
			continue
		}
		paymentsByOrder[key] = append(paymentsByOrder[key], pay)
		out.Stats.MatchedPayments++
	}

	corporateByNumber := make(map[string]CorporateRecord, len(corporates))
	for _, c := range corporates {
		corporateByNumber[strings.TrimSpace(c.CorporateNumber)] = c
	}

	for _, o := range orders {
		key := strings.TrimSpace(o.SequenceNo)
		row := LedgerRow{
			SequenceNo:       key,
			OrganizationName: o.OrganizationName,
			ProcurementName:  o.ProcurementName,
			ContractDate:     o.ContractDate,
			ContractorName:   o.ContractorName,
			ContractAmount:   o.ContractAmount,
			CorporateNumber:  o.CorporateNumber,
			IngestedAt:       o.IngestedAt,
			TotalInvoiced:    decimal.Zero,
			TotalPaid:        decimal.Zero,
		}
		if c, ok := corporateByNumber[strings.TrimSpace(o.CorporateNumber)]; ok && o.CorporateNumber != "" {
			row.CorporateName = c.CorporateName
			row.AddressPrefecture = c.AddressPrefecture
			row.AddressCity = c.AddressCity
		}

		invs := invoicesByOrder[key]
		for _, inv := range invs {
			row.InvoiceCount++
			if !inv.Amount.Valid {
				out.Stats.NullInvoiceAmounts++
			} else {
				row.TotalInvoiced = row.TotalInvoiced.Add(inv.Amount.Decimal)
			}
			row.LastInvoiceDate = laterDate(row.LastInvoiceDate, inv.InvoiceDate)
		}

		for _, pay := range paymentsByOrder[key] {
			row.PaymentCount++
			if !pay.Amount.Valid {
				out.Stats.NullPaymentAmounts++
			} else {
				row.TotalPaid = row.TotalPaid.Add(pay.Amount.Decimal)
			}
			row.LastPaymentDate = laterDate(row.LastPaymentDate, pay.PaymentDate)
		}

		row.DueDate = r.openDueDate(invs, row.TotalPaid)
		out.Rows = append(out.Rows, row)
	}

	return out
}

// openDueDate applies payments to invoices oldest first and returns the due
// date of the first invoice left with an open balance. When payments cover
// every invoice it returns the due date of the latest dated invoice. An open
// invoice without a date yields nil: its due date is unknown.
func (r *Reconciler) openDueDate(invoices []InvoiceRecord, paid decimal.Decimal) *time.Time {
	if len(invoices) == 0 {
		return nil
	}

	sorted := make([]InvoiceRecord, len(invoices))
	copy(sorted, invoices)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].InvoiceDate, sorted[j].InvoiceDate
		switch {
		case a == nil && b == nil:
			return sorted[i].Envelope.Before(sorted[j].Envelope)
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return sorted[i].Envelope.Before(sorted[j].Envelope)
	})

	remaining := paid
	var lastDue *time.Time
	for _, inv := range sorted {
		var due *time.Time
		if inv.InvoiceDate != nil {
			d := r.policy.DueDate(*inv.InvoiceDate)
			due = &d
			lastDue = due
		}
		if !inv.Amount.Valid || !inv.Amount.Decimal.IsPositive() {
			continue
		}
		if remaining.GreaterThanOrEqual(inv.Amount.Decimal) {
			remaining = remaining.Sub(inv.Amount.Decimal)
			continue
		}
		return due
	}
	return lastDue
}

func laterDate(current, candidate *time.Time) *time.Time {
	if candidate == nil {
		return current
	}
	if current == nil || candidate.After(*current) {
		c := *candidate
		return &c
	}
	return current
}
