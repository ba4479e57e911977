package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingStatus is the derived billing/payment state of an order
type BillingStatus string

const (
	BillingStatusInvalid  BillingStatus = "INVALID"  // Contract amount null/negative or order malformed
	BillingStatusPaid     BillingStatus = "PAID"     // Payments cover a positive invoiced total
	BillingStatusOverdue  BillingStatus = "OVERDUE"  // Open balance past its due date
	BillingStatusBilled   BillingStatus = "BILLED"   // Invoiced, open balance not yet due
	BillingStatusUnbilled BillingStatus = "UNBILLED" // Nothing invoiced
)

// AllBillingStatuses lists every status in rule priority order
var AllBillingStatuses = []BillingStatus{
	BillingStatusInvalid, BillingStatusPaid, BillingStatusOverdue, BillingStatusBilled, BillingStatusUnbilled,
}

// IsValid checks if the status is a valid BillingStatus
func (s BillingStatus) IsValid() bool {
	switch s {
	case BillingStatusInvalid, BillingStatusPaid, BillingStatusOverdue, BillingStatusBilled, BillingStatusUnbilled:
		return true
	}
	return false
}

// String returns the string representation of BillingStatus
func (s BillingStatus) String() string {
	return string(s)
}

// PaymentStatus describes payment timeliness for an order
type PaymentStatus string

const (
	PaymentStatusNone     PaymentStatus = "NONE"      // Nothing invoiced
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"    // Open balance remains
	PaymentStatusPaid     PaymentStatus = "PAID"      // Fully paid on or before the due date
	PaymentStatusPaidLate PaymentStatus = "PAID_LATE" // Fully paid after the due date
)

// Facts are the inputs of the billing status decision
type Facts struct {
	SequenceNo     string
	ContractAmount decimal.NullDecimal
	ContractDate   *time.Time
	TotalInvoiced  decimal.Decimal
	TotalPaid      decimal.Decimal
	DueDate        *time.Time
	CurrentDate    time.Time
}

// IsOverdue is the overdue predicate shared by the classifier and the
// exception detector: an open balance whose due date is strictly before
// the current date. Unknown due dates are never overdue.
func IsOverdue(f Facts) bool {
	if !f.TotalInvoiced.GreaterThan(f.TotalPaid) || f.DueDate == nil {
		return false
	}
	return Truncate(*f.DueDate, time.UTC).Before(Truncate(f.CurrentDate, time.UTC))
}

// DaysOverdue returns whole days past the due date, zero when not overdue
func DaysOverdue(f Facts) int {
	if !IsOverdue(f) {
		return 0
	}
	return DaysBetween(*f.DueDate, f.CurrentDate)
}

// Rule is one row of the classification decision table
type Rule struct {
	Name    string
	Status  BillingStatus
	Matches func(f Facts) bool
}

// invalidReason reports why facts cannot be classified, or "" when they can
func invalidReason(f Facts) string {
	switch {
	case !f.ContractAmount.Valid:
		return "contract amount is missing or unparsable"
	case f.ContractAmount.Decimal.IsNegative():
		return "contract amount is negative"
	case f.ContractDate == nil:
		return "contract date is missing or unparsable"
	}
	return ""
}

// DefaultRules is the billing status decision table. Rules are evaluated in
// order and the first match wins. The final rule accepts every remaining
// input so classification is total.
var DefaultRules = []Rule{
	{
		Name:    "invalid_order",
		Status:  BillingStatusInvalid,
		Matches: func(f Facts) bool { return invalidReason(f) != "" },
	},
	{
		Name:   "fully_paid",
		Status: BillingStatusPaid,
		Matches: func(f Facts) bool {
			return f.TotalInvoiced.IsPositive() && f.TotalPaid.GreaterThanOrEqual(f.TotalInvoiced)
		},
	},
	{
		Name:    "past_due",
		Status:  BillingStatusOverdue,
		Matches: IsOverdue,
	},
	{
		Name:    "open_balance",
		Status:  BillingStatusBilled,
		Matches: func(f Facts) bool { return f.TotalInvoiced.IsPositive() },
	},
	{
		Name:    "nothing_invoiced",
		Status:  BillingStatusUnbilled,
		Matches: func(f Facts) bool { return !f.TotalInvoiced.IsPositive() },
	},
}

// Classifier maps facts to a billing status using an ordered rule table
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier over rules. Nil rules means DefaultRules.
func NewClassifier(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the status of the first matching rule and, for INVALID,
// the classification error describing why.
func (c *Classifier) Classify(f Facts) (BillingStatus, *ClassificationError) {
	for _, rule := range c.rules {
		if !rule.Matches(f) {
			continue
		}
		if rule.Status == BillingStatusInvalid {
			return rule.Status, &ClassificationError{SequenceNo: f.SequenceNo, Reason: invalidReason(f)}
		}
		return rule.Status, nil
	}
	// Unreachable with DefaultRules; custom tables without a catch-all land here.
	return BillingStatusInvalid, &ClassificationError{SequenceNo: f.SequenceNo, Reason: "no classification rule matched"}
}

// ClassifyRow sets billing status, payment status and days overdue on row
func (c *Classifier) ClassifyRow(row *LedgerRow, asOf time.Time) {
	f := row.Facts(asOf)
	status, cerr := c.Classify(f)
	row.BillingStatus = status
	row.InvalidReason = ""
	if cerr != nil {
		row.InvalidReason = cerr.Reason
	}
	row.DaysOverdue = DaysOverdue(f)
	row.PaymentStatus = paymentStatus(*row)
}

func paymentStatus(row LedgerRow) PaymentStatus {
	if !row.TotalInvoiced.IsPositive() {
		return PaymentStatusNone
	}
	if row.TotalPaid.LessThan(row.TotalInvoiced) {
		return PaymentStatusUnpaid
	}
	if row.DueDate != nil && row.LastPaymentDate != nil &&
		Truncate(*row.LastPaymentDate, time.UTC).After(Truncate(*row.DueDate, time.UTC)) {
		return PaymentStatusPaidLate
	}
	return PaymentStatusPaid
}
