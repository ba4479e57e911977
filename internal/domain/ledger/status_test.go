package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func facts(contract string, invoiced, paid string, due *time.Time) Facts {
	f := Facts{
		SequenceNo:    "X",
		ContractDate:  daysAgo(100),
		TotalInvoiced: decimal.RequireFromString(invoiced),
		TotalPaid:     decimal.RequireFromString(paid),
		DueDate:       due,
		CurrentDate:   testAsOf,
	}
	if contract != "" {
		f.ContractAmount = amount(contract)
	}
	return f
}

func TestDefaultRules_Order(t *testing.T) {
	names := make([]string, 0, len(DefaultRules))
	for _, r := range DefaultRules {
		names = append(names, string(r.Status))
	}
	assert.Equal(t, []string{"INVALID", "PAID", "OVERDUE", "BILLED", "UNBILLED"}, names)
}

func TestClassifier_RuleByRule(t *testing.T) {
	c := NewClassifier(nil)

	t.Run("invalid: null contract amount", func(t *testing.T) {
		status, cerr := c.Classify(facts("", "100", "100", nil))
		assert.Equal(t, BillingStatusInvalid, status)
		require.NotNil(t, cerr)
		assert.Contains(t, cerr.Reason, "missing")
	})

	t.Run("invalid: negative contract amount wins over paid", func(t *testing.T) {
		status, cerr := c.Classify(facts("-1", "100", "100", nil))
		assert.Equal(t, BillingStatusInvalid, status)
		assert.Contains(t, cerr.Error(), "negative")
	})

	t.Run("invalid: missing contract date", func(t *testing.T) {
		f := facts("100", "0", "0", nil)
		f.ContractDate = nil
		status, _ := c.Classify(f)
		assert.Equal(t, BillingStatusInvalid, status)
	})

	t.Run("paid: exact", func(t *testing.T) {
		status, cerr := c.Classify(facts("100", "100", "100", daysAgo(30)))
		assert.Equal(t, BillingStatusPaid, status)
		assert.Nil(t, cerr)
	})

	t.Run("paid: overpaid beats overdue", func(t *testing.T) {
		status, _ := c.Classify(facts("100", "100", "120", daysAgo(30)))
		assert.Equal(t, BillingStatusPaid, status)
	})

	t.Run("overdue: due date strictly before current date", func(t *testing.T) {
		status, _ := c.Classify(facts("100", "100", "40", daysAgo(1)))
		assert.Equal(t, BillingStatusOverdue, status)
	})

	t.Run("billed: due today is not overdue", func(t *testing.T) {
		status, _ := c.Classify(facts("100", "100", "0", daysAgo(0)))
		assert.Equal(t, BillingStatusBilled, status)
	})

	t.Run("billed: unknown due date", func(t *testing.T) {
		status, _ := c.Classify(facts("100", "100", "0", nil))
		assert.Equal(t, BillingStatusBilled, status)
	})

	t.Run("unbilled: nothing invoiced", func(t *testing.T) {
		status, _ := c.Classify(facts("100", "0", "0", nil))
		assert.Equal(t, BillingStatusUnbilled, status)
	})

	t.Run("unbilled: payment without invoice", func(t *testing.T) {
		status, _ := c.Classify(facts("100", "0", "50", nil))
		assert.Equal(t, BillingStatusUnbilled, status)
	})

	t.Run("unbilled: net negative invoiced", func(t *testing.T) {
		status, _ := c.Classify(facts("100", "-10", "0", daysAgo(5)))
		assert.Equal(t, BillingStatusUnbilled, status)
	})
}

func TestClassifier_CustomTableWithoutCatchAll(t *testing.T) {
	c := NewClassifier([]Rule{DefaultRules[1]})
	status, cerr := c.Classify(facts("100", "0", "0", nil))
	assert.Equal(t, BillingStatusInvalid, status)
	require.NotNil(t, cerr)
	assert.Equal(t, "no classification rule matched", cerr.Reason)
}

func TestClassifyRow_PaymentStatus(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		name     string
		invoiced string
		paid     string
		lastPaid *time.Time
		due      *time.Time
		want     PaymentStatus
	}{
		{"no invoice", "0", "0", nil, nil, PaymentStatusNone},
		{"open balance", "100", "10", daysAgo(3), daysAgo(1), PaymentStatusUnpaid},
		{"paid on time", "100", "100", daysAgo(5), daysAgo(1), PaymentStatusPaid},
		{"paid on due date", "100", "100", daysAgo(1), daysAgo(1), PaymentStatusPaid},
		{"paid late", "100", "100", daysAgo(1), daysAgo(5), PaymentStatusPaidLate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := LedgerRow{
				SequenceNo:      "1",
				ContractAmount:  amount("100"),
				ContractDate:    daysAgo(90),
				TotalInvoiced:   decimal.RequireFromString(tt.invoiced),
				TotalPaid:       decimal.RequireFromString(tt.paid),
				LastPaymentDate: tt.lastPaid,
				DueDate:         tt.due,
			}
			c.ClassifyRow(&row, testAsOf)
			assert.Equal(t, tt.want, row.PaymentStatus)
		})
	}
}

func TestClassifyRow_DaysOverdue(t *testing.T) {
	row := LedgerRow{
		SequenceNo:     "2",
		ContractAmount: amount("1000000"),
		ContractDate:   daysAgo(60),
		TotalInvoiced:  decimal.NewFromInt(1000000),
		TotalPaid:      decimal.Zero,
		DueDate:        daysAgo(10),
	}
	NewClassifier(nil).ClassifyRow(&row, testAsOf)

	assert.Equal(t, BillingStatusOverdue, row.BillingStatus)
	assert.Equal(t, 10, row.DaysOverdue)
	assert.Empty(t, row.InvalidReason)
}
