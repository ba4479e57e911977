package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioRaw() *RawSet {
	first := order("4", "500", daysAgo(5))
	first.Envelope = env(1, 3, testAsOf.Add(-48*time.Hour))
	second := order("4", "600", daysAgo(5))
	second.Envelope = env(4, 0, testAsOf.Add(-24*time.Hour))

	return &RawSet{
		Orders: []OrderRecord{
			order("1", "5000000", daysAgo(60)),
			order("2", "1000000", daysAgo(60)),
			order("3", "1000000", daysAgo(60)),
			first,
			second,
			order("", "1", daysAgo(1)),
		},
		Invoices: []InvoiceRecord{
			invoice("2", "1000000", daysAgo(40)),
			invoice("3", "1000000", daysAgo(40)),
			invoice("77", "12345", daysAgo(3)),
		},
		Payments: []PaymentRecord{
			payment("3", "1000000", daysAgo(15)),
		},
	}
}

func scenarioOptions() RunOptions {
	opts := DefaultRunOptions(testAsOf)
	// 30-day terms so the seq=2 invoice dated 40 days ago fell due 10 days ago.
	opts.DuePolicy = NetDays(30)
	return opts
}

func rowByKey(t *testing.T, rows []LedgerRow, key string) LedgerRow {
	t.Helper()
	for _, r := range rows {
		if r.SequenceNo == key {
			return r
		}
	}
	t.Fatalf("row %s not found", key)
	return LedgerRow{}
}

func exceptionsFor(exceptions []ExceptionRecord, key string) []ExceptionKind {
	var out []ExceptionKind
	for _, e := range exceptions {
		if e.OrderKey == key {
			out = append(out, e.Kind)
		}
	}
	return out
}

func TestPipeline_Scenarios(t *testing.T) {
	res, err := NewPipeline().Build(scenarioRaw(), scenarioOptions())
	require.NoError(t, err)

	t.Run("seq 1 unbilled past grace period", func(t *testing.T) {
		row := rowByKey(t, res.Rows, "1")
		assert.Equal(t, BillingStatusUnbilled, row.BillingStatus)
		assert.Equal(t, []ExceptionKind{ExceptionMissingInvoice}, exceptionsFor(res.Exceptions, "1"))
	})

	t.Run("seq 2 overdue", func(t *testing.T) {
		row := rowByKey(t, res.Rows, "2")
		assert.Equal(t, BillingStatusOverdue, row.BillingStatus)
		assert.Equal(t, 10, row.DaysOverdue)
		assert.Equal(t, PaymentStatusUnpaid, row.PaymentStatus)
		assert.Equal(t, []ExceptionKind{ExceptionOverdue}, exceptionsFor(res.Exceptions, "2"))
	})

	t.Run("seq 3 paid without mismatch", func(t *testing.T) {
		row := rowByKey(t, res.Rows, "3")
		assert.Equal(t, BillingStatusPaid, row.BillingStatus)
		assert.Empty(t, exceptionsFor(res.Exceptions, "3"))
	})

	t.Run("seq 4 latest ingestion wins", func(t *testing.T) {
		row := rowByKey(t, res.Rows, "4")
		assert.Equal(t, "600", row.ContractAmount.Decimal.String())
	})

	t.Run("orphan invoice preserved", func(t *testing.T) {
		assert.Equal(t, []ExceptionKind{ExceptionOrphanDocument}, exceptionsFor(res.Exceptions, "77"))
	})

	t.Run("warnings", func(t *testing.T) {
		assert.Equal(t, 1, res.Warnings.DiscardedKeys[RecordKindOrder])
		assert.Equal(t, 1, res.Warnings.SupersededVersions[RecordKindOrder])
		assert.Equal(t, 1, res.Warnings.OrphanInvoices)
		assert.Len(t, res.Discarded, 1)
	})

	t.Run("summary", func(t *testing.T) {
		s := res.Summary
		assert.Equal(t, 4, s.TotalOrders)
		assert.Equal(t, "7000600", s.TotalAmount.String())
		assert.Equal(t, "5000600", s.UnbilledAmount.String())
		assert.Equal(t, "1000000", s.OverdueAmount.String())
		assert.Equal(t, 3, s.ExceptionCount)
		assert.Equal(t, 1, s.ByStatus[BillingStatusPaid])
		assert.Equal(t, 0, s.ByStatus[BillingStatusInvalid])
	})
}

func TestPipeline_Idempotent(t *testing.T) {
	p := NewPipeline()
	a, err := p.Build(scenarioRaw(), scenarioOptions())
	require.NoError(t, err)
	b, err := p.Build(scenarioRaw(), scenarioOptions())
	require.NoError(t, err)

	ca, err := a.Canonical()
	require.NoError(t, err)
	cb, err := b.Canonical()
	require.NoError(t, err)
	assert.Equal(t, ca, cb)

	sa, _ := a.Checksum()
	sb, _ := b.Checksum()
	assert.Equal(t, sa, sb)
}

func TestPipeline_InputOrderDoesNotMatter(t *testing.T) {
	raw := scenarioRaw()
	reversed := &RawSet{Invoices: raw.Invoices, Payments: raw.Payments}
	for i := len(raw.Orders) - 1; i >= 0; i-- {
		reversed.Orders = append(reversed.Orders, raw.Orders[i])
	}

	a, err := NewPipeline().Build(raw, scenarioOptions())
	require.NoError(t, err)
	b, err := NewPipeline().Build(reversed, scenarioOptions())
	require.NoError(t, err)

	sa, _ := a.Checksum()
	sb, _ := b.Checksum()
	assert.Equal(t, sa, sb)
}

func TestPipeline_InvalidOrderSurfacesAsStatus(t *testing.T) {
	raw := &RawSet{Orders: []OrderRecord{order("1", "", daysAgo(3)), order("2", "-5", daysAgo(3))}}
	res, err := NewPipeline().Build(raw, scenarioOptions())
	require.NoError(t, err)

	for _, row := range res.Rows {
		assert.Equal(t, BillingStatusInvalid, row.BillingStatus)
		assert.NotEmpty(t, row.InvalidReason)
	}
	assert.Equal(t, 2, res.Warnings.InvalidOrders)
	assert.Len(t, res.Invalid, 2)
}

func TestPipeline_AbortsWithoutOrders(t *testing.T) {
	_, err := NewPipeline().Build(&RawSet{Orders: []OrderRecord{order("", "1", nil)}}, scenarioOptions())
	require.Error(t, err)

	var abort *RunAbortError
	require.True(t, errors.As(err, &abort))
	assert.Equal(t, "deduplicate", abort.Stage)
	assert.ErrorIs(t, err, ErrRunAborted)
	assert.ErrorIs(t, err, ErrNoValidRows)

	_, err = NewPipeline().Build(nil, scenarioOptions())
	assert.ErrorIs(t, err, ErrRunAborted)
}

func TestPipeline_ExportOrder(t *testing.T) {
	raw := &RawSet{Orders: []OrderRecord{
		order("a", "1", daysAgo(10)),
		order("b", "1", daysAgo(1)),
		order("c", "1", nil),
		order("d", "1", daysAgo(1)),
	}}
	res, err := NewPipeline().Build(raw, scenarioOptions())
	require.NoError(t, err)

	keys := make([]string, 0, len(res.Rows))
	for _, r := range res.Rows {
		keys = append(keys, r.SequenceNo)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, keys)
}

func TestSortExceptionsForExport(t *testing.T) {
	older := testAsOf.AddDate(0, 0, -1)
	exceptions := []ExceptionRecord{
		{OrderKey: "a", Kind: ExceptionOverdue, Severity: SeverityCritical, DetectedAt: older},
		{OrderKey: "c", Kind: ExceptionOverdue, Severity: SeverityLow, DetectedAt: testAsOf},
		{OrderKey: "b", Kind: ExceptionOverdue, Severity: SeverityCritical, DetectedAt: testAsOf},
		{OrderKey: "b", Kind: ExceptionAmountMismatch, Severity: SeverityHigh, DetectedAt: testAsOf},
	}
	SortExceptionsForExport(exceptions)

	got := make([]string, len(exceptions))
	for i, e := range exceptions {
		got[i] = e.OrderKey + "/" + string(e.Kind)
	}
	assert.Equal(t, []string{"b/AMOUNT_MISMATCH", "b/OVERDUE", "c/OVERDUE", "a/OVERDUE"}, got)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, nil)
	assert.Equal(t, 0, s.TotalOrders)
	assert.True(t, s.TotalAmount.Equal(decimal.Zero))
	assert.Len(t, s.ByStatus, len(AllBillingStatuses))
}
