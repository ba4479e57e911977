package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormSnapshotStore_CurrentBeforePublish(t *testing.T) {
	store := NewGormSnapshotStore(setupLedgerDB(t))

	_, err := store.Current(context.Background())
	assert.ErrorIs(t, err, ledger.ErrNoSnapshot)
}

func TestGormSnapshotStore_PublishSwapsCurrent(t *testing.T) {
	ctx := context.Background()
	store := NewGormSnapshotStore(setupLedgerDB(t))
	asOf := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	v1, err := store.Publish(ctx, sampleSnapshot("run-1", asOf, []ledger.LedgerRow{
		sampleRow("A-1", ledger.BillingStatusOverdue, day(2025, 1, 10)),
	}, nil))
	require.NoError(t, err)

	current, err := store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, v1, current.Version)
	assert.Equal(t, "run-1", current.RunID)
	assert.Equal(t, 1, current.RowCount)
	assert.True(t, current.AsOf.Equal(asOf))
	assert.Equal(t, 1, current.Warnings.InvalidOrders)
	assert.Equal(t, 1, current.Summary.ByStatus[ledger.BillingStatusOverdue])

	v2, err := store.Publish(ctx, sampleSnapshot("run-2", asOf.AddDate(0, 0, 1), []ledger.LedgerRow{
		sampleRow("A-1", ledger.BillingStatusPaid, day(2025, 1, 10)),
		sampleRow("A-2", ledger.BillingStatusUnbilled, nil),
	}, nil))
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	current, err = store.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, v2, current.Version)
	assert.Equal(t, 2, current.RowCount)

	// The superseded version stays readable
	old, err := store.Rows(ctx, v1, ledger.RowQuery{})
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, ledger.BillingStatusOverdue, old[0].BillingStatus)

	versions, err := store.Versions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, v2, versions[0].Version)
}

func TestGormSnapshotStore_Rows(t *testing.T) {
	ctx := context.Background()
	store := NewGormSnapshotStore(setupLedgerDB(t))
	asOf := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	rows := []ledger.LedgerRow{
		sampleRow("C-3", ledger.BillingStatusBilled, day(2025, 5, 1)),
		sampleRow("B-2", ledger.BillingStatusOverdue, day(2025, 2, 1)),
		sampleRow("A-1", ledger.BillingStatusUnbilled, nil),
	}
	version, err := store.Publish(ctx, sampleSnapshot("run-1", asOf, rows, nil))
	require.NoError(t, err)

	t.Run("preserves publish order", func(t *testing.T) {
		got, err := store.Rows(ctx, version, ledger.RowQuery{})
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, []string{"C-3", "B-2", "A-1"}, []string{got[0].SequenceNo, got[1].SequenceNo, got[2].SequenceNo})

		assert.True(t, got[0].TotalInvoiced.Equal(rows[0].TotalInvoiced))
		assert.True(t, got[0].ContractAmount.Decimal.Equal(rows[0].ContractAmount.Decimal))
		require.NotNil(t, got[0].DueDate)
		assert.True(t, got[0].DueDate.Equal(*rows[0].DueDate))
		assert.Equal(t, "Acme Engineering KK", got[0].CorporateName)
		assert.Nil(t, got[2].ContractDate)
	})

	t.Run("status filter", func(t *testing.T) {
		got, err := store.Rows(ctx, version, ledger.RowQuery{
			Statuses: []ledger.BillingStatus{ledger.BillingStatusOverdue, ledger.BillingStatusUnbilled},
		})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "B-2", got[0].SequenceNo)
	})

	t.Run("limit and offset", func(t *testing.T) {
		got, err := store.Rows(ctx, version, ledger.RowQuery{Offset: 1, Limit: 1})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "B-2", got[0].SequenceNo)
	})

	t.Run("single row", func(t *testing.T) {
		row, err := store.Row(ctx, version, "B-2")
		require.NoError(t, err)
		assert.Equal(t, 46, row.DaysOverdue)

		_, err = store.Row(ctx, version, "Z-9")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("unknown version header", func(t *testing.T) {
		_, err := store.Header(ctx, version+10)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormSnapshotStore_Exceptions(t *testing.T) {
	ctx := context.Background()
	store := NewGormSnapshotStore(setupLedgerDB(t))
	asOf := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	overdue := 46

	exceptions := []ledger.ExceptionRecord{
		{OrderKey: "B-2", Kind: ledger.ExceptionOverdue, Severity: ledger.SeverityHigh, DetectedAt: asOf, DaysOverdue: &overdue, DueDate: day(2025, 4, 30)},
		{OrderKey: "A-1", Kind: ledger.ExceptionMissingInvoice, Severity: ledger.SeverityMedium, DetectedAt: asOf},
		{OrderKey: "X-9", Kind: ledger.ExceptionOrphanDocument, Severity: ledger.SeverityLow, DetectedAt: asOf, DocumentKind: ledger.RecordKindInvoice, DocumentRef: "INV-7"},
	}
	version, err := store.Publish(ctx, sampleSnapshot("run-1", asOf, []ledger.LedgerRow{
		sampleRow("A-1", ledger.BillingStatusUnbilled, day(2025, 1, 1)),
	}, exceptions))
	require.NoError(t, err)

	all, err := store.Exceptions(ctx, version, ledger.ExceptionQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "B-2", all[0].OrderKey)
	require.NotNil(t, all[0].DaysOverdue)
	assert.Equal(t, 46, *all[0].DaysOverdue)
	assert.Equal(t, "INV-7", all[2].DocumentRef)
	assert.Equal(t, ledger.RecordKindInvoice, all[2].DocumentKind)

	medium, err := store.Exceptions(ctx, version, ledger.ExceptionQuery{MinSeverity: ledger.SeverityMedium})
	require.NoError(t, err)
	assert.Len(t, medium, 2)

	orphans, err := store.Exceptions(ctx, version, ledger.ExceptionQuery{Kinds: []ledger.ExceptionKind{ledger.ExceptionOrphanDocument}})
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, "X-9", orphans[0].OrderKey)

	byOrder, err := store.Exceptions(ctx, version, ledger.ExceptionQuery{OrderKey: "A-1"})
	require.NoError(t, err)
	require.Len(t, byOrder, 1)
	assert.Equal(t, ledger.ExceptionMissingInvoice, byOrder[0].Kind)
}
