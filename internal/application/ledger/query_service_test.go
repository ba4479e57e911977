package ledgerapp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func currentHeader(version int64) *ledger.SnapshotHeader {
	return &ledger.SnapshotHeader{Version: version, RunID: "run-1", AsOf: runAsOf, PublishedAt: runAsOf.Add(time.Hour), RowCount: 2}
}

func TestQueryService_RowsResolveCurrentOnce(t *testing.T) {
	snaps := new(MockSnapshotStore)
	svc := NewQueryService(snaps, newFakeRunRepository(), new(MockRawStore))

	q := ledger.RowQuery{Statuses: []ledger.BillingStatus{ledger.BillingStatusPaid, ledger.BillingStatusOverdue}}
	snaps.On("Current", mock.Anything).Return(currentHeader(4), nil).Once()
	snaps.On("Rows", mock.Anything, int64(4), q).Return([]ledger.LedgerRow{{SequenceNo: "1"}}, nil).Once()

	res, err := svc.Rows(context.Background(), 0, q)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Snapshot.Version)
	assert.Len(t, res.Rows, 1)
	snaps.AssertExpectations(t)
}

func TestQueryService_RowsOfVersion(t *testing.T) {
	snaps := new(MockSnapshotStore)
	svc := NewQueryService(snaps, newFakeRunRepository(), new(MockRawStore))

	snaps.On("Header", mock.Anything, int64(2)).Return(currentHeader(2), nil).Once()
	snaps.On("Rows", mock.Anything, int64(2), ledger.RowQuery{}).Return([]ledger.LedgerRow{}, nil).Once()

	res, err := svc.Rows(context.Background(), 2, ledger.RowQuery{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Snapshot.Version)
	snaps.AssertNotCalled(t, "Current", mock.Anything)
}

func TestQueryService_NoSnapshot(t *testing.T) {
	snaps := new(MockSnapshotStore)
	svc := NewQueryService(snaps, newFakeRunRepository(), new(MockRawStore))
	snaps.On("Current", mock.Anything).Return(nil, ledger.ErrNoSnapshot)

	_, err := svc.Rows(context.Background(), 0, ledger.RowQuery{})
	assert.ErrorIs(t, err, ledger.ErrNoSnapshot)

	_, err = svc.Summary(context.Background(), 0)
	assert.ErrorIs(t, err, ledger.ErrNoSnapshot)
}

func TestQueryService_ValidatesQueries(t *testing.T) {
	svc := NewQueryService(new(MockSnapshotStore), newFakeRunRepository(), new(MockRawStore))
	ctx := context.Background()

	_, err := svc.Rows(ctx, 0, ledger.RowQuery{Statuses: []ledger.BillingStatus{"LOST"}})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Rows(ctx, 0, ledger.RowQuery{Limit: MaxPageSize + 1})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Rows(ctx, -1, ledger.RowQuery{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Exceptions(ctx, 0, ledger.ExceptionQuery{Kinds: []ledger.ExceptionKind{"LATE"}})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Exceptions(ctx, 0, ledger.ExceptionQuery{MinSeverity: "URGENT"})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, _, err = svc.Row(ctx, "")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = svc.Batches(ctx, ledger.BatchFilter{Kind: "shipment"})
	assert.ErrorIs(t, err, ledger.ErrUnknownKind)
}

func TestQueryService_Recent(t *testing.T) {
	snaps := new(MockSnapshotStore)
	svc := NewQueryService(snaps, newFakeRunRepository(), new(MockRawStore))
	snaps.On("Current", mock.Anything).Return(currentHeader(1), nil)
	snaps.On("Rows", mock.Anything, int64(1), ledger.RowQuery{Limit: DefaultRecentLimit}).Return([]ledger.LedgerRow{}, nil).Once()
	snaps.On("Rows", mock.Anything, int64(1), ledger.RowQuery{Limit: 5}).Return([]ledger.LedgerRow{}, nil).Once()

	_, err := svc.Recent(context.Background(), 0)
	require.NoError(t, err)
	_, err = svc.Recent(context.Background(), 5)
	require.NoError(t, err)
	snaps.AssertExpectations(t)
}

func TestQueryService_RowAndExceptions(t *testing.T) {
	snaps := new(MockSnapshotStore)
	svc := NewQueryService(snaps, newFakeRunRepository(), new(MockRawStore))
	snaps.On("Current", mock.Anything).Return(currentHeader(3), nil)
	snaps.On("Row", mock.Anything, int64(3), "42").Return(&ledger.LedgerRow{SequenceNo: "42"}, nil)
	snaps.On("Row", mock.Anything, int64(3), "43").Return(nil, shared.ErrNotFound)

	q := ledger.ExceptionQuery{MinSeverity: ledger.SeverityHigh}
	snaps.On("Exceptions", mock.Anything, int64(3), q).
		Return([]ledger.ExceptionRecord{{OrderKey: "42", Kind: ledger.ExceptionAmountMismatch, Severity: ledger.SeverityHigh}}, nil)

	row, header, err := svc.Row(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "42", row.SequenceNo)
	assert.Equal(t, int64(3), header.Version)

	_, _, err = svc.Row(context.Background(), "43")
	assert.ErrorIs(t, err, shared.ErrNotFound)

	exc, err := svc.Exceptions(context.Background(), 0, q)
	require.NoError(t, err)
	require.Len(t, exc.Exceptions, 1)
	assert.Equal(t, int64(3), exc.Snapshot.Version)
}

func TestQueryService_Status(t *testing.T) {
	snaps := new(MockSnapshotStore)
	runs := newFakeRunRepository()
	svc := NewQueryService(snaps, runs, new(MockRawStore))
	ctx := context.Background()

	snaps.On("Current", mock.Anything).Return(nil, ledger.ErrNoSnapshot).Once()
	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, status.Current)
	assert.Nil(t, status.LastSuccessfulRun)
	assert.Nil(t, status.LastRun)

	version := int64(5)
	require.NoError(t, runs.Save(ctx, &ledger.RunRecord{ID: "ok", Status: ledger.RunStatusSucceeded, SnapshotVersion: &version}))
	require.NoError(t, runs.Save(ctx, &ledger.RunRecord{ID: "bad", Status: ledger.RunStatusFailed, Error: "aborted"}))
	snaps.On("Current", mock.Anything).Return(currentHeader(5), nil).Once()

	status, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), status.Current.Version)
	assert.Equal(t, "ok", status.LastSuccessfulRun.ID)
	assert.Equal(t, "bad", status.LastRun.ID)
}

func TestQueryService_StatusStoreError(t *testing.T) {
	snaps := new(MockSnapshotStore)
	svc := NewQueryService(snaps, newFakeRunRepository(), new(MockRawStore))
	snaps.On("Current", mock.Anything).Return(nil, errors.New("db down"))

	_, err := svc.Status(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestQueryService_BatchesAndVersions(t *testing.T) {
	snaps := new(MockSnapshotStore)
	raw := new(MockRawStore)
	svc := NewQueryService(snaps, newFakeRunRepository(), raw)

	raw.On("ListBatches", mock.Anything, ledger.BatchFilter{Kind: ledger.RecordKindOrder, Limit: DefaultRecentLimit}).
		Return([]ledger.BatchInfo{{ID: "b1"}}, int64(9), nil).Once()
	snaps.On("Versions", mock.Anything, 3).Return([]ledger.SnapshotHeader{{Version: 3}}, nil).Once()

	batches, err := svc.Batches(context.Background(), ledger.BatchFilter{Kind: ledger.RecordKindOrder, Offset: -4})
	require.NoError(t, err)
	assert.Equal(t, int64(9), batches.Total)

	versions, err := svc.Versions(context.Background(), 3)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}
