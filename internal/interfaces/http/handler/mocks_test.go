package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	ledgerapp "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// MockLedgerReader implements LedgerReader for testing
type MockLedgerReader struct {
	mock.Mock
}

func (m *MockLedgerReader) Summary(ctx context.Context, version int64) (*ledger.SnapshotHeader, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.SnapshotHeader), args.Error(1)
}

func (m *MockLedgerReader) Rows(ctx context.Context, version int64, q ledger.RowQuery) (*ledgerapp.RowsResult, error) {
	args := m.Called(ctx, version, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.RowsResult), args.Error(1)
}

func (m *MockLedgerReader) Recent(ctx context.Context, n int) (*ledgerapp.RowsResult, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.RowsResult), args.Error(1)
}

func (m *MockLedgerReader) Row(ctx context.Context, sequenceNo string) (*ledger.LedgerRow, *ledger.SnapshotHeader, error) {
	args := m.Called(ctx, sequenceNo)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*ledger.LedgerRow), args.Get(1).(*ledger.SnapshotHeader), args.Error(2)
}

func (m *MockLedgerReader) Exceptions(ctx context.Context, version int64, q ledger.ExceptionQuery) (*ledgerapp.ExceptionsResult, error) {
	args := m.Called(ctx, version, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.ExceptionsResult), args.Error(1)
}

func (m *MockLedgerReader) Versions(ctx context.Context, limit int) ([]ledger.SnapshotHeader, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.SnapshotHeader), args.Error(1)
}

func (m *MockLedgerReader) Status(ctx context.Context) (*ledgerapp.Status, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.Status), args.Error(1)
}

func (m *MockLedgerReader) Runs(ctx context.Context, limit int) ([]ledger.RunRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.RunRecord), args.Error(1)
}

func (m *MockLedgerReader) Batches(ctx context.Context, filter ledger.BatchFilter) (*ledgerapp.BatchesResult, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.BatchesResult), args.Error(1)
}

// MockIngester implements Ingester for testing. The body is drained and
// kept so tests can assert on what reached the service.
type MockIngester struct {
	mock.Mock
	lastBody []byte
}

func (m *MockIngester) Ingest(ctx context.Context, req ledgerapp.IngestRequest) (*ledgerapp.IngestReport, error) {
	if req.Body != nil {
		m.lastBody, _ = io.ReadAll(req.Body)
		req.Body = nil
	}
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.IngestReport), args.Error(1)
}

// MockRunner implements Runner for testing
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, req ledgerapp.RunRequest) (*ledgerapp.RunResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.RunResult), args.Error(1)
}

// MockPaymentRegistrar implements PaymentRegistrar for testing
type MockPaymentRegistrar struct {
	mock.Mock
}

func (m *MockPaymentRegistrar) RegisterPayment(ctx context.Context, req ledgerapp.RegisterPaymentRequest) (*ledgerapp.IngestReport, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledgerapp.IngestReport), args.Error(1)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func testHeader(version int64) *ledger.SnapshotHeader {
	return &ledger.SnapshotHeader{
		Version:     version,
		RunID:       "run-1",
		AsOf:        date(2026, 3, 15),
		PublishedAt: time.Date(2026, 3, 15, 6, 0, 5, 0, time.UTC),
		Checksum:    "abc123",
		RowCount:    1,
		Summary: ledger.Summary{
			TotalOrders:   1,
			TotalAmount:   decimal.RequireFromString("1200"),
			TotalInvoiced: decimal.RequireFromString("1200"),
			TotalPaid:     decimal.Zero,
			OverdueAmount: decimal.RequireFromString("1200"),
			ByStatus:      map[ledger.BillingStatus]int{ledger.BillingStatusOverdue: 1},
		},
	}
}

func testRow() ledger.LedgerRow {
	return ledger.LedgerRow{
		SequenceNo:      "2026-0001",
		ContractDate:    datePtr(2026, 1, 10),
		ContractAmount:  decimal.NewNullDecimal(decimal.RequireFromString("1200")),
		TotalInvoiced:   decimal.RequireFromString("1200"),
		TotalPaid:       decimal.Zero,
		InvoiceCount:    1,
		LastInvoiceDate: datePtr(2026, 1, 31),
		DueDate:         datePtr(2026, 2, 28),
		DaysOverdue:     15,
		BillingStatus:   ledger.BillingStatusOverdue,
		PaymentStatus:   ledger.PaymentStatusUnpaid,
	}
}

// decodeResponse unmarshals the envelope and re-decodes Data into out
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, out any) dto.Response {
	t.Helper()

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if out != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return resp
}
