package persistence

import (
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testIngestedAt = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func setupLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func money(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func orderBatch(ingestedAt time.Time, fingerprint string, orders ...ledger.OrderRecord) *ledger.RawBatch {
	for i := range orders {
		orders[i].RowIndex = i
	}
	return &ledger.RawBatch{
		Info: ledger.BatchInfo{
			Kind:        ledger.RecordKindOrder,
			IngestedAt:  ingestedAt,
			Source:      "orders.csv",
			Fingerprint: fingerprint,
			ValidRows:   len(orders),
		},
		Orders: orders,
	}
}

func sampleRow(seq string, status ledger.BillingStatus, contract *time.Time) ledger.LedgerRow {
	return ledger.LedgerRow{
		SequenceNo:       seq,
		OrganizationName: "Ministry of Land",
		ProcurementName:  "Survey " + seq,
		ContractDate:     contract,
		ContractorName:   "Acme Engineering",
		ContractAmount:   money("1000.00"),
		CorporateNumber:  "1010001000001",
		IngestedAt:       testIngestedAt,
		CorporateName:    "Acme Engineering KK",
		TotalInvoiced:    decimal.RequireFromString("400.00"),
		TotalPaid:        decimal.RequireFromString("100.00"),
		InvoiceCount:     1,
		PaymentCount:     1,
		LastInvoiceDate:  day(2025, 3, 1),
		DueDate:          day(2025, 4, 30),
		DaysOverdue:      46,
		BillingStatus:    status,
		PaymentStatus:    ledger.PaymentStatusUnpaid,
	}
}

func sampleSnapshot(runID string, asOf time.Time, rows []ledger.LedgerRow, exceptions []ledger.ExceptionRecord) *ledger.Snapshot {
	content := ledger.Content{
		AsOf:       asOf,
		Rows:       rows,
		Exceptions: exceptions,
		Summary:    ledger.Summarize(rows, exceptions),
	}
	sum, _ := content.Checksum()
	return &ledger.Snapshot{
		RunID:       runID,
		PublishedAt: asOf.Add(2 * time.Hour),
		Checksum:    sum,
		Warnings:    ledger.Warnings{InvalidOrders: 1},
		Content:     content,
	}
}
