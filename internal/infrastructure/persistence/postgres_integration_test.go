//go:build integration

package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/infrastructure/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupPostgres starts a disposable PostgreSQL container and applies the
// embedded migrations to it
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("ledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: Failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	m, err := migration.New(sqlDB, "", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())

	return db
}

func TestPostgres_IngestPublishRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := setupPostgres(t)
	raw := NewGormRawStore(db)
	snapshots := NewGormSnapshotStore(db)
	runs := NewGormRunRepository(db)

	batch, err := raw.Append(ctx, orderBatch(testIngestedAt, "fp-1",
		ledger.OrderRecord{SequenceNo: "A-1", ContractAmount: money("1000.00"), ContractDate: day(2025, 1, 10)},
	))
	require.NoError(t, err)
	assert.Equal(t, int64(1), batch.Seq)

	set, err := raw.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, set.Orders, 1)
	assert.Equal(t, "1000", set.Orders[0].ContractAmount.Decimal.String())

	asOf := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	result, err := ledger.NewPipeline().Build(set, ledger.DefaultRunOptions(asOf))
	require.NoError(t, err)

	snap := &ledger.Snapshot{RunID: "run-1", PublishedAt: asOf, Warnings: result.Warnings, Content: result.Content}
	snap.Checksum, err = result.Content.Checksum()
	require.NoError(t, err)

	version, err := snapshots.Publish(ctx, snap)
	require.NoError(t, err)

	current, err := snapshots.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, version, current.Version)
	assert.Equal(t, snap.Checksum, current.Checksum)

	rows, err := snapshots.Rows(ctx, version, ledger.RowQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ledger.BillingStatusUnbilled, rows[0].BillingStatus)

	require.NoError(t, runs.Save(ctx, &ledger.RunRecord{
		ID: "00000000-0000-0000-0000-000000000001", Trigger: "manual", Status: ledger.RunStatusSucceeded,
		AsOf: asOf, StartedAt: asOf, SnapshotVersion: &version,
	}))
	last, err := runs.LastSuccessful(ctx)
	require.NoError(t, err)
	assert.Equal(t, version, *last.SnapshotVersion)
}

func TestPostgres_ExactAmountsAndUniqueFingerprint(t *testing.T) {
	ctx := context.Background()
	raw := NewGormRawStore(setupPostgres(t))

	_, err := raw.Append(ctx, orderBatch(testIngestedAt, "fp-exact",
		ledger.OrderRecord{SequenceNo: "A-1", ContractAmount: money("1000.125")},
	))
	require.NoError(t, err)

	_, err = raw.Append(ctx, orderBatch(testIngestedAt, "fp-exact", ledger.OrderRecord{SequenceNo: "A-2"}))
	require.ErrorIs(t, err, ledger.ErrDuplicateBatch)

	set, err := raw.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, set.Orders, 1)
	assert.Equal(t, "1000.125", set.Orders[0].ContractAmount.Decimal.String())
}
