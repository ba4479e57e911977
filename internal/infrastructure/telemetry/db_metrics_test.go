package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newManualMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider, reader
}

func collectMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) (metricdata.Metrics, bool) {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func sumInt64(m metricdata.Metrics) int64 {
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		return 0
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestNewDBMetrics_AppliesDefaults(t *testing.T) {
	provider, _ := newManualMeter(t)

	metrics, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, metrics.cfg.SlowQuery)
	assert.Equal(t, 15*time.Second, metrics.cfg.PoolInterval)
	assert.NotNil(t, metrics.log)
}

func TestDBMetrics_RecordQuery(t *testing.T) {
	provider, reader := newManualMeter(t)
	metrics, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{SlowQuery: 100 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordQuery(ctx, "select", "ledger_rows", 5*time.Millisecond)
	metrics.RecordQuery(ctx, "", "", 300*time.Millisecond)

	total, ok := collectMetric(t, reader, "db_query_total")
	require.True(t, ok)
	assert.Equal(t, int64(2), sumInt64(total))

	slow, ok := collectMetric(t, reader, "db_slow_query_total")
	require.True(t, ok)
	assert.Equal(t, int64(1), sumInt64(slow))

	_, ok = collectMetric(t, reader, "db_query_duration_seconds")
	assert.True(t, ok)
}

func TestDBMetrics_PoolStats(t *testing.T) {
	provider, reader := newManualMeter(t)
	metrics, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{PoolInterval: time.Hour}, zap.NewNop())
	require.NoError(t, err)

	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	sqlDB.SetMaxOpenConns(7)

	metrics.StartPoolStatsCollection(context.Background(), sqlDB)
	require.Eventually(t, func() bool {
		m, ok := collectMetric(t, reader, "db_pool_connections_max")
		if !ok {
			return false
		}
		gauge := m.Data.(metricdata.Gauge[int64])
		return len(gauge.DataPoints) == 1 && gauge.DataPoints[0].Value == 7
	}, time.Second, 10*time.Millisecond)

	metrics.Stop()
	metrics.Stop()
}

func TestDBMetrics_StartWithoutDB(t *testing.T) {
	provider, _ := newManualMeter(t)
	metrics, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{}, zap.NewNop())
	require.NoError(t, err)

	metrics.StartPoolStatsCollection(context.Background(), nil)
	metrics.Stop()
}

func TestDBMetricsPlugin_CountsStatements(t *testing.T) {
	provider, reader := newManualMeter(t)
	metrics, err := NewDBMetrics(provider.Meter("test"), DBMetricsConfig{}, zap.NewNop())
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedBatch{}))
	require.NoError(t, db.Use(NewDBMetricsPlugin(metrics)))

	require.NoError(t, db.Create(&tracedBatch{Fingerprint: "f1"}).Error)
	var got []tracedBatch
	require.NoError(t, db.Find(&got).Error)
	require.NoError(t, db.Exec("DELETE FROM traced_batches").Error)

	total, ok := collectMetric(t, reader, "db_query_total")
	require.True(t, ok)
	assert.Equal(t, int64(3), sumInt64(total))
}

func TestDetectOperationType(t *testing.T) {
	tests := map[string]string{
		"SELECT * FROM ledger_rows":         "SELECT",
		"  insert into ledger_runs values":  "INSERT",
		"UPDATE ledger_current SET version": "UPDATE",
		"delete from raw_records":           "DELETE",
		"CREATE INDEX idx":                  "OTHER",
		"":                                  "OTHER",
	}
	for sql, want := range tests {
		assert.Equal(t, want, detectOperationType(sql), sql)
	}
}

func TestRegisterDBMetrics_Disabled(t *testing.T) {
	metrics, err := RegisterDBMetrics(context.Background(), nil, nil, DBMetricsConfig{Enabled: true}, zap.NewNop())
	assert.NoError(t, err)
	assert.Nil(t, metrics)

	metrics, err = RegisterDBMetrics(context.Background(), nil, &MeterProvider{}, DBMetricsConfig{Enabled: true}, zap.NewNop())
	assert.NoError(t, err)
	assert.Nil(t, metrics)
}
