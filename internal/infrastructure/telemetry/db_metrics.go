package telemetry

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBMetricsConfig controls the statement and pool instruments.
type DBMetricsConfig struct {
	Enabled bool
	// SlowQuery counts statements slower than this. Default 200ms.
	SlowQuery time.Duration
	// PoolInterval is how often connection pool stats are sampled. Default 15s.
	PoolInterval time.Duration
}

// DBMetrics counts and times statements and samples the connection pool.
type DBMetrics struct {
	pool       *Gauge
	poolMax    *Gauge
	statements *Counter
	latency    *Histogram
	slow       *Counter

	cfg    DBMetricsConfig
	log    *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDBMetrics creates the instruments on meter, filling in defaults for cfg.
func NewDBMetrics(meter metric.Meter, cfg DBMetricsConfig, log *zap.Logger) (*DBMetrics, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.SlowQuery <= 0 {
		cfg.SlowQuery = 200 * time.Millisecond
	}
	if cfg.PoolInterval <= 0 {
		cfg.PoolInterval = 15 * time.Second
	}
	m := &DBMetrics{cfg: cfg, log: log}

	var err error
	if m.pool, err = NewGauge(meter, "db_pool_connections", "Pool connections by state", "{connection}"); err != nil {
		return nil, err
	}
	if m.poolMax, err = NewGauge(meter, "db_pool_connections_max", "Pool connection limit", "{connection}"); err != nil {
		return nil, err
	}
	if m.statements, err = NewCounter(meter, "db_query_total", "Statements executed by operation", "{query}"); err != nil {
		return nil, err
	}
	if m.slow, err = NewCounter(meter, "db_slow_query_total", "Statements over the slow threshold by table", "{query}"); err != nil {
		return nil, err
	}
	m.latency, err = NewHistogram(meter, HistogramOpts{
		Name:        "db_query_duration_seconds",
		Description: "Statement latency",
		Unit:        "s",
		Boundaries:  DBDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// StartPoolStatsCollection samples db.Stats now and every PoolInterval until
// Stop or ctx is done.
func (m *DBMetrics) StartPoolStatsCollection(ctx context.Context, db *sql.DB) {
	if db == nil {
		m.log.Warn("No sql.DB, pool stats not collected")
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		tick := time.NewTicker(m.cfg.PoolInterval)
		defer tick.Stop()
		for {
			m.samplePool(ctx, db.Stats())
			select {
			case <-tick.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	m.log.Info("Collecting pool stats", zap.Duration("interval", m.cfg.PoolInterval))
}

func (m *DBMetrics) samplePool(ctx context.Context, s sql.DBStats) {
	m.poolMax.Record(ctx, int64(s.MaxOpenConnections))
	m.pool.Record(ctx, int64(s.Idle), AttrDBState.String("idle"))
	m.pool.Record(ctx, int64(s.InUse), AttrDBState.String("in_use"))
	m.pool.Record(ctx, int64(s.OpenConnections), AttrDBState.String("open"))
}

// Stop ends pool sampling. It may be called more than once.
func (m *DBMetrics) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// RecordQuery records one statement. Slow statements are also counted per
// table.
func (m *DBMetrics) RecordQuery(ctx context.Context, operation, table string, d time.Duration) {
	op := strings.ToUpper(operation)
	if op == "" {
		op = "UNKNOWN"
	}
	m.statements.Inc(ctx, AttrDBOperation.String(op))
	m.latency.RecordDuration(ctx, d, AttrDBOperation.String(op))
	if d <= m.cfg.SlowQuery {
		return
	}
	if table == "" {
		table = "unknown"
	}
	m.slow.Inc(ctx, AttrDBTable.String(table))
}

// DBMetricsPlugin is the gorm.Plugin feeding DBMetrics.
type DBMetricsPlugin struct {
	metrics *DBMetrics
}

// NewDBMetricsPlugin wraps metrics as a gorm plugin.
func NewDBMetricsPlugin(metrics *DBMetrics) *DBMetricsPlugin {
	return &DBMetricsPlugin{metrics: metrics}
}

func (p *DBMetricsPlugin) Name() string { return "ledger_db_metrics" }

func (p *DBMetricsPlugin) Initialize(db *gorm.DB) error {
	return hookStatements(db, "ledger_metrics", p.record)
}

func (p *DBMetricsPlugin) record(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		elapsed, _ := queryElapsed(ctx)
		kind := op
		if kind == "" {
			kind = detectOperationType(db.Statement.SQL.String())
		}
		p.metrics.RecordQuery(ctx, kind, db.Statement.Table, elapsed)
	}
}

// RegisterDBMetrics installs DBMetrics on db and starts pool sampling. It
// returns nil, nil when metrics are disabled or no meter is exporting.
func RegisterDBMetrics(ctx context.Context, db *gorm.DB, mp *MeterProvider, cfg DBMetricsConfig, log *zap.Logger) (*DBMetrics, error) {
	if !cfg.Enabled || !mp.IsEnabled() {
		log.Debug("Database metrics disabled")
		return nil, nil
	}
	metrics, err := NewDBMetrics(mp.Meter("db.client"), cfg, log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if err := db.Use(NewDBMetricsPlugin(metrics)); err != nil {
		return nil, err
	}
	metrics.StartPoolStatsCollection(ctx, sqlDB)
	return metrics, nil
}
