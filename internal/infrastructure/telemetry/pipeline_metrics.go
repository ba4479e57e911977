package telemetry

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// PipelineMetrics records run, ingest and snapshot metrics of the ledger.
type PipelineMetrics struct {
	logger *zap.Logger

	runTotal         *Counter
	runDuration      *Histogram
	runWarnings      *Counter
	ingestBatches    *Counter
	ingestRows       *Counter
	ingestCoerced    *Counter
	ingestDuplicates *Counter
	rowsByStatus     *Gauge
	exceptionsByKind *Gauge
	overdueAmount    *FloatGauge
	snapshotVersion  *Gauge
	snapshotAge      *FloatGauge

	source      SnapshotSource
	now         func() time.Time
	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// SnapshotSource reports the current snapshot for periodic age collection.
type SnapshotSource interface {
	Current(ctx context.Context) (*ledger.SnapshotHeader, error)
}

// PipelineMetricsConfig holds configuration for pipeline metrics.
type PipelineMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
	Source SnapshotSource
}

// NewPipelineMetrics creates the ledger instruments on cfg.Meter.
func NewPipelineMetrics(cfg PipelineMetricsConfig) (*PipelineMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	pm := &PipelineMetrics{
		logger:   logger,
		source:   cfg.Source,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}

	m := cfg.Meter
	var err error
	if pm.runTotal, err = NewCounter(m, "ledger_run_total",
		"Reconciliation runs by trigger and outcome", "{runs}"); err != nil {
		return nil, err
	}
	if pm.runDuration, err = NewHistogram(m, HistogramOpts{
		Name:        "ledger_run_duration_seconds",
		Description: "Wall time of reconciliation runs",
		Unit:        "s",
		Boundaries:  RunDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if pm.runWarnings, err = NewCounter(m, "ledger_run_discarded_keys_total",
		"Raw rows discarded for a missing key during deduplication", "{rows}"); err != nil {
		return nil, err
	}
	if pm.ingestBatches, err = NewCounter(m, "ledger_ingest_batches_total",
		"Raw batches appended by record kind", "{batches}"); err != nil {
		return nil, err
	}
	if pm.ingestRows, err = NewCounter(m, "ledger_ingest_rows_total",
		"Raw rows appended by record kind", "{rows}"); err != nil {
		return nil, err
	}
	if pm.ingestCoerced, err = NewCounter(m, "ledger_ingest_coerced_fields_total",
		"Fields nulled by coercion during ingest", "{fields}"); err != nil {
		return nil, err
	}
	if pm.ingestDuplicates, err = NewCounter(m, "ledger_ingest_duplicate_batches_total",
		"Batches skipped because identical content was already ingested", "{batches}"); err != nil {
		return nil, err
	}
	if pm.rowsByStatus, err = NewGauge(m, "ledger_rows",
		"Rows of the published ledger by billing status", "{rows}"); err != nil {
		return nil, err
	}
	if pm.exceptionsByKind, err = NewGauge(m, "ledger_exceptions",
		"Exceptions of the published ledger by kind", "{exceptions}"); err != nil {
		return nil, err
	}
	if pm.overdueAmount, err = NewFloatGauge(m, "ledger_overdue_amount",
		"Outstanding amount of overdue rows in the published ledger", "{currency}"); err != nil {
		return nil, err
	}
	if pm.snapshotVersion, err = NewGauge(m, "ledger_snapshot_version",
		"Version of the current snapshot", "{version}"); err != nil {
		return nil, err
	}
	if pm.snapshotAge, err = NewFloatGauge(m, "ledger_snapshot_age_seconds",
		"Seconds since the current snapshot was published", "s"); err != nil {
		return nil, err
	}
	return pm, nil
}

// RecordRun records the outcome and duration of one run.
func (pm *PipelineMetrics) RecordRun(ctx context.Context, trigger string, status ledger.RunStatus, d time.Duration) {
	pm.runTotal.Inc(ctx, AttrTrigger.String(trigger), AttrRunStatus.String(string(status)))
	pm.runDuration.RecordDuration(ctx, d, AttrTrigger.String(trigger))
}

// RecordPublished records the gauges of a newly published snapshot.
func (pm *PipelineMetrics) RecordPublished(ctx context.Context, snap *ledger.Snapshot) {
	for status, n := range snap.Summary.ByStatus {
		pm.rowsByStatus.Record(ctx, int64(n), AttrBillingStatus.String(string(status)))
	}
	for _, kind := range ledger.AllExceptionKinds {
		pm.exceptionsByKind.Record(ctx, int64(snap.Summary.ByExceptionKind[kind]), AttrExceptionKind.String(string(kind)))
	}
	pm.overdueAmount.Record(ctx, snap.Summary.OverdueAmount.InexactFloat64())
	pm.snapshotVersion.Record(ctx, snap.Version)
	for kind, n := range snap.Warnings.DiscardedKeys {
		if n > 0 {
			pm.runWarnings.Add(ctx, int64(n), AttrRecordKind.String(string(kind)))
		}
	}
}

// RecordIngest records one appended batch.
func (pm *PipelineMetrics) RecordIngest(ctx context.Context, info *ledger.BatchInfo) {
	kind := AttrRecordKind.String(string(info.Kind))
	pm.ingestBatches.Inc(ctx, kind)
	pm.ingestRows.Add(ctx, int64(info.RowCount), kind)
	if info.Coerced > 0 {
		pm.ingestCoerced.Add(ctx, int64(info.Coerced), kind)
	}
}

// RecordDuplicateIngest records a batch skipped as already ingested.
func (pm *PipelineMetrics) RecordDuplicateIngest(ctx context.Context, kind ledger.RecordKind) {
	pm.ingestDuplicates.Inc(ctx, AttrRecordKind.String(string(kind)))
}

// StartPeriodicCollection records the snapshot age every interval
// (default: one minute) until Stop or ctx cancellation. Non-blocking.
func (pm *PipelineMetrics) StartPeriodicCollection(ctx context.Context, interval time.Duration) {
	if pm.source == nil {
		pm.logger.Debug("No snapshot source configured, skipping snapshot age collection")
		return
	}
	pm.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go pm.runPeriodicCollection(ctx, interval)
	})
}

func (pm *PipelineMetrics) runPeriodicCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.collectSnapshotAge(ctx)
	for {
		select {
		case <-pm.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.collectSnapshotAge(ctx)
		}
	}
}

func (pm *PipelineMetrics) collectSnapshotAge(ctx context.Context) {
	header, err := pm.source.Current(ctx)
	if err != nil {
		if !errors.Is(err, ledger.ErrNoSnapshot) {
			pm.logger.Warn("Failed to read current snapshot for metrics", zap.Error(err))
		}
		return
	}
	pm.snapshotVersion.Record(ctx, header.Version)
	pm.snapshotAge.Record(ctx, pm.now().Sub(header.PublishedAt).Seconds())
}

// Stop stops the periodic collection.
func (pm *PipelineMetrics) Stop() {
	pm.stopOnce.Do(func() {
		close(pm.stopChan)
	})
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewPipelineMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}
