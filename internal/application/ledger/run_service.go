package ledgerapp

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Run triggers
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// RunMetrics receives run outcomes; *telemetry.PipelineMetrics implements it
type RunMetrics interface {
	RecordRun(ctx context.Context, trigger string, status ledger.RunStatus, d time.Duration)
	RecordPublished(ctx context.Context, snap *ledger.Snapshot)
}

// RunDefaults are the thresholds used when a request does not override them
type RunDefaults struct {
	Tolerance   decimal.Decimal
	GracePeriod time.Duration
	DuePolicy   ledger.DuePolicy
	// Location derives "today" when a request carries no as-of date
	Location *time.Location
}

// DefaultRunDefaults returns the built-in thresholds evaluated in UTC
func DefaultRunDefaults() RunDefaults {
	d := ledger.DefaultRunOptions(time.Time{})
	return RunDefaults{
		Tolerance:   d.Tolerance,
		GracePeriod: d.GracePeriod,
		DuePolicy:   d.DuePolicy,
		Location:    time.UTC,
	}
}

// RunRequest triggers a reconciliation. Nil fields use the defaults.
type RunRequest struct {
	Trigger         string
	AsOf            *time.Time
	Tolerance       *decimal.Decimal
	GracePeriodDays *int
}

// RunResult is the outcome of a run
type RunResult struct {
	Run             *ledger.RunRecord      `json:"run"`
	Snapshot        *ledger.SnapshotHeader `json:"snapshot,omitempty"`
	ArchiveLocation string                 `json:"archive_location,omitempty"`
}

// RunService executes reconciliation runs: read every raw batch, build the
// ledger and publish it as a new snapshot version. Runs are serialized by
// the run lock; a failed run leaves the current snapshot in place.
type RunService struct {
	raw       ledger.RawStore
	snapshots ledger.SnapshotStore
	runs      ledger.RunRepository
	lock      ledger.RunLock
	pipeline  *ledger.Pipeline
	defaults  RunDefaults
	archiver  ledger.SnapshotArchiver
	metrics   RunMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// RunServiceConfig holds the dependencies of a RunService
type RunServiceConfig struct {
	Raw       ledger.RawStore
	Snapshots ledger.SnapshotStore
	Runs      ledger.RunRepository
	Lock      ledger.RunLock
	Defaults  RunDefaults
	// Archiver is optional
	Archiver ledger.SnapshotArchiver
	// Metrics is optional
	Metrics RunMetrics
	Logger  *zap.Logger
}

// NewRunService creates a new RunService
func NewRunService(cfg RunServiceConfig) *RunService {
	defaults := cfg.Defaults
	if defaults.DuePolicy == nil {
		defaults.DuePolicy = ledger.EndOfFollowingMonth{}
	}
	if defaults.Location == nil {
		defaults.Location = time.UTC
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &RunService{
		raw:       cfg.Raw,
		snapshots: cfg.Snapshots,
		runs:      cfg.Runs,
		lock:      cfg.Lock,
		pipeline:  ledger.NewPipeline(),
		defaults:  defaults,
		archiver:  cfg.Archiver,
		metrics:   cfg.Metrics,
		logger:    log,
		now:       time.Now,
	}
}

// Options resolves the effective run options of req
func (s *RunService) Options(req RunRequest) (ledger.RunOptions, error) {
	opts := ledger.RunOptions{
		AsOf:        ledger.Truncate(s.now(), s.defaults.Location),
		Tolerance:   s.defaults.Tolerance,
		GracePeriod: s.defaults.GracePeriod,
		DuePolicy:   s.defaults.DuePolicy,
	}
	if req.AsOf != nil {
		if req.AsOf.IsZero() {
			return opts, shared.ErrInvalidInput.WithMessage("as_of must be a calendar date")
		}
		opts.AsOf = ledger.Truncate(*req.AsOf, time.UTC)
	}
	if req.Tolerance != nil {
		if req.Tolerance.IsNegative() {
			return opts, shared.ErrInvalidInput.WithMessage("tolerance must not be negative")
		}
		opts.Tolerance = *req.Tolerance
	}
	if req.GracePeriodDays != nil {
		if *req.GracePeriodDays < 0 {
			return opts, shared.ErrInvalidInput.WithMessage("grace_period_days must not be negative")
		}
		opts.GracePeriod = time.Duration(*req.GracePeriodDays) * 24 * time.Hour
	}
	return opts, nil
}

// Run executes one reconciliation. It returns ErrRunInProgress when another
// run holds the lock. Every run that gets the lock is recorded in the run
// history, including failed ones; the returned result carries the record.
func (s *RunService) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	opts, err := s.Options(req)
	if err != nil {
		return nil, err
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = TriggerManual
	}

	release, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			s.logger.Warn("Failed to release run lock", zap.Error(rerr))
		}
	}()

	rec := &ledger.RunRecord{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    ledger.RunStatusRunning,
		AsOf:      opts.AsOf,
		StartedAt: s.now().UTC(),
	}
	ctx = logger.WithRunID(ctx, rec.ID)
	ctx, span := telemetry.StartServiceSpan(ctx, "run", "execute")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRunID, rec.ID,
		telemetry.SpanAttrTrigger, trigger,
		telemetry.SpanAttrAsOf, opts.AsOf.Format(ledger.DateLayout),
	)
	log := logger.Enrich(ctx, s.logger)

	if err := s.runs.Save(ctx, rec); err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to record run start: %w", err)
	}
	log.Info("Reconciliation started",
		zap.String("trigger", trigger),
		zap.String("as_of", opts.AsOf.Format(ledger.DateLayout)),
		zap.String("tolerance", opts.Tolerance.String()),
		zap.Duration("grace_period", opts.GracePeriod),
		zap.String("due_policy", opts.DuePolicy.Name()),
	)

	snap, location, runErr := s.execute(ctx, rec.ID, opts)

	finished := s.now().UTC()
	rec.FinishedAt = &finished
	if runErr != nil {
		rec.Status = ledger.RunStatusFailed
		rec.Error = runErr.Error()
		if err := s.runs.Save(context.WithoutCancel(ctx), rec); err != nil {
			log.Error("Failed to record failed run", zap.Error(err))
		}
		s.recordRun(ctx, trigger, rec)
		telemetry.RecordError(span, runErr)
		log.Error("Reconciliation failed", zap.Error(runErr), zap.Duration("duration", finished.Sub(rec.StartedAt)))
		return &RunResult{Run: rec}, runErr
	}

	rec.Status = ledger.RunStatusSucceeded
	rec.SnapshotVersion = &snap.Version
	rec.Checksum = snap.Checksum
	rec.Warnings = snap.Warnings
	if err := s.runs.Save(context.WithoutCancel(ctx), rec); err != nil {
		// The snapshot is already current; only the history entry is stale.
		log.Error("Failed to record succeeded run", zap.Int64("version", snap.Version), zap.Error(err))
	}
	s.recordRun(ctx, trigger, rec)

	header := snap.Header()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrSnapshotVersion, snap.Version,
		telemetry.SpanAttrChecksum, snap.Checksum,
		telemetry.SpanAttrRowCount, len(snap.Rows),
		telemetry.SpanAttrExceptionCount, len(snap.Exceptions),
	)
	telemetry.SetOK(span)
	log.Info("Reconciliation published",
		zap.Int64("version", snap.Version),
		zap.String("checksum", snap.Checksum),
		zap.Int("rows", len(snap.Rows)),
		zap.Int("exceptions", len(snap.Exceptions)),
		zap.Int("warnings", snap.Warnings.Total()),
		zap.Duration("duration", finished.Sub(rec.StartedAt)),
	)
	return &RunResult{Run: rec, Snapshot: &header, ArchiveLocation: location}, nil
}

// execute builds and publishes one snapshot. Every failure is a
// RunAbortError naming the stage it happened in.
func (s *RunService) execute(ctx context.Context, runID string, opts ledger.RunOptions) (*ledger.Snapshot, string, error) {
	log := logger.Enrich(ctx, s.logger)

	if err := ctx.Err(); err != nil {
		return nil, "", ledger.Abort("load", err)
	}
	raw, err := s.raw.LoadAll(ctx)
	if err != nil {
		return nil, "", ledger.Abort("load", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, "", ledger.Abort("build", err)
	}
	res, err := s.pipeline.Build(raw, opts)
	if err != nil {
		return nil, "", err
	}
	for _, d := range res.Discarded {
		log.Debug("Raw row discarded", zap.String("reason", d.Error()))
	}
	for _, inv := range res.Invalid {
		log.Debug("Order classified INVALID", zap.String("sequence_no", inv.SequenceNo), zap.String("reason", inv.Reason))
	}
	if n := res.Warnings.Total(); n > 0 {
		log.Warn("Reconciliation produced row warnings",
			zap.Any("discarded_keys", res.Warnings.DiscardedKeys),
			zap.Int("null_invoice_amounts", res.Warnings.NullInvoiceAmounts),
			zap.Int("null_payment_amounts", res.Warnings.NullPaymentAmounts),
			zap.Int("invalid_orders", res.Warnings.InvalidOrders),
			zap.Int("orphan_invoices", res.Warnings.OrphanInvoices),
			zap.Int("orphan_payments", res.Warnings.OrphanPayments),
		)
	}

	checksum, err := res.Content.Checksum()
	if err != nil {
		return nil, "", ledger.Abort("materialize", err)
	}
	snap := &ledger.Snapshot{
		RunID:       runID,
		PublishedAt: s.now().UTC(),
		Checksum:    checksum,
		Warnings:    res.Warnings,
		Content:     res.Content,
	}

	// Past this point the snapshot becomes visible; cancellation is honoured
	// only before it.
	if err := ctx.Err(); err != nil {
		return nil, "", ledger.Abort("publish", err)
	}
	version, err := s.snapshots.Publish(ctx, snap)
	if err != nil {
		return nil, "", ledger.Abort("publish", err)
	}
	snap.Version = version
	if s.metrics != nil {
		s.metrics.RecordPublished(ctx, snap)
	}
	telemetry.AddEvent(telemetry.SpanFromContext(ctx), "snapshot_published", telemetry.SpanAttrSnapshotVersion, version)

	var location string
	if s.archiver != nil {
		location, err = s.archiver.Archive(context.WithoutCancel(ctx), snap)
		if err != nil {
			log.Warn("Failed to archive snapshot", zap.Int64("version", version), zap.Error(err))
			location = ""
		} else {
			log.Info("Snapshot archived", zap.Int64("version", version), zap.String("location", location))
		}
	}
	return snap, location, nil
}

func (s *RunService) recordRun(ctx context.Context, trigger string, rec *ledger.RunRecord) {
	if s.metrics == nil || rec.FinishedAt == nil {
		return
	}
	s.metrics.RecordRun(ctx, trigger, rec.Status, rec.FinishedAt.Sub(rec.StartedAt))
}

// ScheduledRun adapts the service to the daily scheduler
func (s *RunService) ScheduledRun(ctx context.Context, asOf time.Time) error {
	_, err := s.Run(ctx, RunRequest{Trigger: TriggerSchedule, AsOf: &asOf})
	return err
}
