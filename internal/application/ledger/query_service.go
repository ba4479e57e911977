package ledgerapp

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
)

// Query limits
const (
	DefaultRecentLimit = 20
	MaxPageSize        = 1000
)

// RowsResult is a page of ledger rows of one snapshot version
type RowsResult struct {
	Snapshot ledger.SnapshotHeader `json:"snapshot"`
	Rows     []ledger.LedgerRow    `json:"rows"`
}

// ExceptionsResult is a page of exceptions of one snapshot version
type ExceptionsResult struct {
	Snapshot   ledger.SnapshotHeader    `json:"snapshot"`
	Exceptions []ledger.ExceptionRecord `json:"exceptions"`
}

// Status reports the current snapshot and the run history head. Current is
// nil until the first run succeeds.
type Status struct {
	Current           *ledger.SnapshotHeader `json:"current,omitempty"`
	LastSuccessfulRun *ledger.RunRecord      `json:"last_successful_run,omitempty"`
	LastRun           *ledger.RunRecord      `json:"last_run,omitempty"`
}

// BatchesResult is a page of raw batch metadata
type BatchesResult struct {
	Batches []ledger.BatchInfo `json:"batches"`
	Total   int64              `json:"total"`
}

// QueryService reads published snapshots. Every read resolves one version
// first and reads only that version, so a concurrent publish is never
// observed half way.
type QueryService struct {
	snapshots ledger.SnapshotStore
	runs      ledger.RunRepository
	raw       ledger.RawStore
}

// NewQueryService creates a new QueryService
func NewQueryService(snapshots ledger.SnapshotStore, runs ledger.RunRepository, raw ledger.RawStore) *QueryService {
	return &QueryService{snapshots: snapshots, runs: runs, raw: raw}
}

// resolve returns the header of version, or of the current snapshot when
// version is 0
func (s *QueryService) resolve(ctx context.Context, version int64) (*ledger.SnapshotHeader, error) {
	if version < 0 {
		return nil, shared.ErrInvalidInput.WithMessage("version must be positive")
	}
	if version == 0 {
		return s.snapshots.Current(ctx)
	}
	return s.snapshots.Header(ctx, version)
}

// Summary returns the header and KPIs of a snapshot version
func (s *QueryService) Summary(ctx context.Context, version int64) (*ledger.SnapshotHeader, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "query", "summary")
	defer span.End()

	header, err := s.resolve(ctx, version)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return header, nil
}

// Rows returns rows of a snapshot version in export order
func (s *QueryService) Rows(ctx context.Context, version int64, q ledger.RowQuery) (*RowsResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "query", "rows")
	defer span.End()

	if err := validateRowQuery(q); err != nil {
		return nil, err
	}
	header, err := s.resolve(ctx, version)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	rows, err := s.snapshots.Rows(ctx, header.Version, q)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to read rows of version %d: %w", header.Version, err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrSnapshotVersion, header.Version, telemetry.SpanAttrRowCount, len(rows))
	return &RowsResult{Snapshot: *header, Rows: rows}, nil
}

// Recent returns the n most recently dated rows of the current snapshot
func (s *QueryService) Recent(ctx context.Context, n int) (*RowsResult, error) {
	if n <= 0 {
		n = DefaultRecentLimit
	}
	return s.Rows(ctx, 0, ledger.RowQuery{Limit: n})
}

// Row returns one row of the current snapshot by sequence number
func (s *QueryService) Row(ctx context.Context, sequenceNo string) (*ledger.LedgerRow, *ledger.SnapshotHeader, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "query", "row")
	defer span.End()

	if sequenceNo == "" {
		return nil, nil, shared.ErrInvalidInput.WithMessage("sequence_no is required")
	}
	header, err := s.resolve(ctx, 0)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, err
	}
	row, err := s.snapshots.Row(ctx, header.Version, sequenceNo)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, err
	}
	return row, header, nil
}

// Exceptions returns exceptions of a snapshot version in export order
func (s *QueryService) Exceptions(ctx context.Context, version int64, q ledger.ExceptionQuery) (*ExceptionsResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "query", "exceptions")
	defer span.End()

	if err := validateExceptionQuery(q); err != nil {
		return nil, err
	}
	header, err := s.resolve(ctx, version)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	exceptions, err := s.snapshots.Exceptions(ctx, header.Version, q)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to read exceptions of version %d: %w", header.Version, err)
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrSnapshotVersion, header.Version, telemetry.SpanAttrExceptionCount, len(exceptions))
	return &ExceptionsResult{Snapshot: *header, Exceptions: exceptions}, nil
}

// Versions lists published snapshot headers, newest first
func (s *QueryService) Versions(ctx context.Context, limit int) ([]ledger.SnapshotHeader, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultRecentLimit
	}
	return s.snapshots.Versions(ctx, limit)
}

// Status returns the current snapshot, the last successful run and the
// last run of any outcome
func (s *QueryService) Status(ctx context.Context) (*Status, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "query", "status")
	defer span.End()

	status := &Status{}
	current, err := s.snapshots.Current(ctx)
	switch {
	case err == nil:
		status.Current = current
	case !errors.Is(err, ledger.ErrNoSnapshot):
		telemetry.RecordError(span, err)
		return nil, err
	}

	last, err := s.runs.LastSuccessful(ctx)
	switch {
	case err == nil:
		status.LastSuccessfulRun = last
	case !errors.Is(err, shared.ErrNotFound):
		telemetry.RecordError(span, err)
		return nil, err
	}

	recent, err := s.runs.List(ctx, 1)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if len(recent) > 0 {
		status.LastRun = &recent[0]
	}
	return status, nil
}

// Runs lists the run history, newest first
func (s *QueryService) Runs(ctx context.Context, limit int) ([]ledger.RunRecord, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = DefaultRecentLimit
	}
	return s.runs.List(ctx, limit)
}

// Batches lists raw batch metadata, newest first
func (s *QueryService) Batches(ctx context.Context, filter ledger.BatchFilter) (*BatchesResult, error) {
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return nil, ledger.ErrUnknownKind.WithMessage(fmt.Sprintf("unknown record kind %q", filter.Kind))
	}
	if filter.Limit <= 0 || filter.Limit > MaxPageSize {
		filter.Limit = DefaultRecentLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	batches, total, err := s.raw.ListBatches(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &BatchesResult{Batches: batches, Total: total}, nil
}

func validateRowQuery(q ledger.RowQuery) error {
	for _, st := range q.Statuses {
		if !st.IsValid() {
			return shared.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown billing status %q", st))
		}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return shared.ErrInvalidInput.WithMessage("limit and offset must not be negative")
	}
	if q.Limit > MaxPageSize {
		return shared.ErrInvalidInput.WithMessage(fmt.Sprintf("limit must not exceed %d", MaxPageSize))
	}
	return nil
}

func validateExceptionQuery(q ledger.ExceptionQuery) error {
	for _, k := range q.Kinds {
		if !k.IsValid() {
			return shared.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown exception kind %q", k))
		}
	}
	if q.MinSeverity != "" && !q.MinSeverity.IsValid() {
		return shared.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown severity %q", q.MinSeverity))
	}
	if q.Limit < 0 || q.Offset < 0 {
		return shared.ErrInvalidInput.WithMessage("limit and offset must not be negative")
	}
	if q.Limit > MaxPageSize {
		return shared.ErrInvalidInput.WithMessage(fmt.Sprintf("limit must not exceed %d", MaxPageSize))
	}
	return nil
}
