package ledgerapp

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	csvimport "github.com/erp/ledger/internal/infrastructure/import"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// IngestMetrics receives ingest counters; *telemetry.PipelineMetrics implements it
type IngestMetrics interface {
	RecordIngest(ctx context.Context, info *ledger.BatchInfo)
	RecordDuplicateIngest(ctx context.Context, kind ledger.RecordKind)
}

// IngestRequest is one tabular source of a single record kind
type IngestRequest struct {
	Kind     ledger.RecordKind
	Source   string // file name or origin label
	Body     io.Reader
	Format   csvimport.Format
	Encoding csvimport.Encoding
	Sheet    string
	// SnapshotAt is the snapshot timestamp every row is tagged with. Zero means
	// now, and the batch is then identified by its content alone.
	SnapshotAt time.Time
}

// IngestReport describes the outcome of an ingest
type IngestReport struct {
	Batch          *ledger.BatchInfo    `json:"batch,omitempty"`
	Duplicate      bool                 `json:"duplicate"`
	TotalRows      int                  `json:"total_rows"`
	ValidRows      int                  `json:"valid_rows"`
	CoercedFields  int                  `json:"coerced_fields"`
	ErrorsByColumn map[string]int       `json:"errors_by_column,omitempty"`
	Errors         []csvimport.RowError `json:"errors,omitempty"`
	IsTruncated    bool                 `json:"is_truncated,omitempty"`
}

// IngestService appends raw batches to the raw store. Identical resubmissions
// are detected by a content fingerprint and never appended twice.
type IngestService struct {
	raw         ledger.RawStore
	loader      *csvimport.Loader
	idempotency shared.IdempotencyStore
	ttl         time.Duration
	metrics     IngestMetrics
	logger      *zap.Logger
	now         func() time.Time
}

// IngestOption configures an IngestService
type IngestOption func(*IngestService)

// WithIdempotency sets the store that remembers ingested fingerprints
func WithIdempotency(store shared.IdempotencyStore, ttl time.Duration) IngestOption {
	return func(s *IngestService) {
		s.idempotency = store
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithIngestMetrics sets the ingest metrics sink
func WithIngestMetrics(m IngestMetrics) IngestOption {
	return func(s *IngestService) {
		s.metrics = m
	}
}

// WithIngestLogger sets the logger
func WithIngestLogger(l *zap.Logger) IngestOption {
	return func(s *IngestService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewIngestService creates a new IngestService
func NewIngestService(raw ledger.RawStore, loader *csvimport.Loader, opts ...IngestOption) *IngestService {
	s := &IngestService{
		raw:    raw,
		loader: loader,
		ttl:    shared.DefaultIdempotencyConfig().TTL,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest reads, coerces and appends one source. A batch without a single
// valid row is not appended; the report is returned with ErrNoValidRows.
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*IngestReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ingest", "load")
	defer span.End()

	if !req.Kind.IsValid() {
		return nil, ledger.ErrUnknownKind.WithMessage(fmt.Sprintf("unknown record kind %q", req.Kind))
	}
	if req.Body == nil {
		return nil, shared.ErrInvalidInput.WithMessage("source body is required")
	}
	content, err := io.ReadAll(req.Body)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	// The fingerprint covers the snapshot timestamp only when one is given, so
	// re-uploading a file without one is still recognized.
	fingerprint := Fingerprint(req.Kind, req.SnapshotAt, content)
	snapshotAt := req.SnapshotAt
	if snapshotAt.IsZero() {
		snapshotAt = s.now()
	}
	snapshotAt = snapshotAt.UTC()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRecordKind, string(req.Kind),
		telemetry.SpanAttrFingerprint, fingerprint,
	)

	result, err := s.loader.Load(bytes.NewReader(content), req.Kind, csvimport.ReadOptions{
		Format:   req.Format,
		Encoding: req.Encoding,
		Sheet:    req.Sheet,
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	for _, m := range result.Malformed() {
		s.logger.Debug("Field coerced to null",
			zap.String("kind", string(req.Kind)),
			zap.String("source", req.Source),
			zap.Error(&m),
		)
	}

	report := &IngestReport{
		TotalRows:      result.Batch.Info.RowCount,
		ValidRows:      result.Batch.Info.ValidRows,
		CoercedFields:  result.Batch.Info.Coerced,
		ErrorsByColumn: result.Errors.ByColumn(),
		Errors:         result.Errors.Errors(),
		IsTruncated:    result.Errors.IsTruncated(),
	}
	if report.ValidRows == 0 {
		return report, ledger.ErrNoValidRows.WithMessage(
			fmt.Sprintf("%s batch from %s has no valid rows (%d rows read)", req.Kind, req.Source, report.TotalRows))
	}

	batch := result.Batch
	batch.Info.IngestedAt = snapshotAt
	batch.Info.Source = req.Source
	batch.Info.Fingerprint = fingerprint

	info, duplicate, err := s.appendOnce(ctx, batch)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	report.Batch = info
	report.Duplicate = duplicate
	telemetry.SetAttributes(span, telemetry.SpanAttrBatchID, info.ID, "duplicate", duplicate)
	telemetry.SetOK(span)
	return report, nil
}

// appendOnce appends batch unless a batch with the same fingerprint exists.
// It reports the existing batch and duplicate=true in that case. The raw
// store is the authority; the idempotency store only serializes concurrent
// submissions of the same content.
func (s *IngestService) appendOnce(ctx context.Context, batch *ledger.RawBatch) (*ledger.BatchInfo, bool, error) {
	fingerprint := batch.Info.Fingerprint
	key := batch.Info.Kind.String() + ":" + fingerprint

	if existing, err := s.findBatch(ctx, fingerprint); err != nil || existing != nil {
		return existing, existing != nil, err
	}

	if s.idempotency != nil {
		fresh, err := s.idempotency.MarkProcessed(ctx, key, s.ttl)
		if err != nil {
			return nil, false, fmt.Errorf("failed to check batch fingerprint: %w", err)
		}
		if !fresh {
			// Either a concurrent ingest won the race or the key outlived a
			// failed append. Only a stored batch makes this a duplicate.
			if existing, err := s.findBatch(ctx, fingerprint); err != nil || existing != nil {
				return existing, existing != nil, err
			}
		}
	}

	info, err := s.raw.Append(ctx, batch)
	if errors.Is(err, ledger.ErrDuplicateBatch) {
		if existing, ferr := s.findBatch(ctx, fingerprint); ferr == nil && existing != nil {
			return existing, true, nil
		}
	}
	if err != nil {
		if s.idempotency != nil {
			if ferr := s.idempotency.Forget(context.WithoutCancel(ctx), key); ferr != nil {
				s.logger.Warn("Failed to release batch fingerprint after append error",
					zap.String("fingerprint", fingerprint), zap.Error(ferr))
			}
		}
		return nil, false, fmt.Errorf("failed to append %s batch: %w", batch.Info.Kind, err)
	}

	if s.metrics != nil {
		s.metrics.RecordIngest(ctx, info)
	}
	logger.Enrich(logger.WithBatchID(ctx, info.ID), s.logger).Info("Raw batch appended",
		zap.String("kind", string(info.Kind)),
		zap.Int64("seq", info.Seq),
		zap.String("source", info.Source),
		zap.Int("rows", info.RowCount),
		zap.Int("valid_rows", info.ValidRows),
		zap.Int("coerced_fields", info.Coerced),
		zap.Time("ingested_at", info.IngestedAt),
	)
	return info, false, nil
}

// findBatch returns the stored batch with fingerprint, or nil when there is none
func (s *IngestService) findBatch(ctx context.Context, fingerprint string) (*ledger.BatchInfo, error) {
	existing, err := s.raw.FindByFingerprint(ctx, fingerprint)
	switch {
	case err == nil:
		s.recordDuplicate(ctx, existing)
		return existing, nil
	case errors.Is(err, shared.ErrNotFound):
		return nil, nil
	}
	return nil, fmt.Errorf("failed to look up batch fingerprint: %w", err)
}

func (s *IngestService) recordDuplicate(ctx context.Context, existing *ledger.BatchInfo) {
	if s.metrics != nil {
		s.metrics.RecordDuplicateIngest(ctx, existing.Kind)
	}
	s.logger.Info("Duplicate batch ignored",
		zap.String("batch_id", existing.ID),
		zap.String("kind", string(existing.Kind)),
		zap.String("fingerprint", existing.Fingerprint),
	)
}

// Fingerprint identifies a batch by kind, raw content and, when given, the
// snapshot timestamp. A zero snapshotAt leaves the timestamp out.
func Fingerprint(kind ledger.RecordKind, snapshotAt time.Time, content []byte) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	if !snapshotAt.IsZero() {
		h.Write([]byte(snapshotAt.UTC().Format(time.RFC3339Nano)))
	}
	h.Write([]byte{0})
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
