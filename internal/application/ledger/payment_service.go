package ledgerapp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
)

// PaymentSource labels batches created by payment registration
const PaymentSource = "payment-registration"

// RegisterPaymentRequest records one payment against an order
type RegisterPaymentRequest struct {
	OrderID       string
	InvoiceNumber string
	Amount        decimal.Decimal
	PaymentDate   time.Time
	Note          string
	// IdempotencyKey makes retries of the same registration append once.
	// Without it every call appends a new batch.
	IdempotencyKey string
}

// PaymentService registers payments by appending one-row payment batches to
// the raw store. They take effect on the next reconciliation run.
type PaymentService struct {
	ingest *IngestService
}

// NewPaymentService creates a PaymentService sharing the ingest append path
func NewPaymentService(ingest *IngestService) *PaymentService {
	return &PaymentService{ingest: ingest}
}

// RegisterPayment appends the payment and reports the batch it landed in
func (s *PaymentService) RegisterPayment(ctx context.Context, req RegisterPaymentRequest) (*IngestReport, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "register")
	defer span.End()

	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		return nil, shared.ErrInvalidInput.WithMessage("order_id is required")
	}
	if !req.Amount.IsPositive() {
		return nil, shared.ErrInvalidInput.WithMessage("amount must be positive")
	}
	if req.PaymentDate.IsZero() {
		return nil, shared.ErrInvalidInput.WithMessage("payment_date is required")
	}

	paymentDate := ledger.Truncate(req.PaymentDate, time.UTC)
	record := ledger.PaymentRecord{
		OrderID:       orderID,
		InvoiceNumber: strings.TrimSpace(req.InvoiceNumber),
		Amount:        decimal.NewNullDecimal(req.Amount),
		PaymentDate:   &paymentDate,
		Note:          strings.TrimSpace(req.Note),
	}

	now := s.ingest.now().UTC()
	content, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payment: %w", err)
	}
	stamp := now
	if req.IdempotencyKey != "" {
		// Retries carry a fresh clock; only the key and content identify them.
		stamp = time.Time{}
		content = append([]byte(req.IdempotencyKey+"\x00"), content...)
	}

	batch := &ledger.RawBatch{
		Info: ledger.BatchInfo{
			Kind:        ledger.RecordKindPayment,
			IngestedAt:  now,
			Source:      PaymentSource,
			Fingerprint: Fingerprint(ledger.RecordKindPayment, stamp, content),
			ValidRows:   1,
		},
		Payments: []ledger.PaymentRecord{record},
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrRecordKind, string(ledger.RecordKindPayment),
		telemetry.SpanAttrFingerprint, batch.Info.Fingerprint,
	)

	info, duplicate, err := s.ingest.appendOnce(ctx, batch)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrBatchID, info.ID, "duplicate", duplicate)
	telemetry.SetOK(span)
	return &IngestReport{
		Batch:     info,
		Duplicate: duplicate,
		TotalRows: 1,
		ValidRows: 1,
	}, nil
}
