package handler

import (
	"context"

	ledgerapp "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// IdempotencyKeyHeader lets clients retry a payment registration safely
const IdempotencyKeyHeader = "Idempotency-Key"

// PaymentRegistrar records payments; *ledgerapp.PaymentService implements it
type PaymentRegistrar interface {
	RegisterPayment(ctx context.Context, req ledgerapp.RegisterPaymentRequest) (*ledgerapp.IngestReport, error)
}

// PaymentHandler registers payments outside the file feeds
type PaymentHandler struct {
	BaseHandler
	payments PaymentRegistrar
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments PaymentRegistrar) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// Register godoc
// @ID           registerPayment
// @Summary      Register a payment
// @Description  Appends a one-row payment batch. It is reflected by the next reconciliation run.
// @Description  The Idempotency-Key header (or idempotency_key field) makes retries append once.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        Idempotency-Key  header  string                      false  "Client retry key"
// @Param        request          body    dto.RegisterPaymentRequest  true   "Payment"
// @Success      201 {object} APIResponse[dto.IngestResponse]
// @Success      200 {object} APIResponse[dto.IngestResponse] "Retry of a registered payment"
// @Failure      400 {object} ErrorResponse
// @Router       /payments [post]
func (h *PaymentHandler) Register(c *gin.Context) {
	var req dto.RegisterPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	paidOn, err := dto.ParseDate(req.PaymentDate)
	if err != nil {
		h.HandleError(c, shared.ErrInvalidInput.WithMessage("payment_date must be YYYY-MM-DD"))
		return
	}
	key := req.IdempotencyKey
	if header := c.GetHeader(IdempotencyKeyHeader); header != "" {
		key = header
	}

	report, err := h.payments.RegisterPayment(c.Request.Context(), ledgerapp.RegisterPaymentRequest{
		OrderID:        req.OrderID,
		InvoiceNumber:  req.InvoiceNumber,
		Amount:         req.Amount,
		PaymentDate:    paidOn,
		Note:           req.Note,
		IdempotencyKey: key,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if report.Duplicate {
		h.Success(c, dto.ToIngestResponse(report))
		return
	}
	h.Created(c, dto.ToIngestResponse(report))
}
