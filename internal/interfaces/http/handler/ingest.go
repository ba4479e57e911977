package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	ledgerapp "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	csvimport "github.com/erp/ledger/internal/infrastructure/import"
	"github.com/erp/ledger/internal/infrastructure/logger"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DefaultMaxUploadBytes caps a source upload when no limit is configured
const DefaultMaxUploadBytes int64 = 50 << 20

// Ingester appends raw batches; *ledgerapp.IngestService implements it
type Ingester interface {
	Ingest(ctx context.Context, req ledgerapp.IngestRequest) (*ledgerapp.IngestReport, error)
}

// IngestConfig holds upload settings
type IngestConfig struct {
	MaxUploadBytes  int64
	DefaultEncoding string
}

// IngestHandler accepts source file uploads
type IngestHandler struct {
	BaseHandler
	ingester Ingester
	config   IngestConfig
}

// NewIngestHandler creates a new IngestHandler
func NewIngestHandler(ingester Ingester, cfg IngestConfig) *IngestHandler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &IngestHandler{ingester: ingester, config: cfg}
}

// Upload godoc
// @ID           ingestSource
// @Summary      Ingest a source file
// @Description  Appends one CSV, TSV or XLSX file of a record kind as a new raw batch.
// @Description  Resubmitting identical content for the same snapshot timestamp is reported as duplicate and not appended.
// @Tags         ingest
// @Accept       multipart/form-data
// @Produce      json
// @Param        kind         path      string  true   "Record kind"  Enums(order, invoice, payment, corporate)
// @Param        file         formData  file    true   "Source file"
// @Param        format       formData  string  false  "Override the format detected from the file name"  Enums(csv, tsv, xlsx)
// @Param        encoding     formData  string  false  "Text encoding"  Enums(utf-8, shift_jis)
// @Param        sheet        formData  string  false  "Workbook sheet, first sheet when empty"
// @Param        snapshot_at  formData  string  false  "Snapshot timestamp (RFC 3339 or YYYY-MM-DD), now when empty"
// @Success      201 {object} APIResponse[dto.IngestResponse]
// @Success      200 {object} APIResponse[dto.IngestResponse] "Duplicate submission"
// @Failure      400 {object} ErrorResponse
// @Failure      413 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Router       /ingest/{kind} [post]
func (h *IngestHandler) Upload(c *gin.Context) {
	kind, err := ledger.ParseRecordKind(c.Param("kind"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if middleware.IsBodyTooLarge(err) {
			h.PayloadTooLarge(c, fmt.Sprintf("upload exceeds %d bytes", h.config.MaxUploadBytes))
			return
		}
		h.BadRequest(c, "file is required as multipart field 'file'")
		return
	}
	defer file.Close()

	if header.Size > h.config.MaxUploadBytes {
		h.PayloadTooLarge(c, fmt.Sprintf("upload exceeds %d bytes", h.config.MaxUploadBytes))
		return
	}
	if header.Size == 0 {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, csvimport.ErrEmptyFile.Error())
		return
	}

	var form dto.IngestForm
	if err := c.ShouldBind(&form); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	req, err := h.buildRequest(kind, header.Filename, form)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	req.Body = file

	report, err := h.ingester.Ingest(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, ledger.ErrNoValidRows) && report != nil {
			resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeNoValidRows, errorMessage(err), getRequestID(c))
			resp.Data = dto.ToIngestResponse(report)
			_ = c.Error(err)
			c.JSON(http.StatusUnprocessableEntity, resp)
			return
		}
		h.HandleError(c, err)
		return
	}

	log := logger.FromGin(c)
	if report.Duplicate {
		log.Info("Duplicate source submission",
			zap.String("kind", kind.String()),
			zap.String("source", req.Source),
			zap.String("batch_id", report.Batch.ID),
		)
		h.Success(c, dto.ToIngestResponse(report))
		return
	}
	log.Info("Source ingested",
		zap.String("kind", kind.String()),
		zap.String("source", req.Source),
		zap.String("batch_id", report.Batch.ID),
		zap.Int("rows", report.TotalRows),
		zap.Int("valid_rows", report.ValidRows),
		zap.Int("coerced_fields", report.CoercedFields),
	)
	h.Created(c, dto.ToIngestResponse(report))
}

func (h *IngestHandler) buildRequest(kind ledger.RecordKind, filename string, form dto.IngestForm) (ledgerapp.IngestRequest, error) {
	req := ledgerapp.IngestRequest{
		Kind:   kind,
		Source: filename,
		Format: csvimport.DetectFormat(filename),
		Sheet:  form.Sheet,
	}
	if form.Format != "" {
		format, err := csvimport.ParseFormat(form.Format)
		if err != nil {
			return req, err
		}
		req.Format = format
	}

	encoding := form.Encoding
	if encoding == "" {
		encoding = h.config.DefaultEncoding
	}
	enc, err := csvimport.ParseEncoding(encoding)
	if err != nil {
		return req, err
	}
	req.Encoding = enc

	if form.SnapshotAt != "" {
		at, err := dto.ParseTimestamp(form.SnapshotAt)
		if err != nil {
			return req, shared.ErrInvalidInput.WithMessage("snapshot_at must be RFC 3339 or YYYY-MM-DD")
		}
		req.SnapshotAt = at
	}
	return req, nil
}
