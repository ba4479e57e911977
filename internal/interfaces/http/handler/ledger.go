package handler

import (
	"context"
	"time"

	ledgerapp "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// LedgerReader is the read side of the ledger; *ledgerapp.QueryService
// implements it
type LedgerReader interface {
	Summary(ctx context.Context, version int64) (*ledger.SnapshotHeader, error)
	Rows(ctx context.Context, version int64, q ledger.RowQuery) (*ledgerapp.RowsResult, error)
	Recent(ctx context.Context, n int) (*ledgerapp.RowsResult, error)
	Row(ctx context.Context, sequenceNo string) (*ledger.LedgerRow, *ledger.SnapshotHeader, error)
	Exceptions(ctx context.Context, version int64, q ledger.ExceptionQuery) (*ledgerapp.ExceptionsResult, error)
	Versions(ctx context.Context, limit int) ([]ledger.SnapshotHeader, error)
	Status(ctx context.Context) (*ledgerapp.Status, error)
	Runs(ctx context.Context, limit int) ([]ledger.RunRecord, error)
	Batches(ctx context.Context, filter ledger.BatchFilter) (*ledgerapp.BatchesResult, error)
}

// NextRunReporter reports the next scheduled run
type NextRunReporter interface {
	NextRunAt() time.Time
}

// LedgerHandler serves the published ledger snapshots
type LedgerHandler struct {
	BaseHandler
	reader    LedgerReader
	scheduler NextRunReporter
}

// NewLedgerHandler creates a new LedgerHandler. scheduler may be nil when
// the daily run is disabled.
func NewLedgerHandler(reader LedgerReader, scheduler NextRunReporter) *LedgerHandler {
	return &LedgerHandler{reader: reader, scheduler: scheduler}
}

// ListRows godoc
// @ID           listLedgerRows
// @Summary      List ledger rows
// @Description  Rows of one snapshot in export order, optionally filtered by billing status
// @Tags         ledger
// @Produce      json
// @Param        status   query  string  false  "Comma separated billing statuses"  example(PAID,OVERDUE)
// @Param        version  query  int     false  "Snapshot version, 0 for current"
// @Param        limit    query  int     false  "Page size"  maximum(1000)
// @Param        offset   query  int     false  "Rows to skip"
// @Success      200 {object} APIResponse[dto.RowsResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /ledger/rows [get]
func (h *LedgerHandler) ListRows(c *gin.Context) {
	var q dto.RowsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	res, err := h.reader.Rows(c.Request.Context(), q.Version, ledger.RowQuery{
		Statuses: q.Statuses(),
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToRowsResponse(res))
}

// RecentRows godoc
// @ID           listRecentLedgerRows
// @Summary      Most recent ledger rows
// @Description  The N most recently dated rows of the current snapshot
// @Tags         ledger
// @Produce      json
// @Param        limit  query  int  false  "Number of rows (default 20)"  maximum(1000)
// @Success      200 {object} APIResponse[dto.RowsResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /ledger/rows/recent [get]
func (h *LedgerHandler) RecentRows(c *gin.Context) {
	var q dto.RecentQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = ledgerapp.DefaultRecentLimit
	}

	res, err := h.reader.Recent(c.Request.Context(), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToRowsResponse(res))
}

// GetRow godoc
// @ID           getLedgerRow
// @Summary      Get one ledger row
// @Tags         ledger
// @Produce      json
// @Param        sequence_no  path  string  true  "Order sequence number"
// @Success      200 {object} APIResponse[dto.RowResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /ledger/rows/{sequence_no} [get]
func (h *LedgerHandler) GetRow(c *gin.Context) {
	row, header, err := h.reader.Row(c.Request.Context(), c.Param("sequence_no"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.RowResponse{
		SnapshotVersion: header.Version,
		AsOf:            header.AsOf.Format(ledger.DateLayout),
		Row:             dto.ToLedgerRowResponse(*row),
	})
}

// ListExceptions godoc
// @ID           listLedgerExceptions
// @Summary      List exceptions
// @Description  Exceptions of one snapshot, filtered by kind, minimum severity or order
// @Tags         ledger
// @Produce      json
// @Param        kind       query  string  false  "Comma separated exception kinds"  example(OVERDUE,AMOUNT_MISMATCH)
// @Param        severity   query  string  false  "Minimum severity"  Enums(LOW, MEDIUM, HIGH, CRITICAL)
// @Param        order_key  query  string  false  "Order sequence number"
// @Param        version    query  int     false  "Snapshot version, 0 for current"
// @Param        limit      query  int     false  "Page size"  maximum(1000)
// @Param        offset     query  int     false  "Records to skip"
// @Success      200 {object} APIResponse[dto.ExceptionsResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /ledger/exceptions [get]
func (h *LedgerHandler) ListExceptions(c *gin.Context) {
	var q dto.ExceptionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	res, err := h.reader.Exceptions(c.Request.Context(), q.Version, q.ToDomain())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToExceptionsResponse(res))
}

// GetSummary godoc
// @ID           getLedgerSummary
// @Summary      Snapshot summary
// @Description  Header and aggregate figures of one snapshot
// @Tags         ledger
// @Produce      json
// @Param        version  query  int  false  "Snapshot version, 0 for current"
// @Success      200 {object} APIResponse[dto.SnapshotResponse]
// @Failure      404 {object} ErrorResponse
// @Router       /ledger/summary [get]
func (h *LedgerHandler) GetSummary(c *gin.Context) {
	var q struct {
		Version int64 `form:"version" binding:"omitempty,min=0"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	header, err := h.reader.Summary(c.Request.Context(), q.Version)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSnapshotResponse(header))
}

// GetStatus godoc
// @ID           getLedgerStatus
// @Summary      Pipeline status
// @Description  Current snapshot, last runs and the next scheduled run. Answers 200 before the first run.
// @Tags         ledger
// @Produce      json
// @Success      200 {object} APIResponse[dto.StatusResponse]
// @Router       /ledger/status [get]
func (h *LedgerHandler) GetStatus(c *gin.Context) {
	st, err := h.reader.Status(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := dto.ToStatusResponse(st)
	if h.scheduler != nil {
		next := h.scheduler.NextRunAt()
		resp.NextScheduledRun = &next
	}
	h.Success(c, resp)
}

// ListSnapshots godoc
// @ID           listLedgerSnapshots
// @Summary      List snapshot versions
// @Tags         ledger
// @Produce      json
// @Param        limit  query  int  false  "Number of versions (default 20)"  maximum(1000)
// @Success      200 {object} APIResponse[[]dto.SnapshotResponse]
// @Router       /ledger/snapshots [get]
func (h *LedgerHandler) ListSnapshots(c *gin.Context) {
	var q dto.VersionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	headers, err := h.reader.Versions(c.Request.Context(), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSnapshotResponses(headers))
}

// ListRuns godoc
// @ID           listRuns
// @Summary      Run history
// @Description  Reconciliation runs, newest first, including failed ones
// @Tags         runs
// @Produce      json
// @Param        limit  query  int  false  "Number of runs (default 20)"  maximum(1000)
// @Success      200 {object} APIResponse[[]dto.RunResponse]
// @Router       /runs [get]
func (h *LedgerHandler) ListRuns(c *gin.Context) {
	var q dto.VersionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	runs, err := h.reader.Runs(c.Request.Context(), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToRunResponses(runs))
}

// ListBatches godoc
// @ID           listBatches
// @Summary      Raw batches
// @Description  Metadata of ingested raw batches, newest first
// @Tags         ingest
// @Produce      json
// @Param        kind    query  string  false  "Record kind"  Enums(order, invoice, payment, corporate)
// @Param        limit   query  int     false  "Page size (default 20)"  maximum(1000)
// @Param        offset  query  int     false  "Batches to skip"
// @Param        sort_by     query  string  false  "Sort field (default seq)"  Enums(seq, ingested_at, row_count, valid_rows, kind)
// @Param        sort_order  query  string  false  "Sort direction (default desc)"  Enums(asc, desc)
// @Success      200 {object} APIResponse[[]dto.BatchResponse]
// @Failure      400 {object} ErrorResponse
// @Router       /batches [get]
func (h *LedgerHandler) ListBatches(c *gin.Context) {
	var q dto.BatchesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	filter := ledger.BatchFilter{Limit: q.Limit, Offset: q.Offset, SortBy: q.SortBy, SortOrder: q.SortOrder}
	if q.Kind != "" {
		kind, err := ledger.ParseRecordKind(q.Kind)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		filter.Kind = kind
	}

	res, err := h.reader.Batches(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	pageSize := q.Limit
	if pageSize == 0 {
		pageSize = ledgerapp.DefaultRecentLimit
	}
	h.SuccessWithMeta(c, dto.ToBatchResponses(res.Batches), res.Total, dto.PageRequest{Limit: pageSize, Offset: q.Offset}.Page(), pageSize)
}
