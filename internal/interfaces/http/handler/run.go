package handler

import (
	"context"
	"errors"
	"io"

	ledgerapp "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/domain/shared"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/erp/ledger/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// Runner executes reconciliation runs; *ledgerapp.RunService implements it
type Runner interface {
	Run(ctx context.Context, req ledgerapp.RunRequest) (*ledgerapp.RunResult, error)
}

// RunHandler triggers reconciliation runs
type RunHandler struct {
	BaseHandler
	runner Runner
}

// NewRunHandler creates a new RunHandler
func NewRunHandler(runner Runner) *RunHandler {
	return &RunHandler{runner: runner}
}

// Trigger godoc
// @ID           triggerRun
// @Summary      Trigger a reconciliation run
// @Description  Rebuilds the ledger from every raw batch and publishes it as a new snapshot version.
// @Description  An aborted run leaves the current snapshot in place and is recorded in the run history.
// @Tags         runs
// @Accept       json
// @Produce      json
// @Param        request  body  dto.RunRequest  false  "Run parameters, defaults from configuration"
// @Success      201 {object} APIResponse[dto.RunResultResponse]
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse "Another run holds the lock"
// @Failure      500 {object} RunFailedResponse
// @Router       /runs [post]
func (h *RunHandler) Trigger(c *gin.Context) {
	var req dto.RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.HandleValidationError(c, err)
		return
	}

	runReq := ledgerapp.RunRequest{
		Trigger:         ledgerapp.TriggerManual,
		Tolerance:       req.Tolerance,
		GracePeriodDays: req.GracePeriodDays,
	}
	if req.AsOf != "" {
		asOf, err := dto.ParseDate(req.AsOf)
		if err != nil {
			h.HandleError(c, shared.ErrInvalidInput.WithMessage("as_of must be YYYY-MM-DD"))
			return
		}
		runReq.AsOf = &asOf
	}

	result, err := h.runner.Run(c.Request.Context(), runReq)
	if err != nil {
		if result != nil && result.Run != nil && errors.Is(err, ledger.ErrRunAborted) {
			_ = c.Error(err)
			resp := dto.NewErrorResponseWithRequestID(dto.ErrCodeRunAborted, errorMessage(err), getRequestID(c))
			resp.Data = dto.ToRunResponse(result.Run)
			c.JSON(dto.GetHTTPStatus(dto.ErrCodeRunAborted), resp)
			return
		}
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToRunResultResponse(result))
}
