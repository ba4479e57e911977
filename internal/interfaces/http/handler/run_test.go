package handler

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ledgerapp "github.com/erp/ledger/internal/application/ledger"
	"github.com/erp/ledger/internal/domain/ledger"
	"github.com/erp/ledger/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func setupRunRouter(runner Runner) *gin.Engine {
	h := NewRunHandler(runner)
	router := gin.New()
	router.POST("/runs", h.Trigger)
	return router
}

func postRun(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func succeededRun(version int64) *ledgerapp.RunResult {
	finished := time.Date(2026, 3, 15, 9, 0, 3, 0, time.UTC)
	return &ledgerapp.RunResult{
		Run: &ledger.RunRecord{
			ID:              "run-9",
			Trigger:         ledgerapp.TriggerManual,
			Status:          ledger.RunStatusSucceeded,
			AsOf:            date(2026, 3, 15),
			StartedAt:       finished.Add(-3 * time.Second),
			FinishedAt:      &finished,
			SnapshotVersion: &version,
			Checksum:        "abc123",
		},
		Snapshot:        testHeader(version),
		ArchiveLocation: "s3://ledger-archive/snapshots/v9.json",
	}
}

func TestRunHandler_Trigger_Defaults(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, ledgerapp.RunRequest{Trigger: ledgerapp.TriggerManual}).Return(succeededRun(9), nil)
	router := setupRunRouter(runner)

	for _, body := range []string{"", "{}"} {
		w := postRun(router, body)
		require.Equal(t, http.StatusCreated, w.Code, "body %q", body)

		var data dto.RunResultResponse
		decodeResponse(t, w, &data)
		require.NotNil(t, data.Run)
		assert.Equal(t, "SUCCEEDED", data.Run.Status)
		assert.Equal(t, int64(9), *data.Run.SnapshotVersion)
		require.NotNil(t, data.Snapshot)
		assert.Equal(t, int64(9), data.Snapshot.Version)
		assert.Equal(t, "s3://ledger-archive/snapshots/v9.json", data.ArchiveLocation)
	}
	runner.AssertNumberOfCalls(t, "Run", 2)
}

func TestRunHandler_Trigger_Overrides(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.MatchedBy(func(req ledgerapp.RunRequest) bool {
		return req.AsOf != nil && req.AsOf.Equal(date(2026, 2, 1)) &&
			req.Tolerance != nil && req.Tolerance.Equal(decimal.RequireFromString("0.5")) &&
			req.GracePeriodDays != nil && *req.GracePeriodDays == 7
	})).Return(succeededRun(2), nil)

	w := postRun(setupRunRouter(runner), `{"as_of": "2026-02-01", "tolerance": "0.5", "grace_period_days": 7}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	runner.AssertExpectations(t)
}

func TestRunHandler_Trigger_InvalidBody(t *testing.T) {
	runner := new(MockRunner)
	router := setupRunRouter(runner)

	for _, body := range []string{`{"as_of": "15/03/2026"}`, `{"grace_period_days": -1}`, `{"tolerance": "lots"}`, `not json`} {
		w := postRun(router, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
}

func TestRunHandler_Trigger_InProgress(t *testing.T) {
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.Anything).Return(nil, ledger.ErrRunInProgress)

	w := postRun(setupRunRouter(runner), "")
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeResponse(t, w, nil)
	assert.Equal(t, dto.ErrCodeRunInProgress, resp.Error.Code)
}

func TestRunHandler_Trigger_Aborted(t *testing.T) {
	finished := time.Date(2026, 3, 15, 9, 0, 1, 0, time.UTC)
	abort := ledger.Abort("reconcile", errors.New("raw store holds no orders"))
	runner := new(MockRunner)
	runner.On("Run", mock.Anything, mock.Anything).Return(&ledgerapp.RunResult{
		Run: &ledger.RunRecord{
			ID:         "run-10",
			Trigger:    ledgerapp.TriggerManual,
			Status:     ledger.RunStatusFailed,
			AsOf:       date(2026, 3, 15),
			StartedAt:  finished.Add(-time.Second),
			FinishedAt: &finished,
			Error:      abort.Error(),
		},
	}, abort)

	w := postRun(setupRunRouter(runner), "")
	require.Equal(t, http.StatusInternalServerError, w.Code)

	var data dto.RunResponse
	resp := decodeResponse(t, w, &data)
	assert.Equal(t, dto.ErrCodeRunAborted, resp.Error.Code)
	assert.Equal(t, "reconciliation aborted at reconcile: raw store holds no orders", resp.Error.Message)
	assert.Equal(t, "run-10", data.ID)
	assert.Equal(t, "FAILED", data.Status)
	assert.Nil(t, data.SnapshotVersion)
}
