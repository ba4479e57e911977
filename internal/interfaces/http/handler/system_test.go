package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/ledger/internal/infrastructure/scheduler"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubScheduler struct{ status scheduler.Status }

func (s stubScheduler) Status() scheduler.Status { return s.status }

func TestNewSystemHandler(t *testing.T) {
	h := NewSystemHandler("procurement-ledger", "1.0.0", nil, nil)
	assert.NotNil(t, h)
	assert.False(t, h.startTime.IsZero())
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	next := time.Date(2026, 3, 16, 6, 0, 0, 0, time.UTC)
	h := NewSystemHandler("procurement-ledger", "1.2.3", nil, stubScheduler{scheduler.Status{
		Running:   true,
		Hour:      6,
		Timezone:  "Asia/Tokyo",
		NextRunAt: next,
	}})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/system/info", nil)
	h.GetSystemInfo(c)

	require.Equal(t, http.StatusOK, w.Code)
	var info SystemInfoResponse
	resp := decodeResponse(t, w, &info)
	assert.True(t, resp.Success)
	assert.Equal(t, "procurement-ledger", info.Name)
	assert.Equal(t, "1.2.3", info.Version)
	assert.NotEmpty(t, info.GoVersion)
	require.NotNil(t, info.Scheduler)
	assert.True(t, info.Scheduler.Running)
	assert.Equal(t, "Asia/Tokyo", info.Scheduler.Timezone)
}

func TestSystemHandler_Ping(t *testing.T) {
	h := NewSystemHandler("procurement-ledger", "1.0.0", nil, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/system/ping", nil)
	h.Ping(c)

	require.Equal(t, http.StatusOK, w.Code)
	var pong PingResponse
	decodeResponse(t, w, &pong)
	assert.Equal(t, "pong", pong.Message)
	_, err := time.Parse(time.RFC3339, pong.Timestamp)
	assert.NoError(t, err)
}

func TestSystemHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		want       string
	}{
		{"healthy", stubPinger{}, http.StatusOK, "healthy"},
		{"database down", stubPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler("procurement-ledger", "1.0.0", tt.db, nil)

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
			h.Health(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}
