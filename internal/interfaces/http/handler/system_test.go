package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/refundtracker/internal/infrastructure/persistence"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type pooledPinger struct{ stubPinger }

func (pooledPinger) Stats() persistence.PoolStats {
	return persistence.PoolStats{MaxOpen: 25, Open: 3, InUse: 1, Idle: 2}
}

func TestNewSystemHandler(t *testing.T) {
	h := NewSystemHandler("refund-tracker", "1.0.0", nil)
	assert.NotNil(t, h)
	assert.False(t, h.startTime.IsZero())
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler("refund-tracker", "1.2.3", nil)
	c, w := newTestContext()

	h.GetSystemInfo(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	assert.Equal(t, "refund-tracker", data["name"])
	assert.Equal(t, "1.2.3", data["version"])
	assert.NotEmpty(t, data["goVersion"])
	assert.NotEmpty(t, data["uptime"])
}

func TestSystemHandler_Health(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantDB     string
	}{
		{"no database", nil, http.StatusOK, "skipped"},
		{"database up", stubPinger{}, http.StatusOK, "ok"},
		{"database down", stubPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler("refund-tracker", "1.0.0", tt.db)
			c, w := newTestContext()

			h.Health(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			data := decodeResponse(t, w).Data.(map[string]any)
			assert.Equal(t, tt.wantDB, data["database"])
		})
	}
}

func TestSystemHandler_HealthReportsPool(t *testing.T) {
	h := NewSystemHandler("refund-tracker", "1.0.0", pooledPinger{})
	c, w := newTestContext()

	h.Health(c)

	require.Equal(t, http.StatusOK, w.Code)
	pool := decodeResponse(t, w).Data.(map[string]any)["pool"].(map[string]any)
	assert.EqualValues(t, 25, pool["maxOpen"])
	assert.EqualValues(t, 1, pool["inUse"])
}

func TestSystemHandler_RegisterRoutes(t *testing.T) {
	engine := gin.New()
	NewSystemHandler("refund-tracker", "1.0.0", nil).RegisterRoutes(engine.Group("/api/v1"))

	for _, path := range []string{"/api/v1/health", "/api/v1/system/info", "/api/v1/system/ping"} {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/system/ping", nil))
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "pong", data["message"])
}
