package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudgov/costguard/repositories/memory"
	"github.com/cloudgov/costguard/services/audit"
)

func TestHandleHealth(t *testing.T) {
	h := NewHealthHandler(nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestHandleReadinessMemoryBackend(t *testing.T) {
	auditSvc := audit.NewAuditService(memory.NewAuditStore(), zap.NewNop(), audit.Config{BufferSize: 10, WorkerCount: 1})
	require.NoError(t, auditSvc.Start())
	t.Cleanup(func() { _ = auditSvc.Stop(time.Second) })

	h := NewHealthHandler(nil, auditSvc, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"audit":"healthy"`)
}

func TestHandleReadinessAuditStopped(t *testing.T) {
	auditSvc := audit.NewAuditService(memory.NewAuditStore(), zap.NewNop(), audit.Config{BufferSize: 10, WorkerCount: 1})

	h := NewHealthHandler(nil, auditSvc, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"audit":"unhealthy"`)
}
