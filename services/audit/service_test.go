package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudgov/costguard/internal/policy"
	"github.com/cloudgov/costguard/models"
	"github.com/cloudgov/costguard/repositories/memory"
)

func TestStartStop(t *testing.T) {
	svc := NewAuditService(memory.NewAuditStore(), zap.NewNop(), DefaultConfig())

	require.NoError(t, svc.Start())
	assert.Error(t, svc.Start(), "double start must fail")

	stats := svc.GetStats()
	assert.True(t, stats.Started)
	assert.Equal(t, 5, stats.WorkerCount)

	require.NoError(t, svc.Stop(time.Second))
}

func TestLogEventRequiresStart(t *testing.T) {
	svc := NewAuditService(memory.NewAuditStore(), zap.NewNop(), DefaultConfig())
	err := svc.LogEvent(models.NewAuditLog(models.AuditActionApprovalCreated))
	assert.Error(t, err)
}

func TestEventsArePersisted(t *testing.T) {
	store := memory.NewAuditStore()
	svc := NewAuditService(store, zap.NewNop(), Config{BufferSize: 100, WorkerCount: 2})
	require.NoError(t, svc.Start())

	approvalID := uuid.New()
	require.NoError(t, svc.LogTransition(approvalID, models.AuditActionApproved, "alice", "approved", nil))
	require.NoError(t, svc.LogDecision(
		models.ActionDescriptor{Action: "stop_instances"},
		policy.Verdict{Allow: true, Violations: []string{}},
		"authorized", "req-1"))

	// Stop drains the queue before returning
	require.NoError(t, svc.Stop(time.Second))

	trail, err := store.ListByApprovalID(context.Background(), approvalID)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, models.AuditActionApproved, trail[0].Action)
	assert.Equal(t, "alice", trail[0].Actor)

	all, err := store.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	for _, entry := range all {
		if entry.Action == models.AuditActionDecisionEvaluated {
			assert.Equal(t, "stop_instances", entry.GatedAction)
			assert.Equal(t, "req-1", entry.RequestID)
		}
	}
}

func TestBufferFullDropsEvent(t *testing.T) {
	// Workers never started on this channel, so the buffer fills up
	svc := NewAuditService(memory.NewAuditStore(), zap.NewNop(), Config{BufferSize: 1, WorkerCount: 1})
	svc.mu.Lock()
	svc.started = true
	svc.mu.Unlock()

	require.NoError(t, svc.LogEvent(models.NewAuditLog(models.AuditActionApprovalCreated)))
	err := svc.LogEvent(models.NewAuditLog(models.AuditActionApprovalCreated))
	assert.Error(t, err)
}
