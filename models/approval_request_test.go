package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgov/costguard/internal/policy"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from ApprovalStatus
		to   ApprovalStatus
		want bool
	}{
		{StatusPending, StatusApproved, true},
		{StatusPending, StatusAutoApproved, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusExecuted, false},
		{StatusApproved, StatusExecuted, true},
		{StatusApproved, StatusExecutionFailed, true},
		{StatusApproved, StatusRejected, false},
		{StatusAutoApproved, StatusExecuted, true},
		{StatusExecutionFailed, StatusApproved, true},
		{StatusExecutionFailed, StatusExecuted, false},
		{StatusExecuted, StatusApproved, false},
		{StatusRejected, StatusApproved, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusExecuted.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusApproved.Terminal())
	assert.False(t, StatusExecutionFailed.Terminal())
}

func TestNewApprovalRequest(t *testing.T) {
	action := ActionDescriptor{Action: "stop_instances", Resources: []string{"i-1"}}
	verdict := policy.Verdict{Allow: false, Violations: []string{"over budget"}}

	req := NewApprovalRequest(action, verdict)
	assert.NotEqual(t, req.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, action, req.Action)
	assert.Equal(t, verdict, req.Decision)
	assert.False(t, req.RequestedAt.IsZero())
	assert.Empty(t, req.History)
}

func TestClone(t *testing.T) {
	req := NewApprovalRequest(
		ActionDescriptor{Action: "stop_instances", Resources: []string{"i-1"}},
		policy.Verdict{Allow: true, Violations: []string{}},
	)
	req.History = append(req.History, StatusChange{From: StatusPending, To: StatusApproved})

	clone := req.Clone()
	require.Equal(t, req.ID, clone.ID)

	// Mutating the clone never touches the original
	clone.Action.Resources[0] = "i-2"
	clone.History[0].Actor = "mallory"
	clone.Status = StatusRejected

	assert.Equal(t, "i-1", req.Action.Resources[0])
	assert.Empty(t, req.History[0].Actor)
	assert.Equal(t, StatusPending, req.Status)
}
