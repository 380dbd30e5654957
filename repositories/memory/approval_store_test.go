package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudgov/costguard/internal/policy"
	"github.com/cloudgov/costguard/models"
	"github.com/cloudgov/costguard/repositories"
)

func newRequest(action string) *models.ApprovalRequest {
	return models.NewApprovalRequest(
		models.ActionDescriptor{Action: action, Resources: []string{"i-1"}},
		policy.Verdict{Allow: false, Violations: []string{"over budget"}},
	)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()

	req := newRequest("stop_instances")
	require.NoError(t, store.Create(ctx, req))

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)

	// The returned snapshot is independent of the stored state
	got.Status = models.StatusRejected
	again, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, again.Status)
}

func TestGetByIDNotFound(t *testing.T) {
	store := NewApprovalStore()
	_, err := store.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestUpdateStatus(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()

	req := newRequest("stop_instances")
	require.NoError(t, store.Create(ctx, req))

	updated, err := store.UpdateStatus(ctx, req.ID, models.StatusPending, repositories.ApprovalChange{
		To:     models.StatusApproved,
		Actor:  "alice",
		Reason: "looks fine",
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, updated.Status)
	assert.Equal(t, "alice", updated.Approver)
	require.NotNil(t, updated.DecidedAt)
	require.Len(t, updated.History, 1)
	assert.Equal(t, models.StatusPending, updated.History[0].From)
	assert.Equal(t, models.StatusApproved, updated.History[0].To)
}

func TestUpdateStatusConflict(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()

	req := newRequest("stop_instances")
	require.NoError(t, store.Create(ctx, req))

	_, err := store.UpdateStatus(ctx, req.ID, models.StatusPending, repositories.ApprovalChange{
		To: models.StatusApproved, Actor: "alice",
	})
	require.NoError(t, err)

	// Expected status no longer matches: the transition is refused and the
	// stored request is untouched
	_, err = store.UpdateStatus(ctx, req.ID, models.StatusPending, repositories.ApprovalChange{
		To: models.StatusRejected, Actor: "bob",
	})
	assert.ErrorIs(t, err, repositories.ErrStatusConflict)

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)
	assert.Equal(t, "alice", got.Approver)
	assert.Len(t, got.History, 1)
}

func TestUpdateStatusIllegalTarget(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()

	req := newRequest("stop_instances")
	require.NoError(t, store.Create(ctx, req))

	// pending -> executed skips the approval step; even a matching expected
	// status cannot force it
	_, err := store.UpdateStatus(ctx, req.ID, models.StatusPending, repositories.ApprovalChange{
		To: models.StatusExecuted, Actor: "system",
	})
	assert.ErrorIs(t, err, repositories.ErrInvalidTransition)

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Empty(t, got.History)
}

func TestUpdateStatusTerminalState(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()

	req := newRequest("stop_instances")
	require.NoError(t, store.Create(ctx, req))

	_, err := store.UpdateStatus(ctx, req.ID, models.StatusPending, repositories.ApprovalChange{
		To: models.StatusRejected, Actor: "alice", Reason: "too risky",
	})
	require.NoError(t, err)

	// rejected is terminal: no target is reachable from it
	_, err = store.UpdateStatus(ctx, req.ID, models.StatusRejected, repositories.ApprovalChange{
		To: models.StatusApproved, Actor: "bob",
	})
	assert.ErrorIs(t, err, repositories.ErrInvalidTransition)
}

func TestUpdateStatusNotFound(t *testing.T) {
	store := NewApprovalStore()
	_, err := store.UpdateStatus(context.Background(), uuid.New(), models.StatusPending,
		repositories.ApprovalChange{To: models.StatusApproved})
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestUpdateStatusExecutedTimestampAndAttempts(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()

	req := newRequest("stop_instances")
	require.NoError(t, store.Create(ctx, req))

	_, err := store.UpdateStatus(ctx, req.ID, models.StatusPending, repositories.ApprovalChange{
		To: models.StatusApproved, Actor: "alice",
	})
	require.NoError(t, err)

	updated, err := store.UpdateStatus(ctx, req.ID, models.StatusApproved, repositories.ApprovalChange{
		To:                models.StatusExecuted,
		Actor:             "system",
		ChangePlan:        []byte(`{"mode":"dry_run"}`),
		IncrementAttempts: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ExecuteAttempts)
	require.NotNil(t, updated.ExecutedAt)
	assert.JSONEq(t, `{"mode":"dry_run"}`, string(updated.ChangePlan))
}

func TestConcurrentTransitionsExactlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()

	req := newRequest("stop_instances")
	require.NoError(t, store.Create(ctx, req))

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = store.UpdateStatus(ctx, req.ID, models.StatusPending, repositories.ApprovalChange{
				To: models.StatusApproved, Actor: "racer",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, repositories.ErrStatusConflict)
		}
	}
	assert.Equal(t, 1, wins)

	got, err := store.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 1)
}

func TestListPendingOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()

	first := newRequest("a")
	first.RequestedAt = time.Now().UTC().Add(-2 * time.Hour)
	second := newRequest("b")
	second.RequestedAt = time.Now().UTC().Add(-1 * time.Hour)
	approved := newRequest("c")

	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))
	require.NoError(t, store.Create(ctx, approved))
	_, err := store.UpdateStatus(ctx, approved.ID, models.StatusPending, repositories.ApprovalChange{
		To: models.StatusApproved, Actor: "alice",
	})
	require.NoError(t, err)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	store := NewApprovalStore()

	base := time.Now().UTC()
	ids := make([]uuid.UUID, 5)
	for i := 0; i < 5; i++ {
		req := newRequest("a")
		req.RequestedAt = base.Add(time.Duration(i) * time.Minute)
		ids[i] = req.ID
		require.NoError(t, store.Create(ctx, req))
	}

	// Newest first
	page, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)

	page, err = store.List(ctx, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)

	page, err = store.List(ctx, 10, 99)
	require.NoError(t, err)
	assert.Empty(t, page)
}
