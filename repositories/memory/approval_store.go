// Package memory provides in-memory repository implementations for
// development and tests. The approval store serializes transitions per
// request id with striped locks so unrelated requests never contend on a
// single global lock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cloudgov/costguard/models"
	"github.com/cloudgov/costguard/repositories"
)

// lockStripes bounds the per-id lock table. Two ids may share a stripe, but
// contention stays local; there is no store-wide transition lock.
const lockStripes = 64

// ApprovalStore implements repositories.ApprovalRepository in memory.
type ApprovalStore struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]*models.ApprovalRequest
	stripes  [lockStripes]sync.Mutex
}

// NewApprovalStore creates an empty approval store
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{
		requests: make(map[uuid.UUID]*models.ApprovalRequest),
	}
}

func (s *ApprovalStore) stripe(id uuid.UUID) *sync.Mutex {
	return &s.stripes[int(id[0])%lockStripes]
}

// Create stores a new approval request
func (s *ApprovalStore) Create(_ context.Context, req *models.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req.Clone()
	return nil
}

// GetByID retrieves a consistent snapshot of an approval request
func (s *ApprovalStore) GetByID(_ context.Context, id uuid.UUID) (*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return req.Clone(), nil
}

// ListPending retrieves all pending approval requests, oldest first
func (s *ApprovalStore) ListPending(_ context.Context) ([]*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make([]*models.ApprovalRequest, 0)
	for _, req := range s.requests {
		if req.Status == models.StatusPending {
			pending = append(pending, req.Clone())
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].RequestedAt.Before(pending[j].RequestedAt)
	})
	return pending, nil
}

// List retrieves approval requests with pagination, newest first
func (s *ApprovalStore) List(_ context.Context, limit, offset int) ([]*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.ApprovalRequest, 0, len(s.requests))
	for _, req := range s.requests {
		all = append(all, req.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].RequestedAt.After(all[j].RequestedAt)
	})

	if offset >= len(all) {
		return []*models.ApprovalRequest{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// UpdateStatus atomically applies change iff the current status matches
// expected. The stripe lock serializes transitions on the id; the map lock is
// only held long enough to swap the stored snapshot.
func (s *ApprovalStore) UpdateStatus(_ context.Context, id uuid.UUID, expected models.ApprovalStatus, change repositories.ApprovalChange) (*models.ApprovalRequest, error) {
	stripe := s.stripe(id)
	stripe.Lock()
	defer stripe.Unlock()

	s.mu.RLock()
	stored, ok := s.requests[id]
	s.mu.RUnlock()
	if !ok {
		return nil, repositories.ErrNotFound
	}

	if stored.Status != expected {
		return nil, repositories.ErrStatusConflict
	}
	// The CAS check trusts the caller's expectation; the state graph does not
	if !stored.Status.CanTransitionTo(change.To) {
		return nil, repositories.ErrInvalidTransition
	}

	updated := stored.Clone()
	now := time.Now().UTC()

	updated.Status = change.To
	if change.Actor != "" {
		updated.Approver = change.Actor
	}
	if change.Reason != "" {
		updated.Reason = change.Reason
	}
	updated.ExecutionError = change.ExecutionError
	if len(change.ChangePlan) > 0 {
		updated.ChangePlan = append([]byte(nil), change.ChangePlan...)
	}
	if change.IncrementAttempts {
		updated.ExecuteAttempts++
	}

	switch change.To {
	case models.StatusApproved, models.StatusAutoApproved, models.StatusRejected:
		t := now
		updated.DecidedAt = &t
	case models.StatusExecuted:
		t := now
		updated.ExecutedAt = &t
	}

	updated.History = append(updated.History, models.StatusChange{
		From:   stored.Status,
		To:     change.To,
		Actor:  change.Actor,
		Reason: change.Reason,
		At:     now,
	})

	s.mu.Lock()
	s.requests[id] = updated
	s.mu.Unlock()

	return updated.Clone(), nil
}
