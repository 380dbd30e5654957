package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cloudgov/costguard/models"
	"github.com/cloudgov/costguard/repositories"
)

// AuditStore implements repositories.AuditRepository in memory.
type AuditStore struct {
	mu   sync.RWMutex
	logs []*models.AuditLog
}

// NewAuditStore creates an empty audit store
func NewAuditStore() *AuditStore {
	return &AuditStore{logs: make([]*models.AuditLog, 0)}
}

// Insert appends a new audit log entry
func (s *AuditStore) Insert(_ context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *log
	s.logs = append(s.logs, &clone)
	return nil
}

// GetByID retrieves an audit log by ID
func (s *AuditStore) GetByID(_ context.Context, id uuid.UUID) (*models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, log := range s.logs {
		if log.ID == id {
			clone := *log
			return &clone, nil
		}
	}
	return nil, repositories.ErrNotFound
}

// ListByApprovalID retrieves the audit trail of one approval request
func (s *AuditStore) ListByApprovalID(_ context.Context, approvalID uuid.UUID) ([]*models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail := make([]*models.AuditLog, 0)
	for _, log := range s.logs {
		if log.ApprovalID != nil && *log.ApprovalID == approvalID {
			clone := *log
			trail = append(trail, &clone)
		}
	}
	sort.Slice(trail, func(i, j int) bool {
		return trail[i].Timestamp.Before(trail[j].Timestamp)
	})
	return trail, nil
}

// List retrieves audit logs with pagination, newest first
func (s *AuditStore) List(_ context.Context, limit, offset int) ([]*models.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*models.AuditLog, 0, len(s.logs))
	for _, log := range s.logs {
		clone := *log
		all = append(all, &clone)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp.After(all[j].Timestamp)
	})

	if offset >= len(all) {
		return []*models.AuditLog{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}
