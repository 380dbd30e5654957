package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloudgov/costguard/internal/policy"
	"github.com/cloudgov/costguard/internal/policy/policyfile"
	"github.com/cloudgov/costguard/models"
	"github.com/cloudgov/costguard/repositories/memory"
	"github.com/cloudgov/costguard/services/approval"
	"github.com/cloudgov/costguard/services/decision"
	"github.com/cloudgov/costguard/services/spend"
)

// testEnv wires the handler stack over in-memory stores.
type testEnv struct {
	store      *memory.ApprovalStore
	auditStore *memory.AuditStore
	spendStore *memory.SpendStore
	approvals  *approval.Service
	decisions  *decision.Service
	spendSvc   *spend.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	policies := policyfile.Default()

	store := memory.NewApprovalStore()
	approvals := approval.NewService(
		store,
		nil,
		nil,
		approval.AutoApprovalRules{
			AutoApproveActions:   policies.Approval.AutoApproveActions,
			ManualOnlyActions:    policies.Approval.ManualOnlyActions,
			MaxAutoApproveImpact: policies.Approval.MaxAutoApproveImpact,
		},
		approval.Config{},
		logger,
	)

	spendStore := memory.NewSpendStore()
	return &testEnv{
		store:      store,
		auditStore: memory.NewAuditStore(),
		spendStore: spendStore,
		approvals:  approvals,
		decisions:  decision.NewService(policies, approvals, nil, logger),
		spendSvc:   spend.NewService(spendStore, logger),
	}
}

// openRequest seeds a pending approval request directly through the service.
func (e *testEnv) openRequest(t *testing.T, action models.ActionDescriptor, verdict policy.Verdict) *models.ApprovalRequest {
	t.Helper()
	req, err := e.approvals.Create(context.Background(), action, verdict)
	require.NoError(t, err)
	return req
}

func postJSON(t *testing.T, router chi.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func newRawPost(path, body string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req, httptest.NewRecorder()
}

func get(t *testing.T, router chi.Router, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// decodeData unmarshals the "data" envelope of a success response into out.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}
