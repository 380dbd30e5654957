package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDGeneratesWhenAbsent(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, seen)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDHonorsIncomingHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-id", seen)
	assert.Equal(t, "upstream-id", rec.Header().Get("X-Request-ID"))
}

func TestIdentityContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetIdentityFromContext(ctx))

	identity := &Identity{Subject: "alice", Roles: []string{"approver"}}
	ctx = WithIdentity(ctx, identity)
	got := GetIdentityFromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Subject)
	assert.True(t, got.HasRole("approver"))
	assert.False(t, got.HasRole("admin"))
}

func TestRequestIDContextRoundTrip(t *testing.T) {
	assert.Empty(t, GetRequestIDFromContext(context.Background()))
	ctx := WithRequestID(context.Background(), "abc-123")
	assert.Equal(t, "abc-123", GetRequestIDFromContext(ctx))
}
