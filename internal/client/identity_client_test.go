package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finipro/be-am-disposals/internal/apperrors"
)

func TestGetUserRoles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/orgs/org-1/users/u-1/roles", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"roles":["RoleA","RoleB"]}`))
	}))
	defer srv.Close()

	c := NewIdentityHTTPClient(srv.URL, time.Second)
	roles, err := c.GetUserRoles(context.Background(), "org-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"RoleA", "RoleB"}, roles)
}

func TestGetUserScope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/orgs/org-1/users/u-1/scope", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"branch_id":"b-1","all_branches":false}`))
	}))
	defer srv.Close()

	c := NewIdentityHTTPClient(srv.URL, time.Second)
	scope, err := c.GetUserScope(context.Background(), "org-1", "u-1")
	require.NoError(t, err)
	assert.Equal(t, "b-1", scope.BranchID)
	assert.False(t, scope.AllBranches)
}

func TestIdentityClient_ErrorMapping(t *testing.T) {
	status := http.StatusNotFound
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := NewIdentityHTTPClient(srv.URL, time.Second)

	_, err := c.GetUserRoles(context.Background(), "org-1", "u-missing")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))

	status = http.StatusBadGateway
	_, err = c.GetUserRoles(context.Background(), "org-1", "u-1")
	assert.Equal(t, apperrors.ErrCodeInternal, apperrors.CodeOf(err))
}

func TestIdentityClient_Unreachable(t *testing.T) {
	c := NewIdentityHTTPClient("http://127.0.0.1:1", 100*time.Millisecond)

	_, err := c.GetUserRoles(context.Background(), "org-1", "u-1")
	assert.Equal(t, apperrors.ErrCodeInternal, apperrors.CodeOf(err))
}
