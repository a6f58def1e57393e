package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/finipro/be-am-disposals/internal/apperrors"
	"github.com/finipro/be-am-disposals/internal/service"
)

// IdentityHTTPClient implements service.IdentityClientInterface against the
// platform identity service's REST API.
type IdentityHTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewIdentityHTTPClient creates a client for the identity service at baseURL.
func NewIdentityHTTPClient(baseURL string, timeout time.Duration) *IdentityHTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &IdentityHTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// GetUserRoles returns the job-role names a user holds within an organization.
func (c *IdentityHTTPClient) GetUserRoles(ctx context.Context, orgID, userID string) ([]string, error) {
	var out struct {
		Roles []string `json:"roles"`
	}
	url := fmt.Sprintf("%s/api/v1/orgs/%s/users/%s/roles", c.baseURL, orgID, userID)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return out.Roles, nil
}

// GetUserScope returns the user's branch and whether they hold cross-branch
// visibility.
func (c *IdentityHTTPClient) GetUserScope(ctx context.Context, orgID, userID string) (*service.UserScope, error) {
	var out struct {
		BranchID    string `json:"branch_id"`
		AllBranches bool   `json:"all_branches"`
	}
	url := fmt.Sprintf("%s/api/v1/orgs/%s/users/%s/scope", c.baseURL, orgID, userID)
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return &service.UserScope{BranchID: out.BranchID, AllBranches: out.AllBranches}, nil
}

func (c *IdentityHTTPClient) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to build identity request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "identity service unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.New(apperrors.ErrCodeNotFound, "identity record not found")
	case resp.StatusCode != http.StatusOK:
		return apperrors.Newf(apperrors.ErrCodeInternal, "identity service returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to decode identity response")
	}
	return nil
}
