package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tenantplane/pkg/api"
)

// Client handles API calls to the tenantplane controller.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new client with the given base URL and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do issues a JSON request and decodes the response into out (when non-nil).
// Non-2xx responses are returned as *APIError with the server's error message.
func (c *Client) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("X-Api-Key", c.APIKey)
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		var apiErr api.ErrorResponse
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			msg = apiErr.Error
			if apiErr.Details != "" {
				msg += ": " + apiErr.Details
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// Bootstrap sends POST /bootstrap/users to start a tenant bootstrap job.
func (c *Client) Bootstrap(req api.BootstrapRequest) (*api.SubmitResponse, error) {
	var resp api.SubmitResponse
	if err := c.do(http.MethodPost, "/bootstrap/users", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Teardown sends POST /teardown/users to start a tenant teardown job.
func (c *Client) Teardown(req api.TeardownRequest) (*api.SubmitResponse, error) {
	var resp api.SubmitResponse
	if err := c.do(http.MethodPost, "/teardown/users", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobStatus sends GET /jobs/{id}.
func (c *Client) JobStatus(jobID string) (*api.JobStatusResponse, error) {
	var resp api.JobStatusResponse
	if err := c.do(http.MethodGet, "/jobs/"+jobID, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JobResult sends GET /jobs/{id}/result. The server answers 409 until the
// job has finished; that surfaces here as an *APIError.
func (c *Client) JobResult(jobID string) (*api.JobResultResponse, error) {
	var resp api.JobResultResponse
	if err := c.do(http.MethodGet, "/jobs/"+jobID+"/result", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListAccounts sends GET /accounts.
func (c *Client) ListAccounts() (*api.ListAccountsResponse, error) {
	var resp api.ListAccountsResponse
	if err := c.do(http.MethodGet, "/accounts", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetAccountEnabled sends POST /accounts/enable or /accounts/disable.
func (c *Client) SetAccountEnabled(username string, enabled bool) error {
	path := "/accounts/disable"
	if enabled {
		path = "/accounts/enable"
	}
	return c.do(http.MethodPost, path, api.AccountRequest{Username: username}, nil)
}

// SetAccountPassword sends POST /accounts/set-password.
func (c *Client) SetAccountPassword(username, password string) error {
	return c.do(http.MethodPost, "/accounts/set-password",
		api.SetPasswordRequest{Username: username, Password: password}, nil)
}

// SetLimits sends PUT /tenants/{namespace}/limits.
func (c *Client) SetLimits(namespace string, req api.SetLimitsRequest) (*api.QuotaResponse, error) {
	var resp api.QuotaResponse
	if err := c.do(http.MethodPut, "/tenants/"+namespace+"/limits", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Quota sends GET /tenants/{namespace}/quota.
func (c *Client) Quota(namespace string) (*api.QuotaResponse, error) {
	var resp api.QuotaResponse
	if err := c.do(http.MethodGet, "/tenants/"+namespace+"/quota", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListTenants sends GET /tenants.
func (c *Client) ListTenants() ([]api.TenantResponse, error) {
	var resp []api.TenantResponse
	if err := c.do(http.MethodGet, "/tenants", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
