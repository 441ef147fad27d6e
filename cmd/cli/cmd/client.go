package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sandplane/pkg/api"
)

// SandboxClient handles API calls to the sandplane controller.
type SandboxClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewSandboxClient creates a new client with the given base URL and token.
// The timeout leaves room for synchronous provisioning.
func NewSandboxClient(baseURL, token string) *SandboxClient {
	return &SandboxClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 3 * time.Minute,
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

// newAPIError prefers the message of a JSON error envelope over the raw body.
func newAPIError(status int, body []byte) *APIError {
	var envelope api.ErrorResponse
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != "" {
		return &APIError{StatusCode: status, Message: envelope.Error}
	}
	return &APIError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

func (c *SandboxClient) do(method, path string, in, out interface{}, okStatus int) error {
	var body io.Reader
	if in != nil {
		bodyBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.Token != "" {
		httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != okStatus {
		return newAPIError(resp.StatusCode, respBody)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// CreateSandbox sends POST /sandboxes.
func (c *SandboxClient) CreateSandbox(name string) (*api.SandboxResponse, error) {
	var result api.SandboxResponse
	if err := c.do(http.MethodPost, "/sandboxes", api.CreateSandboxRequest{Name: name}, &result, http.StatusCreated); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListSandboxes sends GET /sandboxes.
func (c *SandboxClient) ListSandboxes() ([]api.SandboxSummary, error) {
	var result []api.SandboxSummary
	if err := c.do(http.MethodGet, "/sandboxes", nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return result, nil
}

// GetSandbox sends GET /sandboxes/{name}.
func (c *SandboxClient) GetSandbox(name string) (*api.SandboxResponse, error) {
	var result api.SandboxResponse
	if err := c.do(http.MethodGet, "/sandboxes/"+url.PathEscape(name), nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteSandbox sends DELETE /sandboxes/{name}.
func (c *SandboxClient) DeleteSandbox(name string) (*api.MessageResponse, error) {
	var result api.MessageResponse
	if err := c.do(http.MethodDelete, "/sandboxes/"+url.PathEscape(name), nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListJobs sends GET /jobs.
func (c *SandboxClient) ListJobs() ([]api.JobResponse, error) {
	var result []api.JobResponse
	if err := c.do(http.MethodGet, "/jobs", nil, &result, http.StatusOK); err != nil {
		return nil, err
	}
	return result, nil
}
