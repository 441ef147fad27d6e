package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"sandplane/pkg/api"
)

func TestCreateCommand_Success(t *testing.T) {
	resetViper()

	expiry := time.Now().Add(6 * time.Hour).UTC()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request format
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/sandboxes" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected Bearer token, got: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got: %s", r.Header.Get("Content-Type"))
		}

		var req api.CreateSandboxRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if req.Name != "dev" {
			t.Errorf("expected name=dev, got %v", req.Name)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.SandboxResponse{
			Name:       "dev",
			Status:     "ACTIVE",
			Handle:     "stack/dev-123",
			ExpiryTime: expiry,
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := execute(t, "create", "dev")

	if !strings.Contains(output, "Sandbox created") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !strings.Contains(output, "stack/dev-123") {
		t.Errorf("expected handle in output, got: %s", output)
	}
}

func TestCreateCommand_Conflict(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Sandbox dev already exists", Code: "409"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := execute(t, "create", "dev")

	if !strings.Contains(output, "Error (409): Sandbox dev already exists") {
		t.Errorf("expected conflict message, got: %s", output)
	}
}

func TestCreateCommand_ServerUnreachable(t *testing.T) {
	resetViper()

	viper.Set("url", "http://127.0.0.1:1")
	viper.Set("token", "test-token")

	output := execute(t, "create", "dev")

	if !strings.Contains(output, "Error: request failed") {
		t.Errorf("expected connection error, got: %s", output)
	}
}

func TestListCommand(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/sandboxes" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode([]api.SandboxSummary{
			{Name: "dev", Status: "ACTIVE", ExpiryTime: time.Now().Add(time.Hour)},
			{Name: "old", Status: "TERMINATED", ExpiryTime: time.Now().Add(-time.Hour)},
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := execute(t, "list")

	for _, want := range []string{"NAME", "dev", "ACTIVE", "old", "TERMINATED"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestListCommand_Empty(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := execute(t, "list")

	if !strings.Contains(output, "No sandboxes found") {
		t.Errorf("expected empty message, got: %s", output)
	}
}

func TestGetCommand(t *testing.T) {
	resetViper()

	terminated := time.Date(2025, 1, 1, 13, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sandboxes/dev" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(api.SandboxResponse{
			ID:           "a1b2",
			Name:         "dev",
			Status:       "TERMINATED",
			Handle:       "ns/sandbox-dev",
			CreatedAt:    terminated.Add(-time.Hour),
			ExpiryTime:   terminated.Add(5 * time.Hour),
			TerminatedAt: &terminated,
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := execute(t, "get", "dev")

	for _, want := range []string{"Sandbox Details", "a1b2", "TERMINATED", "ns/sandbox-dev", "Wed, 01 Jan 2025 13:00:00 UTC"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestGetCommand_NotFound(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Sandbox not found", Code: "404"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := execute(t, "get", "missing")

	if !strings.Contains(output, "Error (404): Sandbox not found") {
		t.Errorf("expected not found message, got: %s", output)
	}
}

func TestDeleteCommand(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/sandboxes/dev" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(api.MessageResponse{Message: "Sandbox dev terminated"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := execute(t, "delete", "dev")

	if !strings.Contains(output, "Sandbox dev terminated") {
		t.Errorf("expected termination message, got: %s", output)
	}
}

func TestDeleteCommand_DeprovisionFailure(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream broke"))
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := execute(t, "delete", "dev")

	if !strings.Contains(output, "Error (502): upstream broke") {
		t.Errorf("expected raw body in error, got: %s", output)
	}
}

func TestJobsCommand(t *testing.T) {
	resetViper()

	runAt := time.Date(2025, 1, 1, 18, 0, 0, 0, time.UTC)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jobs" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]api.JobResponse{
			{JobID: "terminate-dev", RunAt: runAt, Sandbox: "dev"},
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	output := execute(t, "jobs")

	for _, want := range []string{"terminate-dev", "2025-01-01T18:00:00Z"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestClient_OmitsEmptyToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	if _, err := NewSandboxClient(server.URL+"/", "").ListJobs(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "" {
		t.Errorf("expected no Authorization header, got %q", gotAuth)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{5*time.Minute + 3*time.Second, "5m 3s"},
		{6*time.Hour + 15*time.Minute, "6h 15m"},
		{30 * time.Hour, "1 day"},
		{72 * time.Hour, "3 days"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
