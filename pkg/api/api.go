// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// CreateSandboxRequest is the request body for POST /sandboxes.
type CreateSandboxRequest struct {
	Name string `json:"name"`
}

// SandboxResponse is the full sandbox record.
type SandboxResponse struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Status       string     `json:"status"`
	Handle       string     `json:"handle"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiryTime   time.Time  `json:"expiry_time"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
}

// SandboxSummary is one entry of GET /sandboxes.
type SandboxSummary struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	ExpiryTime time.Time `json:"expiry_time"`
}

// MessageResponse carries a human readable outcome.
type MessageResponse struct {
	Message string `json:"message"`
}

// JobResponse is one pending expiry job. JobID and RunAt are the job's
// jobId and runAt, serialized snake_case like the rest of the API.
type JobResponse struct {
	JobID   string    `json:"job_id"`
	RunAt   time.Time `json:"run_at"`
	Sandbox string    `json:"sandbox"`
}

// SessionResponse is returned by the OAuth callback.
type SessionResponse struct {
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Picture     string    `json:"picture"`
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`
}

// ReconcileResponse reports how many expiry jobs were re-registered.
type ReconcileResponse struct {
	Rescheduled int `json:"rescheduled"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
