// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"sandplane/internal/auth"
	"sandplane/internal/scheduler"
	"sandplane/internal/store"
	"sandplane/pkg/api"
)

// Lifecycle is the sandbox manager as seen by the API.
type Lifecycle interface {
	Create(ctx context.Context, name string) (*store.Sandbox, error)
	Get(ctx context.Context, name string) (*store.Sandbox, error)
	List(ctx context.Context) ([]store.Sandbox, error)
	Terminate(ctx context.Context, name string) error
	PendingJobs() []scheduler.Job
	Reconcile(ctx context.Context) (int, error)
	Ready(ctx context.Context) error
}

// LoginFlow runs the OAuth authorization-code exchange.
type LoginFlow interface {
	LoginURL() (string, error)
	Callback(ctx context.Context, state, code string) (*auth.Session, error)
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	lifecycle Lifecycle
	login     LoginFlow
	logger    *slog.Logger
}

// New creates a new Handlers instance. login may be nil when OAuth is not configured.
func New(lc Lifecycle, login LoginFlow, logger *slog.Logger) *Handlers {
	return &Handlers{lifecycle: lc, login: login, logger: logger}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func toResponse(sb *store.Sandbox) api.SandboxResponse {
	return api.SandboxResponse{
		ID:           sb.ID.String(),
		Name:         sb.Name,
		Status:       string(sb.Status),
		Handle:       sb.Handle,
		CreatedAt:    sb.CreatedAt,
		ExpiryTime:   sb.ExpiryTime,
		TerminatedAt: sb.TerminatedAt,
	}
}
