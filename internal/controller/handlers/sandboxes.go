package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"sandplane/internal/gateway"
	"sandplane/internal/logger"
	"sandplane/internal/store"
	"sandplane/pkg/api"
)

// CreateSandbox handles POST /sandboxes.
// It provisions the sandbox synchronously and returns the stored record.
func (h *Handlers) CreateSandbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.CreateSandboxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sb, err := h.lifecycle.Create(ctx, req.Name)
	switch {
	case err == nil:
	case errors.Is(err, gateway.ErrInvalidName):
		h.httpError(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, store.ErrNameConflict):
		h.httpError(w, fmt.Sprintf("Sandbox %s already exists", req.Name), http.StatusConflict)
		return
	case errors.Is(err, gateway.ErrProvisioningFailure):
		h.httpError(w, "Failed to provision sandbox", http.StatusInternalServerError)
		return
	default:
		logger.FromContext(ctx, h.logger).Error("create sandbox failed", "sandbox", req.Name, "error", err)
		h.httpError(w, "Failed to create sandbox", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusCreated, toResponse(sb))
}

// ListSandboxes handles GET /sandboxes.
func (h *Handlers) ListSandboxes(w http.ResponseWriter, r *http.Request) {
	sandboxes, err := h.lifecycle.List(r.Context())
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Error("list sandboxes failed", "error", err)
		h.httpError(w, "Failed to list sandboxes", http.StatusInternalServerError)
		return
	}

	resp := make([]api.SandboxSummary, 0, len(sandboxes))
	for _, sb := range sandboxes {
		resp = append(resp, api.SandboxSummary{
			Name:       sb.Name,
			Status:     string(sb.Status),
			ExpiryTime: sb.ExpiryTime,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}

// GetSandbox handles GET /sandboxes/{name}.
func (h *Handlers) GetSandbox(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	sb, err := h.lifecycle.Get(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		h.httpError(w, "Sandbox not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.httpError(w, "Failed to fetch sandbox", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, toResponse(sb))
}

// DeleteSandbox handles DELETE /sandboxes/{name}.
// Deleting an unknown or already terminated sandbox still succeeds.
func (h *Handlers) DeleteSandbox(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	if err := h.lifecycle.Terminate(ctx, name); err != nil {
		logger.FromContext(ctx, h.logger).Error("terminate sandbox failed", "sandbox", name, "error", err)
		if errors.Is(err, gateway.ErrDeprovisionFailure) {
			h.httpError(w, "Failed to deprovision sandbox", http.StatusBadGateway)
			return
		}
		h.httpError(w, "Failed to terminate sandbox", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.MessageResponse{
		Message: fmt.Sprintf("Sandbox %s terminated", name),
	})
}
