package handlers

import (
	"net/http"

	"sandplane/internal/logger"
	"sandplane/pkg/api"
)

// Healthz is a liveness probe.
// It returns 200 OK if the server is running.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readyz is a readiness probe.
// It checks if the service is ready to accept traffic (e.g., DB is connected).
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Ready(r.Context()); err != nil {
		h.httpError(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}
	h.respondJson(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Reconcile handles POST /internal/reconcile.
// It re-registers expiry jobs for every active sandbox.
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	n, err := h.lifecycle.Reconcile(r.Context())
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Error("reconcile failed", "error", err)
		h.httpError(w, "Failed to reconcile", http.StatusInternalServerError)
		return
	}
	h.respondJson(w, http.StatusOK, api.ReconcileResponse{Rescheduled: n})
}
