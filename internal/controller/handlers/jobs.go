package handlers

import (
	"net/http"

	"sandplane/pkg/api"
)

// ListJobs handles GET /jobs.
// It returns the pending expiry jobs, soonest first, as
// [{"job_id", "run_at", "sandbox"}].
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := h.lifecycle.PendingJobs()

	resp := make([]api.JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, api.JobResponse{
			JobID:   j.ID,
			RunAt:   j.RunAt,
			Sandbox: j.Payload,
		})
	}
	h.respondJson(w, http.StatusOK, resp)
}
