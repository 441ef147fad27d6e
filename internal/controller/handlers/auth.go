package handlers

import (
	"errors"
	"net/http"

	"sandplane/internal/auth"
	"sandplane/internal/logger"
	"sandplane/pkg/api"
)

// Login handles GET /auth/login by redirecting to the identity provider.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if h.login == nil {
		h.httpError(w, "Login is not configured", http.StatusServiceUnavailable)
		return
	}

	url, err := h.login.LoginURL()
	if err != nil {
		h.httpError(w, "Failed to start login", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// Callback handles GET /auth/callback.
// It exchanges the code and returns the user together with the access token.
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	if h.login == nil {
		h.httpError(w, "Login is not configured", http.StatusServiceUnavailable)
		return
	}

	q := r.URL.Query()
	if errMsg := q.Get("error"); errMsg != "" {
		h.httpError(w, "Login denied: "+errMsg, http.StatusBadRequest)
		return
	}

	session, err := h.login.Callback(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Warn("oauth callback failed", "error", err)
		if errors.Is(err, auth.ErrInvalidState) {
			h.httpError(w, "Invalid login state", http.StatusBadRequest)
			return
		}
		h.httpError(w, "Failed to complete login", http.StatusBadRequest)
		return
	}

	h.respondJson(w, http.StatusOK, api.SessionResponse{
		Email:       session.User.Email,
		Name:        session.User.Name,
		Picture:     session.User.Picture,
		AccessToken: session.AccessToken,
		ExpiresAt:   session.Expiry,
	})
}
