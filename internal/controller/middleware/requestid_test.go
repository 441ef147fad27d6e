package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"sandplane/internal/logger"
)

func TestRequestID_GeneratesID(t *testing.T) {
	var seen string
	handler := RequestID(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/sandboxes", nil))

	if seen == "" {
		t.Fatal("expected a request id in context")
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header %q does not match context id %q", got, seen)
	}
	if rr.Code != http.StatusCreated {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusCreated)
	}
}

func TestRequestID_ReusesIncomingID(t *testing.T) {
	var seen string
	handler := RequestID(discardLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/sandboxes", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "req-abc" {
		t.Errorf("expected incoming id req-abc, got %q", seen)
	}
}
