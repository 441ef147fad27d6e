package handlers

import (
	"context"
	"io"
	"log/slog"

	"sandplane/internal/auth"
	"sandplane/internal/scheduler"
	"sandplane/internal/store"
)

// Mock Lifecycle
type mockLifecycle struct {
	createResp *store.Sandbox
	createErr  error

	getResp *store.Sandbox
	getErr  error

	listResp []store.Sandbox
	listErr  error

	terminateErr error

	pendingResp []scheduler.Job

	reconcileResp int
	reconcileErr  error

	readyErr error

	// Spies (to verify arguments passed by handlers)
	capturedName string
}

func (m *mockLifecycle) Create(ctx context.Context, name string) (*store.Sandbox, error) {
	m.capturedName = name
	return m.createResp, m.createErr
}

func (m *mockLifecycle) Get(ctx context.Context, name string) (*store.Sandbox, error) {
	m.capturedName = name
	return m.getResp, m.getErr
}

func (m *mockLifecycle) List(ctx context.Context) ([]store.Sandbox, error) {
	return m.listResp, m.listErr
}

func (m *mockLifecycle) Terminate(ctx context.Context, name string) error {
	m.capturedName = name
	return m.terminateErr
}

func (m *mockLifecycle) PendingJobs() []scheduler.Job {
	return m.pendingResp
}

func (m *mockLifecycle) Reconcile(ctx context.Context) (int, error) {
	return m.reconcileResp, m.reconcileErr
}

func (m *mockLifecycle) Ready(ctx context.Context) error {
	return m.readyErr
}

// Mock login flow
type mockLogin struct {
	url      string
	urlErr   error
	session  *auth.Session
	err      error
	gotState string
	gotCode  string
}

func (m *mockLogin) LoginURL() (string, error) {
	return m.url, m.urlErr
}

func (m *mockLogin) Callback(ctx context.Context, state, code string) (*auth.Session, error) {
	m.gotState = state
	m.gotCode = code
	return m.session, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
