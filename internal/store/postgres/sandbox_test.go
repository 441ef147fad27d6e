package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"sandplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var sandboxRowColumns = []string{"id", "name", "status", "handle", "created_at", "expiry_time", "terminated_at"}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return &Store{db: db}, mock
}

func TestInsert_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	createdAt := time.Now().UTC()
	sandbox := &store.Sandbox{
		Name:       "alpha",
		Status:     store.SandboxStatusActive,
		Handle:     "arn:aws:cloudformation:us-east-1:123:stack/alpha/1",
		CreatedAt:  createdAt,
		ExpiryTime: createdAt.Add(15 * time.Minute),
	}

	mock.ExpectExec(`INSERT INTO sandboxes`).
		WithArgs(sqlmock.AnyArg(), "alpha", store.SandboxStatusActive, sandbox.Handle, sandbox.CreatedAt, sandbox.ExpiryTime).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Insert(context.Background(), sandbox); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if sandbox.ID == uuid.Nil {
		t.Error("expected Insert to assign an ID")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestInsert_ActiveNameConflict(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO sandboxes`).
		WillReturnError(&pq.Error{Code: uniqueViolation, Message: "duplicate key value violates unique constraint"})

	err := s.Insert(context.Background(), &store.Sandbox{Name: "alpha", Status: store.SandboxStatusActive})
	if !errors.Is(err, store.ErrNameConflict) {
		t.Errorf("expected ErrNameConflict, got %v", err)
	}
}

func TestInsert_DatabaseError(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectExec(`INSERT INTO sandboxes`).WillReturnError(errors.New("connection reset"))

	err := s.Insert(context.Background(), &store.Sandbox{Name: "alpha"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, store.ErrNameConflict) {
		t.Error("generic database error must not be reported as a conflict")
	}
}

func TestFindByName_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	createdAt := time.Now().UTC().Truncate(time.Second)
	terminatedAt := createdAt.Add(time.Minute)

	mock.ExpectQuery(`SELECT (.+) FROM sandboxes WHERE name = \$1 ORDER BY created_at DESC LIMIT 1`).
		WithArgs("beta").
		WillReturnRows(sqlmock.NewRows(sandboxRowColumns).
			AddRow(id.String(), "beta", "TERMINATED", "stack-1", createdAt, createdAt.Add(time.Hour), terminatedAt))

	sandbox, err := s.FindByName(context.Background(), "beta")
	if err != nil {
		t.Fatalf("FindByName failed: %v", err)
	}
	if sandbox.ID != id {
		t.Errorf("got ID %v, want %v", sandbox.ID, id)
	}
	if sandbox.Status != store.SandboxStatusTerminated {
		t.Errorf("got status %s, want TERMINATED", sandbox.Status)
	}
	if sandbox.TerminatedAt == nil || !sandbox.TerminatedAt.Equal(terminatedAt) {
		t.Errorf("got TerminatedAt %v, want %v", sandbox.TerminatedAt, terminatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestFindByName_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT (.+) FROM sandboxes WHERE name = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	sandbox, err := s.FindByName(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if sandbox != nil {
		t.Error("expected nil sandbox")
	}
}

func TestListAll(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM sandboxes ORDER BY created_at ASC`).
		WillReturnRows(sqlmock.NewRows(sandboxRowColumns).
			AddRow(uuid.NewString(), "alpha", "ACTIVE", "h1", now, now.Add(time.Hour), nil).
			AddRow(uuid.NewString(), "beta", "TERMINATED", "h2", now, now.Add(time.Hour), now))

	sandboxes, err := s.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll failed: %v", err)
	}
	if len(sandboxes) != 2 {
		t.Fatalf("expected 2 sandboxes, got %d", len(sandboxes))
	}
	if sandboxes[0].TerminatedAt != nil {
		t.Error("expected nil TerminatedAt for active sandbox")
	}
	if sandboxes[1].Name != "beta" {
		t.Errorf("got name %s, want beta", sandboxes[1].Name)
	}
}

func TestListActive_FiltersByStatus(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT (.+) FROM sandboxes WHERE status = \$1`).
		WithArgs(store.SandboxStatusActive).
		WillReturnRows(sqlmock.NewRows(sandboxRowColumns).
			AddRow(uuid.NewString(), "alpha", "ACTIVE", "h1", now, now.Add(time.Hour), nil))

	sandboxes, err := s.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive failed: %v", err)
	}
	if len(sandboxes) != 1 || !sandboxes[0].IsActive() {
		t.Errorf("expected one active sandbox, got %+v", sandboxes)
	}
}

func TestUpdateStatus(t *testing.T) {
	tests := []struct {
		name      string
		mockSetup func(sqlmock.Sqlmock)
		wantErr   error
	}{
		{
			name: "Terminates active record",
			mockSetup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(`UPDATE sandboxes`).
					WithArgs(store.SandboxStatusTerminated, "alpha", store.SandboxStatusActive).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "Already terminated is a no-op",
			mockSetup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(`UPDATE sandboxes`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				m.ExpectQuery(`SELECT EXISTS`).
					WithArgs("alpha").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
		},
		{
			name: "Unknown name",
			mockSetup: func(m sqlmock.Sqlmock) {
				m.ExpectExec(`UPDATE sandboxes`).
					WillReturnResult(sqlmock.NewResult(0, 0))
				m.ExpectQuery(`SELECT EXISTS`).
					WithArgs("alpha").
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			wantErr: store.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			defer s.db.Close()
			tt.mockSetup(mock)

			err := s.UpdateStatus(context.Background(), "alpha", store.SandboxStatusTerminated)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestUpdateStatus_RejectsReactivation(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	err := s.UpdateStatus(context.Background(), "alpha", store.SandboxStatusActive)
	if !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database calls: %v", err)
	}
}
