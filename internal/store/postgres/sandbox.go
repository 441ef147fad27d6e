package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sandplane/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// uniqueViolation is the SQLSTATE raised by the partial unique index on active names.
const uniqueViolation = "23505"

const sandboxColumns = "id, name, status, handle, created_at, expiry_time, terminated_at"

// Insert adds a new sandbox row.
// The partial unique index turns a second ACTIVE row for the same name into ErrNameConflict.
func (s *Store) Insert(ctx context.Context, sandbox *store.Sandbox) error {
	if sandbox.ID == uuid.Nil {
		sandbox.ID = uuid.New()
	}

	query := `
		INSERT INTO sandboxes (id, name, status, handle, created_at, expiry_time)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		sandbox.ID,
		sandbox.Name,
		sandbox.Status,
		sandbox.Handle,
		sandbox.CreatedAt,
		sandbox.ExpiryTime,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", store.ErrNameConflict, sandbox.Name)
		}
		return fmt.Errorf("failed to insert sandbox %s: %w", sandbox.Name, err)
	}

	return nil
}

// FindByName returns the newest row for the name.
func (s *Store) FindByName(ctx context.Context, name string) (*store.Sandbox, error) {
	query := "SELECT " + sandboxColumns + " FROM sandboxes WHERE name = $1 ORDER BY created_at DESC LIMIT 1"

	sandbox, err := scanSandbox(s.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", store.ErrNotFound, name)
		}
		return nil, err
	}

	return sandbox, nil
}

func (s *Store) ListAll(ctx context.Context) ([]store.Sandbox, error) {
	return s.list(ctx, "SELECT "+sandboxColumns+" FROM sandboxes ORDER BY created_at ASC")
}

func (s *Store) ListActive(ctx context.Context) ([]store.Sandbox, error) {
	return s.list(ctx, "SELECT "+sandboxColumns+" FROM sandboxes WHERE status = $1 ORDER BY expiry_time ASC", store.SandboxStatusActive)
}

// UpdateStatus terminates the ACTIVE row for the name.
// If only terminated rows exist the call succeeds without touching them.
func (s *Store) UpdateStatus(ctx context.Context, name string, status store.SandboxStatus) error {
	if status != store.SandboxStatusTerminated {
		return fmt.Errorf("%w: %s", store.ErrInvalidTransition, status)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sandboxes
		SET status = $1, terminated_at = NOW()
		WHERE name = $2 AND status = $3
	`, status, name, store.SandboxStatusActive)
	if err != nil {
		return fmt.Errorf("failed to update sandbox %s: %w", name, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	err = s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM sandboxes WHERE name = $1)", name).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}

	return nil
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]store.Sandbox, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sandboxes []store.Sandbox
	for rows.Next() {
		sandbox, err := scanSandbox(rows)
		if err != nil {
			return nil, err
		}
		sandboxes = append(sandboxes, *sandbox)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sandboxes, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSandbox(row rowScanner) (*store.Sandbox, error) {
	var sandbox store.Sandbox
	var terminatedAt sql.NullTime

	err := row.Scan(
		&sandbox.ID,
		&sandbox.Name,
		&sandbox.Status,
		&sandbox.Handle,
		&sandbox.CreatedAt,
		&sandbox.ExpiryTime,
		&terminatedAt,
	)
	if err != nil {
		return nil, err
	}

	if terminatedAt.Valid {
		t := terminatedAt.Time
		sandbox.TerminatedAt = &t
	}

	return &sandbox, nil
}
