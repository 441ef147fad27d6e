package store

import (
	"context"
	"errors"
)

var (
	// ErrNameConflict is returned when an ACTIVE sandbox already uses the name.
	ErrNameConflict = errors.New("sandbox name already in use")

	// ErrNotFound is returned when no record exists for the name.
	ErrNotFound = errors.New("sandbox not found")

	// ErrInvalidTransition is returned for any status change other than
	// ACTIVE -> TERMINATED.
	ErrInvalidTransition = errors.New("invalid sandbox status transition")
)

// SandboxStore handles the persistence of sandbox records keyed by name.
type SandboxStore interface {
	// Insert persists a new record. It fails with ErrNameConflict if an
	// ACTIVE record with the same name exists. A zero ID is assigned.
	Insert(ctx context.Context, sandbox *Sandbox) error

	// FindByName returns the newest record for the name.
	FindByName(ctx context.Context, name string) (*Sandbox, error)

	// ListAll returns every record, terminated ones included.
	ListAll(ctx context.Context) ([]Sandbox, error)

	// ListActive returns the records that still hold infrastructure.
	ListActive(ctx context.Context) ([]Sandbox, error)

	// UpdateStatus moves the newest record for the name to status.
	// Setting TERMINATED on an already terminated record is a no-op.
	UpdateStatus(ctx context.Context, name string, status SandboxStatus) error

	// Ping checks that the backing storage is reachable.
	Ping(ctx context.Context) error
}
