// Package store contains the database layer for sandplane.
package store

import (
	"time"

	"github.com/google/uuid"
)

// SandboxStatus represents the lifecycle state of a sandbox.
type SandboxStatus string

const (
	SandboxStatusActive     SandboxStatus = "ACTIVE"
	SandboxStatusTerminated SandboxStatus = "TERMINATED"
)

// Sandbox is the persisted record of a provisioned sandbox.
// Rows are never deleted; terminated sandboxes are kept as history.
type Sandbox struct {
	ID           uuid.UUID
	Name         string
	Status       SandboxStatus
	Handle       string // Backend reference (stack id, namespace/pod, container id)
	CreatedAt    time.Time
	ExpiryTime   time.Time
	TerminatedAt *time.Time
}

// IsActive reports whether the sandbox still holds provisioned infrastructure.
func (s *Sandbox) IsActive() bool {
	return s.Status == SandboxStatusActive
}
