// Package gateway wraps the external provisioning backends that turn a
// sandbox name into running infrastructure and back.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"sandplane/internal/store"
)

var (
	// ErrProvisioningFailure wraps any backend error raised while creating a sandbox.
	ErrProvisioningFailure = errors.New("provisioning failed")

	// ErrDeprovisionFailure wraps any backend error raised while tearing a sandbox down.
	ErrDeprovisionFailure = errors.New("deprovisioning failed")

	// ErrInvalidName is returned for names no backend can accept.
	ErrInvalidName = errors.New("invalid sandbox name")
)

// Handle is an opaque reference to provisioned infrastructure.
type Handle string

// Gateway issues create and destroy calls against a provisioning backend.
type Gateway interface {
	// Create provisions infrastructure tagged with name.
	// On success the returned status is ACTIVE.
	Create(ctx context.Context, name string) (Handle, store.SandboxStatus, error)

	// Destroy requests teardown of the infrastructure behind handle.
	// It does not wait for the backend to finish.
	Destroy(ctx context.Context, handle Handle) (store.SandboxStatus, error)
}

// CloudFormation stack names are the strictest of the supported backends.
var namePattern = regexp.MustCompile(`^[a-zA-Z][-a-zA-Z0-9]{0,127}$`)

// ValidateName checks that name is usable by every backend.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must start with a letter and contain only letters, digits and hyphens (max 128)", ErrInvalidName, name)
	}
	return nil
}

// ProvisioningError wraps err as ErrProvisioningFailure for name.
func ProvisioningError(name string, err error) error {
	return fmt.Errorf("%w: sandbox %s: %w", ErrProvisioningFailure, name, err)
}

// DeprovisionError wraps err as ErrDeprovisionFailure for handle.
func DeprovisionError(handle Handle, err error) error {
	return fmt.Errorf("%w: handle %s: %w", ErrDeprovisionFailure, handle, err)
}
