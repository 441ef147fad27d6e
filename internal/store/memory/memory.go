// Package memory implements store.SandboxStore in process memory.
// It backs local development (database_url "memory://") and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"sandplane/internal/store"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Store keeps every record for a name, oldest first. Slices are replaced,
// never mutated, so readers can hold them without locking.
type Store struct {
	records cmap.ConcurrentMap[string, []store.Sandbox]
	now     func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		records: cmap.New[[]store.Sandbox](),
		now:     time.Now,
	}
}

// Insert appends a record unless the newest one for the name is still ACTIVE.
// The check and the write happen under the shard lock.
func (s *Store) Insert(_ context.Context, sandbox *store.Sandbox) error {
	if sandbox.ID == uuid.Nil {
		sandbox.ID = uuid.New()
	}

	conflict := false
	s.records.Upsert(sandbox.Name, nil, func(exist bool, history []store.Sandbox, _ []store.Sandbox) []store.Sandbox {
		if exist && len(history) > 0 && history[len(history)-1].IsActive() {
			conflict = true
			return history
		}

		next := make([]store.Sandbox, len(history), len(history)+1)
		copy(next, history)
		return append(next, *sandbox)
	})

	if conflict {
		return fmt.Errorf("%w: %s", store.ErrNameConflict, sandbox.Name)
	}
	return nil
}

func (s *Store) FindByName(_ context.Context, name string) (*store.Sandbox, error) {
	history, ok := s.records.Get(name)
	if !ok || len(history) == 0 {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}

	latest := history[len(history)-1]
	return &latest, nil
}

func (s *Store) ListAll(_ context.Context) ([]store.Sandbox, error) {
	var all []store.Sandbox
	for _, history := range s.records.Items() {
		all = append(all, history...)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all, nil
}

func (s *Store) ListActive(ctx context.Context) ([]store.Sandbox, error) {
	all, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]store.Sandbox, 0, len(all))
	for _, sandbox := range all {
		if sandbox.IsActive() {
			active = append(active, sandbox)
		}
	}
	return active, nil
}

// UpdateStatus terminates the newest record for the name.
func (s *Store) UpdateStatus(_ context.Context, name string, status store.SandboxStatus) error {
	if status != store.SandboxStatusTerminated {
		return fmt.Errorf("%w: %s", store.ErrInvalidTransition, status)
	}

	// Records are never removed, so a name seen here stays present for the Upsert below.
	if history, ok := s.records.Get(name); !ok || len(history) == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, name)
	}

	s.records.Upsert(name, nil, func(_ bool, history []store.Sandbox, _ []store.Sandbox) []store.Sandbox {
		last := history[len(history)-1]
		if !last.IsActive() {
			return history
		}

		terminatedAt := s.now().UTC()
		last.Status = store.SandboxStatusTerminated
		last.TerminatedAt = &terminatedAt

		next := make([]store.Sandbox, len(history))
		copy(next, history)
		next[len(next)-1] = last
		return next
	})

	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}
