package state

import (
	"context"
	"sync"
	"time"

	"github.com/NSvoltage/secureflow/pkg/types"
)

// MemoryStore keeps the transition log in memory. Used by tests and
// short-lived dry-run executions.
type MemoryStore struct {
	mu       sync.Mutex
	versions map[string][]*types.ExecutionState
	leases   map[string]*types.Lease
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		versions: make(map[string][]*types.ExecutionState),
		leases:   make(map[string]*types.Lease),
		now:      time.Now,
	}
}

func (s *MemoryStore) Save(_ context.Context, state *types.ExecutionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.Version != len(s.versions[state.ID]) {
		return &StateConflictError{ExecutionID: state.ID, StaleVersion: state.Version}
	}
	state.Version = len(s.versions[state.ID]) + 1
	state.UpdatedAt = s.now().UTC()
	s.versions[state.ID] = append(s.versions[state.ID], state.Clone())
	return nil
}

func (s *MemoryStore) Load(_ context.Context, executionID string) (*types.ExecutionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[executionID]
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions[len(versions)-1].Clone(), nil
}

func (s *MemoryStore) History(_ context.Context, executionID string) ([]*types.ExecutionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.versions[executionID]
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	out := make([]*types.ExecutionState, len(versions))
	for i, v := range versions {
		out[i] = v.Clone()
	}
	return out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]*types.ExecutionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.ExecutionState, 0, len(s.versions))
	for _, versions := range s.versions {
		out = append(out, versions[len(versions)-1].Clone())
	}
	return out, nil
}

func (s *MemoryStore) AcquireLease(_ context.Context, executionID, holder string, ttl time.Duration) (*types.Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if lease, ok := s.leases[executionID]; ok && !lease.Expired(now) && lease.Holder != holder {
		return nil, &StateConflictError{ExecutionID: executionID, Holder: lease.Holder}
	}
	lease := &types.Lease{
		ExecutionID: executionID,
		Holder:      holder,
		Expires:     now.Add(ttl),
	}
	s.leases[executionID] = lease
	out := *lease
	return &out, nil
}

func (s *MemoryStore) ReleaseLease(_ context.Context, executionID, holder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lease, ok := s.leases[executionID]; ok && lease.Holder == holder {
		delete(s.leases, executionID)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
