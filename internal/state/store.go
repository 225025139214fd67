// Package state persists execution progress as an append-only transition
// log, one new version per state transition. Resumption is guarded by an
// exclusive, time-bounded lease per execution id.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NSvoltage/secureflow/pkg/types"
)

// ErrNotFound is returned when no state exists for an execution id.
var ErrNotFound = errors.New("execution not found")

// StateConflictError reports a concurrency conflict: a resume attempt
// against an execution whose lease is held by someone else, or a save
// carrying a stale version. It is surfaced to the caller and never
// retried automatically.
type StateConflictError struct {
	ExecutionID string
	Holder      string
	// StaleVersion is the caller's version when a save lost the race.
	StaleVersion int
}

func (e *StateConflictError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("execution %s is leased by %s", e.ExecutionID, e.Holder)
	}
	return fmt.Sprintf("execution %s was modified concurrently (stale version %d)", e.ExecutionID, e.StaleVersion)
}

// IsConflict reports whether err is a StateConflictError.
func IsConflict(err error) bool {
	var e *StateConflictError
	return errors.As(err, &e)
}

// Store persists execution state. Save appends a new version; earlier
// versions are never overwritten. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save appends state as a new version and stamps the assigned version
	// and update time onto the passed value. The passed state must carry
	// the version it was loaded at (zero for a new execution); a stale
	// version fails with StateConflictError.
	Save(ctx context.Context, state *types.ExecutionState) error

	// Load returns the latest persisted version for an execution id.
	Load(ctx context.Context, executionID string) (*types.ExecutionState, error)

	// History returns every persisted version in ascending version order.
	History(ctx context.Context, executionID string) ([]*types.ExecutionState, error)

	// List returns the latest version of every known execution.
	List(ctx context.Context) ([]*types.ExecutionState, error)

	// AcquireLease claims the exclusive resume lease for an execution.
	// A live lease held by another holder fails with StateConflictError.
	// Re-acquiring a lease you already hold extends it.
	AcquireLease(ctx context.Context, executionID, holder string, ttl time.Duration) (*types.Lease, error)

	// ReleaseLease drops the lease if held by holder.
	ReleaseLease(ctx context.Context, executionID, holder string) error

	Close() error
}
