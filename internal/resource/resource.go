// Package resource enforces the concurrency, time, and memory ceilings of
// the active security profile around every executor invocation.
package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/NSvoltage/secureflow/pkg/types"
)

// AcquireMode controls behavior when the concurrency ceiling is reached.
type AcquireMode int

const (
	// ModeBlock queues the request until a slot frees or the context ends.
	ModeBlock AcquireMode = iota
	// ModeReject fails the request immediately with a
	// ResourceExhaustionError.
	ModeReject
)

// ResourceExhaustionError reports a ceiling breach. It is non-retryable
// for the affected step.
type ResourceExhaustionError struct {
	Resource string
	Limit    int64
	Reason   string
}

func (e *ResourceExhaustionError) Error() string {
	return fmt.Sprintf("resource exhaustion (%s, limit %d): %s", e.Resource, e.Limit, e.Reason)
}

// NewExhaustion creates a ResourceExhaustionError.
func NewExhaustion(resource string, limit int64, reason string) *ResourceExhaustionError {
	return &ResourceExhaustionError{Resource: resource, Limit: limit, Reason: reason}
}

// Manager bounds concurrent step execution with a weighted semaphore sized
// to the profile's ceiling and stamps wall-clock deadlines onto executor
// contexts.
type Manager struct {
	sem      *semaphore.Weighted
	capacity int64
	mode     AcquireMode

	maxMemoryMB     int
	maxStepDuration time.Duration
}

// NewManager builds a Manager from a security profile.
func NewManager(profile *types.Profile, mode AcquireMode) *Manager {
	capacity := profile.MaxConcurrent
	if capacity <= 0 {
		capacity = 1
	}
	return &Manager{
		sem:             semaphore.NewWeighted(capacity),
		capacity:        capacity,
		mode:            mode,
		maxMemoryMB:     profile.MaxMemoryMB,
		maxStepDuration: profile.MaxStepDuration.Std(),
	}
}

// Capacity returns the concurrency ceiling.
func (m *Manager) Capacity() int64 { return m.capacity }

// Acquire claims one execution slot. In ModeBlock the call waits until a
// slot frees or ctx is done; in ModeReject a full semaphore fails fast.
// The returned release function must be called exactly once.
func (m *Manager) Acquire(ctx context.Context) (func(), error) {
	switch m.mode {
	case ModeReject:
		if !m.sem.TryAcquire(1) {
			return nil, NewExhaustion("concurrency", m.capacity, "ceiling reached")
		}
	default:
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return nil, NewExhaustion("concurrency", m.capacity, "wait for execution slot aborted: "+err.Error())
		}
	}
	return func() { m.sem.Release(1) }, nil
}

// StepContext derives the context an executor runs under: the step's own
// timeout when declared, capped by the profile's per-step ceiling.
func (m *Manager) StepContext(ctx context.Context, stepTimeout time.Duration) (context.Context, context.CancelFunc) {
	limit := m.maxStepDuration
	if stepTimeout > 0 && (limit <= 0 || stepTimeout < limit) {
		limit = stepTimeout
	}
	if limit <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, limit)
}

// CheckMemory validates a step's declared memory requirement against the
// profile ceiling. The engine has no hard per-process enforcement; the
// check rejects declarations that could never be satisfied.
func (m *Manager) CheckMemory(requestedMB int) error {
	if requestedMB <= 0 || m.maxMemoryMB <= 0 {
		return nil
	}
	if requestedMB > m.maxMemoryMB {
		return NewExhaustion("memory", int64(m.maxMemoryMB), fmt.Sprintf("step requests %d MB", requestedMB))
	}
	return nil
}

// IsExhaustion reports whether err is a ResourceExhaustionError.
func IsExhaustion(err error) bool {
	var e *ResourceExhaustionError
	return errors.As(err, &e)
}
