package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NSvoltage/secureflow/pkg/types"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func sampleState(id string) *types.ExecutionState {
	return &types.ExecutionState{
		ID:              id,
		WorkflowName:    "test-and-report",
		WorkflowVersion: "1.0",
		Status:          types.ExecutionStatusPending,
		Inputs:          map[string]any{"branch": "main"},
		Steps: map[string]*types.StepRecord{
			"run-tests": {StepID: "run-tests", Status: types.StepStatusPending},
		},
		CreatedAt: time.Now().UTC(),
	}
}

func TestStore_SaveAssignsVersions(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			state := sampleState("exec-1")

			require.NoError(t, store.Save(ctx, state))
			assert.Equal(t, 1, state.Version)

			state.Status = types.ExecutionStatusRunning
			require.NoError(t, store.Save(ctx, state))
			assert.Equal(t, 2, state.Version)

			loaded, err := store.Load(ctx, "exec-1")
			require.NoError(t, err)
			assert.Equal(t, 2, loaded.Version)
			assert.Equal(t, types.ExecutionStatusRunning, loaded.Status)
		})
	}
}

func TestStore_SaveRejectsStaleVersion(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			current := sampleState("exec-1")
			require.NoError(t, store.Save(ctx, current))

			stale := current.Clone()
			current.Status = types.ExecutionStatusRunning
			require.NoError(t, store.Save(ctx, current))

			stale.Status = types.ExecutionStatusFailed
			err := store.Save(ctx, stale)
			require.Error(t, err)
			assert.True(t, IsConflict(err))

			// The losing write appended nothing.
			history, histErr := store.History(ctx, "exec-1")
			require.NoError(t, histErr)
			assert.Len(t, history, 2)
		})
	}
}

func TestStore_HistoryIsAppendOnly(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			state := sampleState("exec-1")

			require.NoError(t, store.Save(ctx, state))
			state.Status = types.ExecutionStatusRunning
			require.NoError(t, store.Save(ctx, state))
			state.Status = types.ExecutionStatusCompleted
			require.NoError(t, store.Save(ctx, state))

			history, err := store.History(ctx, "exec-1")
			require.NoError(t, err)
			require.Len(t, history, 3)

			assert.Equal(t, types.ExecutionStatusPending, history[0].Status)
			assert.Equal(t, types.ExecutionStatusRunning, history[1].Status)
			assert.Equal(t, types.ExecutionStatusCompleted, history[2].Status)
			for i, version := range history {
				assert.Equal(t, i+1, version.Version)
			}
		})
	}
}

func TestStore_LoadUnknownExecution(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Load(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.History(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_List(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, sampleState("exec-1")))
			require.NoError(t, store.Save(ctx, sampleState("exec-2")))

			all, err := store.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}

func TestStore_LeaseConflict(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			lease, err := store.AcquireLease(ctx, "exec-1", "engine-a", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, "engine-a", lease.Holder)

			// A second holder fails fast rather than silently racing.
			_, err = store.AcquireLease(ctx, "exec-1", "engine-b", time.Minute)
			require.Error(t, err)
			assert.True(t, IsConflict(err))

			var conflict *StateConflictError
			require.ErrorAs(t, err, &conflict)
			assert.Equal(t, "engine-a", conflict.Holder)

			// The original holder can extend its own lease.
			_, err = store.AcquireLease(ctx, "exec-1", "engine-a", time.Minute)
			assert.NoError(t, err)
		})
	}
}

func TestStore_LeaseReleaseAndReacquire(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.AcquireLease(ctx, "exec-1", "engine-a", time.Minute)
			require.NoError(t, err)

			// Releasing with the wrong holder is a no-op.
			require.NoError(t, store.ReleaseLease(ctx, "exec-1", "engine-b"))
			_, err = store.AcquireLease(ctx, "exec-1", "engine-b", time.Minute)
			require.Error(t, err)

			require.NoError(t, store.ReleaseLease(ctx, "exec-1", "engine-a"))
			_, err = store.AcquireLease(ctx, "exec-1", "engine-b", time.Minute)
			assert.NoError(t, err)
		})
	}
}

func TestStore_ExpiredLeaseIsReacquirable(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.AcquireLease(ctx, "exec-1", "engine-a", 10*time.Millisecond)
			require.NoError(t, err)

			time.Sleep(30 * time.Millisecond)

			lease, err := store.AcquireLease(ctx, "exec-1", "engine-b", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, "engine-b", lease.Holder)
		})
	}
}

func TestStore_SavedStateIsIsolated(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			state := sampleState("exec-1")
			require.NoError(t, store.Save(ctx, state))

			// Mutating the caller's copy must not affect the stored version.
			state.Steps["run-tests"].Status = types.StepStatusFailed

			loaded, err := store.Load(ctx, "exec-1")
			require.NoError(t, err)
			assert.Equal(t, types.StepStatusPending, loaded.Steps["run-tests"].Status)
		})
	}
}
