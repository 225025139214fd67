package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NSvoltage/secureflow/pkg/types"
)

func TestRecorder_ObserveStep(t *testing.T) {
	r := NewRecorder()

	r.ObserveStep(types.StepKindCommand, types.StepStatusCompleted, 120*time.Millisecond)
	r.ObserveStep(types.StepKindCommand, types.StepStatusCompleted, 80*time.Millisecond)
	r.ObserveStep(types.StepKindCommand, types.StepStatusFailed, 500*time.Millisecond)
	r.ObserveStep(types.StepKindAssert, types.StepStatusCompleted, 2*time.Millisecond)

	snap := r.Snapshot()
	assert.EqualValues(t, 3, snap.StepsByStatus[types.StepStatusCompleted])
	assert.EqualValues(t, 1, snap.StepsByStatus[types.StepStatusFailed])

	cmd, ok := snap.DurationsByKind[types.StepKindCommand]
	require.True(t, ok)
	assert.EqualValues(t, 3, cmd.Count)
	assert.GreaterOrEqual(t, cmd.MaxMs, int64(490))
	assert.Greater(t, cmd.P99Ms, cmd.P50Ms-1)
}

func TestRecorder_DurationClamping(t *testing.T) {
	r := NewRecorder()

	// Sub-millisecond and multi-hour durations stay inside histogram bounds.
	r.ObserveStep(types.StepKindAssert, types.StepStatusCompleted, time.Microsecond)
	r.ObserveStep(types.StepKindAssert, types.StepStatusCompleted, 5*time.Hour)

	snap := r.Snapshot()
	assert.EqualValues(t, 2, snap.DurationsByKind[types.StepKindAssert].Count)
}

func TestRecorder_Counters(t *testing.T) {
	r := NewRecorder()

	r.ObserveCache(true)
	r.ObserveCache(true)
	r.ObserveCache(false)
	r.ObserveSecurityRejection()
	r.ObserveRetry()
	r.ObserveExecution(types.ExecutionStatusCompleted)
	r.ObserveExecution(types.ExecutionStatusFailed)

	snap := r.Snapshot()
	assert.EqualValues(t, 2, snap.CacheHits)
	assert.EqualValues(t, 1, snap.CacheMisses)
	assert.EqualValues(t, 1, snap.SecurityRejections)
	assert.EqualValues(t, 1, snap.Retries)
	assert.EqualValues(t, 1, snap.ExecutionsByStatus[types.ExecutionStatusCompleted])
	assert.EqualValues(t, 1, snap.ExecutionsByStatus[types.ExecutionStatusFailed])
}

func TestRecorder_SnapshotIsCopy(t *testing.T) {
	r := NewRecorder()
	r.ObserveStep(types.StepKindCommand, types.StepStatusCompleted, time.Millisecond)

	snap := r.Snapshot()
	snap.StepsByStatus[types.StepStatusCompleted] = 99

	assert.EqualValues(t, 1, r.Snapshot().StepsByStatus[types.StepStatusCompleted])
}
