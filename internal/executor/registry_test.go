package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NSvoltage/secureflow/pkg/types"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewCommandExecutor()))

	e, err := r.Get(types.StepKindCommand)
	require.NoError(t, err)
	assert.Equal(t, types.StepKindCommand, e.Kind())
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewAssertExecutor()))
	err := r.Register(NewAssertExecutor())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegistryRejectsNil(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(nil))
}

func TestRegistryUnknownKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get(types.StepKindTemplate)
	require.Error(t, err)

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, ErrCodeNotFound, execErr.Code)
}

func TestDefaultRegistryCoversAllKinds(t *testing.T) {
	r := NewDefaultRegistry()
	for _, kind := range []types.StepKind{
		types.StepKindCommand,
		types.StepKindAssert,
		types.StepKindTemplate,
		types.StepKindConditional,
		types.StepKindDelegated,
	} {
		e, err := r.Get(kind)
		require.NoError(t, err)
		assert.Equal(t, kind, e.Kind())
	}
	assert.Len(t, r.Kinds(), 5)
}
