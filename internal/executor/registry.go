package executor

import (
	"fmt"
	"sync"

	"github.com/NSvoltage/secureflow/pkg/types"
)

// Registry is the flat dispatch table of executors keyed by step kind.
type Registry struct {
	mu        sync.RWMutex
	executors map[types.StepKind]Executor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[types.StepKind]Executor)}
}

// Register adds an executor for its kind. Registering the same kind twice
// is an error.
func (r *Registry) Register(e Executor) error {
	if e == nil {
		return fmt.Errorf("cannot register a nil executor")
	}
	kind := e.Kind()
	if !types.ValidStepKind(kind) {
		return fmt.Errorf("cannot register executor for unknown kind: %s", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.executors[kind]; exists {
		return fmt.Errorf("executor already registered for kind: %s", kind)
	}
	r.executors[kind] = e
	return nil
}

// MustRegister registers an executor and panics on error. Used during
// engine construction where a duplicate registration is a programming
// mistake.
func (r *Registry) MustRegister(e Executor) {
	if err := r.Register(e); err != nil {
		panic(err)
	}
}

// NewDefaultRegistry returns a Registry with all built-in executors
// registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(NewCommandExecutor())
	r.MustRegister(NewAssertExecutor())
	r.MustRegister(NewTemplateExecutor())
	r.MustRegister(NewConditionalExecutor())
	r.MustRegister(NewDelegatedExecutor())
	return r
}

// Get returns the executor for a kind, or an error when none is
// registered.
func (r *Registry) Get(kind types.StepKind) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.executors[kind]
	if !ok {
		return nil, NewNotFoundError(string(kind))
	}
	return e, nil
}

// Kinds returns the registered step kinds.
func (r *Registry) Kinds() []types.StepKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]types.StepKind, 0, len(r.executors))
	for k := range r.executors {
		kinds = append(kinds, k)
	}
	return kinds
}
