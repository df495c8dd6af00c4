package ops

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/archspace/archspace/pkg/core"
)

// Spec describes a single-input single-output operator kind.
type Spec struct {
	// Params are the hyperparameter names the operator requires.
	Params []string

	Compile CompileFunc
}

// CombinerFunc returns the forward function of an n-input combiner.
type CombinerFunc func(n int) ForwardFunc

// Registry maps operator kinds to their implementations.
type Registry struct {
	mu        sync.RWMutex
	ops       map[string]Spec
	combiners map[string]CombinerFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ops:       make(map[string]Spec),
		combiners: make(map[string]CombinerFunc),
	}
}

// DefaultRegistry returns a new registry holding the reference operators:
// scale(factor), bias(amount), relu and square, and the combiners sum, max
// and mean.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register("scale", Spec{Params: []string{"factor"}, Compile: scale})
	_ = r.Register("bias", Spec{Params: []string{"amount"}, Compile: bias})
	_ = r.Register("relu", Spec{Compile: relu})
	_ = r.Register("square", Spec{Compile: square})
	_ = r.RegisterCombiner("sum", sum)
	_ = r.RegisterCombiner("max", maximum)
	_ = r.RegisterCombiner("mean", mean)
	return r
}

// Register adds an operator kind.
func (r *Registry) Register(kind string, spec Spec) error {
	if spec.Compile == nil {
		return fmt.Errorf("operator %s has no compile function", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[kind]; exists {
		return fmt.Errorf("operator %s already registered", kind)
	}
	r.ops[kind] = spec
	return nil
}

// RegisterCombiner adds a combiner kind.
func (r *Registry) RegisterCombiner(kind string, fn CombinerFunc) error {
	if fn == nil {
		return fmt.Errorf("combiner %s has no function", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.combiners[kind]; exists {
		return fmt.Errorf("combiner %s already registered", kind)
	}
	r.combiners[kind] = fn
	return nil
}

// Kinds returns the registered operator kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.ops))
}

// CombinerKinds returns the registered combiner kinds, sorted.
func (r *Registry) CombinerKinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.combiners))
}

// Spec returns the operator registered under kind.
func (r *Registry) Spec(kind string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.ops[kind]
	return spec, ok
}

// Build instantiates an operator of the given kind. hyperps must provide
// exactly the parameters the kind declares.
func (r *Registry) Build(s *core.Scope, kind string, hyperps map[string]*core.Hyperparameter) (core.Fragment, error) {
	spec, ok := r.Spec(kind)
	if !ok {
		return core.Fragment{}, fmt.Errorf("unknown operator %q", kind)
	}
	got := slices.Sorted(maps.Keys(hyperps))
	want := slices.Sorted(slices.Values(spec.Params))
	if !slices.Equal(got, want) {
		return core.Fragment{}, core.NewContractError(
			fmt.Sprintf("operator %s takes hyperparameters %v, got %v", kind, want, got), nil,
		).WithCode(core.ErrCodeBadValue)
	}
	return SISO(s, kind, hyperps, spec.Compile)
}

// BuildCombiner instantiates an n-input combiner with inputs In0..In<n-1> and
// output Out.
func (r *Registry) BuildCombiner(s *core.Scope, kind string, n int) (core.Fragment, error) {
	r.mu.RLock()
	fn, ok := r.combiners[kind]
	r.mu.RUnlock()
	if !ok {
		return core.Fragment{}, fmt.Errorf("unknown combiner %q", kind)
	}
	if n <= 0 {
		return core.Fragment{}, core.NewContractError(fmt.Sprintf("combiner %s needs a positive arity, got %d", kind, n), nil).
			WithCode(core.ErrCodeNonPositiveCount)
	}
	inNames := make([]string, n)
	for i := range inNames {
		inNames[i] = "In" + strconv.Itoa(i)
	}
	op, err := New(s, kind, inNames, []string{"Out"}, nil, func(map[string]any) (ForwardFunc, error) {
		return fn(n), nil
	})
	if err != nil {
		return core.Fragment{}, err
	}
	return op.IO(), nil
}
