package modules

import (
	"fmt"

	"github.com/archspace/archspace/pkg/core"
)

// SearchSpaceFn builds one sample of a search space in s and returns its
// external inputs, outputs and the hyperparameters it wants to expose.
type SearchSpaceFn func(s *core.Scope) (core.Inputs, core.Outputs, map[string]*core.Hyperparameter, error)

// SearchSpace is one freshly built, not yet specified sample.
type SearchSpace struct {
	Scope           *core.Scope
	Inputs          core.Inputs
	Outputs         core.Outputs
	Hyperparameters map[string]*core.Hyperparameter

	// boundary names the identity modules wrapping Inputs and Outputs.
	boundary map[string]bool
}

// IsBoundary reports whether the named module is one of the identity modules
// the factory wrapped around the sample's inputs and outputs.
func (sp *SearchSpace) IsBoundary(name string) bool {
	return sp != nil && sp.boundary[name]
}

// SearchSpaceFactory produces fresh samples of a search space.
type SearchSpaceFactory struct {
	fn         SearchSpaceFn
	scope      *core.Scope
	resetScope bool
}

// FactoryOption configures a SearchSpaceFactory.
type FactoryOption func(f *SearchSpaceFactory)

// WithoutScopeReset keeps previous samples in the scope instead of resetting
// it on every GetSearchSpace call.
func WithoutScopeReset() FactoryOption {
	return func(f *SearchSpaceFactory) {
		f.resetScope = false
	}
}

// WithScope builds samples in s instead of a scope owned by the factory.
func WithScope(s *core.Scope) FactoryOption {
	return func(f *SearchSpaceFactory) {
		if s != nil {
			f.scope = s
		}
	}
}

// NewSearchSpaceFactory creates a factory for fn.
func NewSearchSpaceFactory(fn SearchSpaceFn, opts ...FactoryOption) *SearchSpaceFactory {
	f := &SearchSpaceFactory{fn: fn, resetScope: true}
	for _, opt := range opts {
		opt(f)
	}
	if f.scope == nil {
		f.scope = core.NewScope()
	}
	return f
}

// Scope returns the scope samples are built in.
func (f *SearchSpaceFactory) Scope() *core.Scope {
	return f.scope
}

// GetSearchSpace builds a new sample. Every external input and output is
// wrapped in an identity module so the returned handles never belong to a
// substitution module.
func (f *SearchSpaceFactory) GetSearchSpace() (*SearchSpace, error) {
	if f.fn == nil {
		return nil, core.NewContractError("search space factory has no function", nil)
	}
	if f.resetScope {
		f.scope.Reset()
	}

	inputs, outputs, hyperps, err := f.fn(f.scope)
	if err != nil {
		return nil, fmt.Errorf("failed to build search space: %w", err)
	}

	buffered := &SearchSpace{
		Scope:           f.scope,
		Inputs:          make(core.Inputs, len(inputs)),
		Outputs:         make(core.Outputs, len(outputs)),
		Hyperparameters: hyperps,
		boundary:        make(map[string]bool, len(inputs)+len(outputs)),
	}
	if buffered.Hyperparameters == nil {
		buffered.Hyperparameters = make(map[string]*core.Hyperparameter)
	}

	for _, name := range inputs.Names() {
		b, err := Identity(f.scope, 1)
		if err != nil {
			return nil, err
		}
		if err := b.Out().Connect(inputs[name]); err != nil {
			return nil, fmt.Errorf("failed to buffer input %s: %w", name, err)
		}
		buffered.Inputs[name] = b.In()
		buffered.boundary[b.In().Module().Name()] = true
	}
	for _, name := range outputs.Names() {
		b, err := Identity(f.scope, 1)
		if err != nil {
			return nil, err
		}
		if err := outputs[name].Connect(b.In()); err != nil {
			return nil, fmt.Errorf("failed to buffer output %s: %w", name, err)
		}
		buffered.Outputs[name] = b.Out()
		buffered.boundary[b.Out().Module().Name()] = true
	}
	return buffered, nil
}
