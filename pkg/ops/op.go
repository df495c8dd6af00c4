package ops

import (
	"fmt"
	"maps"
	"slices"

	"github.com/archspace/archspace/pkg/core"
)

// CompileFunc realizes an operator from its hyperparameter values.
type CompileFunc func(hv map[string]any) (ForwardFunc, error)

// ForwardFunc computes output values from input values.
type ForwardFunc func(in map[string]any) (map[string]any, error)

// Op is a leaf module backed by a CompileFunc.
type Op struct {
	core.BaseModule
	kind    string
	compile CompileFunc
	forward ForwardFunc
}

// New registers a leaf operator of the given kind with the given ports and
// hyperparameters.
func New(
	s *core.Scope,
	kind string,
	inNames, outNames []string,
	hyperps map[string]*core.Hyperparameter,
	fn CompileFunc,
) (*Op, error) {
	if fn == nil {
		return nil, core.NewContractError(fmt.Sprintf("operator %s has no compile function", kind), nil)
	}
	for _, names := range [][]string{inNames, outNames} {
		if len(slices.Compact(slices.Sorted(slices.Values(names)))) != len(names) {
			return nil, core.NewContractError(fmt.Sprintf("operator %s declares duplicate ports %v", kind, names), nil).
				WithCode(core.ErrCodeDuplicatePort)
		}
	}

	op := &Op{kind: kind, compile: fn}
	op.Init(s, op, kind)
	for _, name := range inNames {
		op.RegisterInput(name)
	}
	for _, name := range outNames {
		op.RegisterOutput(name)
	}
	for _, name := range slices.Sorted(maps.Keys(hyperps)) {
		op.RegisterHyperparameter(name, hyperps[name], nil)
	}
	return op, nil
}

// SISO creates a single-input single-output operator and returns its ports.
func SISO(s *core.Scope, kind string, hyperps map[string]*core.Hyperparameter, fn CompileFunc) (core.Fragment, error) {
	op, err := New(s, kind, []string{"In"}, []string{"Out"}, hyperps, fn)
	if err != nil {
		return core.Fragment{}, err
	}
	return op.IO(), nil
}

// Kind returns the operator kind.
func (op *Op) Kind() string { return op.kind }

// Compiled reports whether Compile has succeeded.
func (op *Op) Compiled() bool { return op.forward != nil }

// Compile runs the compile function once. It fails with a traversal error if
// a hyperparameter is still unassigned.
func (op *Op) Compile() error {
	if op.forward != nil {
		return nil
	}
	hv, err := op.HyperparameterValues()
	if err != nil {
		return err
	}
	fwd, err := op.compile(hv)
	if err != nil {
		return fmt.Errorf("failed to compile %s: %w", op.Name(), err)
	}
	if fwd == nil {
		return core.NewContractError("compile returned no forward function", nil).WithModule(op.Name())
	}
	op.forward = fwd
	return nil
}

// Forward reads every input, runs the operator and writes every output.
func (op *Op) Forward() error {
	if op.forward == nil {
		return core.NewTraversalError("operator has not been compiled", nil).
			WithCode(core.ErrCodeNotCompiled).WithModule(op.Name())
	}
	in, err := op.InputValues()
	if err != nil {
		return err
	}
	out, err := op.forward(in)
	if err != nil {
		return fmt.Errorf("failed to run %s: %w", op.Name(), err)
	}
	return op.SetOutputValues(out)
}
