package core

import (
	"fmt"
	"maps"
	"slices"
)

// SubstitutionFn builds the fragment that replaces a substitution module.
type SubstitutionFn func(args SubstitutionArgs) (Fragment, error)

// SubstitutionArgs carries the values a rewrite reads: every depended-on
// hyperparameter, and the resolved values of the inputs declared in
// SubstitutionConfig.InputArgs.
type SubstitutionArgs struct {
	Hyperparameters map[string]any
	Inputs          map[string]any
}

// Int returns hyperparameter name as an int.
func (a SubstitutionArgs) Int(name string) (int, error) {
	return AsInt(a.Hyperparameters[name])
}

// Bool returns hyperparameter name as a bool.
func (a SubstitutionArgs) Bool(name string) (bool, error) {
	return AsBool(a.Hyperparameters[name])
}

// Value returns hyperparameter name.
func (a SubstitutionArgs) Value(name string) any {
	return a.Hyperparameters[name]
}

// SubstitutionConfig describes a substitution module.
type SubstitutionConfig struct {
	// Name is the base used to derive the module name.
	Name string

	// Hyperparameters are the decisions the rewrite waits for, by local name.
	Hyperparameters map[string]*Hyperparameter

	// InputNames and OutputNames are the ports of the placeholder. The
	// replacement fragment must expose exactly these names.
	InputNames  []string
	OutputNames []string

	// InputArgs lists the inputs whose values are passed to Fn.
	InputArgs []string

	Fn SubstitutionFn
}

type substitutionState uint8

const (
	statePending substitutionState = iota
	stateFiring
	stateDone
	stateFailed
)

// SubstitutionModule is a placeholder that rewrites itself into the fragment
// returned by its substitution function once every hyperparameter it depends
// on is assigned. The upstream producers are rerouted into the replacement
// and the downstream consumers read from it; handles to the placeholder's
// ports resolve to the replacement's ports afterwards.
type SubstitutionModule struct {
	BaseModule
	fn        SubstitutionFn
	inputArgs []string
	state     substitutionState

	// gen is the scope generation the placeholder was created in.
	gen uint64
}

// NewSubstitutionModule creates the placeholder. If every hyperparameter is
// already assigned the substitution happens before it returns.
func NewSubstitutionModule(s *Scope, cfg SubstitutionConfig) (*SubstitutionModule, error) {
	if cfg.Fn == nil {
		return nil, NewContractError("substitution module requires a function", nil)
	}
	if err := checkNames("input", cfg.InputNames); err != nil {
		return nil, err
	}
	if err := checkNames("output", cfg.OutputNames); err != nil {
		return nil, err
	}
	for _, name := range cfg.InputArgs {
		if !slices.Contains(cfg.InputNames, name) {
			return nil, NewContractError(fmt.Sprintf("input argument %q is not a declared input", name), nil).
				WithCode(ErrCodePortMismatch)
		}
	}

	base := cfg.Name
	if base == "" {
		base = "Substitution"
	}
	m := &SubstitutionModule{fn: cfg.Fn, inputArgs: slices.Clone(cfg.InputArgs), gen: s.gen}
	m.Init(s, m, base)
	for _, name := range cfg.InputNames {
		m.RegisterInput(name)
	}
	for _, name := range cfg.OutputNames {
		m.RegisterOutput(name)
	}
	for _, name := range slices.Sorted(maps.Keys(cfg.Hyperparameters)) {
		m.RegisterHyperparameter(name, cfg.Hyperparameters[name], m.update)
	}

	if err := m.update(); err != nil {
		return nil, err
	}
	return m, nil
}

// Substitute creates a substitution module and returns its ports.
func Substitute(s *Scope, cfg SubstitutionConfig) (Fragment, error) {
	m, err := NewSubstitutionModule(s, cfg)
	if err != nil {
		return Fragment{}, err
	}
	return m.IO(), nil
}

// Done reports whether the module has been replaced.
func (m *SubstitutionModule) Done() bool {
	return m.state == stateDone
}

// Failed reports whether the rewrite returned an error. A failed module may
// be half rewritten; the scope must be discarded.
func (m *SubstitutionModule) Failed() bool {
	return m.state == stateFailed
}

// Compile always fails: a substitution module must be gone before a graph is
// compiled.
func (m *SubstitutionModule) Compile() error {
	return NewContractError("substitution module cannot be compiled", nil).
		WithCode(ErrCodeSubstitutionUnresolved).WithModule(m.name)
}

// Forward always fails, see Compile.
func (m *SubstitutionModule) Forward() error {
	return NewContractError("substitution module cannot be forwarded", nil).
		WithCode(ErrCodeSubstitutionUnresolved).WithModule(m.name)
}

// update fires the substitution if it is still pending and every
// hyperparameter has a value. The firing state guards against re-entry from
// assignments made while the replacement is being built.
func (m *SubstitutionModule) update() error {
	if m.state != statePending {
		return nil
	}
	if m.gen != m.scope.gen {
		return NewContractError("substitution module belongs to a scope that was reset", nil).
			WithCode(ErrCodeStaleScope).WithModule(m.name)
	}
	for _, h := range m.hyperps {
		if !h.HasValueAssigned() {
			return nil
		}
	}
	m.state = stateFiring

	values, err := m.fire()
	if err != nil {
		m.state = stateFailed
		return err
	}
	m.state = stateDone
	m.scope.listener.SubstitutionFired(m, values)
	return nil
}

// fire builds the replacement and rebinds the placeholder's ports to it.
func (m *SubstitutionModule) fire() (map[string]any, error) {
	args := SubstitutionArgs{
		Hyperparameters: make(map[string]any, len(m.hyperps)),
		Inputs:          make(map[string]any, len(m.inputArgs)),
	}
	for name, h := range m.hyperps {
		args.Hyperparameters[name], _ = h.Value()
	}
	for _, name := range m.inputArgs {
		if v, ok := m.inputs[name].Value(); ok {
			args.Inputs[name] = v
		}
	}

	frag, err := m.fn(args)
	if err != nil {
		return nil, fmt.Errorf("substitution %s: %w", m.name, err)
	}
	if !sameNames(maps.Keys(frag.Inputs), m.inputs) {
		return nil, m.mismatch("inputs", frag.Inputs.Names(), m.inputs.Names())
	}
	if !sameNames(maps.Keys(frag.Outputs), m.outputs) {
		return nil, m.mismatch("outputs", frag.Outputs.Names(), m.outputs.Names())
	}
	// The rewrite may have reset the scope.
	if m.gen != m.scope.gen {
		return nil, NewContractError("scope was reset during substitution", nil).
			WithCode(ErrCodeStaleScope).WithModule(m.name)
	}

	for _, name := range m.inputs.Names() {
		old, repl := m.inputs[name], frag.Inputs[name]
		if !repl.IsValid() || repl.scope != m.scope {
			return nil, NewContractError(fmt.Sprintf("replacement input %q is not a port of this scope", name), nil).
				WithCode(ErrCodeInvalidPort).WithModule(m.name)
		}
		if old.IsConnected() {
			if err := old.RerouteConnectedOutput(repl); err != nil {
				return nil, err
			}
		}
		m.scope.ports.rebind(old.id, repl.id)
		m.inputs[name] = repl
	}
	for _, name := range m.outputs.Names() {
		old, repl := m.outputs[name], frag.Outputs[name]
		if !repl.IsValid() || repl.scope != m.scope {
			return nil, NewContractError(fmt.Sprintf("replacement output %q is not a port of this scope", name), nil).
				WithCode(ErrCodeInvalidPort).WithModule(m.name)
		}
		if old.IsConnected() {
			if err := old.RerouteAllConnectedInputs(repl); err != nil {
				return nil, err
			}
		}
		m.scope.ports.rebind(old.id, repl.id)
		m.outputs[name] = repl
	}
	return args.Hyperparameters, nil
}

func (m *SubstitutionModule) mismatch(kind string, got, want []string) error {
	return NewContractError(
		fmt.Sprintf("substitution returned %s %v, module declares %v", kind, got, want), nil,
	).WithCode(ErrCodePortMismatch).WithModule(m.name)
}

func checkNames(kind string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return NewContractError(fmt.Sprintf("duplicate %s name %q", kind, name), nil).
				WithCode(ErrCodeDuplicatePort)
		}
		seen[name] = true
	}
	return nil
}
