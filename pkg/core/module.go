package core

import (
	"fmt"
	"maps"
	"slices"
	"sort"
)

// Module is a node of the graph: named ports plus the hyperparameters it
// depends on. Compile and Forward are the executor hooks; they are only
// meaningful once every substitution has happened.
type Module interface {
	Name() string
	Scope() *Scope
	Inputs() Inputs
	Outputs() Outputs
	Hyperparameters() map[string]*Hyperparameter
	IO() Fragment

	// Compile realizes the module from its hyperparameter values.
	Compile() error

	// Forward reads input values and writes output values.
	Forward() error
}

// Inputs maps port names to input handles.
type Inputs map[string]Input

// Names returns the port names in sorted order.
func (in Inputs) Names() []string {
	return slices.Sorted(maps.Keys(in))
}

// Outputs maps port names to output handles.
type Outputs map[string]Output

// Names returns the port names in sorted order.
func (out Outputs) Names() []string {
	return slices.Sorted(maps.Keys(out))
}

// Fragment is the boundary of a piece of graph: the inputs and outputs it
// exposes to the outside.
type Fragment struct {
	Inputs  Inputs
	Outputs Outputs
}

// In returns the input named "In" of a single-input fragment.
func (f Fragment) In() Input { return f.Inputs["In"] }

// Out returns the output named "Out" of a single-output fragment.
func (f Fragment) Out() Output { return f.Outputs["Out"] }

// BaseModule implements the bookkeeping shared by every module. Concrete
// modules embed it, call Init from their constructor, and provide Compile and
// Forward.
type BaseModule struct {
	scope   *Scope
	self    Module
	name    string
	inputs  Inputs
	outputs Outputs
	hyperps map[string]*Hyperparameter
}

// Init registers self in s under a unique name derived from base.
func (m *BaseModule) Init(s *Scope, self Module, base string) {
	m.scope = s
	m.self = self
	m.inputs = make(Inputs)
	m.outputs = make(Outputs)
	m.hyperps = make(map[string]*Hyperparameter)
	m.name = s.registerModule(self, base)
}

// Name returns the unique module name.
func (m *BaseModule) Name() string { return m.name }

// Scope returns the owning scope.
func (m *BaseModule) Scope() *Scope { return m.scope }

// Inputs returns a copy of the input map.
func (m *BaseModule) Inputs() Inputs { return maps.Clone(m.inputs) }

// Outputs returns a copy of the output map.
func (m *BaseModule) Outputs() Outputs { return maps.Clone(m.outputs) }

// Hyperparameters returns a copy of the hyperparameter map.
func (m *BaseModule) Hyperparameters() map[string]*Hyperparameter {
	return maps.Clone(m.hyperps)
}

// IO returns the module's ports as a fragment.
func (m *BaseModule) IO() Fragment {
	return Fragment{Inputs: m.Inputs(), Outputs: m.Outputs()}
}

// RegisterInput creates an input port. Port names are fixed by the module
// implementation, so a duplicate name panics.
func (m *BaseModule) RegisterInput(name string) Input {
	if _, dup := m.inputs[name]; dup {
		panic(fmt.Sprintf("core: module %s registers input %q twice", m.name, name))
	}
	in := m.scope.input(m.scope.ports.add(inputPort, name, m.self))
	m.inputs[name] = in
	return in
}

// RegisterOutput creates an output port. A duplicate name panics.
func (m *BaseModule) RegisterOutput(name string) Output {
	if _, dup := m.outputs[name]; dup {
		panic(fmt.Sprintf("core: module %s registers output %q twice", m.name, name))
	}
	out := m.scope.output(m.scope.ports.add(outputPort, name, m.self))
	m.outputs[name] = out
	return out
}

// RegisterHyperparameter records h under name. The first registering module
// becomes the owner. onAssigned, if not nil, runs when h is assigned.
func (m *BaseModule) RegisterHyperparameter(name string, h *Hyperparameter, onAssigned func() error) {
	if _, dup := m.hyperps[name]; dup {
		panic(fmt.Sprintf("core: module %s registers hyperparameter %q twice", m.name, name))
	}
	m.hyperps[name] = h
	if h.owner == nil {
		h.owner = m.self
	}
	if onAssigned != nil {
		h.Observe(onAssigned)
	}
}

// HyperparameterValues returns the value of every hyperparameter. It fails
// with a traversal error naming the unassigned ones.
func (m *BaseModule) HyperparameterValues() (map[string]any, error) {
	values := make(map[string]any, len(m.hyperps))
	var missing []string
	for name, h := range m.hyperps {
		v, ok := h.Value()
		if !ok {
			missing = append(missing, h.Name())
			continue
		}
		values[name] = v
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, NewTraversalError(fmt.Sprintf("unassigned hyperparameters: %v", missing), nil).
			WithCode(ErrCodeUnassigned).WithModule(m.name)
	}
	return values, nil
}

// InputValues returns the value of every input. It fails with a traversal
// error if any input is unresolved.
func (m *BaseModule) InputValues() (map[string]any, error) {
	values := make(map[string]any, len(m.inputs))
	for _, name := range m.inputs.Names() {
		v, ok := m.inputs[name].Value()
		if !ok {
			return nil, NewTraversalError(fmt.Sprintf("input %q has no value", name), nil).
				WithCode(ErrCodeUnresolvedInput).WithModule(m.name)
		}
		values[name] = v
	}
	return values, nil
}

// SetOutputValues writes values to the outputs. Every output must be covered
// and no unknown name may appear.
func (m *BaseModule) SetOutputValues(values map[string]any) error {
	if !sameNames(maps.Keys(values), m.outputs) {
		return NewContractError(
			fmt.Sprintf("forward produced outputs %v, module declares %v",
				slices.Sorted(maps.Keys(values)), m.outputs.Names()), nil,
		).WithCode(ErrCodePortMismatch).WithModule(m.name)
	}
	for name, v := range values {
		m.outputs[name].SetValue(v)
	}
	return nil
}
