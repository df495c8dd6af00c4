package core

import (
	"fmt"
	"sort"
)

// Hyperparameter is an assign-once decision variable. Modules that depend on
// it register observers, which fire exactly once, in registration order, when
// the value is first assigned.
type Hyperparameter struct {
	scope     *Scope
	name      string
	domain    Domain
	owner     Module
	value     any
	assigned  bool
	observers []func() error

	// set for dependent hyperparameters only
	deps map[string]*Hyperparameter
	fn   DependentFn
}

// DependentFn computes the value of a dependent hyperparameter from the values
// of the hyperparameters it depends on.
type DependentFn func(values map[string]any) (any, error)

// NewHyperparameter registers a hyperparameter with the given domain. base is
// used to derive the unique name (H.<base>-<n>).
func NewHyperparameter(s *Scope, base string, d Domain) *Hyperparameter {
	if d == nil {
		d = AnyDomain()
	}
	h := &Hyperparameter{scope: s, domain: d}
	h.name = s.registerHyperparameter(h, base)
	return h
}

// NewDiscrete registers a hyperparameter that takes one of values.
func NewDiscrete[T comparable](s *Scope, values []T) *Hyperparameter {
	return NewHyperparameter(s, "Discrete", DiscreteDomain(values))
}

// NewBool registers a hyperparameter that takes false or true.
func NewBool(s *Scope) *Hyperparameter {
	return NewHyperparameter(s, "Bool", DiscreteDomain([]bool{false, true}))
}

// NewDependent registers a hyperparameter whose value is computed by fn once
// every hyperparameter in deps is assigned. It cannot be assigned directly.
func NewDependent(s *Scope, deps map[string]*Hyperparameter, fn DependentFn) (*Hyperparameter, error) {
	if fn == nil {
		return nil, NewContractError("dependent hyperparameter requires a function", nil)
	}
	h := NewHyperparameter(s, "Dependent", AnyDomain())
	h.deps = make(map[string]*Hyperparameter, len(deps))
	h.fn = fn
	for name, dep := range deps {
		h.deps[name] = dep
		dep.Observe(h.update)
	}
	if err := h.update(); err != nil {
		return nil, err
	}
	return h, nil
}

// Name returns the unique name of the hyperparameter within its scope.
func (h *Hyperparameter) Name() string { return h.name }

// Scope returns the owning scope.
func (h *Hyperparameter) Scope() *Scope { return h.scope }

// Domain returns the legal values.
func (h *Hyperparameter) Domain() Domain { return h.domain }

// Owner returns the first module that registered the hyperparameter, or nil.
func (h *Hyperparameter) Owner() Module { return h.owner }

// HasValueAssigned reports whether the hyperparameter has been assigned.
func (h *Hyperparameter) HasValueAssigned() bool { return h.assigned }

// Value returns the assigned value.
func (h *Hyperparameter) Value() (any, bool) { return h.value, h.assigned }

// IsDependent reports whether the value is computed from other hyperparameters.
func (h *Hyperparameter) IsDependent() bool { return h.fn != nil }

// Dependencies returns the hyperparameters a dependent hyperparameter reads,
// sorted by their local name.
func (h *Hyperparameter) Dependencies() []*Hyperparameter {
	names := make([]string, 0, len(h.deps))
	for name := range h.deps {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Hyperparameter, len(names))
	for i, name := range names {
		out[i] = h.deps[name]
	}
	return out
}

// Observe registers fn to run when the value is assigned. Observers added
// after assignment never run.
func (h *Hyperparameter) Observe(fn func() error) {
	h.observers = append(h.observers, fn)
}

// Assign stores v and runs every observer. It fails without side effects if
// the hyperparameter is already assigned or v is outside the domain. Errors
// returned by observers (substitution failures) are passed through.
func (h *Hyperparameter) Assign(v any) error {
	if h.IsDependent() {
		return NewContractError("dependent hyperparameter cannot be assigned directly", nil).
			WithCode(ErrCodeDependentAssign).WithHyperparameter(h.name)
	}
	return h.assign(v)
}

func (h *Hyperparameter) assign(v any) error {
	if h.assigned {
		return NewContractError("hyperparameter already assigned", nil).
			WithCode(ErrCodeAlreadyAssigned).
			WithHyperparameter(h.name).
			WithDetail("current", h.value).
			WithDetail("attempted", v)
	}
	if !h.domain.Contains(v) {
		return NewDomainError(fmt.Sprintf("value %v (%T) is not in %s", v, v, h.domain), nil).
			WithCode(ErrCodeOutOfDomain).
			WithHyperparameter(h.name)
	}

	h.value = v
	h.assigned = true
	h.scope.listener.HyperparameterAssigned(h, v)

	for _, fn := range h.observers {
		if err := fn(); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hyperparameter) update() error {
	if h.assigned {
		return nil
	}
	values := make(map[string]any, len(h.deps))
	for name, dep := range h.deps {
		v, ok := dep.Value()
		if !ok {
			return nil
		}
		values[name] = v
	}
	v, err := h.fn(values)
	if err != nil {
		return NewContractError("dependent hyperparameter function failed", err).
			WithHyperparameter(h.name)
	}
	return h.assign(v)
}

// String returns the name and, if assigned, the value.
func (h *Hyperparameter) String() string {
	if !h.assigned {
		return h.name
	}
	return fmt.Sprintf("%s=%v", h.name, h.value)
}
