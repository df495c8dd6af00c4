package sampler

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/archspace/archspace/pkg/core"
)

// Picker chooses a value for an unassigned hyperparameter.
type Picker interface {
	Pick(h *core.Hyperparameter) (any, error)
}

// PickerFunc adapts a function to the Picker interface.
type PickerFunc func(h *core.Hyperparameter) (any, error)

// Pick implements Picker.
func (f PickerFunc) Pick(h *core.Hyperparameter) (any, error) { return f(h) }

// RandomPicker picks uniformly among the values of an enumerable domain.
type RandomPicker struct {
	rng *rand.Rand
}

// NewRandomPicker creates a picker whose choices are reproducible for a given
// seed.
func NewRandomPicker(seed uint64) *RandomPicker {
	return &RandomPicker{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Pick implements Picker.
func (p *RandomPicker) Pick(h *core.Hyperparameter) (any, error) {
	values := h.Domain().Values()
	if len(values) == 0 {
		return nil, core.NewContractError(
			fmt.Sprintf("cannot pick at random from domain %s", h.Domain()), nil,
		).WithCode(core.ErrCodeBadValue).WithHyperparameter(h.Name())
	}
	return values[p.rng.IntN(len(values))], nil
}

// FirstPicker always picks the first value of the domain.
type FirstPicker struct{}

// Pick implements Picker.
func (FirstPicker) Pick(h *core.Hyperparameter) (any, error) {
	values := h.Domain().Values()
	if len(values) == 0 {
		return nil, core.NewContractError(
			fmt.Sprintf("domain %s has no first value", h.Domain()), nil,
		).WithCode(core.ErrCodeBadValue).WithHyperparameter(h.Name())
	}
	return values[0], nil
}

// ValuesPicker picks from a fixed map of values and defers to a fallback for
// hyperparameters the map does not mention. Keys are full hyperparameter
// names (H.Discrete-0) or base names (Discrete); a full name wins.
type ValuesPicker struct {
	values   map[string]any
	fallback Picker
	used     map[string]bool
}

// NewValuesPicker creates a values picker. fallback may be nil, in which case
// a hyperparameter without a value fails.
func NewValuesPicker(values map[string]any, fallback Picker) *ValuesPicker {
	return &ValuesPicker{values: values, fallback: fallback, used: make(map[string]bool)}
}

// Pick implements Picker.
func (p *ValuesPicker) Pick(h *core.Hyperparameter) (any, error) {
	for _, key := range []string{h.Name(), core.BaseName(h.Name())} {
		if v, ok := p.values[key]; ok {
			p.used[key] = true
			return coerce(h.Domain(), v), nil
		}
	}
	if p.fallback == nil {
		return nil, core.NewTraversalError("no value given", nil).
			WithCode(core.ErrCodeUnassigned).WithHyperparameter(h.Name())
	}
	return p.fallback.Pick(h)
}

// Unused returns the keys that never matched a hyperparameter, sorted.
func (p *ValuesPicker) Unused() []string {
	var out []string
	for key := range p.values {
		if !p.used[key] {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return out
}

// coerce maps v onto the domain value with the same printed form, so a 2 read
// from a file matches a domain of float64. Values the domain already contains
// or that match nothing are returned unchanged.
func coerce(d core.Domain, v any) any {
	if d.Contains(v) {
		return v
	}
	want := fmt.Sprint(v)
	for _, dv := range d.Values() {
		if fmt.Sprint(dv) == want {
			return dv
		}
	}
	return v
}
