package core

import (
	"fmt"
)

// stubModule is a leaf module that copies its inputs to its outputs by
// position, or emits the constant value when it has no inputs.
type stubModule struct {
	BaseModule
	constant any
	compiled int
	forwards int
}

func newStub(s *Scope, kind string, inNames, outNames []string, hyperps map[string]*Hyperparameter) *stubModule {
	m := &stubModule{}
	m.Init(s, m, kind)
	for _, name := range inNames {
		m.RegisterInput(name)
	}
	for _, name := range outNames {
		m.RegisterOutput(name)
	}
	for _, name := range sortedKeys(hyperps) {
		m.RegisterHyperparameter(name, hyperps[name], nil)
	}
	return m
}

func siso(s *Scope, kind string) *stubModule {
	return newStub(s, kind, []string{"In"}, []string{"Out"}, nil)
}

func (m *stubModule) Compile() error {
	if _, err := m.HyperparameterValues(); err != nil {
		return err
	}
	m.compiled++
	return nil
}

func (m *stubModule) Forward() error {
	in, err := m.InputValues()
	if err != nil {
		return err
	}
	m.forwards++
	out := make(map[string]any)
	ins, outs := m.inputs.Names(), m.outputs.Names()
	for k, name := range outs {
		switch {
		case len(ins) == 0:
			out[name] = m.constant
		case k < len(ins):
			out[name] = in[ins[k]]
		default:
			out[name] = in[ins[0]]
		}
	}
	return m.SetOutputValues(out)
}

// chain builds n stub modules connected in sequence and returns the ends.
func chain(s *Scope, n int) Fragment {
	var first Input
	var last Output
	for k := 0; k < n; k++ {
		m := siso(s, fmt.Sprintf("Stage%d", k))
		if k == 0 {
			first = m.inputs["In"]
		} else if err := last.Connect(m.inputs["In"]); err != nil {
			panic(err)
		}
		last = m.outputs["Out"]
	}
	return Fragment{Inputs: Inputs{"In": first}, Outputs: Outputs{"Out": last}}
}

// moduleNames returns the module names reachable from outputs, in traversal
// order.
func moduleNames(outputs Outputs) []string {
	var names []string
	TraverseBackward(outputs, func(m Module) bool {
		names = append(names, m.Name())
		return true
	})
	return names
}
