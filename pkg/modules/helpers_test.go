package modules_test

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/archspace/archspace/pkg/core"
	"github.com/archspace/archspace/pkg/modules"
)

// tagModule appends its tag to the path flowing through it, so evaluating a
// graph reveals the order in which modules were visited.
type tagModule struct {
	core.BaseModule
	tag string
}

func (m *tagModule) Compile() error { return nil }

func (m *tagModule) Forward() error {
	in, err := m.InputValues()
	if err != nil {
		return err
	}
	path := append(slices.Clone(in["In"].([]string)), m.tag)
	return m.SetOutputValues(map[string]any{"Out": path})
}

func tag(s *core.Scope, name string) modules.FragmentFn {
	return func() (core.Fragment, error) {
		m := &tagModule{tag: name}
		m.Init(s, m, "Tag")
		m.RegisterInput("In")
		m.RegisterOutput("Out")
		return m.IO(), nil
	}
}

// joinModule appends join<n> to the path of In0 once every input is resolved.
type joinModule struct {
	core.BaseModule
	n int
}

func (m *joinModule) Compile() error { return nil }

func (m *joinModule) Forward() error {
	in, err := m.InputValues()
	if err != nil {
		return err
	}
	var parts []string
	for i := 0; i < m.n; i++ {
		parts = append(parts, strings.Join(in[modules.IndexedName("In", i)].([]string), ""))
	}
	path := append(slices.Clone(in["In0"].([]string)), fmt.Sprintf("join(%s)", strings.Join(parts, ",")))
	return m.SetOutputValues(map[string]any{"Out": path})
}

func join(s *core.Scope) modules.CombineFn {
	return func(n int) (core.Fragment, error) {
		m := &joinModule{n: n}
		m.Init(s, m, "Join")
		for i := 0; i < n; i++ {
			m.RegisterInput(modules.IndexedName("In", i))
		}
		m.RegisterOutput("Out")
		return m.IO(), nil
	}
}

// evaluate runs the graph between in and out on an empty path.
func evaluate(t *testing.T, in core.Input, out core.Output) []string {
	t.Helper()
	g, err := core.Finalize(core.Outputs{"Out": out})
	if err != nil {
		t.Fatalf("Expected graph to finalize, got: %v", err)
	}
	if err := in.Feed([]string{}); err != nil {
		t.Fatalf("Expected input to accept a value, got: %v", err)
	}
	for _, m := range g.Order() {
		if err := m.Compile(); err != nil {
			t.Fatalf("Expected %s to compile, got: %v", m.Name(), err)
		}
		if err := m.Forward(); err != nil {
			t.Fatalf("Expected %s to run, got: %v", m.Name(), err)
		}
	}
	v, ok := out.Value()
	if !ok {
		t.Fatal("Expected output to be resolved")
	}
	return v.([]string)
}

func countTags(out core.Output) int {
	n := 0
	core.TraverseBackward(core.Outputs{"Out": out}, func(m core.Module) bool {
		if _, ok := m.(*tagModule); ok {
			n++
		}
		return true
	})
	return n
}

func mustAssign(t *testing.T, h *core.Hyperparameter, v any) {
	t.Helper()
	if err := h.Assign(v); err != nil {
		t.Fatalf("Expected %s=%v to be accepted, got: %v", h.Name(), v, err)
	}
}
