package core

import (
	"strings"
	"testing"
)

func TestFinalize_Linear(t *testing.T) {
	s := NewScope()
	frag := chain(s, 3)

	g, err := Finalize(frag.Outputs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(g.Nodes) != 3 {
		t.Errorf("Expected 3 nodes, got %d", len(g.Nodes))
	}
	if g.Depth != 3 {
		t.Errorf("Expected depth 3, got %d", g.Depth)
	}
	if len(g.Roots) != 1 || g.Roots[0] != "M.Stage0-0" {
		t.Errorf("Expected root M.Stage0-0, got %v", g.Roots)
	}
	if len(g.Edges) != 2 {
		t.Errorf("Expected 2 edges, got %d", len(g.Edges))
	}
	order := g.Order()
	for k, m := range order {
		if g.Nodes[m.Name()].Level != k {
			t.Errorf("Expected %s at level %d, got %d", m.Name(), k, g.Nodes[m.Name()].Level)
		}
	}
}

func TestFinalize_Diamond(t *testing.T) {
	s := NewScope()
	src := siso(s, "Src")
	left, right := siso(s, "Left"), siso(s, "Right")
	join := newStub(s, "Join", []string{"In0", "In1"}, []string{"Out"}, nil)
	_ = src.outputs["Out"].Connect(left.inputs["In"])
	_ = src.outputs["Out"].Connect(right.inputs["In"])
	_ = left.outputs["Out"].Connect(join.inputs["In0"])
	_ = right.outputs["Out"].Connect(join.inputs["In1"])

	g, err := Finalize(join.Outputs())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if g.Depth != 3 {
		t.Errorf("Expected depth 3, got %d", g.Depth)
	}
	if len(g.Levels[1]) != 2 || g.Levels[1][0] != "M.Left-0" || g.Levels[1][1] != "M.Right-0" {
		t.Errorf("Expected Left and Right on level 1, got %v", g.Levels[1])
	}
	node := g.Nodes["M.Join-0"]
	if len(node.Dependencies) != 2 {
		t.Errorf("Expected 2 dependencies, got %v", node.Dependencies)
	}
	if deps := g.Nodes["M.Src-0"].Dependents; len(deps) != 2 {
		t.Errorf("Expected 2 dependents, got %v", deps)
	}
}

func TestFinalize_PendingSubstitution(t *testing.T) {
	s := NewScope()
	h := NewDiscrete(s, []int{1, 2})
	frag, err := Substitute(s, SubstitutionConfig{
		Hyperparameters: map[string]*Hyperparameter{"h": h},
		InputNames:      []string{"In"},
		OutputNames:     []string{"Out"},
		Fn:              func(SubstitutionArgs) (Fragment, error) { return chain(s, 1), nil },
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	_, err = Finalize(frag.Outputs)
	if !IsTraversal(err) || CodeOf(err) != ErrCodeUnresolvedSubstitution {
		t.Fatalf("Expected traversal %s, got %v", ErrCodeUnresolvedSubstitution, err)
	}
	unassigned := UnassignedHyperparameters(frag.Outputs)
	if len(unassigned) != 1 || unassigned[0] != h {
		t.Errorf("Expected %s to be reported unassigned, got %v", h.Name(), unassigned)
	}

	_ = h.Assign(1)
	if _, err := Finalize(frag.Outputs); err != nil {
		t.Errorf("Expected finalize to succeed after assignment, got: %v", err)
	}
}

func TestFinalize_Cycle(t *testing.T) {
	s := NewScope()
	a := newStub(s, "A", []string{"In0", "In1"}, []string{"Out"}, nil)
	b := siso(s, "B")
	_ = a.outputs["Out"].Connect(b.inputs["In"])
	_ = b.outputs["Out"].Connect(a.inputs["In1"])

	_, err := Finalize(b.Outputs())
	if !IsTraversal(err) || CodeOf(err) != ErrCodeCycle {
		t.Fatalf("Expected traversal %s, got %v", ErrCodeCycle, err)
	}
	if !strings.Contains(err.Error(), "M.A-0 -> M.B-0 -> M.A-0") {
		t.Errorf("Expected cycle path in message, got %v", err)
	}
}

func TestUnassignedHyperparameters_Dependent(t *testing.T) {
	s := NewScope()
	a := NewDiscrete(s, []int{1, 2})
	b := NewDiscrete(s, []int{3, 4})
	d, _ := NewDependent(s, map[string]*Hyperparameter{"a": a, "b": b},
		func(v map[string]any) (any, error) { return v["a"].(int) + v["b"].(int), nil })
	m := newStub(s, "Op", []string{"In"}, []string{"Out"}, map[string]*Hyperparameter{"d": d})

	got := UnassignedHyperparameters(m.Outputs())
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("Expected the dependent's inputs, got %v", got)
	}
	if d.Owner() != Module(m) {
		t.Errorf("Expected registering module to own the hyperparameter")
	}

	_ = a.Assign(2)
	_ = b.Assign(3)
	if !IsSpecified(m.Outputs()) {
		t.Errorf("Expected graph to be specified")
	}
	if err := m.Compile(); err != nil {
		t.Errorf("Expected compile to succeed, got: %v", err)
	}
}

func TestTraverseForward(t *testing.T) {
	s := NewScope()
	frag := chain(s, 4)

	var names []string
	TraverseForward(frag.Inputs, func(m Module) bool {
		names = append(names, m.Name())
		return len(names) < 2
	})
	if len(names) != 2 || names[0] != "M.Stage0-0" || names[1] != "M.Stage1-0" {
		t.Errorf("Expected traversal to stop after two modules, got %v", names)
	}
}

func TestGraph_ToDOT(t *testing.T) {
	s := NewScope()
	h := NewDiscrete(s, []int{3})
	_ = h.Assign(3)
	a := newStub(s, "Conv", []string{"In"}, []string{"Out"}, map[string]*Hyperparameter{"k": h})
	b := siso(s, "Relu")
	_ = a.outputs["Out"].Connect(b.inputs["In"])

	g, err := Finalize(b.Outputs())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	dot := g.ToDOT()

	for _, want := range []string{
		"digraph SearchSpace {",
		"subgraph cluster_level_0",
		`"M.Conv-0" [label="M.Conv-0\nk=3"`,
		`"M.Conv-0" -> "M.Relu-0" [label="Out:In"];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("Expected DOT to contain %q\n%s", want, dot)
		}
	}
}

func TestForward_UnresolvedInput(t *testing.T) {
	s := NewScope()
	m := siso(s, "Op")

	err := m.Forward()
	if !IsTraversal(err) || CodeOf(err) != ErrCodeUnresolvedInput {
		t.Errorf("Expected traversal %s, got %v", ErrCodeUnresolvedInput, err)
	}

	_ = m.inputs["In"].Feed(7)
	if err := m.Forward(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if v, _ := m.outputs["Out"].Value(); v != 7 {
		t.Errorf("Expected 7, got %v", v)
	}
	if err := m.SetOutputValues(map[string]any{"Other": 1}); CodeOf(err) != ErrCodePortMismatch {
		t.Errorf("Expected %s, got %v", ErrCodePortMismatch, err)
	}
}

func TestError_Is(t *testing.T) {
	err := NewContractError("x", nil).WithCode(ErrCodeCycle).WithModule("M.A-0")

	if !strings.Contains(err.Error(), "(module=M.A-0)") {
		t.Errorf("Expected module in message, got %s", err.Error())
	}
	target := &Error{Class: ErrorClassContract, Code: ErrCodeCycle}
	if !err.Is(target) {
		t.Errorf("Expected class and code to match")
	}
	if IsDomain(err) {
		t.Errorf("Expected contract error not to be a domain error")
	}
}
