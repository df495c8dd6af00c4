package ops

import (
	"errors"
	"slices"
	"testing"

	"github.com/archspace/archspace/pkg/core"
)

func run(t *testing.T, frag core.Fragment, feed map[string]any) Vector {
	t.Helper()
	g, err := core.Finalize(frag.Outputs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for name, v := range feed {
		if err := frag.Inputs[name].Feed(v); err != nil {
			t.Fatalf("Expected feed to succeed, got: %v", err)
		}
	}
	for _, m := range g.Order() {
		if err := m.Compile(); err != nil {
			t.Fatalf("Expected compile to succeed, got: %v", err)
		}
		if err := m.Forward(); err != nil {
			t.Fatalf("Expected forward to succeed, got: %v", err)
		}
	}
	v, _ := frag.Out().Value()
	return v.(Vector)
}

func fixed(s *core.Scope, v float64) *core.Hyperparameter {
	h := core.NewDiscrete(s, []float64{v})
	_ = h.Assign(v)
	return h
}

func TestRegistry_Build(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name   string
		kind   string
		params map[string]float64
		in     any
		want   Vector
	}{
		{"scale", "scale", map[string]float64{"factor": 2}, Vector{1, -2}, Vector{2, -4}},
		{"bias", "bias", map[string]float64{"amount": 0.5}, 1.0, Vector{1.5}},
		{"relu", "relu", nil, []any{-1.0, 3}, Vector{0, 3}},
		{"square", "square", nil, []float64{3}, Vector{9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := core.NewScope()
			hyperps := make(map[string]*core.Hyperparameter)
			for name, v := range tt.params {
				hyperps[name] = fixed(s, v)
			}
			frag, err := r.Build(s, tt.kind, hyperps)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if got := run(t, frag, map[string]any{"In": tt.in}); !slices.Equal(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRegistry_BuildErrors(t *testing.T) {
	r := DefaultRegistry()
	s := core.NewScope()

	if _, err := r.Build(s, "conv", nil); err == nil {
		t.Errorf("Expected unknown operator to fail")
	}
	if _, err := r.Build(s, "scale", nil); core.CodeOf(err) != core.ErrCodeBadValue {
		t.Errorf("Expected %s for missing parameter, got %v", core.ErrCodeBadValue, err)
	}
	if _, err := r.BuildCombiner(s, "sum", 0); core.CodeOf(err) != core.ErrCodeNonPositiveCount {
		t.Errorf("Expected %s, got %v", core.ErrCodeNonPositiveCount, err)
	}
	if err := r.Register("relu", Spec{Compile: relu}); err == nil {
		t.Errorf("Expected duplicate registration to fail")
	}
}

func TestRegistry_Combiners(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		kind string
		want Vector
	}{
		{"sum", Vector{6, 3}},
		{"max", Vector{3, 2}},
		{"mean", Vector{2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			s := core.NewScope()
			frag, err := r.BuildCombiner(s, tt.kind, 3)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			got := run(t, frag, map[string]any{
				"In0": Vector{1, 2},
				"In1": Vector{2, 0},
				"In2": Vector{3, 1},
			})
			if !slices.Equal(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}

	if got := DefaultRegistry().CombinerKinds(); !slices.Equal(got, []string{"max", "mean", "sum"}) {
		t.Errorf("Expected [max mean sum], got %v", got)
	}
}

func TestOp_CompileRequiresAssignment(t *testing.T) {
	s := core.NewScope()
	h := core.NewDiscrete(s, []float64{1, 2})
	op, err := New(s, "scale", []string{"In"}, []string{"Out"}, map[string]*core.Hyperparameter{"factor": h}, scale)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if err := op.Compile(); !core.IsTraversal(err) || core.CodeOf(err) != core.ErrCodeUnassigned {
		t.Errorf("Expected traversal %s, got %v", core.ErrCodeUnassigned, err)
	}
	if err := op.Forward(); core.CodeOf(err) != core.ErrCodeNotCompiled {
		t.Errorf("Expected %s, got %v", core.ErrCodeNotCompiled, err)
	}

	_ = h.Assign(2.0)
	if err := op.Compile(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !op.Compiled() || op.Kind() != "scale" {
		t.Errorf("Expected compiled scale operator")
	}
	if err := op.Forward(); core.CodeOf(err) != core.ErrCodeUnresolvedInput {
		t.Errorf("Expected %s, got %v", core.ErrCodeUnresolvedInput, err)
	}
}

func TestOp_ForwardError(t *testing.T) {
	s := core.NewScope()
	boom := errors.New("boom")
	frag, err := SISO(s, "fail", nil, func(map[string]any) (ForwardFunc, error) {
		return func(map[string]any) (map[string]any, error) { return nil, boom }, nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	op := frag.In().Module()
	_ = frag.In().Feed(1.0)

	if err := op.Compile(); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := op.Forward(); !errors.Is(err, boom) {
		t.Errorf("Expected forward error, got %v", err)
	}
}

func TestNew_DuplicatePorts(t *testing.T) {
	s := core.NewScope()
	_, err := New(s, "bad", []string{"In", "In"}, []string{"Out"}, nil, relu)
	if core.CodeOf(err) != core.ErrCodeDuplicatePort {
		t.Errorf("Expected %s, got %v", core.ErrCodeDuplicatePort, err)
	}
}
