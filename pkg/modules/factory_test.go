package modules_test

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/archspace/archspace/pkg/core"
	"github.com/archspace/archspace/pkg/modules"
)

func optionalSpace(s *core.Scope) (core.Inputs, core.Outputs, map[string]*core.Hyperparameter, error) {
	h := core.NewBool(s)
	frag, err := modules.SISOOptional(s, tag(s, "x"), h)
	if err != nil {
		return nil, nil, nil, err
	}
	return frag.Inputs, frag.Outputs, map[string]*core.Hyperparameter{"opt": h}, nil
}

func TestSearchSpaceFactory_GetSearchSpace(t *testing.T) {
	f := modules.NewSearchSpaceFactory(optionalSpace)

	ss, err := f.GetSearchSpace()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	in, out := ss.Inputs["In"], ss.Outputs["Out"]
	if _, ok := in.Module().(*modules.IdentityModule); !ok {
		t.Errorf("Expected input to be buffered by an identity, got %T", in.Module())
	}
	if _, ok := out.Module().(*modules.IdentityModule); !ok {
		t.Errorf("Expected output to be buffered by an identity, got %T", out.Module())
	}
	inModule, outModule := in.Module(), out.Module()
	if !ss.IsBoundary(inModule.Name()) || !ss.IsBoundary(outModule.Name()) {
		t.Errorf("Expected %s and %s to be boundary modules", inModule.Name(), outModule.Name())
	}

	mustAssign(t, ss.Hyperparameters["opt"], true)

	if in.Module() != inModule || out.Module() != outModule {
		t.Errorf("Expected buffered handles to survive substitution")
	}
	if path := evaluate(t, in, out); !slices.Equal(path, []string{"x"}) {
		t.Errorf("Expected [x], got %v", path)
	}
}

func TestSearchSpaceFactory_ResetsScope(t *testing.T) {
	f := modules.NewSearchSpaceFactory(optionalSpace)

	first, err := f.GetSearchSpace()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	second, err := f.GetSearchSpace()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if first.Inputs["In"].IsValid() {
		t.Errorf("Expected handles of the previous sample to be invalidated")
	}
	if got := second.Hyperparameters["opt"].Name(); got != "H.Bool-0" {
		t.Errorf("Expected naming to restart, got %s", got)
	}
	if second.Scope != f.Scope() {
		t.Errorf("Expected samples to be built in the factory scope")
	}

	edges := len(second.Scope.Edges())
	err = first.Hyperparameters["opt"].Assign(true)
	if !core.IsContract(err) || core.CodeOf(err) != core.ErrCodeStaleScope {
		t.Errorf("Expected %s from the previous sample, got %v", core.ErrCodeStaleScope, err)
	}
	if got := len(second.Scope.Edges()); got != edges {
		t.Errorf("Expected the current sample to keep %d edges, got %d", edges, got)
	}
	mustAssign(t, second.Hyperparameters["opt"], true)
	if path := evaluate(t, second.Inputs["In"], second.Outputs["Out"]); !slices.Equal(path, []string{"x"}) {
		t.Errorf("Expected [x], got %v", path)
	}
}

func TestSearchSpaceFactory_WithoutScopeReset(t *testing.T) {
	s := core.NewScope()
	f := modules.NewSearchSpaceFactory(optionalSpace, modules.WithScope(s), modules.WithoutScopeReset())

	first, _ := f.GetSearchSpace()
	second, err := f.GetSearchSpace()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !first.Inputs["In"].IsValid() {
		t.Errorf("Expected the previous sample to stay valid")
	}
	if got := second.Hyperparameters["opt"].Name(); got != "H.Bool-1" {
		t.Errorf("Expected H.Bool-1, got %s", got)
	}
}

func TestSearchSpaceFactory_Error(t *testing.T) {
	boom := errors.New("boom")
	f := modules.NewSearchSpaceFactory(func(*core.Scope) (core.Inputs, core.Outputs, map[string]*core.Hyperparameter, error) {
		return nil, nil, nil, boom
	})

	if _, err := f.GetSearchSpace(); !errors.Is(err, boom) {
		t.Errorf("Expected builder error, got %v", err)
	}
}

// Example_searchSpace builds a block that is repeated one to three times and
// may be skipped, then samples it.
func Example_searchSpace() {
	f := modules.NewSearchSpaceFactory(func(s *core.Scope) (core.Inputs, core.Outputs, map[string]*core.Hyperparameter, error) {
		reps := core.NewDiscrete(s, []int{1, 2, 3})
		opt := core.NewBool(s)
		block := func() (core.Fragment, error) {
			return modules.SISOOptional(s, func() (core.Fragment, error) { return modules.Identity(s, 1) }, opt)
		}
		frag, err := modules.SISORepeat(s, block, reps)
		if err != nil {
			return nil, nil, nil, err
		}
		return frag.Inputs, frag.Outputs, map[string]*core.Hyperparameter{"reps": reps, "opt": opt}, nil
	})

	ss, err := f.GetSearchSpace()
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("unassigned:", len(core.UnassignedHyperparameters(ss.Outputs)))

	_ = ss.Hyperparameters["reps"].Assign(2)
	fmt.Println("unassigned:", len(core.UnassignedHyperparameters(ss.Outputs)))

	_ = ss.Hyperparameters["opt"].Assign(true)
	g, err := core.Finalize(ss.Outputs)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println("specified:", core.IsSpecified(ss.Outputs), "modules:", len(g.Nodes))

	// Output:
	// unassigned: 1
	// unassigned: 1
	// specified: true modules: 4
}
