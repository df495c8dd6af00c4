package modules_test

import (
	"slices"
	"strings"
	"testing"

	"github.com/archspace/archspace/pkg/core"
	"github.com/archspace/archspace/pkg/modules"
)

func TestMIMOOr(t *testing.T) {
	for i, want := range []string{"a", "b", "c"} {
		s := core.NewScope()
		h := core.NewDiscrete(s, []int{0, 1, 2})
		fns := []modules.FragmentFn{tag(s, "a"), tag(s, "b"), tag(s, "c")}

		frag, err := modules.SISOOr(s, fns, h)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		mustAssign(t, h, i)

		if n := countTags(frag.Out()); n != 1 {
			t.Errorf("Expected exactly one instantiated fragment, got %d", n)
		}
		path := evaluate(t, frag.In(), frag.Out())
		if len(path) != 1 || path[0] != want {
			t.Errorf("Expected [%s] for index %d, got %v", want, i, path)
		}
	}
}

func TestMIMOOr_MatchesDirectWiring(t *testing.T) {
	build := func(direct bool) []string {
		s := core.NewScope()
		h := core.NewDiscrete(s, []int{0, 1})
		var frag core.Fragment
		if direct {
			frag, _ = modules.SISOSequential([]core.Fragment{mustFrag(t, tag(s, "x")), mustFrag(t, tag(s, "y"))})
		} else {
			src := mustFrag(t, tag(s, "x"))
			choice, err := modules.SISOOr(s, []modules.FragmentFn{tag(s, "z"), tag(s, "y")}, h)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			frag, _ = modules.SISOSequential([]core.Fragment{src, choice})
			mustAssign(t, h, 1)
		}

		var edges []string
		for _, e := range s.Edges() {
			edges = append(edges, e.From.String()+"->"+e.To.String())
		}
		return append(evaluate(t, frag.In(), frag.Out()), edges...)
	}

	direct, viaOr := build(true), build(false)
	if !slices.Equal(direct, viaOr) {
		t.Errorf("Expected identical structure, direct=%v or=%v", direct, viaOr)
	}
}

func TestMIMOOr_Errors(t *testing.T) {
	s := core.NewScope()
	h := core.NewDiscrete(s, []int{0, 5})
	if _, err := modules.SISOOr(s, []modules.FragmentFn{tag(s, "a")}, h); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	err := h.Assign(5)
	if !core.IsContract(err) || core.CodeOf(err) != core.ErrCodeIndexOutOfRange {
		t.Errorf("Expected contract %s, got %v", core.ErrCodeIndexOutOfRange, err)
	}
}

func TestMIMOOrMap(t *testing.T) {
	s := core.NewScope()
	h := core.NewDiscrete(s, []string{"conv", "pool"})
	fns := map[string]modules.FragmentFn{"conv": tag(s, "c"), "pool": tag(s, "p")}

	frag, err := modules.MIMOOrMap(s, fns, h, []string{"In"}, []string{"Out"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	mustAssign(t, h, "pool")

	if path := evaluate(t, frag.In(), frag.Out()); !slices.Equal(path, []string{"p"}) {
		t.Errorf("Expected [p], got %v", path)
	}
}

func TestSISORepeat(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want []string
	}{
		{"single", 1, []string{"r"}},
		{"three", 3, []string{"r", "r", "r"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := core.NewScope()
			h := core.NewDiscrete(s, []int{1, 2, 3})
			frag, err := modules.SISORepeat(s, tag(s, "r"), h)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			mustAssign(t, h, tt.n)

			if n := countTags(frag.Out()); n != tt.n {
				t.Errorf("Expected %d copies, got %d", tt.n, n)
			}
			if len(s.Edges()) != tt.n-1 {
				t.Errorf("Expected %d internal edges, got %d", tt.n-1, len(s.Edges()))
			}
			if path := evaluate(t, frag.In(), frag.Out()); !slices.Equal(path, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, path)
			}
		})
	}
}

func TestCountCombinators_NonPositive(t *testing.T) {
	builders := map[string]func(s *core.Scope, h *core.Hyperparameter) error{
		"repeat": func(s *core.Scope, h *core.Hyperparameter) error {
			_, err := modules.SISORepeat(s, tag(s, "r"), h)
			return err
		},
		"nested repeat": func(s *core.Scope, h *core.Hyperparameter) error {
			_, err := modules.SISONestedRepeat(s, tag(s, "r"), func(core.Fragment) (core.Fragment, error) {
				return core.Fragment{}, nil
			}, h)
			return err
		},
		"split combine": func(s *core.Scope, h *core.Hyperparameter) error {
			_, err := modules.SISOSplitCombine(s, tag(s, "r"), join(s), h)
			return err
		},
	}

	for name, build := range builders {
		for _, n := range []int{0, -2} {
			s := core.NewScope()
			h := core.NewDiscrete(s, []int{0, -2})
			if err := build(s, h); err != nil {
				t.Fatalf("%s: expected no error, got: %v", name, err)
			}
			err := h.Assign(n)
			if !core.IsContract(err) || core.CodeOf(err) != core.ErrCodeNonPositiveCount {
				t.Errorf("%s with %d: expected contract %s, got %v", name, n, core.ErrCodeNonPositiveCount, err)
			}
		}
	}
}

func TestSISONestedRepeat(t *testing.T) {
	s := core.NewScope()
	h := core.NewDiscrete(s, []int{1, 2, 3})
	iter := func(prev core.Fragment) (core.Fragment, error) {
		next := mustFrag(t, tag(s, "i"))
		return modules.SISOSequential([]core.Fragment{prev, next})
	}

	frag, err := modules.SISONestedRepeat(s, tag(s, "f"), iter, h)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	mustAssign(t, h, 3)

	if path := evaluate(t, frag.In(), frag.Out()); !slices.Equal(path, []string{"f", "i", "i"}) {
		t.Errorf("Expected [f i i], got %v", path)
	}
}

func TestSISOOptional(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  []string
	}{
		{"false is identity", false, []string{}},
		{"true instantiates", true, []string{"o"}},
		{"zero is identity", 0, []string{}},
		{"one instantiates", 1, []string{"o"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := core.NewScope()
			h := core.NewHyperparameter(s, "Opt", core.AnyDomain())
			frag, err := modules.SISOOptional(s, tag(s, "o"), h)
			if err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			mustAssign(t, h, tt.value)

			if path := evaluate(t, frag.In(), frag.Out()); !slices.Equal(path, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, path)
			}
		})
	}
}

func TestSISOPermutation(t *testing.T) {
	seen := make(map[string]int)
	for k := 0; k < 6; k++ {
		s := core.NewScope()
		h := core.NewDiscrete(s, []int{0, 1, 2, 3, 4, 5, 6})
		fns := []modules.FragmentFn{tag(s, "a"), tag(s, "b"), tag(s, "c")}
		frag, err := modules.SISOPermutation(s, fns, h)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		mustAssign(t, h, k)

		order := strings.Join(evaluate(t, frag.In(), frag.Out()), "")
		if prev, dup := seen[order]; dup {
			t.Errorf("Permutation %s produced by both %d and %d", order, prev, k)
		}
		seen[order] = k
	}

	if len(seen) != 6 {
		t.Errorf("Expected 6 distinct permutations, got %d", len(seen))
	}
	if seen["abc"] != 0 || seen["acb"] != 1 || seen["cba"] != 5 {
		t.Errorf("Expected lexicographic order, got %v", seen)
	}

	s := core.NewScope()
	h := core.NewDiscrete(s, []int{6})
	if _, err := modules.SISOPermutation(s, []modules.FragmentFn{tag(s, "a"), tag(s, "b"), tag(s, "c")}, h); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := h.Assign(6); core.CodeOf(err) != core.ErrCodeIndexOutOfRange {
		t.Errorf("Expected %s, got %v", core.ErrCodeIndexOutOfRange, err)
	}
}

func TestPermutation(t *testing.T) {
	tests := []struct {
		n, idx int
		want   []int
		ok     bool
	}{
		{3, 0, []int{0, 1, 2}, true},
		{3, 3, []int{1, 2, 0}, true},
		{4, 23, []int{3, 2, 1, 0}, true},
		{4, 24, nil, false},
		{5, 119, []int{4, 3, 2, 1, 0}, true},
		{22, 1, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 21, 20}, true},
		{0, 0, []int{}, true},
		{2, -1, nil, false},
	}

	for _, tt := range tests {
		got, ok := modules.Permutation(tt.n, tt.idx)
		if ok != tt.ok || !slices.Equal(got, tt.want) {
			t.Errorf("Permutation(%d, %d) = %v, %v; expected %v, %v", tt.n, tt.idx, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSISOSequential(t *testing.T) {
	s := core.NewScope()
	f1, f2, f3 := mustFrag(t, tag(s, "1")), mustFrag(t, tag(s, "2")), mustFrag(t, tag(s, "3"))
	before := len(s.Edges())

	frag, err := modules.SISOSequential([]core.Fragment{f1, f2, f3})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !frag.In().Same(f1.In()) || !frag.Out().Same(f3.Out()) {
		t.Errorf("Expected (i1, o3)")
	}
	edges := s.Edges()
	if len(edges)-before != 2 {
		t.Fatalf("Expected 2 new connections, got %d", len(edges)-before)
	}
	if !edges[0].From.Same(f1.Out()) || !edges[0].To.Same(f2.In()) {
		t.Errorf("Expected o1 -> i2")
	}
	if !edges[1].From.Same(f2.Out()) || !edges[1].To.Same(f3.In()) {
		t.Errorf("Expected o2 -> i3")
	}

	if _, err := modules.SISOSequential(nil); core.CodeOf(err) != core.ErrCodeNonPositiveCount {
		t.Errorf("Expected %s for empty list, got %v", core.ErrCodeNonPositiveCount, err)
	}
}

func TestSISOSplitCombine(t *testing.T) {
	s := core.NewScope()
	h := core.NewDiscrete(s, []int{1, 2, 3})
	frag, err := modules.SISOSplitCombine(s, tag(s, "b"), join(s), h)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	mustAssign(t, h, 3)

	if n := countTags(frag.Out()); n != 3 {
		t.Errorf("Expected 3 branches, got %d", n)
	}
	want := []string{"b", "join(b,b,b)"}
	if path := evaluate(t, frag.In(), frag.Out()); !slices.Equal(path, want) {
		t.Errorf("Expected %v, got %v", want, path)
	}
}

func TestSISOResidual(t *testing.T) {
	s := core.NewScope()
	combine := func() (core.Fragment, error) { return join(s)(2) }

	frag, err := modules.SISOResidual(s, tag(s, "m"), tag(s, "r"), combine)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	want := []string{"m", "join(m,r)"}
	if path := evaluate(t, frag.In(), frag.Out()); !slices.Equal(path, want) {
		t.Errorf("Expected %v, got %v", want, path)
	}
}

func TestMIMOCombine(t *testing.T) {
	s := core.NewScope()
	frag, err := modules.MIMOCombine(s, []modules.FragmentFn{tag(s, "x"), tag(s, "y")}, join(s))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := frag.Inputs.Names(); !slices.Equal(got, []string{"In0", "In1"}) {
		t.Fatalf("Expected inputs [In0 In1], got %v", got)
	}
	g, err := core.Finalize(frag.Outputs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	_ = frag.Inputs["In0"].Feed([]string{"0"})
	_ = frag.Inputs["In1"].Feed([]string{"1"})
	for _, m := range g.Order() {
		if err := m.Forward(); err != nil {
			t.Fatalf("Expected %s to run, got: %v", m.Name(), err)
		}
	}
	v, _ := frag.Out().Value()
	want := []string{"0", "x", "join(0x,1y)"}
	if !slices.Equal(v.([]string), want) {
		t.Errorf("Expected %v, got %v", want, v)
	}
}

func TestSIMOSplit(t *testing.T) {
	s := core.NewScope()
	frag, err := modules.SIMOSplit(s, 3)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if got := frag.Outputs.Names(); !slices.Equal(got, []string{"Out0", "Out1", "Out2"}) {
		t.Fatalf("Expected outputs Out0..Out2, got %v", got)
	}
	g, err := core.Finalize(frag.Outputs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	_ = frag.In().Feed(42)
	for _, m := range g.Order() {
		_ = m.Forward()
	}
	for _, name := range frag.Outputs.Names() {
		if v, _ := frag.Outputs[name].Value(); v != 42 {
			t.Errorf("Expected %s to carry 42, got %v", name, v)
		}
	}

	if _, err := modules.SIMOSplit(s, 0); core.CodeOf(err) != core.ErrCodeNonPositiveCount {
		t.Errorf("Expected %s, got %v", core.ErrCodeNonPositiveCount, err)
	}
}

func mustFrag(t *testing.T, fn modules.FragmentFn) core.Fragment {
	t.Helper()
	frag, err := fn()
	if err != nil {
		t.Fatalf("Expected fragment, got: %v", err)
	}
	return frag
}
