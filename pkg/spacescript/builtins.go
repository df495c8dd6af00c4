package spacescript

import (
	"fmt"
	"maps"
	"slices"

	"go.starlark.net/starlark"

	"github.com/archspace/archspace/pkg/core"
	"github.com/archspace/archspace/pkg/modules"
	"github.com/archspace/archspace/pkg/ops"
)

// builder holds the state of one script evaluation: the scope fragments are
// built in and the thread lazy fragment functions are called on.
type builder struct {
	scope    *core.Scope
	registry *ops.Registry
	thread   *starlark.Thread
	exposed  map[string]*core.Hyperparameter
}

type builtinFn func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

func (b *builder) predeclared() starlark.StringDict {
	fns := map[string]builtinFn{
		// hyperparameters
		"discrete":  b.discrete,
		"boolean":   b.boolean,
		"fixed":     b.fixed,
		"dependent": b.dependent,

		// leaves
		"op":       b.op,
		"combiner": b.combiner,
		"identity": b.identity,

		// combinators
		"siso_or":            b.sisoOr,
		"siso_repeat":        b.sisoRepeat,
		"siso_nested_repeat": b.sisoNestedRepeat,
		"siso_optional":      b.sisoOptional,
		"siso_permutation":   b.sisoPermutation,
		"siso_split_combine": b.sisoSplitCombine,
		"siso_residual":      b.sisoResidual,
		"siso_sequential":    b.sisoSequential,
		"mimo_combine":       b.mimoCombine,
	}
	dict := make(starlark.StringDict, len(fns))
	for name, fn := range fns {
		dict[name] = starlark.NewBuiltin(name, fn)
	}
	return dict
}

// discrete(values, name=None) creates a hyperparameter over a list of ints,
// floats, strings or bools.
func (b *builder) discrete(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var values starlark.Value
	var name string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "values", &values, "name?", &name); err != nil {
		return nil, err
	}
	h, err := b.newDiscrete(name, values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return &Hyperparameter{h: h}, nil
}

// boolean(name=None) creates a hyperparameter over False and True.
func (b *builder) boolean(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name?", &name); err != nil {
		return nil, err
	}
	h := core.NewHyperparameter(b.scope, baseOr(name, "Bool"), core.DiscreteDomain([]bool{false, true}))
	b.expose(name, h)
	return &Hyperparameter{h: h}, nil
}

// fixed(value, name=None) creates a hyperparameter that already holds value.
func (b *builder) fixed(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var value starlark.Value
	var name string
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "value", &value, "name?", &name); err != nil {
		return nil, err
	}
	h, err := b.newFixed(name, value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return &Hyperparameter{h: h}, nil
}

// dependent(fn, **deps) creates a hyperparameter computed by fn, called with
// the values of deps as keyword arguments once they are all assigned.
func (b *builder) dependent(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s: expected 1 positional argument, got %d", fn.Name(), len(args))
	}
	callable, ok := args[0].(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("%s: got %s, want callable", fn.Name(), args[0].Type())
	}

	deps := make(map[string]*core.Hyperparameter, len(kwargs))
	for _, kv := range kwargs {
		key := string(kv[0].(starlark.String))
		h, err := b.hyperparameterArg(kv[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", fn.Name(), key, err)
		}
		deps[key] = h
	}

	h, err := core.NewDependent(b.scope, deps, func(values map[string]any) (any, error) {
		kw := make([]starlark.Tuple, 0, len(values))
		for _, key := range slices.Sorted(maps.Keys(values)) {
			sv, err := toStarlark(values[key])
			if err != nil {
				return nil, err
			}
			kw = append(kw, starlark.Tuple{starlark.String(key), sv})
		}
		res, err := starlark.Call(b.thread, callable, nil, kw)
		if err != nil {
			return nil, err
		}
		return toGo(res)
	})
	if err != nil {
		return nil, err
	}
	return &Hyperparameter{h: h}, nil
}

// op(kind, **params) instantiates a registered operator. Each parameter is a
// hyperparameter, a list (shorthand for discrete) or a constant.
func (b *builder) op(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var kind string
	if err := starlark.UnpackPositionalArgs(fn.Name(), args, nil, 1, &kind); err != nil {
		return nil, err
	}
	hyperps := make(map[string]*core.Hyperparameter, len(kwargs))
	for _, kv := range kwargs {
		key := string(kv[0].(starlark.String))
		h, err := b.hyperparameterArg(kv[1])
		if err != nil {
			return nil, fmt.Errorf("%s %s: %s: %w", fn.Name(), kind, key, err)
		}
		hyperps[key] = h
	}
	frag, err := b.registry.Build(b.scope, kind, hyperps)
	if err != nil {
		return nil, err
	}
	return &Fragment{frag: frag}, nil
}

// combiner(kind, n) instantiates an n-input combiner.
func (b *builder) combiner(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var kind string
	var n int
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "kind", &kind, "n", &n); err != nil {
		return nil, err
	}
	frag, err := b.registry.BuildCombiner(b.scope, kind, n)
	if err != nil {
		return nil, err
	}
	return &Fragment{frag: frag}, nil
}

// identity(n=1) instantiates an identity module.
func (b *builder) identity(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 1
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	frag, err := modules.Identity(b.scope, n)
	if err != nil {
		return nil, err
	}
	return &Fragment{frag: frag}, nil
}

// siso_or(fns, h=None) picks one of fns. fns is a list indexed by h, or a
// dict keyed by h. Without h the choice ranges over every index or key.
func (b *builder) sisoOr(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fnsArg, hArg starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "fns", &fnsArg, "h?", &hArg); err != nil {
		return nil, err
	}

	if dict, ok := fnsArg.(*starlark.Dict); ok {
		fns := make(map[string]modules.FragmentFn, dict.Len())
		for _, item := range dict.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%s: dict key must be string, got %s", fn.Name(), item[0].Type())
			}
			f, err := b.fragmentFn(item[1])
			if err != nil {
				return nil, fmt.Errorf("%s: %s: %w", fn.Name(), key, err)
			}
			fns[string(key)] = f
		}
		h, err := b.hyperparameterOr(hArg, func() (*core.Hyperparameter, error) {
			return core.NewHyperparameter(b.scope, "Discrete", core.DiscreteDomain(slices.Sorted(maps.Keys(fns)))), nil
		})
		if err != nil {
			return nil, err
		}
		return fragmentResult(modules.MIMOOrMap(b.scope, fns, h, []string{"In"}, []string{"Out"}))
	}

	fns, err := b.fragmentFns(fnsArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	h, err := b.hyperparameterOr(hArg, func() (*core.Hyperparameter, error) {
		return core.NewDiscrete(b.scope, indices(len(fns))), nil
	})
	if err != nil {
		return nil, err
	}
	return fragmentResult(modules.SISOOr(b.scope, fns, h))
}

// siso_repeat(fn, h) chains h copies of fn().
func (b *builder) sisoRepeat(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fnArg, hArg starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "fn", &fnArg, "h", &hArg); err != nil {
		return nil, err
	}
	f, err := b.fragmentFn(fnArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	h, err := b.hyperparameterArg(hArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return fragmentResult(modules.SISORepeat(b.scope, f, h))
}

// siso_nested_repeat(first, iter, h) calls first() and then iter(prev) h-1
// times.
func (b *builder) sisoNestedRepeat(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var firstArg, hArg starlark.Value
	var iterArg starlark.Callable
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "first", &firstArg, "iter", &iterArg, "h", &hArg); err != nil {
		return nil, err
	}
	first, err := b.fragmentFn(firstArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	h, err := b.hyperparameterArg(hArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	iter := func(prev core.Fragment) (core.Fragment, error) {
		res, err := starlark.Call(b.thread, iterArg, starlark.Tuple{&Fragment{frag: prev}}, nil)
		if err != nil {
			return core.Fragment{}, err
		}
		return asFragment(res)
	}
	return fragmentResult(modules.SISONestedRepeat(b.scope, first, iter, h))
}

// siso_optional(fn, h=None) includes fn() when h is true.
func (b *builder) sisoOptional(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fnArg, hArg starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "fn", &fnArg, "h?", &hArg); err != nil {
		return nil, err
	}
	f, err := b.fragmentFn(fnArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	h, err := b.hyperparameterOr(hArg, func() (*core.Hyperparameter, error) {
		return core.NewBool(b.scope), nil
	})
	if err != nil {
		return nil, err
	}
	return fragmentResult(modules.SISOOptional(b.scope, f, h))
}

// siso_permutation(fns, h=None) chains fns in the h-th lexicographic order.
func (b *builder) sisoPermutation(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fnsArg, hArg starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "fns", &fnsArg, "h?", &hArg); err != nil {
		return nil, err
	}
	fns, err := b.fragmentFns(fnsArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	h, err := b.hyperparameterOr(hArg, func() (*core.Hyperparameter, error) {
		n := 1
		for i := 2; i <= len(fns); i++ {
			n *= i
		}
		return core.NewDiscrete(b.scope, indices(n)), nil
	})
	if err != nil {
		return nil, err
	}
	return fragmentResult(modules.SISOPermutation(b.scope, fns, h))
}

// siso_split_combine(fn, combine, h) runs h copies of fn() side by side and
// merges them with combine, a combiner kind or a function of the arity.
func (b *builder) sisoSplitCombine(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fnArg, combineArg, hArg starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "fn", &fnArg, "combine", &combineArg, "h", &hArg); err != nil {
		return nil, err
	}
	f, err := b.fragmentFn(fnArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	combine, err := b.combineFn(combineArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	h, err := b.hyperparameterArg(hArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return fragmentResult(modules.SISOSplitCombine(b.scope, f, combine, h))
}

// siso_residual(main, residual, combine) merges main() and residual() with a
// two-input combine.
func (b *builder) sisoResidual(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var mainArg, residualArg, combineArg starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "main", &mainArg, "residual", &residualArg, "combine", &combineArg); err != nil {
		return nil, err
	}
	main, err := b.fragmentFn(mainArg)
	if err != nil {
		return nil, fmt.Errorf("%s: main: %w", fn.Name(), err)
	}
	residual, err := b.fragmentFn(residualArg)
	if err != nil {
		return nil, fmt.Errorf("%s: residual: %w", fn.Name(), err)
	}
	combine, err := b.combineFn(combineArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	pair := func() (core.Fragment, error) { return combine(2) }
	return fragmentResult(modules.SISOResidual(b.scope, main, residual, pair))
}

// siso_sequential(frags) chains already built fragments.
func (b *builder) sisoSequential(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var list starlark.Indexable
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "frags", &list); err != nil {
		return nil, err
	}
	frags := make([]core.Fragment, list.Len())
	for i := range frags {
		frag, err := asFragment(list.Index(i))
		if err != nil {
			return nil, fmt.Errorf("%s: element %d: %w", fn.Name(), i, err)
		}
		frags[i] = frag
	}
	return fragmentResult(modules.SISOSequential(frags))
}

// mimo_combine(fns, combine) runs every fn() on its own input and merges the
// branches with combine.
func (b *builder) mimoCombine(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fnsArg, combineArg starlark.Value
	if err := starlark.UnpackArgs(fn.Name(), args, kwargs, "fns", &fnsArg, "combine", &combineArg); err != nil {
		return nil, err
	}
	fns, err := b.fragmentFns(fnsArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	combine, err := b.combineFn(combineArg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn.Name(), err)
	}
	return fragmentResult(modules.MIMOCombine(b.scope, fns, combine))
}

// fragmentFn turns a zero-argument callable into a lazy fragment function.
// It is called on the builder's thread when the enclosing substitution fires.
func (b *builder) fragmentFn(v starlark.Value) (modules.FragmentFn, error) {
	callable, ok := v.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("got %s, want callable", v.Type())
	}
	return func() (core.Fragment, error) {
		res, err := starlark.Call(b.thread, callable, nil, nil)
		if err != nil {
			return core.Fragment{}, err
		}
		return asFragment(res)
	}, nil
}

func (b *builder) fragmentFns(v starlark.Value) ([]modules.FragmentFn, error) {
	list, ok := v.(starlark.Indexable)
	if !ok || isString(v) {
		return nil, fmt.Errorf("got %s, want list of callables", v.Type())
	}
	fns := make([]modules.FragmentFn, list.Len())
	for i := range fns {
		f, err := b.fragmentFn(list.Index(i))
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		fns[i] = f
	}
	return fns, nil
}

// combineFn accepts a registered combiner kind or a callable of the arity.
func (b *builder) combineFn(v starlark.Value) (modules.CombineFn, error) {
	switch c := v.(type) {
	case starlark.String:
		kind := string(c)
		return func(n int) (core.Fragment, error) {
			return b.registry.BuildCombiner(b.scope, kind, n)
		}, nil
	case starlark.Callable:
		return func(n int) (core.Fragment, error) {
			res, err := starlark.Call(b.thread, c, starlark.Tuple{starlark.MakeInt(n)}, nil)
			if err != nil {
				return core.Fragment{}, err
			}
			return asFragment(res)
		}, nil
	default:
		return nil, fmt.Errorf("combine: got %s, want combiner kind or callable", v.Type())
	}
}

// hyperparameterArg accepts a hyperparameter, a list (shorthand for discrete)
// or a constant (shorthand for fixed).
func (b *builder) hyperparameterArg(v starlark.Value) (*core.Hyperparameter, error) {
	switch x := v.(type) {
	case *Hyperparameter:
		return x.h, nil
	case *starlark.List, starlark.Tuple:
		return b.newDiscrete("", x)
	default:
		return b.newFixed("", x)
	}
}

func (b *builder) hyperparameterOr(v starlark.Value, fallback func() (*core.Hyperparameter, error)) (*core.Hyperparameter, error) {
	if v == nil || v == starlark.None {
		return fallback()
	}
	return b.hyperparameterArg(v)
}

func (b *builder) newDiscrete(name string, v starlark.Value) (*core.Hyperparameter, error) {
	list, ok := v.(starlark.Indexable)
	if !ok || isString(v) {
		return nil, fmt.Errorf("got %s, want list of values", v.Type())
	}
	values := make([]any, list.Len())
	for i := range values {
		gv, err := toGo(list.Index(i))
		if err != nil {
			return nil, err
		}
		values[i] = gv
	}
	d, err := discreteDomain(values)
	if err != nil {
		return nil, err
	}
	h := core.NewHyperparameter(b.scope, baseOr(name, "Discrete"), d)
	b.expose(name, h)
	return h, nil
}

func (b *builder) newFixed(name string, v starlark.Value) (*core.Hyperparameter, error) {
	gv, err := toGo(v)
	if err != nil {
		return nil, err
	}
	d, err := discreteDomain([]any{gv})
	if err != nil {
		return nil, err
	}
	h := core.NewHyperparameter(b.scope, baseOr(name, "Fixed"), d)
	if err := h.Assign(d.Values()[0]); err != nil {
		return nil, err
	}
	b.expose(name, h)
	return h, nil
}

// expose records hyperparameters created with an explicit name.
func (b *builder) expose(name string, h *core.Hyperparameter) {
	if name != "" {
		b.exposed[h.Name()] = h
	}
}

// discreteDomain builds a typed domain: all ints, numbers (ints widened to
// float64), all strings or all bools.
func discreteDomain(values []any) (core.Domain, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("empty domain")
	}
	switch kindOf(values) {
	case "int":
		return core.DiscreteDomain(typed[int](values)), nil
	case "float":
		floats := make([]float64, len(values))
		for i, v := range values {
			switch x := v.(type) {
			case int:
				floats[i] = float64(x)
			case float64:
				floats[i] = x
			}
		}
		return core.DiscreteDomain(floats), nil
	case "string":
		return core.DiscreteDomain(typed[string](values)), nil
	case "bool":
		return core.DiscreteDomain(typed[bool](values)), nil
	default:
		return nil, fmt.Errorf("domain values must all be numbers, strings or bools, got %v", values)
	}
}

func kindOf(values []any) string {
	kind := ""
	for _, v := range values {
		var k string
		switch v.(type) {
		case int:
			k = "int"
		case float64:
			k = "float"
		case string:
			k = "string"
		case bool:
			k = "bool"
		default:
			return ""
		}
		switch {
		case kind == "":
			kind = k
		case kind == k:
		case (kind == "int" && k == "float") || (kind == "float" && k == "int"):
			kind = "float"
		default:
			return ""
		}
	}
	return kind
}

func typed[T any](values []any) []T {
	out := make([]T, len(values))
	for i, v := range values {
		out[i] = v.(T)
	}
	return out
}

func indices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func baseOr(name, base string) string {
	if name != "" {
		return name
	}
	return base
}

func isString(v starlark.Value) bool {
	_, ok := v.(starlark.String)
	return ok
}

func asFragment(v starlark.Value) (core.Fragment, error) {
	f, ok := v.(*Fragment)
	if !ok {
		return core.Fragment{}, fmt.Errorf("got %s, want fragment", v.Type())
	}
	return f.frag, nil
}

func fragmentResult(frag core.Fragment, err error) (starlark.Value, error) {
	if err != nil {
		return nil, err
	}
	return &Fragment{frag: frag}, nil
}
