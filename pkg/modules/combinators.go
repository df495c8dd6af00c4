package modules

import (
	"fmt"
	"math"
	"slices"

	"github.com/archspace/archspace/pkg/core"
)

// FragmentFn instantiates a piece of graph and returns its boundary.
type FragmentFn func() (core.Fragment, error)

// IterFn grows a fragment by one step, e.g. by appending a block after its
// outputs.
type IterFn func(prev core.Fragment) (core.Fragment, error)

// CombineFn returns a fragment with inputs In0..In<n-1> and a single output
// Out.
type CombineFn func(n int) (core.Fragment, error)

var (
	sisoIn  = []string{"In"}
	sisoOut = []string{"Out"}
)

// MIMOOr instantiates fns[h] in place of a substitution module with the given
// ports. h must take integer values.
func MIMOOr(s *core.Scope, fns []FragmentFn, h *core.Hyperparameter, inNames, outNames []string) (core.Fragment, error) {
	return core.Substitute(s, core.SubstitutionConfig{
		Name:            "MIMOOr",
		Hyperparameters: map[string]*core.Hyperparameter{"idx": h},
		InputNames:      inNames,
		OutputNames:     outNames,
		Fn: func(args core.SubstitutionArgs) (core.Fragment, error) {
			idx, err := args.Int("idx")
			if err != nil {
				return core.Fragment{}, err
			}
			if idx < 0 || idx >= len(fns) {
				return core.Fragment{}, outOfRange(idx, len(fns))
			}
			return fns[idx]()
		},
	})
}

// MIMOOrMap is MIMOOr over a keyed collection: the value of h is the key.
func MIMOOrMap[K comparable](s *core.Scope, fns map[K]FragmentFn, h *core.Hyperparameter, inNames, outNames []string) (core.Fragment, error) {
	return core.Substitute(s, core.SubstitutionConfig{
		Name:            "MIMOOr",
		Hyperparameters: map[string]*core.Hyperparameter{"key": h},
		InputNames:      inNames,
		OutputNames:     outNames,
		Fn: func(args core.SubstitutionArgs) (core.Fragment, error) {
			key, ok := args.Value("key").(K)
			if !ok {
				return core.Fragment{}, core.NewContractError(
					fmt.Sprintf("key %v (%T) has the wrong type", args.Value("key"), args.Value("key")), nil,
				).WithCode(core.ErrCodeBadValue)
			}
			fn, ok := fns[key]
			if !ok {
				return core.Fragment{}, core.NewContractError(fmt.Sprintf("no fragment for key %v", key), nil).
					WithCode(core.ErrCodeIndexOutOfRange)
			}
			return fn()
		},
	})
}

// SISOOr is MIMOOr with a single In and a single Out.
func SISOOr(s *core.Scope, fns []FragmentFn, h *core.Hyperparameter) (core.Fragment, error) {
	return MIMOOr(s, fns, h, sisoIn, sisoOut)
}

// MIMONestedRepeat calls first once and then applies iter h-1 times to the
// running fragment. h must be a positive integer.
func MIMONestedRepeat(s *core.Scope, first FragmentFn, iter IterFn, h *core.Hyperparameter, inNames, outNames []string) (core.Fragment, error) {
	return core.Substitute(s, core.SubstitutionConfig{
		Name:            "MIMONestedRepeat",
		Hyperparameters: map[string]*core.Hyperparameter{"num_reps": h},
		InputNames:      inNames,
		OutputNames:     outNames,
		Fn: func(args core.SubstitutionArgs) (core.Fragment, error) {
			n, err := count(args, "num_reps")
			if err != nil {
				return core.Fragment{}, err
			}
			frag, err := first()
			if err != nil {
				return core.Fragment{}, err
			}
			for i := 1; i < n; i++ {
				if frag, err = iter(frag); err != nil {
					return core.Fragment{}, err
				}
			}
			return frag, nil
		},
	})
}

// SISONestedRepeat is MIMONestedRepeat with a single In and a single Out.
func SISONestedRepeat(s *core.Scope, first FragmentFn, iter IterFn, h *core.Hyperparameter) (core.Fragment, error) {
	return MIMONestedRepeat(s, first, iter, h, sisoIn, sisoOut)
}

// SISORepeat instantiates fn h times and connects the copies in sequence.
func SISORepeat(s *core.Scope, fn FragmentFn, h *core.Hyperparameter) (core.Fragment, error) {
	return core.Substitute(s, core.SubstitutionConfig{
		Name:            "SISORepeat",
		Hyperparameters: map[string]*core.Hyperparameter{"num_reps": h},
		InputNames:      sisoIn,
		OutputNames:     sisoOut,
		Fn: func(args core.SubstitutionArgs) (core.Fragment, error) {
			n, err := count(args, "num_reps")
			if err != nil {
				return core.Fragment{}, err
			}
			frags := make([]core.Fragment, 0, n)
			for i := 0; i < n; i++ {
				frag, err := fn()
				if err != nil {
					return core.Fragment{}, err
				}
				frags = append(frags, frag)
			}
			return SISOSequential(frags)
		},
	})
}

// SISOOptional instantiates fn when h is true and an identity otherwise. h may
// take booleans or the integers 0 and 1.
func SISOOptional(s *core.Scope, fn FragmentFn, h *core.Hyperparameter) (core.Fragment, error) {
	return core.Substitute(s, core.SubstitutionConfig{
		Name:            "SISOOptional",
		Hyperparameters: map[string]*core.Hyperparameter{"opt": h},
		InputNames:      sisoIn,
		OutputNames:     sisoOut,
		Fn: func(args core.SubstitutionArgs) (core.Fragment, error) {
			opt, err := args.Bool("opt")
			if err != nil {
				return core.Fragment{}, err
			}
			if opt {
				return fn()
			}
			return Identity(s, 1)
		},
	})
}

// SISOPermutation connects the fragments of fns in sequence, in the order
// given by the h-th permutation of the lexicographic enumeration (zero
// indexed).
func SISOPermutation(s *core.Scope, fns []FragmentFn, h *core.Hyperparameter) (core.Fragment, error) {
	return core.Substitute(s, core.SubstitutionConfig{
		Name:            "SISOPermutation",
		Hyperparameters: map[string]*core.Hyperparameter{"perm_idx": h},
		InputNames:      sisoIn,
		OutputNames:     sisoOut,
		Fn: func(args core.SubstitutionArgs) (core.Fragment, error) {
			idx, err := args.Int("perm_idx")
			if err != nil {
				return core.Fragment{}, err
			}
			perm, ok := Permutation(len(fns), idx)
			if !ok {
				total, _ := factorial(len(fns))
				return core.Fragment{}, outOfRange(idx, total)
			}
			frags := make([]core.Fragment, 0, len(fns))
			for _, i := range perm {
				frag, err := fns[i]()
				if err != nil {
					return core.Fragment{}, err
				}
				frags = append(frags, frag)
			}
			return SISOSequential(frags)
		},
	})
}

// SISOSplitCombine fans the input out to h copies of fn and feeds their
// outputs, in order, into combine(h).
func SISOSplitCombine(s *core.Scope, fn FragmentFn, combine CombineFn, h *core.Hyperparameter) (core.Fragment, error) {
	return core.Substitute(s, core.SubstitutionConfig{
		Name:            "SISOSplitCombine",
		Hyperparameters: map[string]*core.Hyperparameter{"num_splits": h},
		InputNames:      sisoIn,
		OutputNames:     sisoOut,
		Fn: func(args core.SubstitutionArgs) (core.Fragment, error) {
			n, err := count(args, "num_splits")
			if err != nil {
				return core.Fragment{}, err
			}
			branches := make([]core.Fragment, 0, n)
			for i := 0; i < n; i++ {
				frag, err := fn()
				if err != nil {
					return core.Fragment{}, err
				}
				branches = append(branches, frag)
			}
			c, err := combine(n)
			if err != nil {
				return core.Fragment{}, err
			}
			split, err := Identity(s, 1)
			if err != nil {
				return core.Fragment{}, err
			}
			for i, b := range branches {
				if err := split.Out().Connect(b.In()); err != nil {
					return core.Fragment{}, err
				}
				if err := b.Out().Connect(c.Inputs[IndexedName("In", i)]); err != nil {
					return core.Fragment{}, err
				}
			}
			return core.Fragment{Inputs: split.Inputs, Outputs: c.Outputs}, nil
		},
	})
}

// MIMOCombine instantiates every fragment of fns, feeds input i to branch i
// and the branch outputs into combine(len(fns)). Input names follow
// Identity(len(fns)).
func MIMOCombine(s *core.Scope, fns []FragmentFn, combine CombineFn) (core.Fragment, error) {
	n := len(fns)
	if err := checkCount("number of branches", n); err != nil {
		return core.Fragment{}, err
	}
	branches := make([]core.Fragment, 0, n)
	for _, fn := range fns {
		frag, err := fn()
		if err != nil {
			return core.Fragment{}, err
		}
		branches = append(branches, frag)
	}
	c, err := combine(n)
	if err != nil {
		return core.Fragment{}, err
	}
	in, err := Identity(s, n)
	if err != nil {
		return core.Fragment{}, err
	}
	for i, b := range branches {
		if err := in.Outputs[portName("Out", i, n)].Connect(b.In()); err != nil {
			return core.Fragment{}, err
		}
		if err := b.Out().Connect(c.Inputs[IndexedName("In", i)]); err != nil {
			return core.Fragment{}, err
		}
	}
	return core.Fragment{Inputs: in.Inputs, Outputs: c.Outputs}, nil
}

// SISOResidual feeds the input to both main and residual and combines their
// outputs through the In0 and In1 inputs of combine.
func SISOResidual(s *core.Scope, main, residual FragmentFn, combine FragmentFn) (core.Fragment, error) {
	m, err := main()
	if err != nil {
		return core.Fragment{}, err
	}
	r, err := residual()
	if err != nil {
		return core.Fragment{}, err
	}
	c, err := combine()
	if err != nil {
		return core.Fragment{}, err
	}
	split, err := Identity(s, 1)
	if err != nil {
		return core.Fragment{}, err
	}

	for _, edge := range []struct {
		from core.Output
		to   core.Input
	}{
		{split.Out(), m.In()},
		{split.Out(), r.In()},
		{m.Out(), c.Inputs["In0"]},
		{r.Out(), c.Inputs["In1"]},
	} {
		if err := edge.from.Connect(edge.to); err != nil {
			return core.Fragment{}, err
		}
	}
	return core.Fragment{Inputs: split.Inputs, Outputs: c.Outputs}, nil
}

// SISOSequential connects single-input single-output fragments end to end
// and returns the first input and the last output.
func SISOSequential(frags []core.Fragment) (core.Fragment, error) {
	if err := checkCount("number of fragments", len(frags)); err != nil {
		return core.Fragment{}, err
	}
	for i := 1; i < len(frags); i++ {
		if err := frags[i-1].Out().Connect(frags[i].In()); err != nil {
			return core.Fragment{}, err
		}
	}
	return core.Fragment{
		Inputs:  core.Inputs{"In": frags[0].In()},
		Outputs: core.Outputs{"Out": frags[len(frags)-1].Out()},
	}, nil
}

// SIMOSplit fans a single input out to n outputs named like the outputs of
// Identity(n).
func SIMOSplit(s *core.Scope, n int) (core.Fragment, error) {
	in, err := Identity(s, 1)
	if err != nil {
		return core.Fragment{}, err
	}
	out, err := Identity(s, n)
	if err != nil {
		return core.Fragment{}, err
	}
	for i := 0; i < n; i++ {
		if err := in.Out().Connect(out.Inputs[portName("In", i, n)]); err != nil {
			return core.Fragment{}, err
		}
	}
	return core.Fragment{Inputs: in.Inputs, Outputs: out.Outputs}, nil
}

// Permutation returns the idx-th permutation of 0..n-1 in lexicographic
// order, unranked through the factorial number system. It reports false if
// idx is out of range.
func Permutation(n, idx int) ([]int, bool) {
	if n < 0 || idx < 0 {
		return nil, false
	}
	if total, exact := factorial(n); exact && idx >= total {
		return nil, false
	}
	remaining := make([]int, n)
	for i := range remaining {
		remaining[i] = i
	}
	perm := make([]int, 0, n)
	for k := n - 1; k >= 0; k-- {
		d := 0
		// k! beyond int range exceeds any idx, so the digit is 0.
		if f, exact := factorial(k); exact {
			d, idx = idx/f, idx%f
		}
		perm = append(perm, remaining[d])
		remaining = slices.Delete(remaining, d, d+1)
	}
	return perm, true
}

// factorial returns n! and false when it overflows int.
func factorial(n int) (int, bool) {
	f := 1
	for i := 2; i <= n; i++ {
		if f > math.MaxInt/i {
			return math.MaxInt, false
		}
		f *= i
	}
	return f, true
}

func count(args core.SubstitutionArgs, name string) (int, error) {
	n, err := args.Int(name)
	if err != nil {
		return 0, err
	}
	if err := checkCount(name, n); err != nil {
		return 0, err
	}
	return n, nil
}

func outOfRange(idx, n int) error {
	return core.NewContractError(fmt.Sprintf("index %d out of range [0, %d)", idx, n), nil).
		WithCode(core.ErrCodeIndexOutOfRange)
}
