package spacescript

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/archspace/archspace/pkg/core"
)

// Fragment is the Starlark value of a piece of graph.
type Fragment struct {
	frag core.Fragment
}

var (
	_ starlark.Value    = (*Fragment)(nil)
	_ starlark.HasAttrs = (*Fragment)(nil)
)

func (f *Fragment) String() string {
	return fmt.Sprintf("<fragment in=%v out=%v>", f.frag.Inputs.Names(), f.frag.Outputs.Names())
}
func (f *Fragment) Type() string          { return "fragment" }
func (f *Fragment) Freeze()               {}
func (f *Fragment) Truth() starlark.Bool  { return starlark.True }
func (f *Fragment) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: fragment") }

// Attr exposes the port names as "inputs" and "outputs".
func (f *Fragment) Attr(name string) (starlark.Value, error) {
	switch name {
	case "inputs":
		return stringList(f.frag.Inputs.Names()), nil
	case "outputs":
		return stringList(f.frag.Outputs.Names()), nil
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (f *Fragment) AttrNames() []string { return []string{"inputs", "outputs"} }

// Hyperparameter is the Starlark value of a hyperparameter.
type Hyperparameter struct {
	h *core.Hyperparameter
}

var (
	_ starlark.Value    = (*Hyperparameter)(nil)
	_ starlark.HasAttrs = (*Hyperparameter)(nil)
)

func (h *Hyperparameter) String() string        { return h.h.String() }
func (h *Hyperparameter) Type() string          { return "hyperparameter" }
func (h *Hyperparameter) Freeze()               {}
func (h *Hyperparameter) Truth() starlark.Bool  { return starlark.True }
func (h *Hyperparameter) Hash() (uint32, error) { return starlark.String(h.h.Name()).Hash() }

// Attr exposes "name" and "domain".
func (h *Hyperparameter) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(h.h.Name()), nil
	case "domain":
		return starlark.String(h.h.Domain().String()), nil
	}
	return nil, nil
}

// AttrNames implements starlark.HasAttrs.
func (h *Hyperparameter) AttrNames() []string { return []string{"domain", "name"} }

func stringList(names []string) *starlark.List {
	elems := make([]starlark.Value, len(names))
	for i, n := range names {
		elems[i] = starlark.String(n)
	}
	return starlark.NewList(elems)
}
