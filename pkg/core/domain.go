package core

import (
	"fmt"
	"slices"
)

// Domain is the set of legal values of a hyperparameter.
type Domain interface {
	// Contains reports whether v may be assigned.
	Contains(v any) bool

	// Values enumerates the domain, or returns nil if it cannot be enumerated.
	Values() []any

	String() string
}

type discreteDomain[T comparable] struct {
	values []T
}

func (d discreteDomain[T]) Contains(v any) bool {
	tv, ok := v.(T)
	if !ok {
		return false
	}
	return slices.Contains(d.values, tv)
}

func (d discreteDomain[T]) Values() []any {
	out := make([]any, len(d.values))
	for i, v := range d.values {
		out[i] = v
	}
	return out
}

func (d discreteDomain[T]) String() string {
	return fmt.Sprintf("discrete%v", d.values)
}

// DiscreteDomain returns a domain made of the given values. Values are
// compared with ==, so an assigned value must have the same dynamic type as
// the listed ones.
func DiscreteDomain[T comparable](values []T) Domain {
	return discreteDomain[T]{values: slices.Clone(values)}
}

type anyDomain struct{}

func (anyDomain) Contains(any) bool { return true }
func (anyDomain) Values() []any     { return nil }
func (anyDomain) String() string    { return "any" }

// AnyDomain accepts every value and cannot be enumerated.
func AnyDomain() Domain {
	return anyDomain{}
}
