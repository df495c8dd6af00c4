package sampler

import (
	"slices"

	"github.com/archspace/archspace/pkg/core"
)

// Shape describes the modules a sample is made of. The identity modules the
// factory wraps around inputs and outputs are left out.
type Shape struct {
	Modules int
	Depth   int
	Edges   int

	// Levels groups module names by their depth, starting at 1.
	Levels [][]string

	// Operators counts modules by base name.
	Operators map[string]int
}

// Shape summarizes the finalized graph of the sample.
func (s *Sample) Shape() Shape {
	shape := Shape{Levels: [][]string{}, Operators: make(map[string]int)}
	g := s.Graph
	if g == nil {
		return shape
	}

	// A module is one level deeper than its deepest producer. Boundary
	// modules pass their producer's depth through.
	depth := make(map[string]int, len(g.Nodes))
	for _, level := range g.Levels {
		for _, name := range level {
			d := 0
			for _, dep := range g.Nodes[name].Dependencies {
				d = max(d, depth[dep])
			}
			if s.Space.IsBoundary(name) {
				depth[name] = d
				continue
			}
			depth[name] = d + 1
			shape.Modules++
			shape.Operators[core.BaseName(name)]++
			for len(shape.Levels) <= d {
				shape.Levels = append(shape.Levels, nil)
			}
			shape.Levels[d] = append(shape.Levels[d], name)
		}
	}
	shape.Depth = len(shape.Levels)
	for _, level := range shape.Levels {
		slices.Sort(level)
	}

	for _, e := range g.Edges {
		if !s.Space.IsBoundary(e.From) && !s.Space.IsBoundary(e.To) {
			shape.Edges++
		}
	}
	return shape
}
