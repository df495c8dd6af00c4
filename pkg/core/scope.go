package core

import (
	"fmt"
	"strings"
)

// Listener receives notifications about mutations inside a scope.
// Implementations must not mutate the graph.
type Listener interface {
	// HyperparameterAssigned is called after a value is stored and before
	// observers run.
	HyperparameterAssigned(h *Hyperparameter, value any)

	// SubstitutionFired is called after a substitution module has rewritten
	// itself away.
	SubstitutionFired(m *SubstitutionModule, values map[string]any)
}

type nopListener struct{}

func (nopListener) HyperparameterAssigned(*Hyperparameter, any)          {}
func (nopListener) SubstitutionFired(*SubstitutionModule, map[string]any) {}

// ScopeOption configures a Scope before first use.
type ScopeOption func(s *Scope)

// WithListener installs a listener notified of assignments and substitutions.
func WithListener(l Listener) ScopeOption {
	return func(s *Scope) {
		if l != nil {
			s.listener = l
		}
	}
}

// Scope is the naming and ownership context for one graph-construction pass.
// It hands out unique names to modules and hyperparameters, owns the port
// arena, and keeps every live entity for later traversal.
//
// A Scope is not safe for concurrent use. Construct, assign and finalize one
// sample at a time.
type Scope struct {
	elems    map[string]any
	next     map[string]int
	modules  []Module
	hyperps  []*Hyperparameter
	ports    arena
	gen      uint64
	listener Listener
}

// NewScope creates an empty scope.
func NewScope(opts ...ScopeOption) *Scope {
	s := &Scope{listener: nopListener{}}
	for _, opt := range opts {
		opt(s)
	}
	s.Reset()
	return s
}

// Reset discards every registration and port. Handles obtained before the
// reset become invalid.
func (s *Scope) Reset() {
	s.elems = make(map[string]any)
	s.next = make(map[string]int)
	s.modules = nil
	s.hyperps = nil
	s.ports = arena{}
	s.gen++
}

// Lookup returns the module or hyperparameter registered under name.
func (s *Scope) Lookup(name string) (any, bool) {
	e, ok := s.elems[name]
	return e, ok
}

// Module returns the module registered under name.
func (s *Scope) Module(name string) (Module, bool) {
	m, ok := s.elems[name].(Module)
	return m, ok
}

// Hyperparameter returns the hyperparameter registered under name.
func (s *Scope) Hyperparameter(name string) (*Hyperparameter, bool) {
	h, ok := s.elems[name].(*Hyperparameter)
	return h, ok
}

// Modules returns every module created in the scope, in creation order,
// including substitution modules that have already been replaced.
func (s *Scope) Modules() []Module {
	out := make([]Module, len(s.modules))
	copy(out, s.modules)
	return out
}

// Hyperparameters returns every hyperparameter created in the scope, in
// creation order.
func (s *Scope) Hyperparameters() []*Hyperparameter {
	out := make([]*Hyperparameter, len(s.hyperps))
	copy(out, s.hyperps)
	return out
}

// Len returns the number of registered entities.
func (s *Scope) Len() int {
	return len(s.elems)
}

// Edge is a live Output -> Input connection.
type Edge struct {
	From Output
	To   Input
}

// Edges returns every live connection, ordered by the sink's creation.
func (s *Scope) Edges() []Edge {
	edges := make([]Edge, 0)
	for i := range s.ports.records {
		r := &s.ports.records[i]
		if r.kind != inputPort || r.alias != noPort || r.source == noPort {
			continue
		}
		edges = append(edges, Edge{
			From: s.output(r.source),
			To:   s.input(PortID(i)),
		})
	}
	return edges
}

func (s *Scope) registerModule(m Module, base string) string {
	name := s.uniqueName("M." + base)
	s.elems[name] = m
	s.modules = append(s.modules, m)
	return name
}

func (s *Scope) registerHyperparameter(h *Hyperparameter, base string) string {
	name := s.uniqueName("H." + base)
	s.elems[name] = h
	s.hyperps = append(s.hyperps, h)
	return name
}

// uniqueName returns prefix-<n> for the smallest n not yet used.
func (s *Scope) uniqueName(prefix string) string {
	for i := s.next[prefix]; ; i++ {
		name := fmt.Sprintf("%s-%d", prefix, i)
		if _, taken := s.elems[name]; !taken {
			s.next[prefix] = i + 1
			return name
		}
	}
}

// BaseName strips the kind prefix and counter suffix from a scope name, so
// "M.Scale-3" becomes "Scale".
func BaseName(name string) string {
	if i := strings.IndexByte(name, '.'); i >= 0 && i < 2 {
		name = name[i+1:]
	}
	if i := strings.LastIndexByte(name, '-'); i >= 0 {
		name = name[:i]
	}
	return name
}
