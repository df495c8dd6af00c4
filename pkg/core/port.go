package core

import (
	"fmt"
	"slices"
)

// PortID indexes a record in a scope's port arena.
type PortID int

const noPort PortID = -1

type portKind uint8

const (
	inputPort portKind = iota
	outputPort
)

// portRecord is the arena entry behind a port handle. A record whose alias is
// set has been rebound by a substitution; every lookup follows the alias chain
// to the live record.
type portRecord struct {
	kind     portKind
	name     string
	owner    Module
	alias    PortID
	value    any
	resolved bool

	// source is the feeding output of an input port.
	source PortID

	// sinks are the inputs fed by an output port, in connection order.
	sinks []PortID
}

type arena struct {
	records []portRecord
}

func (a *arena) add(kind portKind, name string, owner Module) PortID {
	a.records = append(a.records, portRecord{
		kind:   kind,
		name:   name,
		owner:  owner,
		alias:  noPort,
		source: noPort,
	})
	return PortID(len(a.records) - 1)
}

func (a *arena) resolve(id PortID) PortID {
	for a.records[id].alias != noPort {
		id = a.records[id].alias
	}
	return id
}

func (a *arena) at(id PortID) *portRecord {
	return &a.records[a.resolve(id)]
}

// rebind makes every handle of from resolve to to from now on.
func (a *arena) rebind(from, to PortID) {
	f, t := a.resolve(from), a.resolve(to)
	if f == t {
		return
	}
	a.records[f].alias = t
}

func (s *Scope) input(id PortID) Input {
	return Input{scope: s, gen: s.gen, id: id}
}

func (s *Scope) output(id PortID) Output {
	return Output{scope: s, gen: s.gen, id: id}
}

func (s *Scope) validPort(gen uint64, id PortID, kind portKind) bool {
	return gen == s.gen && id >= 0 && int(id) < len(s.ports.records) &&
		s.ports.records[id].kind == kind
}

// Connect creates the edge o -> i. The input must not already have a source.
func (s *Scope) Connect(o Output, i Input) error {
	if !o.IsValid() || !i.IsValid() {
		return NewContractError("cannot connect invalid port", nil).WithCode(ErrCodeInvalidPort)
	}
	if o.scope != s || i.scope != s {
		return NewContractError("cannot connect ports from different scopes", nil).
			WithCode(ErrCodeScopeMismatch)
	}

	oid := s.ports.resolve(o.id)
	iid := s.ports.resolve(i.id)
	in := &s.ports.records[iid]
	if in.source != noPort {
		return NewContractError(
			fmt.Sprintf("input %s is already connected to %s", i, s.output(in.source)), nil,
		).WithCode(ErrCodeAlreadyConnected).WithModule(in.owner.Name())
	}

	out := &s.ports.records[oid]
	in.source = oid
	out.sinks = append(out.sinks, iid)
	if out.resolved {
		in.value, in.resolved = out.value, true
	}
	return nil
}

// Input is a stable handle to an input port. Handles stay valid across
// substitutions: when the owning substitution module is replaced, the handle
// resolves to the matching input of the replacement fragment.
type Input struct {
	scope *Scope
	gen   uint64
	id    PortID
}

// IsValid reports whether the handle refers to a port of a live scope.
func (i Input) IsValid() bool {
	return i.scope != nil && i.scope.validPort(i.gen, i.id, inputPort)
}

// ID returns the resolved arena index, or -1 for an invalid handle.
func (i Input) ID() PortID {
	if !i.IsValid() {
		return noPort
	}
	return i.scope.ports.resolve(i.id)
}

// Scope returns the scope the port belongs to.
func (i Input) Scope() *Scope { return i.scope }

// Name returns the port name within its module.
func (i Input) Name() string {
	if !i.IsValid() {
		return ""
	}
	return i.scope.ports.at(i.id).name
}

// Module returns the owning module.
func (i Input) Module() Module {
	if !i.IsValid() {
		return nil
	}
	return i.scope.ports.at(i.id).owner
}

// Same reports whether both handles resolve to the same port.
func (i Input) Same(other Input) bool {
	return i.IsValid() && other.IsValid() && i.scope == other.scope && i.ID() == other.ID()
}

// IsConnected reports whether the input has a source.
func (i Input) IsConnected() bool {
	return i.IsValid() && i.scope.ports.at(i.id).source != noPort
}

// ConnectedOutput returns the source of the input.
func (i Input) ConnectedOutput() (Output, bool) {
	if !i.IsConnected() {
		return Output{}, false
	}
	return i.scope.output(i.scope.ports.at(i.id).source), true
}

// Value returns the propagated value, if any.
func (i Input) Value() (any, bool) {
	if !i.IsValid() {
		return nil, false
	}
	r := i.scope.ports.at(i.id)
	return r.value, r.resolved
}

// Feed sets the value of an unconnected input. Executors use it to supply
// graph inputs.
func (i Input) Feed(v any) error {
	if !i.IsValid() {
		return NewContractError("cannot feed invalid input", nil).WithCode(ErrCodeInvalidPort)
	}
	if i.IsConnected() {
		return NewContractError(fmt.Sprintf("cannot feed connected input %s", i), nil).
			WithCode(ErrCodeAlreadyConnected)
	}
	r := i.scope.ports.at(i.id)
	r.value, r.resolved = v, true
	return nil
}

// Connect creates the edge o -> i.
func (i Input) Connect(o Output) error {
	if i.scope == nil {
		return NewContractError("cannot connect invalid port", nil).WithCode(ErrCodeInvalidPort)
	}
	return i.scope.Connect(o, i)
}

// Disconnect removes the incoming edge, if any.
func (i Input) Disconnect() {
	if !i.IsConnected() {
		return
	}
	a := &i.scope.ports
	iid := a.resolve(i.id)
	in := &a.records[iid]
	src := &a.records[in.source]
	src.sinks = slices.DeleteFunc(src.sinks, func(id PortID) bool { return id == iid })
	in.source = noPort
	in.value, in.resolved = nil, false
}

// RerouteConnectedOutput moves the incoming edge of i so that it feeds to
// instead. The source keeps its fan-out position.
func (i Input) RerouteConnectedOutput(to Input) error {
	if !i.IsValid() || !to.IsValid() {
		return NewContractError("cannot reroute invalid port", nil).WithCode(ErrCodeInvalidPort)
	}
	if i.scope != to.scope {
		return NewContractError("cannot reroute across scopes", nil).WithCode(ErrCodeScopeMismatch)
	}
	a := &i.scope.ports
	fid, tid := a.resolve(i.id), a.resolve(to.id)
	if fid == tid {
		return nil
	}
	from, dst := &a.records[fid], &a.records[tid]
	if from.source == noPort {
		return NewContractError(fmt.Sprintf("input %s has no incoming connection", i), nil).
			WithCode(ErrCodeNotConnected)
	}
	if dst.source != noPort {
		return NewContractError(fmt.Sprintf("input %s is already connected", to), nil).
			WithCode(ErrCodeAlreadyConnected).WithModule(dst.owner.Name())
	}

	src := &a.records[from.source]
	for k, id := range src.sinks {
		if id == fid {
			src.sinks[k] = tid
		}
	}
	dst.source = from.source
	dst.value, dst.resolved = src.value, src.resolved
	from.source = noPort
	from.value, from.resolved = nil, false
	return nil
}

// String returns module.port.
func (i Input) String() string {
	if !i.IsValid() {
		return "<invalid input>"
	}
	return i.Module().Name() + "." + i.Name()
}

// Output is a stable handle to an output port. See Input for the rebinding
// behavior across substitutions.
type Output struct {
	scope *Scope
	gen   uint64
	id    PortID
}

// IsValid reports whether the handle refers to a port of a live scope.
func (o Output) IsValid() bool {
	return o.scope != nil && o.scope.validPort(o.gen, o.id, outputPort)
}

// ID returns the resolved arena index, or -1 for an invalid handle.
func (o Output) ID() PortID {
	if !o.IsValid() {
		return noPort
	}
	return o.scope.ports.resolve(o.id)
}

// Scope returns the scope the port belongs to.
func (o Output) Scope() *Scope { return o.scope }

// Name returns the port name within its module.
func (o Output) Name() string {
	if !o.IsValid() {
		return ""
	}
	return o.scope.ports.at(o.id).name
}

// Module returns the owning module.
func (o Output) Module() Module {
	if !o.IsValid() {
		return nil
	}
	return o.scope.ports.at(o.id).owner
}

// Same reports whether both handles resolve to the same port.
func (o Output) Same(other Output) bool {
	return o.IsValid() && other.IsValid() && o.scope == other.scope && o.ID() == other.ID()
}

// IsConnected reports whether the output feeds at least one input.
func (o Output) IsConnected() bool {
	return o.IsValid() && len(o.scope.ports.at(o.id).sinks) > 0
}

// ConnectedInputs returns the inputs fed by o in connection order.
func (o Output) ConnectedInputs() []Input {
	if !o.IsValid() {
		return nil
	}
	sinks := o.scope.ports.at(o.id).sinks
	out := make([]Input, len(sinks))
	for k, id := range sinks {
		out[k] = o.scope.input(id)
	}
	return out
}

// Value returns the value last set on the output, if any.
func (o Output) Value() (any, bool) {
	if !o.IsValid() {
		return nil, false
	}
	r := o.scope.ports.at(o.id)
	return r.value, r.resolved
}

// SetValue stores v and makes it visible on every connected input.
func (o Output) SetValue(v any) {
	if !o.IsValid() {
		return
	}
	a := &o.scope.ports
	r := a.at(o.id)
	r.value, r.resolved = v, true
	for _, id := range r.sinks {
		a.records[id].value, a.records[id].resolved = v, true
	}
}

// Connect creates the edge o -> i.
func (o Output) Connect(i Input) error {
	if o.scope == nil {
		return NewContractError("cannot connect invalid port", nil).WithCode(ErrCodeInvalidPort)
	}
	return o.scope.Connect(o, i)
}

// RerouteAllConnectedInputs makes every input fed by o read from to instead.
func (o Output) RerouteAllConnectedInputs(to Output) error {
	if !o.IsValid() || !to.IsValid() {
		return NewContractError("cannot reroute invalid port", nil).WithCode(ErrCodeInvalidPort)
	}
	if o.scope != to.scope {
		return NewContractError("cannot reroute across scopes", nil).WithCode(ErrCodeScopeMismatch)
	}
	a := &o.scope.ports
	fid, tid := a.resolve(o.id), a.resolve(to.id)
	if fid == tid {
		return nil
	}
	from, dst := &a.records[fid], &a.records[tid]
	for _, id := range from.sinks {
		in := &a.records[id]
		in.source = tid
		in.value, in.resolved = dst.value, dst.resolved
	}
	dst.sinks = append(dst.sinks, from.sinks...)
	from.sinks = nil
	return nil
}

// String returns module.port.
func (o Output) String() string {
	if !o.IsValid() {
		return "<invalid output>"
	}
	return o.Module().Name() + "." + o.Name()
}
