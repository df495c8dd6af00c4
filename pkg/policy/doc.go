// Package policy constrains sampled architectures with Open Policy Agent.
//
// Policies are Rego modules with a deny rule, evaluated against a description
// of a finalized sample:
//
//	package custom.shallow
//
//	import rego.v1
//
//	deny contains msg if {
//	    input.sample.depth > 8
//	    msg := sprintf("depth %v is over 8", [input.sample.depth])
//	}
//
// input.sample carries the module count, depth, edge count, the number of
// modules per operator kind, the hyperparameter assignments by full name, the
// topological levels and the graph's input and output names. Deny entries are
// messages or objects with message, severity and module fields.
//
// Built-in policies enforce the limits published under data.archspace.limits:
// max_modules, max_depth, max_operators and forbidden_operators. Unset limits
// deny nothing.
//
// Violations with severity error or critical reject the sample. Engine.Constraint
// plugs the engine into a sampler, which then redraws rejected samples.
//
// Policies are loaded from .rego files, named after the file, and from .json
// files holding a Policy. Loader.Watch reloads them when they change.
package policy
