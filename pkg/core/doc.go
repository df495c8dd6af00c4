// Package core provides the graph model of archspace: scopes, ports,
// hyperparameters, modules and substitution modules.
//
// # Overview
//
// A search space is a family of computational graphs whose topology is only
// fixed once every hyperparameter has a value. Graphs are built inside a
// Scope from Modules connected through Input and Output ports:
//
//   - Scope: naming context; hands out M.<base>-<n> and H.<base>-<n> names
//   - Input/Output: stable port handles backed by the scope's port arena
//   - Hyperparameter: an assign-once decision variable with a Domain
//   - Module: a node with named ports and the hyperparameters it reads
//   - SubstitutionModule: a placeholder rewritten into a fragment once its
//     hyperparameters are assigned
//
// # Substitution
//
// Assigning a hyperparameter runs its observers. A SubstitutionModule observes
// each hyperparameter it depends on and, once all of them are assigned, calls
// its SubstitutionFn. The returned Fragment must expose exactly the module's
// port names. Upstream producers are rerouted into the fragment, downstream
// consumers read from it, and the module's port handles are rebound so that
// code holding them sees the replacement ports.
//
// Assignment cascades: a fragment may itself contain substitution modules
// whose hyperparameters are already assigned, and those fire before Assign
// returns.
//
// # Finalization
//
// Finalize collects the graph reachable from a set of outputs, rejects it if a
// substitution is still pending or the connections form a cycle, and orders the
// modules into topological levels for an executor:
//
//	g, err := core.Finalize(outputs)
//	if err != nil {
//	    return err
//	}
//	for _, m := range g.Order() {
//	    ...
//	}
//
// # Error Classification
//
// Errors carry one of three classes:
//
//   - Contract: malformed graph construction (duplicate connection,
//     reassignment, port mismatch, non-positive count)
//   - Domain: a value outside a hyperparameter's domain
//   - Traversal: finalizing or running a graph that is not fully specified
//
// Use IsContract, IsDomain, IsTraversal and CodeOf to inspect them.
package core
