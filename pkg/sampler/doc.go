// Package sampler turns a search space into concrete architectures.
//
// Specify walks the unassigned hyperparameters of a graph and assigns each
// one with a Picker until nothing is left to decide; substitutions fire along
// the way and may expose new hyperparameters. A Sampler wraps a
// SearchSpaceFactory with Specify and core.Finalize, giving every sample a
// UUID, a span and metrics. WithConstraint turns it into a rejection sampler:
// draws that violate the constraint are discarded and redrawn.
package sampler
