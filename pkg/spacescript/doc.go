// Package spacescript lets search spaces be written in Starlark.
//
// A script defines search_space(), which returns a fragment built from the
// predeclared functions:
//
//	def block():
//	    return op("scale", factor=discrete([0.5, 2.0]))
//
//	def search_space():
//	    return siso_repeat(block, discrete([1, 2, 3], name="depth"))
//
// Hyperparameters come from discrete, boolean, fixed and dependent. Wherever
// a hyperparameter is expected, a list is shorthand for discrete and any other
// value for fixed. Leaves are op, combiner and identity. The combinators
// mirror package modules: siso_or, siso_repeat, siso_nested_repeat,
// siso_optional, siso_permutation, siso_split_combine, siso_residual,
// siso_sequential and mimo_combine.
//
// Functions passed to combinators are called lazily, when the substitution
// they belong to fires, so a script is executed once per sample.
// Hyperparameters created with a name are exposed on the search space.
package spacescript
