// Package modules provides the combinator library and the search space
// factory built on top of package core.
//
// Combinators compose fragments. Most of them are substitution modules that
// wait for a hyperparameter and then instantiate the chosen structure:
//
//   - MIMOOr, MIMOOrMap, SISOOr: pick one of several fragments
//   - SISORepeat, MIMONestedRepeat, SISONestedRepeat: repeat a fragment
//   - SISOOptional: a fragment or a pass-through
//   - SISOPermutation: a fixed set of fragments in a chosen order
//   - SISOSplitCombine: parallel copies merged by a combiner
//
// SISOSequential, SISOResidual, MIMOCombine and SIMOSplit only wire fragments
// that already exist.
//
// Count hyperparameters must be positive; zero or a negative value fails the
// assignment with a contract error coded NON_POSITIVE_COUNT.
package modules
