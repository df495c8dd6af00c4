// Package plugin loads elementwise operators from WebAssembly modules.
//
// A plugin is a YAML manifest next to a .wasm file. Each operator the
// manifest declares names an exported function taking the input element and
// the operator's hyperparameters as f64 values and returning one f64. Load
// instantiates the modules with wazero and registers the operators into an
// ops.Registry, after which search-space scripts use them like the built-in
// kinds.
package plugin
