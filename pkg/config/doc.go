// Package config loads archspace configuration and hyperparameter value files.
//
// Configuration files are YAML or CUE (JSON is read as CUE). Every file is
// decoded on top of Default, so a file only lists what it changes:
//
//	sample:
//	  seed: 7
//	  count: 10
//	  values:
//	    depth: 2
//	telemetry:
//	  logging:
//	    level: debug
//
// CUE files are unified with a built-in closed schema before decoding, which
// rejects unknown fields and out-of-range values with their file positions.
// Both formats are then checked against the struct validation tags.
//
// Value files map hyperparameter names to scalar values and feed
// sampler.NewValuesPicker.
package config
