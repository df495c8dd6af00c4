// Package ops provides leaf operators: modules whose behavior is produced by a
// CompileFunc once every hyperparameter has a value.
//
// Real deployments attach framework-specific operators here. The package ships
// reference operators over Vector values (scale, bias, relu, square and the
// sum, max and mean combiners) used by the command line tool and the tests.
package ops
