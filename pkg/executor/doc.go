// Package executor runs finalized search-space graphs.
//
// An Executor feeds the graph inputs, compiles every module once and forwards
// the graph level by level. Modules within a level do not depend on each
// other and are forwarded by a bounded worker pool. Each run gets a UUID and,
// when telemetry is configured, a span and execution metrics.
package executor
