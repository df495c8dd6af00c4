package policy

import (
	"time"

	"github.com/archspace/archspace/pkg/sampler"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is reported but does not reject a sample.
	SeverityWarning Severity = "warning"

	// SeverityError rejects the sample.
	SeverityError Severity = "error"

	// SeverityCritical rejects the sample.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity reject a sample.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy is a Rego module whose deny rules constrain sampled architectures.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is one deny result.
type Violation struct {
	Policy   string   `json:"policy"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`

	// Module names the offending module when the policy reports one.
	Module string `json:"module,omitempty"`
}

// Result is the outcome of evaluating every enabled policy against a sample.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	Violations        []Violation   `json:"violations,omitempty"`
	EvaluatedPolicies []string      `json:"evaluated_policies"`
	EvaluatedAt       time.Time     `json:"evaluated_at"`
	Duration          time.Duration `json:"duration"`
}

// Blocking returns the violations that reject the sample.
func (r *Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity.Blocking() {
			out = append(out, v)
		}
	}
	return out
}

// Limits parameterize the built-in policies. Zero values disable a limit.
// They are visible to every policy as data.archspace.limits.
type Limits struct {
	MaxModules         int            `json:"max_modules,omitempty" yaml:"max_modules"`
	MaxDepth           int            `json:"max_depth,omitempty" yaml:"max_depth"`
	MaxOperators       map[string]int `json:"max_operators,omitempty" yaml:"max_operators"`
	ForbiddenOperators []string       `json:"forbidden_operators,omitempty" yaml:"forbidden_operators"`
}

// Input is the document policies see as input.
type Input struct {
	Sample  *SampleInput `json:"sample"`
	Context *Context     `json:"context"`
}

// SampleInput describes a finalized sample. Counts leave out the identity
// modules wrapping the sample's inputs and outputs.
type SampleInput struct {
	ID      string `json:"id"`
	Script  string `json:"script,omitempty"`
	Modules int    `json:"modules"`
	Depth   int    `json:"depth"`
	Edges   int    `json:"edges"`

	// Operators counts modules by kind, the module name without its prefix
	// and counter.
	Operators map[string]int `json:"operators"`

	// Assignments maps full hyperparameter names to values.
	Assignments map[string]any `json:"assignments"`

	// Levels lists module names by depth.
	Levels [][]string `json:"levels"`

	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// Context carries evaluation metadata.
type Context struct {
	Timestamp time.Time `json:"timestamp"`
	Attempt   int       `json:"attempt"`
}

// NewInput describes sample for policy evaluation.
func NewInput(script string, sample *sampler.Sample) *Input {
	in := &SampleInput{
		ID:          sample.ID,
		Script:      script,
		Assignments: make(map[string]any, len(sample.Assignments)),
		Inputs:      []string{},
		Outputs:     []string{},
	}
	for _, a := range sample.Assignments {
		in.Assignments[a.Hyperparameter] = a.Value
	}
	shape := sample.Shape()
	in.Modules = shape.Modules
	in.Depth = shape.Depth
	in.Edges = shape.Edges
	in.Levels = shape.Levels
	in.Operators = shape.Operators
	if sample.Space != nil {
		in.Inputs = sample.Space.Inputs.Names()
		in.Outputs = sample.Space.Outputs.Names()
	}
	return &Input{
		Sample:  in,
		Context: &Context{Timestamp: time.Now(), Attempt: sample.Attempts},
	}
}
