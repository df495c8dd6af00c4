package policy

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage"
	"github.com/open-policy-agent/opa/storage/inmem"

	"github.com/archspace/archspace/pkg/sampler"
	"github.com/archspace/archspace/pkg/telemetry"
)

var limitsPath = storage.MustParsePath("/archspace/limits")

// Engine evaluates Rego policies against sampled architectures.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	store    storage.Store
	logger   *telemetry.Logger
}

// compiledPolicy represents a compiled Rego policy.
type compiledPolicy struct {
	policy *Policy
	pkg    string
	query  rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the built-in policies loaded and
// limits published as data.archspace.limits.
func NewEngine(logger *telemetry.Logger, limits Limits) (*Engine, error) {
	if logger == nil {
		logger = telemetry.Nop()
	}
	doc, err := limitsDocument(limits)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		store:    inmem.NewFromObject(map[string]any{"archspace": map[string]any{"limits": doc}}),
		logger:   logger.NewComponentLogger("policy-engine"),
	}

	if err := e.loadBuiltinPolicies(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in policies: %w", err)
	}

	return e, nil
}

// limitsDocument converts limits to the JSON shape policies read.
func limitsDocument(limits Limits) (map[string]any, error) {
	data, err := json.Marshal(limits)
	if err != nil {
		return nil, fmt.Errorf("failed to encode limits: %w", err)
	}
	doc := make(map[string]any)
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode limits: %w", err)
	}
	return doc, nil
}

// SetLimits replaces data.archspace.limits for subsequent evaluations.
func (e *Engine) SetLimits(ctx context.Context, limits Limits) error {
	doc, err := limitsDocument(limits)
	if err != nil {
		return err
	}
	if err := storage.WriteOne(ctx, e.store, storage.ReplaceOp, limitsPath, doc); err != nil {
		return fmt.Errorf("failed to write limits: %w", err)
	}
	return nil
}

// Evaluate evaluates every enabled policy against input. Policies run in
// name order and violations are sorted by policy, then message.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Result, error) {
	startTime := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedPolicies: []string{}}
	for _, name := range slices.Sorted(maps.Keys(e.policies)) {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.EvaluatedPolicies = append(result.EvaluatedPolicies, name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		result.Violations = append(result.Violations, violations...)
	}

	slices.SortStableFunc(result.Violations, func(a, b Violation) int {
		return cmp.Or(cmp.Compare(a.Policy, b.Policy), cmp.Compare(a.Message, b.Message))
	})
	for _, v := range result.Violations {
		if v.Severity.Blocking() {
			result.Allowed = false
			break
		}
	}
	result.EvaluatedAt = time.Now()
	result.Duration = time.Since(startTime)

	logger := e.logger
	if input.Sample != nil {
		logger = logger.WithSampleID(input.Sample.ID)
	}
	logger.Debug().
		Bool("allowed", result.Allowed).
		Int("violations", len(result.Violations)).
		Dur("duration", result.Duration).
		Msg("Sample policy evaluation completed")

	return result, nil
}

// EvaluateSample evaluates the enabled policies against a finalized sample.
func (e *Engine) EvaluateSample(ctx context.Context, script string, sample *sampler.Sample) (*Result, error) {
	return e.Evaluate(ctx, NewInput(script, sample))
}

// Constraint adapts the engine to a sampler constraint. Blocking violations
// reject the sample; the others are logged.
func (e *Engine) Constraint(script string) sampler.Constraint {
	return sampler.ConstraintFunc(func(ctx context.Context, sample *sampler.Sample) ([]string, error) {
		result, err := e.EvaluateSample(ctx, script, sample)
		if err != nil {
			return nil, err
		}
		var messages []string
		for _, v := range result.Violations {
			if v.Severity.Blocking() {
				messages = append(messages, fmt.Sprintf("%s: %s", v.Policy, v.Message))
				continue
			}
			e.logger.WithSampleID(sample.ID).Warn().
				Str("policy", v.Policy).
				Str("severity", string(v.Severity)).
				Msg(v.Message)
		}
		return messages, nil
	})
}

// evaluatePolicy evaluates a single compiled policy.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		if len(result.Expressions) == 0 {
			continue
		}
		// deny is a set, which evaluates to a slice.
		if denySet, ok := result.Expressions[0].Value.([]interface{}); ok {
			for _, d := range denySet {
				violations = append(violations, createViolation(cp.policy, d))
			}
		}
	}

	return violations, nil
}

// createViolation creates a Violation from a deny entry, either a message or
// an object with message, severity and module.
func createViolation(policy *Policy, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if module, ok := v["module"].(string); ok {
			violation.Module = module
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compileAndStorePolicy compiles a policy's deny query and stores it.
func (e *Engine) compileAndStorePolicy(ctx context.Context, policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}
	pkg := strings.TrimPrefix(module.Package.Path.String(), "data.")

	r := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Store(e.store),
		rego.Query(fmt.Sprintf("data.%s.deny", pkg)),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	if policy.Severity == "" {
		policy.Severity = SeverityError
	}
	e.policies[policy.Name] = &compiledPolicy{
		policy: policy,
		pkg:    pkg,
		query:  query,
	}

	e.logger.Debug().
		Str("policy", policy.Name).
		Str("package", pkg).
		Msg("Policy compiled successfully")

	return nil
}

// AddPolicy compiles policy and adds it, replacing any policy of the same
// name.
func (e *Engine) AddPolicy(ctx context.Context, policy Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.compileAndStorePolicy(ctx, &policy); err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", policy.Name, err)
	}
	return nil
}

// LoadPolicies loads policy files and directories on top of the current
// policies.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	policies, err := NewLoader(e.logger).LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(policies)).
		Msg("Policies loaded successfully")

	return nil
}

// ReplacePolicies swaps the loaded policies for the built-ins plus policies.
// Nothing changes if any of them fails to compile.
func (e *Engine) ReplacePolicies(ctx context.Context, policies []Policy) error {
	next := &Engine{
		policies: make(map[string]*compiledPolicy),
		store:    e.store,
		logger:   e.logger,
	}
	if err := next.loadBuiltinPolicies(ctx); err != nil {
		return err
	}
	for i := range policies {
		if err := next.compileAndStorePolicy(ctx, &policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.mu.Lock()
	e.policies = next.policies
	e.mu.Unlock()
	return nil
}

// loadBuiltinPolicies loads the built-in policies.
func (e *Engine) loadBuiltinPolicies(ctx context.Context) error {
	builtins := GetBuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStorePolicy(ctx, &builtins[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().
		Int("count", len(builtins)).
		Msg("Built-in policies loaded")

	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies sorted by name.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, name := range slices.Sorted(maps.Keys(e.policies)) {
		policies = append(policies, *e.policies[name].policy)
	}

	return policies
}

// ReloadPolicies drops every loaded policy and reloads the built-ins.
func (e *Engine) ReloadPolicies(ctx context.Context) error {
	return e.ReplacePolicies(ctx, nil)
}

// EnablePolicy enables a policy by name.
func (e *Engine) EnablePolicy(name string) error {
	return e.setEnabled(name, true)
}

// DisablePolicy disables a policy by name.
func (e *Engine) DisablePolicy(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")

	return nil
}
