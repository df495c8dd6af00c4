package policy

// GetBuiltinPolicies returns all built-in policies. Each one reads its limit
// from data.archspace.limits and denies nothing while the limit is unset.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		moduleBudgetPolicy(),
		depthBudgetPolicy(),
		operatorBudgetPolicy(),
		forbiddenOperatorsPolicy(),
	}
}

func moduleBudgetPolicy() Policy {
	return Policy{
		Name:        "module-budget",
		Description: "Rejects samples with more modules than limits.max_modules",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"size"},
		Rego: `package archspace.policies.modules

import rego.v1

deny contains violation if {
	limit := data.archspace.limits.max_modules
	limit > 0
	input.sample.modules > limit
	violation := {
		"message": sprintf("sample has %v modules, limit is %v", [input.sample.modules, limit]),
		"severity": "error",
	}
}
`,
	}
}

func depthBudgetPolicy() Policy {
	return Policy{
		Name:        "depth-budget",
		Description: "Rejects samples deeper than limits.max_depth",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"size"},
		Rego: `package archspace.policies.depth

import rego.v1

deny contains violation if {
	limit := data.archspace.limits.max_depth
	limit > 0
	input.sample.depth > limit
	violation := {
		"message": sprintf("sample is %v levels deep, limit is %v", [input.sample.depth, limit]),
		"severity": "error",
	}
}
`,
	}
}

func operatorBudgetPolicy() Policy {
	return Policy{
		Name:        "operator-budget",
		Description: "Rejects samples using an operator kind more often than limits.max_operators allows",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"operators"},
		Rego: `package archspace.policies.operators

import rego.v1

deny contains violation if {
	some kind, limit in data.archspace.limits.max_operators
	n := object.get(input.sample.operators, kind, 0)
	n > limit
	violation := {
		"message": sprintf("sample uses %v %s operators, limit is %v", [n, kind, limit]),
		"severity": "error",
	}
}
`,
	}
}

func forbiddenOperatorsPolicy() Policy {
	return Policy{
		Name:        "forbidden-operators",
		Description: "Rejects samples using an operator kind listed in limits.forbidden_operators",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"operators"},
		Rego: `package archspace.policies.forbidden

import rego.v1

deny contains violation if {
	some kind in data.archspace.limits.forbidden_operators
	input.sample.operators[kind] > 0
	violation := {
		"message": sprintf("operator %s is forbidden", [kind]),
		"severity": "error",
	}
}
`,
	}
}
