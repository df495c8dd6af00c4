package core

// TraverseBackward visits every module reachable from outputs against the
// edge direction, breadth first, each module once. fn returns false to stop.
func TraverseBackward(outputs Outputs, fn func(Module) bool) {
	var queue []Module
	seen := make(map[Module]bool)
	push := func(m Module) {
		if m != nil && !seen[m] {
			seen[m] = true
			queue = append(queue, m)
		}
	}

	for _, name := range outputs.Names() {
		push(outputs[name].Module())
	}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		if !fn(m) {
			return
		}
		ins := m.Inputs()
		for _, name := range ins.Names() {
			if src, ok := ins[name].ConnectedOutput(); ok {
				push(src.Module())
			}
		}
	}
}

// TraverseForward visits every module reachable from inputs along the edge
// direction, breadth first, each module once. fn returns false to stop.
func TraverseForward(inputs Inputs, fn func(Module) bool) {
	var queue []Module
	seen := make(map[Module]bool)
	push := func(m Module) {
		if m != nil && !seen[m] {
			seen[m] = true
			queue = append(queue, m)
		}
	}

	for _, name := range inputs.Names() {
		push(inputs[name].Module())
	}
	for len(queue) > 0 {
		m := queue[0]
		queue = queue[1:]
		if !fn(m) {
			return
		}
		outs := m.Outputs()
		for _, name := range outs.Names() {
			for _, in := range outs[name].ConnectedInputs() {
				push(in.Module())
			}
		}
	}
}

// UnassignedHyperparameters returns the independent hyperparameters reachable
// from outputs that still need a value, in traversal order. Dependent
// hyperparameters contribute the unassigned hyperparameters they read.
func UnassignedHyperparameters(outputs Outputs) []*Hyperparameter {
	var out []*Hyperparameter
	seen := make(map[*Hyperparameter]bool)

	var visit func(h *Hyperparameter)
	visit = func(h *Hyperparameter) {
		if seen[h] {
			return
		}
		seen[h] = true
		if h.HasValueAssigned() {
			return
		}
		if h.IsDependent() {
			for _, dep := range h.Dependencies() {
				visit(dep)
			}
			return
		}
		out = append(out, h)
	}

	TraverseBackward(outputs, func(m Module) bool {
		hs := m.Hyperparameters()
		for _, name := range sortedKeys(hs) {
			visit(hs[name])
		}
		return true
	})
	return out
}

// PendingSubstitutions returns the substitution modules reachable from
// outputs that have not fired yet, including ones whose rewrite failed.
func PendingSubstitutions(outputs Outputs) []*SubstitutionModule {
	var out []*SubstitutionModule
	TraverseBackward(outputs, func(m Module) bool {
		if sm, ok := m.(*SubstitutionModule); ok && !sm.Done() {
			out = append(out, sm)
		}
		return true
	})
	return out
}

// IsSpecified reports whether every reachable hyperparameter is assigned and
// no substitution is pending.
func IsSpecified(outputs Outputs) bool {
	return len(UnassignedHyperparameters(outputs)) == 0 && len(PendingSubstitutions(outputs)) == 0
}
