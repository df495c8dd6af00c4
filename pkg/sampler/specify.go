package sampler

import (
	"fmt"

	"github.com/archspace/archspace/pkg/core"
)

// Assignment is one value chosen for a hyperparameter.
type Assignment struct {
	Hyperparameter string `json:"hyperparameter"`
	Value          any    `json:"value"`
}

// Specify assigns the first unassigned hyperparameter reachable from outputs
// until none is left. Assignments can fire substitutions that expose new
// hyperparameters, so the set is recomputed after every step. It returns the
// assignments in the order they were made.
func Specify(outputs core.Outputs, picker Picker) ([]Assignment, error) {
	var assignments []Assignment
	for {
		unassigned := core.UnassignedHyperparameters(outputs)
		if len(unassigned) == 0 {
			return assignments, nil
		}
		h := unassigned[0]

		v, err := picker.Pick(h)
		if err != nil {
			return assignments, fmt.Errorf("pick %s: %w", h.Name(), err)
		}
		if err := h.Assign(v); err != nil {
			return assignments, fmt.Errorf("assign %s: %w", h.Name(), err)
		}
		assignments = append(assignments, Assignment{Hyperparameter: h.Name(), Value: v})
	}
}
