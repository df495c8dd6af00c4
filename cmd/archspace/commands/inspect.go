package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/archspace/archspace/pkg/core"
)

// hyperparameterInfo describes one hyperparameter of an unsampled space.
type hyperparameterInfo struct {
	Name     string `json:"name"`
	Domain   string `json:"domain"`
	Assigned bool   `json:"assigned"`
	Value    any    `json:"value,omitempty"`
}

// spaceReport is what inspect prints.
type spaceReport struct {
	Inputs        []string             `json:"inputs"`
	Outputs       []string             `json:"outputs"`
	Exposed       []hyperparameterInfo `json:"exposed"`
	Unassigned    []hyperparameterInfo `json:"unassigned"`
	Substitutions []string             `json:"pending_substitutions"`
}

func newInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect SCRIPT",
		Short: "List the open choices of a search space",
		Long: `Build the search space defined by SCRIPT without assigning anything and
list its inputs, outputs, exposed hyperparameters, the hyperparameters
that need a value next and the substitutions waiting for them.

Hyperparameters inside unexpanded substitutions only appear once the
hyperparameters they depend on are assigned.`,
		Example: `  archspace inspect space.star
  archspace inspect space.star --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			env, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := env.close(cmd); err == nil {
					err = cerr
				}
			}()

			_, factory, err := env.factory(args[0])
			if err != nil {
				return err
			}
			space, err := factory.GetSearchSpace()
			if err != nil {
				return err
			}

			report := spaceReport{
				Inputs:  space.Inputs.Names(),
				Outputs: space.Outputs.Names(),
			}
			for _, name := range slices.Sorted(maps.Keys(space.Hyperparameters)) {
				report.Exposed = append(report.Exposed, describe(space.Hyperparameters[name]))
			}
			for _, h := range core.UnassignedHyperparameters(space.Outputs) {
				report.Unassigned = append(report.Unassigned, describe(h))
			}
			for _, m := range core.PendingSubstitutions(space.Outputs) {
				report.Substitutions = append(report.Substitutions, m.Name())
			}

			if jsonOutput {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(report)
			}
			return writeSpaceReport(cmd.OutOrStdout(), report)
		},
	}

	return cmd
}

func describe(h *core.Hyperparameter) hyperparameterInfo {
	v, ok := h.Value()
	return hyperparameterInfo{
		Name:     h.Name(),
		Domain:   h.Domain().String(),
		Assigned: ok,
		Value:    v,
	}
}

func writeSpaceReport(w io.Writer, r spaceReport) error {
	fmt.Fprintf(w, "Inputs:  %v\n", r.Inputs)
	fmt.Fprintf(w, "Outputs: %v\n", r.Outputs)

	fmt.Fprintln(w, "Exposed hyperparameters:")
	for _, h := range r.Exposed {
		state := "unassigned"
		if h.Assigned {
			state = fmt.Sprintf("= %v", h.Value)
		}
		fmt.Fprintf(w, "  %-24s %-24s %s\n", h.Name, h.Domain, state)
	}

	fmt.Fprintln(w, "Unassigned hyperparameters:")
	for _, h := range r.Unassigned {
		fmt.Fprintf(w, "  %-24s %s\n", h.Name, h.Domain)
	}

	fmt.Fprintln(w, "Pending substitutions:")
	for _, name := range r.Substitutions {
		fmt.Fprintf(w, "  %s\n", name)
	}
	return nil
}
