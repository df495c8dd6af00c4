package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/archspace/archspace/pkg/executor"
	"github.com/archspace/archspace/pkg/ops"
)

func newRunCommand() *cobra.Command {
	var (
		seed       uint64
		valuesPath string
		inputs     []string
	)

	cmd := &cobra.Command{
		Use:   "run SCRIPT",
		Short: "Sample an architecture and execute it",
		Long: `Draw one architecture from the search space defined by SCRIPT, feed
the given values to its inputs and print its outputs.

Each --input is a comma separated vector, optionally prefixed with the
input name. The name can be left out when the architecture has a single
input.`,
		Example: `  # Run a single-input architecture
  archspace run space.star --input 1,2,3

  # Name the inputs of a multi-input architecture
  archspace run space.star --input In0=1,2 --input In1=3,4 --seed 7`,
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

			if cmd.Flags().Changed("seed") {
				env.cfg.Sample.Seed = seed
			}

			_, factory, err := env.factory(args[0])
			if err != nil {
				return err
			}
			picker, pinned, err := env.picker(valuesPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sample, err := env.newSampler(args[0], factory, picker).Sample(ctx)
			env.warnUnused(pinned)
			if err != nil {
				return err
			}
			if err := env.recordSample(ctx, args[0], sample, nil); err != nil {
				return fmt.Errorf("failed to record sample %s: %w", sample.ID, err)
			}

			feed, err := parseFeed(inputs, sample.Space.Inputs.Names())
			if err != nil {
				return err
			}

			log.Debug().Str("sample_id", sample.ID).Int("modules", sample.Shape().Modules).Msg("Executing architecture")

			exec := executor.New(
				executor.WithTelemetry(env.tel),
				executor.WithMaxParallel(env.cfg.Sample.MaxParallel),
			)
			result, err := exec.Run(ctx, sample.Graph, feed, sample.Space.Inputs, sample.Space.Outputs)
			if rerr := env.recordRun(context.WithoutCancel(ctx), sample, feed, result, err); rerr != nil {
				log.Warn().Err(rerr).Str("sample_id", sample.ID).Msg("Failed to record run")
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return json.NewEncoder(out).Encode(struct {
					SampleID string           `json:"sample_id"`
					Result   *executor.Result `json:"result"`
				}{sample.ID, result})
			}
			for _, name := range sample.Space.Outputs.Names() {
				fmt.Fprintf(out, "%s = %v\n", name, result.Outputs[name])
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&valuesPath, "values", "", "hyperparameter values file (YAML or CUE)")
	cmd.Flags().StringArrayVarP(&inputs, "input", "i", nil, "input vector ([name=]v1,v2,...)")

	return cmd
}

// parseFeed turns --input flags into executor feed values for the named
// graph inputs.
func parseFeed(flags []string, names []string) (map[string]any, error) {
	feed := make(map[string]any, len(flags))
	for _, flag := range flags {
		name, values, found := strings.Cut(flag, "=")
		if !found {
			if len(names) != 1 {
				return nil, fmt.Errorf("input %q needs a name, the architecture has inputs %v", flag, names)
			}
			name, values = names[0], flag
		}
		if _, dup := feed[name]; dup {
			return nil, fmt.Errorf("input %s given twice", name)
		}

		var vec ops.Vector
		for _, field := range strings.Split(values, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("input %s: %w", name, err)
			}
			vec = append(vec, f)
		}
		feed[name] = vec
	}
	return feed, nil
}
