package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/archspace/archspace/pkg/sampler"
	"github.com/archspace/archspace/pkg/watch"
)

func newSampleCommand() *cobra.Command {
	var (
		seed       uint64
		valuesPath string
		count      int
		format     string
		watchFiles bool
	)

	cmd := &cobra.Command{
		Use:   "sample SCRIPT",
		Short: "Sample architectures from a search space",
		Long: `Build the search space defined by SCRIPT and assign every hyperparameter
until a single architecture is left.

Values given with --values or in the config file are used for the
hyperparameters they name, by full name (H.depth-0) or base name (depth).
Everything else is picked at random from its domain.`,
		Example: `  # Draw one architecture
  archspace sample space.star

  # Draw five reproducible architectures as JSON
  archspace sample space.star --seed 42 --count 5 --format json

  # Pin the depth and render the graph
  archspace sample space.star --values values.yaml --format dot | dot -Tsvg

  # Reject samples deeper than 6 levels and record the rest
  archspace sample space.star --policy policies/ --store history.db -n 20

  # Redraw on every save
  archspace sample space.star --watch`,
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

			flags := cmd.Flags()
			if flags.Changed("seed") {
				env.cfg.Sample.Seed = seed
			}
			if flags.Changed("count") {
				env.cfg.Sample.Count = count
			}
			if flags.Changed("format") {
				env.cfg.Sample.Format = format
			}
			if jsonOutput {
				env.cfg.Sample.Format = "json"
			}
			if env.cfg.Sample.Count < 1 {
				return fmt.Errorf("count must be at least 1, got %d", env.cfg.Sample.Count)
			}

			script := args[0]
			if err := drawSamples(cmd, env, script, valuesPath); err != nil {
				if !watchFiles {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}
			if !watchFiles {
				return nil
			}

			paths := []string{script}
			if valuesPath != "" {
				paths = append(paths, valuesPath)
			}
			paths = append(paths, env.cfg.Policy.Paths...)
			w, err := watch.New(paths, watch.WithLogger(env.tel.Logger))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %d paths for changes\n", len(paths))

			ctx := cmd.Context()
			err = w.Run(ctx, func(changed []string) error {
				fmt.Fprintf(cmd.ErrOrStderr(), "Changed: %s\n", strings.Join(changed, ", "))
				if len(env.cfg.Policy.Paths) > 0 {
					if err := env.reloadPolicies(ctx); err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
						return err
					}
				}
				if err := drawSamples(cmd, env, script, valuesPath); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
					return err
				}
				return nil
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed")
	cmd.Flags().StringVar(&valuesPath, "values", "", "hyperparameter values file (YAML or CUE)")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of architectures to draw")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "output format (text, json, dot)")
	cmd.Flags().BoolVarP(&watchFiles, "watch", "w", false, "sample again whenever the script, values or policies change")

	return cmd
}

// drawSamples loads script and writes the configured number of samples,
// recording each accepted one when a store is open.
func drawSamples(cmd *cobra.Command, env *environment, script, valuesPath string) error {
	_, factory, err := env.factory(script)
	if err != nil {
		return err
	}
	picker, pinned, err := env.picker(valuesPath)
	if err != nil {
		return err
	}

	log.Debug().
		Str("script", script).
		Uint64("seed", env.cfg.Sample.Seed).
		Int("count", env.cfg.Sample.Count).
		Msg("Sampling architectures")

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	err = env.newSampler(script, factory, picker).Each(ctx, env.cfg.Sample.Count, func(_ int, s *sampler.Sample) error {
		if err := env.recordSample(ctx, script, s, nil); err != nil {
			return fmt.Errorf("failed to record sample %s: %w", s.ID, err)
		}
		return writeSample(out, env.cfg.Sample.Format, s)
	})
	env.warnUnused(pinned)
	return err
}

// sampleReport is the JSON form of a sample.
type sampleReport struct {
	ID          string               `json:"id"`
	Assignments []sampler.Assignment `json:"assignments"`
	Modules     []string             `json:"modules"`
	Levels      [][]string           `json:"levels"`
	Depth       int                  `json:"depth"`
	Attempts    int                  `json:"attempts"`
	Duration    time.Duration        `json:"duration"`
}

func writeSample(w io.Writer, format string, s *sampler.Sample) error {
	switch format {
	case "json":
		shape := s.Shape()
		report := sampleReport{
			ID:          s.ID,
			Assignments: s.Assignments,
			Modules:     slices.Concat(shape.Levels...),
			Levels:      shape.Levels,
			Depth:       shape.Depth,
			Attempts:    s.Attempts,
			Duration:    s.Duration,
		}
		return json.NewEncoder(w).Encode(report)
	case "dot":
		_, err := io.WriteString(w, s.Graph.ToDOT())
		return err
	case "text":
		fmt.Fprintf(w, "Sample %s\n", s.ID)
		for _, a := range s.Assignments {
			fmt.Fprintf(w, "  %s = %v\n", a.Hyperparameter, a.Value)
		}
		shape := s.Shape()
		_, err := fmt.Fprintf(w, "  %d modules, depth %d\n", shape.Modules, shape.Depth)
		return err
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}
