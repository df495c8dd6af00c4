package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/archspace/archspace/pkg/stores"
)

var errNoStore = errors.New("no store configured, pass --store or set store.path")

func newHistoryCommand() *cobra.Command {
	var (
		script   string
		rejected bool
		limit    int
		stats    bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded samples",
		Long: `List the samples recorded in the store, newest first.

Samples are recorded by sample and run when --store is given or the
config file sets store.path. Rejected samples are recorded together with
the policy violations that rejected them.`,
		Example: `  archspace history --store history.db
  archspace history --store history.db --rejected --limit 5
  archspace history --store history.db --stats --json
  archspace history show 3f1c... --store history.db`,
		Args: cobra.NoArgs,
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
			if env.store == nil {
				return errNoStore
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			var scriptFilter *string
			if script != "" {
				scriptFilter = &script
			}

			if stats {
				st, err := env.store.Stats(ctx, scriptFilter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return json.NewEncoder(out).Encode(st)
				}
				fmt.Fprintf(out, "Samples:      %d (%d rejected)\n", st.Samples, st.Rejected)
				fmt.Fprintf(out, "Runs:         %d (%d failed)\n", st.Runs, st.FailedRuns)
				fmt.Fprintf(out, "Avg modules:  %.1f\n", st.AvgModules)
				fmt.Fprintf(out, "Max depth:    %d\n", st.MaxDepth)
				return nil
			}

			filter := stores.SampleFilter{Script: scriptFilter}
			if rejected {
				status := stores.SampleStatusRejected
				filter.Status = &status
			}
			samples, err := env.store.ListSamples(ctx, filter, limit, 0)
			if err != nil {
				return err
			}
			if jsonOutput {
				return json.NewEncoder(out).Encode(samples)
			}
			return writeHistory(out, samples)
		},
	}

	cmd.Flags().StringVar(&script, "script", "", "only list samples of this script")
	cmd.Flags().BoolVar(&rejected, "rejected", false, "only list rejected samples")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of samples")
	cmd.Flags().BoolVar(&stats, "stats", false, "print aggregate statistics instead")

	cmd.AddCommand(newHistoryShowCommand())
	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a recorded sample with its runs and events",
		Args:  cobra.ExactArgs(1),
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
			if env.store == nil {
				return errNoStore
			}

			ctx := cmd.Context()
			sample, err := env.store.GetSample(ctx, args[0])
			if errors.Is(err, stores.ErrNotFound) {
				return fmt.Errorf("sample %s not found", args[0])
			} else if err != nil {
				return err
			}
			runs, err := env.store.ListRunsBySample(ctx, sample.ID)
			if err != nil {
				return err
			}
			events, err := env.store.GetEvents(ctx, &sample.ID, nil, 100, 0)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return json.NewEncoder(out).Encode(struct {
					Sample *stores.SampleRecord `json:"sample"`
					Runs   []*stores.RunRecord  `json:"runs"`
					Events []*stores.Event      `json:"events"`
				}{sample, runs, events})
			}

			fmt.Fprintf(out, "Sample %s (%s)\n", sample.ID, sample.Status)
			fmt.Fprintf(out, "  script:      %s\n", sample.Script)
			fmt.Fprintf(out, "  seed:        %d\n", sample.Seed)
			fmt.Fprintf(out, "  modules:     %d, depth %d\n", sample.Modules, sample.Depth)
			fmt.Fprintf(out, "  attempts:    %d\n", sample.Attempts)
			fmt.Fprintf(out, "  assignments: %s\n", sample.Assignments)
			if sample.Violations != nil {
				fmt.Fprintf(out, "  violations:  %s\n", *sample.Violations)
			}
			for _, r := range runs {
				fmt.Fprintf(out, "Run %s %s in %s\n", r.ID, r.Status, r.Duration.Round(time.Microsecond))
				if r.Outputs != nil {
					fmt.Fprintf(out, "  outputs: %s\n", *r.Outputs)
				}
				if r.Error != nil {
					fmt.Fprintf(out, "  error:   %s\n", *r.Error)
				}
			}
			for _, e := range events {
				fmt.Fprintf(out, "%s [%s] %s\n", e.Timestamp.Format(time.RFC3339), e.Level, e.Message)
			}
			return nil
		},
	}
}

func writeHistory(w io.Writer, samples []*stores.SampleRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tMODULES\tDEPTH\tATTEMPTS\tSCRIPT\tCREATED")
	for _, s := range samples {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			s.ID, s.Status, s.Modules, s.Depth, s.Attempts, s.Script, s.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
