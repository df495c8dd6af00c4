package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	jsonOutput  bool
	dumpMetrics bool
	storePath   string
	policyPaths []string
	pluginPaths []string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "archspace",
		Short: "archspace - neural architecture search spaces",
		Long: `archspace builds search spaces of architectures from Starlark scripts,
samples fully specified architectures from them and executes the result.

A script defines search_space() and composes operators with combinators
such as siso_or, siso_repeat and siso_optional. Every choice is a
hyperparameter; sampling assigns them until no choice is left.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (YAML or CUE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log every assignment and substitution")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&dumpMetrics, "metrics", false, "print collected metrics to stderr on exit")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "record samples and runs in this SQLite database")
	rootCmd.PersistentFlags().StringSliceVar(&policyPaths, "policy", nil, "Rego policy file or directory (repeatable)")
	rootCmd.PersistentFlags().StringSliceVar(&pluginPaths, "plugin", nil, "WASM operator plugin manifest or directory (repeatable)")

	rootCmd.AddCommand(newSampleCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newInspectCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
