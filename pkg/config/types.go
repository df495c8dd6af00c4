package config

import (
	"fmt"
	"strings"

	"github.com/archspace/archspace/pkg/policy"
	"github.com/archspace/archspace/pkg/telemetry"
)

// Config is the archspace configuration file.
type Config struct {
	// Telemetry configures logging, tracing and metrics.
	Telemetry telemetry.Config `yaml:"telemetry" json:"telemetry"`

	// Sample configures sampling and execution.
	Sample SampleConfig `yaml:"sample" json:"sample"`

	// Store configures the sample history database.
	Store StoreConfig `yaml:"store" json:"store"`

	// Policy constrains which samples are accepted.
	Policy PolicyConfig `yaml:"policy" json:"policy"`

	// Plugins configures WASM operator plugins.
	Plugins PluginConfig `yaml:"plugins" json:"plugins"`
}

// StoreConfig configures the SQLite sample history.
type StoreConfig struct {
	// Path is the database file. Empty disables recording.
	Path string `yaml:"path" json:"path"`
}

// PolicyConfig configures sample acceptance.
type PolicyConfig struct {
	// Paths are .rego or .json policy files or directories loaded on top of
	// the built-in policies.
	Paths []string `yaml:"paths" json:"paths,omitempty" validate:"dive,required"`

	// MaxAttempts bounds how many samples are drawn before giving up on one
	// that passes every policy.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" validate:"min=1"`

	// Limits parameterize the built-in policies.
	Limits policy.Limits `yaml:"limits" json:"limits"`
}

// PluginConfig configures WASM operator plugins.
type PluginConfig struct {
	// Paths are plugin manifests or directories holding them.
	Paths []string `yaml:"paths" json:"paths,omitempty" validate:"dive,required"`

	// MemoryLimitPages bounds plugin memory in 64KiB pages. Zero uses the
	// runtime default.
	MemoryLimitPages uint32 `yaml:"memory_limit_pages" json:"memory_limit_pages"`
}

// SampleConfig configures how architectures are drawn and executed.
type SampleConfig struct {
	// Seed seeds the random picker. Equal seeds draw equal samples.
	Seed uint64 `yaml:"seed" json:"seed"`

	// Count is the number of samples drawn per command.
	Count int `yaml:"count" json:"count" validate:"min=1"`

	// Format selects the sample output format (text, json, dot).
	Format string `yaml:"format" json:"format" validate:"oneof=text json dot"`

	// MaxParallel bounds concurrent forward calls within a graph level.
	MaxParallel int `yaml:"max_parallel" json:"max_parallel" validate:"min=1"`

	// MaxSteps bounds Starlark execution per sample. Zero means no limit.
	MaxSteps uint64 `yaml:"max_steps" json:"max_steps"`

	// Values pins hyperparameters by full or base name. Hyperparameters not
	// listed are picked at random.
	Values map[string]any `yaml:"values" json:"values,omitempty"`
}

// ValidationError is a configuration error with its location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path (e.g., "sample.count").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	if e.File != "" {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.File, e.Line, e.Column)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, "%s: ", e.Path)
	}
	b.WriteString(e.Message)
	return b.String()
}

// ValidationErrors collects every problem found in one configuration.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.String()
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(msgs, "; "))
}
