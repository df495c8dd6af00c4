package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/archspace/archspace/pkg/telemetry"
)

// Format is the syntax of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf picks the format from the file extension. CUE is a superset of
// JSON, so .json files are read as CUE.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".cue", ".json":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported configuration format: %s", path)
	}
}

// Loader reads configuration and hyperparameter value files.
type Loader struct {
	ctx       *cue.Context
	schema    cue.Value
	values    cue.Value
	validator *validator.Validate
}

// NewLoader creates a loader with the built-in schemas compiled.
func NewLoader() (*Loader, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(configSchema, cue.Filename("config-schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile config schema: %w", err)
	}
	values := ctx.CompileString(valuesSchema, cue.Filename("values-schema.cue"))
	if err := values.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile values schema: %w", err)
	}

	return &Loader{
		ctx:       ctx,
		schema:    schema.LookupPath(cue.ParsePath("#Config")),
		values:    values.LookupPath(cue.ParsePath("#Values")),
		validator: validator.New(),
	}, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Telemetry: *telemetry.DefaultConfig(),
		Sample: SampleConfig{
			Count:       1,
			Format:      "text",
			MaxParallel: 4,
		},
		Policy: PolicyConfig{
			MaxAttempts: 10,
		},
	}
}

// Load reads the configuration at path on top of Default.
func Load(path string) (*Config, error) {
	l, err := NewLoader()
	if err != nil {
		return nil, err
	}
	return l.Load(path)
}

// Load reads the configuration at path on top of Default.
func (l *Loader) Load(path string) (*Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return l.Parse(path, content, format)
}

// Parse decodes content on top of Default and validates the result. name is
// only used in error messages.
func (l *Loader) Parse(name string, content []byte, format Format) (*Config, error) {
	cfg := Default()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
	case FormatCUE:
		data, err := l.compile(name, content, l.schema)
		if err != nil {
			return nil, err
		}
		// Unmarshal over the defaults so fields the file leaves out keep them.
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration format: %s", format)
	}

	if err := l.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against its struct tags and the telemetry rules.
func (l *Loader) Validate(cfg *Config) error {
	if err := l.validator.Struct(cfg); err != nil {
		return convertValidatorErrors(err)
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		return ValidationErrors{{Path: "telemetry", Message: err.Error()}}
	}
	return nil
}

// LoadValues reads a hyperparameter values file: a flat map from full
// ("H.depth-0") or base ("depth") hyperparameter name to value.
func LoadValues(path string) (map[string]any, error) {
	l, err := NewLoader()
	if err != nil {
		return nil, err
	}
	return l.LoadValues(path)
}

// LoadValues reads a hyperparameter values file.
func (l *Loader) LoadValues(path string) (map[string]any, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read values file: %w", err)
	}

	values := make(map[string]any)
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(content, &values); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for name, v := range values {
			switch v.(type) {
			case int, float64, string, bool:
			default:
				return nil, ValidationErrors{{File: path, Path: name, Message: fmt.Sprintf("value %v is not a scalar", v)}}
			}
		}
	case FormatCUE:
		val, err := l.unify(path, content, l.values)
		if err != nil {
			return nil, err
		}
		if err := val.Decode(&values); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}
	return values, nil
}

// compile unifies content with schema and exports the result as JSON.
func (l *Loader) compile(name string, content []byte, schema cue.Value) ([]byte, error) {
	val, err := l.unify(name, content, schema)
	if err != nil {
		return nil, err
	}
	data, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", name, err)
	}
	return data, nil
}

func (l *Loader) unify(name string, content []byte, schema cue.Value) (cue.Value, error) {
	val := l.ctx.CompileBytes(content, cue.Filename(name))
	if err := val.Err(); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}
	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, convertCUEErrors(err)
	}
	return unified, nil
}

// convertCUEErrors converts CUE errors to ValidationErrors.
func convertCUEErrors(err error) ValidationErrors {
	var errs ValidationErrors
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Path:    strings.Join(e.Path(), "."),
			Message: cueerrors.Details(e, nil),
		}
		if pos := cueerrors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		errs = append(errs, ve)
	}
	return errs
}

// convertValidatorErrors converts struct tag failures to ValidationErrors.
func convertValidatorErrors(err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validation failed: %w", err)
	}
	errs := make(ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, ValidationError{
			Path:    fe.Namespace(),
			Message: fmt.Sprintf("failed on %q (value %v)", fe.Tag(), fe.Value()),
		})
	}
	return errs
}
