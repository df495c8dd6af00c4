package spacescript

import (
	"fmt"
	"os"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/archspace/archspace/pkg/core"
	"github.com/archspace/archspace/pkg/modules"
	"github.com/archspace/archspace/pkg/ops"
	"github.com/archspace/archspace/pkg/telemetry"
)

// EntryPoint is the function every search space script must define. It takes
// no arguments and returns a fragment.
const EntryPoint = "search_space"

// Script is a search space written in Starlark.
type Script struct {
	filename string
	src      []byte
	registry *ops.Registry
	logger   *telemetry.Logger
	maxSteps uint64
	globals  map[string]any
}

// Option configures a Script.
type Option func(s *Script)

// WithRegistry sets the operator registry used by op() and combiner().
func WithRegistry(r *ops.Registry) Option {
	return func(s *Script) { s.registry = r }
}

// WithLogger sets the logger print() writes to.
func WithLogger(l *telemetry.Logger) Option {
	return func(s *Script) { s.logger = l }
}

// WithMaxSteps bounds the number of Starlark computation steps per sample.
// Zero means no limit.
func WithMaxSteps(n uint64) Option {
	return func(s *Script) { s.maxSteps = n }
}

// WithGlobals makes extra values visible to the script.
func WithGlobals(globals map[string]any) Option {
	return func(s *Script) { s.globals = globals }
}

// Load reads a script from path.
func Load(path string, opts ...Option) (*Script, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search space script: %w", err)
	}
	return New(path, src, opts...), nil
}

// New creates a script from source. filename is only used in error messages.
func New(filename string, src []byte, opts ...Option) *Script {
	s := &Script{
		filename: filename,
		src:      src,
		registry: ops.DefaultRegistry(),
		logger:   telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Filename returns the name the script was created with.
func (s *Script) Filename() string { return s.filename }

// SearchSpaceFn returns a function that executes the script in a fresh
// Starlark thread and calls its entry point. Hyperparameters created with an
// explicit name are exposed.
func (s *Script) SearchSpaceFn() modules.SearchSpaceFn {
	return func(scope *core.Scope) (core.Inputs, core.Outputs, map[string]*core.Hyperparameter, error) {
		b := &builder{
			scope:    scope,
			registry: s.registry,
			exposed:  make(map[string]*core.Hyperparameter),
		}
		b.thread = &starlark.Thread{
			Name: s.filename,
			Print: func(_ *starlark.Thread, msg string) {
				s.logger.Info().Str("script", s.filename).Msg(msg)
			},
		}
		if s.maxSteps > 0 {
			b.thread.SetMaxExecutionSteps(s.maxSteps)
		}

		predeclared := b.predeclared()
		predeclared["struct"] = starlark.NewBuiltin("struct", starlarkstruct.Make)
		for name, v := range s.globals {
			sv, err := toStarlark(v)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("global %s: %w", name, err)
			}
			predeclared[name] = sv
		}

		globals, err := starlark.ExecFile(b.thread, s.filename, s.src, predeclared)
		if err != nil {
			return nil, nil, nil, scriptError(err)
		}
		entry, ok := globals[EntryPoint].(starlark.Callable)
		if !ok {
			return nil, nil, nil, core.NewContractError(
				fmt.Sprintf("%s does not define %s()", s.filename, EntryPoint), nil).
				WithCode(core.ErrCodeBadValue)
		}

		res, err := starlark.Call(b.thread, entry, nil, nil)
		if err != nil {
			return nil, nil, nil, scriptError(err)
		}
		frag, err := asFragment(res)
		if err != nil {
			return nil, nil, nil, core.NewContractError(
				fmt.Sprintf("%s() returned %s, want fragment", EntryPoint, res.Type()), nil).
				WithCode(core.ErrCodeBadValue)
		}
		return frag.Inputs, frag.Outputs, b.exposed, nil
	}
}

// Factory returns a search space factory for the script.
func (s *Script) Factory(opts ...modules.FactoryOption) *modules.SearchSpaceFactory {
	return modules.NewSearchSpaceFactory(s.SearchSpaceFn(), opts...)
}

// Check builds the search space once in a throwaway scope.
func (s *Script) Check() error {
	_, err := s.Factory().GetSearchSpace()
	return err
}

// scriptError keeps the Starlark backtrace in the message and the core error,
// if one caused the failure, in the chain.
func scriptError(err error) error {
	evalErr, ok := err.(*starlark.EvalError)
	if !ok {
		return err
	}
	if cause := evalErr.Unwrap(); cause != nil {
		return fmt.Errorf("%s: %w", evalErr.Backtrace(), cause)
	}
	return fmt.Errorf("%s", evalErr.Backtrace())
}
