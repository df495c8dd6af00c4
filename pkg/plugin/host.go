package plugin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/archspace/archspace/pkg/ops"
	"github.com/archspace/archspace/pkg/telemetry"
)

// Config configures the WASM runtime backing a plugin.
type Config struct {
	// Timeout bounds a single call into the module.
	Timeout time.Duration

	// MemoryLimitPages is the memory limit in 64KiB pages.
	MemoryLimitPages uint32

	Logger *telemetry.Logger
}

func (c *Config) withDefaults() Config {
	out := Config{Timeout: 5 * time.Second, MemoryLimitPages: 256}
	if c == nil {
		out.Logger = telemetry.Nop()
		return out
	}
	if c.Timeout > 0 {
		out.Timeout = c.Timeout
	}
	if c.MemoryLimitPages > 0 {
		out.MemoryLimitPages = c.MemoryLimitPages
	}
	out.Logger = c.Logger
	if out.Logger == nil {
		out.Logger = telemetry.Nop()
	}
	return out
}

// Plugin is an instantiated WASM module whose exports serve as operators.
type Plugin struct {
	manifest *Manifest
	runtime  wazero.Runtime
	module   api.Module
	funcs    map[string]api.Function
	timeout  time.Duration
	logger   *telemetry.Logger

	// Calls into one module instance are serialized.
	mu sync.Mutex
}

// New instantiates wasm and checks every operator the manifest declares
// against the module's exports.
func New(ctx context.Context, manifest *Manifest, wasm []byte, cfg *Config) (*Plugin, error) {
	c := cfg.withDefaults()

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithMemoryLimitPages(c.MemoryLimitPages).
		WithCloseOnContextDone(true))

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	module, err := runtime.InstantiateWithConfig(ctx, wasm, wazero.NewModuleConfig().
		WithName(manifest.Name).
		WithStartFunctions("_initialize"))
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASM module: %w", err)
	}

	p := &Plugin{
		manifest: manifest,
		runtime:  runtime,
		module:   module,
		funcs:    make(map[string]api.Function, len(manifest.Operators)),
		timeout:  c.Timeout,
		logger:   c.Logger.NewComponentLogger("plugin").WithField("plugin", manifest.Name),
	}
	for _, op := range manifest.Operators {
		fn, err := lookup(module, op)
		if err != nil {
			runtime.Close(ctx)
			return nil, err
		}
		p.funcs[op.Kind] = fn
	}

	p.logger.Debug().
		Int("operators", len(p.funcs)).
		Uint32("memory_pages", c.MemoryLimitPages).
		Msg("Plugin instantiated")
	return p, nil
}

// lookup finds the export implementing op and checks its signature.
func lookup(module api.Module, op OperatorSpec) (api.Function, error) {
	fn := module.ExportedFunction(op.ExportName())
	if fn == nil {
		return nil, fmt.Errorf("operator %s: module does not export %s", op.Kind, op.ExportName())
	}
	def := fn.Definition()
	params, results := def.ParamTypes(), def.ResultTypes()
	ok := len(params) == 1+len(op.Params) && len(results) == 1 && results[0] == api.ValueTypeF64
	for _, t := range params {
		ok = ok && t == api.ValueTypeF64
	}
	if !ok {
		return nil, fmt.Errorf("operator %s: export %s must take %d f64 arguments and return one f64",
			op.Kind, op.ExportName(), 1+len(op.Params))
	}
	return fn, nil
}

// Manifest returns the plugin manifest.
func (p *Plugin) Manifest() *Manifest {
	return p.manifest
}

// Call applies the operator kind to x with the given parameter values.
func (p *Plugin) Call(ctx context.Context, kind string, x float64, params []float64) (float64, error) {
	fn, ok := p.funcs[kind]
	if !ok {
		return 0, fmt.Errorf("plugin %s has no operator %s", p.manifest.Name, kind)
	}
	args := make([]uint64, 0, 1+len(params))
	args = append(args, api.EncodeF64(x))
	for _, v := range params {
		args = append(args, api.EncodeF64(v))
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	p.mu.Lock()
	results, err := fn.Call(ctx, args...)
	p.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("operator %s: %w", kind, err)
	}
	return api.DecodeF64(results[0]), nil
}

// Register adds every operator of the plugin to r. Operators apply the
// export to each element of their input vector.
func (p *Plugin) Register(r *ops.Registry) error {
	for _, op := range p.manifest.Operators {
		if err := r.Register(op.Kind, ops.Spec{Params: op.Params, Compile: p.compile(op)}); err != nil {
			return fmt.Errorf("plugin %s: %w", p.manifest.Name, err)
		}
	}
	return nil
}

func (p *Plugin) compile(op OperatorSpec) ops.CompileFunc {
	return func(hv map[string]any) (ops.ForwardFunc, error) {
		params := make([]float64, len(op.Params))
		for i, name := range op.Params {
			v, err := ops.ToScalar(hv[name])
			if err != nil {
				return nil, fmt.Errorf("operator %s parameter %s: %w", op.Kind, name, err)
			}
			params[i] = v
		}
		return func(in map[string]any) (map[string]any, error) {
			x, err := ops.ToVector(in["In"])
			if err != nil {
				return nil, err
			}
			out := make(ops.Vector, len(x))
			for i, v := range x {
				if out[i], err = p.Call(context.Background(), op.Kind, v, params); err != nil {
					return nil, err
				}
			}
			return map[string]any{"Out": out}, nil
		}, nil
	}
}

// Close releases the module and its runtime.
func (p *Plugin) Close(ctx context.Context) error {
	if err := p.runtime.Close(ctx); err != nil {
		return fmt.Errorf("failed to close WASM runtime: %w", err)
	}
	return nil
}
