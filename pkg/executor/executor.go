package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/archspace/archspace/pkg/core"
	"github.com/archspace/archspace/pkg/telemetry"
)

// Status is the outcome of a run.
type Status string

const (
	// StatusSucceeded indicates every module forwarded.
	StatusSucceeded Status = "succeeded"

	// StatusFailed indicates a module failed to compile or forward.
	StatusFailed Status = "failed"

	// StatusCancelled indicates the context was done before the last level.
	StatusCancelled Status = "cancelled"
)

// ModuleResult records the forward call of one module.
type ModuleResult struct {
	Module   string        `json:"module"`
	Level    int           `json:"level"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result is the outcome of executing a finalized graph.
type Result struct {
	RunID     string                  `json:"run_id"`
	Status    Status                  `json:"status"`
	Outputs   map[string]any          `json:"outputs,omitempty"`
	Levels    int                     `json:"levels"`
	Modules   map[string]ModuleResult `json:"modules,omitempty"`
	StartedAt time.Time               `json:"started_at"`
	Duration  time.Duration           `json:"duration"`
}

// Executor runs finalized graphs. Modules on the same level are forwarded in
// parallel by a bounded worker pool; levels run in sequence.
type Executor struct {
	// maxParallel is the maximum number of concurrent forward calls
	maxParallel int

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// Option configures an Executor.
type Option func(e *Executor)

// WithMaxParallel bounds the number of concurrent forward calls per level.
func WithMaxParallel(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithTelemetry takes logger, metrics and tracer from a telemetry bundle.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(e *Executor) {
		if tel == nil {
			return
		}
		e.logger = tel.Logger.NewComponentLogger("executor")
		e.metrics = tel.Metrics
		e.tracer = tel.Tracer
	}
}

// New creates an executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		maxParallel: 4,
		logger:      telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run feeds the graph inputs, compiles every module once, forwards level by
// level and collects the values of outputs. A nil outputs map reads the
// outputs the graph was finalized from.
//
// The context is checked between levels; a cancelled run returns the
// context's error together with a partial result.
func (e *Executor) Run(
	ctx context.Context,
	g *core.Graph,
	feed map[string]any,
	inputs core.Inputs,
	outputs core.Outputs,
) (*Result, error) {
	if g == nil {
		return nil, core.NewContractError("graph is nil", nil)
	}
	if outputs == nil {
		outputs = g.Outputs
	}

	result := &Result{
		RunID:     uuid.New().String(),
		Status:    StatusFailed,
		Levels:    len(g.Levels),
		Modules:   make(map[string]ModuleResult, len(g.Nodes)),
		StartedAt: time.Now(),
	}

	ctx, span := e.tracer.StartRunSpan(ctx, result.RunID)
	defer span.End()
	logger := e.logger.WithRunID(result.RunID)

	e.metrics.RecordRunStarted()
	logger.Debug().Int("modules", len(g.Nodes)).Int("levels", len(g.Levels)).Msg("run started")

	err := e.execute(ctx, logger, g, feed, inputs, result)
	result.Duration = time.Since(result.StartedAt)

	if err == nil {
		result.Outputs, err = collect(outputs)
	}
	switch {
	case err == nil:
		result.Status = StatusSucceeded
	case ctx.Err() != nil:
		result.Status = StatusCancelled
	}

	e.metrics.RecordRunCompleted(string(result.Status), result.Duration)
	if err != nil {
		telemetry.CountError(e.metrics, err)
		telemetry.RecordError(span, err)
		logger.Warn().Err(err).Str("status", string(result.Status)).Msg("run did not complete")
		return result, err
	}

	telemetry.RecordSuccess(span)
	logger.Debug().Dur("duration", result.Duration).Msg("run completed")
	return result, nil
}

func (e *Executor) execute(
	ctx context.Context,
	logger *telemetry.Logger,
	g *core.Graph,
	feed map[string]any,
	inputs core.Inputs,
	result *Result,
) error {
	if err := feedInputs(inputs, feed); err != nil {
		return err
	}

	// Compile runs sequentially: compile functions read hyperparameter values
	// that belong to the scope.
	for _, m := range g.Order() {
		if err := m.Compile(); err != nil {
			return fmt.Errorf("compile %s: %w", m.Name(), err)
		}
	}

	for level, names := range g.Levels {
		if err := ctx.Err(); err != nil {
			return err
		}

		modules := make([]core.Module, len(names))
		for i, name := range names {
			modules[i] = g.Nodes[name].Module
		}

		if err := e.executeLevelParallel(ctx, level, modules, result); err != nil {
			return fmt.Errorf("level %d failed: %w", level, err)
		}
		logger.Debug().Int("level", level).Int("modules", len(modules)).Msg("level forwarded")
	}

	return nil
}

// executeLevelParallel forwards every module of a level using a worker pool.
// Each module writes only its own outputs and reads only its own inputs, so
// modules of one level never touch the same port.
func (e *Executor) executeLevelParallel(ctx context.Context, level int, modules []core.Module, result *Result) error {
	workerCount := e.maxParallel
	if len(modules) < workerCount {
		workerCount = len(modules)
	}

	workQueue := make(chan core.Module, len(modules))
	for _, m := range modules {
		workQueue <- m
	}
	close(workQueue)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errChan = make(chan error, len(modules))
	)

	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range workQueue {
				mr, err := e.forward(ctx, level, m)
				mu.Lock()
				result.Modules[m.Name()] = mr
				mu.Unlock()
				if err != nil {
					errChan <- err
				}
			}
		}()
	}

	wg.Wait()
	close(errChan)

	var firstErr error
	for err := range errChan {
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Executor) forward(ctx context.Context, level int, m core.Module) (ModuleResult, error) {
	_, span := e.tracer.StartModuleSpan(ctx, m.Name(), level)
	defer span.End()

	timer := telemetry.NewTimer()
	err := m.Forward()
	mr := ModuleResult{Module: m.Name(), Level: level, Duration: timer.Duration()}

	status := string(StatusSucceeded)
	if err != nil {
		status = string(StatusFailed)
		mr.Error = err.Error()
		telemetry.RecordError(span, err)
		err = fmt.Errorf("forward %s: %w", m.Name(), err)
	}
	e.metrics.RecordModuleForward(core.BaseName(m.Name()), status, mr.Duration)
	return mr, err
}

// feedInputs supplies a value to every graph input. Unknown names and inputs
// left without a value are rejected before anything runs.
func feedInputs(inputs core.Inputs, feed map[string]any) error {
	for name := range feed {
		if _, ok := inputs[name]; !ok {
			return core.NewContractError(fmt.Sprintf("feed names unknown input %q", name), nil).
				WithCode(core.ErrCodeBadValue).
				WithDetail("inputs", inputs.Names())
		}
	}
	for _, name := range inputs.Names() {
		v, ok := feed[name]
		if !ok {
			return core.NewTraversalError(fmt.Sprintf("graph input %q has no value", name), nil).
				WithCode(core.ErrCodeUnresolvedInput)
		}
		if err := inputs[name].Feed(v); err != nil {
			return err
		}
	}
	return nil
}

func collect(outputs core.Outputs) (map[string]any, error) {
	values := make(map[string]any, len(outputs))
	for _, name := range outputs.Names() {
		v, ok := outputs[name].Value()
		if !ok {
			return nil, core.NewTraversalError(fmt.Sprintf("graph output %q has no value", name), nil).
				WithCode(core.ErrCodeUnresolvedInput)
		}
		values[name] = v
	}
	return values, nil
}
