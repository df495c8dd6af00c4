package sampler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/archspace/archspace/pkg/core"
	"github.com/archspace/archspace/pkg/modules"
	"github.com/archspace/archspace/pkg/telemetry"
)

// Sample is one fully specified, finalized architecture.
type Sample struct {
	ID          string               `json:"id"`
	Space       *modules.SearchSpace `json:"-"`
	Graph       *core.Graph          `json:"-"`
	Assignments []Assignment         `json:"assignments"`
	Duration    time.Duration        `json:"duration"`

	// Attempts is the number of draws it took to satisfy the constraint.
	Attempts int `json:"attempts"`
}

// ErrRejected is wrapped by Sample when every draw violated the constraint.
var ErrRejected = errors.New("no sample satisfied the constraints")

// Constraint decides whether a finalized sample is kept. A non-empty list of
// violations rejects it.
type Constraint interface {
	Check(ctx context.Context, sample *Sample) ([]string, error)
}

// ConstraintFunc adapts a function to Constraint.
type ConstraintFunc func(ctx context.Context, sample *Sample) ([]string, error)

// Check calls f.
func (f ConstraintFunc) Check(ctx context.Context, sample *Sample) ([]string, error) {
	return f(ctx, sample)
}

// Sampler draws architectures from a search space factory.
//
// Every call to Sample rebuilds the search space in the factory's scope, which
// invalidates the handles of the previous sample unless the factory was
// created WithoutScopeReset. Consume a sample before drawing the next.
type Sampler struct {
	factory  *modules.SearchSpaceFactory
	picker   Picker
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	recorder *telemetry.Recorder

	constraint  Constraint
	maxAttempts int
	onReject    func(sample *Sample, violations []string)
}

// Option configures a Sampler.
type Option func(s *Sampler)

// WithTelemetry takes logger, metrics and tracer from a telemetry bundle.
func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(s *Sampler) {
		if tel == nil {
			return
		}
		s.logger = tel.Logger.NewComponentLogger("sampler")
		s.metrics = tel.Metrics
		s.tracer = tel.Tracer
	}
}

// WithRecorder reads assignment and substitution counts from rec, which must
// be the listener of the factory's scope. The counts are attached to the
// sample span.
func WithRecorder(rec *telemetry.Recorder) Option {
	return func(s *Sampler) { s.recorder = rec }
}

// WithConstraint redraws samples that violate c, up to maxAttempts draws per
// call to Sample. maxAttempts below 1 means a single draw.
func WithConstraint(c Constraint, maxAttempts int) Option {
	return func(s *Sampler) {
		s.constraint = c
		s.maxAttempts = max(maxAttempts, 1)
	}
}

// WithRejectHook calls fn with every rejected draw before the next one is
// built.
func WithRejectHook(fn func(sample *Sample, violations []string)) Option {
	return func(s *Sampler) { s.onReject = fn }
}

// New creates a sampler. A nil picker picks uniformly at random with seed 0.
func New(factory *modules.SearchSpaceFactory, picker Picker, opts ...Option) *Sampler {
	if picker == nil {
		picker = NewRandomPicker(0)
	}
	s := &Sampler{
		factory: factory,
		picker:  picker,
		logger:  telemetry.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sample builds a fresh search space, specifies it with the picker and
// finalizes the result. With a constraint, rejected draws are discarded and
// the search space is rebuilt until one passes or the attempts run out.
func (s *Sampler) Sample(ctx context.Context) (*Sample, error) {
	attempts := max(s.maxAttempts, 1)
	var violations []string
	for attempt := 1; attempt <= attempts; attempt++ {
		sample, err := s.draw(ctx)
		if err != nil {
			return nil, err
		}
		sample.Attempts = attempt
		if s.constraint != nil {
			violations, err = s.constraint.Check(ctx, sample)
			if err != nil {
				return nil, fmt.Errorf("failed to check sample %s: %w", sample.ID, err)
			}
		}
		if len(violations) == 0 {
			s.metrics.RecordSample("succeeded", sample.Shape().Modules, sample.Duration)
			return sample, nil
		}

		s.metrics.RecordSample("rejected", sample.Shape().Modules, sample.Duration)
		s.logger.WithSampleID(sample.ID).Debug().
			Int("attempt", attempt).
			Strs("violations", violations).
			Msg("sample rejected")
		if s.onReject != nil {
			s.onReject(sample, violations)
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %s", ErrRejected, attempts, strings.Join(violations, "; "))
}

// draw builds, specifies and finalizes one sample.
func (s *Sampler) draw(ctx context.Context) (*Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sample := &Sample{ID: uuid.New().String()}
	_, span := s.tracer.StartSampleSpan(ctx, sample.ID)
	defer span.End()
	logger := s.logger.WithSampleID(sample.ID)
	if s.recorder != nil {
		s.recorder.Reset()
	}

	timer := telemetry.NewTimer()
	err := s.build(sample)
	sample.Duration = timer.Duration()

	modulesCount := 0
	if sample.Graph != nil {
		shape := sample.Shape()
		modulesCount = shape.Modules
		span.SetAttributes(
			telemetry.AttrModules.Int(modulesCount),
			telemetry.AttrDepth.Int(shape.Depth),
		)
	}
	if s.recorder != nil {
		assignments, substitutions := s.recorder.Counts()
		span.SetAttributes(
			telemetry.AttrAssignments.Int(assignments),
			telemetry.AttrSubstitutions.Int(substitutions),
		)
	}

	if err != nil {
		s.metrics.RecordSample("failed", 0, sample.Duration)
		telemetry.CountError(s.metrics, err)
		telemetry.RecordError(span, err)
		logger.Warn().Err(err).Int("assignments", len(sample.Assignments)).Msg("sample failed")
		return nil, err
	}

	telemetry.RecordSuccess(span)
	logger.Debug().
		Int("assignments", len(sample.Assignments)).
		Int("modules", modulesCount).
		Dur("duration", sample.Duration).
		Msg("sample finalized")
	return sample, nil
}

func (s *Sampler) build(sample *Sample) error {
	space, err := s.factory.GetSearchSpace()
	if err != nil {
		return err
	}
	sample.Space = space

	sample.Assignments, err = Specify(space.Outputs, s.picker)
	if err != nil {
		return err
	}

	sample.Graph, err = core.Finalize(space.Outputs)
	if err != nil {
		return fmt.Errorf("failed to finalize sample: %w", err)
	}
	return nil
}

// Each draws n samples and calls fn with each one before drawing the next. It
// stops at the first error from either side.
func (s *Sampler) Each(ctx context.Context, n int, fn func(i int, sample *Sample) error) error {
	for i := 0; i < n; i++ {
		sample, err := s.Sample(ctx)
		if err != nil {
			return fmt.Errorf("sample %d: %w", i, err)
		}
		if err := fn(i, sample); err != nil {
			return err
		}
	}
	return nil
}
