package telemetry

import (
	"errors"

	"github.com/archspace/archspace/pkg/core"
)

// Recorder is a core.Listener that logs every assignment and substitution at
// debug level and counts them in the metrics. It is not safe for concurrent
// use, matching the scope it listens to.
type Recorder struct {
	logger  *Logger
	metrics *Metrics

	assignments   int
	substitutions int
}

// NewRecorder creates a recorder. Either argument may be nil.
func NewRecorder(logger *Logger, metrics *Metrics) *Recorder {
	if logger == nil {
		logger = Nop()
	}
	return &Recorder{logger: logger, metrics: metrics}
}

// HyperparameterAssigned implements core.Listener.
func (r *Recorder) HyperparameterAssigned(h *core.Hyperparameter, value any) {
	r.assignments++
	r.logger.Debug().
		Str("hyperparameter", h.Name()).
		Interface("value", value).
		Bool("dependent", h.IsDependent()).
		Msg("hyperparameter assigned")
	r.metrics.RecordAssignment(core.BaseName(h.Name()))
}

// SubstitutionFired implements core.Listener.
func (r *Recorder) SubstitutionFired(m *core.SubstitutionModule, values map[string]any) {
	r.substitutions++
	r.logger.Debug().
		Str("module", m.Name()).
		Interface("values", values).
		Msg("substitution fired")
	r.metrics.RecordSubstitution(core.BaseName(m.Name()))
}

// Counts returns the assignments and substitutions seen since the last Reset.
func (r *Recorder) Counts() (assignments, substitutions int) {
	return r.assignments, r.substitutions
}

// Reset clears the counters.
func (r *Recorder) Reset() {
	r.assignments = 0
	r.substitutions = 0
}

// CountError counts err by class and code when it is a classified graph
// error, and as "internal" otherwise.
func CountError(m *Metrics, err error) {
	if err == nil {
		return
	}
	var e *core.Error
	if errors.As(err, &e) {
		m.RecordError(string(e.Class), e.Code)
		return
	}
	m.RecordError("internal", "")
}
