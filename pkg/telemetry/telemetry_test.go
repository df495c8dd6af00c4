package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/archspace/archspace/pkg/core"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"default", func(c *Config) {}, false},
		{"development", func(c *Config) { *c = *DevelopmentConfig() }, false},
		{"missing service", func(c *Config) { c.ServiceName = "" }, true},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }, true},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, true},
		{"bad sampling rate", func(c *Config) { c.Tracing.SamplingRate = 1.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Expected error=%v, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"})

	logger.NewComponentLogger("sampler").WithSampleID("s-1").WithModule("M.Scale-0").Info().Msg("sampled")

	out := buf.String()
	for _, want := range []string{`"component":"sampler"`, `"sample_id":"s-1"`, `"module":"M.Scale-0"`, `"message":"sampled"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log line to contain %s, got: %s", want, out)
		}
	}
}

func TestLogger_Context(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "info", Format: "json"})

	ctx := logger.WithRunID("r-1").WithContext(context.Background())
	FromContext(ctx).Info().Msg("from context")
	FromContext(context.Background()).Info().Msg("dropped")

	if !strings.Contains(buf.String(), `"run_id":"r-1"`) {
		t.Errorf("Expected run_id in output, got: %s", buf.String())
	}
	if strings.Contains(buf.String(), "dropped") {
		t.Errorf("Expected the fallback logger to discard output")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug").String() != "debug" {
		t.Errorf("Expected debug level")
	}
	if ParseLevel("nonsense").String() != "info" {
		t.Errorf("Expected unknown levels to default to info")
	}
}

func TestMetrics_Record(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	m.RecordSample("succeeded", 5, 10*time.Millisecond)
	m.RecordSample("failed", 0, time.Millisecond)
	m.RecordSample("succeeded", 7, 10*time.Millisecond)
	m.RecordRunStarted()
	m.RecordRunCompleted("succeeded", time.Millisecond)
	m.RecordModuleForward("Scale", "succeeded", time.Microsecond)

	if got := testutil.ToFloat64(m.samplesCompleted.WithLabelValues("succeeded")); got != 2 {
		t.Errorf("Expected 2 succeeded samples, got %v", got)
	}
	if got := testutil.ToFloat64(m.activeRuns); got != 0 {
		t.Errorf("Expected no active runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.modulesExecuted.WithLabelValues("Scale", "succeeded")); got != 1 {
		t.Errorf("Expected 1 forward, got %v", got)
	}
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	m.RecordSample("succeeded", 1, time.Second)
	m.RecordError("contract", "X")

	var buf bytes.Buffer
	if err := m.WriteText(&buf); err != nil || buf.Len() != 0 {
		t.Errorf("Expected empty dump from disabled metrics, got %q (%v)", buf.String(), err)
	}

	var nilMetrics *Metrics
	nilMetrics.RecordAssignment("Discrete")
}

func TestMetrics_WriteText(t *testing.T) {
	m, _ := NewMetrics(DefaultConfig().Metrics)
	m.RecordSubstitution("SISORepeat")

	var buf bytes.Buffer
	if err := m.WriteText(&buf); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(buf.String(), `archspace_substitutions_total{kind="SISORepeat"} 1`) {
		t.Errorf("Expected substitution counter in dump, got:\n%s", buf.String())
	}
}

func TestMetrics_Handler(t *testing.T) {
	m, _ := NewMetrics(DefaultConfig().Metrics)
	m.RecordAssignment("Bool")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "archspace_hyperparameter_assignments_total") {
		t.Errorf("Expected assignment counter in response")
	}
}

func TestRecorder(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"})
	m, _ := NewMetrics(DefaultConfig().Metrics)
	rec := NewRecorder(logger, m)

	s := core.NewScope(core.WithListener(rec))
	h := core.NewBool(s)
	if err := h.Assign(true); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	assignments, substitutions := rec.Counts()
	if assignments != 1 || substitutions != 0 {
		t.Errorf("Expected 1 assignment and 0 substitutions, got %d and %d", assignments, substitutions)
	}
	if got := testutil.ToFloat64(m.assignments.WithLabelValues("Bool")); got != 1 {
		t.Errorf("Expected assignment counted under Bool, got %v", got)
	}
	if !strings.Contains(buf.String(), `"hyperparameter":"H.Bool-0"`) {
		t.Errorf("Expected assignment logged, got: %s", buf.String())
	}

	rec.Reset()
	if a, _ := rec.Counts(); a != 0 {
		t.Errorf("Expected counters cleared, got %d", a)
	}
}

func TestCountError(t *testing.T) {
	m, _ := NewMetrics(DefaultConfig().Metrics)

	CountError(m, core.NewDomainError("out of domain", nil).WithCode(core.ErrCodeOutOfDomain))
	CountError(m, errors.New("plain"))
	CountError(m, nil)

	if got := testutil.ToFloat64(m.errorsByClass.WithLabelValues("domain")); got != 1 {
		t.Errorf("Expected 1 domain error, got %v", got)
	}
	if got := testutil.ToFloat64(m.errorsByCode.WithLabelValues(core.ErrCodeOutOfDomain)); got != 1 {
		t.Errorf("Expected 1 %s error, got %v", core.ErrCodeOutOfDomain, got)
	}
	if got := testutil.ToFloat64(m.errorsByClass.WithLabelValues("internal")); got != 1 {
		t.Errorf("Expected 1 internal error, got %v", got)
	}
}

func TestStartOperation(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	tel := NewNop()
	tel.Tracer = NewTracerFromProvider(provider, "test")

	ctx := tel.WithContext(context.Background())
	ic := StartOperation(ctx, "sample", AttrSampleID.String("s-1"))
	if TraceID(ic.Ctx) == "" {
		t.Errorf("Expected a trace id in the operation context")
	}
	ic.End(errors.New("boom"))

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span, got %d", len(spans))
	}
	if spans[0].Name() != "sample" || len(spans[0].Events()) == 0 {
		t.Errorf("Expected sample span with a recorded error, got %s with %d events", spans[0].Name(), len(spans[0].Events()))
	}

	bare := StartOperation(context.Background(), "noop")
	bare.End(nil)
	if bare.Span != nil {
		t.Errorf("Expected no span without telemetry in the context")
	}
}
