// Package telemetry provides the observability instrumentation for archspace.
//
// It integrates structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus) behind one Telemetry bundle that the sampler and the
// executor pull from the context.
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Recording Graph Events
//
// A Recorder implements core.Listener. Install it on the scope a search space
// is built in and every hyperparameter assignment and substitution is logged
// at debug level and counted:
//
//	rec := telemetry.NewRecorder(tel.Logger, tel.Metrics)
//	scope := core.NewScope(core.WithListener(rec))
//
// # Metrics
//
// Key metrics exposed:
//
//   - archspace_samples_total{status}
//   - archspace_sample_duration_seconds
//   - archspace_hyperparameter_assignments_total{hyperparameter}
//   - archspace_substitutions_total{kind}
//   - archspace_executions_total{status}
//   - archspace_modules_forwarded_total{kind,status}
//   - archspace_errors_by_class_total{class}
//
// Metrics.WriteText dumps them in the Prometheus text format, which is what
// the command line --metrics flag prints on exit.
//
// # Tracing
//
// Exporters: "stdout" for development, "otlp" for a collector over gRPC,
// "none" to generate spans without exporting them.
package telemetry
