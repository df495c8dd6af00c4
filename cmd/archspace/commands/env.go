package commands

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/spf13/cobra"

	"github.com/archspace/archspace/pkg/config"
	"github.com/archspace/archspace/pkg/core"
	"github.com/archspace/archspace/pkg/executor"
	"github.com/archspace/archspace/pkg/modules"
	"github.com/archspace/archspace/pkg/ops"
	"github.com/archspace/archspace/pkg/plugin"
	"github.com/archspace/archspace/pkg/policy"
	"github.com/archspace/archspace/pkg/sampler"
	"github.com/archspace/archspace/pkg/spacescript"
	"github.com/archspace/archspace/pkg/stores"
	"github.com/archspace/archspace/pkg/telemetry"
)

// environment is what every command needs after the global flags are read.
type environment struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	recorder *telemetry.Recorder
	registry *ops.Registry
	plugins  plugin.Set
	policies *policy.Engine

	// store is nil when recording is disabled.
	store *stores.SQLiteStore
}

// setup loads the configuration named by --config, or the defaults, starts
// telemetry and opens the store, plugins and policies it names.
func setup(ctx context.Context) (_ *environment, err error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	cfg.Policy.Paths = append(cfg.Policy.Paths, policyPaths...)
	cfg.Plugins.Paths = append(cfg.Plugins.Paths, pluginPaths...)

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	env := &environment{
		cfg:      cfg,
		tel:      tel,
		recorder: telemetry.NewRecorder(tel.Logger.NewComponentLogger("scope"), tel.Metrics),
		registry: ops.DefaultRegistry(),
	}
	defer func() {
		if err != nil {
			_ = env.release()
			_ = tel.Shutdown(context.Background())
		}
	}()

	env.plugins, err = plugin.Load(ctx, cfg.Plugins.Paths, env.registry, &plugin.Config{
		MemoryLimitPages: cfg.Plugins.MemoryLimitPages,
		Logger:           tel.Logger,
	})
	if err != nil {
		return nil, err
	}

	env.policies, err = policy.NewEngine(tel.Logger, cfg.Policy.Limits)
	if err != nil {
		return nil, err
	}
	if len(cfg.Policy.Paths) > 0 {
		if err := env.policies.LoadPolicies(ctx, cfg.Policy.Paths); err != nil {
			return nil, err
		}
	}

	if cfg.Store.Path != "" {
		env.store, err = stores.Open(ctx, cfg.Store.Path)
		if err != nil {
			return nil, err
		}
	}
	return env, nil
}

// release closes the store and the plugins.
func (e *environment) release() error {
	var errs []error
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	errs = append(errs, e.plugins.Close(context.Background()))
	return errors.Join(errs...)
}

// close releases the store and plugins, dumps metrics when --metrics is set
// and flushes pending spans.
func (e *environment) close(cmd *cobra.Command) error {
	errs := []error{e.release()}
	if dumpMetrics {
		if err := e.tel.Metrics.WriteText(cmd.ErrOrStderr()); err != nil {
			errs = append(errs, fmt.Errorf("failed to write metrics: %w", err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return errors.Join(append(errs, e.tel.Shutdown(ctx))...)
}

// reloadPolicies replaces the loaded policies with the built-ins plus the
// configured policy paths.
func (e *environment) reloadPolicies(ctx context.Context) error {
	policies, err := policy.NewLoader(e.tel.Logger).LoadFromPaths(ctx, e.cfg.Policy.Paths)
	if err != nil {
		return err
	}
	return e.policies.ReplacePolicies(ctx, policies)
}

// factory loads the script at path. Samples are built in a scope that reports
// to the environment's recorder.
func (e *environment) factory(path string) (*spacescript.Script, *modules.SearchSpaceFactory, error) {
	script, err := spacescript.Load(path,
		spacescript.WithLogger(e.tel.Logger.NewComponentLogger("script")),
		spacescript.WithMaxSteps(e.cfg.Sample.MaxSteps),
		spacescript.WithRegistry(e.registry),
	)
	if err != nil {
		return nil, nil, err
	}
	scope := core.NewScope(core.WithListener(e.recorder))
	return script, script.Factory(modules.WithScope(scope)), nil
}

// picker pins the values from the configuration and valuesPath, in that
// order, and picks everything else at random.
func (e *environment) picker(valuesPath string) (sampler.Picker, *sampler.ValuesPicker, error) {
	values := make(map[string]any)
	maps.Copy(values, e.cfg.Sample.Values)
	if valuesPath != "" {
		fileValues, err := config.LoadValues(valuesPath)
		if err != nil {
			return nil, nil, err
		}
		maps.Copy(values, fileValues)
	}

	random := sampler.NewRandomPicker(e.cfg.Sample.Seed)
	if len(values) == 0 {
		return random, nil, nil
	}
	pinned := sampler.NewValuesPicker(values, random)
	return pinned, pinned, nil
}

// newSampler creates a sampler wired to the environment's telemetry. Samples
// of script are checked against the loaded policies, and rejected ones are
// recorded when a store is open.
func (e *environment) newSampler(script string, factory *modules.SearchSpaceFactory, picker sampler.Picker) *sampler.Sampler {
	return sampler.New(factory, picker,
		sampler.WithTelemetry(e.tel),
		sampler.WithRecorder(e.recorder),
		sampler.WithConstraint(e.policies.Constraint(script), e.cfg.Policy.MaxAttempts),
		sampler.WithRejectHook(func(s *sampler.Sample, violations []string) {
			if err := e.recordSample(context.Background(), script, s, violations); err != nil {
				e.tel.Logger.WithSampleID(s.ID).Warn().Err(err).Msg("Failed to record rejected sample")
			}
		}),
	)
}

// recordSample stores s when recording is enabled.
func (e *environment) recordSample(ctx context.Context, script string, s *sampler.Sample, violations []string) error {
	if e.store == nil {
		return nil
	}
	record, err := stores.NewSampleRecord(script, e.cfg.Sample.Seed, s, violations)
	if err != nil {
		return err
	}
	if err := e.store.CreateSample(ctx, record); err != nil {
		return err
	}
	if len(violations) == 0 {
		return nil
	}
	sampleID, details := record.ID, *record.Violations
	return e.store.AppendEvent(ctx, &stores.Event{
		SampleID: &sampleID,
		Level:    stores.EventLevelWarning,
		Message:  fmt.Sprintf("sample rejected by %d policy violations", len(violations)),
		Details:  &details,
	})
}

// recordRun stores an execution of sample s when recording is enabled.
func (e *environment) recordRun(ctx context.Context, s *sampler.Sample, feed map[string]any, result *executor.Result, runErr error) error {
	if e.store == nil || result == nil {
		return nil
	}
	record, err := stores.NewRunRecord(s.ID, feed, result, runErr)
	if err != nil {
		return err
	}
	return e.store.CreateRun(ctx, record)
}

// warnUnused logs pinned values that matched no hyperparameter.
func (e *environment) warnUnused(pinned *sampler.ValuesPicker) {
	if pinned == nil {
		return
	}
	if unused := pinned.Unused(); len(unused) > 0 {
		e.tel.Logger.Warn().Strs("names", unused).Msg("Pinned values matched no hyperparameter")
	}
}
