package stores

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/archspace/archspace/pkg/core"
	"github.com/archspace/archspace/pkg/executor"
	"github.com/archspace/archspace/pkg/modules"
	"github.com/archspace/archspace/pkg/ops"
	"github.com/archspace/archspace/pkg/sampler"
)

// setupTestStore creates a migrated SQLite store in a temporary directory
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "archspace.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "archspace.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.HealthCheck(ctx); err == nil {
		t.Error("expected health check to fail before Init")
	}
	if err := store.Migrate(ctx); err == nil {
		t.Error("expected Migrate to fail before Init")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}
	// A second migration is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to re-run migrations: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}

	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"samples", "runs", "events"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

func TestSampleCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	violations := `["too deep"]`
	records := []*SampleRecord{
		{ID: "s-1", Script: "a.star", Seed: 7, Status: SampleStatusAccepted, Modules: 3, Depth: 3, Attempts: 1, CreatedAt: base},
		{ID: "s-2", Script: "a.star", Seed: 7, Status: SampleStatusRejected, Modules: 9, Depth: 9, Attempts: 1, Violations: &violations, CreatedAt: base.Add(time.Second)},
		{ID: "s-3", Script: "b.star", Seed: 1 << 63, Status: SampleStatusAccepted, Modules: 5, Depth: 2, Attempts: 2, Duration: time.Millisecond, CreatedAt: base.Add(2 * time.Second)},
	}
	for _, r := range records {
		if err := store.CreateSample(ctx, r); err != nil {
			t.Fatalf("failed to create sample: %v", err)
		}
	}

	got, err := store.GetSample(ctx, "s-3")
	if err != nil {
		t.Fatalf("failed to get sample: %v", err)
	}
	if got.Seed != 1<<63 {
		t.Errorf("expected seed %d, got %d", uint64(1<<63), got.Seed)
	}
	if got.Duration != time.Millisecond {
		t.Errorf("expected duration 1ms, got %v", got.Duration)
	}
	if got.Assignments != "[]" {
		t.Errorf("expected empty assignments, got %s", got.Assignments)
	}
	if !got.CreatedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("expected CreatedAt %v, got %v", base.Add(2*time.Second), got.CreatedAt)
	}

	all, err := store.ListSamples(ctx, SampleFilter{}, 10, 0)
	if err != nil {
		t.Fatalf("failed to list samples: %v", err)
	}
	if len(all) != 3 || all[0].ID != "s-3" || all[2].ID != "s-1" {
		t.Errorf("expected samples newest first, got %v", sampleIDs(all))
	}

	script := "a.star"
	status := SampleStatusRejected
	filtered, err := store.ListSamples(ctx, SampleFilter{Script: &script, Status: &status}, 10, 0)
	if err != nil {
		t.Fatalf("failed to list samples: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != "s-2" {
		t.Errorf("expected [s-2], got %v", sampleIDs(filtered))
	}
	if filtered[0].Violations == nil || *filtered[0].Violations != violations {
		t.Errorf("expected violations %s, got %v", violations, filtered[0].Violations)
	}

	page, err := store.ListSamples(ctx, SampleFilter{}, 1, 1)
	if err != nil {
		t.Fatalf("failed to list samples: %v", err)
	}
	if len(page) != 1 || page[0].ID != "s-2" {
		t.Errorf("expected second page [s-2], got %v", sampleIDs(page))
	}

	if err := store.DeleteSample(ctx, "s-1"); err != nil {
		t.Fatalf("failed to delete sample: %v", err)
	}
	if _, err := store.GetSample(ctx, "s-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteSample(ctx, "s-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
	if err := store.CreateSample(ctx, &SampleRecord{ID: "s-2", Script: "a.star", Status: SampleStatusAccepted}); err == nil {
		t.Error("expected error for duplicate sample ID")
	}
}

func TestRunCRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := store.CreateSample(ctx, &SampleRecord{ID: "s-1", Script: "a.star", Status: SampleStatusAccepted}); err != nil {
		t.Fatalf("failed to create sample: %v", err)
	}

	outputs := `{"Out":[1]}`
	msg := "boom"
	runs := []*RunRecord{
		{ID: "r-1", SampleID: "s-1", Status: RunStatusSucceeded, Inputs: `{"In":[1]}`, Outputs: &outputs, Levels: 2, StartedAt: start, Duration: time.Second},
		{ID: "r-2", SampleID: "s-1", Status: RunStatusFailed, Error: &msg, StartedAt: start.Add(time.Minute)},
	}
	for _, r := range runs {
		if err := store.CreateRun(ctx, r); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	got, err := store.GetRun(ctx, "r-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Outputs == nil || *got.Outputs != outputs {
		t.Errorf("expected outputs %s, got %v", outputs, got.Outputs)
	}
	if got.Duration != time.Second || got.Levels != 2 {
		t.Errorf("expected 1s over 2 levels, got %v over %d", got.Duration, got.Levels)
	}

	list, err := store.ListRunsBySample(ctx, "s-1")
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(list) != 2 || list[0].ID != "r-1" || list[1].Error == nil || *list[1].Error != msg {
		t.Errorf("expected runs in start order with error, got %+v", list)
	}
	if list[1].Inputs != "{}" {
		t.Errorf("expected default inputs {}, got %s", list[1].Inputs)
	}

	if err := store.CreateRun(ctx, &RunRecord{ID: "r-3", SampleID: "missing", Status: RunStatusSucceeded}); err == nil {
		t.Error("expected foreign key error for unknown sample")
	}

	// Deleting the sample removes its runs.
	if err := store.DeleteSample(ctx, "s-1"); err != nil {
		t.Fatalf("failed to delete sample: %v", err)
	}
	if _, err := store.GetRun(ctx, "r-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after cascade, got %v", err)
	}
}

func TestEvents(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateSample(ctx, &SampleRecord{ID: "s-1", Script: "a.star", Status: SampleStatusAccepted}); err != nil {
		t.Fatalf("failed to create sample: %v", err)
	}

	sampleID := "s-1"
	details := `{"attempt":1}`
	events := []*Event{
		{SampleID: &sampleID, Level: EventLevelInfo, Message: "sampled"},
		{SampleID: &sampleID, Level: EventLevelWarning, Message: "rejected", Details: &details},
		{Level: EventLevelInfo, Message: "session started"},
	}
	for _, e := range events {
		if err := store.AppendEvent(ctx, e); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
		if e.ID == 0 {
			t.Error("expected event ID to be set")
		}
	}

	all, err := store.GetEvents(ctx, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 events, got %d", len(all))
	}

	level := EventLevelWarning
	warnings, err := store.GetEvents(ctx, &sampleID, &level, 10, 0)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Message != "rejected" || warnings[0].Details == nil {
		t.Errorf("expected the rejection event, got %+v", warnings)
	}
}

func TestStats(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	stats, err := store.Stats(ctx, nil)
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if stats.Samples != 0 || stats.Runs != 0 {
		t.Errorf("expected empty stats, got %+v", stats)
	}

	for _, r := range []*SampleRecord{
		{ID: "s-1", Script: "a.star", Status: SampleStatusAccepted, Modules: 2, Depth: 2},
		{ID: "s-2", Script: "a.star", Status: SampleStatusAccepted, Modules: 4, Depth: 5},
		{ID: "s-3", Script: "a.star", Status: SampleStatusRejected, Modules: 40, Depth: 40},
		{ID: "s-4", Script: "b.star", Status: SampleStatusAccepted, Modules: 1, Depth: 1},
	} {
		if err := store.CreateSample(ctx, r); err != nil {
			t.Fatalf("failed to create sample: %v", err)
		}
	}
	for _, r := range []*RunRecord{
		{ID: "r-1", SampleID: "s-1", Status: RunStatusSucceeded},
		{ID: "r-2", SampleID: "s-2", Status: RunStatusFailed},
		{ID: "r-3", SampleID: "s-4", Status: RunStatusSucceeded},
	} {
		if err := store.CreateRun(ctx, r); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	script := "a.star"
	stats, err = store.Stats(ctx, &script)
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	want := Stats{Samples: 3, Rejected: 1, Runs: 2, FailedRuns: 1, AvgModules: 3, MaxDepth: 40}
	if *stats != want {
		t.Errorf("expected %+v, got %+v", want, *stats)
	}
}

func TestRecords(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	space := func(s *core.Scope) (core.Inputs, core.Outputs, map[string]*core.Hyperparameter, error) {
		r := ops.DefaultRegistry()
		reps := core.NewDiscrete(s, []int{2})
		frag, err := modules.SISORepeat(s, func() (core.Fragment, error) {
			return r.Build(s, "scale", map[string]*core.Hyperparameter{"factor": core.NewDiscrete(s, []float64{2})})
		}, reps)
		if err != nil {
			return nil, nil, nil, err
		}
		return frag.Inputs, frag.Outputs, nil, nil
	}
	sample, err := sampler.New(modules.NewSearchSpaceFactory(space), sampler.FirstPicker{}).Sample(ctx)
	if err != nil {
		t.Fatalf("failed to sample: %v", err)
	}

	record, err := NewSampleRecord("space.star", 42, sample, nil)
	if err != nil {
		t.Fatalf("failed to build sample record: %v", err)
	}
	if record.Status != SampleStatusAccepted || record.Modules != 2 || record.Depth != 2 {
		t.Errorf("expected an accepted 2-module record, got %+v", record)
	}
	if !strings.HasPrefix(record.Graph, "digraph SearchSpace {") {
		t.Errorf("expected DOT graph, got %q", record.Graph)
	}
	if err := store.CreateSample(ctx, record); err != nil {
		t.Fatalf("failed to create sample: %v", err)
	}

	feed := map[string]any{"In": ops.Vector{1}}
	result, runErr := executor.New().Run(ctx, sample.Graph, feed, sample.Space.Inputs, nil)
	if runErr != nil {
		t.Fatalf("failed to run: %v", runErr)
	}
	run, err := NewRunRecord(sample.ID, feed, result, runErr)
	if err != nil {
		t.Fatalf("failed to build run record: %v", err)
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	stored, err := store.GetRun(ctx, result.RunID)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	var outputs map[string][]float64
	if stored.Outputs == nil || json.Unmarshal([]byte(*stored.Outputs), &outputs) != nil {
		t.Fatalf("expected JSON outputs, got %v", stored.Outputs)
	}
	if got := outputs["Out"]; len(got) != 1 || got[0] != 4 {
		t.Errorf("expected Out [4], got %v", got)
	}
	if stored.Status != RunStatusSucceeded || stored.Error != nil {
		t.Errorf("expected a successful run, got %+v", stored)
	}

	rejected, err := NewSampleRecord("space.star", 42, sample, []string{"too many modules"})
	if err != nil {
		t.Fatalf("failed to build sample record: %v", err)
	}
	if rejected.Status != SampleStatusRejected || rejected.Violations == nil || *rejected.Violations != `["too many modules"]` {
		t.Errorf("expected a rejected record with violations, got %+v", rejected)
	}
}

func sampleIDs(records []*SampleRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
