package stores

import (
	"context"
	"database/sql"
	"time"
)

// SampleStatus records whether a sample passed the sampling constraints.
type SampleStatus string

const (
	SampleStatusAccepted SampleStatus = "accepted"
	SampleStatusRejected SampleStatus = "rejected"
)

// RunStatus mirrors the executor's run outcome.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// SampleRecord is a sampled architecture as it is persisted.
type SampleRecord struct {
	ID          string        `json:"id"`
	Script      string        `json:"script"`
	Seed        uint64        `json:"seed"`
	Status      SampleStatus  `json:"status"`
	Modules     int           `json:"modules"`
	Depth       int           `json:"depth"`
	Attempts    int           `json:"attempts"`
	Assignments string        `json:"assignments"`          // JSON array
	Graph       string        `json:"graph"`                // DOT
	Violations  *string       `json:"violations,omitempty"` // JSON array
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"created_at"`
}

// RunRecord is one forward pass over a stored sample.
type RunRecord struct {
	ID        string        `json:"id"`
	SampleID  string        `json:"sample_id"`
	Status    RunStatus     `json:"status"`
	Inputs    string        `json:"inputs"`            // JSON object
	Outputs   *string       `json:"outputs,omitempty"` // JSON object
	Error     *string       `json:"error,omitempty"`
	Levels    int           `json:"levels"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Event represents an append-only log event
type Event struct {
	ID        int64      `json:"id"`
	SampleID  *string    `json:"sample_id,omitempty"`
	RunID     *string    `json:"run_id,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// SampleFilter narrows ListSamples. Nil fields match everything.
type SampleFilter struct {
	Script *string
	Status *SampleStatus
}

// Stats summarizes the stored history of one script, or of all scripts.
type Stats struct {
	Samples    int     `json:"samples"`
	Rejected   int     `json:"rejected"`
	Runs       int     `json:"runs"`
	FailedRuns int     `json:"failed_runs"`
	AvgModules float64 `json:"avg_modules"`
	MaxDepth   int     `json:"max_depth"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Sample operations
	CreateSample(ctx context.Context, sample *SampleRecord) error
	GetSample(ctx context.Context, id string) (*SampleRecord, error)
	ListSamples(ctx context.Context, filter SampleFilter, limit, offset int) ([]*SampleRecord, error)
	DeleteSample(ctx context.Context, id string) error

	// Run operations
	CreateRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRunsBySample(ctx context.Context, sampleID string) ([]*RunRecord, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, sampleID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Reporting
	Stats(ctx context.Context, script *string) (*Stats, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
