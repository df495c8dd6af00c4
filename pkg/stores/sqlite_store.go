package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is wrapped by lookups that match no row.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens its own database.
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Open creates, initializes and migrates a store at path.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)
	if s.cfg.Path != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CreateSample stores a sample record. CreatedAt defaults to now.
func (s *SQLiteStore) CreateSample(ctx context.Context, sample *SampleRecord) error {
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now().UTC()
	}
	if sample.Assignments == "" {
		sample.Assignments = "[]"
	}

	query := `
		INSERT INTO samples (
			id, script, seed, status, modules, depth, attempts, assignments, graph, violations, duration_ns, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		sample.ID,
		sample.Script,
		int64(sample.Seed),
		sample.Status,
		sample.Modules,
		sample.Depth,
		sample.Attempts,
		sample.Assignments,
		sample.Graph,
		sample.Violations,
		int64(sample.Duration),
		sample.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sample: %w", err)
	}

	return nil
}

const sampleColumns = `id, script, seed, status, modules, depth, attempts, assignments, graph, violations, duration_ns, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSample(row scanner) (*SampleRecord, error) {
	var (
		sample   SampleRecord
		seed     int64
		duration int64
	)
	err := row.Scan(
		&sample.ID,
		&sample.Script,
		&seed,
		&sample.Status,
		&sample.Modules,
		&sample.Depth,
		&sample.Attempts,
		&sample.Assignments,
		&sample.Graph,
		&sample.Violations,
		&duration,
		&sample.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sample.Seed = uint64(seed)
	sample.Duration = time.Duration(duration)
	return &sample, nil
}

// GetSample retrieves a sample by ID
func (s *SQLiteStore) GetSample(ctx context.Context, id string) (*SampleRecord, error) {
	query := `SELECT ` + sampleColumns + ` FROM samples WHERE id = ?`

	sample, err := scanSample(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sample %w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sample: %w", err)
	}

	return sample, nil
}

// ListSamples lists samples, newest first, with optional filters and pagination
func (s *SQLiteStore) ListSamples(ctx context.Context, filter SampleFilter, limit, offset int) ([]*SampleRecord, error) {
	query := `
		SELECT ` + sampleColumns + `
		FROM samples
		WHERE (? IS NULL OR script = ?)
		  AND (? IS NULL OR status = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		filter.Script, filter.Script,
		filter.Status, filter.Status,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	samples := []*SampleRecord{}
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		samples = append(samples, sample)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating samples: %w", err)
	}

	return samples, nil
}

// DeleteSample deletes a sample and, by cascade, its runs and events
func (s *SQLiteStore) DeleteSample(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM samples WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sample: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("sample %w: %s", ErrNotFound, id)
	}

	return nil
}

// CreateRun stores a run record. The sample must already be stored.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *RunRecord) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Inputs == "" {
		run.Inputs = "{}"
	}

	query := `
		INSERT INTO runs (id, sample_id, status, inputs, outputs, error, levels, started_at, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.SampleID,
		run.Status,
		run.Inputs,
		run.Outputs,
		run.Error,
		run.Levels,
		run.StartedAt,
		int64(run.Duration),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}

	return nil
}

const runColumns = `id, sample_id, status, inputs, outputs, error, levels, started_at, duration_ns`

func scanRun(row scanner) (*RunRecord, error) {
	var (
		run      RunRecord
		duration int64
	)
	err := row.Scan(
		&run.ID,
		&run.SampleID,
		&run.Status,
		&run.Inputs,
		&run.Outputs,
		&run.Error,
		&run.Levels,
		&run.StartedAt,
		&duration,
	)
	if err != nil {
		return nil, err
	}
	run.Duration = time.Duration(duration)
	return &run, nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = ?`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	return run, nil
}

// ListRunsBySample lists the runs of a sample in the order they started
func (s *SQLiteStore) ListRunsBySample(ctx context.Context, sampleID string) ([]*RunRecord, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE sample_id = ?
		ORDER BY started_at ASC, rowid ASC
	`

	rows, err := s.db.QueryContext(ctx, query, sampleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// AppendEvent appends an event to the log
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO events (sample_id, run_id, level, message, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.SampleID,
		event.RunID,
		event.Level,
		event.Message,
		event.Details,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}

	event.ID = id
	return nil
}

// GetEvents retrieves events with optional filters and pagination
func (s *SQLiteStore) GetEvents(ctx context.Context, sampleID *string, level *EventLevel, limit, offset int) ([]*Event, error) {
	query := `
		SELECT id, sample_id, run_id, level, message, details, timestamp
		FROM events
		WHERE (? IS NULL OR sample_id = ?)
		  AND (? IS NULL OR level = ?)
		ORDER BY id ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, sampleID, sampleID, level, level, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	events := []*Event{}
	for rows.Next() {
		event := &Event{}
		err := rows.Scan(
			&event.ID,
			&event.SampleID,
			&event.RunID,
			&event.Level,
			&event.Message,
			&event.Details,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// Stats aggregates the stored samples and runs, optionally for one script.
func (s *SQLiteStore) Stats(ctx context.Context, script *string) (*Stats, error) {
	stats := &Stats{}

	sampleQuery := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'rejected' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(CASE WHEN status = 'accepted' THEN modules END), 0),
			COALESCE(MAX(depth), 0)
		FROM samples
		WHERE (? IS NULL OR script = ?)
	`
	err := s.db.QueryRowContext(ctx, sampleQuery, script, script).Scan(
		&stats.Samples,
		&stats.Rejected,
		&stats.AvgModules,
		&stats.MaxDepth,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate samples: %w", err)
	}

	runQuery := `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN r.status != 'succeeded' THEN 1 ELSE 0 END), 0)
		FROM runs r
		JOIN samples s ON s.id = r.sample_id
		WHERE (? IS NULL OR s.script = ?)
	`
	if err := s.db.QueryRowContext(ctx, runQuery, script, script).Scan(&stats.Runs, &stats.FailedRuns); err != nil {
		return nil, fmt.Errorf("failed to aggregate runs: %w", err)
	}

	return stats, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
