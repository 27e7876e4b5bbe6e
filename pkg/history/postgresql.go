package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// PostgreSQL driver registration.
	_ "github.com/lib/pq"

	"github.com/dukex/conveyor/pkg/models"
)

// PostgresStore keeps run records in a PostgreSQL table, with the workflow
// results serialized as a JSONB payload.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore connects to the database, runs migrations and returns the
// store.
func NewPostgresStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*PostgresStore, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	manager := newMigrationManager(logger, database, migrations())

	err = manager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: database, logger: logger}, nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS runs (
				id VARCHAR(255) PRIMARY KEY,
				status VARCHAR(32) NOT NULL,
				workflows JSONB NOT NULL DEFAULT '[]',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				duration_ms BIGINT NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at DESC);
		`,
	}
}

func (s *PostgresStore) SaveRun(ctx context.Context, record *RunRecord) error {
	payload, err := json.Marshal(record.Workflows)
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", record.ID, err)
	}

	query := `
		INSERT INTO runs (id, status, workflows, created_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			workflows = EXCLUDED.workflows,
			duration_ms = EXCLUDED.duration_ms
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID, record.Status, payload, record.CreatedAt, record.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", record.ID, err)
	}

	return nil
}

func (s *PostgresStore) Runs(ctx context.Context) ([]*RunRecord, error) {
	query := `
		SELECT id, status, workflows, created_at, duration_ms
		FROM runs
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	records := make([]*RunRecord, 0)

	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return records, nil
}

func (s *PostgresStore) RunByID(ctx context.Context, id string) (*RunRecord, error) {
	query := `
		SELECT id, status, workflows, created_at, duration_ms
		FROM runs
		WHERE id = $1
	`

	record, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}

	return record, err
}

func (s *PostgresStore) HealthCheck(ctx context.Context) error {
	err := s.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (s *PostgresStore) Close(_ context.Context) error {
	if s.db != nil {
		err := s.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		record     RunRecord
		payload    []byte
		durationMS int64
		createdAt  time.Time
	)

	err := row.Scan(&record.ID, &record.Status, &payload, &createdAt, &durationMS)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	record.Workflows = make([]*models.WorkflowResult, 0)

	err = json.Unmarshal(payload, &record.Workflows)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", record.ID, err)
	}

	record.CreatedAt = createdAt.UTC()
	record.Duration = time.Duration(durationMS) * time.Millisecond

	return &record, nil
}
