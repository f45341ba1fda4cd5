package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/repository"
)

var _ repository.ExecutionRecordRepository = (*pgRecordRepo)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS execution_records (
	record_id         UUID PRIMARY KEY,
	request_id        TEXT        NOT NULL,
	requestor_id      TEXT        NOT NULL,
	language          TEXT        NOT NULL,
	status            TEXT        NOT NULL,
	provider_used     TEXT,
	attempt_count     INTEGER     NOT NULL DEFAULT 0,
	exit_code         INTEGER     NOT NULL DEFAULT 0,
	execution_time_ms BIGINT      NOT NULL DEFAULT 0,
	stdout_bytes      INTEGER     NOT NULL DEFAULT 0,
	stderr_bytes      INTEGER     NOT NULL DEFAULT 0,
	truncated         BOOLEAN     NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS execution_records_requestor_idx
	ON execution_records (requestor_id, created_at DESC);`

const recordColumns = `record_id, request_id, requestor_id, language, status, provider_used,
	attempt_count, exit_code, execution_time_ms, stdout_bytes, stderr_bytes, truncated, created_at`

type pgRecordRepo struct {
	pool *pgxpool.Pool
}

// NewPostgresRecordRepository creates a new PostgreSQL-backed execution record repository.
func NewPostgresRecordRepository(pool *pgxpool.Pool) repository.ExecutionRecordRepository {
	return &pgRecordRepo{pool: pool}
}

// Migrate creates the execution_records table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}

func (r *pgRecordRepo) Insert(ctx context.Context, rec *domain.ExecutionRecord) (bool, error) {
	query := `
		INSERT INTO execution_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (record_id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		rec.RecordID, rec.RequestID, rec.RequestorID, rec.Language, rec.Status, rec.ProviderUsed,
		rec.AttemptCount, rec.ExitCode, rec.ExecutionTimeMs, rec.StdoutBytes, rec.StderrBytes,
		rec.Truncated, rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("postgres: insert record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *pgRecordRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM execution_records WHERE record_id = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get record by id: %w", err)
	}
	return rec, nil
}

func (r *pgRecordRepo) ListByRequestor(ctx context.Context, requestorID string, limit int) ([]*domain.ExecutionRecord, error) {
	query := `SELECT ` + recordColumns + `
		FROM execution_records
		WHERE requestor_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, requestorID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list records: %w", err)
	}
	defer rows.Close()

	var out []*domain.ExecutionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list records: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*domain.ExecutionRecord, error) {
	rec := &domain.ExecutionRecord{}
	err := row.Scan(
		&rec.RecordID, &rec.RequestID, &rec.RequestorID, &rec.Language, &rec.Status, &rec.ProviderUsed,
		&rec.AttemptCount, &rec.ExitCode, &rec.ExecutionTimeMs, &rec.StdoutBytes, &rec.StderrBytes,
		&rec.Truncated, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}
