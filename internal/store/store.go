// Package store persists attempt snapshots and batch summaries in
// PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/enroll-cli/internal/account"
)

// DBPool abstracts *pgxpool.Pool so tests can substitute pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS account_batches (
    id          UUID PRIMARY KEY,
    environment TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL,
    total       INTEGER NOT NULL,
    successful  INTEGER NOT NULL,
    failed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS account_attempts (
    id          UUID PRIMARY KEY,
    batch_id    UUID NOT NULL,
    email       TEXT NOT NULL,
    password    TEXT NOT NULL,
    nickname    TEXT NOT NULL,
    wid         TEXT,
    status      TEXT NOT NULL,
    environment TEXT NOT NULL,
    created_at  TIMESTAMP NOT NULL,
    updated_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS account_attempts_batch_id_idx ON account_attempts (batch_id);
`

const upsertAttemptSQL = `
INSERT INTO account_attempts (id, batch_id, email, password, nickname, wid, status, environment, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
    wid = EXCLUDED.wid,
    status = EXCLUDED.status,
    updated_at = EXCLUDED.updated_at;
`

const upsertBatchSQL = `
INSERT INTO account_batches (id, environment, created_at, total, successful, failed)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    total = EXCLUDED.total,
    successful = EXCLUDED.successful,
    failed = EXCLUDED.failed;
`

const selectAttemptsSQL = `
SELECT email, password, nickname, wid, status, environment, created_at, updated_at
FROM account_attempts
WHERE batch_id = $1
ORDER BY created_at ASC;
`

// Store implements orchestrator.Recorder on PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// EnsureSchema creates the tables when they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordAttempt upserts one snapshot.
func (s *Store) RecordAttempt(ctx context.Context, batchID string, snap account.Snapshot) error {
	args, err := attemptArgs(batchID, snap)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, upsertAttemptSQL, args...); err != nil {
		return fmt.Errorf("failed to upsert attempt %s: %w", snap.Email, err)
	}
	return nil
}

// RecordBatch writes the batch row and every snapshot in one transaction.
func (s *Store) RecordBatch(ctx context.Context, batchID string, r account.BatchResult) error {
	createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("invalid batch timestamp %q: %w", r.CreatedAt, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, upsertBatchSQL,
		batchID, string(r.Environment), createdAt.UTC(),
		r.TotalAccounts, r.SuccessfulAccounts, r.FailedAccounts,
	); err != nil {
		return fmt.Errorf("failed to upsert batch: %w", err)
	}
	for _, snap := range r.Accounts {
		args, err := attemptArgs(batchID, snap)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, upsertAttemptSQL, args...); err != nil {
			return fmt.Errorf("failed to upsert attempt %s: %w", snap.Email, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Debug("Batch persisted.", zap.String("batch_id", batchID), zap.Int("accounts", len(r.Accounts)))
	return nil
}

// AttemptsByBatch loads the snapshots of a batch in creation order.
func (s *Store) AttemptsByBatch(ctx context.Context, batchID string) ([]account.Snapshot, error) {
	rows, err := s.pool.Query(ctx, selectAttemptsSQL, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var snaps []account.Snapshot
	for rows.Next() {
		var (
			snap                 account.Snapshot
			status, env          string
			createdAt, updatedAt time.Time
		)
		if err := rows.Scan(&snap.Email, &snap.Password, &snap.Nickname, &snap.Identifier,
			&status, &env, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt row: %w", err)
		}
		if snap.Status, err = account.ParseStatus(status); err != nil {
			return nil, err
		}
		snap.Environment = account.Environment(env)
		snap.CreatedAt = createdAt.Format(account.TimestampLayout)
		snap.UpdatedAt = updatedAt.Format(account.TimestampLayout)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return snaps, nil
}

func attemptArgs(batchID string, snap account.Snapshot) ([]any, error) {
	if snap.ID == "" {
		return nil, fmt.Errorf("attempt %s has no id", snap.Email)
	}
	createdAt, err := time.ParseInLocation(account.TimestampLayout, snap.CreatedAt, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", snap.CreatedAt, err)
	}
	updatedAt, err := time.ParseInLocation(account.TimestampLayout, snap.UpdatedAt, time.Local)
	if err != nil {
		return nil, fmt.Errorf("invalid updated_at %q: %w", snap.UpdatedAt, err)
	}
	return []any{
		snap.ID, batchID, snap.Email, snap.Password, snap.Nickname, snap.Identifier,
		snap.Status.String(), string(snap.Environment), createdAt, updatedAt,
	}, nil
}
