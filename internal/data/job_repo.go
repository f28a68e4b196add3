package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/target/healwright/internal/domain/job"
	"github.com/target/healwright/internal/domain/model"
)

// DefaultJobChannel is the LISTEN/NOTIFY channel signalled when a job becomes claimable.
const DefaultJobChannel = "healwright_jobs"

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	// Retry drives the backoff applied by Fail and the max_retries stamped on new jobs.
	Retry        job.RetryPolicy
	Channel      string
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// JobRepo is the Postgres-backed job queue.
type JobRepo struct {
	DB           *sql.DB
	retry        job.RetryPolicy
	channel      string
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	channel := cfg.Channel
	if channel == "" {
		channel = DefaultJobChannel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:           db,
		retry:        cfg.Retry.Normalize(),
		channel:      channel,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

const jobColumns = `
  id,
  test_run_id,
  project_id,
  commit_ref,
  metadata,
  status,
  progress,
  scheduled_at,
  started_at,
  completed_at,
  retry_count,
  max_retries,
  last_error,
  lease_expires_at,
  created_at,
  updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	metadata                               []byte
	lastError                              sql.NullString
	startedAt, completedAt, leaseExpiresAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner rowScanner, j *model.Job) error {
	return scanner.Scan(
		&j.ID,
		&j.TestRunID,
		&j.ProjectID,
		&j.CommitRef,
		&d.metadata,
		&j.Status,
		&j.Progress,
		&j.ScheduledAt,
		&d.startedAt,
		&d.completedAt,
		&j.RetryCount,
		&j.MaxRetries,
		&d.lastError,
		&d.leaseExpiresAt,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
}

func (d *jobRowData) apply(j *model.Job) error {
	if len(d.metadata) > 0 {
		if err := json.Unmarshal(d.metadata, &j.Metadata); err != nil {
			return err
		}
	}
	j.LastError = cloneNullableString(d.lastError)
	j.StartedAt = cloneNullableTime(d.startedAt)
	j.CompletedAt = cloneNullableTime(d.completedAt)
	j.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
	j.ScheduledAt = j.ScheduledAt.UTC()
	j.CreatedAt = j.CreatedAt.UTC()
	j.UpdatedAt = j.UpdatedAt.UTC()
	return nil
}

func scanJob(scanner rowScanner) (*model.Job, error) {
	j := &model.Job{}
	var d jobRowData
	if err := d.scanInto(scanner, j); err != nil {
		return nil, err
	}
	if err := d.apply(j); err != nil {
		return nil, err
	}
	return j, nil
}

// collectJob reads exactly one job from rows, returning pgx.ErrNoRows when the set is empty.
func collectJob(rows pgx.Rows) (*model.Job, error) {
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, pgx.ErrNoRows
	}
	j, err := scanJob(rows)
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return j, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func cloneNullableFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// tryAdvisoryLock takes a transaction-scoped advisory lock without waiting.
func tryAdvisoryLock(ctx context.Context, tx *sql.Tx, major, minor int) (bool, error) {
	var locked bool
	err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1::integer, $2::integer)", major, minor).Scan(&locked)
	return locked, err
}
