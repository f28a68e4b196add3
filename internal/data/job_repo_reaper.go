package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/target/healwright/internal/core"
	"github.com/target/healwright/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations; major key 1000 is reserved for the reaper.
const (
	advisoryLockReaperMajor       = 1000
	advisoryLockReaperFailPending = 1
	advisoryLockReaperDelete      = 2
	advisoryLockReaperPrune       = 3
)

// reaperTx runs fn under the given reaper advisory lock. A lock held elsewhere yields zero rows.
func (r *JobRepo) reaperTx(ctx context.Context, minor int, fn func(tx *sql.Tx, now time.Time) (int64, error)) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := tryAdvisoryLock(ctx, tx, advisoryLockReaperMajor, minor)
			if err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}
			rowsAffected, err = fn(tx, r.timeProvider.Now().UTC())
			return err
		},
	})
	if err != nil {
		return 0, err
	}
	return rowsAffected, nil
}

// FailStalePendingJobs marks jobs that have been claimable for longer than maxAge as failed, up to
// batchSize per call. Age counts from the later of scheduled_at and updated_at, so a retry waiting
// out its backoff or a job requeued after a lapsed lease gets a fresh window. Their test runs are
// marked FAILED in the same statement.
func (r *JobRepo) FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}
	return r.reaperTx(ctx, advisoryLockReaperFailPending, func(tx *sql.Tx, now time.Time) (int64, error) {
		var n int64
		err := tx.QueryRowContext(ctx, `
			WITH stale AS (
				UPDATE jobs
				SET status = 'failed',
					last_error = 'Job timed out in pending status',
					completed_at = $1,
					updated_at = $1
				WHERE id IN (
					SELECT id FROM jobs
					WHERE status = 'pending'
					  AND GREATEST(scheduled_at, updated_at) < $2
					ORDER BY scheduled_at
					LIMIT $3
				)
				RETURNING test_run_id
			), runs AS (
				UPDATE test_runs t
				SET status = 'FAILED',
					error_message = 'Job timed out in pending status',
					completed_at = $1,
					updated_at = $1
				FROM stale
				WHERE t.id = stale.test_run_id
				  AND t.status NOT IN ('PASSED', 'FAILED', 'HEALED', 'PARTIAL', 'CANCELLED')
			)
			SELECT count(*) FROM stale
		`, now, now.Add(-maxAge), batchSize).Scan(&n)
		if err != nil {
			return 0, fmt.Errorf("fail stale pending jobs: %w", err)
		}
		return n, nil
	})
}

// DeleteOldJobs deletes jobs with the given status older than maxAge, up to batchSize per call.
func (r *JobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if !params.Status.Valid() {
		return 0, fmt.Errorf("invalid job status: %s", params.Status)
	}
	if params.Status.Active() {
		return 0, fmt.Errorf("refusing to delete %s jobs", params.Status)
	}
	if params.BatchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	return r.reaperTx(ctx, advisoryLockReaperDelete, func(tx *sql.Tx, now time.Time) (int64, error) {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM jobs
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = $1
				  AND (completed_at < $2 OR (completed_at IS NULL AND updated_at < $2))
				ORDER BY COALESCE(completed_at, updated_at)
				LIMIT $3
			)
		`, params.Status, now.Add(-params.MaxAge), params.BatchSize)
		if err != nil {
			return 0, fmt.Errorf("delete old jobs: %w", err)
		}
		return res.RowsAffected()
	})
}

// PruneCompletedJobs deletes completed jobs beyond the keep most recently completed ones.
func (r *JobRepo) PruneCompletedJobs(ctx context.Context, keep, batchSize int) (int64, error) {
	if keep < 0 {
		return 0, errors.New("keep must not be negative")
	}
	if batchSize <= 0 {
		return 0, errors.New("batch size must be greater than zero")
	}

	return r.reaperTx(ctx, advisoryLockReaperPrune, func(tx *sql.Tx, _ time.Time) (int64, error) {
		res, err := tx.ExecContext(ctx, `
			DELETE FROM jobs
			WHERE id IN (
				SELECT id FROM jobs
				WHERE status = 'completed'
				ORDER BY completed_at DESC NULLS LAST, id DESC
				OFFSET $1
				LIMIT $2
			)
		`, keep, batchSize)
		if err != nil {
			return 0, fmt.Errorf("prune completed jobs: %w", err)
		}
		return res.RowsAffected()
	})
}
