package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/target/healwright/internal/data/pgxutil"
	"github.com/target/healwright/internal/domain/model"
	apperrors "github.com/target/healwright/internal/errors"
)

const (
	insertTestRunSQL = `
  INSERT INTO test_runs (id, project_id, commit_ref, status, created_at, updated_at)
  VALUES ($1, $2, $3, 'PENDING', $4, $4)
  ON CONFLICT (id) DO NOTHING`

	// Partial-index inference: a concurrent active job for the run makes this a no-op.
	insertJobSQL = `
  INSERT INTO jobs (id, test_run_id, project_id, commit_ref, metadata, status, scheduled_at, max_retries, created_at, updated_at)
  VALUES ($1, $2, $3, $4, $5, 'pending', $6, $7, $6, $6)
  ON CONFLICT (test_run_id) WHERE status IN ('pending', 'running') DO NOTHING
  RETURNING ` + jobColumns

	// A new job for a finished run starts a fresh attempt of that run.
	resetFinishedRunSQL = `
  UPDATE test_runs
  SET status = 'PENDING',
      commit_ref = $2,
      passed = 0, failed = 0, healed = 0, total = 0,
      error_message = NULL,
      started_at = NULL,
      completed_at = NULL,
      updated_at = $3
  WHERE id = $1 AND status IN ('PASSED', 'FAILED', 'HEALED', 'PARTIAL', 'CANCELLED')`

	selectActiveJobSQL = `
  SELECT ` + jobColumns + `
  FROM jobs
  WHERE test_run_id = $1 AND status IN ('pending', 'running')
  LIMIT 1`

	reserveNextUpdateSQL = `
  WITH cte AS (
    SELECT id FROM jobs
    WHERE status = 'pending' AND scheduled_at <= $1
    ORDER BY scheduled_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE jobs j
  SET
    status = 'running',
    progress = 0,
    started_at = COALESCE(j.started_at, $1),
    lease_expires_at = $2,
    updated_at = $1
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.test_run_id, j.project_id, j.commit_ref, j.metadata, j.status, j.progress, j.scheduled_at, j.started_at, j.completed_at, j.retry_count, j.max_retries, j.last_error, j.lease_expires_at, j.created_at, j.updated_at`

	// SET expressions read the pre-update row, so retry_count here is the prior failure count.
	failJobSQL = `
  UPDATE jobs
  SET
    last_error = $2,
    retry_count = retry_count + 1,
    status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
    completed_at = CASE WHEN retry_count + 1 >= max_retries THEN $3::timestamptz ELSE NULL END,
    lease_expires_at = NULL,
    scheduled_at = CASE WHEN retry_count + 1 >= max_retries THEN scheduled_at
                        ELSE $3::timestamptz + make_interval(secs => LEAST($4::double precision * power(2, retry_count), $5::double precision))
                   END,
    updated_at = $3
  WHERE id = $1 AND status = 'running'
  RETURNING status, scheduled_at`
)

// Enqueue records the test run if it is new and inserts a pending job for it unless one is
// already active. created is false when the returned job is the existing active one.
func (r *JobRepo) Enqueue(ctx context.Context, params model.CreateJobParams) (*model.Job, bool, error) {
	if err := params.Request.Validate(); err != nil {
		return nil, false, err
	}
	if strings.TrimSpace(params.ID) == "" {
		return nil, false, errors.New("job id is required")
	}

	meta, err := json.Marshal(params.Request.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("marshal metadata: %w", err)
	}
	maxRetries := params.MaxRetries
	if maxRetries <= 0 {
		maxRetries = r.retry.MaxAttempts
	}

	var (
		out     *model.Job
		created bool
	)
	txErr := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			req := params.Request

			if _, execErr := tx.Exec(ctx, insertTestRunSQL, req.TestRunID, req.ProjectID, req.CommitRef, now); execErr != nil {
				return fmt.Errorf("insert test run: %w", apperrors.MapDBError(execErr))
			}

			rows, qerr := tx.Query(ctx, insertJobSQL,
				params.ID, req.TestRunID, req.ProjectID, req.CommitRef, meta, now, maxRetries)
			if qerr != nil {
				return fmt.Errorf("insert job: %w", apperrors.MapDBError(qerr))
			}
			j, cerr := collectJob(rows)
			rows.Close()

			switch {
			case cerr == nil:
				if _, execErr := tx.Exec(ctx, resetFinishedRunSQL, req.TestRunID, req.CommitRef, now); execErr != nil {
					return fmt.Errorf("reset test run: %w", execErr)
				}
				if _, execErr := tx.Exec(ctx, `SELECT pg_notify($1::text, $2::text)`, r.channel, j.ID); execErr != nil {
					return fmt.Errorf("send job notification: %w", execErr)
				}
				out, created = j, true
				return nil
			case errors.Is(cerr, pgx.ErrNoRows):
				existing, selErr := r.activeJobInTx(ctx, tx, req.TestRunID)
				if selErr != nil {
					return selErr
				}
				out = existing
				return nil
			default:
				return fmt.Errorf("collect job: %w", cerr)
			}
		},
	})
	if txErr != nil {
		return nil, false, txErr
	}
	return out, created, nil
}

func (r *JobRepo) activeJobInTx(ctx context.Context, tx pgx.Tx, testRunID string) (*model.Job, error) {
	rows, err := tx.Query(ctx, selectActiveJobSQL, testRunID)
	if err != nil {
		return nil, fmt.Errorf("select active job: %w", err)
	}
	defer rows.Close()
	j, err := collectJob(rows)
	if err != nil {
		return nil, fmt.Errorf("select active job: %w", err)
	}
	return j, nil
}

// Advisory lock namespace for lease recovery.
const (
	advisoryLockRequeueMajor = 1001
	advisoryLockRequeueMinor = 1
)

// requeueExpired returns running jobs whose lease lapsed to the pending state.
func (r *JobRepo) requeueExpired(ctx context.Context) (int64, error) {
	var rowsAffected int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			locked, err := tryAdvisoryLock(ctx, tx, advisoryLockRequeueMajor, advisoryLockRequeueMinor)
			if err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				return nil
			}

			now := r.timeProvider.Now().UTC()
			res, err := tx.ExecContext(ctx, `
          UPDATE jobs
          SET status = 'pending', lease_expires_at = NULL, updated_at = $1
          WHERE status = 'running'
            AND lease_expires_at IS NOT NULL
            AND lease_expires_at < $1
        `, now)
			if err != nil {
				return fmt.Errorf("requeue expired: %w", err)
			}
			rowsAffected, err = res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		return 0, err
	}
	if rowsAffected > 0 {
		r.logger.WarnContext(ctx, "requeued jobs with expired leases", "count", rowsAffected)
	}
	return rowsAffected, nil
}

// ReserveNext claims the oldest eligible pending job and leases it for leaseSeconds.
func (r *JobRepo) ReserveNext(ctx context.Context, leaseSeconds int) (*model.Job, error) {
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}
	if _, err := r.requeueExpired(ctx); err != nil {
		return nil, fmt.Errorf("requeue expired jobs: %w", err)
	}

	var out *model.Job
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			lease := now.Add(time.Duration(leaseSeconds) * time.Second)

			rows, qerr := tx.Query(ctx, reserveNextUpdateSQL, now, lease)
			if qerr != nil {
				return fmt.Errorf("reserve job: %w", qerr)
			}
			defer rows.Close()

			j, cerr := collectJob(rows)
			if errors.Is(cerr, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if cerr != nil {
				return fmt.Errorf("reserve job: %w", cerr)
			}
			out = j
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Heartbeat refreshes the lease on a running job.
func (r *JobRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}

	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, jobID, now.Add(time.Duration(leaseSeconds)*time.Second), now)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateProgress records the completion percentage of a running job, clamped to 0..100.
func (r *JobRepo) UpdateProgress(ctx context.Context, jobID string, progress int) error {
	progress = max(0, min(progress, 100))
	if _, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET progress = $2, updated_at = $3
		WHERE id = $1 AND status = 'running'
	`, jobID, progress, r.timeProvider.Now().UTC()); err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return nil
}

// Complete acks a running job.
func (r *JobRepo) Complete(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'completed',
		    progress = 100,
		    completed_at = $2,
		    updated_at = $2,
		    lease_expires_at = NULL,
		    last_error = NULL
		WHERE id = $1 AND status = 'running'
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("complete job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("complete rows affected: %w", err)
	}
	return n > 0, nil
}

// Fail nacks a running job. The job is rescheduled with exponential backoff until it has failed
// max_retries times, after which it stays in the failed state.
func (r *JobRepo) Fail(ctx context.Context, id, errMsg string) (model.NackResult, error) {
	now := r.timeProvider.Now().UTC()

	var (
		status      string
		scheduledAt time.Time
	)
	err := r.DB.QueryRowContext(ctx, failJobSQL,
		id, errMsg, now, r.retry.BaseDelay.Seconds(), r.retry.MaxDelay.Seconds(),
	).Scan(&status, &scheduledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NackResult{}, nil
	}
	if err != nil {
		return model.NackResult{}, fmt.Errorf("fail job: %w", err)
	}

	res := model.NackResult{Updated: true, Terminal: status == string(model.JobStatusFailed)}
	if !res.Terminal {
		at := scheduledAt.UTC()
		res.RetryAt = &at
	}
	return res, nil
}

// CancelPending withdraws the pending job of a test run and marks the run CANCELLED. A running job
// is left to its worker, whose later transitions of the run become no-ops. It reports whether the
// run was cancelled by this call.
func (r *JobRepo) CancelPending(ctx context.Context, testRunID string) (bool, error) {
	var cancelled bool
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			now := r.timeProvider.Now().UTC()
			if _, err := tx.ExecContext(ctx, `
				UPDATE jobs
				SET status = 'cancelled', completed_at = $2, updated_at = $2, lease_expires_at = NULL
				WHERE test_run_id = $1 AND status = 'pending'
			`, testRunID, now); err != nil {
				return fmt.Errorf("cancel pending jobs: %w", err)
			}
			res, err := tx.ExecContext(ctx, `
				UPDATE test_runs
				SET status = 'CANCELLED', completed_at = $2, updated_at = $2
				WHERE id = $1 AND status NOT IN ('PASSED', 'FAILED', 'HEALED', 'PARTIAL', 'CANCELLED')
			`, testRunID, now)
			if err != nil {
				return fmt.Errorf("cancel test run: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			cancelled = n > 0
			return nil
		},
	})
	return cancelled, err
}

// Stats returns job counts per status.
func (r *JobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')   AS pending,
    count(*) FILTER (WHERE status = 'running')   AS running,
    count(*) FILTER (WHERE status = 'completed') AS completed,
    count(*) FILTER (WHERE status = 'failed')    AS failed,
    count(*) FILTER (WHERE status = 'cancelled') AS cancelled
  FROM jobs
  `).Scan(&s.Pending, &s.Running, &s.Completed, &s.Failed, &s.Cancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to get job stats: %w", err)
	}
	return &s, nil
}

// WaitForNotification blocks until a job notification arrives on the queue channel or ctx ends.
func (r *JobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer func() { _ = conn.Close() }()

	quoted := pgx.Identifier{r.channel}.Sanitize()
	if _, execErr := conn.ExecContext(ctx, "LISTEN "+quoted); execErr != nil {
		return fmt.Errorf("listen %s: %w", r.channel, execErr)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, notifyErr := sc.Conn().WaitForNotification(ctx)
		return notifyErr
	})
}

// GetByID retrieves a job by its ID.
func (r *JobRepo) GetByID(ctx context.Context, id string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

// LatestByTestRun returns the most recently created job for a test run.
func (r *JobRepo) LatestByTestRun(ctx context.Context, testRunID string) (*model.Job, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM jobs
		WHERE test_run_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, testRunID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest job for test run: %w", err)
	}
	return j, nil
}
