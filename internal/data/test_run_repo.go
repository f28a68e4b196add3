package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/healwright/internal/domain/model"
)

// notTerminal guards every worker transition so a finished run is never revisited.
const notTerminal = `status NOT IN ('PASSED', 'FAILED', 'HEALED', 'PARTIAL', 'CANCELLED')`

const testRunColumns = `id, project_id, commit_ref, status, passed, failed, healed, total,
  error_message, started_at, completed_at, created_at, updated_at`

// TestRunRepo persists test runs.
type TestRunRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewTestRunRepo creates a TestRunRepo. A nil TimeProvider uses the system clock.
func NewTestRunRepo(db *sql.DB, tp TimeProvider) *TestRunRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &TestRunRepo{DB: db, timeProvider: tp}
}

func scanTestRun(scanner rowScanner) (*model.TestRun, error) {
	var (
		tr                     model.TestRun
		errMsg                 sql.NullString
		startedAt, completedAt sql.NullTime
	)
	if err := scanner.Scan(
		&tr.ID, &tr.ProjectID, &tr.CommitRef, &tr.Status,
		&tr.Summary.Passed, &tr.Summary.Failed, &tr.Summary.Healed, &tr.Summary.Total,
		&errMsg, &startedAt, &completedAt, &tr.CreatedAt, &tr.UpdatedAt,
	); err != nil {
		return nil, err
	}
	tr.ErrorMessage = cloneNullableString(errMsg)
	tr.StartedAt = cloneNullableTime(startedAt)
	tr.CompletedAt = cloneNullableTime(completedAt)
	tr.CreatedAt = tr.CreatedAt.UTC()
	tr.UpdatedAt = tr.UpdatedAt.UTC()
	return &tr, nil
}

// GetByID retrieves a test run by id.
func (r *TestRunRepo) GetByID(ctx context.Context, id string) (*model.TestRun, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+testRunColumns+` FROM test_runs WHERE id = $1`, id)
	tr, err := scanTestRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrTestRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get test run: %w", err)
	}
	return tr, nil
}

// MarkRunning moves a non-terminal run to RUNNING. It returns false when the run is terminal or missing.
func (r *TestRunRepo) MarkRunning(ctx context.Context, id string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	return r.exec(ctx, "mark test run running", `
		UPDATE test_runs
		SET status = 'RUNNING',
		    started_at = COALESCE(started_at, $2),
		    updated_at = $2
		WHERE id = $1 AND `+notTerminal, id, now)
}

// RecordError stores the latest job error on a non-terminal run and returns it to PENDING while the
// job waits for its next attempt.
func (r *TestRunRepo) RecordError(ctx context.Context, id, message string) error {
	now := r.timeProvider.Now().UTC()
	_, err := r.exec(ctx, "record test run error", `
		UPDATE test_runs
		SET status = 'PENDING',
		    error_message = $2,
		    updated_at = $3
		WHERE id = $1 AND `+notTerminal, id, message, now)
	return err
}

// Finish moves a non-terminal run into its terminal state with the final results summary.
func (r *TestRunRepo) Finish(ctx context.Context, params model.FinishTestRunParams) (bool, error) {
	if !params.Status.Terminal() {
		return false, fmt.Errorf("finish test run: %s is not a terminal status", params.Status)
	}
	now := r.timeProvider.Now().UTC()
	s := params.Summary
	return r.exec(ctx, "finish test run", `
		UPDATE test_runs
		SET status = $2,
		    passed = $3, failed = $4, healed = $5, total = $6,
		    error_message = NULL,
		    completed_at = $7,
		    updated_at = $7
		WHERE id = $1 AND `+notTerminal,
		params.ID, params.Status, s.Passed, s.Failed, s.Healed, s.Total, now)
}

// Fail moves a non-terminal run to FAILED, keeping message for operators.
func (r *TestRunRepo) Fail(ctx context.Context, id, message string) (bool, error) {
	now := r.timeProvider.Now().UTC()
	return r.exec(ctx, "fail test run", `
		UPDATE test_runs
		SET status = 'FAILED',
		    error_message = $2,
		    completed_at = $3,
		    updated_at = $3
		WHERE id = $1 AND `+notTerminal, id, message, now)
}

func (r *TestRunRepo) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", op, err)
	}
	return n > 0, nil
}
