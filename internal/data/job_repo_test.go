package data

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/healwright/internal/domain/job"
	"github.com/target/healwright/internal/domain/model"
	"github.com/target/healwright/internal/testutil"
)

var testEpoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestJobRepo(db *sql.DB, tp TimeProvider) *JobRepo {
	return NewJobRepo(db, RepoConfig{
		Retry:        job.RetryPolicy{MaxAttempts: 3, BaseDelay: 30 * time.Second, MaxDelay: 10 * time.Minute},
		TimeProvider: tp,
	})
}

func enqueueParams(testRunID string) model.CreateJobParams {
	return testutil.NewEnqueueRequest().
		WithTestRun(testRunID).
		WithMetadata(model.JobMetadata{Branch: "main", CommitAuthor: "dev"}).
		BuildParams()
}

func TestJobRepo_Enqueue(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("creates job and pending test run", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := newTestJobRepo(db, NewFixedTimeProvider(testEpoch))
			runs := NewTestRunRepo(db, nil)
			ctx := context.Background()

			j, created, err := repo.Enqueue(ctx, enqueueParams("run-1"))
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, model.JobStatusPending, j.Status)
			assert.Equal(t, "run-1", j.TestRunID)
			assert.Equal(t, 3, j.MaxRetries)
			assert.Equal(t, "main", j.Metadata.Branch)

			tr, err := runs.GetByID(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, model.TestRunPending, tr.Status)
			assert.Equal(t, "abc123", tr.CommitRef)
		})
	})

	t.Run("second enqueue returns active job", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := newTestJobRepo(db, NewFixedTimeProvider(testEpoch))
			ctx := context.Background()

			first, created, err := repo.Enqueue(ctx, enqueueParams("run-1"))
			require.NoError(t, err)
			require.True(t, created)

			second, created, err := repo.Enqueue(ctx, enqueueParams("run-1"))
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, first.ID, second.ID)

			var n int
			require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM jobs WHERE test_run_id = 'run-1'`).Scan(&n))
			assert.Equal(t, 1, n)
		})
	})

	t.Run("concurrent enqueues leave one active job", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := newTestJobRepo(db, nil)

			fns := make([]func() error, 5)
			for i := range fns {
				fns[i] = func() error {
					_, _, err := repo.Enqueue(context.Background(), enqueueParams("run-c"))
					return err
				}
			}
			testutil.RunConcurrently(t, fns...)

			var n int
			require.NoError(t, db.QueryRowContext(context.Background(),
				`SELECT count(*) FROM jobs WHERE test_run_id = 'run-c' AND status IN ('pending', 'running')`).Scan(&n))
			assert.Equal(t, 1, n)
		})
	})

	t.Run("enqueue after finished run starts fresh attempt", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := newTestJobRepo(db, NewFixedTimeProvider(testEpoch))
			runs := NewTestRunRepo(db, nil)
			ctx := context.Background()

			first, _, err := repo.Enqueue(ctx, enqueueParams("run-1"))
			require.NoError(t, err)
			_, err = repo.ReserveNext(ctx, 60)
			require.NoError(t, err)
			ok, err := repo.Complete(ctx, first.ID)
			require.NoError(t, err)
			require.True(t, ok)
			_, err = runs.Finish(ctx, model.FinishTestRunParams{ID: "run-1", Status: model.TestRunPassed})
			require.NoError(t, err)

			second, created, err := repo.Enqueue(ctx, enqueueParams("run-1"))
			require.NoError(t, err)
			assert.True(t, created)
			assert.NotEqual(t, first.ID, second.ID)

			tr, err := runs.GetByID(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, model.TestRunPending, tr.Status)
		})
	})

	t.Run("invalid request", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := newTestJobRepo(db, nil)
			p := enqueueParams("")
			_, _, err := repo.Enqueue(context.Background(), p)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "testRunId is required")
		})
	})
}

func TestJobRepo_ReserveNext(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	t.Run("claims oldest pending job with lease", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			tp := NewFixedTimeProvider(testEpoch)
			repo := newTestJobRepo(db, tp)
			ctx := context.Background()

			older, _, err := repo.Enqueue(ctx, enqueueParams("run-1"))
			require.NoError(t, err)
			tp.AddTime(time.Second)
			_, _, err = repo.Enqueue(ctx, enqueueParams("run-2"))
			require.NoError(t, err)

			got, err := repo.ReserveNext(ctx, 60)
			require.NoError(t, err)
			assert.Equal(t, older.ID, got.ID)
			assert.Equal(t, model.JobStatusRunning, got.Status)
			require.NotNil(t, got.LeaseExpiresAt)
			assert.Equal(t, tp.Now().Add(time.Minute), *got.LeaseExpiresAt)
		})
	})

	t.Run("empty queue", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := newTestJobRepo(db, nil)
			_, err := repo.ReserveNext(context.Background(), 60)
			require.ErrorIs(t, err, model.ErrNoJobsAvailable)
		})
	})

	t.Run("concurrent claims are exclusive", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			repo := newTestJobRepo(db, nil)
			_, _, err := repo.Enqueue(context.Background(), enqueueParams("run-1"))
			require.NoError(t, err)

			results := make(chan error, 2)
			for range 2 {
				go func() {
					_, reserveErr := repo.ReserveNext(context.Background(), 60)
					results <- reserveErr
				}()
			}

			var ok, empty int
			for range 2 {
				select {
				case err := <-results:
					if err == nil {
						ok++
						continue
					}
					require.ErrorIs(t, err, model.ErrNoJobsAvailable)
					empty++
				case <-time.After(5 * time.Second):
					t.Fatal("Test timed out")
				}
			}
			assert.Equal(t, 1, ok)
			assert.Equal(t, 1, empty)
		})
	})

	t.Run("expired lease is requeued", func(t *testing.T) {
		testutil.WithAutoDB(t, func(db *sql.DB) {
			tp := NewFixedTimeProvider(testEpoch)
			repo := newTestJobRepo(db, tp)
			ctx := context.Background()

			j, _, err := repo.Enqueue(ctx, enqueueParams("run-1"))
			require.NoError(t, err)
			_, err = repo.ReserveNext(ctx, 30)
			require.NoError(t, err)

			_, err = repo.ReserveNext(ctx, 30)
			require.ErrorIs(t, err, model.ErrNoJobsAvailable)

			tp.AddTime(31 * time.Second)
			again, err := repo.ReserveNext(ctx, 30)
			require.NoError(t, err)
			assert.Equal(t, j.ID, again.ID)
		})
	})
}

func TestJobRepo_Fail(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := NewFixedTimeProvider(testEpoch)
		repo := newTestJobRepo(db, tp)
		ctx := context.Background()

		j, _, err := repo.Enqueue(ctx, enqueueParams("run-1"))
		require.NoError(t, err)

		wantDelays := []time.Duration{30 * time.Second, time.Minute}
		for attempt, delay := range wantDelays {
			_, err = repo.ReserveNext(ctx, 60)
			require.NoError(t, err, "attempt %d", attempt)

			res, failErr := repo.Fail(ctx, j.ID, "clone failed")
			require.NoError(t, failErr)
			assert.True(t, res.Updated)
			assert.False(t, res.Terminal)
			require.NotNil(t, res.RetryAt)
			assert.Equal(t, tp.Now().Add(delay), *res.RetryAt)

			_, err = repo.ReserveNext(ctx, 60)
			require.ErrorIs(t, err, model.ErrNoJobsAvailable, "backoff must delay the retry")
			tp.AddTime(delay)
		}

		_, err = repo.ReserveNext(ctx, 60)
		require.NoError(t, err)
		res, err := repo.Fail(ctx, j.ID, "clone failed")
		require.NoError(t, err)
		assert.True(t, res.Terminal)
		assert.Nil(t, res.RetryAt)

		got, err := repo.GetByID(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusFailed, got.Status)
		assert.Equal(t, 3, got.RetryCount)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "clone failed", *got.LastError)

		res, err = repo.Fail(ctx, j.ID, "again")
		require.NoError(t, err)
		assert.False(t, res.Updated, "a failed job is no longer running")
	})
}

func TestJobRepo_HeartbeatProgressComplete(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		tp := NewFixedTimeProvider(testEpoch)
		repo := newTestJobRepo(db, tp)
		ctx := context.Background()

		j, _, err := repo.Enqueue(ctx, enqueueParams("run-1"))
		require.NoError(t, err)

		ok, err := repo.Heartbeat(ctx, j.ID, 30)
		require.NoError(t, err)
		assert.False(t, ok, "pending jobs hold no lease")

		_, err = repo.ReserveNext(ctx, 30)
		require.NoError(t, err)

		tp.AddTime(20 * time.Second)
		ok, err = repo.Heartbeat(ctx, j.ID, 30)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, repo.UpdateProgress(ctx, j.ID, 140))
		got, err := repo.GetByID(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, 100, got.Progress)
		assert.Equal(t, tp.Now().Add(30*time.Second), *got.LeaseExpiresAt)

		ok, err = repo.Complete(ctx, j.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = repo.Complete(ctx, j.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		latest, err := repo.LatestByTestRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCompleted, latest.Status)
		assert.Nil(t, latest.LeaseExpiresAt)

		_, err = repo.LatestByTestRun(ctx, "missing")
		require.ErrorIs(t, err, model.ErrJobNotFound)
	})
}

func TestJobRepo_CancelPending(t *testing.T) {
	testutil.SkipIfNoTestDB(t)

	testutil.WithAutoDB(t, func(db *sql.DB) {
		repo := newTestJobRepo(db, nil)
		runs := NewTestRunRepo(db, nil)
		ctx := context.Background()

		j, _, err := repo.Enqueue(ctx, enqueueParams("run-1"))
		require.NoError(t, err)

		ok, err := repo.CancelPending(ctx, "run-1")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := repo.GetByID(ctx, j.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusCancelled, got.Status)

		tr, err := runs.GetByID(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, model.TestRunCancelled, tr.Status)

		ok, err = repo.CancelPending(ctx, "run-1")
		require.NoError(t, err)
		assert.False(t, ok)

		stats, err := repo.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Cancelled)
		assert.Equal(t, 0, stats.Pending)
	})
}
