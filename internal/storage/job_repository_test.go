package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRepository connects to the database named by TEST_DATABASE_URL and
// returns a repository over a clean lookup_jobs table. Tests are skipped when
// the variable is unset so the suite stays runnable without infrastructure.
func testRepository(t *testing.T) *JobRepository {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE lookup_jobs`)
	require.NoError(t, err)

	return NewJobRepository(&PostgresDB{pool: pool})
}

func TestInsertPendingAndGetByID(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertPending(ctx, "100", "chat-1"))

	job, err := repo.GetByID(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "100", job.SearchID)
	assert.Equal(t, "chat-1", job.ChatID)
	assert.Equal(t, 0, job.Attempt)
	assert.False(t, job.Done)
	assert.Nil(t, job.LastCheck)
}

func TestInsertPendingResetsExistingRow(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertPending(ctx, "100", "chat-1"))
	require.NoError(t, repo.RecordAttempt(ctx, "100", 3, "PENDING"))
	require.NoError(t, repo.MarkDone(ctx, "100", "TIMEOUT"))

	// Resubmission of the same id starts the lifecycle over.
	require.NoError(t, repo.InsertPending(ctx, "100", "chat-2"))

	job, err := repo.GetByID(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "chat-2", job.ChatID)
	assert.Equal(t, 0, job.Attempt)
	assert.False(t, job.Done)
}

func TestRecordAttempt(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertPending(ctx, "100", "chat-1"))
	require.NoError(t, repo.RecordAttempt(ctx, "100", 2, "IN_PROGRESS"))

	job, err := repo.GetByID(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempt)
	assert.Equal(t, "IN_PROGRESS", job.Status)
	assert.NotNil(t, job.LastCheck)
}

func TestRecordAttemptSkipsFinalizedRows(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertPending(ctx, "100", "chat-1"))
	require.NoError(t, repo.MarkDone(ctx, "100", "COMPLETE"))
	require.NoError(t, repo.RecordAttempt(ctx, "100", 5, "PENDING"))

	job, err := repo.GetByID(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, 0, job.Attempt)
	assert.Equal(t, "COMPLETE", job.Status)
	assert.True(t, job.Done)
}

func TestMarkDoneUnknownJob(t *testing.T) {
	repo := testRepository(t)

	err := repo.MarkDone(context.Background(), "missing", "COMPLETE")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestListPendingExcludesFinalizedRows(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.InsertPending(ctx, fmt.Sprintf("%d", 100+i), "chat-1"))
	}
	require.NoError(t, repo.MarkDone(ctx, "101", "COMPLETE"))

	jobs, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "100", jobs[0].SearchID)
	assert.Equal(t, "102", jobs[1].SearchID)
}

func TestGetByIDNotFound(t *testing.T) {
	repo := testRepository(t)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestPurgeOlderThan(t *testing.T) {
	repo := testRepository(t)
	ctx := context.Background()

	// One finalized row, one stale pending row, one fresh pending row.
	require.NoError(t, repo.InsertPending(ctx, "done", "chat-1"))
	require.NoError(t, repo.MarkDone(ctx, "done", "COMPLETE"))
	require.NoError(t, repo.InsertPending(ctx, "stale", "chat-1"))
	require.NoError(t, repo.InsertPending(ctx, "fresh", "chat-1"))

	_, err := repo.db.Pool().Exec(ctx,
		`UPDATE lookup_jobs SET created_at = $1 WHERE search_id = 'stale'`,
		time.Now().UTC().AddDate(0, 0, -60))
	require.NoError(t, err)

	purged, err := repo.PurgeOlderThan(ctx, time.Now().UTC().AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	jobs, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "fresh", jobs[0].SearchID)
}
