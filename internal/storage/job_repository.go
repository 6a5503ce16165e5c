package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lookup-tracker/internal/models"

	"github.com/jackc/pgx/v5"
)

// ErrJobNotFound is returned when no row exists for a search id.
var ErrJobNotFound = errors.New("lookup job not found")

// JobRepository handles lookup job persistence. Every write commits
// immediately; a crash between a poll result and the next scheduling decision
// loses at most the in-flight decision.
type JobRepository struct {
	db *PostgresDB
}

// NewJobRepository creates a new lookup job repository
func NewJobRepository(db *PostgresDB) *JobRepository {
	return &JobRepository{db: db}
}

// InsertPending inserts a fresh pending row for a newly acknowledged job.
// Resubmitting the same search id resets the row to attempt 0, not done.
func (r *JobRepository) InsertPending(ctx context.Context, searchID, chatID string) error {
	query := `
		INSERT INTO lookup_jobs (search_id, chat_id, created_at, attempt, done)
		VALUES ($1, $2, $3, 0, FALSE)
		ON CONFLICT (search_id) DO UPDATE
		SET chat_id = EXCLUDED.chat_id,
			created_at = EXCLUDED.created_at,
			attempt = 0,
			done = FALSE
	`

	_, err := r.db.Pool().Exec(ctx, query, searchID, chatID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert pending job: %w", err)
	}

	return nil
}

// RecordAttempt persists the poll attempt counter and the last observed
// status. Finalized rows are never touched.
func (r *JobRepository) RecordAttempt(ctx context.Context, searchID string, attempt int, status string) error {
	query := `
		UPDATE lookup_jobs
		SET last_check = $2, attempt = $3, status = $4
		WHERE search_id = $1 AND done = FALSE
	`

	_, err := r.db.Pool().Exec(ctx, query, searchID, time.Now().UTC(), attempt, status)
	if err != nil {
		return fmt.Errorf("failed to record attempt for %s: %w", searchID, err)
	}

	return nil
}

// MarkDone finalizes a job. This is the only writer of done=true; once set
// the row is never re-armed.
func (r *JobRepository) MarkDone(ctx context.Context, searchID string, status string) error {
	query := `
		UPDATE lookup_jobs
		SET done = TRUE, status = $2, last_check = $3
		WHERE search_id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, searchID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to mark job %s done: %w", searchID, err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, searchID)
	}

	return nil
}

// ListPending returns all rows still awaiting a terminal decision.
func (r *JobRepository) ListPending(ctx context.Context) ([]*models.LookupJob, error) {
	query := `
		SELECT search_id, chat_id, created_at, last_check, attempt, COALESCE(status, ''), done
		FROM lookup_jobs
		WHERE done = FALSE
		ORDER BY created_at ASC
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.LookupJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending jobs: %w", err)
	}

	return jobs, nil
}

// GetByID retrieves a lookup job by search id.
func (r *JobRepository) GetByID(ctx context.Context, searchID string) (*models.LookupJob, error) {
	query := `
		SELECT search_id, chat_id, created_at, last_check, attempt, COALESCE(status, ''), done
		FROM lookup_jobs
		WHERE search_id = $1
	`

	row := r.db.Pool().QueryRow(ctx, query, searchID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, searchID)
		}
		return nil, err
	}

	return job, nil
}

// PurgeOlderThan deletes finalized rows and rows created before the cutoff.
// Operator-invoked maintenance; not part of the state machine.
func (r *JobRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM lookup_jobs WHERE done = TRUE OR created_at < $1`

	result, err := r.db.Pool().Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge jobs: %w", err)
	}

	return result.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.LookupJob, error) {
	var job models.LookupJob
	var lastCheck *time.Time

	err := row.Scan(
		&job.SearchID,
		&job.ChatID,
		&job.CreatedAt,
		&lastCheck,
		&job.Attempt,
		&job.Status,
		&job.Done,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan lookup job: %w", err)
	}

	job.LastCheck = lastCheck
	return &job, nil
}
