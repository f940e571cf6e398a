package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/apptrack/internal/models"
)

const jobColumns = `id, type, payload, dedupe_key, status, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`

// Enqueue inserts a job into the jobs table and returns the new ID
func (r *SQLiteRepo) Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error) {
	if j == nil {
		return 0, fmt.Errorf("job is nil")
	}
	return r.insertJob(ctx, r.conn.GetConn(), j)
}

// EnqueueUnique enqueues j unless a queued or retrying job with the same
// dedupe key exists. In that case the pending job is pulled forward to the
// earlier of both schedules and its ID is returned.
func (r *SQLiteRepo) EnqueueUnique(ctx context.Context, j *models.BackgroundJob) (int64, error) {
	if j == nil {
		return 0, fmt.Errorf("job is nil")
	}
	if j.DedupeKey == "" {
		return r.Enqueue(ctx, j)
	}

	var id int64
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		var scheduled int64
		q := `SELECT id, scheduled_at FROM jobs WHERE dedupe_key = ? AND status IN ('queued', 'retry') ORDER BY id ASC LIMIT 1`
		err := tx.QueryRowContext(ctx, q, j.DedupeKey).Scan(&id, &scheduled)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			id, err = r.insertJob(ctx, tx, j)
			return err
		case err != nil:
			return fmt.Errorf("lookup pending job: %w", err)
		}

		if want := millis(j.ScheduledAt); want < scheduled {
			if _, err := tx.ExecContext(ctx, `UPDATE jobs SET scheduled_at = ?, updated = ? WHERE id = ?`, want, millis(time.Now()), id); err != nil {
				return fmt.Errorf("reschedule job: %w", err)
			}
		}
		return nil
	})
	return id, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepo) insertJob(ctx context.Context, ex execer, j *models.BackgroundJob) (int64, error) {
	if j.MaxAttempts == 0 {
		j.MaxAttempts = 5
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = time.Now().UTC()
	}
	var dedupe any
	if j.DedupeKey != "" {
		dedupe = j.DedupeKey
	}
	now := millis(time.Now())
	q := `INSERT INTO jobs(type, payload, dedupe_key, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES(?,?,?,?,?,?,?,?,?,?)`
	res, err := ex.ExecContext(ctx, q, j.Type, string(j.Payload), dedupe, "queued", j.Attempts, j.MaxAttempts, j.Priority, millis(j.ScheduledAt), now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}
	j.ID, err = res.LastInsertId()
	j.Status = "queued"
	return j.ID, err
}

// ClaimNext atomically marks the next runnable job as running and returns
// it, respecting priority and schedule. It returns nil, nil when no job is
// runnable.
func (r *SQLiteRepo) ClaimNext(ctx context.Context, now time.Time) (*models.BackgroundJob, error) {
	q := `UPDATE jobs SET status = 'running', updated = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status IN ('queued', 'retry') AND (next_try_at IS NULL OR next_try_at <= ?) AND scheduled_at <= ?
			ORDER BY priority ASC, scheduled_at ASC, id ASC LIMIT 1
		)
		RETURNING ` + jobColumns
	ms := millis(now)
	j, err := scanJob(r.conn.QueryRow(ctx, q, ms, ms, ms))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return j, nil
}

// UpdateJob updates attempts, status, next_try_at, last_error
func (r *SQLiteRepo) UpdateJob(ctx context.Context, j *models.BackgroundJob) error {
	q := `UPDATE jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`
	_, err := r.conn.Exec(ctx, q, j.Status, j.Attempts, nullMillis(j.NextTryAt), j.LastError, millis(time.Now()), j.ID)
	return err
}

// MoveToDeadLetter moves a job to dead_letter_jobs and deletes the original
func (r *SQLiteRepo) MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error {
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		insert := `INSERT INTO dead_letter_jobs(job_id, type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`
		if _, err := tx.ExecContext(ctx, insert, j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, millis(time.Now())); err != nil {
			return fmt.Errorf("insert dead letter: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID); err != nil {
			return fmt.Errorf("delete job: %w", err)
		}
		return nil
	})
}

// LeaseExpired is recorded as the last error of jobs taken back from a
// worker that stopped reporting.
const LeaseExpired = "worker lease expired"

// RequeueStale takes back running jobs untouched since olderThan. Jobs are
// left running when a worker dies mid-flight; each takeover counts as an
// attempt, and jobs without attempts left go to the dead letter table. It
// returns the number of jobs taken back.
func (r *SQLiteRepo) RequeueStale(ctx context.Context, olderThan, now time.Time) (int64, error) {
	var n int64
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		stale := `status = 'running' AND updated < ?`
		cutoff, ms := millis(olderThan), millis(now)

		insert := `INSERT INTO dead_letter_jobs(job_id, type, payload, attempts, last_error, failed_at)
			SELECT id, type, payload, attempts + 1, ?, ? FROM jobs WHERE ` + stale + ` AND attempts + 1 >= max_attempts`
		if _, err := tx.ExecContext(ctx, insert, LeaseExpired, ms, cutoff); err != nil {
			return fmt.Errorf("dead letter stale jobs: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE `+stale+` AND attempts + 1 >= max_attempts`, cutoff)
		if err != nil {
			return fmt.Errorf("delete stale jobs: %w", err)
		}
		dead, err := res.RowsAffected()
		if err != nil {
			return err
		}

		update := `UPDATE jobs SET status = 'retry', attempts = attempts + 1, next_try_at = NULL, last_error = ?, updated = ? WHERE ` + stale
		res, err = tx.ExecContext(ctx, update, LeaseExpired, ms, cutoff)
		if err != nil {
			return fmt.Errorf("requeue stale jobs: %w", err)
		}
		requeued, err := res.RowsAffected()
		if err != nil {
			return err
		}
		n = dead + requeued
		return nil
	})
	return n, err
}

// ListDeadLetters returns dead jobs, most recent failure first.
func (r *SQLiteRepo) ListDeadLetters(ctx context.Context, limit, offset int) ([]models.DeadLetterJob, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, job_id, type, payload, attempts, last_error, failed_at FROM dead_letter_jobs ORDER BY failed_at DESC, id DESC LIMIT ? OFFSET ?`
	rows, err := r.conn.QueryRows(ctx, q, limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	out := []models.DeadLetterJob{}
	for rows.Next() {
		var (
			d         models.DeadLetterJob
			payload   sql.NullString
			lastError sql.NullString
			failedAt  int64
		)
		if err := rows.Scan(&d.ID, &d.JobID, &d.Type, &payload, &d.Attempts, &lastError, &failedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		if payload.Valid && payload.String != "" {
			d.Payload = json.RawMessage(payload.String)
		}
		d.LastError = lastError.String
		d.FailedAt = fromMillis(failedAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanJob(row scanner) (*models.BackgroundJob, error) {
	var (
		j                           models.BackgroundJob
		payload, dedupe, lastErr    sql.NullString
		scheduled, created, updated int64
		nextTry                     sql.NullInt64
	)
	if err := row.Scan(&j.ID, &j.Type, &payload, &dedupe, &j.Status, &j.Attempts, &j.MaxAttempts, &j.Priority,
		&scheduled, &nextTry, &lastErr, &created, &updated); err != nil {
		return nil, err
	}
	if payload.Valid && payload.String != "" {
		j.Payload = json.RawMessage(payload.String)
	}
	j.DedupeKey = dedupe.String
	j.LastError = lastErr.String
	j.ScheduledAt = fromMillis(scheduled)
	j.NextTryAt = timePtr(nextTry)
	j.Created = fromMillis(created)
	j.Updated = fromMillis(updated)
	return &j, nil
}
