package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository"
)

const reminderColumns = `id, application_id, user_id, remind_at, channel, message, is_sent, sent_at, created, updated`

// liveApplication restricts reminder queries to applications that are not
// soft deleted.
const liveApplication = `application_id IN (SELECT id FROM applications WHERE deleted_at IS NULL)`

func (r *SQLiteRepo) CreateReminder(ctx context.Context, rm *models.Reminder) error {
	if rm == nil {
		return fmt.Errorf("reminder is nil")
	}
	if rm.Channel == "" {
		rm.Channel = models.ChannelEmail
	}
	now := time.Now().UTC()
	rm.Created, rm.Updated = now, now
	rm.IsSent, rm.SentAt = false, nil

	q := `INSERT INTO reminders (application_id, user_id, remind_at, channel, message, is_sent, sent_at, created, updated) VALUES (?, ?, ?, ?, ?, 0, NULL, ?, ?)`
	res, err := r.conn.Exec(ctx, q, rm.ApplicationID, rm.UserID, millis(rm.RemindAt), rm.Channel, rm.Message, millis(now), millis(now))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("unsent %s reminder exists: %w", rm.Channel, apperr.ErrConflict)
		}
		return fmt.Errorf("create reminder: %w", err)
	}
	rm.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepo) GetReminder(ctx context.Context, id int64) (*models.Reminder, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = ? AND `+liveApplication, id)
	return scanReminder(row)
}

// UpdateReminderSchedule changes time and text of an unsent reminder. A
// reminder sent in the meantime is reported as a bad request.
func (r *SQLiteRepo) UpdateReminderSchedule(ctx context.Context, id int64, remindAt time.Time, message string, at time.Time) error {
	res, err := r.conn.Exec(ctx, `UPDATE reminders SET remind_at = ?, message = ?, updated = ? WHERE id = ? AND is_sent = 0`, millis(remindAt), message, millis(at), id)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reminders WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check reminder: %w", err)
	}
	if exists == 1 {
		return fmt.Errorf("reminder %d was already sent: %w", id, apperr.ErrBadRequest)
	}
	return fmt.Errorf("reminder: %w", apperr.ErrNotFound)
}

func (r *SQLiteRepo) DeleteReminder(ctx context.Context, id int64) error {
	res, err := r.conn.Exec(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return requireAffected(res, "reminder")
}

// ListReminders returns the user's reminders ordered by remind_at.
func (r *SQLiteRepo) ListReminders(ctx context.Context, userID string, f repository.ReminderFilter) ([]models.Reminder, error) {
	where := []string{"user_id = ?", liveApplication}
	args := []any{userID}
	if f.ApplicationID != "" {
		where = append(where, "application_id = ?")
		args = append(args, f.ApplicationID)
	}
	if f.IsSent != nil {
		where = append(where, "is_sent = ?")
		args = append(args, boolInt(*f.IsSent))
	}
	if f.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, f.Channel)
	}
	if f.From != nil {
		where = append(where, "remind_at >= ?")
		args = append(args, millis(*f.From))
	}

	q := `SELECT ` + reminderColumns + ` FROM reminders WHERE ` + strings.Join(where, " AND ") + ` ORDER BY remind_at ASC, id ASC`
	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()

	out := []models.Reminder{}
	for rows.Next() {
		rm, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rm)
	}
	return out, rows.Err()
}

// HasUnsentReminder reports whether another unsent reminder exists for the
// same owner, application and channel. exceptID excludes the reminder being
// edited; pass 0 on create.
func (r *SQLiteRepo) HasUnsentReminder(ctx context.Context, userID, applicationID string, channel models.Channel, exceptID int64) (bool, error) {
	q := `SELECT EXISTS (SELECT 1 FROM reminders WHERE user_id = ? AND application_id = ? AND channel = ? AND is_sent = 0 AND id <> ?)`
	var exists int
	if err := r.conn.QueryRow(ctx, q, userID, applicationID, channel, exceptID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check duplicate reminder: %w", err)
	}
	return exists == 1, nil
}

// ListDueReminderIDs pages through unsent reminders whose time has come,
// in id order starting after afterID.
func (r *SQLiteRepo) ListDueReminderIDs(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error) {
	q := `SELECT id FROM reminders WHERE is_sent = 0 AND remind_at <= ? AND id > ? AND ` + liveApplication + ` ORDER BY id ASC LIMIT ?`
	rows, err := r.conn.QueryRows(ctx, q, millis(now), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list due reminders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkReminderSent flips an unsent reminder to sent. It reports false when
// the reminder was already sent or no longer exists.
func (r *SQLiteRepo) MarkReminderSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.conn.Exec(ctx, `UPDATE reminders SET is_sent = 1, sent_at = ?, updated = ? WHERE id = ? AND is_sent = 0`, millis(at), millis(at), id)
	if err != nil {
		return false, fmt.Errorf("mark reminder sent: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ResetReminderSent clears the sent state of a sent reminder. It reports
// false when the reminder was not sent, and apperr.ErrConflict when another
// unsent reminder holds the same owner, application and channel.
func (r *SQLiteRepo) ResetReminderSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.conn.Exec(ctx, `UPDATE reminders SET is_sent = 0, sent_at = NULL, updated = ? WHERE id = ? AND is_sent = 1`, millis(at), id)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("reset reminder %d: %w", id, apperr.ErrConflict)
		}
		return false, fmt.Errorf("reset reminder: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *SQLiteRepo) DeleteSentRemindersBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.conn.Exec(ctx, `DELETE FROM reminders WHERE is_sent = 1 AND sent_at < ?`, millis(before))
	if err != nil {
		return 0, fmt.Errorf("cleanup reminders: %w", err)
	}
	return res.RowsAffected()
}

func scanReminder(row scanner) (*models.Reminder, error) {
	var (
		rm                         models.Reminder
		remindAt, created, updated int64
		sent                       int
		sentAt                     sql.NullInt64
	)
	err := row.Scan(&rm.ID, &rm.ApplicationID, &rm.UserID, &remindAt, &rm.Channel, &rm.Message, &sent, &sentAt, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reminder: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("scan reminder: %w", err)
	}
	rm.RemindAt = fromMillis(remindAt)
	rm.IsSent = sent == 1
	rm.SentAt = timePtr(sentAt)
	rm.Created = fromMillis(created)
	rm.Updated = fromMillis(updated)
	return &rm, nil
}
