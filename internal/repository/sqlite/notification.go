package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/models"
)

func (r *SQLiteRepo) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return fmt.Errorf("notification is nil")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Created.IsZero() {
		n.Created = time.Now().UTC()
	}
	q := `INSERT INTO notifications (id, user_id, title, message, is_read, created) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.conn.Exec(ctx, q, n.ID, n.UserID, n.Title, n.Message, boolInt(n.IsRead), millis(n.Created)); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, user_id, title, message, is_read, created FROM notifications WHERE id = ?`, id)
	return scanNotification(row)
}

// ListNotifications returns the user's notifications newest first.
func (r *SQLiteRepo) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	q := `SELECT id, user_id, title, message, is_read, created FROM notifications WHERE user_id = ?`
	if unreadOnly {
		q += ` AND is_read = 0`
	}
	q += ` ORDER BY created DESC, id ASC LIMIT ? OFFSET ?`
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.conn.QueryRows(ctx, q, userID, limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := r.conn.Exec(ctx, `UPDATE notifications SET is_read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return requireAffected(res, "notification")
}

func scanNotification(row scanner) (*models.Notification, error) {
	var (
		n       models.Notification
		read    int
		created int64
	)
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &read, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	n.IsRead = read == 1
	n.Created = fromMillis(created)
	return &n, nil
}
