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

// ChangeStatus re-reads the current status inside tx and, when it differs
// from to, writes the new status and its history entry. It returns nil, nil
// when the status is already to.
func (r *SQLiteRepo) ChangeStatus(ctx context.Context, tx *sql.Tx, applicationID string, to models.Status, changedBy, note string, at time.Time) (*models.StatusHistoryEntry, error) {
	var from models.Status
	err := tx.QueryRowContext(ctx, `SELECT status FROM applications WHERE id = ? AND deleted_at IS NULL`, applicationID).Scan(&from)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("read status: %w", err)
	}
	if from == to {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE applications SET status = ?, updated = ? WHERE id = ?`, to, millis(at), applicationID); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	e := &models.StatusHistoryEntry{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		FromStatus:    from,
		ToStatus:      to,
		Notes:         note,
		Created:       at.UTC(),
	}
	if changedBy != "" {
		e.ChangedBy = &changedBy
	}
	q := `INSERT INTO status_history (id, application_id, from_status, to_status, changed_by, notes, created) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, q, e.ID, e.ApplicationID, e.FromStatus, e.ToStatus, nullStr(e.ChangedBy), e.Notes, millis(at)); err != nil {
		return nil, fmt.Errorf("insert status history: %w", err)
	}
	return e, nil
}

// ListStatusHistory returns the entries oldest first.
func (r *SQLiteRepo) ListStatusHistory(ctx context.Context, applicationID string) ([]models.StatusHistoryEntry, error) {
	q := `SELECT id, application_id, from_status, to_status, changed_by, notes, created FROM status_history WHERE application_id = ? ORDER BY created ASC, rowid ASC`
	rows, err := r.conn.QueryRows(ctx, q, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	out := []models.StatusHistoryEntry{}
	for rows.Next() {
		var (
			e         models.StatusHistoryEntry
			changedBy sql.NullString
			created   int64
		)
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.FromStatus, &e.ToStatus, &changedBy, &e.Notes, &created); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		e.ChangedBy = strPtr(changedBy)
		e.Created = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}
