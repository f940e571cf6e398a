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

const attachmentColumns = `id, application_id, uploaded_by, storage_key, name, file_type, file_size, document_type, created`

func (r *SQLiteRepo) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	if a == nil {
		return fmt.Errorf("attachment is nil")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.DocumentType == "" {
		a.DocumentType = models.DocOther
	}
	a.Created = time.Now().UTC()

	q := `INSERT INTO attachments (` + attachmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.conn.Exec(ctx, q, a.ID, a.ApplicationID, nullStr(a.UploadedBy), a.StorageKey, a.Name, a.FileType, a.FileSize, a.DocumentType, millis(a.Created))
	if err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) GetAttachment(ctx context.Context, id string) (*models.Attachment, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE id = ? AND `+liveApplication, id)
	return scanAttachment(row)
}

func (r *SQLiteRepo) ListAttachments(ctx context.Context, applicationID string) ([]models.Attachment, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+attachmentColumns+` FROM attachments WHERE application_id = ? ORDER BY created DESC, id ASC`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	out := []models.Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (r *SQLiteRepo) DeleteAttachment(ctx context.Context, id string) error {
	res, err := r.conn.Exec(ctx, `DELETE FROM attachments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	return requireAffected(res, "attachment")
}

func (r *SQLiteRepo) DeletedApplicationAttachmentKeys(ctx context.Context, before time.Time) ([]string, error) {
	q := `SELECT storage_key FROM attachments WHERE application_id IN (SELECT id FROM applications WHERE deleted_at IS NOT NULL AND deleted_at < ?)`
	rows, err := r.conn.QueryRows(ctx, q, millis(before))
	if err != nil {
		return nil, fmt.Errorf("list purgeable attachments: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func scanAttachment(row scanner) (*models.Attachment, error) {
	var (
		a          models.Attachment
		uploadedBy sql.NullString
		created    int64
	)
	err := row.Scan(&a.ID, &a.ApplicationID, &uploadedBy, &a.StorageKey, &a.Name, &a.FileType, &a.FileSize, &a.DocumentType, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("attachment: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("scan attachment: %w", err)
	}
	a.UploadedBy = strPtr(uploadedBy)
	a.Created = fromMillis(created)
	return &a, nil
}
