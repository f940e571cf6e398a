package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository"
)

const applicationColumns = `id, owner_id, kind, title, organization, location, country, source_url, applied_date, deadline, status, priority, notes, tags, deleted_at, created, updated`

// applicationOrder maps the accepted order_by values to SQL. Unknown values
// fall back to the newest first.
var applicationOrder = map[string]string{
	"created_at":    "created ASC, id ASC",
	"-created_at":   "created DESC, id DESC",
	"updated_at":    "updated ASC, id ASC",
	"-updated_at":   "updated DESC, id DESC",
	"deadline":      "deadline IS NULL, deadline ASC, id ASC",
	"-deadline":     "deadline IS NULL, deadline DESC, id ASC",
	"applied_date":  "applied_date IS NULL, applied_date ASC, id ASC",
	"-applied_date": "applied_date IS NULL, applied_date DESC, id ASC",
	"priority":      "priority ASC, created DESC",
	"-priority":     "priority DESC, created DESC",
	"title":         "title COLLATE NOCASE ASC, id ASC",
	"-title":        "title COLLATE NOCASE DESC, id ASC",
	"organization":  "organization COLLATE NOCASE ASC, id ASC",
	"-organization": "organization COLLATE NOCASE DESC, id ASC",
}

func (r *SQLiteRepo) CreateApplication(ctx context.Context, a *models.Application) error {
	if a == nil {
		return fmt.Errorf("application is nil")
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.StatusDraft
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	now := time.Now().UTC()
	a.Created, a.Updated = now, now

	q := `INSERT INTO applications (` + applicationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`
	_, err = r.conn.Exec(ctx, q, a.ID, a.OwnerID, a.Kind, a.Title, a.Organization, a.Location, a.Country, a.SourceURL,
		dateValue(a.AppliedDate), dateValue(a.Deadline), a.Status, a.Priority, a.Notes, string(tags), millis(now), millis(now))
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetApplication returns a live application. Soft deleted rows are reported
// as not found.
func (r *SQLiteRepo) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+applicationColumns+` FROM applications WHERE id = ? AND deleted_at IS NULL`, id)
	return scanApplication(row)
}

// UpdateApplication writes the editable fields. Status and owner are not
// touched here; status changes go through ChangeStatus.
func (r *SQLiteRepo) UpdateApplication(ctx context.Context, a *models.Application) error {
	if a == nil {
		return fmt.Errorf("application is nil")
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	tags, err := json.Marshal(a.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	a.Updated = time.Now().UTC()

	q := `UPDATE applications SET kind = ?, title = ?, organization = ?, location = ?, country = ?, source_url = ?,
		applied_date = ?, deadline = ?, priority = ?, notes = ?, tags = ?, updated = ?
		WHERE id = ? AND deleted_at IS NULL`
	res, err := r.conn.Exec(ctx, q, a.Kind, a.Title, a.Organization, a.Location, a.Country, a.SourceURL,
		dateValue(a.AppliedDate), dateValue(a.Deadline), a.Priority, a.Notes, string(tags), millis(a.Updated), a.ID)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	return requireAffected(res, "application")
}

func (r *SQLiteRepo) SoftDeleteApplication(ctx context.Context, id string, at time.Time) error {
	res, err := r.conn.Exec(ctx, `UPDATE applications SET deleted_at = ?, updated = ? WHERE id = ? AND deleted_at IS NULL`, millis(at), millis(at), id)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	return requireAffected(res, "application")
}

func (r *SQLiteRepo) ListApplications(ctx context.Context, ownerID string, f repository.ApplicationFilter) ([]models.Application, int64, error) {
	where := []string{"owner_id = ?", "deleted_at IS NULL"}
	args := []any{ownerID}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + escapeLike(s) + "%"
		where = append(where, `(title LIKE ? ESCAPE '\' OR organization LIKE ? ESCAPE '\' OR notes LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like, like)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(1) FROM applications WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	order, ok := applicationOrder[f.OrderBy]
	if !ok {
		order = applicationOrder["-created_at"]
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := max(f.Offset, 0)

	q := `SELECT ` + applicationColumns + ` FROM applications WHERE ` + cond + ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	rows, err := r.conn.QueryRows(ctx, q, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	out := []models.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *a)
	}
	return out, total, rows.Err()
}

// PurgeDeletedApplications hard deletes applications soft deleted before the
// cutoff. Their history, reminders and attachments cascade.
func (r *SQLiteRepo) PurgeDeletedApplications(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.conn.Exec(ctx, `DELETE FROM applications WHERE deleted_at IS NOT NULL AND deleted_at < ?`, millis(before))
	if err != nil {
		return 0, fmt.Errorf("purge applications: %w", err)
	}
	return res.RowsAffected()
}

func (r *SQLiteRepo) ApplicationOwner(ctx context.Context, id string) (string, error) {
	var owner string
	err := r.conn.QueryRow(ctx, `SELECT owner_id FROM applications WHERE id = ? AND deleted_at IS NULL`, id).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("application: %w", apperr.ErrNotFound)
		}
		return "", fmt.Errorf("application owner: %w", err)
	}
	return owner, nil
}

func scanApplication(row scanner) (*models.Application, error) {
	var (
		a                 models.Application
		applied, deadline sql.NullString
		tags              string
		deleted           sql.NullInt64
		created, updated  int64
	)
	err := row.Scan(&a.ID, &a.OwnerID, &a.Kind, &a.Title, &a.Organization, &a.Location, &a.Country, &a.SourceURL,
		&applied, &deadline, &a.Status, &a.Priority, &a.Notes, &tags, &deleted, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}
	if a.AppliedDate, err = parseDate(applied); err != nil {
		return nil, err
	}
	if a.Deadline, err = parseDate(deadline); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &a.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	a.DeletedAt = timePtr(deleted)
	a.Created = fromMillis(created)
	a.Updated = fromMillis(updated)
	return &a, nil
}

func dateValue(d *models.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseDate(v sql.NullString) (*models.Date, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	d, err := models.ParseDate(v.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// isUniqueViolation reports whether err comes from a UNIQUE constraint or
// index.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return nil
}
