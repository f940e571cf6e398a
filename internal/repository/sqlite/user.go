package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/models"
)

const userColumns = `id, email, password_hash, first_name, last_name, timezone, is_staff, created, updated`

func (r *SQLiteRepo) CreateUser(ctx context.Context, u *models.User) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Timezone == "" {
		u.Timezone = "UTC"
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	u.Created, u.Updated = now, now

	q := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.conn.Exec(ctx, q, u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Timezone, boolInt(u.IsStaff), millis(now), millis(now))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %s already registered: %w", u.Email, apperr.ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *SQLiteRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *SQLiteRepo) UpdateUser(ctx context.Context, u *models.User) error {
	if u == nil {
		return fmt.Errorf("user is nil")
	}
	now := time.Now().UTC()
	res, err := r.conn.Exec(ctx, `UPDATE users SET first_name = ?, last_name = ?, timezone = ?, updated = ? WHERE id = ?`,
		u.FirstName, u.LastName, u.Timezone, millis(now), u.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if err := requireAffected(res, "user"); err != nil {
		return err
	}
	u.Updated = now
	return nil
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u                models.User
		staff            int
		created, updated int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Timezone, &staff, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.IsStaff = staff == 1
	u.Created = fromMillis(created)
	u.Updated = fromMillis(updated)
	return &u, nil
}
