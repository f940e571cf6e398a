package mock

import (
	"context"
	"fmt"
	"strings"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/models"
)

// Test helpers and mocks
type Mocks struct {
	Users *UserRepo
}

func NewMocks() *Mocks {
	return &Mocks{Users: &UserRepo{}}
}

// UserRepo keeps at most one user in memory.
type UserRepo struct {
	Stored    *models.User
	CreateErr error
	GetErr    error
	UpdateErr error
}

func (m *UserRepo) CreateUser(ctx context.Context, u *models.User) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	if m.Stored != nil && strings.EqualFold(m.Stored.Email, u.Email) {
		return fmt.Errorf("email %s already registered: %w", u.Email, apperr.ErrConflict)
	}
	if u.ID == "" {
		u.ID = "user-1"
	}
	cp := *u
	m.Stored = &cp
	return nil
}

func (m *UserRepo) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if m.Stored != nil && m.Stored.ID == id {
		return m.Stored, nil
	}
	return nil, apperr.ErrNotFound
}

func (m *UserRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	if m.Stored != nil && strings.EqualFold(m.Stored.Email, email) {
		return m.Stored, nil
	}
	return nil, apperr.ErrNotFound
}

func (m *UserRepo) UpdateUser(ctx context.Context, u *models.User) error {
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if m.Stored == nil || m.Stored.ID != u.ID {
		return apperr.ErrNotFound
	}
	cp := *u
	m.Stored = &cp
	return nil
}
