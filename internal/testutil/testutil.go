// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	migrations "github.com/garnizeh/apptrack/db"
	"github.com/garnizeh/apptrack/internal/db"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/internal/repository/sqlite"
)

// Logger discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// NewDB opens a private in-memory database with all migrations applied and
// closes it when the test ends.
func NewDB(t testing.TB) *db.DB {
	t.Helper()
	ctx := context.Background()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])
	d, err := db.New(ctx, dsn, Logger())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := db.Migrate(ctx, d, migrations.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

// NewRepo returns a repository over a fresh database.
func NewRepo(t testing.TB) (*sqlite.SQLiteRepo, *db.DB) {
	t.Helper()
	d := NewDB(t)
	return sqlite.New(d, Logger()), d
}

// CreateUser inserts a user with the given email.
func CreateUser(t testing.TB, repo *sqlite.SQLiteRepo, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, PasswordHash: "x", FirstName: "Test"}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

// CreateApplication inserts a job application owned by ownerID.
func CreateApplication(t testing.TB, repo *sqlite.SQLiteRepo, ownerID string, deadline *models.Date) *models.Application {
	t.Helper()
	a := &models.Application{
		OwnerID:      ownerID,
		Kind:         models.KindJob,
		Title:        "Backend Engineer",
		Organization: "Acme",
		Deadline:     deadline,
		Tags:         []string{"go"},
	}
	if err := repo.CreateApplication(context.Background(), a); err != nil {
		t.Fatalf("create application: %v", err)
	}
	return a
}

// Clock is a settable time source for services that take a now function.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t.UTC()}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC()
	c.mu.Unlock()
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
