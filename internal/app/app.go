// Package app wires configuration, storage, services and background
// processing into one process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/garnizeh/apptrack/db"
	"github.com/garnizeh/apptrack/internal/applications"
	"github.com/garnizeh/apptrack/internal/attachments"
	"github.com/garnizeh/apptrack/internal/config"
	idb "github.com/garnizeh/apptrack/internal/db"
	"github.com/garnizeh/apptrack/internal/jobs"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/internal/notifications"
	"github.com/garnizeh/apptrack/internal/notify"
	"github.com/garnizeh/apptrack/internal/reminders"
	"github.com/garnizeh/apptrack/internal/repository/sqlite"
	"github.com/garnizeh/apptrack/internal/storage"
)

type App struct {
	Config *config.Config
	Logger *slog.Logger
	DB     *idb.DB
	Repo   *sqlite.SQLiteRepo
	Store  storage.Store
	Jobs   *jobs.Client

	Applications  *applications.Service
	Reminders     *reminders.Service
	Dispatcher    *reminders.Dispatcher
	Deliverer     *reminders.Deliverer
	Attachments   *attachments.Service
	Notifications *notifications.Service

	now func() time.Time
}

// Option adjusts an App before the services are built.
type Option func(*App)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

// New opens the database, applies pending migrations and builds the services.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, now: time.Now}
	for _, o := range opts {
		o(a)
	}

	conn, err := idb.New(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	if err := idb.Migrate(ctx, conn, db.Migrations); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	store, err := storage.NewLocal(cfg.Storage.Root, cfg.Storage.BaseURL)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	renderer, err := notify.NewRenderer(cfg.SiteName, cfg.Domain)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	a.DB = conn
	a.Repo = sqlite.New(conn, logger)
	a.Store = store
	a.Jobs = jobs.NewClient(a.Repo, a.now)

	repo := a.Repo.Repository()
	a.Applications = applications.NewService(repo, conn, store, logger, a.now)
	a.Reminders = reminders.NewService(repo, a.Jobs, logger, a.now)
	a.Dispatcher = reminders.NewDispatcher(a.Repo, a.Jobs, logger, a.now)
	a.Deliverer = reminders.NewDeliverer(repo, a.Jobs, a.transports(), renderer, logger, a.now)
	a.Attachments = attachments.NewService(repo, store, cfg.Storage.MaxUpload, logger, a.now)
	a.Notifications = notifications.NewService(a.Repo, a.Repo)
	return a, nil
}

// transports routes the email channel to SMTP, or to the log in
// development setups, and the notification channel to the in-app inbox.
func (a *App) transports() notify.Router {
	var email notify.Transport = notify.NewLogTransport(a.Logger)
	if a.Config.Mail.Transport == "smtp" {
		m := a.Config.Mail
		email = notify.NewSMTPTransport(notify.SMTPConfig{
			Host:     m.Host,
			Port:     m.Port,
			Username: m.Username,
			Password: m.Password,
			From:     m.From,
			Timeout:  m.Timeout,
		})
	}
	return notify.Router{
		models.ChannelEmail:        email,
		models.ChannelNotification: notify.NewInAppTransport(a.Repo),
	}
}

// Handlers maps every job type to its handler.
func (a *App) Handlers() map[string]jobs.Handler {
	ret := a.Config.Retention
	return map[string]jobs.Handler{
		jobs.TypeReminderDeliver:  a.Deliverer.Handle,
		jobs.TypeReminderDispatch: a.Dispatcher.Handle,
		jobs.TypeReminderCleanup:  a.Reminders.CleanupHandler(ret.SentReminders),
		jobs.TypeApplicationPurge: a.Applications.PurgeHandler(ret.DeletedApplications),
	}
}

func (a *App) WorkerPool() *jobs.WorkerPool {
	w := a.Config.Worker
	return jobs.NewWorkerPool(a.Repo, a.Handlers(), a.Logger, jobs.Options{
		Workers:      w.Workers,
		PollInterval: w.PollInterval,
		JobTimeout:   w.JobTimeout,
		StaleAfter:   w.Lease,
		Backoff:      jobs.Backoff{Base: w.BackoffBase, Max: w.BackoffMax},
		Now:          a.now,
	})
}

// Schedules is the default schedule table with the configured intervals.
func (a *App) Schedules() []jobs.Schedule {
	intervals := map[string]time.Duration{
		jobs.TypeReminderDispatch: a.Config.Scheduler.DispatchInterval,
		jobs.TypeReminderCleanup:  a.Config.Scheduler.CleanupInterval,
		jobs.TypeApplicationPurge: a.Config.Scheduler.PurgeInterval,
	}
	out := make([]jobs.Schedule, 0, len(jobs.DefaultSchedules))
	for _, sc := range jobs.DefaultSchedules {
		if d, ok := intervals[sc.JobType]; ok && d > 0 {
			sc.Interval = d
		}
		out = append(out, sc)
	}
	return out
}

func (a *App) Scheduler() *jobs.Scheduler {
	return jobs.NewScheduler(a.Jobs, a.Schedules(), a.Logger)
}

func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
