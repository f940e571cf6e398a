package reminders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/jobs"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/internal/notify"
	"github.com/garnizeh/apptrack/pkg/repository"
)

// Deliverer sends one reminder. Delivery is at least once: a crash between
// sending and marking sent repeats the send.
type Deliverer struct {
	repo     *repository.Repository
	queue    Enqueuer
	router   notify.Router
	renderer *notify.Renderer
	logger   *slog.Logger
	now      func() time.Time
}

func NewDeliverer(repo *repository.Repository, queue Enqueuer, router notify.Router, renderer *notify.Renderer, logger *slog.Logger, now func() time.Time) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Deliverer{repo: repo, queue: queue, router: router, renderer: renderer, logger: logger, now: now}
}

// Deliver sends reminder id unless it is gone or already sent. A reminder
// that is not due yet is queued again for its due time. Transport failures
// are returned for retry; permanent ones are marked with jobs.Permanent.
func (d *Deliverer) Deliver(ctx context.Context, id int64) error {
	log := d.logger.With("reminder_id", id)

	rm, err := d.repo.Reminders.GetReminder(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Debug("reminder gone, nothing to deliver")
		return nil
	}
	if err != nil {
		return err
	}
	if rm.IsSent {
		log.Debug("reminder already sent")
		return nil
	}

	if rm.RemindAt.After(d.now()) {
		if _, err := d.queue.Enqueue(ctx, DeliveryJob(id, rm.RemindAt)); err != nil {
			return fmt.Errorf("reschedule reminder: %w", err)
		}
		log.Info("reminder not due yet, rescheduled", "remind_at", rm.RemindAt)
		return nil
	}

	app, err := d.repo.Applications.GetApplication(ctx, rm.ApplicationID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	user, err := d.repo.Users.GetUserByID(ctx, rm.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	msg, err := d.renderer.Reminder(user, app, rm)
	if err != nil {
		return jobs.Permanent(err)
	}
	if err := d.router.Send(ctx, rm.Channel, msg); err != nil {
		if notify.IsPermanent(err) {
			return jobs.Permanent(err)
		}
		return err
	}

	ok, err := d.repo.Reminders.MarkReminderSent(ctx, id, d.now())
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	if !ok {
		log.Warn("reminder was marked sent concurrently")
	}
	log.Info("reminder delivered", "channel", rm.Channel)
	return nil
}

// Handle is the reminders.deliver job handler.
func (d *Deliverer) Handle(ctx context.Context, j *models.BackgroundJob) error {
	var p DeliverPayload
	if err := json.Unmarshal(j.Payload, &p); err != nil || p.ReminderID == 0 {
		return jobs.Permanent(fmt.Errorf("bad reminders.deliver payload %q", j.Payload))
	}
	return d.Deliver(ctx, p.ReminderID)
}

// CleanupHandler returns the reminders.cleanup job handler.
func (s *Service) CleanupHandler(retention time.Duration) jobs.Handler {
	return func(ctx context.Context, _ *models.BackgroundJob) error {
		_, err := s.Cleanup(ctx, retention)
		return err
	}
}
