package reminders

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/garnizeh/apptrack/internal/apperr"
	"github.com/garnizeh/apptrack/internal/authz"
	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository"
)

// MaxMessageLength bounds the free text of a reminder.
const MaxMessageLength = 1000

type CreateInput struct {
	RemindAt time.Time      `json:"remind_at"`
	Channel  models.Channel `json:"channel"`
	Message  string         `json:"message"`
}

// UpdateInput changes the schedule or text of an unsent reminder. Nil fields
// are left unchanged.
type UpdateInput struct {
	RemindAt *time.Time `json:"remind_at"`
	Message  *string    `json:"message"`
}

type Service struct {
	repo   *repository.Repository
	queue  Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo *repository.Repository, queue Enqueuer, logger *slog.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, queue: queue, logger: logger, now: now}
}

func (s *Service) application(ctx context.Context, actor authz.Actor, id string) (*models.Application, error) {
	app, err := s.repo.Applications.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(ctx, s.repo.Applications, actor, app); err != nil {
		return nil, err
	}
	return app, nil
}

// errDuplicate is returned when the owner already has an unsent reminder on
// the same application and channel.
func errDuplicate() error {
	return apperr.NewValidation(apperr.NonField, "An unsent reminder for this application and channel already exists.")
}

// deadlineBound is the end of the application's deadline day on the owner's
// wall clock. It is zero when the application has no deadline. An unknown
// timezone falls back to UTC.
func (s *Service) deadlineBound(ctx context.Context, app *models.Application) (time.Time, error) {
	if app.Deadline == nil {
		return time.Time{}, nil
	}
	owner, err := s.repo.Users.GetUserByID(ctx, app.OwnerID)
	if err != nil {
		return time.Time{}, err
	}
	loc, err := time.LoadLocation(owner.Timezone)
	if err != nil {
		s.logger.Warn("unknown owner timezone, using UTC", "user_id", owner.ID, "timezone", owner.Timezone)
		loc = time.UTC
	}
	return app.Deadline.EndOfDayIn(loc), nil
}

// validateSchedule checks that remindAt is in the future and falls before
// the deadline bound.
func (s *Service) validateSchedule(ve *apperr.ValidationError, bound, remindAt time.Time) {
	if remindAt.IsZero() {
		ve.Add("remind_at", "This field is required.")
		return
	}
	if !remindAt.After(s.now()) {
		ve.Add("remind_at", "Reminder time must be in the future.")
		return
	}
	if !bound.IsZero() && !remindAt.Before(bound) {
		ve.Add("remind_at", "Reminder time must be before the application deadline.")
	}
}

func validateMessage(ve *apperr.ValidationError, msg string) {
	if len([]rune(msg)) > MaxMessageLength {
		ve.Add("message", "Ensure this field has no more than 1000 characters.")
	}
}

// Create stores a reminder on one of actor's applications and schedules its
// delivery. Only one unsent reminder may exist per owner, application and
// channel.
func (s *Service) Create(ctx context.Context, actor authz.Actor, applicationID string, in CreateInput) (*models.Reminder, error) {
	app, err := s.application(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	bound, err := s.deadlineBound(ctx, app)
	if err != nil {
		return nil, err
	}

	ve := &apperr.ValidationError{}
	if in.Channel == "" {
		in.Channel = models.ChannelEmail
	}
	if !in.Channel.Valid() {
		ve.Add("channel", "Select a valid choice.")
	}
	s.validateSchedule(ve, bound, in.RemindAt)
	validateMessage(ve, in.Message)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	dup, err := s.repo.Reminders.HasUnsentReminder(ctx, actor.ID, app.ID, in.Channel, 0)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, errDuplicate()
	}

	rm := &models.Reminder{
		ApplicationID: app.ID,
		UserID:        actor.ID,
		RemindAt:      in.RemindAt.UTC(),
		Channel:       in.Channel,
		Message:       in.Message,
	}
	if err := s.repo.Reminders.CreateReminder(ctx, rm); err != nil {
		// a concurrent create won the unique index
		if errors.Is(err, apperr.ErrConflict) {
			return nil, errDuplicate()
		}
		return nil, err
	}
	s.schedule(ctx, rm.ID, rm.RemindAt)
	return rm, nil
}

// schedule queues delivery at at. A failure is logged only: the dispatcher
// sweep finds the reminder once it is due.
func (s *Service) schedule(ctx context.Context, id int64, at time.Time) {
	if s.queue == nil {
		return
	}
	if _, err := s.queue.Enqueue(ctx, DeliveryJob(id, at)); err != nil {
		s.logger.Warn("schedule reminder delivery", "reminder_id", id, "err", err)
	}
}

// Get returns the reminder when actor owns it.
func (s *Service) Get(ctx context.Context, actor authz.Actor, id int64) (*models.Reminder, error) {
	rm, err := s.repo.Reminders.GetReminder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(ctx, s.repo.Applications, actor, rm); err != nil {
		return nil, err
	}
	return rm, nil
}

func (s *Service) Update(ctx context.Context, actor authz.Actor, id int64, in UpdateInput) (*models.Reminder, error) {
	rm, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if rm.IsSent {
		return nil, apperr.BadRequest("reminder was already sent; resend it instead")
	}
	app, err := s.repo.Applications.GetApplication(ctx, rm.ApplicationID)
	if err != nil {
		return nil, err
	}
	bound, err := s.deadlineBound(ctx, app)
	if err != nil {
		return nil, err
	}

	remindAt, message := rm.RemindAt, rm.Message
	if in.RemindAt != nil {
		remindAt = in.RemindAt.UTC()
	}
	if in.Message != nil {
		message = *in.Message
	}
	ve := &apperr.ValidationError{}
	s.validateSchedule(ve, bound, remindAt)
	validateMessage(ve, message)
	if err := ve.OrNil(); err != nil {
		return nil, err
	}

	if err := s.repo.Reminders.UpdateReminderSchedule(ctx, id, remindAt, message, s.now()); err != nil {
		return nil, err
	}
	if !remindAt.Equal(rm.RemindAt) {
		s.schedule(ctx, id, remindAt)
	}
	return s.repo.Reminders.GetReminder(ctx, id)
}

// Resend clears the sent state of a delivered reminder and queues it for
// delivery right away. It is refused while another unsent reminder holds the
// same application and channel.
func (s *Service) Resend(ctx context.Context, actor authz.Actor, id int64) (*models.Reminder, error) {
	rm, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !rm.IsSent {
		return nil, apperr.BadRequest("reminder has not been sent yet")
	}
	dup, err := s.repo.Reminders.HasUnsentReminder(ctx, rm.UserID, rm.ApplicationID, rm.Channel, rm.ID)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, errDuplicate()
	}
	ok, err := s.repo.Reminders.ResetReminderSent(ctx, id, s.now())
	if errors.Is(err, apperr.ErrConflict) {
		return nil, errDuplicate()
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.BadRequest("reminder has not been sent yet")
	}
	s.schedule(ctx, id, s.now())
	s.logger.Info("reminder resend requested", "reminder_id", id, "user_id", actor.ID)
	return s.repo.Reminders.GetReminder(ctx, id)
}

// Delete cancels the reminder. A delivery job still queued for it finds
// nothing and ends.
func (s *Service) Delete(ctx context.Context, actor authz.Actor, id int64) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.Reminders.DeleteReminder(ctx, id)
}

// List returns actor's reminders ordered by remind_at. A filter on an
// application the actor does not own is reported as not found.
func (s *Service) List(ctx context.Context, actor authz.Actor, f repository.ReminderFilter) ([]models.Reminder, error) {
	if actor.ID == "" {
		return nil, apperr.ErrUnauthenticated
	}
	if f.ApplicationID != "" {
		if _, err := s.application(ctx, actor, f.ApplicationID); err != nil {
			return nil, err
		}
	}
	if f.Channel != "" && !f.Channel.Valid() {
		return nil, apperr.NewValidation("channel", "Select a valid choice.")
	}
	return s.repo.Reminders.ListReminders(ctx, actor.ID, f)
}

// Upcoming returns actor's unsent reminders that are not due yet.
func (s *Service) Upcoming(ctx context.Context, actor authz.Actor) ([]models.Reminder, error) {
	unsent := false
	now := s.now()
	return s.List(ctx, actor, repository.ReminderFilter{IsSent: &unsent, From: &now})
}

// Cleanup deletes sent reminders older than retention.
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.Reminders.DeleteSentRemindersBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("cleaned up sent reminders", "count", n)
	}
	return n, nil
}
