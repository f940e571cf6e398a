package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/garnizeh/apptrack/internal/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
// Lookups of a missing row return apperr.ErrNotFound.

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// UpdateUser saves the profile fields of u: names and timezone.
	UpdateUser(ctx context.Context, u *models.User) error
}

// ApplicationFilter narrows an owner scoped application listing.
type ApplicationFilter struct {
	Status  models.Status
	Kind    models.Kind
	Search  string
	OrderBy string
	Limit   int
	Offset  int
}

type ApplicationRepo interface {
	CreateApplication(ctx context.Context, a *models.Application) error
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	UpdateApplication(ctx context.Context, a *models.Application) error
	SoftDeleteApplication(ctx context.Context, id string, at time.Time) error
	ListApplications(ctx context.Context, ownerID string, f ApplicationFilter) ([]models.Application, int64, error)
	PurgeDeletedApplications(ctx context.Context, before time.Time) (int64, error)
	ApplicationOwner(ctx context.Context, id string) (string, error)
}

// StatusHistoryRepo records status transitions. ChangeStatus is the paired
// write of the status field and its history entry and runs on the given tx.
type StatusHistoryRepo interface {
	ChangeStatus(ctx context.Context, tx *sql.Tx, applicationID string, to models.Status, changedBy, note string, at time.Time) (*models.StatusHistoryEntry, error)
	ListStatusHistory(ctx context.Context, applicationID string) ([]models.StatusHistoryEntry, error)
}

// ReminderFilter narrows an owner scoped reminder listing. Nil fields do not
// filter.
type ReminderFilter struct {
	ApplicationID string
	IsSent        *bool
	Channel       models.Channel
	From          *time.Time
}

type ReminderRepo interface {
	CreateReminder(ctx context.Context, r *models.Reminder) error
	GetReminder(ctx context.Context, id int64) (*models.Reminder, error)
	UpdateReminderSchedule(ctx context.Context, id int64, remindAt time.Time, message string, at time.Time) error
	DeleteReminder(ctx context.Context, id int64) error
	ListReminders(ctx context.Context, userID string, f ReminderFilter) ([]models.Reminder, error)
	HasUnsentReminder(ctx context.Context, userID, applicationID string, channel models.Channel, exceptID int64) (bool, error)
	ListDueReminderIDs(ctx context.Context, now time.Time, afterID int64, limit int) ([]int64, error)
	MarkReminderSent(ctx context.Context, id int64, at time.Time) (bool, error)
	ResetReminderSent(ctx context.Context, id int64, at time.Time) (bool, error)
	DeleteSentRemindersBefore(ctx context.Context, before time.Time) (int64, error)
}

type AttachmentRepo interface {
	CreateAttachment(ctx context.Context, a *models.Attachment) error
	GetAttachment(ctx context.Context, id string) (*models.Attachment, error)
	ListAttachments(ctx context.Context, applicationID string) ([]models.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error
	// DeletedApplicationAttachmentKeys lists the storage keys of attachments
	// whose application was soft deleted before the cutoff.
	DeletedApplicationAttachmentKeys(ctx context.Context, before time.Time) ([]string, error)
}

type NotificationRepo interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
}

// JobQueue is the persistent queue behind the worker pool.
type JobQueue interface {
	Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error)
	EnqueueUnique(ctx context.Context, j *models.BackgroundJob) (int64, error)
	ClaimNext(ctx context.Context, now time.Time) (*models.BackgroundJob, error)
	UpdateJob(ctx context.Context, j *models.BackgroundJob) error
	MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error
	RequeueStale(ctx context.Context, olderThan, now time.Time) (int64, error)
	ListDeadLetters(ctx context.Context, limit, offset int) ([]models.DeadLetterJob, error)
}

// Repository groups the repositories used by the services.
type Repository struct {
	Users         UserRepo
	Applications  ApplicationRepo
	History       StatusHistoryRepo
	Reminders     ReminderRepo
	Attachments   AttachmentRepo
	Notifications NotificationRepo
	Jobs          JobQueue
}
