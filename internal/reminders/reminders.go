// Package reminders stores reminders, finds the due ones and delivers them
// through the job queue.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/garnizeh/apptrack/internal/jobs"
)

// DeliveryMaxAttempts caps delivery tries per job, first attempt included.
const DeliveryMaxAttempts = 3

// Enqueuer puts jobs on the queue. *jobs.Client implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, j jobs.Job) (int64, error)
}

// DeliverPayload is the payload of a reminders.deliver job. It carries only
// the reminder identity; the worker re-reads everything else.
type DeliverPayload struct {
	ReminderID int64 `json:"reminder_id"`
}

// DedupeKey collapses delivery jobs queued for the same reminder.
func DedupeKey(reminderID int64) string {
	return fmt.Sprintf("reminder:%d", reminderID)
}

// DeliveryJob is the job that delivers reminderID no earlier than at.
func DeliveryJob(reminderID int64, at time.Time) jobs.Job {
	return jobs.Job{
		Type:        jobs.TypeReminderDeliver,
		Payload:     DeliverPayload{ReminderID: reminderID},
		DedupeKey:   DedupeKey(reminderID),
		RunAt:       at,
		MaxAttempts: DeliveryMaxAttempts,
	}
}
