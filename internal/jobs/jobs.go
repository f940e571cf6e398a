package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/garnizeh/apptrack/internal/models"
)

// Job types handled by the worker pool.
const (
	TypeReminderDeliver  = "reminders.deliver"
	TypeReminderDispatch = "reminders.dispatch"
	TypeReminderCleanup  = "reminders.cleanup"
	TypeApplicationPurge = "applications.purge"
)

// Job states as stored in the jobs table.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusRetry   = "retry"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Handler is the function that processes a job
type Handler func(ctx context.Context, j *models.BackgroundJob) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The worker moves the job to the
// dead letter table on the first such failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Backoff computes the delay before retry number attempt.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff doubles from one second up to five minutes.
var DefaultBackoff = Backoff{Base: time.Second, Max: 5 * time.Minute}

// Duration returns Base * 2^attempt, capped at Max.
func (b Backoff) Duration(attempt int) time.Duration {
	if b.Base <= 0 {
		b.Base = DefaultBackoff.Base
	}
	if b.Max <= 0 {
		b.Max = DefaultBackoff.Max
	}
	if attempt <= 0 {
		return b.Base
	}
	if attempt > 30 {
		return b.Max
	}
	d := b.Base * time.Duration(1<<uint(attempt))
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}
