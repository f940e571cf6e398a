package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository"
)

const dispatchBatch = 100

// Dispatcher queues a delivery job for every due, unsent reminder. It never
// changes reminders and never sends anything itself.
type Dispatcher struct {
	repo   repository.ReminderRepo
	queue  Enqueuer
	logger *slog.Logger
	now    func() time.Time
	batch  int
}

func NewDispatcher(repo repository.ReminderRepo, queue Enqueuer, logger *slog.Logger, now func() time.Time) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{repo: repo, queue: queue, logger: logger, now: now, batch: dispatchBatch}
}

// Dispatch scans due reminders in id order and returns how many delivery
// jobs were queued. Jobs for the same reminder collapse on their dedupe key,
// so overlapping runs are harmless.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	now := d.now()
	var (
		after  int64
		queued int
	)
	for {
		ids, err := d.repo.ListDueReminderIDs(ctx, now, after, d.batch)
		if err != nil {
			return queued, err
		}
		for _, id := range ids {
			if _, err := d.queue.Enqueue(ctx, DeliveryJob(id, now)); err != nil {
				d.logger.Error("queue reminder delivery", "reminder_id", id, "err", err)
				continue
			}
			queued++
		}
		if len(ids) < d.batch {
			break
		}
		after = ids[len(ids)-1]
	}
	if queued > 0 {
		d.logger.Info("due reminders queued", "count", queued)
	}
	return queued, nil
}

// Handle is the reminders.dispatch job handler.
func (d *Dispatcher) Handle(ctx context.Context, _ *models.BackgroundJob) error {
	_, err := d.Dispatch(ctx)
	return err
}
