package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Schedule enqueues JobType every Interval.
type Schedule struct {
	Name     string
	JobType  string
	Interval time.Duration
}

// DefaultSchedules is the periodic maintenance run by the scheduler process.
var DefaultSchedules = []Schedule{
	{Name: "reminders.dispatch", JobType: TypeReminderDispatch, Interval: 5 * time.Minute},
	{Name: "reminders.cleanup", JobType: TypeReminderCleanup, Interval: 24 * time.Hour},
	{Name: "applications.purge", JobType: TypeApplicationPurge, Interval: 24 * time.Hour},
}

// Scheduler turns the schedule table into queued jobs. Each firing uses the
// dedupe key schedule:<name>, so overlapping ticks or several scheduler
// processes leave at most one pending job per schedule.
type Scheduler struct {
	client    *Client
	schedules []Schedule
	logger    *slog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewScheduler(client *Client, schedules []Schedule, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{client: client, schedules: schedules, logger: logger, stop: make(chan struct{})}
}

// Start fires every schedule once and then on its interval.
func (s *Scheduler) Start(ctx context.Context) {
	for _, sc := range s.schedules {
		if sc.Interval <= 0 {
			s.logger.Warn("schedule disabled", "name", sc.Name)
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, sc)
	}
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sc Schedule) {
	defer s.wg.Done()
	ticker := time.NewTicker(sc.Interval)
	defer ticker.Stop()

	for {
		s.fire(ctx, sc)
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce fires every schedule immediately.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, sc := range s.schedules {
		s.fire(ctx, sc)
	}
}

func (s *Scheduler) fire(ctx context.Context, sc Schedule) {
	id, err := s.client.Enqueue(ctx, Job{Type: sc.JobType, DedupeKey: "schedule:" + sc.Name, MaxAttempts: 3})
	if err != nil {
		s.logger.Error("enqueue scheduled job", "name", sc.Name, "err", err)
		return
	}
	s.logger.Debug("scheduled job enqueued", "name", sc.Name, "job_id", id)
}
