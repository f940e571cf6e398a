package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository"
)

// Job describes work to put on the queue.
type Job struct {
	Type string
	// Payload is marshaled to JSON.
	Payload any
	// DedupeKey collapses the job into a pending job with the same key.
	DedupeKey   string
	RunAt       time.Time
	Priority    int
	MaxAttempts int
}

// Client enqueues jobs. It does not run them; see WorkerPool.
type Client struct {
	queue repository.JobQueue
	now   func() time.Time
}

func NewClient(queue repository.JobQueue, now func() time.Time) *Client {
	if now == nil {
		now = time.Now
	}
	return &Client{queue: queue, now: now}
}

// Enqueue persists j and returns the job ID. A zero RunAt means now. Jobs
// with a DedupeKey go through EnqueueUnique.
func (c *Client) Enqueue(ctx context.Context, j Job) (int64, error) {
	if j.Type == "" {
		return 0, fmt.Errorf("job type is required")
	}
	var payload []byte
	if j.Payload != nil {
		b, err := json.Marshal(j.Payload)
		if err != nil {
			return 0, fmt.Errorf("marshal %s payload: %w", j.Type, err)
		}
		payload = b
	}
	runAt := j.RunAt
	if runAt.IsZero() {
		runAt = c.now()
	}

	bj := &models.BackgroundJob{
		Type:        j.Type,
		Payload:     payload,
		DedupeKey:   j.DedupeKey,
		Priority:    j.Priority,
		MaxAttempts: j.MaxAttempts,
		ScheduledAt: runAt.UTC(),
	}
	if j.DedupeKey != "" {
		return c.queue.EnqueueUnique(ctx, bj)
	}
	return c.queue.Enqueue(ctx, bj)
}
