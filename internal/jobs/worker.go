// small contract description
// inputs: job table rows, handlers map
// outputs: job status updates, dead-letter moves on exhausted or permanent failure
// error modes: db errors, handler errors, handler panics
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/garnizeh/apptrack/internal/models"
	"github.com/garnizeh/apptrack/pkg/repository"
)

// Options tune a WorkerPool. Zero values take the defaults.
type Options struct {
	Workers      int
	PollInterval time.Duration
	JobTimeout   time.Duration
	// StaleAfter is how long a job may stay running before it is requeued.
	StaleAfter time.Duration
	Backoff    Backoff
	Now        func() time.Time
}

func (o *Options) setDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 500 * time.Millisecond
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = time.Minute
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 10 * time.Minute
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type WorkerPool struct {
	queue    repository.JobQueue
	handlers map[string]Handler
	logger   *slog.Logger
	opts     Options
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorkerPool(queue repository.JobQueue, handlers map[string]Handler, logger *slog.Logger, opts Options) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if handlers == nil {
		handlers = map[string]Handler{}
	}
	opts.setDefaults()
	return &WorkerPool{queue: queue, handlers: handlers, logger: logger, opts: opts, stop: make(chan struct{})}
}

// Register adds a handler for typ. It must be called before Start.
func (p *WorkerPool) Register(typ string, h Handler) {
	p.handlers[typ] = h
}

// Start launches the worker goroutines and the stale job janitor.
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.wg.Add(1)
	go p.janitor(ctx)
}

// Stop signals workers to stop and waits for them
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		// drain the queue before waiting for the next tick
		for {
			processed, err := p.ProcessNext(ctx)
			if err != nil {
				p.logger.Error("process job", "worker", id, "err", err)
				break
			}
			if !processed || p.stopping(ctx) {
				break
			}
		}

		select {
		case <-p.stop:
			p.logger.Info("worker stopping", "id", id)
			return
		case <-ctx.Done():
			p.logger.Info("context canceled, worker exiting", "id", id)
			return
		case <-ticker.C:
		}
	}
}

func (p *WorkerPool) stopping(ctx context.Context) bool {
	select {
	case <-p.stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (p *WorkerPool) janitor(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.StaleAfter / 2)
	defer ticker.Stop()

	for {
		p.RequeueStale(ctx)
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RequeueStale takes back jobs stuck in running for longer than StaleAfter.
// The takeover counts as an attempt.
func (p *WorkerPool) RequeueStale(ctx context.Context) {
	now := p.opts.Now()
	n, err := p.queue.RequeueStale(ctx, now.Add(-p.opts.StaleAfter), now)
	if err != nil {
		p.logger.Error("requeue stale jobs", "err", err)
		return
	}
	if n > 0 {
		p.logger.Warn("requeued stale jobs", "count", n)
	}
}

// ProcessNext claims one runnable job and runs it. It reports whether a job
// was claimed; handler failures are recorded on the job, not returned.
func (p *WorkerPool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.queue.ClaimNext(ctx, p.opts.Now())
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	p.run(ctx, job)
	return true, nil
}

func (p *WorkerPool) run(ctx context.Context, job *models.BackgroundJob) {
	log := p.logger.With("job_id", job.ID, "type", job.Type)

	h, ok := p.handlers[job.Type]
	if !ok {
		job.Status = StatusFailed
		job.LastError = "no handler for job type"
		if err := p.queue.MoveToDeadLetter(ctx, job); err != nil {
			log.Error("move to dead letter", "err", err)
		}
		log.Error("job has no handler")
		return
	}

	start := time.Now()
	err := p.invoke(ctx, h, job)
	if err == nil {
		job.Status = StatusDone
		job.LastError = ""
		if upErr := p.queue.UpdateJob(ctx, job); upErr != nil {
			log.Error("update finished job", "err", upErr)
		}
		log.Debug("job done", "duration", time.Since(start))
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	if IsPermanent(err) || job.Attempts >= job.MaxAttempts {
		job.Status = StatusFailed
		if mvErr := p.queue.MoveToDeadLetter(ctx, job); mvErr != nil {
			log.Error("move to dead letter", "err", mvErr)
		}
		log.Warn("job failed", "attempts", job.Attempts, "permanent", IsPermanent(err), "err", err)
		return
	}

	// schedule retry with backoff
	t := p.opts.Now().Add(p.opts.Backoff.Duration(job.Attempts))
	job.NextTryAt = &t
	job.Status = StatusRetry
	if upErr := p.queue.UpdateJob(ctx, job); upErr != nil {
		log.Error("update job for retry", "err", upErr)
	}
	log.Info("job will retry", "attempts", job.Attempts, "next_try_at", t, "err", err)
}

// invoke runs h with the job timeout and turns a panic into an error.
func (p *WorkerPool) invoke(ctx context.Context, h Handler, job *models.BackgroundJob) (err error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.JobTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, job)
}
