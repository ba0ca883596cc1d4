// Package worker runs periodic background jobs until the context ends.
package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// WakeChannel is the Redis pub/sub channel that triggers an immediate pass of
// every job. Polling still runs without it.
const WakeChannel = "workers:wake"

// Job is one periodic task. Run returns how many items it handled.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Runner drives a set of jobs, one goroutine each.
type Runner struct {
	jobs  []Job
	rdb   *redis.Client
	wakes []chan struct{}
}

// NewRunner creates a runner. rdb may be nil, which disables wake-ups.
func NewRunner(rdb *redis.Client, jobs ...Job) *Runner {
	wakes := make([]chan struct{}, len(jobs))
	for i := range wakes {
		wakes[i] = make(chan struct{}, 1)
	}
	return &Runner{jobs: jobs, rdb: rdb, wakes: wakes}
}

// Run blocks until ctx is cancelled or a job panics out.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for i, job := range r.jobs {
		job, wake := job, r.wakes[i]
		g.Go(func() error {
			r.loop(ctx, job, wake)
			return nil
		})
	}
	if r.rdb != nil {
		g.Go(func() error {
			r.subscribeWakeups(ctx)
			return nil
		})
	}

	log.Info().Int("jobs", len(r.jobs)).Msg("Workers started")
	err := g.Wait()
	log.Info().Msg("Workers stopped")
	return err
}

// Wake triggers an immediate pass of every job without blocking.
func (r *Runner) Wake() {
	for _, w := range r.wakes {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

// Notify asks every running worker process for an immediate pass.
func Notify(ctx context.Context, rdb *redis.Client) {
	if rdb == nil {
		return
	}
	if err := rdb.Publish(ctx, WakeChannel, "1").Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to publish worker wake-up")
	}
}

func (r *Runner) loop(ctx context.Context, job Job, wake <-chan struct{}) {
	interval := job.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-wake:
		case <-ticker.C:
		}
		r.runOnce(ctx, job)
	}
}

func (r *Runner) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	n, err := job.Run(ctx)
	switch {
	case err != nil && ctx.Err() != nil:
	case err != nil:
		log.Error().Err(err).Str("job", job.Name).Msg("Worker pass failed")
	case n > 0:
		log.Info().Str("job", job.Name).Int("handled", n).Dur("took", time.Since(start)).Msg("Worker pass done")
	default:
		log.Debug().Str("job", job.Name).Msg("Idle: nothing to do")
	}
}

func (r *Runner) subscribeWakeups(ctx context.Context) {
	sub := r.rdb.Subscribe(ctx, WakeChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			r.Wake()
		}
	}
}
