package jobs

import (
	"context"
	"errors"
	"time"
)

// ErrQueueUnavailable wraps broker connectivity failures; the enqueue caller
// decides whether to surface it or leave the item pending for the sweep.
var ErrQueueUnavailable = errors.New("job queue unavailable")

// ErrJobNotFound is returned by Retry for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// ErrClosed is returned once the broker has shut down.
var ErrClosed = errors.New("job queue closed")

// Broker port: a durable FIFO-with-priority. Within one priority tier jobs
// come out in enqueue order; no ordering is promised across tiers or manual
// retries.
type Broker interface {
	// Enqueue never blocks; it fails only when the broker is unreachable.
	Enqueue(ctx context.Context, p Payload, opts Options) (string, error)
	// Dequeue blocks until a job is ready or ctx is done. The job is
	// `active` until Complete, Fail or Requeue is called for it.
	Dequeue(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, j *Job) error
	Fail(ctx context.Context, j *Job, reason string) error
	// Requeue re-drives a stalled job, optionally after a delay.
	Requeue(ctx context.Context, j *Job, delay time.Duration) error
	Stats(ctx context.Context) (Stats, error)
	// HasJobFor reports whether a waiting, delayed or active job already
	// references the screenshot, so at most one live job exists per item.
	HasJobFor(ctx context.Context, screenshotID string) (bool, error)
	// Retry moves a failed job back to waiting; manual operator path.
	Retry(ctx context.Context, jobID string) error
	// Clean drops terminal bookkeeping entries older than the cutoff,
	// returning how many were removed.
	Clean(ctx context.Context, olderThan time.Duration, state State) (int, error)
	Close() error
}
