package queue

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/focusmon/screenwatch/internal/domain/jobs"
)

// Handler processes one dequeued job. An error marks the job failed at the
// queue layer; the handler is expected to have written the item record
// before returning, so the two views cannot disagree.
type Handler func(ctx context.Context, j *jobs.Job) error

// WorkerPool pulls jobs from the broker and runs the handler under a
// concurrency bound. A job that exceeds its timeout is requeued once, then
// failed as stalled.
type WorkerPool struct {
	broker         jobs.Broker
	handler        Handler
	sem            *semaphore.Weighted
	concurrency    int
	defaultTimeout time.Duration

	cancel context.CancelFunc
	doneCh chan struct{}
}

func NewWorkerPool(broker jobs.Broker, handler Handler, concurrency int, defaultTimeout time.Duration) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &WorkerPool{
		broker:         broker,
		handler:        handler,
		sem:            semaphore.NewWeighted(int64(concurrency)),
		concurrency:    concurrency,
		defaultTimeout: defaultTimeout,
		doneCh:         make(chan struct{}),
	}
}

func (p *WorkerPool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.dispatch(ctx)
}

func (p *WorkerPool) dispatch(ctx context.Context) {
	defer close(p.doneCh)
	backoff := 100 * time.Millisecond
	for {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return
		}
		j, err := p.broker.Dequeue(ctx)
		if err != nil {
			p.sem.Release(1)
			if errors.Is(err, context.Canceled) || errors.Is(err, jobs.ErrClosed) {
				return
			}
			log.WithError(err).Warn("dequeue error, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, 5*time.Second)
			continue
		}
		backoff = 100 * time.Millisecond

		go func(j *jobs.Job) {
			defer p.sem.Release(1)
			p.run(ctx, j)
		}(j)
	}
}

func (p *WorkerPool) run(ctx context.Context, j *jobs.Job) {
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = p.defaultTimeout
	}
	jctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fields := log.Fields{
		"job_id":        j.ID,
		"screenshot_id": j.Payload.ScreenshotID,
		"attempt":       j.AttemptsMade,
	}
	log.WithFields(fields).Info("processing job")

	err := p.handler(jctx, j)

	// bookkeeping must land even while shutting down
	bg, bgCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer bgCancel()

	switch {
	case err == nil:
		if cerr := p.broker.Complete(bg, j); cerr != nil {
			log.WithFields(fields).WithError(cerr).Error("failed to complete job")
		} else {
			log.WithFields(fields).Info("job completed")
		}
	case errors.Is(jctx.Err(), context.DeadlineExceeded) && !j.Requeued:
		log.WithFields(fields).Warn("job stalled, requeueing once")
		if rerr := p.broker.Requeue(bg, j, time.Second); rerr != nil {
			log.WithFields(fields).WithError(rerr).Error("failed to requeue stalled job")
		}
	default:
		log.WithFields(fields).WithError(err).Error("job failed")
		if ferr := p.broker.Fail(bg, j, err.Error()); ferr != nil {
			log.WithFields(fields).WithError(ferr).Error("failed to record job failure")
		}
	}
}

// Stop cancels the dispatcher and waits for in-flight handlers to release
// their semaphore slots, up to the ctx deadline.
func (p *WorkerPool) Stop(ctx context.Context) {
	if p.cancel != nil {
		p.cancel()
	}
	select {
	case <-p.doneCh:
	case <-ctx.Done():
		log.Warn("worker pool shutdown timeout: dispatcher still running")
		return
	}
	// drain all slots so handlers have finished their bookkeeping
	if err := p.sem.Acquire(ctx, int64(p.concurrency)); err != nil {
		log.Warn("worker pool shutdown timeout: some jobs may still be running")
	}
}
