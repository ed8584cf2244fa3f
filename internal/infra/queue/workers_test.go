package queue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmon/screenwatch/internal/domain/jobs"
)

func startPool(t *testing.T, b *MemoryBroker, h Handler, concurrency int, timeout time.Duration) *WorkerPool {
	t.Helper()
	p := NewWorkerPool(b, h, concurrency, timeout)
	p.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p.Stop(ctx)
	})
	return p
}

func waitForStats(t *testing.T, b *MemoryBroker, cond func(jobs.Stats) bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := b.Stats(context.Background())
		return err == nil && cond(s)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorkerPoolCompletesJobs(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	var handled atomic.Int32
	startPool(t, b, func(ctx context.Context, j *jobs.Job) error {
		handled.Add(1)
		return nil
	}, 2, time.Second)

	for i := 0; i < 5; i++ {
		enqueue(t, b, "job", 1)
	}

	waitForStats(t, b, func(s jobs.Stats) bool { return s.Completed == 5 })
	assert.Equal(t, int32(5), handled.Load())
}

func TestWorkerPoolRecordsFailures(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	startPool(t, b, func(ctx context.Context, j *jobs.Job) error {
		return errors.New("analysis blew up")
	}, 1, time.Second)

	enqueue(t, b, "bad", 1)

	waitForStats(t, b, func(s jobs.Stats) bool { return s.Failed == 1 })
}

func TestWorkerPoolRequeuesStalledJobOnce(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	var runs atomic.Int32
	startPool(t, b, func(ctx context.Context, j *jobs.Job) error {
		runs.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}, 1, 50*time.Millisecond)

	enqueue(t, b, "stuck", 1)

	// first run times out and is requeued, second run times out and fails
	waitForStats(t, b, func(s jobs.Stats) bool { return s.Failed == 1 })
	assert.Equal(t, int32(2), runs.Load())
}

func TestWorkerPoolRespectsConcurrencyBound(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	var current, peak atomic.Int32
	startPool(t, b, func(ctx context.Context, j *jobs.Job) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(30 * time.Millisecond)
		current.Add(-1)
		return nil
	}, 2, time.Second)

	for i := 0; i < 6; i++ {
		enqueue(t, b, "load", 1)
	}

	waitForStats(t, b, func(s jobs.Stats) bool { return s.Completed == 6 })
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestWorkerPoolStopWaitsForInflight(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	release := make(chan struct{})
	p := NewWorkerPool(b, func(ctx context.Context, j *jobs.Job) error {
		<-release
		return nil
	}, 1, time.Minute)
	p.Start()

	enqueue(t, b, "slow", 1)
	waitForStats(t, b, func(s jobs.Stats) bool { return s.Active == 1 })

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p.Stop(ctx)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("stop returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop never returned after the job finished")
	}

	waitForStats(t, b, func(s jobs.Stats) bool { return s.Completed == 1 })
}
