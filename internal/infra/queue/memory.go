package queue

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/focusmon/screenwatch/internal/domain/jobs"
)

// MemoryBroker is the in-process jobs.Broker: a priority FIFO with retained
// terminal bookkeeping so stats and pruning behave like the real broker.
// Lower priority number wins; within a tier, enqueue order holds.
type MemoryBroker struct {
	mu        sync.Mutex
	seq       uint64
	waiting   waitHeap
	delayed   delayHeap
	active    map[string]*jobs.Job
	completed []terminalEntry
	failed    []failedEntry
	closed    bool

	signal chan struct{}
	done   chan struct{}
}

type waitItem struct {
	job *jobs.Job
	seq uint64
}

type delayItem struct {
	job     *jobs.Job
	readyAt time.Time
	seq     uint64
}

type terminalEntry struct {
	id         string
	finishedAt time.Time
}

type failedEntry struct {
	job        *jobs.Job
	finishedAt time.Time
	reason     string
}

func NewMemoryBroker() *MemoryBroker {
	b := &MemoryBroker{
		active: make(map[string]*jobs.Job),
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	heap.Init(&b.waiting)
	heap.Init(&b.delayed)
	return b
}

func (b *MemoryBroker) Enqueue(_ context.Context, p jobs.Payload, opts jobs.Options) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", fmt.Errorf("%w: broker closed", jobs.ErrQueueUnavailable)
	}

	j := &jobs.Job{
		ID:         uuid.New().String(),
		Payload:    p,
		Priority:   opts.Priority,
		Timeout:    opts.Timeout,
		EnqueuedAt: time.Now(),
	}
	b.seq++
	heap.Push(&b.waiting, waitItem{job: j, seq: b.seq})
	b.wake()
	return j.ID, nil
}

// Dequeue blocks until a job is ready, the context ends, or the broker
// closes.
func (b *MemoryBroker) Dequeue(ctx context.Context) (*jobs.Job, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, jobs.ErrClosed
		}
		b.promoteDelayed(time.Now())
		if b.waiting.Len() > 0 {
			item := heap.Pop(&b.waiting).(waitItem)
			item.job.AttemptsMade++
			b.active[item.job.ID] = item.job
			b.mu.Unlock()
			return item.job, nil
		}
		var timer *time.Timer
		var timerC <-chan time.Time
		if b.delayed.Len() > 0 {
			wait := time.Until(b.delayed[0].readyAt)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			timerC = timer.C
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil, ctx.Err()
		case <-b.done:
			if timer != nil {
				timer.Stop()
			}
			return nil, jobs.ErrClosed
		case <-b.signal:
			if timer != nil {
				timer.Stop()
			}
		case <-timerC:
		}
	}
}

func (b *MemoryBroker) Complete(_ context.Context, j *jobs.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, j.ID)
	b.completed = append(b.completed, terminalEntry{id: j.ID, finishedAt: time.Now()})
	return nil
}

func (b *MemoryBroker) Fail(_ context.Context, j *jobs.Job, reason string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, j.ID)
	b.failed = append(b.failed, failedEntry{job: j, finishedAt: time.Now(), reason: reason})
	return nil
}

func (b *MemoryBroker) Requeue(_ context.Context, j *jobs.Job, delay time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%w: broker closed", jobs.ErrQueueUnavailable)
	}
	delete(b.active, j.ID)
	j.Requeued = true
	b.seq++
	if delay <= 0 {
		heap.Push(&b.waiting, waitItem{job: j, seq: b.seq})
	} else {
		heap.Push(&b.delayed, delayItem{job: j, readyAt: time.Now().Add(delay), seq: b.seq})
	}
	b.wake()
	return nil
}

func (b *MemoryBroker) Stats(_ context.Context) (jobs.Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := jobs.Stats{
		Waiting:   b.waiting.Len(),
		Active:    len(b.active),
		Completed: len(b.completed),
		Failed:    len(b.failed),
		Delayed:   b.delayed.Len(),
	}
	s.Total = s.Waiting + s.Active + s.Completed + s.Failed + s.Delayed
	return s, nil
}

// HasJobFor scans the live states; terminal entries do not count.
func (b *MemoryBroker) HasJobFor(_ context.Context, screenshotID string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, item := range b.waiting {
		if item.job.Payload.ScreenshotID == screenshotID {
			return true, nil
		}
	}
	for _, item := range b.delayed {
		if item.job.Payload.ScreenshotID == screenshotID {
			return true, nil
		}
	}
	for _, j := range b.active {
		if j.Payload.ScreenshotID == screenshotID {
			return true, nil
		}
	}
	return false, nil
}

// Retry moves one failed job back to waiting; the stall flag is cleared so
// the re-driven job gets a fresh timeout allowance.
func (b *MemoryBroker) Retry(_ context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("%w: broker closed", jobs.ErrQueueUnavailable)
	}
	for i, e := range b.failed {
		if e.job.ID == jobID {
			b.failed = append(b.failed[:i], b.failed[i+1:]...)
			e.job.Requeued = false
			b.seq++
			heap.Push(&b.waiting, waitItem{job: e.job, seq: b.seq})
			b.wake()
			return nil
		}
	}
	return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
}

func (b *MemoryBroker) Clean(_ context.Context, olderThan time.Duration, state jobs.State) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	switch state {
	case jobs.StateCompleted:
		kept := b.completed[:0]
		for _, e := range b.completed {
			if e.finishedAt.Before(cutoff) {
				removed++
			} else {
				kept = append(kept, e)
			}
		}
		b.completed = kept
	case jobs.StateFailed:
		kept := b.failed[:0]
		for _, e := range b.failed {
			if e.finishedAt.Before(cutoff) {
				removed++
			} else {
				kept = append(kept, e)
			}
		}
		b.failed = kept
	}
	return removed, nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
	return nil
}

func (b *MemoryBroker) wake() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

func (b *MemoryBroker) promoteDelayed(now time.Time) {
	for b.delayed.Len() > 0 && !b.delayed[0].readyAt.After(now) {
		item := heap.Pop(&b.delayed).(delayItem)
		b.seq++
		heap.Push(&b.waiting, waitItem{job: item.job, seq: b.seq})
	}
}

// waitHeap orders by (priority, seq): lower priority number first, then
// enqueue order.
type waitHeap []waitItem

func (h waitHeap) Len() int { return len(h) }
func (h waitHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority < h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}
func (h waitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *waitHeap) Push(x any)   { *h = append(*h, x.(waitItem)) }
func (h *waitHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// delayHeap orders by readiness time.
type delayHeap []delayItem

func (h delayHeap) Len() int { return len(h) }
func (h delayHeap) Less(i, j int) bool {
	if !h[i].readyAt.Equal(h[j].readyAt) {
		return h[i].readyAt.Before(h[j].readyAt)
	}
	return h[i].seq < h[j].seq
}
func (h delayHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *delayHeap) Push(x any)   { *h = append(*h, x.(delayItem)) }
func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
