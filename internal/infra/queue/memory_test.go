package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusmon/screenwatch/internal/domain/jobs"
)

func enqueue(t *testing.T, b *MemoryBroker, id string, priority int) string {
	t.Helper()
	jobID, err := b.Enqueue(context.Background(), jobs.Payload{ScreenshotID: id}, jobs.Options{Priority: priority})
	require.NoError(t, err)
	return jobID
}

func TestMemoryBrokerPriorityThenFIFO(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	enqueue(t, b, "low", 2)
	enqueue(t, b, "first", 1)
	enqueue(t, b, "second", 1)

	for _, want := range []string{"first", "second", "low"} {
		j, err := b.Dequeue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, j.Payload.ScreenshotID)
		assert.Equal(t, 1, j.AttemptsMade)
	}
}

func TestMemoryBrokerDequeueBlocksUntilEnqueue(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	got := make(chan *jobs.Job, 1)
	go func() {
		j, err := b.Dequeue(context.Background())
		if err == nil {
			got <- j
		}
	}()

	time.Sleep(20 * time.Millisecond)
	enqueue(t, b, "late", 1)

	select {
	case j := <-got:
		assert.Equal(t, "late", j.Payload.ScreenshotID)
	case <-time.After(time.Second):
		t.Fatal("dequeue never woke up")
	}
}

func TestMemoryBrokerRequeueDelaysAndFlags(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	enqueue(t, b, "stalled", 1)
	j, err := b.Dequeue(context.Background())
	require.NoError(t, err)

	require.NoError(t, b.Requeue(context.Background(), j, 30*time.Millisecond))

	stats, err := b.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Delayed)
	assert.Equal(t, 0, stats.Active)

	start := time.Now()
	j2, err := b.Dequeue(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.True(t, j2.Requeued)
	assert.Equal(t, 2, j2.AttemptsMade)
}

func TestMemoryBrokerRetryFailedJob(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	id := enqueue(t, b, "flaky", 1)
	j, err := b.Dequeue(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Fail(context.Background(), j, "boom"))

	stats, _ := b.Stats(context.Background())
	assert.Equal(t, 1, stats.Failed)

	require.NoError(t, b.Retry(context.Background(), id))

	j2, err := b.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, j2.ID)
	assert.False(t, j2.Requeued, "manual retry grants a fresh stall allowance")

	err = b.Retry(context.Background(), "no-such-job")
	assert.ErrorIs(t, err, jobs.ErrJobNotFound)
}

func TestMemoryBrokerHasJobFor(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	has, err := b.HasJobFor(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, has)

	enqueue(t, b, "s1", 1)
	has, _ = b.HasJobFor(ctx, "s1")
	assert.True(t, has, "waiting job counts")

	j, err := b.Dequeue(ctx)
	require.NoError(t, err)
	has, _ = b.HasJobFor(ctx, "s1")
	assert.True(t, has, "active job counts")

	require.NoError(t, b.Requeue(ctx, j, 30*time.Millisecond))
	has, _ = b.HasJobFor(ctx, "s1")
	assert.True(t, has, "delayed job counts")

	j, err = b.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Complete(ctx, j))
	has, _ = b.HasJobFor(ctx, "s1")
	assert.False(t, has, "terminal entries do not count")

	id := enqueue(t, b, "s2", 1)
	j, err = b.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, b.Fail(ctx, j, "boom"))
	has, _ = b.HasJobFor(ctx, "s2")
	assert.False(t, has)

	require.NoError(t, b.Retry(ctx, id))
	has, _ = b.HasJobFor(ctx, "s2")
	assert.True(t, has, "a manually retried job is live again")
}

func TestMemoryBrokerStats(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	enqueue(t, b, "a", 1)
	enqueue(t, b, "b", 1)
	j, err := b.Dequeue(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Complete(context.Background(), j))

	stats, err := b.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jobs.Stats{Waiting: 1, Completed: 1, Total: 2}, stats)
}

func TestMemoryBrokerCleanDropsOldEntries(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()

	enqueue(t, b, "done", 1)
	j, err := b.Dequeue(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Complete(context.Background(), j))

	time.Sleep(10 * time.Millisecond)

	removed, err := b.Clean(context.Background(), 0, jobs.StateCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = b.Clean(context.Background(), time.Hour, jobs.StateFailed)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)

	stats, _ := b.Stats(context.Background())
	assert.Equal(t, 0, stats.Completed)
}

func TestMemoryBrokerClose(t *testing.T) {
	b := NewMemoryBroker()
	require.NoError(t, b.Close())

	_, err := b.Enqueue(context.Background(), jobs.Payload{}, jobs.Options{})
	assert.ErrorIs(t, err, jobs.ErrQueueUnavailable)

	_, err = b.Dequeue(context.Background())
	assert.ErrorIs(t, err, jobs.ErrClosed)
}
