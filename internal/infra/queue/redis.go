package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/focusmon/screenwatch/internal/domain/jobs"
)

// score layout for the waiting ZSET: priority in the high digits, enqueue
// sequence in the low ones, so ZPOPMIN yields priority-then-FIFO order.
const prioritySpan = 1e12

// RedisBroker is the durable jobs.Broker. Layout per queue prefix:
//
//	{p}:waiting    ZSET jobID -> priority*span+seq
//	{p}:delayed    ZSET jobID -> ready-at unix ms
//	{p}:active     SET  jobID
//	{p}:completed  ZSET jobID -> finished-at unix
//	{p}:failed     ZSET jobID -> finished-at unix
//	{p}:inflight   SET  screenshotID while a live job references it
//	{p}:job:{id}   JSON job record (kept for waiting/active/failed)
type RedisBroker struct {
	rdb    *redis.Client
	prefix string
}

type redisJob struct {
	jobs.Job
	Reason string `json:"reason,omitempty"`
}

func NewRedisBroker(ctx context.Context, addr, password string, db int, prefix string) (*RedisBroker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	return &RedisBroker{rdb: rdb, prefix: prefix}, nil
}

// Ping exposes connectivity for the health endpoint.
func (b *RedisBroker) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

func (b *RedisBroker) key(parts ...string) string {
	k := b.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (b *RedisBroker) Enqueue(ctx context.Context, p jobs.Payload, opts jobs.Options) (string, error) {
	seq, err := b.rdb.Incr(ctx, b.key("seq")).Result()
	if err != nil {
		return "", fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	j := redisJob{Job: jobs.Job{
		ID:         uuid.New().String(),
		Payload:    p,
		Priority:   opts.Priority,
		Timeout:    opts.Timeout,
		EnqueuedAt: time.Now(),
	}}
	if err := b.putJob(ctx, &j); err != nil {
		return "", fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	score := float64(opts.Priority)*prioritySpan + float64(seq)
	pipe := b.rdb.TxPipeline()
	pipe.ZAdd(ctx, b.key("waiting"), redis.Z{Score: score, Member: j.ID})
	pipe.SAdd(ctx, b.key("inflight"), p.ScreenshotID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	return j.ID, nil
}

func (b *RedisBroker) Dequeue(ctx context.Context) (*jobs.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b.promoteDelayed(ctx)

		res, err := b.rdb.BZPopMin(ctx, 2*time.Second, b.key("waiting")).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
		}

		id, _ := res.Member.(string)
		j, err := b.getJob(ctx, id)
		if err != nil {
			// job record gone (pruned mid-flight); skip it
			continue
		}
		j.AttemptsMade++
		if err := b.putJob(ctx, j); err != nil {
			return nil, fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
		}
		if err := b.rdb.SAdd(ctx, b.key("active"), id).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
		}
		out := j.Job
		return &out, nil
	}
}

func (b *RedisBroker) Complete(ctx context.Context, j *jobs.Job) error {
	pipe := b.rdb.TxPipeline()
	pipe.SRem(ctx, b.key("active"), j.ID)
	pipe.SRem(ctx, b.key("inflight"), j.Payload.ScreenshotID)
	pipe.ZAdd(ctx, b.key("completed"), redis.Z{Score: float64(time.Now().Unix()), Member: j.ID})
	pipe.Del(ctx, b.key("job", j.ID))
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBroker) Fail(ctx context.Context, j *jobs.Job, reason string) error {
	rj := redisJob{Job: *j, Reason: reason}
	if err := b.putJob(ctx, &rj); err != nil {
		return err
	}
	pipe := b.rdb.TxPipeline()
	pipe.SRem(ctx, b.key("active"), j.ID)
	pipe.SRem(ctx, b.key("inflight"), j.Payload.ScreenshotID)
	pipe.ZAdd(ctx, b.key("failed"), redis.Z{Score: float64(time.Now().Unix()), Member: j.ID})
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBroker) Requeue(ctx context.Context, j *jobs.Job, delay time.Duration) error {
	j.Requeued = true
	rj := redisJob{Job: *j}
	if err := b.putJob(ctx, &rj); err != nil {
		return err
	}
	pipe := b.rdb.TxPipeline()
	pipe.SRem(ctx, b.key("active"), j.ID)
	if delay <= 0 {
		seq := b.rdb.Incr(ctx, b.key("seq")).Val()
		score := float64(j.Priority)*prioritySpan + float64(seq)
		pipe.ZAdd(ctx, b.key("waiting"), redis.Z{Score: score, Member: j.ID})
	} else {
		readyAt := time.Now().Add(delay).UnixMilli()
		pipe.ZAdd(ctx, b.key("delayed"), redis.Z{Score: float64(readyAt), Member: j.ID})
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (b *RedisBroker) Stats(ctx context.Context) (jobs.Stats, error) {
	pipe := b.rdb.Pipeline()
	waiting := pipe.ZCard(ctx, b.key("waiting"))
	active := pipe.SCard(ctx, b.key("active"))
	completed := pipe.ZCard(ctx, b.key("completed"))
	failed := pipe.ZCard(ctx, b.key("failed"))
	delayed := pipe.ZCard(ctx, b.key("delayed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return jobs.Stats{}, fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	s := jobs.Stats{
		Waiting:   int(waiting.Val()),
		Active:    int(active.Val()),
		Completed: int(completed.Val()),
		Failed:    int(failed.Val()),
		Delayed:   int(delayed.Val()),
	}
	s.Total = s.Waiting + s.Active + s.Completed + s.Failed + s.Delayed
	return s, nil
}

func (b *RedisBroker) Retry(ctx context.Context, jobID string) error {
	removed, err := b.rdb.ZRem(ctx, b.key("failed"), jobID).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	j, err := b.getJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}
	j.Requeued = false
	j.Reason = ""
	if err := b.putJob(ctx, j); err != nil {
		return err
	}
	seq, err := b.rdb.Incr(ctx, b.key("seq")).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	score := float64(j.Priority)*prioritySpan + float64(seq)
	pipe := b.rdb.TxPipeline()
	pipe.ZAdd(ctx, b.key("waiting"), redis.Z{Score: score, Member: jobID})
	pipe.SAdd(ctx, b.key("inflight"), j.Payload.ScreenshotID)
	_, err = pipe.Exec(ctx)
	return err
}

// HasJobFor checks the inflight set; Requeue keeps membership, so a stalled
// job still counts as live.
func (b *RedisBroker) HasJobFor(ctx context.Context, screenshotID string) (bool, error) {
	ok, err := b.rdb.SIsMember(ctx, b.key("inflight"), screenshotID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	return ok, nil
}

func (b *RedisBroker) Clean(ctx context.Context, olderThan time.Duration, state jobs.State) (int, error) {
	var zkey string
	switch state {
	case jobs.StateCompleted:
		zkey = b.key("completed")
	case jobs.StateFailed:
		zkey = b.key("failed")
	default:
		return 0, nil
	}
	cutoff := fmt.Sprintf("%d", time.Now().Add(-olderThan).Unix())

	ids, err := b.rdb.ZRangeByScore(ctx, zkey, &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	pipe := b.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, zkey, "-inf", cutoff)
	for _, id := range ids {
		pipe.Del(ctx, b.key("job", id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
	}
	return len(ids), nil
}

func (b *RedisBroker) Close() error {
	return b.rdb.Close()
}

// promoteDelayed moves due delayed jobs into waiting. Best-effort: a failure
// here just delays the job until the next dequeue pass.
func (b *RedisBroker) promoteDelayed(ctx context.Context) {
	now := fmt.Sprintf("%d", time.Now().UnixMilli())
	ids, err := b.rdb.ZRangeByScore(ctx, b.key("delayed"), &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil || len(ids) == 0 {
		return
	}
	for _, id := range ids {
		j, err := b.getJob(ctx, id)
		if err != nil {
			b.rdb.ZRem(ctx, b.key("delayed"), id)
			continue
		}
		seq := b.rdb.Incr(ctx, b.key("seq")).Val()
		score := float64(j.Priority)*prioritySpan + float64(seq)
		pipe := b.rdb.TxPipeline()
		pipe.ZRem(ctx, b.key("delayed"), id)
		pipe.ZAdd(ctx, b.key("waiting"), redis.Z{Score: score, Member: id})
		pipe.Exec(ctx)
	}
}

func (b *RedisBroker) putJob(ctx context.Context, j *redisJob) error {
	data, err := json.Marshal(j)
	if err != nil {
		return err
	}
	return b.rdb.Set(ctx, b.key("job", j.ID), data, 0).Err()
}

func (b *RedisBroker) getJob(ctx context.Context, id string) (*redisJob, error) {
	data, err := b.rdb.Get(ctx, b.key("job", id)).Bytes()
	if err != nil {
		return nil, err
	}
	var j redisJob
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
