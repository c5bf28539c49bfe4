package jobxredis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/jobx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements jobx.Queue backed by Redis.
//
// Each queue has a ready list (LPUSH/BRPOP) and a scheduled sorted set
// scored by due time in Unix milliseconds. Job state lives in a JSON
// string per job; terminal jobs expire after the retention period.
type RedisQueue struct {
	rdb       *redis.Client
	retention time.Duration
	now       func() time.Time
}

// Option configures a RedisQueue.
type Option func(*RedisQueue)

// WithRetention sets how long completed and failed jobs are kept. Zero keeps them forever.
func WithRetention(d time.Duration) Option {
	return func(q *RedisQueue) { q.retention = d }
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(rdb *redis.Client, opts ...Option) *RedisQueue {
	q := &RedisQueue{
		rdb:       rdb,
		retention: 24 * time.Hour,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Key helpers
func queueKey(name string) string     { return fmt.Sprintf("jobx:queue:%s", name) }
func scheduledKey(name string) string { return fmt.Sprintf("jobx:scheduled:%s", name) }
func jobKey(id string) string         { return fmt.Sprintf("jobx:job:%s", id) }

// Enqueue adds a job to the ready queue immediately.
func (q *RedisQueue) Enqueue(ctx context.Context, job jobx.Job) (string, error) {
	id := uuid.New().String()
	data, err := json.Marshal(jobx.NewJobInfo(id, job, q.now()))
	if err != nil {
		return "", redisErrors.NewWithCause(ErrMarshal, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(id), data, 0)
	pipe.LPush(ctx, queueKey(job.Queue), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", redisErrors.NewWithCause(ErrEnqueue, err).WithDetail("queue", job.Queue)
	}

	return id, nil
}

// EnqueueDelayed adds a job to the scheduled set with a future execution time.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, job jobx.Job, delay time.Duration) (string, error) {
	id := uuid.New().String()
	now := q.now()
	data, err := json.Marshal(jobx.NewJobInfo(id, job, now))
	if err != nil {
		return "", redisErrors.NewWithCause(ErrMarshal, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(id), data, 0)
	pipe.ZAdd(ctx, scheduledKey(job.Queue), redis.Z{Score: dueScore(now, delay), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", redisErrors.NewWithCause(ErrEnqueue, err).
			WithDetail("queue", job.Queue).
			WithDetail("delay", delay.String())
	}

	return id, nil
}

func dueScore(now time.Time, delay time.Duration) float64 {
	return float64(now.Add(delay).UnixMilli())
}

// GetJob retrieves job info by ID.
func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (*jobx.JobInfo, error) {
	data, err := q.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redisErrors.New(ErrNotFound).WithDetail("job_id", jobID)
		}
		return nil, redisErrors.NewWithCause(ErrGetJob, err).WithDetail("job_id", jobID)
	}

	var info jobx.JobInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("job_id", jobID)
	}

	return &info, nil
}

// Dequeue blocks until a job of queue is available or the timeout expires.
func (q *RedisQueue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*jobx.JobInfo, error) {
	for {
		result, err := q.rdb.BRPop(ctx, timeout, queueKey(queue)).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, nil // timeout, no job
			}
			if ctx.Err() != nil {
				return nil, nil // context cancelled
			}
			return nil, redisErrors.NewWithCause(ErrDequeue, err).WithDetail("queue", queue)
		}

		// result[0] = key, result[1] = job ID
		jobID := result[1]

		info, err := q.GetJob(ctx, jobID)
		if err != nil {
			if errx.HasCode(err, ErrNotFound) {
				// The job record expired while its id sat in the list.
				continue
			}
			if errx.HasCode(err, ErrUnmarshal) {
				// An unreadable record would fail every later pop too.
				return nil, err
			}
			return nil, q.requeue(ctx, queue, jobID, err)
		}

		info.Status = jobx.JobStatusActive
		info.UpdatedAt = q.now()
		if err := q.save(ctx, info, 0); err != nil {
			return nil, q.requeue(ctx, queue, jobID, err)
		}
		return info, nil
	}
}

// requeue puts a popped id back at the head of its list and returns cause.
func (q *RedisQueue) requeue(ctx context.Context, queue, jobID string, cause error) error {
	if err := q.rdb.RPush(context.WithoutCancel(ctx), queueKey(queue), jobID).Err(); err != nil {
		return errors.Join(cause, redisErrors.NewWithCause(ErrRequeue, err).WithDetail("job_id", jobID))
	}
	return cause
}

// Complete marks a job as successfully completed.
func (q *RedisQueue) Complete(ctx context.Context, jobID string) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	info.Status = jobx.JobStatusCompleted
	info.Error = ""
	info.UpdatedAt = q.now()
	return q.save(ctx, info, q.retention)
}

// Fail records a failed attempt. A retried job goes back to waiting; a
// terminal one becomes failed and starts its retention countdown.
func (q *RedisQueue) Fail(ctx context.Context, jobID string, attemptsMade int, errMsg string, retry bool) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if attemptsMade > info.AttemptsMade {
		info.AttemptsMade = attemptsMade
	}
	if info.AttemptsMade > info.MaxAttempts {
		info.AttemptsMade = info.MaxAttempts
	}
	info.Error = errMsg
	info.UpdatedAt = q.now()

	var ttl time.Duration
	if retry {
		info.Status = jobx.JobStatusWaiting
	} else {
		info.Status = jobx.JobStatusFailed
		ttl = q.retention
	}
	return q.save(ctx, info, ttl)
}

// Retry schedules a job to become ready again after delay.
func (q *RedisQueue) Retry(ctx context.Context, jobID string, delay time.Duration) error {
	info, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if err := q.rdb.ZAdd(ctx, scheduledKey(info.Queue), redis.Z{
		Score:  dueScore(q.now(), delay),
		Member: jobID,
	}).Err(); err != nil {
		return redisErrors.NewWithCause(ErrRetry, err).WithDetail("job_id", jobID)
	}

	return nil
}

// promoteScript moves due members of the scheduled set to the ready list.
// LPUSH puts them behind everything already waiting.
var promoteScript = redis.NewScript(`
local scheduled_key = KEYS[1]
local queue_key = KEYS[2]
local now = tonumber(ARGV[1])
local ids = redis.call('ZRANGEBYSCORE', scheduled_key, '-inf', now)
if #ids > 0 then
    for _, id in ipairs(ids) do
        redis.call('LPUSH', queue_key, id)
    end
    redis.call('ZREMRANGEBYSCORE', scheduled_key, '-inf', now)
end
return #ids
`)

// PromoteScheduled moves jobs whose scheduled time has passed to the ready queue.
func (q *RedisQueue) PromoteScheduled(ctx context.Context, queue string) error {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)

	err := promoteScript.Run(ctx, q.rdb,
		[]string{scheduledKey(queue), queueKey(queue)},
		now,
	).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return redisErrors.NewWithCause(ErrPromote, err).WithDetail("queue", queue)
	}
	return nil
}

func (q *RedisQueue) save(ctx context.Context, info *jobx.JobInfo, ttl time.Duration) error {
	data, err := json.Marshal(info)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job_id", info.ID)
	}
	if err := q.rdb.Set(ctx, jobKey(info.ID), data, ttl).Err(); err != nil {
		return redisErrors.NewWithCause(ErrUpdate, err).WithDetail("job_id", info.ID)
	}
	return nil
}
