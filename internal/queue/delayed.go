package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	delayedSetKey = "dispatch:delayed"
	jobKeyPrefix  = "dispatch:job:"

	defaultMaxAttempts       = 5
	defaultBackoffBase       = time.Second
	defaultVisibilityTimeout = 5 * time.Minute
	defaultFailedJobTTL      = 24 * time.Hour
)

// KEYS: delayed set, job hash. ARGV: job id, run at ms, notification id,
// name, max attempts, now ms, visibility ms.
// A job waiting on a retry backoff keeps its attempts and the later run time.
var enqueueScript = redis.NewScript(`
local state = redis.call("HGET", KEYS[2], "state")
if state == "active" then
  local claimed = tonumber(redis.call("HGET", KEYS[2], "claimedAt") or "0")
  if tonumber(ARGV[6]) - claimed < tonumber(ARGV[7]) then
    return 0
  end
end
local attempts = tonumber(redis.call("HGET", KEYS[2], "attempts") or "0")
if state == "delayed" and attempts > 0 then
  local runAt = tonumber(ARGV[2])
  local stored = redis.call("ZSCORE", KEYS[1], ARGV[1])
  if stored and tonumber(stored) > runAt then
    runAt = tonumber(stored)
  end
  redis.call("HSET", KEYS[2], "notificationId", ARGV[3], "name", ARGV[4])
  redis.call("ZADD", KEYS[1], runAt, ARGV[1])
  return 1
end
redis.call("PERSIST", KEYS[2])
redis.call("HSET", KEYS[2],
  "notificationId", ARGV[3],
  "name", ARGV[4],
  "attempts", 0,
  "maxAttempts", ARGV[5],
  "state", "delayed",
  "claimedAt", 0)
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
return 1
`)

// KEYS: delayed set. ARGV: now ms, limit, job key prefix.
var claimScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "WITHSCORES", "LIMIT", 0, tonumber(ARGV[2]))
local claimed = {}
for i = 1, #ids, 2 do
  local id = ids[i]
  local key = ARGV[3] .. id
  redis.call("ZREM", KEYS[1], id)
  if redis.call("EXISTS", key) == 1 then
    redis.call("HSET", key, "state", "active", "claimedAt", ARGV[1])
    local f = redis.call("HMGET", key, "notificationId", "name", "attempts", "maxAttempts")
    table.insert(claimed, {id, ids[i + 1], f[1], f[2], f[3], f[4]})
  end
end
return claimed
`)

// KEYS: delayed set, job hash. ARGV: job id.
var completeScript = redis.NewScript(`
if redis.call("HGET", KEYS[2], "state") ~= "active" then
  return 0
end
redis.call("DEL", KEYS[2])
redis.call("ZREM", KEYS[1], ARGV[1])
return 1
`)

// KEYS: delayed set, job hash. ARGV: job id, now ms, backoff base ms,
// failed job ttl ms.
var retryScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 0 then
  return {-1, 0}
end
local attempts = redis.call("HINCRBY", KEYS[2], "attempts", 1)
local maxAttempts = tonumber(redis.call("HGET", KEYS[2], "maxAttempts"))
if attempts >= maxAttempts then
  redis.call("HSET", KEYS[2], "state", "failed", "claimedAt", 0)
  redis.call("ZREM", KEYS[1], ARGV[1])
  redis.call("PEXPIRE", KEYS[2], ARGV[4])
  return {attempts, -1}
end
local runAt = tonumber(ARGV[2]) + tonumber(ARGV[3]) * math.pow(2, attempts - 1)
redis.call("HSET", KEYS[2], "state", "delayed", "claimedAt", 0)
redis.call("ZADD", KEYS[1], runAt, ARGV[1])
return {attempts, runAt}
`)

// KEYS: delayed set, job hash. ARGV: job id, run at ms.
var releaseScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 0 then
  return 0
end
redis.call("HSET", KEYS[2], "state", "delayed", "claimedAt", 0)
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
return 1
`)

var _ DelayedQueue = (*RedisDelayedQueue)(nil)

// RedisDelayedQueue keeps job run times in a sorted set and job state in one
// hash per job. Every state change is a single Lua script.
type RedisDelayedQueue struct {
	client            *redis.Client
	maxAttempts       int
	backoffBase       time.Duration
	visibilityTimeout time.Duration
	failedJobTTL      time.Duration
	now               func() time.Time
}

type DelayedQueueOptions struct {
	MaxAttempts int
	BackoffBase time.Duration
	// VisibilityTimeout is how long a claimed job is protected from being
	// replaced by Enqueue.
	VisibilityTimeout time.Duration
	// FailedJobTTL is how long an exhausted job is kept before Redis drops it.
	FailedJobTTL time.Duration
}

func NewRedisDelayedQueue(client *redis.Client, opts DelayedQueueOptions) (*RedisDelayedQueue, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaultBackoffBase
	}
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = defaultVisibilityTimeout
	}
	if opts.FailedJobTTL <= 0 {
		opts.FailedJobTTL = defaultFailedJobTTL
	}

	return &RedisDelayedQueue{
		client:            client,
		maxAttempts:       opts.MaxAttempts,
		backoffBase:       opts.BackoffBase,
		visibilityTimeout: opts.VisibilityTimeout,
		failedJobTTL:      opts.FailedJobTTL,
		now:               time.Now,
	}, nil
}

func (q *RedisDelayedQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	if strings.TrimSpace(job.ID) == "" {
		return false, fmt.Errorf("job id is required")
	}
	if job.NotificationID <= 0 {
		return false, fmt.Errorf("job notification id must be positive")
	}
	if job.Name == "" {
		job.Name = JobNameSendNotification
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = q.maxAttempts
	}

	added, err := enqueueScript.Run(ctx, q.client,
		[]string{delayedSetKey, jobKey(job.ID)},
		job.ID,
		job.RunAt.UnixMilli(),
		job.NotificationID,
		job.Name,
		maxAttempts,
		q.now().UnixMilli(),
		q.visibilityTimeout.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to enqueue job %q: %w", job.ID, err)
	}

	return added == 1, nil
}

func (q *RedisDelayedQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit < 1 {
		limit = 1
	}

	rows, err := claimScript.Run(ctx, q.client,
		[]string{delayedSetKey},
		now.UnixMilli(),
		limit,
		jobKeyPrefix,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to claim due jobs: %w", err)
	}

	jobs := make([]Job, 0, len(rows))
	for _, row := range rows {
		job, err := parseClaimedJob(row)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func (q *RedisDelayedQueue) Complete(ctx context.Context, jobID string) error {
	err := completeScript.Run(ctx, q.client,
		[]string{delayedSetKey, jobKey(jobID)},
		jobID,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to complete job %q: %w", jobID, err)
	}
	return nil
}

func (q *RedisDelayedQueue) Retry(ctx context.Context, jobID string, now time.Time) (RetryResult, error) {
	values, err := retryScript.Run(ctx, q.client,
		[]string{delayedSetKey, jobKey(jobID)},
		jobID,
		now.UnixMilli(),
		q.backoffBase.Milliseconds(),
		q.failedJobTTL.Milliseconds(),
	).Slice()
	if err != nil {
		return RetryResult{}, fmt.Errorf("failed to retry job %q: %w", jobID, err)
	}
	if len(values) != 2 {
		return RetryResult{}, fmt.Errorf("unexpected retry reply for job %q: %v", jobID, values)
	}

	attempts, _ := values[0].(int64)
	runAt, _ := values[1].(int64)
	if attempts < 0 {
		return RetryResult{Exhausted: true}, nil
	}
	if runAt < 0 {
		return RetryResult{Attempts: int(attempts), Exhausted: true}, nil
	}

	return RetryResult{
		Attempts:  int(attempts),
		NextRunAt: time.UnixMilli(runAt).UTC(),
	}, nil
}

func (q *RedisDelayedQueue) Release(ctx context.Context, jobID string, runAt time.Time) error {
	err := releaseScript.Run(ctx, q.client,
		[]string{delayedSetKey, jobKey(jobID)},
		jobID,
		runAt.UnixMilli(),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to release job %q: %w", jobID, err)
	}
	return nil
}

func (q *RedisDelayedQueue) Remove(ctx context.Context, jobID string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, delayedSetKey, jobID)
		pipe.Del(ctx, jobKey(jobID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove job %q: %w", jobID, err)
	}
	return nil
}

// Get returns the stored job with its state, or ok=false when absent.
func (q *RedisDelayedQueue) Get(ctx context.Context, jobID string) (Job, bool, error) {
	fields, err := q.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return Job{}, false, fmt.Errorf("failed to load job %q: %w", jobID, err)
	}
	if len(fields) == 0 {
		return Job{}, false, nil
	}

	job := Job{
		ID:    jobID,
		Name:  fields["name"],
		State: JobState(fields["state"]),
	}
	job.NotificationID, _ = strconv.ParseInt(fields["notificationId"], 10, 64)
	job.Attempts, _ = strconv.Atoi(fields["attempts"])
	job.MaxAttempts, _ = strconv.Atoi(fields["maxAttempts"])

	score, err := q.client.ZScore(ctx, delayedSetKey, jobID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Job{}, false, fmt.Errorf("failed to load job %q run time: %w", jobID, err)
	}
	if err == nil {
		job.RunAt = time.UnixMilli(int64(score)).UTC()
	}

	return job, true, nil
}

func jobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

func parseClaimedJob(row any) (Job, error) {
	fields, ok := row.([]any)
	if !ok || len(fields) != 6 {
		return Job{}, fmt.Errorf("unexpected claimed job reply: %v", row)
	}

	values := make([]string, len(fields))
	for i, f := range fields {
		switch v := f.(type) {
		case string:
			values[i] = v
		case int64:
			values[i] = strconv.FormatInt(v, 10)
		case nil:
		default:
			return Job{}, fmt.Errorf("unexpected claimed job field %T", f)
		}
	}

	runAtMs, err := strconv.ParseFloat(values[1], 64)
	if err != nil {
		return Job{}, fmt.Errorf("invalid run time for job %q: %w", values[0], err)
	}
	notificationID, err := strconv.ParseInt(values[2], 10, 64)
	if err != nil {
		return Job{}, fmt.Errorf("invalid notification id for job %q: %w", values[0], err)
	}
	attempts, _ := strconv.Atoi(values[4])
	maxAttempts, _ := strconv.Atoi(values[5])

	return Job{
		ID:             values[0],
		Name:           values[3],
		NotificationID: notificationID,
		RunAt:          time.UnixMilli(int64(runAtMs)).UTC(),
		Attempts:       attempts,
		MaxAttempts:    maxAttempts,
		State:          JobStateActive,
	}, nil
}
