package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/birthday-reminder/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "birthday-reminder:ratelimit"
	retryStep    = 20 * time.Millisecond
	retryMax     = 200 * time.Millisecond
	windowLength = time.Second
)

// allowScript counts calls in a fixed window and expires the counter with it.
var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.Limiter = (*WindowLimiter)(nil)

// WindowLimiter allows at most limit calls per bucket in each one second
// window, counted in Redis so every worker process shares the budget.
type WindowLimiter struct {
	client *goredis.Client
	limit  int64
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewLimiter returns a Redis-backed limiter, or ratelimit.Unlimited when
// limitPerSec is not positive.
func NewLimiter(client *goredis.Client, limitPerSec int) (ratelimit.Limiter, error) {
	if limitPerSec <= 0 {
		return ratelimit.Unlimited{}, nil
	}
	limiter, err := newWindowLimiter(client, int64(limitPerSec), time.Now, sleepWithContext)
	if err != nil {
		return nil, err
	}
	return limiter, nil
}

func newWindowLimiter(
	client *goredis.Client,
	limit int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*WindowLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &WindowLimiter{
		client: client,
		limit:  limit,
		now:    nowFn,
		sleep:  sleepFn,
	}, nil
}

func (l *WindowLimiter) Allow(ctx context.Context, bucket string) (bool, error) {
	bucket = strings.ToLower(strings.TrimSpace(bucket))
	if bucket == "" {
		return false, fmt.Errorf("rate limit bucket is required")
	}

	window := l.now().UTC().UnixMilli() / windowLength.Milliseconds()
	key := fmt.Sprintf("%s:%s:%d", keyPrefix, bucket, window)

	allowed, err := allowScript.Run(ctx, l.client, []string{key}, l.limit, windowLength.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate rate limit: %w", err)
	}

	return allowed == 1, nil
}

// Wait blocks until bucket has budget or ctx is done.
func (l *WindowLimiter) Wait(ctx context.Context, bucket string) error {
	delay := retryStep
	for {
		allowed, err := l.Allow(ctx, bucket)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := l.sleep(ctx, delay); err != nil {
			return err
		}

		delay = min(delay*2, retryMax)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
