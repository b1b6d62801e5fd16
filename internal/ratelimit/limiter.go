package ratelimit

import "context"

// BucketEmail is the bucket shared by every outbound email call.
const BucketEmail = "email"

// Limiter throttles calls sharing a bucket across all processes.
type Limiter interface {
	Allow(ctx context.Context, bucket string) (bool, error)
	Wait(ctx context.Context, bucket string) error
}

// Unlimited never throttles. It is used when no limit is configured.
type Unlimited struct{}

var _ Limiter = Unlimited{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

func (Unlimited) Wait(ctx context.Context, _ string) error {
	return ctx.Err()
}
