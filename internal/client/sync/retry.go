package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/openmined/vaultsync/internal/client/remote"
	"github.com/sethvargo/go-retry"
)

const (
	DefaultMaxAttempts  = 4
	DefaultInitialDelay = time.Second
)

// RetryExecutor runs remote operations with bounded exponential backoff.
// Only errors classified as transient are retried; anything else, and the
// last error after the final attempt, is returned unchanged.
type RetryExecutor struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Retryable    func(error) bool
	Logger       *slog.Logger
}

func NewRetryExecutor() *RetryExecutor {
	return &RetryExecutor{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		Retryable:    remote.IsRetryable,
		Logger:       slog.Default(),
	}
}

func (r *RetryExecutor) backoff() retry.Backoff {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := r.InitialDelay
	if delay <= 0 {
		delay = time.Millisecond
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(delay))
}

// RetryValue is Do for operations that return a value.
func RetryValue[T any](ctx context.Context, r *RetryExecutor, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	return retry.DoValue(ctx, r.backoff(), func(ctx context.Context) (T, error) {
		attempt++
		v, err := fn(ctx)
		if err != nil && r.Retryable != nil && r.Retryable(err) {
			if attempt < r.MaxAttempts {
				r.logger().Warn("retrying", "op", op, "attempt", attempt, "error", err)
			}
			return v, retry.RetryableError(err)
		}
		return v, err
	})
}

func (r *RetryExecutor) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := RetryValue(ctx, r, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func (r *RetryExecutor) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
