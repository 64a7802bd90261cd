package sync

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/openmined/vaultsync/internal/client/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() *RetryExecutor {
	r := NewRetryExecutor()
	r.InitialDelay = time.Millisecond
	return r
}

func TestRetryExecutor_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	v, err := RetryValue(context.Background(), fastRetry(), "manifest", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &remote.StatusError{Op: "manifest", StatusCode: http.StatusServiceUnavailable}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetryExecutor_ExhaustsAndReturnsLastError(t *testing.T) {
	calls := 0
	err := fastRetry().Do(context.Background(), "write", func(ctx context.Context) error {
		calls++
		return &remote.StatusError{Op: "write", StatusCode: http.StatusTooManyRequests, Message: "slow down"}
	})

	var statusErr *remote.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, DefaultMaxAttempts, calls)
}

func TestRetryExecutor_DoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	permanent := &remote.StatusError{Op: "write", StatusCode: http.StatusBadRequest}
	err := fastRetry().Do(context.Background(), "write", func(ctx context.Context) error {
		calls++
		return permanent
	})
	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)

	calls = 0
	err = fastRetry().Do(context.Background(), "write", func(ctx context.Context) error {
		calls++
		return &remote.ConflictError{Path: "a.md"}
	})
	assert.ErrorIs(t, err, remote.ErrConflict)
	assert.Equal(t, 1, calls)
}

func TestRetryExecutor_DelaysGrowExponentially(t *testing.T) {
	r := NewRetryExecutor()
	r.InitialDelay = 10 * time.Millisecond
	b := r.backoff()

	var delays []time.Duration
	for {
		d, stop := b.Next()
		if stop {
			break
		}
		delays = append(delays, d)
	}
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, delays)
}

func TestRetryExecutor_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetryExecutor()
	r.InitialDelay = time.Hour

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, "manifest", func(ctx context.Context) error {
			calls++
			return errors.Join(remote.ErrNotFound, &remote.StatusError{StatusCode: http.StatusBadGateway})
		})
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not stop on cancel")
	}
	assert.Equal(t, 1, calls)
}
