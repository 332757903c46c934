package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("connection refused")

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	var failures []int

	err := Do(context.Background(), Policy{Delay: time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return errDown
		}
		return nil
	}, func(attempt int, err error) {
		assert.ErrorIs(t, err, errDown)
		failures = append(failures, attempt)
	})

	require.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, failures)
}

func TestDoBoundedPolicyGivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Delay: time.Millisecond, MaxAttempts: 3}, func(ctx context.Context) error {
		calls++
		return errDown
	}, nil)

	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, errDown)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, Policy{Delay: time.Hour}, func(ctx context.Context) error {
			calls++
			return errDown
		}, nil)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
	assert.Equal(t, 1, calls)
}

func TestDoWaitsDelayBetweenAttempts(t *testing.T) {
	delay := 20 * time.Millisecond
	calls := 0
	start := time.Now()

	err := Do(context.Background(), Policy{Delay: delay}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errDown
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 2*delay)
}

func TestDefaultIsUnbounded(t *testing.T) {
	p := Default()
	assert.True(t, p.Unbounded())
	assert.Equal(t, 5*time.Second, p.Delay)
}

func TestSleep(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
