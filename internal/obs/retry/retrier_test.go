package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpoJitterNext(t *testing.T) {
	b := ExpoJitter{Base: time.Minute, Max: 60 * time.Minute}

	assert.Equal(t, time.Minute, b.Next(0))
	assert.Equal(t, 2*time.Minute, b.Next(1))
	assert.Equal(t, 4*time.Minute, b.Next(2))
	assert.Equal(t, 32*time.Minute, b.Next(5))
	assert.Equal(t, 60*time.Minute, b.Next(6))
	assert.Equal(t, 60*time.Minute, b.Next(20))
	assert.Equal(t, time.Minute, b.Next(-3))
}

func TestExpoJitterBounds(t *testing.T) {
	b := ExpoJitter{Base: time.Second, Max: time.Minute, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		d := b.Next(3)
		assert.GreaterOrEqual(t, d, time.Duration(float64(8*time.Second)*0.8))
		assert.LessOrEqual(t, d, time.Duration(float64(8*time.Second)*1.2))
	}
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, Policy{Name: "t", Attempts: 5, Backoff: ExpoJitter{Base: time.Millisecond}})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := errors.New("still down")
	calls := 0
	var exhausted error
	err := Do(context.Background(), func() error {
		calls++
		return boom
	}, Policy{
		Name:      "t",
		Attempts:  3,
		Backoff:   ExpoJitter{Base: time.Millisecond},
		OnExhaust: func(lastErr error) { exhausted = lastErr },
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, exhausted, boom)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("bad request")
	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return fatal
	}, Policy{
		Name:      "t",
		Attempts:  5,
		Backoff:   ExpoJitter{Base: time.Millisecond},
		Retryable: func(err error) bool { return !errors.Is(err, fatal) },
	})

	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, func() error {
		calls++
		return errors.New("transient")
	}, Policy{Name: "t", Attempts: 10, Backoff: ExpoJitter{Base: time.Second}})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
