package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleep struct {
	waits []time.Duration
}

func (r *recordingSleep) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestDo_RateLimitedOnceThenSucceeds(t *testing.T) {
	rec := &recordingSleep{}
	p := RateLimitPolicy(2*time.Second, 10*time.Second)
	p.Sleep = rec.sleep

	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		if calls == 1 {
			return &RateLimitError{}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.waits)
}

func TestDo_RateLimitHonorsServerHintWithCap(t *testing.T) {
	tests := []struct {
		name     string
		hint     time.Duration
		expected time.Duration
	}{
		{name: "no hint uses default", hint: 0, expected: 2 * time.Second},
		{name: "hint below cap", hint: 3 * time.Second, expected: 3 * time.Second},
		{name: "hint above cap", hint: 30 * time.Second, expected: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingSleep{}
			p := RateLimitPolicy(2*time.Second, 10*time.Second)
			p.Sleep = rec.sleep

			calls := 0
			err := Do(context.Background(), p, func(context.Context) error {
				calls++
				return &RateLimitError{RetryAfter: tt.hint}
			})

			assert.True(t, IsRateLimited(err))
			assert.Equal(t, 2, calls, "exactly one retry")
			assert.Equal(t, []time.Duration{tt.expected}, rec.waits)
		})
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	rec := &recordingSleep{}
	p := RateLimitPolicy(time.Second, time.Second)
	p.Sleep = rec.sleep

	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), p, func(context.Context) error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := RateLimitPolicy(time.Hour, time.Hour)
	err := Do(ctx, p, func(context.Context) error {
		return &RateLimitError{}
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestExponential(t *testing.T) {
	backoff := Exponential(100*time.Millisecond, time.Second)

	assert.Equal(t, 100*time.Millisecond, backoff(1, nil))
	assert.Equal(t, 200*time.Millisecond, backoff(2, nil))
	assert.Equal(t, 400*time.Millisecond, backoff(3, nil))
	assert.Equal(t, time.Second, backoff(5, nil))
}

func TestDo_OnRetryCalled(t *testing.T) {
	p := Policy{
		MaxAttempts: 3,
		Retryable:   func(error) bool { return true },
		Backoff:     Exponential(time.Millisecond, time.Millisecond),
		Sleep:       (&recordingSleep{}).sleep,
	}
	var retried []int
	p.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	_ = Do(context.Background(), p, func(context.Context) error { return errors.New("x") })
	assert.Equal(t, []int{1, 2}, retried)
}
