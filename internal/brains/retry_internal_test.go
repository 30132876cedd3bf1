package brains

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyRun(t *testing.T) {
	ctx := context.Background()

	t.Run("Stops on first success", func(t *testing.T) {
		calls := 0
		err := (retryPolicy{attempts: 3, delay: noDelay}).run(ctx, func(attempt int) error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("Returns last error after exhausting attempts", func(t *testing.T) {
		firstErr := errors.New("first")
		lastErr := errors.New("last")
		calls := 0
		err := (retryPolicy{attempts: 2, delay: noDelay}).run(ctx, func(attempt int) error {
			calls++
			if attempt == 1 {
				return firstErr
			}
			return lastErr
		})
		assert.Equal(t, lastErr, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("Passes 1-based attempt numbers", func(t *testing.T) {
		var seen []int
		_ = (retryPolicy{attempts: 3, delay: noDelay}).run(ctx, func(attempt int) error {
			seen = append(seen, attempt)
			return errors.New("again")
		})
		assert.Equal(t, []int{1, 2, 3}, seen)
	})

	t.Run("Canceled context interrupts the delay", func(t *testing.T) {
		cancelCtx, cancel := context.WithCancel(ctx)
		cancel()

		err := (retryPolicy{attempts: 3, delay: exponentialDelay(time.Hour)}).run(cancelCtx, func(attempt int) error {
			return errors.New("force a delay before the next attempt")
		})
		assert.Equal(t, context.Canceled, err)
	})
}

func TestExponentialDelay(t *testing.T) {
	delay := exponentialDelay(2 * time.Second)

	assert.Equal(t, time.Duration(0), delay(1))
	assert.Equal(t, 2*time.Second, delay(2))
	assert.Equal(t, 4*time.Second, delay(3))
	assert.Equal(t, 8*time.Second, delay(4))
}
