package orchestrator_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"companion-server/internal/orchestrator"
)

func TestTaskRunner(t *testing.T) {
	t.Run("Wait joins all spawned tasks", func(t *testing.T) {
		runner := orchestrator.NewTaskRunner(0, zap.NewNop())

		var done atomic.Int32
		for i := 0; i < 5; i++ {
			runner.Go("counter", func(ctx context.Context) error {
				done.Add(1)
				return nil
			})
		}
		runner.Wait()

		assert.Equal(t, int32(5), done.Load())
	})

	t.Run("Task error does not reach the caller", func(t *testing.T) {
		runner := orchestrator.NewTaskRunner(0, zap.NewNop())

		runner.Go("failing", func(ctx context.Context) error {
			return errors.New("background failure")
		})

		assert.NotPanics(t, runner.Wait)
	})

	t.Run("Panic in one task does not affect another", func(t *testing.T) {
		runner := orchestrator.NewTaskRunner(0, zap.NewNop())

		var survived atomic.Bool
		runner.Go("panicking", func(ctx context.Context) error {
			panic("boom")
		})
		runner.Go("surviving", func(ctx context.Context) error {
			survived.Store(true)
			return nil
		})

		assert.NotPanics(t, runner.Wait)
		assert.True(t, survived.Load())
	})

	t.Run("Task context honors the configured timeout", func(t *testing.T) {
		runner := orchestrator.NewTaskRunner(10*time.Millisecond, zap.NewNop())

		expired := make(chan bool, 1)
		runner.Go("waiting", func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				expired <- true
			case <-time.After(5 * time.Second):
				expired <- false
			}
			return nil
		})
		runner.Wait()

		assert.True(t, <-expired)
	})
}
