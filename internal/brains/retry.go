package brains

import (
	"context"
	"time"
)

// retryPolicy - общая параметризованная стратегия повторов для semantic-уровня brains.
// Транспортные retry живут в ai.Client; здесь повторяются только смысловые сбои
// (невалидный формат, пустой ответ, неразбираемый JSON). Каждый brain задает свое
// число попыток и свою функцию задержки; побочные эффекты на попытку (например,
// повышение температуры) вычисляются внутри op от номера попытки.
type retryPolicy struct {
	attempts int
	delay    func(attempt int) time.Duration // задержка ПЕРЕД попыткой attempt (attempt >= 2)
}

// run выполняет op до первого успеха, но не более attempts раз.
// Возвращает последнюю ошибку, если все попытки исчерпаны, и ошибку контекста,
// если ожидание задержки было прервано отменой.
func (p retryPolicy) run(ctx context.Context, op func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if attempt > 1 && p.delay != nil {
			if d := p.delay(attempt); d > 0 {
				if !sleepCtx(ctx, d) {
					return ctx.Err()
				}
			}
		}
		if err := op(attempt); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// noDelay - повтор без пауз.
func noDelay(int) time.Duration { return 0 }

// exponentialDelay возвращает функцию задержки base * 2^(attempt-2):
// перед второй попыткой base, перед третьей 2*base и т.д.
func exponentialDelay(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		if attempt < 2 {
			return 0
		}
		return base * time.Duration(1<<(attempt-2))
	}
}

// sleepCtx ждет d или отмены контекста. Возвращает false, если контекст отменен.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
