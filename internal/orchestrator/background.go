package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TaskRunner выполняет фоновые задачи (генерация изображения, обновление памяти)
// с собственной границей ошибок: ошибка или паника задачи логируется и никогда
// не достигает вызывающего. Это явная форма контракта "fire-and-forget" -
// в отличие от молчаливых отсоединенных горутин ее поведение тестируемо.
type TaskRunner struct {
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewTaskRunner создает новый исполнитель фоновых задач.
// timeout ограничивает время жизни каждой задачи; 0 - без ограничения.
func NewTaskRunner(timeout time.Duration, logger *zap.Logger) *TaskRunner {
	return &TaskRunner{
		logger:  logger.Named("TaskRunner"),
		timeout: timeout,
	}
}

// Go запускает задачу в отдельной горутине. Задача получает собственный контекст,
// не привязанный к контексту вызывающего: у фоновой работы нет ожидающего
// вызывающего и нет контракта отмены кроме "best effort".
func (r *TaskRunner) Go(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		log := r.logger.With(zap.String("task", name))
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("Background task panicked", zap.Any("panic", rec))
			}
		}()

		ctx := context.Background()
		if r.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		if err := fn(ctx); err != nil {
			// Catch-log-drop: ошибки фоновых веток не влияют на уже доставленный ответ
			log.Error("Background task failed", zap.Error(err))
			return
		}
		log.Debug("Background task completed")
	}()
}

// Wait блокируется до завершения всех запущенных задач.
// Используется при остановке сервиса и в тестах.
func (r *TaskRunner) Wait() {
	r.wg.Wait()
}
