package interfaces

import (
	"context"

	"github.com/google/uuid"

	"companion-server/internal/models"
)

// ChatRepository определяет операции над чатами, нужные ядру пайплайна.
type ChatRepository interface {
	// GetByID возвращает чат по id или models.ErrNotFound.
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Chat, error)

	// GetByUserAndPersona возвращает активный чат пользователя с персонажем.
	GetByUserAndPersona(ctx context.Context, querier DBTX, userID int64, personaID uuid.UUID) (*models.Chat, error)

	// Create создает новый чат.
	Create(ctx context.Context, querier DBTX, chat *models.Chat) error

	// TryAcquireProcessing атомарно (одним UPDATE с условием) захватывает
	// флаг обработки чата. Возвращает false, если флаг уже установлен.
	// Это единственный допустимый способ взятия блокировки: никакого
	// read-modify-write на стороне приложения.
	TryAcquireProcessing(ctx context.Context, querier DBTX, id uuid.UUID) (bool, error)

	// ReleaseProcessing снимает флаг обработки.
	ReleaseProcessing(ctx context.Context, querier DBTX, id uuid.UUID) error

	// UpdateAfterExchange обновляет снимок состояния, счетчики сообщений
	// и updated_at чата после завершенного обмена. userMessages - размер
	// обработанного батча пользовательских сообщений.
	UpdateAfterExchange(ctx context.Context, querier DBTX, id uuid.UUID, stateSnapshot string, userMessages int) error

	// UpdateMemory перезаписывает долговременную память чата.
	// Принадлежит сервису памяти, остальные компоненты память не трогают.
	UpdateMemory(ctx context.Context, querier DBTX, id uuid.UUID, memory string) error
}

// MessageRepository определяет операции над сообщениями чата.
type MessageRepository interface {
	// ListRecent возвращает последние limit сообщений чата в хронологическом порядке.
	ListRecent(ctx context.Context, querier DBTX, chatID uuid.UUID, limit int) ([]models.Message, error)

	// ListUnprocessed возвращает необработанные пользовательские сообщения чата
	// в хронологическом порядке. Это входной батч для пайплайна.
	ListUnprocessed(ctx context.Context, querier DBTX, chatID uuid.UUID) ([]models.Message, error)

	// Create сохраняет новое сообщение.
	Create(ctx context.Context, querier DBTX, msg *models.Message) error

	// MarkProcessed помечает сообщения как обработанные.
	MarkProcessed(ctx context.Context, querier DBTX, ids []uuid.UUID) error
}

// PersonaRepository определяет операции чтения персонажей.
type PersonaRepository interface {
	// GetByID возвращает персонажа по id или models.ErrNotFound.
	GetByID(ctx context.Context, querier DBTX, id uuid.UUID) (*models.Persona, error)

	// ListActive возвращает всех активных персонажей (для прогрева кэша).
	ListActive(ctx context.Context, querier DBTX) ([]*models.Persona, error)
}

// ImageJobRepository определяет операции над задачами генерации изображений.
type ImageJobRepository interface {
	// Create создает запись задачи генерации.
	Create(ctx context.Context, querier DBTX, job *models.ImageJob) error

	// UpdateResult обновляет статус и результат задачи (вызывается обработчиком
	// результатов генерации, вне критического пути пайплайна).
	UpdateResult(ctx context.Context, querier DBTX, id uuid.UUID, status models.ImageJobStatus, resultURL *string) error
}
