package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"companion-server/internal/interfaces"
	"companion-server/internal/models"
)

// ImageResultPayload - результат генерации изображения от воркера SDXL.
type ImageResultPayload struct {
	TaskID     string `json:"task_id"`
	ImageJobID string `json:"image_job_id"`
	ChatID     string `json:"chat_id"`
	Status     string `json:"status"` // "completed" или "failed"
	ImageURL   string `json:"image_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ImageResultProcessor обрабатывает результаты генерации изображений.
// Вынесен в отдельную структуру для тестируемости.
type ImageResultProcessor struct {
	db        interfaces.DBTX
	imageJobs interfaces.ImageJobRepository
	chats     interfaces.ChatRepository
	sender    interfaces.MessageSender
	logger    *zap.Logger
}

// NewImageResultProcessor создает новый процессор результатов.
func NewImageResultProcessor(
	db interfaces.DBTX,
	imageJobs interfaces.ImageJobRepository,
	chats interfaces.ChatRepository,
	sender interfaces.MessageSender,
	logger *zap.Logger,
) *ImageResultProcessor {
	return &ImageResultProcessor{
		db:        db,
		imageJobs: imageJobs,
		chats:     chats,
		sender:    sender,
		logger:    logger.Named("ImageResultProcessor"),
	}
}

// Process разбирает результат воркера и доставляет готовое изображение пользователю.
// Ошибка из Process означает, что сообщение не удалось обработать корректно,
// стратегия повторов остается на стороне консьюмера.
func (p *ImageResultProcessor) Process(ctx context.Context, body []byte) error {
	var payload ImageResultPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		p.logger.Error("Не удалось разобрать результат генерации изображения", zap.Error(err))
		return fmt.Errorf("failed to unmarshal image result: %w", err)
	}

	jobID, err := uuid.Parse(payload.ImageJobID)
	if err != nil {
		p.logger.Error("Невалидный image_job_id в результате",
			zap.String("imageJobID", payload.ImageJobID), zap.Error(err))
		return fmt.Errorf("invalid image_job_id %q: %w", payload.ImageJobID, err)
	}
	chatID, err := uuid.Parse(payload.ChatID)
	if err != nil {
		p.logger.Error("Невалидный chat_id в результате",
			zap.String("chatID", payload.ChatID), zap.Error(err))
		return fmt.Errorf("invalid chat_id %q: %w", payload.ChatID, err)
	}

	log := p.logger.With(
		zap.String("imageJobID", jobID.String()),
		zap.String("chatID", chatID.String()),
		zap.String("status", payload.Status),
	)

	// Таймаут на работу с БД в рамках одного сообщения
	dbCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	switch payload.Status {
	case string(models.ImageJobStatusCompleted):
		if payload.ImageURL == "" {
			log.Error("Результат completed без image_url")
			return fmt.Errorf("completed image result %s has no image_url", jobID)
		}
		if err := p.imageJobs.UpdateResult(dbCtx, p.db, jobID, models.ImageJobStatusCompleted, &payload.ImageURL); err != nil {
			log.Error("Не удалось сохранить результат генерации", zap.Error(err))
			return fmt.Errorf("failed to store image result for job %s: %w", jobID, err)
		}

		chat, err := p.chats.GetByID(dbCtx, p.db, chatID)
		if err != nil {
			log.Error("Не удалось загрузить чат для доставки изображения", zap.Error(err))
			return fmt.Errorf("failed to load chat %s for image delivery: %w", chatID, err)
		}
		if err := p.sender.SendPhoto(ctx, chat.UserID, payload.ImageURL, ""); err != nil {
			// Результат уже сохранен, потеряна только доставка этого фото
			log.Error("Не удалось отправить изображение пользователю", zap.Error(err))
			return fmt.Errorf("failed to deliver image for job %s: %w", jobID, err)
		}
		log.Info("Изображение доставлено пользователю")
		return nil

	case string(models.ImageJobStatusFailed):
		if err := p.imageJobs.UpdateResult(dbCtx, p.db, jobID, models.ImageJobStatusFailed, nil); err != nil {
			log.Error("Не удалось пометить задачу генерации как failed", zap.Error(err))
			return fmt.Errorf("failed to mark image job %s as failed: %w", jobID, err)
		}
		log.Warn("Генерация изображения завершилась ошибкой на воркере",
			zap.String("workerError", payload.Error))
		return nil

	default:
		log.Error("Неизвестный статус результата генерации")
		return fmt.Errorf("unknown image result status %q for job %s", payload.Status, jobID)
	}
}

// ImageResultConsumer слушает очередь результатов генерации изображений.
type ImageResultConsumer struct {
	conn        *amqp.Connection
	processor   *ImageResultProcessor
	queueName   string
	stopChannel chan struct{}
	logger      *zap.Logger
}

// NewImageResultConsumer создает нового консьюмера результатов.
func NewImageResultConsumer(
	conn *amqp.Connection,
	processor *ImageResultProcessor,
	queueName string,
	logger *zap.Logger,
) *ImageResultConsumer {
	return &ImageResultConsumer{
		conn:        conn,
		processor:   processor,
		queueName:   queueName,
		stopChannel: make(chan struct{}),
		logger:      logger.Named("ImageResultConsumer"),
	}
}

// StartConsuming начинает прослушивание очереди результатов.
// Блокируется до Stop() или закрытия канала RabbitMQ.
func (c *ImageResultConsumer) StartConsuming() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("consumer: failed to open a channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("consumer: failed to declare queue %s: %w", c.queueName, err)
	}

	// Обрабатываем по одному сообщению
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("consumer: failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"companion-image-results", // consumer tag
		false,                     // auto-ack = false
		false,                     // exclusive
		false,                     // no-local
		false,                     // no-wait
		nil,                       // args
	)
	if err != nil {
		return fmt.Errorf("consumer: failed to register consumer: %w", err)
	}
	c.logger.Info("Консьюмер запущен, ожидание результатов генерации",
		zap.String("queue", q.Name))

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				c.logger.Warn("Канал сообщений RabbitMQ закрыт")
				return nil
			}

			if err := c.processor.Process(context.Background(), d.Body); err != nil {
				c.logger.Error("Ошибка обработки результата генерации",
					zap.Uint64("deliveryTag", d.DeliveryTag), zap.Error(err))
				// Повторная доставка не поможет: payload либо битый,
				// либо обработка уже залогирована как критическая
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)

		case <-c.stopChannel:
			c.logger.Info("Получен сигнал остановки консьюмера")
			return nil
		}
	}
}

// Stop останавливает консьюмер.
func (c *ImageResultConsumer) Stop() {
	close(c.stopChannel)
}
