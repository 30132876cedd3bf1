package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// ImageTaskPayload - задача генерации изображения для воркера SDXL.
type ImageTaskPayload struct {
	TaskID         string `json:"task_id"`
	ImageJobID     string `json:"image_job_id"`
	ChatID         string `json:"chat_id"`
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negative_prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Steps          int    `json:"steps"`
}

// ImageTaskPublisher отправляет задачи генерации изображений в очередь.
type ImageTaskPublisher interface {
	PublishImageTask(ctx context.Context, payload ImageTaskPayload) error
}

// RabbitMQPublisher - реализация ImageTaskPublisher поверх RabbitMQ.
type RabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

var _ ImageTaskPublisher = (*RabbitMQPublisher)(nil)

// NewRabbitMQPublisher объявляет durable-очередь и возвращает паблишер.
func NewRabbitMQPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	_, err = channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	return &RabbitMQPublisher{
		channel:   channel,
		queueName: queueName,
		logger:    logger.Named("RabbitMQPublisher"),
	}, nil
}

// PublishImageTask публикует задачу с persistent delivery mode:
// задача не должна теряться при рестарте брокера.
func (p *RabbitMQPublisher) PublishImageTask(ctx context.Context, payload ImageTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal image task: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish image task: %w", err)
	}

	p.logger.Debug("Image task published",
		zap.String("taskID", payload.TaskID),
		zap.String("queue", p.queueName))
	return nil
}

// Close закрывает канал паблишера.
func (p *RabbitMQPublisher) Close() error {
	return p.channel.Close()
}
