package repository

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-server/internal/interfaces"
	"companion-server/internal/models"
)

const (
	messageFields = `id, chat_id, role, text, state_snapshot, is_processed, created_at`

	// Выбираем последние limit сообщений и разворачиваем их обратно в хронологический порядок.
	listRecentMessagesQuery = `
        SELECT ` + messageFields + ` FROM (
            SELECT ` + messageFields + `
            FROM messages
            WHERE chat_id = $1
            ORDER BY created_at DESC
            LIMIT $2
        ) AS recent
        ORDER BY created_at ASC
    `

	listUnprocessedMessagesQuery = `
        SELECT ` + messageFields + `
        FROM messages
        WHERE chat_id = $1 AND role = 'user' AND is_processed = FALSE
        ORDER BY created_at ASC
    `

	insertMessageQuery = `
        INSERT INTO messages (id, chat_id, role, text, state_snapshot, is_processed, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW())
    `

	markMessagesProcessedQuery = `
        UPDATE messages
        SET is_processed = TRUE
        WHERE id = ANY($1::uuid[])
    `
)

// Compile-time check to ensure pgMessageRepository implements the interface
var _ interfaces.MessageRepository = (*pgMessageRepository)(nil)

// pgMessageRepository is the PostgreSQL implementation of MessageRepository
type pgMessageRepository struct {
	logger *zap.Logger
}

// NewPgMessageRepository создает новый экземпляр репозитория сообщений.
func NewPgMessageRepository(logger *zap.Logger) interfaces.MessageRepository {
	return &pgMessageRepository{logger: logger.Named("MessageRepo")}
}

// ListRecent возвращает последние limit сообщений чата в хронологическом порядке.
func (r *pgMessageRepository) ListRecent(ctx context.Context, querier interfaces.DBTX, chatID uuid.UUID, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var messages []models.Message
	err := pgxscan.Select(ctx, querier, &messages, listRecentMessagesQuery, chatID, limit)
	if err != nil {
		r.logger.Error("Error listing recent messages", zap.String("chatID", chatID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list recent messages for chat %s: %w", chatID, err)
	}
	return messages, nil
}

// ListUnprocessed возвращает необработанные пользовательские сообщения чата.
func (r *pgMessageRepository) ListUnprocessed(ctx context.Context, querier interfaces.DBTX, chatID uuid.UUID) ([]models.Message, error) {
	var messages []models.Message
	err := pgxscan.Select(ctx, querier, &messages, listUnprocessedMessagesQuery, chatID)
	if err != nil {
		r.logger.Error("Error listing unprocessed messages", zap.String("chatID", chatID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to list unprocessed messages for chat %s: %w", chatID, err)
	}
	return messages, nil
}

// Create сохраняет новое сообщение.
func (r *pgMessageRepository) Create(ctx context.Context, querier interfaces.DBTX, msg *models.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	_, err := querier.Exec(ctx, insertMessageQuery,
		msg.ID, msg.ChatID, msg.Role, msg.Text, msg.StateSnapshot, msg.IsProcessed)
	if err != nil {
		r.logger.Error("Error creating message",
			zap.String("chatID", msg.ChatID.String()), zap.String("role", string(msg.Role)), zap.Error(err))
		return fmt.Errorf("failed to create message in chat %s: %w", msg.ChatID, err)
	}
	return nil
}

// MarkProcessed помечает сообщения как обработанные.
func (r *pgMessageRepository) MarkProcessed(ctx context.Context, querier interfaces.DBTX, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := querier.Exec(ctx, markMessagesProcessedQuery, ids)
	if err != nil {
		r.logger.Error("Error marking messages processed", zap.Int("count", len(ids)), zap.Error(err))
		return fmt.Errorf("failed to mark %d messages processed: %w", len(ids), err)
	}
	return nil
}
