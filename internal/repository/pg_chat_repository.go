package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"companion-server/internal/interfaces"
	"companion-server/internal/models"
)

const (
	chatFields = `id, user_id, persona_id, state_snapshot, memory, is_processing, processing_started_at,
        user_message_count, assistant_message_count, status, created_at, updated_at`

	getChatByIDQuery = `SELECT ` + chatFields + ` FROM chats WHERE id = $1`

	getChatByUserAndPersonaQuery = `
        SELECT ` + chatFields + `
        FROM chats
        WHERE user_id = $1 AND persona_id = $2 AND status = 'active'
        ORDER BY created_at DESC
        LIMIT 1
    `

	insertChatQuery = `
        INSERT INTO chats
            (id, user_id, persona_id, state_snapshot, memory, is_processing, status, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, FALSE, $6, NOW(), NOW())
    `

	// Захват блокировки обработки одним атомарным UPDATE (compare-and-set на уровне БД).
	// RowsAffected = 0 означает, что блокировка уже удерживается другим исполнением.
	acquireProcessingQuery = `
        UPDATE chats
        SET is_processing = TRUE, processing_started_at = NOW()
        WHERE id = $1 AND is_processing = FALSE
    `

	releaseProcessingQuery = `
        UPDATE chats
        SET is_processing = FALSE, processing_started_at = NULL
        WHERE id = $1
    `

	updateChatAfterExchangeQuery = `
        UPDATE chats
        SET state_snapshot = $2,
            user_message_count = user_message_count + $3,
            assistant_message_count = assistant_message_count + 1,
            updated_at = NOW()
        WHERE id = $1
    `

	updateChatMemoryQuery = `
        UPDATE chats
        SET memory = $2, updated_at = NOW()
        WHERE id = $1
    `
)

// Compile-time check to ensure pgChatRepository implements the interface
var _ interfaces.ChatRepository = (*pgChatRepository)(nil)

// pgChatRepository is the PostgreSQL implementation of ChatRepository
type pgChatRepository struct {
	logger *zap.Logger
}

// NewPgChatRepository создает новый экземпляр репозитория чатов.
func NewPgChatRepository(logger *zap.Logger) interfaces.ChatRepository {
	return &pgChatRepository{logger: logger.Named("ChatRepo")}
}

// GetByID возвращает чат по id.
func (r *pgChatRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := pgxscan.Get(ctx, querier, &chat, getChatByIDQuery, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Error getting chat by ID", zap.String("chatID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get chat %s: %w", id, err)
	}
	return &chat, nil
}

// GetByUserAndPersona возвращает активный чат пользователя с персонажем.
func (r *pgChatRepository) GetByUserAndPersona(ctx context.Context, querier interfaces.DBTX, userID int64, personaID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := pgxscan.Get(ctx, querier, &chat, getChatByUserAndPersonaQuery, userID, personaID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Error getting chat by user and persona",
			zap.Int64("userID", userID), zap.String("personaID", personaID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get chat for user %d: %w", userID, err)
	}
	return &chat, nil
}

// Create создает новый чат.
func (r *pgChatRepository) Create(ctx context.Context, querier interfaces.DBTX, chat *models.Chat) error {
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	if chat.Status == "" {
		chat.Status = models.ChatStatusActive
	}
	_, err := querier.Exec(ctx, insertChatQuery,
		chat.ID, chat.UserID, chat.PersonaID, chat.StateSnapshot, chat.Memory, chat.Status)
	if err != nil {
		r.logger.Error("Error creating chat", zap.String("chatID", chat.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

// TryAcquireProcessing атомарно захватывает флаг обработки.
func (r *pgChatRepository) TryAcquireProcessing(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (bool, error) {
	tag, err := querier.Exec(ctx, acquireProcessingQuery, id)
	if err != nil {
		r.logger.Error("Error acquiring processing lock", zap.String("chatID", id.String()), zap.Error(err))
		return false, fmt.Errorf("failed to acquire processing lock for chat %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseProcessing снимает флаг обработки.
func (r *pgChatRepository) ReleaseProcessing(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	_, err := querier.Exec(ctx, releaseProcessingQuery, id)
	if err != nil {
		r.logger.Error("Error releasing processing lock", zap.String("chatID", id.String()), zap.Error(err))
		return fmt.Errorf("failed to release processing lock for chat %s: %w", id, err)
	}
	return nil
}

// UpdateAfterExchange обновляет снимок состояния и счетчики после обмена.
func (r *pgChatRepository) UpdateAfterExchange(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, stateSnapshot string, userMessages int) error {
	tag, err := querier.Exec(ctx, updateChatAfterExchangeQuery, id, stateSnapshot, userMessages)
	if err != nil {
		r.logger.Error("Error updating chat after exchange", zap.String("chatID", id.String()), zap.Error(err))
		return fmt.Errorf("failed to update chat %s after exchange: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// UpdateMemory перезаписывает долговременную память чата.
func (r *pgChatRepository) UpdateMemory(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, memory string) error {
	tag, err := querier.Exec(ctx, updateChatMemoryQuery, id, memory)
	if err != nil {
		r.logger.Error("Error updating chat memory", zap.String("chatID", id.String()), zap.Error(err))
		return fmt.Errorf("failed to update memory for chat %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
