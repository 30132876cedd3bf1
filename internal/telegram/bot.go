package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-server/internal/interfaces"
	"companion-server/internal/models"
)

// ExchangeHandler запускает обработку обмена в чате.
type ExchangeHandler interface {
	HandleExchange(ctx context.Context, chatID uuid.UUID) error
}

// Bot - прием входящих сообщений через long polling.
//
// Каждое входящее сообщение сохраняется как необработанное НЕМЕДЛЕННО,
// до любых вызовов LLM: сообщения, пришедшие во время обработки, не теряются,
// а сворачиваются в батч следующего прогона.
type Bot struct {
	api      *tgbotapi.BotAPI
	db       interfaces.DBTX
	chats    interfaces.ChatRepository
	messages interfaces.MessageRepository
	handler  ExchangeHandler

	// Персонаж, назначаемый новым чатам. Выбор персонажа пользователем
	// идет через админ-настройку, бот его не переключает.
	defaultPersonaID uuid.UUID

	logger *zap.Logger
}

// NewBot создает новый Bot.
func NewBot(
	api *tgbotapi.BotAPI,
	db interfaces.DBTX,
	chats interfaces.ChatRepository,
	messages interfaces.MessageRepository,
	handler ExchangeHandler,
	defaultPersonaID uuid.UUID,
	logger *zap.Logger,
) *Bot {
	return &Bot{
		api:              api,
		db:               db,
		chats:            chats,
		messages:         messages,
		handler:          handler,
		defaultPersonaID: defaultPersonaID,
		logger:           logger.Named("TelegramBot"),
	}
}

// Run читает обновления до отмены контекста. Блокирующий вызов.
func (b *Bot) Run(ctx context.Context) {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 30
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("Telegram bot started", zap.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("Telegram bot stopped")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate обрабатывает одно обновление. Ошибки приема логируются и
// не прерывают цикл чтения.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	text := strings.TrimSpace(update.Message.Text)
	if text == "" {
		return
	}

	userID := update.Message.Chat.ID
	log := b.logger.With(zap.Int64("userID", userID))

	chat, err := b.resolveChat(ctx, userID)
	if err != nil {
		log.Error("Failed to resolve chat", zap.Error(err))
		return
	}

	msg := &models.Message{
		ID:     uuid.New(),
		ChatID: chat.ID,
		Role:   models.RoleUser,
		Text:   text,
	}
	if err := b.messages.Create(ctx, b.db, msg); err != nil {
		log.Error("Failed to save incoming message", zap.Error(err))
		return
	}

	// Обработка идет асинхронно: цикл чтения обновлений не должен ждать LLM.
	// Отказ в захвате блокировки - штатный случай, сообщение уже сохранено
	// и будет подхвачено батчем текущего прогона.
	go func() {
		if err := b.handler.HandleExchange(context.Background(), chat.ID); err != nil {
			if errors.Is(err, models.ErrChatAlreadyProcessing) {
				log.Debug("Chat is already processing, message queued for next run")
				return
			}
			log.Error("Exchange failed", zap.Error(err))
		}
	}()
}

// resolveChat возвращает активный чат пользователя, создавая его при первом обращении.
func (b *Bot) resolveChat(ctx context.Context, userID int64) (*models.Chat, error) {
	chat, err := b.chats.GetByUserAndPersona(ctx, b.db, userID, b.defaultPersonaID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	chat = &models.Chat{
		ID:        uuid.New(),
		UserID:    userID,
		PersonaID: b.defaultPersonaID,
		Status:    models.ChatStatusActive,
	}
	if err := b.chats.Create(ctx, b.db, chat); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	b.logger.Info("New chat created",
		zap.Int64("userID", userID), zap.String("chatID", chat.ID.String()))
	return chat, nil
}
