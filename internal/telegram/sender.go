package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"companion-server/internal/interfaces"
)

var _ interfaces.MessageSender = (*Sender)(nil)

// Sender - доставка сообщений через Telegram Bot API.
// Клиент tgbotapi не принимает context, поэтому ctx проверяется только
// перед отправкой: начатый HTTP-запрос не отменяется.
type Sender struct {
	bot    *tgbotapi.BotAPI
	logger *zap.Logger
}

// NewSender создает новый Sender.
func NewSender(bot *tgbotapi.BotAPI, logger *zap.Logger) *Sender {
	return &Sender{bot: bot, logger: logger.Named("TelegramSender")}
}

// SendText отправляет текстовое сообщение.
func (s *Sender) SendText(ctx context.Context, recipientID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(recipientID, text)
	if _, err := s.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// SendPhoto отправляет фото по URL с подписью.
func (s *Sender) SendPhoto(ctx context.Context, recipientID int64, photoURL string, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	photo := tgbotapi.NewPhoto(recipientID, tgbotapi.FileURL(photoURL))
	photo.Caption = caption
	if _, err := s.bot.Send(photo); err != nil {
		return fmt.Errorf("failed to send telegram photo: %w", err)
	}
	return nil
}
