package interfaces

import (
	"context"

	"github.com/google/uuid"

	"companion-server/internal/models"
)

// MessageSender - канал доставки сообщений пользователю (Telegram).
//
// Контракт ошибок: сбой доставки не должен оставлять чат заблокированным,
// за это отвечает оркестратор.
type MessageSender interface {
	// SendText отправляет текстовое сообщение в чат получателя.
	SendText(ctx context.Context, recipientID int64, text string) error

	// SendPhoto отправляет фото по URL с подписью.
	SendPhoto(ctx context.Context, recipientID int64, photoURL string, caption string) error
}

// PersonaProvider - read-through доступ к персонажам (реализуется кэшем).
type PersonaProvider interface {
	GetPersona(ctx context.Context, id uuid.UUID) (*models.Persona, error)
}
