package models

import (
	"time"

	"github.com/google/uuid"
)

// ChatStatus - статус чата.
type ChatStatus string

const (
	ChatStatusActive   ChatStatus = "active"
	ChatStatusArchived ChatStatus = "archived"
)

// Chat - диалог пользователя с персонажем.
// Поля состояния и блокировки обработки принадлежат оркестратору;
// поле Memory принадлежит сервису памяти.
type Chat struct {
	ID                  uuid.UUID
	UserID              int64 // Telegram chat/user id
	PersonaID           uuid.UUID
	StateSnapshot       *string // последняя сериализация ConversationState
	Memory              *string // долговременная память, <= 1000 символов
	IsProcessing        bool
	ProcessingStartedAt *time.Time
	UserMessageCount    int
	AssistantMessageCount int
	Status              ChatStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// MessageRole - роль автора сообщения.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message - одно сообщение в чате. StateSnapshot присутствует у сообщений
// ассистента и фиксирует состояние, породившее этот ответ.
type Message struct {
	ID            uuid.UUID
	ChatID        uuid.UUID
	Role          MessageRole
	Text          string
	StateSnapshot *string
	IsProcessed   bool
	CreatedAt     time.Time
}
