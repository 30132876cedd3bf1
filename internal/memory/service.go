package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-server/internal/ai"
	"companion-server/internal/interfaces"
	"companion-server/internal/models"
)

// memoryExtractionPrompt - инструкции извлечения долговременной памяти.
const memoryExtractionPrompt = `You maintain the long-term memory of a companion chatbot about one specific user.

Given the current memory and the recent dialogue, output the UPDATED memory:
- durable facts about the user only: name, job, hobbies, preferences, important life events,
- merge new facts with the current memory, drop nothing that is still true,
- plain sentences, no headers, no bullet points,
- at most 1000 characters,
- never describe the companion or the conversation itself, only the user.

The dialogue below labels each line with its author. Lines labeled "User" are the human.
Output only the memory text.`

// Config - параметры сервиса памяти.
type Config struct {
	Model        string
	Temperature  float32 // умеренная температура для аккуратного пересказа фактов
	MaxTokens    int
	HistoryLimit int
}

// Service извлекает и обновляет долговременную память чата.
// Вызывается fire-and-forget после каждого обмена и никогда не блокирует
// основной путь ответа.
type Service struct {
	gen      ai.TextGenerator
	db       interfaces.DBTX
	chatRepo interfaces.ChatRepository
	msgRepo  interfaces.MessageRepository
	cfg      Config
	logger   *zap.Logger
}

// NewService создает новый экземпляр сервиса памяти.
func NewService(
	gen ai.TextGenerator,
	db interfaces.DBTX,
	chatRepo interfaces.ChatRepository,
	msgRepo interfaces.MessageRepository,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.5
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 15
	}
	return &Service{
		gen:      gen,
		db:       db,
		chatRepo: chatRepo,
		msgRepo:  msgRepo,
		cfg:      cfg,
		logger:   logger.Named("MemoryService"),
	}
}

// UpdateMemory извлекает обновленную память из недавней истории и персистит ее,
// если она прошла контроль качества. Отклонение кандидата - тихая, нефатальная
// деградация: прежняя память остается без изменений, причина уходит в лог.
func (s *Service) UpdateMemory(ctx context.Context, chatID uuid.UUID, personaName string) error {
	log := s.logger.With(zap.String("chatID", chatID.String()))

	chat, err := s.chatRepo.GetByID(ctx, s.db, chatID)
	if err != nil {
		return fmt.Errorf("memory update: failed to load chat: %w", err)
	}

	history, err := s.msgRepo.ListRecent(ctx, s.db, chatID, s.cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("memory update: failed to load history: %w", err)
	}
	if len(history) == 0 {
		return nil
	}

	currentMemory := ""
	if chat.Memory != nil {
		currentMemory = *chat.Memory
	}

	candidate, _, err := s.gen.GenerateText(ctx, chatID.String(), s.buildMessages(history, currentMemory, personaName), ai.GenerationParams{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("memory update: generation failed: %w", err)
	}

	updated, rejectReason := ReviseMemory(candidate, currentMemory)
	if rejectReason != "" {
		log.Warn("Memory candidate rejected, keeping existing memory", zap.String("reason", rejectReason))
		return nil
	}
	if updated == currentMemory {
		return nil
	}

	if err := s.chatRepo.UpdateMemory(ctx, s.db, chatID, updated); err != nil {
		return fmt.Errorf("memory update: failed to persist: %w", err)
	}

	log.Debug("Chat memory updated", zap.Int("len", len(updated)))
	return nil
}

// buildMessages собирает контекст извлечения. Каждая строка истории снабжается
// явной меткой роли, чтобы модель не путала пользователя и персонажа.
func (s *Service) buildMessages(history []models.Message, currentMemory, personaName string) []ai.Message {
	var b strings.Builder

	b.WriteString("Current memory:\n")
	if strings.TrimSpace(currentMemory) == "" {
		b.WriteString("(empty)\n")
	} else {
		b.WriteString(currentMemory)
		b.WriteString("\n")
	}
	b.WriteString("\nRecent dialogue:\n")

	for _, msg := range history {
		switch msg.Role {
		case models.RoleUser:
			b.WriteString("User: ")
		case models.RoleAssistant:
			b.WriteString(fmt.Sprintf("Companion (%s): ", personaName))
		default:
			continue
		}
		b.WriteString(strings.TrimSpace(msg.Text))
		b.WriteString("\n")
	}

	return []ai.Message{
		{Role: ai.RoleSystem, Content: memoryExtractionPrompt},
		{Role: ai.RoleUser, Content: b.String()},
	}
}
