package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"companion-server/internal/ai"
	"companion-server/internal/memory"
	"companion-server/internal/mocks"
	"companion-server/internal/models"
)

func memoryTestChat(chatID uuid.UUID, currentMemory string) *models.Chat {
	chat := &models.Chat{
		ID:        chatID,
		UserID:    42,
		PersonaID: uuid.New(),
		Status:    models.ChatStatusActive,
	}
	if currentMemory != "" {
		chat.Memory = &currentMemory
	}
	return chat
}

func memoryTestHistory(chatID uuid.UUID) []models.Message {
	return []models.Message{
		{ID: uuid.New(), ChatID: chatID, Role: models.RoleUser, Text: "I just got a new job as a chef"},
		{ID: uuid.New(), ChatID: chatID, Role: models.RoleAssistant, Text: "That is wonderful, congratulations!"},
	}
}

func TestMemoryServiceUpdateMemory(t *testing.T) {
	ctx := context.Background()
	chatID := uuid.New()

	t.Run("Persists accepted memory", func(t *testing.T) {
		candidate := "The user recently started working as a chef. He is excited about the new job."

		chatRepo := new(mocks.MockChatRepository)
		msgRepo := new(mocks.MockMessageRepository)
		gen := new(mocks.MockTextGenerator)

		chatRepo.On("GetByID", ctx, nil, chatID).Return(memoryTestChat(chatID, ""), nil).Once()
		msgRepo.On("ListRecent", ctx, nil, chatID, 15).Return(memoryTestHistory(chatID), nil).Once()
		gen.On("GenerateText", ctx, chatID.String(), mock.Anything, mock.Anything).
			Return(candidate, ai.UsageInfo{}, nil).Once()
		chatRepo.On("UpdateMemory", ctx, nil, chatID, candidate).Return(nil).Once()

		svc := memory.NewService(gen, nil, chatRepo, msgRepo, memory.Config{}, zap.NewNop())
		err := svc.UpdateMemory(ctx, chatID, "Alice")

		assert.NoError(t, err)
		chatRepo.AssertExpectations(t)
		msgRepo.AssertExpectations(t)
	})

	t.Run("Rejected candidate keeps existing memory and reports no error", func(t *testing.T) {
		existing := "The user's name is Pavel. He works as a backend engineer and likes hiking."

		chatRepo := new(mocks.MockChatRepository)
		msgRepo := new(mocks.MockMessageRepository)
		gen := new(mocks.MockTextGenerator)

		chatRepo.On("GetByID", ctx, nil, chatID).Return(memoryTestChat(chatID, existing), nil).Once()
		msgRepo.On("ListRecent", ctx, nil, chatID, 15).Return(memoryTestHistory(chatID), nil).Once()
		gen.On("GenerateText", ctx, chatID.String(), mock.Anything, mock.Anything).
			Return("null", ai.UsageInfo{}, nil).Once()

		svc := memory.NewService(gen, nil, chatRepo, msgRepo, memory.Config{}, zap.NewNop())
		err := svc.UpdateMemory(ctx, chatID, "Alice")

		assert.NoError(t, err)
		chatRepo.AssertNotCalled(t, "UpdateMemory", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unchanged memory is not rewritten", func(t *testing.T) {
		existing := "The user's name is Pavel. He works as a backend engineer and likes hiking."

		chatRepo := new(mocks.MockChatRepository)
		msgRepo := new(mocks.MockMessageRepository)
		gen := new(mocks.MockTextGenerator)

		chatRepo.On("GetByID", ctx, nil, chatID).Return(memoryTestChat(chatID, existing), nil).Once()
		msgRepo.On("ListRecent", ctx, nil, chatID, 15).Return(memoryTestHistory(chatID), nil).Once()
		gen.On("GenerateText", ctx, chatID.String(), mock.Anything, mock.Anything).
			Return(existing, ai.UsageInfo{}, nil).Once()

		svc := memory.NewService(gen, nil, chatRepo, msgRepo, memory.Config{}, zap.NewNop())
		err := svc.UpdateMemory(ctx, chatID, "Alice")

		assert.NoError(t, err)
		chatRepo.AssertNotCalled(t, "UpdateMemory", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Empty history is a no-op", func(t *testing.T) {
		chatRepo := new(mocks.MockChatRepository)
		msgRepo := new(mocks.MockMessageRepository)
		gen := new(mocks.MockTextGenerator)

		chatRepo.On("GetByID", ctx, nil, chatID).Return(memoryTestChat(chatID, ""), nil).Once()
		msgRepo.On("ListRecent", ctx, nil, chatID, 15).Return([]models.Message{}, nil).Once()

		svc := memory.NewService(gen, nil, chatRepo, msgRepo, memory.Config{}, zap.NewNop())
		err := svc.UpdateMemory(ctx, chatID, "Alice")

		assert.NoError(t, err)
		gen.AssertNotCalled(t, "GenerateText", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Generation failure is reported to the caller", func(t *testing.T) {
		chatRepo := new(mocks.MockChatRepository)
		msgRepo := new(mocks.MockMessageRepository)
		gen := new(mocks.MockTextGenerator)

		chatRepo.On("GetByID", ctx, nil, chatID).Return(memoryTestChat(chatID, ""), nil).Once()
		msgRepo.On("ListRecent", ctx, nil, chatID, 15).Return(memoryTestHistory(chatID), nil).Once()
		gen.On("GenerateText", ctx, chatID.String(), mock.Anything, mock.Anything).
			Return("", ai.UsageInfo{}, errors.New("provider down")).Once()

		svc := memory.NewService(gen, nil, chatRepo, msgRepo, memory.Config{}, zap.NewNop())
		err := svc.UpdateMemory(ctx, chatID, "Alice")

		assert.Error(t, err)
		chatRepo.AssertNotCalled(t, "UpdateMemory", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
