package brains_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"companion-server/internal/ai"
	"companion-server/internal/brains"
	"companion-server/internal/mocks"
)

func decisionInput() brains.ImageDecisionInput {
	return brains.ImageDecisionInput{
		UserMessage: "show me what you look like right now",
		PersonaName: "Alice",
		CallerID:    "chat-1",
	}
}

func TestImageDecisionShouldGenerateImage(t *testing.T) {
	ctx := context.Background()

	t.Run("Parses positive decision", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("YES - user explicitly asked for a photo", ai.UsageInfo{}, nil).Once()

		specialist := brains.NewImageDecisionSpecialist(gen, brains.ImageDecisionConfig{}, zap.NewNop())
		generate, reason := specialist.ShouldGenerateImage(ctx, decisionInput())

		assert.True(t, generate)
		assert.Equal(t, "user explicitly asked for a photo", reason)
	})

	t.Run("Decision prefix is case-insensitive", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("no - pure dialogue, nothing visual changed", ai.UsageInfo{}, nil).Once()

		specialist := brains.NewImageDecisionSpecialist(gen, brains.ImageDecisionConfig{}, zap.NewNop())
		generate, reason := specialist.ShouldGenerateImage(ctx, decisionInput())

		assert.False(t, generate)
		assert.Equal(t, "pure dialogue, nothing visual changed", reason)
	})

	t.Run("Only the first line of the answer counts", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("NO: the scene is repetitive\nAlthough one could argue YES here.", ai.UsageInfo{}, nil).Once()

		specialist := brains.NewImageDecisionSpecialist(gen, brains.ImageDecisionConfig{}, zap.NewNop())
		generate, reason := specialist.ShouldGenerateImage(ctx, decisionInput())

		assert.False(t, generate)
		assert.Equal(t, "the scene is repetitive", reason)
	})

	t.Run("Answer without reason is retried", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("YES", ai.UsageInfo{}, nil).Once()
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("YES - location changed to the beach", ai.UsageInfo{}, nil).Once()

		specialist := brains.NewImageDecisionSpecialist(gen, brains.ImageDecisionConfig{}, zap.NewNop())
		generate, reason := specialist.ShouldGenerateImage(ctx, decisionInput())

		assert.True(t, generate)
		assert.Equal(t, "location changed to the beach", reason)
		gen.AssertExpectations(t)
	})

	t.Run("Defaults to YES after exhausted attempts", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("", ai.UsageInfo{}, errors.New("provider down")).Twice()

		specialist := brains.NewImageDecisionSpecialist(gen, brains.ImageDecisionConfig{}, zap.NewNop())
		generate, reason := specialist.ShouldGenerateImage(ctx, decisionInput())

		assert.True(t, generate)
		assert.Equal(t, "decision fallback: defaulting to image generation", reason)
		gen.AssertExpectations(t)
	})
}
