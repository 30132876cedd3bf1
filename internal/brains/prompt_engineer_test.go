package brains_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"companion-server/internal/ai"
	"companion-server/internal/brains"
	"companion-server/internal/mocks"
	"companion-server/internal/models"
)

const validPlanJSON = `{
	"composition": ["upper body shot", "looking at viewer"],
	"action": ["holding a coffee cup"],
	"clothing": ["casual outfit"],
	"atmosphere": ["cozy cafe", "warm lighting"],
	"expression": ["soft smile"],
	"metadata": ["photorealistic"]
}`

func engineerInput() brains.PromptEngineerInput {
	return brains.PromptEngineerInput{
		State: &models.ConversationState{
			RelationshipStage: models.StageFriend,
			Location:          "cozy cafe, at a small table by the window",
			AIClothing:        "casual outfit",
		},
		DialogueReply: "Here I am with my coffee!",
		UserMessage:   "send me a photo",
		PersonaName:   "Alice",
		PersonaPrompt: "young woman with short dark hair",
		CallerID:      "chat-1",
	}
}

func fastEngineerConfig() brains.PromptEngineerConfig {
	return brains.PromptEngineerConfig{BackoffBase: time.Millisecond}
}

func TestImagePromptEngineerBuildImagePlan(t *testing.T) {
	ctx := context.Background()

	t.Run("Parses strict JSON plan", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return(validPlanJSON, ai.UsageInfo{}, nil).Once()

		engineer := brains.NewImagePromptEngineer(gen, fastEngineerConfig(), zap.NewNop())
		plan, err := engineer.BuildImagePlan(ctx, engineerInput())

		require.NoError(t, err)
		assert.Equal(t, []string{"upper body shot", "looking at viewer"}, plan.Composition)
		assert.Equal(t, []string{"photorealistic"}, plan.Metadata)
	})

	t.Run("Parses plan wrapped in markdown fences", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("```json\n"+validPlanJSON+"\n```", ai.UsageInfo{}, nil).Once()

		engineer := brains.NewImagePromptEngineer(gen, fastEngineerConfig(), zap.NewNop())
		plan, err := engineer.BuildImagePlan(ctx, engineerInput())

		require.NoError(t, err)
		assert.Equal(t, []string{"holding a coffee cup"}, plan.Action)
	})

	t.Run("Invalid JSON is retried then succeeds", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("I would describe the scene as...", ai.UsageInfo{}, nil).Once()
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return(validPlanJSON, ai.UsageInfo{}, nil).Once()

		engineer := brains.NewImagePromptEngineer(gen, fastEngineerConfig(), zap.NewNop())
		_, err := engineer.BuildImagePlan(ctx, engineerInput())

		assert.NoError(t, err)
		gen.AssertExpectations(t)
	})

	t.Run("Exhausted attempts raise ErrImagePlanFailed", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("", ai.UsageInfo{}, errors.New("provider down")).Times(3)

		engineer := brains.NewImagePromptEngineer(gen, fastEngineerConfig(), zap.NewNop())
		plan, err := engineer.BuildImagePlan(ctx, engineerInput())

		assert.Nil(t, plan)
		assert.True(t, errors.Is(err, brains.ErrImagePlanFailed))
		gen.AssertExpectations(t)
	})
}

func TestAssembleFinalPrompt(t *testing.T) {
	plan := &brains.SDXLImagePlan{
		Composition: []string{"upper body shot"},
		Action:      []string{"holding a coffee cup"},
		Clothing:    []string{"casual outfit"},
		Atmosphere:  []string{"cozy cafe", "warm lighting"},
		Expression:  []string{"soft smile"},
		Metadata:    []string{"photorealistic"},
	}

	t.Run("Assembles tags in section order with visual prompt and quality tail", func(t *testing.T) {
		positive, negative := brains.AssembleFinalPrompt(plan, "young woman with short dark hair")

		assert.Equal(t,
			"upper body shot, holding a coffee cup, casual outfit, cozy cafe, warm lighting, "+
				"soft smile, photorealistic, young woman with short dark hair, "+
				"masterpiece, best quality, highly detailed, sharp focus",
			positive)
		assert.Contains(t, negative, "bad anatomy")
		assert.Contains(t, negative, "watermark")
	})

	t.Run("Deterministic for the same input", func(t *testing.T) {
		first, _ := brains.AssembleFinalPrompt(plan, "visual")
		second, _ := brains.AssembleFinalPrompt(plan, "visual")
		assert.Equal(t, first, second)
	})

	t.Run("Skips empty tags and empty visual prompt", func(t *testing.T) {
		sparse := &brains.SDXLImagePlan{
			Composition: []string{" ", "close-up"},
			Metadata:    []string{""},
		}
		positive, _ := brains.AssembleFinalPrompt(sparse, "  ")

		assert.Equal(t, "close-up, masterpiece, best quality, highly detailed, sharp focus", positive)
	})
}
