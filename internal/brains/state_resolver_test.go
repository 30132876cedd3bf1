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
	"companion-server/internal/models"
)

func validStateLine() string {
	return (&models.ConversationState{
		RelationshipStage: models.StageAcquaintance,
		Emotions:          "curious",
		MoodNotes:         "warming up",
		Location:          "city park, on a bench under the trees",
		Description:       "an afternoon walk",
		AIClothing:        "light casual clothes",
		UserClothing:      "jacket and jeans",
	}).Serialize()
}

func TestStateResolverResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("Parses strict response", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return(validStateLine(), ai.UsageInfo{}, nil).Once()

		resolver := brains.NewStateResolver(gen, brains.StateResolverConfig{}, zap.NewNop())
		state := resolver.Resolve(ctx, brains.StateResolveInput{
			UserMessage: "hi, nice weather today",
			PersonaName: "Alice",
			CallerID:    "chat-1",
		})

		assert.Equal(t, models.StageAcquaintance, state.RelationshipStage)
		assert.Equal(t, "city park, on a bench under the trees", state.Location)
		gen.AssertExpectations(t)
	})

	t.Run("Salvages noisy response in lenient mode", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("Here is the state:\n```\n"+validStateLine()+"\n```", ai.UsageInfo{}, nil).Once()

		resolver := brains.NewStateResolver(gen, brains.StateResolverConfig{}, zap.NewNop())
		state := resolver.Resolve(ctx, brains.StateResolveInput{
			UserMessage: "hi",
			PersonaName: "Alice",
			CallerID:    "chat-1",
		})

		assert.Equal(t, "curious", state.Emotions)
	})

	t.Run("Falls back to previous state verbatim after exhausted attempts", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("sorry, I cannot do that", ai.UsageInfo{}, nil).Twice()

		prev := &models.ConversationState{
			RelationshipStage: models.StageFriend,
			Emotions:          "calm",
			Location:          "at home, in a cozy living room",
		}
		resolver := brains.NewStateResolver(gen, brains.StateResolverConfig{}, zap.NewNop())
		state := resolver.Resolve(ctx, brains.StateResolveInput{
			PrevState:   prev,
			UserMessage: "hi",
			PersonaName: "Alice",
			CallerID:    "chat-1",
		})

		assert.Same(t, prev, state)
		gen.AssertExpectations(t)
	})

	t.Run("Synthesizes initial state when there is no previous state", func(t *testing.T) {
		gen := new(mocks.MockTextGenerator)
		gen.On("GenerateText", ctx, "chat-1", mock.Anything, mock.Anything).
			Return("", ai.UsageInfo{}, errors.New("provider down"))

		resolver := brains.NewStateResolver(gen, brains.StateResolverConfig{}, zap.NewNop())
		state := resolver.Resolve(ctx, brains.StateResolveInput{
			UserMessage: "hey, I'm at a cafe right now",
			PersonaName: "Alice",
			CallerID:    "chat-1",
		})

		assert.Equal(t, models.StageStranger, state.RelationshipStage)
		assert.Equal(t, "cozy cafe, at a small table by the window", state.Location)
		assert.Equal(t, "casual outfit, comfortable clothes", state.AIClothing)
		assert.True(t, models.IsValidStateString(state.Serialize()))
	})
}

func TestSynthesizeInitialState(t *testing.T) {
	t.Run("Defaults without a keyword", func(t *testing.T) {
		state := brains.SynthesizeInitialState("hello there", "Alice")

		assert.Equal(t, models.StageStranger, state.RelationshipStage)
		assert.Equal(t, "comfortable setting", state.Location)
		assert.Equal(t, "casual outfit", state.AIClothing)
		assert.False(t, state.TerminateDialog)
	})

	t.Run("Keyword match is case-insensitive", func(t *testing.T) {
		state := brains.SynthesizeInitialState("Meet me at the GYM", "Alice")
		assert.Equal(t, "fitness gym, near the workout machines", state.Location)
	})

	t.Run("First matching keyword wins", func(t *testing.T) {
		state := brains.SynthesizeInitialState("come home after the office", "Alice")
		assert.Equal(t, "at home, in a cozy living room", state.Location)
	})
}
