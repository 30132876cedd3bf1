package brains

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"companion-server/internal/ai"
	"companion-server/internal/models"
)

// stateResolverSystemPrompt - правила ведения состояния диалога.
// Формат ответа жестко зафиксирован: одна строка key="value" пар через '|'.
const stateResolverSystemPrompt = `You are a conversation state tracker for a roleplay companion chatbot.
Given the previous state, recent dialogue history and the new user message, output the updated state.

Rules:
- Preserve every field from the previous state unless the dialogue explicitly changes it.
- location and description must be specific, never vague ("somewhere nice" is invalid).
- If clothing fields are blank, infer them from the location and relationship stage.
  Default to modest, context-appropriate clothing. Never default to nudity unless the
  dialogue makes it explicit.
- relationshipStage is one of: stranger, acquaintance, friend, crush, lover, partner, ex.
  It moves at most one step per exchange.
- Set terminateDialog="true" only if the user clearly wants to end the conversation for good.

Respond with EXACTLY ONE line in this format and nothing else:
relationshipStage="..."|emotions="..."|moodNotes="..."|location="..."|description="..."|aiClothing="..."|userClothing="..."|terminateDialog="false"|terminateReason=""`

// initialStateHint - канонические пары локация/одежда для синтеза начального
// состояния по ключевым словам приветствия.
type initialStateHint struct {
	keyword    string
	location   string
	aiClothing string
}

// Порядок важен: берется первое совпадение.
var initialStateHints = []initialStateHint{
	{"home", "at home, in a cozy living room", "comfortable homewear, soft t-shirt and shorts"},
	{"office", "modern office, near the desk", "business casual, blouse and skirt"},
	{"cafe", "cozy cafe, at a small table by the window", "casual outfit, comfortable clothes"},
	{"gym", "fitness gym, near the workout machines", "sportswear, leggings and a top"},
	{"park", "city park, on a bench under the trees", "light casual clothes, comfortable shoes"},
	{"beach", "sunny beach, near the waterline", "summer beachwear, light cover-up"},
	{"school", "school campus, in the hallway", "neat casual outfit, light jacket"},
}

// StateResolverConfig - параметры State Resolver (Brain 1).
type StateResolverConfig struct {
	Model        string
	Temperature  float32 // низкая температура для детерминированного формата
	MaxTokens    int
	MaxAttempts  int
	HistoryLimit int
}

// StateResolveInput - вход резолвера состояния.
type StateResolveInput struct {
	PrevState       *models.ConversationState // nil на первом обмене
	History         []models.Message
	UserMessage     string
	PersonaName     string
	PrevImagePrompt string // подсказка для визуальной преемственности, может быть пустой
	CallerID        string
}

// StateResolver - Brain 1: обновляет структурированное состояние диалога.
type StateResolver struct {
	gen    ai.TextGenerator
	cfg    StateResolverConfig
	logger *zap.Logger
}

// NewStateResolver создает новый экземпляр StateResolver.
func NewStateResolver(gen ai.TextGenerator, cfg StateResolverConfig, logger *zap.Logger) *StateResolver {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &StateResolver{gen: gen, cfg: cfg, logger: logger.Named("StateResolver")}
}

// Resolve возвращает обновленное состояние диалога. Никогда не возвращает ошибку:
// на исчерпании попыток возвращается предыдущее состояние как есть, а при его
// отсутствии - синтезированное начальное состояние. Этот fallback не может упасть.
func (r *StateResolver) Resolve(ctx context.Context, in StateResolveInput) *models.ConversationState {
	log := r.logger.With(zap.String("persona", in.PersonaName))

	var resolved *models.ConversationState
	err := (retryPolicy{attempts: r.cfg.MaxAttempts, delay: noDelay}).run(ctx, func(attempt int) error {
		raw, _, genErr := r.gen.GenerateText(ctx, in.CallerID, r.buildMessages(in), ai.GenerationParams{
			Model:       r.cfg.Model,
			Temperature: r.cfg.Temperature,
			MaxTokens:   r.cfg.MaxTokens,
		})
		if genErr != nil {
			return genErr
		}

		state, parseErr := models.ParseConversationState(strings.TrimSpace(raw))
		if parseErr != nil {
			// Толерантный режим: пытаемся спасти строку с маркером из шумного ответа
			state, parseErr = models.ParseConversationStateLenient(raw)
			if parseErr != nil {
				log.Warn("State response failed validation", zap.Int("attempt", attempt), zap.Error(parseErr))
				return parseErr
			}
		}
		resolved = state
		return nil
	})

	if err != nil {
		if in.PrevState != nil {
			log.Warn("State resolution failed, falling back to previous state", zap.Error(err))
			return in.PrevState
		}
		log.Warn("State resolution failed with no previous state, synthesizing initial state", zap.Error(err))
		return SynthesizeInitialState(in.UserMessage, in.PersonaName)
	}

	// Возможная стагнация: модель вернула состояние, текстуально равное предыдущему
	if in.PrevState != nil && resolved.Serialize() == in.PrevState.Serialize() {
		log.Warn("Resolved state is identical to previous state, possible stagnation")
	}

	return resolved
}

// buildMessages собирает контекст для вызова LLM.
func (r *StateResolver) buildMessages(in StateResolveInput) []ai.Message {
	var b strings.Builder

	if in.PrevState != nil {
		b.WriteString("Previous state:\n")
		b.WriteString(in.PrevState.Serialize())
		b.WriteString("\n\n")
	} else {
		b.WriteString("Previous state: none (first exchange, infer a plausible initial state)\n\n")
	}

	if history := formatHistory(in.History, r.cfg.HistoryLimit, in.PersonaName); history != "" {
		b.WriteString("Recent dialogue:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}

	if in.PrevImagePrompt != "" {
		b.WriteString("Last generated image showed: ")
		b.WriteString(in.PrevImagePrompt)
		b.WriteString("\n\n")
	}

	b.WriteString(fmt.Sprintf("Companion name: %s\n", in.PersonaName))
	b.WriteString(fmt.Sprintf("New user message: %s", in.UserMessage))

	return []ai.Message{
		{Role: ai.RoleSystem, Content: stateResolverSystemPrompt},
		{Role: ai.RoleUser, Content: b.String()},
	}
}

// SynthesizeInitialState строит начальное состояние по ключевым словам приветствия.
// Используется как терминальный fallback первого обмена и обязан всегда успевать.
func SynthesizeInitialState(greeting, personaName string) *models.ConversationState {
	location := "comfortable setting"
	aiClothing := "casual outfit"

	lowered := strings.ToLower(greeting)
	for _, hint := range initialStateHints {
		if strings.Contains(lowered, hint.keyword) {
			location = hint.location
			aiClothing = hint.aiClothing
			break
		}
	}

	return &models.ConversationState{
		RelationshipStage: models.StageStranger,
		Emotions:          "curious, friendly",
		MoodNotes:         "first meeting, getting to know each other",
		Location:          location,
		Description:       fmt.Sprintf("%s meets the user for the first time", personaName),
		AIClothing:        aiClothing,
		UserClothing:      "casual clothes",
		TerminateDialog:   false,
		TerminateReason:   "",
	}
}
