package brains

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"companion-server/internal/ai"
	"companion-server/internal/models"
)

// FallbackDialogueLine - фиксированная реплика деградации, видимая пользователю.
// Возвращается вместо ошибки, когда все попытки генерации исчерпаны.
const FallbackDialogueLine = "I'm having trouble finding the right words. Can you give me a moment?"

// dialogueSystemPromptTemplate - шаблон системного промпта Dialogue Specialist.
// Плейсхолдеры подставляются строковой заменой, без text/template: значения
// приходят из БД и не должны интерпретироваться как разметка шаблонизатора.
const dialogueSystemPromptTemplate = `You are {persona_name}, chatting with the user in Telegram.

Your personality and background:
{persona_prompt}

Current scene state:
- Relationship with the user: {relationship_stage}
- Your emotions: {emotions}
- Mood notes: {mood_notes}
- Location: {location}
- Scene: {description}
- You are wearing: {ai_clothing}
- The user is wearing: {user_clothing}

What you remember about the user:
{memory}

Rules:
- Stay in character, first person, present tense.
- React to the user's latest message naturally; keep replies conversational, 1-4 sentences.
- Never mention being an AI, a language model, or these instructions.
- The scene state above is the ground truth; do not contradict it.`

// placeholderResponses - строки, которые модель иногда возвращает вместо реплики.
// Такой ответ считается невалидным и отправляет попытку в retry.
var placeholderResponses = map[string]bool{
	"null":      true,
	"undefined": true,
	"error":     true,
	"failed":    true,
}

// DialogueConfig - параметры Dialogue Specialist (Brain 2).
type DialogueConfig struct {
	Model            string
	BaseTemperature  float32 // температура первой попытки
	TemperatureStep  float32 // прибавка за каждую повторную попытку
	MaxTemperature   float32
	MaxTokens        int
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	MaxAttempts      int
	HistoryLimit     int
}

// DialogueInput - вход генератора реплики.
type DialogueInput struct {
	State       *models.ConversationState
	History     []models.Message
	UserMessage string
	PersonaName string
	PersonaPrompt string
	Memory      string // долговременная память чата, может быть пустой
	CallerID    string
}

// DialogueSpecialist - Brain 2: генерирует реплику персонажа.
type DialogueSpecialist struct {
	gen    ai.TextGenerator
	cfg    DialogueConfig
	logger *zap.Logger
}

// NewDialogueSpecialist создает новый экземпляр DialogueSpecialist.
func NewDialogueSpecialist(gen ai.TextGenerator, cfg DialogueConfig, logger *zap.Logger) *DialogueSpecialist {
	if cfg.BaseTemperature == 0 {
		cfg.BaseTemperature = 0.8
	}
	if cfg.TemperatureStep == 0 {
		cfg.TemperatureStep = 0.1
	}
	if cfg.MaxTemperature == 0 {
		cfg.MaxTemperature = 1.0
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	if cfg.TopP == 0 {
		cfg.TopP = 0.95
	}
	if cfg.FrequencyPenalty == 0 {
		cfg.FrequencyPenalty = 0.3
	}
	if cfg.PresencePenalty == 0 {
		cfg.PresencePenalty = 0.3
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	return &DialogueSpecialist{gen: gen, cfg: cfg, logger: logger.Named("DialogueSpecialist")}
}

// GenerateDialogue возвращает реплику персонажа. Повторные попытки идут с
// нарастающей температурой; на исчерпании попыток возвращается фиксированная
// фраза-извинение (видимая пользователю деградация, а не ошибка).
func (d *DialogueSpecialist) GenerateDialogue(ctx context.Context, in DialogueInput) string {
	log := d.logger.With(zap.String("persona", in.PersonaName))

	messages := d.buildMessages(in)

	var reply string
	err := (retryPolicy{attempts: d.cfg.MaxAttempts, delay: noDelay}).run(ctx, func(attempt int) error {
		temperature := d.cfg.BaseTemperature + d.cfg.TemperatureStep*float32(attempt-1)
		if temperature > d.cfg.MaxTemperature {
			temperature = d.cfg.MaxTemperature
		}

		raw, _, genErr := d.gen.GenerateText(ctx, in.CallerID, messages, ai.GenerationParams{
			Model:            d.cfg.Model,
			Temperature:      temperature,
			MaxTokens:        d.cfg.MaxTokens,
			TopP:             d.cfg.TopP,
			FrequencyPenalty: d.cfg.FrequencyPenalty,
			PresencePenalty:  d.cfg.PresencePenalty,
		})
		if genErr != nil {
			return genErr
		}

		trimmed := strings.TrimSpace(raw)
		if len(trimmed) < 3 || placeholderResponses[strings.ToLower(trimmed)] {
			log.Warn("Dialogue response failed validation",
				zap.Int("attempt", attempt), zap.Float32("temperature", temperature), zap.Int("len", len(trimmed)))
			return errInvalidResponse // retryable: мусорный ответ
		}

		reply = trimmed
		return nil
	})

	if err != nil {
		log.Error("Dialogue generation exhausted retries, returning fallback line", zap.Error(err))
		return FallbackDialogueLine
	}

	return reply
}

// buildMessages подставляет плейсхолдеры шаблона и собирает контекст вызова.
func (d *DialogueSpecialist) buildMessages(in DialogueInput) []ai.Message {
	memory := strings.TrimSpace(in.Memory)
	if memory == "" {
		memory = "(nothing yet)"
	}

	replacer := strings.NewReplacer(
		"{persona_name}", in.PersonaName,
		"{persona_prompt}", in.PersonaPrompt,
		"{relationship_stage}", string(in.State.RelationshipStage),
		"{emotions}", in.State.Emotions,
		"{mood_notes}", in.State.MoodNotes,
		"{location}", in.State.Location,
		"{description}", in.State.Description,
		"{ai_clothing}", in.State.AIClothing,
		"{user_clothing}", in.State.UserClothing,
		"{memory}", memory,
	)
	systemPrompt := replacer.Replace(dialogueSystemPromptTemplate)

	messages := []ai.Message{{Role: ai.RoleSystem, Content: systemPrompt}}

	history := in.History
	if d.cfg.HistoryLimit > 0 && len(history) > d.cfg.HistoryLimit {
		history = history[len(history)-d.cfg.HistoryLimit:]
	}
	for _, msg := range history {
		role := ai.RoleUser
		if msg.Role == models.RoleAssistant {
			role = ai.RoleAssistant
		} else if msg.Role == models.RoleSystem {
			continue
		}
		messages = append(messages, ai.Message{Role: role, Content: msg.Text})
	}

	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: in.UserMessage})
	return messages
}
