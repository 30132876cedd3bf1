package brains

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"companion-server/internal/ai"
	"companion-server/internal/models"
)

// promptEngineerSystemPrompt - таксономия тегов для SDXL-промпта.
// Ответ - строгий JSON с шестью списками коротких тегов.
const promptEngineerSystemPrompt = `You are an image prompt engineer for an SDXL pipeline of a companion chatbot.

Given the current scene state, the companion's latest reply and the user's message,
produce tag lists describing the image to generate. The companion's reply is the
source of truth for what is actually happening; the user's message expresses wishes,
not facts.

Respond with STRICT JSON, no prose, matching exactly this schema:
{
  "composition": ["..."],  // framing, camera angle, shot type
  "action": ["..."],       // what the character is doing
  "clothing": ["..."],     // what the character is wearing, from the scene state
  "atmosphere": ["..."],   // location, lighting, time of day
  "expression": ["..."],   // facial expression, emotion
  "metadata": ["..."]      // style tags, rendering hints
}
Each entry is a short tag of 1-4 words. Every list must be present, use [] if empty.`

// qualitySuffix - фиксированный хвост позитивного промпта.
const qualitySuffix = "masterpiece, best quality, highly detailed, sharp focus"

// negativePromptBase - фиксированный негативный промпт.
const negativePromptBase = "lowres, bad anatomy, bad hands, missing fingers, extra digits, " +
	"cropped, worst quality, low quality, jpeg artifacts, signature, watermark, username, blurry"

// SDXLImagePlan - план изображения: шесть списков тегов.
// Транзиентная структура: потребляется сборкой промпта и не персистится.
type SDXLImagePlan struct {
	Composition []string `json:"composition"`
	Action      []string `json:"action"`
	Clothing    []string `json:"clothing"`
	Atmosphere  []string `json:"atmosphere"`
	Expression  []string `json:"expression"`
	Metadata    []string `json:"metadata"`
}

// PromptEngineerConfig - параметры Image Prompt Engineer (Brain 3).
type PromptEngineerConfig struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	MaxAttempts  int
	BackoffBase  time.Duration // база экспоненциального backoff между попытками
}

// PromptEngineerInput - вход инженера промптов.
type PromptEngineerInput struct {
	State         *models.ConversationState
	DialogueReply string
	UserMessage   string
	PersonaName   string
	PersonaPrompt string
	CallerID      string
}

// ImagePromptEngineer - Brain 3: строит план изображения и собирает промпты.
type ImagePromptEngineer struct {
	gen    ai.TextGenerator
	cfg    PromptEngineerConfig
	logger *zap.Logger
}

// NewImagePromptEngineer создает новый экземпляр ImagePromptEngineer.
func NewImagePromptEngineer(gen ai.TextGenerator, cfg PromptEngineerConfig, logger *zap.Logger) *ImagePromptEngineer {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.8
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	return &ImagePromptEngineer{gen: gen, cfg: cfg, logger: logger.Named("PromptEngineer")}
}

// BuildImagePlan возвращает план изображения. В отличие от остальных brains
// терминальный сбой здесь ФАТАЛЕН: после исчерпания попыток возвращается ошибка,
// и вызывающая фоновая ветка обязана поймать ее и пропустить изображение.
func (e *ImagePromptEngineer) BuildImagePlan(ctx context.Context, in PromptEngineerInput) (*SDXLImagePlan, error) {
	log := e.logger.With(zap.String("persona", in.PersonaName))

	var plan *SDXLImagePlan
	err := (retryPolicy{attempts: e.cfg.MaxAttempts, delay: exponentialDelay(e.cfg.BackoffBase)}).run(ctx, func(attempt int) error {
		raw, _, genErr := e.gen.GenerateText(ctx, in.CallerID, e.buildMessages(in), ai.GenerationParams{
			Model:       e.cfg.Model,
			Temperature: e.cfg.Temperature,
			MaxTokens:   e.cfg.MaxTokens,
		})
		if genErr != nil {
			return genErr
		}

		parsed, parseErr := parseImagePlan(raw)
		if parseErr != nil {
			log.Warn("Image plan response is not valid JSON",
				zap.Int("attempt", attempt), zap.String("response", truncateForLog(raw, 200)))
			return parseErr
		}
		plan = parsed
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImagePlanFailed, err)
	}
	return plan, nil
}

// parseImagePlan срезает маркдаун-ограждения и парсит строгий JSON плана.
func parseImagePlan(raw string) (*SDXLImagePlan, error) {
	cleaned := stripCodeFences(raw)

	var plan SDXLImagePlan
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidResponse, err)
	}
	return &plan, nil
}

// stripCodeFences убирает обертку ```json ... ``` вокруг ответа модели.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		// Срезаем первую строку (``` или ```json)
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// AssembleFinalPrompt детерминированно собирает позитивный и негативный промпты
// из плана и визуального описания персонажа. Чистая функция без скрытой случайности.
func AssembleFinalPrompt(plan *SDXLImagePlan, personaVisualPrompt string) (string, string) {
	parts := make([]string, 0, 32)
	for _, list := range [][]string{
		plan.Composition,
		plan.Action,
		plan.Clothing,
		plan.Atmosphere,
		plan.Expression,
		plan.Metadata,
	} {
		for _, tag := range list {
			if tag = strings.TrimSpace(tag); tag != "" {
				parts = append(parts, tag)
			}
		}
	}

	if v := strings.TrimSpace(personaVisualPrompt); v != "" {
		parts = append(parts, v)
	}
	parts = append(parts, qualitySuffix)

	return strings.Join(parts, ", "), negativePromptBase
}

// buildMessages собирает контекст для вызова LLM.
func (e *ImagePromptEngineer) buildMessages(in PromptEngineerInput) []ai.Message {
	var b strings.Builder

	b.WriteString("Scene state:\n")
	b.WriteString(in.State.Serialize())
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s's reply (ground truth for the scene): %s\n\n", in.PersonaName, in.DialogueReply))
	b.WriteString(fmt.Sprintf("User message (wishes, not facts): %s\n\n", in.UserMessage))
	b.WriteString(fmt.Sprintf("Character appearance: %s", in.PersonaPrompt))

	return []ai.Message{
		{Role: ai.RoleSystem, Content: promptEngineerSystemPrompt},
		{Role: ai.RoleUser, Content: b.String()},
	}
}
