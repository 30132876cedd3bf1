package brains

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"companion-server/internal/ai"
	"companion-server/internal/models"
)

// imageDecisionSystemPrompt - правила решения "генерировать ли изображение".
// Ответ строго в форме "YES - причина" или "NO - причина".
const imageDecisionSystemPrompt = `You decide whether the companion chatbot should attach a generated image to its next reply.

Generate an image (YES) when:
- the scene location has changed,
- the user explicitly asks to see something ("show me", "send a photo", "what do you look like"),
- a significant physical action is happening,
- the companion's clothing has changed.

Skip the image (NO) when:
- the exchange is pure dialogue with no visual change,
- nothing new would be visible compared to the previous scene,
- the scene is repetitive.

Answer with EXACTLY one line: YES - <short reason> or NO - <short reason>.`

// defaultDecisionReason - причина, проставляемая при fallback-решении.
const defaultDecisionReason = "decision fallback: defaulting to image generation"

// ImageDecisionConfig - параметры Image Decision Specialist (Brain 4).
type ImageDecisionConfig struct {
	Model        string
	Temperature  float32
	MaxTokens    int
	MaxAttempts  int
	HistoryLimit int
}

// ImageDecisionInput - вход брейна решения.
type ImageDecisionInput struct {
	PrevStateRaw string // сериализация предыдущего состояния, может быть пустой
	UserMessage  string
	History      []models.Message
	PersonaName  string
	CallerID     string
}

// ImageDecisionSpecialist - Brain 4: решает, нужно ли изображение к этому обмену.
type ImageDecisionSpecialist struct {
	gen    ai.TextGenerator
	cfg    ImageDecisionConfig
	logger *zap.Logger
}

// NewImageDecisionSpecialist создает новый экземпляр ImageDecisionSpecialist.
func NewImageDecisionSpecialist(gen ai.TextGenerator, cfg ImageDecisionConfig, logger *zap.Logger) *ImageDecisionSpecialist {
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 5
	}
	return &ImageDecisionSpecialist{gen: gen, cfg: cfg, logger: logger.Named("ImageDecision")}
}

// ShouldGenerateImage возвращает (решение, причина). Никогда не возвращает ошибку:
// на любом неустранимом сбое решение по умолчанию - true. Пропущенное изображение
// хуже лишнего, поэтому fallback смещен в сторону генерации (в отличие от
// State Resolver, чей fallback смещен в сторону стабильности).
func (s *ImageDecisionSpecialist) ShouldGenerateImage(ctx context.Context, in ImageDecisionInput) (bool, string) {
	log := s.logger.With(zap.String("persona", in.PersonaName))

	var decision bool
	var reason string

	err := (retryPolicy{attempts: s.cfg.MaxAttempts, delay: noDelay}).run(ctx, func(attempt int) error {
		raw, _, genErr := s.gen.GenerateText(ctx, in.CallerID, s.buildMessages(in), ai.GenerationParams{
			Model:       s.cfg.Model,
			Temperature: s.cfg.Temperature,
			MaxTokens:   s.cfg.MaxTokens,
		})
		if genErr != nil {
			return genErr
		}

		d, r, parseErr := parseDecision(raw)
		if parseErr != nil {
			log.Warn("Image decision response has unexpected format",
				zap.Int("attempt", attempt), zap.String("response", truncateForLog(raw, 120)))
			return parseErr
		}
		decision, reason = d, r
		return nil
	})

	if err != nil {
		log.Warn("Image decision exhausted retries, defaulting to YES", zap.Error(err))
		return true, defaultDecisionReason
	}

	log.Debug("Image decision made", zap.Bool("generate", decision), zap.String("reason", reason))
	return decision, reason
}

// parseDecision разбирает строгий формат "YES - reason" / "NO - reason".
func parseDecision(raw string) (bool, string, error) {
	line := strings.TrimSpace(raw)
	// Берем первую непустую строку: модель иногда добавляет пояснения ниже
	if idx := strings.Index(line, "\n"); idx >= 0 {
		line = strings.TrimSpace(line[:idx])
	}

	upper := strings.ToUpper(line)
	var decision bool
	var rest string
	switch {
	case strings.HasPrefix(upper, "YES"):
		decision = true
		rest = line[3:]
	case strings.HasPrefix(upper, "NO"):
		decision = false
		rest = line[2:]
	default:
		return false, "", fmt.Errorf("%w: expected YES/NO prefix, got %q", errInvalidResponse, line)
	}

	reason := strings.TrimSpace(strings.TrimLeft(rest, " -:"))
	if reason == "" {
		return false, "", fmt.Errorf("%w: missing reason in %q", errInvalidResponse, line)
	}
	return decision, reason, nil
}

// buildMessages собирает контекст для вызова LLM.
func (s *ImageDecisionSpecialist) buildMessages(in ImageDecisionInput) []ai.Message {
	var b strings.Builder

	if in.PrevStateRaw != "" {
		b.WriteString("Previous scene state:\n")
		b.WriteString(in.PrevStateRaw)
		b.WriteString("\n\n")
	}

	if history := formatHistory(in.History, s.cfg.HistoryLimit, in.PersonaName); history != "" {
		b.WriteString("Recent dialogue:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}

	b.WriteString("New user message: ")
	b.WriteString(in.UserMessage)

	return []ai.Message{
		{Role: ai.RoleSystem, Content: imageDecisionSystemPrompt},
		{Role: ai.RoleUser, Content: b.String()},
	}
}

// truncateForLog обрезает строку для логирования.
func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
