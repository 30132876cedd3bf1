package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ErrAIGenerationFailed - ошибка при генерации текста AI после исчерпания retry.
// Этот слой НЕ содержит доменных fallback'ов: деградацию определяет каждый brain сам.
var ErrAIGenerationFailed = errors.New("ошибка генерации текста AI")

// modelPricing - цена за 1M входных/выходных токенов в USD.
type modelPricing struct {
	InputUSD  float64
	OutputUSD float64
}

// Таблица цен по моделям. Для неизвестных моделей используется defaultPricing.
var (
	pricingTable = map[string]modelPricing{
		"gpt-4o":      {InputUSD: 2.5, OutputUSD: 10.0},
		"gpt-4o-mini": {InputUSD: 0.15, OutputUSD: 0.6},
		"deepseek/deepseek-chat-v3-0324": {InputUSD: 0.27, OutputUSD: 1.1},
	}
	defaultPricing = modelPricing{InputUSD: 0.1, OutputUSD: 0.4}
)

// Роли сообщений в запросе к LLM.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message - одно сообщение в контексте запроса к LLM.
type Message struct {
	Role    string
	Content string
}

// GenerationParams - параметры сэмплирования для одного вызова.
type GenerationParams struct {
	Model            string // если пусто, используется модель по умолчанию из конфига
	Temperature      float32
	MaxTokens        int
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
}

// UsageInfo содержит информацию об использовании токенов и стоимости.
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	EstimatedCostUSD float64
}

// TextGenerator интерфейс для взаимодействия с AI API.
// callerID - идентификатор вызывающей стороны для учета стоимости;
// при пустом значении метрики стоимости не эмитятся.
type TextGenerator interface {
	GenerateText(ctx context.Context, callerID string, messages []Message, params GenerationParams) (string, UsageInfo, error)
}

// Config содержит конфигурацию для клиента нейросети.
type Config struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration // таймаут одного вызова API
	MaxRetries   int
	RetryBackoff time.Duration // базовая задержка линейного backoff (умножается на номер попытки)
}

// Compile-time check
var _ TextGenerator = (*Client)(nil)

// Client - реализация TextGenerator поверх go-openai.
// Владеет транспортными retry (сеть/5xx/таймаут/пустой ответ) и учетом стоимости.
type Client struct {
	client       *openai.Client
	defaultModel string
	timeout      time.Duration
	maxRetries   int
	retryBackoff time.Duration
	logger       *zap.Logger
}

// New создает новый экземпляр клиента нейросети.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("не указан API ключ для LLM провайдера")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 1500 * time.Millisecond
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:       openai.NewClientWithConfig(clientConfig),
		defaultModel: cfg.DefaultModel,
		timeout:      cfg.Timeout,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		logger:       logger.Named("AIClient"),
	}, nil
}

// calculateCost рассчитывает оценочную стоимость запроса на основе токенов.
func calculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, ok := pricingTable[model]
	if !ok {
		pricing = defaultPricing
	}
	inputCost := float64(promptTokens) * pricing.InputUSD / 1_000_000.0
	outputCost := float64(completionTokens) * pricing.OutputUSD / 1_000_000.0
	return inputCost + outputCost
}

// estimateTokens оценивает количество токенов через tiktoken, когда API
// не вернул usage-блок. Для неизвестных моделей используется cl100k_base.
func estimateTokens(model string, texts ...string) int {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0
		}
	}
	total := 0
	for _, t := range texts {
		total += len(tke.Encode(t, nil, nil))
	}
	return total
}

// GenerateText выполняет один логический вызов LLM с транспортными retry.
// На исчерпании попыток возвращает ошибку, оборачивающую ErrAIGenerationFailed
// и исходную причину.
func (c *Client) GenerateText(ctx context.Context, callerID string, messages []Message, params GenerationParams) (string, UsageInfo, error) {
	usageInfo := UsageInfo{}

	if len(messages) == 0 {
		return "", usageInfo, fmt.Errorf("%w: пустой список сообщений", ErrAIGenerationFailed)
	}

	model := params.Model
	if model == "" {
		model = c.defaultModel
	}

	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:            model,
		Messages:         chatMessages,
		Temperature:      params.Temperature,
		MaxTokens:        params.MaxTokens,
		TopP:             params.TopP,
		FrequencyPenalty: params.FrequencyPenalty,
		PresencePenalty:  params.PresencePenalty,
	}

	log := c.logger.With(zap.String("model", model), zap.String("callerID", callerID))

	var lastErr error
	attempts := 0
	for attempts < c.maxRetries {
		attempts++

		startTime := time.Now()
		resp, err := c.doRequest(ctx, req)
		duration := time.Since(startTime)

		if err != nil {
			lastErr = err
			log.Warn("Ошибка при вызове CreateChatCompletion",
				zap.Int("attempt", attempts), zap.Duration("duration", duration), zap.Error(err))
			c.observe(model, callerID, "error")
			if attempts >= c.maxRetries {
				break
			}
			// Линейный backoff: base * номер попытки
			if !sleepCtx(ctx, time.Duration(attempts)*c.retryBackoff) {
				return "", usageInfo, fmt.Errorf("%w: %v", ErrAIGenerationFailed, ctx.Err())
			}
			continue
		}

		if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
			lastErr = errors.New("пустой ответ от API: не получены варианты")
			log.Warn("Пустой ответ от AI", zap.Int("attempt", attempts))
			c.observe(model, callerID, "error_empty_response")
			if attempts >= c.maxRetries {
				break
			}
			if !sleepCtx(ctx, time.Duration(attempts)*c.retryBackoff) {
				return "", usageInfo, fmt.Errorf("%w: %v", ErrAIGenerationFailed, ctx.Err())
			}
			continue
		}

		generatedText := resp.Choices[0].Message.Content

		c.observe(model, callerID, "success")
		aiRequestDuration.With(prometheus.Labels{"model": model, "caller_id": callerID}).Observe(duration.Seconds())

		// Учет токенов: предпочитаем usage-блок API, иначе оцениваем через tiktoken
		promptTokens := resp.Usage.PromptTokens
		completionTokens := resp.Usage.CompletionTokens
		if resp.Usage.TotalTokens == 0 {
			promptText := make([]string, 0, len(messages))
			for _, m := range messages {
				promptText = append(promptText, m.Content)
			}
			promptTokens = estimateTokens(model, promptText...)
			completionTokens = estimateTokens(model, generatedText)
		}

		usageInfo.PromptTokens = promptTokens
		usageInfo.CompletionTokens = completionTokens
		usageInfo.TotalTokens = promptTokens + completionTokens
		usageInfo.EstimatedCostUSD = calculateCost(model, promptTokens, completionTokens)

		if callerID != "" {
			aiPromptTokens.With(prometheus.Labels{"model": model, "caller_id": callerID}).Observe(float64(promptTokens))
			aiCompletionTokens.With(prometheus.Labels{"model": model, "caller_id": callerID}).Observe(float64(completionTokens))
			if usageInfo.EstimatedCostUSD > 0 {
				aiEstimatedCostUSD.With(prometheus.Labels{"model": model, "caller_id": callerID}).Add(usageInfo.EstimatedCostUSD)
			}
		}

		log.Debug("Ответ от AI API получен",
			zap.Int("attempt", attempts),
			zap.Duration("duration", duration),
			zap.Int("responseLen", len(generatedText)),
			zap.Int("totalTokens", usageInfo.TotalTokens))

		return strings.TrimSpace(generatedText), usageInfo, nil
	}

	return "", usageInfo, fmt.Errorf("%w после %d попыток: %v", ErrAIGenerationFailed, attempts, lastErr)
}

// doRequest выполняет один HTTP вызов с собственным таймаутом.
// Превышение таймаута - это retryable ошибка, а не отдельный путь отмены.
func (c *Client) doRequest(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.client.CreateChatCompletion(callCtx, req)
}

// observe инкрементирует счетчик запросов, если указан callerID.
func (c *Client) observe(model, callerID, status string) {
	if callerID == "" {
		return
	}
	aiRequestsTotal.With(prometheus.Labels{"model": model, "status": status, "caller_id": callerID}).Inc()
}

// sleepCtx ждет d или отмены контекста. Возвращает false, если контекст отменен.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
