package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"

	"companion-server/internal/utils"
)

// Config содержит конфигурацию Companion Server
type Config struct {
	// Настройки сервера
	Port        string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`

	// Настройки PostgreSQL
	DBHost        string        `envconfig:"DB_HOST" required:"true"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" required:"true"`
	DBName        string        `envconfig:"DB_NAME" required:"true"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	// Секретное поле БЕЗ envconfig тега
	DBPassword string

	// Настройки Redis
	RedisAddr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	PersonaCacheTTL time.Duration `envconfig:"PERSONA_CACHE_TTL" default:"10m"`

	// Настройки RabbitMQ
	RabbitMQURL      string `envconfig:"RABBITMQ_URL" required:"true"`
	ImageTaskQueue   string `envconfig:"IMAGE_TASK_QUEUE" default:"image_generation_tasks"`
	ImageResultQueue string `envconfig:"IMAGE_RESULT_QUEUE" default:"image_generation_results"`

	// Настройки LLM-провайдера
	AIBaseURL    string        `envconfig:"AI_BASE_URL" default:"https://api.deepseek.com/v1"`
	AIModel      string        `envconfig:"AI_MODEL" default:"deepseek-chat"`
	AITimeout    time.Duration `envconfig:"AI_TIMEOUT" default:"120s"`
	AIMaxRetries int           `envconfig:"AI_MAX_RETRIES" default:"3"`
	AIRetryDelay time.Duration `envconfig:"AI_RETRY_DELAY" default:"1500ms"`
	// Секретное поле БЕЗ envconfig тега
	AIAPIKey string

	// Настройки пайплайна
	HistoryLimit     int           `envconfig:"PIPELINE_HISTORY_LIMIT" default:"20"`
	TaskTimeout      time.Duration `envconfig:"BACKGROUND_TASK_TIMEOUT" default:"5m"`
	ImageWidth       int           `envconfig:"IMAGE_WIDTH" default:"832"`
	ImageHeight      int           `envconfig:"IMAGE_HEIGHT" default:"1216"`
	ImageSteps       int           `envconfig:"IMAGE_STEPS" default:"30"`
	DefaultPersonaID string        `envconfig:"DEFAULT_PERSONA_ID" required:"true"`

	// Секретное поле БЕЗ envconfig тега
	TelegramBotToken string
}

// GetDSN возвращает строку подключения (DSN) для PostgreSQL
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	// Загружаем НЕсекретные переменные
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации companion-server: %w", err)
	}

	// Загружаем ОБЯЗАТЕЛЬНЫЕ секреты
	var loadErr error
	cfg.DBPassword, loadErr = utils.ReadSecret("db_password")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.AIAPIKey, loadErr = utils.ReadSecret("ai_api_key")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.TelegramBotToken, loadErr = utils.ReadSecret("telegram_bot_token")
	if loadErr != nil {
		return nil, loadErr
	}

	log.Printf("Конфигурация Companion Server загружена (секреты из файлов):")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  DB DSN: postgres://%s:***@%s:%s/%s?sslmode=%s", cfg.DBUser, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)
	log.Printf("  Redis: %s (db %d)", cfg.RedisAddr, cfg.RedisDB)
	log.Printf("  RabbitMQ URL: %s", cfg.RabbitMQURL)
	log.Printf("  Image Task Queue: %s", cfg.ImageTaskQueue)
	log.Printf("  Image Result Queue: %s", cfg.ImageResultQueue)
	log.Printf("  AI Base URL: %s", cfg.AIBaseURL)
	log.Printf("  AI Model: %s", cfg.AIModel)
	log.Printf("  Default Persona: %s", cfg.DefaultPersonaID)
	log.Println("  AI API Key: [ЗАГРУЖЕН]")
	log.Println("  Telegram Bot Token: [ЗАГРУЖЕН]")

	return &cfg, nil
}
