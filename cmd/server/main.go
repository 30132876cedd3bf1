package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"companion-server/internal/ai"
	"companion-server/internal/brains"
	"companion-server/internal/cache"
	"companion-server/internal/config"
	"companion-server/internal/interfaces"
	appLogger "companion-server/internal/logger"
	"companion-server/internal/memory"
	"companion-server/internal/messaging"
	"companion-server/internal/orchestrator"
	"companion-server/internal/repository"
	"companion-server/internal/telegram"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Companion Server...")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger, err := appLogger.New(appLogger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer logger.Sync()
	logger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	defaultPersonaID, err := uuid.Parse(cfg.DefaultPersonaID)
	if err != nil {
		logger.Fatal("DEFAULT_PERSONA_ID не является валидным UUID", zap.Error(err))
	}

	// Подключение к PostgreSQL
	dbPool, err := setupDatabase(cfg)
	if err != nil {
		logger.Fatal("Не удалось подключиться к БД", zap.Error(err))
	}
	defer dbPool.Close()
	logger.Info("Успешное подключение к PostgreSQL")

	// Подключение к Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	defer redisClient.Close()
	{
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			cancel()
			logger.Fatal("Не удалось подключиться к Redis", zap.Error(err))
		}
		cancel()
	}
	logger.Info("Успешное подключение к Redis")

	// Подключение к RabbitMQ
	rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
	}
	defer rabbitConn.Close()
	logger.Info("Успешное подключение к RabbitMQ")

	imagePublisher, err := messaging.NewRabbitMQPublisher(rabbitConn, cfg.ImageTaskQueue, logger)
	if err != nil {
		logger.Fatal("Не удалось создать паблишер задач изображений", zap.Error(err))
	}
	defer imagePublisher.Close()

	// Клиент LLM
	aiClient, err := ai.New(ai.Config{
		APIKey:       cfg.AIAPIKey,
		BaseURL:      cfg.AIBaseURL,
		DefaultModel: cfg.AIModel,
		Timeout:      cfg.AITimeout,
		MaxRetries:   cfg.AIMaxRetries,
		RetryBackoff: cfg.AIRetryDelay,
	}, logger)
	if err != nil {
		logger.Fatal("Не удалось создать AI клиент", zap.Error(err))
	}

	// Репозитории
	chatRepo := repository.NewPgChatRepository(logger)
	messageRepo := repository.NewPgMessageRepository(logger)
	personaRepo := repository.NewPgPersonaRepository(logger)
	imageJobRepo := repository.NewPgImageJobRepository(logger)
	txRunner := &repository.PoolTxRunner{Pool: dbPool}

	// Кэш персонажей с прогревом на старте
	personaCache := cache.NewPersonaCache(redisClient, personaRepo, dbPool, cfg.PersonaCacheTTL, logger)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := personaCache.Reload(ctx); err != nil {
			logger.Warn("Не удалось прогреть кэш персонажей", zap.Error(err))
		}
		cancel()
	}

	// Brains
	stateResolver := brains.NewStateResolver(aiClient, brains.StateResolverConfig{Model: cfg.AIModel}, logger)
	dialogue := brains.NewDialogueSpecialist(aiClient, brains.DialogueConfig{Model: cfg.AIModel}, logger)
	imageDecider := brains.NewImageDecisionSpecialist(aiClient, brains.ImageDecisionConfig{Model: cfg.AIModel}, logger)
	promptEngineer := brains.NewImagePromptEngineer(aiClient, brains.PromptEngineerConfig{Model: cfg.AIModel}, logger)
	memoryService := memory.NewService(aiClient, dbPool, chatRepo, messageRepo, memory.Config{Model: cfg.AIModel}, logger)

	// Telegram
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatal("Не удалось создать Telegram Bot API клиент", zap.Error(err))
	}
	sender := telegram.NewSender(botAPI, logger)

	// Оркестратор
	tasks := orchestrator.NewTaskRunner(cfg.TaskTimeout, logger)
	pipeline := orchestrator.NewPipeline(
		dbPool, txRunner,
		chatRepo, messageRepo, imageJobRepo, personaCache,
		stateResolver, dialogue, imageDecider, promptEngineer, memoryService,
		sender, imagePublisher, tasks,
		orchestrator.Config{
			HistoryLimit: cfg.HistoryLimit,
			ImageWidth:   cfg.ImageWidth,
			ImageHeight:  cfg.ImageHeight,
			ImageSteps:   cfg.ImageSteps,
		},
		logger,
	)

	bot := telegram.NewBot(botAPI, dbPool, chatRepo, messageRepo, pipeline, defaultPersonaID, logger)

	// Консьюмер результатов генерации изображений
	resultProcessor := messaging.NewImageResultProcessor(dbPool, imageJobRepo, chatRepo, sender, logger)
	resultConsumer := messaging.NewImageResultConsumer(rabbitConn, resultProcessor, cfg.ImageResultQueue, logger)
	go func() {
		if err := resultConsumer.StartConsuming(); err != nil {
			logger.Error("Консьюмер результатов генерации завершился с ошибкой", zap.Error(err))
		}
	}()

	botCtx, stopBot := context.WithCancel(context.Background())
	go bot.Run(botCtx)

	// Служебный HTTP сервер: health и метрики
	router := setupRouter(dbPool)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		logger.Info("HTTP сервер запущен", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Ошибка запуска HTTP сервера", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	stopBot()
	resultConsumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Ошибка при остановке HTTP сервера", zap.Error(err))
	}

	// Дожидаемся фоновых веток: недописанная память хуже медленной остановки
	tasks.Wait()

	log.Println("Companion Server успешно остановлен")
}

// setupRouter настраивает служебные эндпоинты.
func setupRouter(dbPool *pgxpool.Pool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := dbPool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}

// setupDatabase инициализирует и возвращает пул соединений с БД
func setupDatabase(cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("не удалось создать пул соединений: %w", err)
	}
	if err = dbPool.Ping(ctx); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("не удалось подключиться к БД (ping failed): %w", err)
	}
	return dbPool, nil
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}

// Compile-time check
var _ interfaces.DBTX = (*pgxpool.Pool)(nil)
