package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"companion-server/internal/interfaces"
	"companion-server/internal/models"
)

const personaKeyPrefix = "persona:"

var _ interfaces.PersonaProvider = (*PersonaCache)(nil)

// PersonaCache - read-through кэш персонажей поверх Redis.
// Персонажи читаются на каждом обмене и меняются редко, поэтому промах
// стоит одного запроса к БД, а попадание не трогает БД вовсе.
// Ошибки Redis деградируют до прямого чтения из БД, кэш не является
// точкой отказа.
type PersonaCache struct {
	redis  *redis.Client
	repo   interfaces.PersonaRepository
	db     interfaces.DBTX
	ttl    time.Duration
	logger *zap.Logger
}

// NewPersonaCache создает новый кэш персонажей.
func NewPersonaCache(
	redisClient *redis.Client,
	repo interfaces.PersonaRepository,
	db interfaces.DBTX,
	ttl time.Duration,
	logger *zap.Logger,
) *PersonaCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &PersonaCache{
		redis:  redisClient,
		repo:   repo,
		db:     db,
		ttl:    ttl,
		logger: logger.Named("PersonaCache"),
	}
}

// GetPersona возвращает персонажа из кэша либо из БД с записью в кэш.
func (c *PersonaCache) GetPersona(ctx context.Context, id uuid.UUID) (*models.Persona, error) {
	key := personaKeyPrefix + id.String()

	cached, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		var persona models.Persona
		if jsonErr := json.Unmarshal([]byte(cached), &persona); jsonErr == nil {
			return &persona, nil
		}
		// Нечитаемое значение выбрасывается и перечитывается из БД
		c.logger.Warn("Corrupted cache entry, evicting", zap.String("key", key))
		c.redis.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("Redis read failed, falling back to database", zap.Error(err))
	}

	persona, err := c.repo.GetByID(ctx, c.db, id)
	if err != nil {
		return nil, err
	}

	c.store(ctx, persona)
	return persona, nil
}

// Invalidate выбрасывает персонажа из кэша (после редактирования в админке).
func (c *PersonaCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	if err := c.redis.Del(ctx, personaKeyPrefix+id.String()).Err(); err != nil {
		return fmt.Errorf("failed to invalidate persona cache: %w", err)
	}
	return nil
}

// Reload прогревает кэш всеми активными персонажами. Вызывается на старте.
func (c *PersonaCache) Reload(ctx context.Context) error {
	personas, err := c.repo.ListActive(ctx, c.db)
	if err != nil {
		return fmt.Errorf("failed to load active personas: %w", err)
	}
	for _, persona := range personas {
		c.store(ctx, persona)
	}
	c.logger.Info("Persona cache warmed", zap.Int("count", len(personas)))
	return nil
}

// store пишет персонажа в кэш. Сбой записи не фатален.
func (c *PersonaCache) store(ctx context.Context, persona *models.Persona) {
	data, err := json.Marshal(persona)
	if err != nil {
		c.logger.Warn("Failed to marshal persona for cache", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, personaKeyPrefix+persona.ID.String(), data, c.ttl).Err(); err != nil {
		c.logger.Warn("Redis write failed", zap.Error(err))
	}
}
