package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"companion-server/internal/interfaces"
	"companion-server/internal/models"
)

const (
	insertImageJobQuery = `
        INSERT INTO image_jobs
            (id, chat_id, persona_id, user_id, prompt, negative_prompt, status, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
    `

	updateImageJobResultQuery = `
        UPDATE image_jobs
        SET status = $2, result_url = $3, updated_at = NOW()
        WHERE id = $1
    `
)

// Compile-time check to ensure pgImageJobRepository implements the interface
var _ interfaces.ImageJobRepository = (*pgImageJobRepository)(nil)

// pgImageJobRepository is the PostgreSQL implementation of ImageJobRepository
type pgImageJobRepository struct {
	logger *zap.Logger
}

// NewPgImageJobRepository создает новый экземпляр репозитория задач генерации изображений.
func NewPgImageJobRepository(logger *zap.Logger) interfaces.ImageJobRepository {
	return &pgImageJobRepository{logger: logger.Named("ImageJobRepo")}
}

// Create создает запись задачи генерации.
func (r *pgImageJobRepository) Create(ctx context.Context, querier interfaces.DBTX, job *models.ImageJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.ImageJobStatusQueued
	}
	_, err := querier.Exec(ctx, insertImageJobQuery,
		job.ID, job.ChatID, job.PersonaID, job.UserID, job.Prompt, job.NegativePrompt, job.Status)
	if err != nil {
		r.logger.Error("Error creating image job", zap.String("jobID", job.ID.String()), zap.Error(err))
		return fmt.Errorf("failed to create image job: %w", err)
	}
	return nil
}

// UpdateResult обновляет статус и результат задачи.
func (r *pgImageJobRepository) UpdateResult(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, status models.ImageJobStatus, resultURL *string) error {
	tag, err := querier.Exec(ctx, updateImageJobResultQuery, id, status, resultURL)
	if err != nil {
		r.logger.Error("Error updating image job result", zap.String("jobID", id.String()), zap.Error(err))
		return fmt.Errorf("failed to update image job %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
