package models

import (
	"time"

	"github.com/google/uuid"
)

// ImageJobStatus - статус задачи генерации изображения.
type ImageJobStatus string

const (
	ImageJobStatusQueued    ImageJobStatus = "queued"
	ImageJobStatusRunning   ImageJobStatus = "running"
	ImageJobStatusCompleted ImageJobStatus = "completed"
	ImageJobStatusFailed    ImageJobStatus = "failed"
)

// ImageJob - задача генерации изображения. Создается фоновой веткой пайплайна;
// статус и ResultURL обновляет обработчик webhook-результатов.
type ImageJob struct {
	ID             uuid.UUID
	ChatID         uuid.UUID
	PersonaID      uuid.UUID
	UserID         int64
	Prompt         string
	NegativePrompt string
	Status         ImageJobStatus
	ResultURL      *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
