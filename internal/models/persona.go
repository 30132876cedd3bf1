package models

import (
	"time"

	"github.com/google/uuid"
)

// PersonaStatus - статус персонажа.
type PersonaStatus string

const (
	PersonaStatusActive   PersonaStatus = "active"
	PersonaStatusDisabled PersonaStatus = "disabled"
)

// Persona - персонаж-компаньон. Prompt содержит тело системного промпта
// (характер, стиль речи), VisualPrompt - теги внешности для генерации изображений.
type Persona struct {
	ID           uuid.UUID
	Name         string
	Prompt       string
	VisualPrompt string
	Status       PersonaStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
