package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"companion-server/internal/interfaces"
	"companion-server/internal/models"
)

const (
	personaFields = `id, name, prompt, visual_prompt, status, created_at, updated_at`

	getPersonaByIDQuery = `SELECT ` + personaFields + ` FROM personas WHERE id = $1`

	listActivePersonasQuery = `
        SELECT ` + personaFields + `
        FROM personas
        WHERE status = 'active'
        ORDER BY name
    `
)

// Compile-time check to ensure pgPersonaRepository implements the interface
var _ interfaces.PersonaRepository = (*pgPersonaRepository)(nil)

// pgPersonaRepository is the PostgreSQL implementation of PersonaRepository
type pgPersonaRepository struct {
	logger *zap.Logger
}

// NewPgPersonaRepository создает новый экземпляр репозитория персонажей.
func NewPgPersonaRepository(logger *zap.Logger) interfaces.PersonaRepository {
	return &pgPersonaRepository{logger: logger.Named("PersonaRepo")}
}

// GetByID возвращает персонажа по id.
func (r *pgPersonaRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Persona, error) {
	var persona models.Persona
	err := pgxscan.Get(ctx, querier, &persona, getPersonaByIDQuery, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		r.logger.Error("Error getting persona by ID", zap.String("personaID", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get persona %s: %w", id, err)
	}
	return &persona, nil
}

// ListActive возвращает всех активных персонажей.
func (r *pgPersonaRepository) ListActive(ctx context.Context, querier interfaces.DBTX) ([]*models.Persona, error) {
	var personas []*models.Persona
	err := pgxscan.Select(ctx, querier, &personas, listActivePersonasQuery)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return []*models.Persona{}, nil
		}
		r.logger.Error("Error listing active personas", zap.Error(err))
		return nil, fmt.Errorf("failed to list active personas: %w", err)
	}
	return personas, nil
}
