package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"companion-server/internal/interfaces"
	"companion-server/internal/models"
)

// MockChatRepository is a mock type for the interfaces.ChatRepository type
type MockChatRepository struct {
	mock.Mock
}

func (_m *MockChatRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Chat, error) {
	ret := _m.Called(ctx, querier, id)

	var r0 *models.Chat
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Chat)
	}
	return r0, ret.Error(1)
}

func (_m *MockChatRepository) GetByUserAndPersona(ctx context.Context, querier interfaces.DBTX, userID int64, personaID uuid.UUID) (*models.Chat, error) {
	ret := _m.Called(ctx, querier, userID, personaID)

	var r0 *models.Chat
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Chat)
	}
	return r0, ret.Error(1)
}

func (_m *MockChatRepository) Create(ctx context.Context, querier interfaces.DBTX, chat *models.Chat) error {
	ret := _m.Called(ctx, querier, chat)
	return ret.Error(0)
}

func (_m *MockChatRepository) TryAcquireProcessing(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (bool, error) {
	ret := _m.Called(ctx, querier, id)
	return ret.Bool(0), ret.Error(1)
}

func (_m *MockChatRepository) ReleaseProcessing(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) error {
	ret := _m.Called(ctx, querier, id)
	return ret.Error(0)
}

func (_m *MockChatRepository) UpdateAfterExchange(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, stateSnapshot string, userMessages int) error {
	ret := _m.Called(ctx, querier, id, stateSnapshot, userMessages)
	return ret.Error(0)
}

func (_m *MockChatRepository) UpdateMemory(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, memory string) error {
	ret := _m.Called(ctx, querier, id, memory)
	return ret.Error(0)
}

var _ interfaces.ChatRepository = (*MockChatRepository)(nil)

// MockMessageRepository is a mock type for the interfaces.MessageRepository type
type MockMessageRepository struct {
	mock.Mock
}

func (_m *MockMessageRepository) ListRecent(ctx context.Context, querier interfaces.DBTX, chatID uuid.UUID, limit int) ([]models.Message, error) {
	ret := _m.Called(ctx, querier, chatID, limit)

	var r0 []models.Message
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.Message)
	}
	return r0, ret.Error(1)
}

func (_m *MockMessageRepository) ListUnprocessed(ctx context.Context, querier interfaces.DBTX, chatID uuid.UUID) ([]models.Message, error) {
	ret := _m.Called(ctx, querier, chatID)

	var r0 []models.Message
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]models.Message)
	}
	return r0, ret.Error(1)
}

func (_m *MockMessageRepository) Create(ctx context.Context, querier interfaces.DBTX, msg *models.Message) error {
	ret := _m.Called(ctx, querier, msg)
	return ret.Error(0)
}

func (_m *MockMessageRepository) MarkProcessed(ctx context.Context, querier interfaces.DBTX, ids []uuid.UUID) error {
	ret := _m.Called(ctx, querier, ids)
	return ret.Error(0)
}

var _ interfaces.MessageRepository = (*MockMessageRepository)(nil)

// MockPersonaRepository is a mock type for the interfaces.PersonaRepository type
type MockPersonaRepository struct {
	mock.Mock
}

func (_m *MockPersonaRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id uuid.UUID) (*models.Persona, error) {
	ret := _m.Called(ctx, querier, id)

	var r0 *models.Persona
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Persona)
	}
	return r0, ret.Error(1)
}

func (_m *MockPersonaRepository) ListActive(ctx context.Context, querier interfaces.DBTX) ([]*models.Persona, error) {
	ret := _m.Called(ctx, querier)

	var r0 []*models.Persona
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]*models.Persona)
	}
	return r0, ret.Error(1)
}

var _ interfaces.PersonaRepository = (*MockPersonaRepository)(nil)

// MockImageJobRepository is a mock type for the interfaces.ImageJobRepository type
type MockImageJobRepository struct {
	mock.Mock
}

func (_m *MockImageJobRepository) Create(ctx context.Context, querier interfaces.DBTX, job *models.ImageJob) error {
	ret := _m.Called(ctx, querier, job)
	return ret.Error(0)
}

func (_m *MockImageJobRepository) UpdateResult(ctx context.Context, querier interfaces.DBTX, id uuid.UUID, status models.ImageJobStatus, resultURL *string) error {
	ret := _m.Called(ctx, querier, id, status, resultURL)
	return ret.Error(0)
}

var _ interfaces.ImageJobRepository = (*MockImageJobRepository)(nil)
