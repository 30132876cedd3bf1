package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"companion-server/internal/interfaces"
	"companion-server/internal/messaging"
	"companion-server/internal/models"
)

// MockMessageSender is a mock type for the interfaces.MessageSender type
type MockMessageSender struct {
	mock.Mock
}

func (_m *MockMessageSender) SendText(ctx context.Context, recipientID int64, text string) error {
	ret := _m.Called(ctx, recipientID, text)
	return ret.Error(0)
}

func (_m *MockMessageSender) SendPhoto(ctx context.Context, recipientID int64, photoURL string, caption string) error {
	ret := _m.Called(ctx, recipientID, photoURL, caption)
	return ret.Error(0)
}

var _ interfaces.MessageSender = (*MockMessageSender)(nil)

// MockPersonaProvider is a mock type for the interfaces.PersonaProvider type
type MockPersonaProvider struct {
	mock.Mock
}

func (_m *MockPersonaProvider) GetPersona(ctx context.Context, id uuid.UUID) (*models.Persona, error) {
	ret := _m.Called(ctx, id)

	var r0 *models.Persona
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*models.Persona)
	}
	return r0, ret.Error(1)
}

var _ interfaces.PersonaProvider = (*MockPersonaProvider)(nil)

// MockImageTaskPublisher is a mock type for the messaging.ImageTaskPublisher type
type MockImageTaskPublisher struct {
	mock.Mock
}

func (_m *MockImageTaskPublisher) PublishImageTask(ctx context.Context, payload messaging.ImageTaskPayload) error {
	ret := _m.Called(ctx, payload)
	return ret.Error(0)
}

var _ messaging.ImageTaskPublisher = (*MockImageTaskPublisher)(nil)

// TxRunnerStub выполняет функцию немедленно, без реальной транзакции.
// Репозитории в тестах замоканы, поэтому транзакционный querier не нужен.
type TxRunnerStub struct {
	DB interfaces.DBTX
}

func (s *TxRunnerStub) WithTx(ctx context.Context, fn func(tx interfaces.DBTX) error) error {
	return fn(s.DB)
}

var _ interfaces.TxRunner = (*TxRunnerStub)(nil)
