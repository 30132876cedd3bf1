package messaging_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"companion-server/internal/messaging"
	"companion-server/internal/mocks"
	"companion-server/internal/models"
)

type processorFixture struct {
	imageJobs *mocks.MockImageJobRepository
	chats     *mocks.MockChatRepository
	sender    *mocks.MockMessageSender
	processor *messaging.ImageResultProcessor
}

func newProcessorFixture() *processorFixture {
	f := &processorFixture{
		imageJobs: new(mocks.MockImageJobRepository),
		chats:     new(mocks.MockChatRepository),
		sender:    new(mocks.MockMessageSender),
	}
	f.processor = messaging.NewImageResultProcessor(nil, f.imageJobs, f.chats, f.sender, zap.NewNop())
	return f
}

func marshalResult(t *testing.T, payload messaging.ImageResultPayload) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

func TestImageResultProcessor_Process(t *testing.T) {
	jobID := uuid.New()
	chatID := uuid.New()
	imageURL := "https://cdn.example.com/images/render.png"

	t.Run("Completed result is stored and delivered to the user", func(t *testing.T) {
		f := newProcessorFixture()
		chat := &models.Chat{ID: chatID, UserID: 42}

		f.imageJobs.On("UpdateResult", mock.Anything, nil, jobID, models.ImageJobStatusCompleted, &imageURL).Return(nil)
		f.chats.On("GetByID", mock.Anything, nil, chatID).Return(chat, nil)
		f.sender.On("SendPhoto", mock.Anything, int64(42), imageURL, "").Return(nil)

		body := marshalResult(t, messaging.ImageResultPayload{
			TaskID:     uuid.NewString(),
			ImageJobID: jobID.String(),
			ChatID:     chatID.String(),
			Status:     "completed",
			ImageURL:   imageURL,
		})

		err := f.processor.Process(context.Background(), body)

		require.NoError(t, err)
		f.imageJobs.AssertExpectations(t)
		f.sender.AssertExpectations(t)
	})

	t.Run("Failed result marks the job failed without delivery", func(t *testing.T) {
		f := newProcessorFixture()

		f.imageJobs.On("UpdateResult", mock.Anything, nil, jobID, models.ImageJobStatusFailed, (*string)(nil)).Return(nil)

		body := marshalResult(t, messaging.ImageResultPayload{
			ImageJobID: jobID.String(),
			ChatID:     chatID.String(),
			Status:     "failed",
			Error:      "CUDA out of memory",
		})

		err := f.processor.Process(context.Background(), body)

		require.NoError(t, err)
		f.imageJobs.AssertExpectations(t)
		f.sender.AssertNotCalled(t, "SendPhoto", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Completed result without image_url is rejected", func(t *testing.T) {
		f := newProcessorFixture()

		body := marshalResult(t, messaging.ImageResultPayload{
			ImageJobID: jobID.String(),
			ChatID:     chatID.String(),
			Status:     "completed",
		})

		err := f.processor.Process(context.Background(), body)

		assert.Error(t, err)
		f.imageJobs.AssertNotCalled(t, "UpdateResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Malformed payload is rejected", func(t *testing.T) {
		f := newProcessorFixture()

		err := f.processor.Process(context.Background(), []byte("not json at all"))

		assert.Error(t, err)
	})

	t.Run("Invalid image_job_id is rejected", func(t *testing.T) {
		f := newProcessorFixture()

		body := marshalResult(t, messaging.ImageResultPayload{
			ImageJobID: "not-a-uuid",
			ChatID:     chatID.String(),
			Status:     "completed",
			ImageURL:   imageURL,
		})

		err := f.processor.Process(context.Background(), body)

		assert.Error(t, err)
		f.imageJobs.AssertNotCalled(t, "UpdateResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unknown status is rejected", func(t *testing.T) {
		f := newProcessorFixture()

		body := marshalResult(t, messaging.ImageResultPayload{
			ImageJobID: jobID.String(),
			ChatID:     chatID.String(),
			Status:     "rendering",
		})

		err := f.processor.Process(context.Background(), body)

		assert.Error(t, err)
	})

	t.Run("Delivery failure surfaces after the result is stored", func(t *testing.T) {
		f := newProcessorFixture()
		chat := &models.Chat{ID: chatID, UserID: 42}

		f.imageJobs.On("UpdateResult", mock.Anything, nil, jobID, models.ImageJobStatusCompleted, &imageURL).Return(nil)
		f.chats.On("GetByID", mock.Anything, nil, chatID).Return(chat, nil)
		f.sender.On("SendPhoto", mock.Anything, int64(42), imageURL, "").Return(assert.AnError)

		body := marshalResult(t, messaging.ImageResultPayload{
			ImageJobID: jobID.String(),
			ChatID:     chatID.String(),
			Status:     "completed",
			ImageURL:   imageURL,
		})

		err := f.processor.Process(context.Background(), body)

		assert.Error(t, err)
		f.imageJobs.AssertExpectations(t)
	})
}
