package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"companion-server/internal/ai"
)

// MockTextGenerator is a mock type for the ai.TextGenerator type
type MockTextGenerator struct {
	mock.Mock
}

// GenerateText provides a mock function with given fields: ctx, callerID, messages, params
func (_m *MockTextGenerator) GenerateText(ctx context.Context, callerID string, messages []ai.Message, params ai.GenerationParams) (string, ai.UsageInfo, error) {
	ret := _m.Called(ctx, callerID, messages, params)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string, []ai.Message, ai.GenerationParams) string); ok {
		r0 = rf(ctx, callerID, messages, params)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(string)
		}
	}

	var r1 ai.UsageInfo
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(ai.UsageInfo)
	}

	r2 := ret.Error(2)

	return r0, r1, r2
}

var _ ai.TextGenerator = (*MockTextGenerator)(nil)
