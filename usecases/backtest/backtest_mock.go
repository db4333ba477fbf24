package backtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"agentbackend/models"
)

// MockBacktestUseCase is a mock implementation of the BacktestUseCase
type MockBacktestUseCase struct {
	mock.Mock
}

func (m *MockBacktestUseCase) Begin(ctx context.Context, agentID string) error {
	args := m.Called(ctx, agentID)
	return args.Error(0)
}

func (m *MockBacktestUseCase) Retry(ctx context.Context, user *models.User, agentID string) error {
	args := m.Called(ctx, user, agentID)
	return args.Error(0)
}

func (m *MockBacktestUseCase) Cancel(ctx context.Context, user *models.User, agentID string) error {
	args := m.Called(ctx, user, agentID)
	return args.Error(0)
}

func (m *MockBacktestUseCase) OnCallback(
	ctx context.Context,
	jobID string,
	succeeded bool,
	artifactRef, failureReason string,
) error {
	args := m.Called(ctx, jobID, succeeded, artifactRef, failureReason)
	return args.Error(0)
}
