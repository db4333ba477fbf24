package lifecycle

import (
	"context"

	"github.com/stretchr/testify/mock"

	"agentbackend/models"
)

// MockLifecycleUseCase is a mock implementation of the LifecycleUseCase
type MockLifecycleUseCase struct {
	mock.Mock
}

func (m *MockLifecycleUseCase) GetAgent(
	ctx context.Context,
	user *models.User,
	agentID string,
) (*models.Agent, error) {
	args := m.Called(ctx, user, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}

func (m *MockLifecycleUseCase) ListAgents(
	ctx context.Context,
	user *models.User,
) ([]*models.Agent, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Agent), args.Error(1)
}

func (m *MockLifecycleUseCase) GetStatusHistory(
	ctx context.Context,
	user *models.User,
	agentID string,
) ([]*models.AgentStatusEvent, error) {
	args := m.Called(ctx, user, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AgentStatusEvent), args.Error(1)
}

func (m *MockLifecycleUseCase) DeleteAgent(
	ctx context.Context,
	user *models.User,
	agentID string,
) (*models.Agent, error) {
	args := m.Called(ctx, user, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Agent), args.Error(1)
}
