package deployment

import (
	"context"

	"github.com/stretchr/testify/mock"

	"agentbackend/models"
)

// MockDeploymentUseCase is a mock implementation of the DeploymentUseCase
type MockDeploymentUseCase struct {
	mock.Mock
}

func (m *MockDeploymentUseCase) Begin(
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

func (m *MockDeploymentUseCase) Stop(
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

func (m *MockDeploymentUseCase) OnCallback(
	ctx context.Context,
	agentID string,
	ready bool,
	failureReason string,
) error {
	args := m.Called(ctx, agentID, ready, failureReason)
	return args.Error(0)
}

func (m *MockDeploymentUseCase) ReconcileRunningDeployments(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
