package k8sdeploy

import (
	"context"

	"github.com/stretchr/testify/mock"

	"agentbackend/clients"
)

// MockDeploymentClient is a mock implementation of the DeploymentClient interface
type MockDeploymentClient struct {
	mock.Mock
}

func (m *MockDeploymentClient) Deploy(ctx context.Context, spec clients.WorkloadSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockDeploymentClient) Status(ctx context.Context, handle string) (clients.WorkloadStatus, error) {
	args := m.Called(ctx, handle)
	return args.Get(0).(clients.WorkloadStatus), args.Error(1)
}

func (m *MockDeploymentClient) Delete(ctx context.Context, handle string) error {
	args := m.Called(ctx, handle)
	return args.Error(0)
}
