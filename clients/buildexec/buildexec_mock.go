package buildexec

import (
	"context"

	"github.com/stretchr/testify/mock"

	"agentbackend/clients"
)

// MockBuildExecutorClient is a mock implementation of the BuildExecutorClient interface
type MockBuildExecutorClient struct {
	mock.Mock
}

func (m *MockBuildExecutorClient) SubmitBuild(ctx context.Context, spec clients.BuildSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockBuildExecutorClient) CancelBuild(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}
