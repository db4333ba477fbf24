package agents

import (
	"context"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"agentbackend/models"
)

// MockAgentsService is a mock implementation of the AgentsService interface
type MockAgentsService struct {
	mock.Mock
}

func (m *MockAgentsService) CreateAgent(
	ctx context.Context,
	ownerID, name, codeHash, codeLocation string,
) (*models.Agent, bool, error) {
	args := m.Called(ctx, ownerID, name, codeHash, codeLocation)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Agent), args.Bool(1), args.Error(2)
}

func (m *MockAgentsService) GetAgentByID(
	ctx context.Context,
	id string,
) (mo.Option[*models.Agent], error) {
	args := m.Called(ctx, id)
	return args.Get(0).(mo.Option[*models.Agent]), args.Error(1)
}

func (m *MockAgentsService) GetAgentByOwnerAndCodeHash(
	ctx context.Context,
	ownerID, codeHash string,
) (mo.Option[*models.Agent], error) {
	args := m.Called(ctx, ownerID, codeHash)
	return args.Get(0).(mo.Option[*models.Agent]), args.Error(1)
}

func (m *MockAgentsService) GetAgentByBuildJobID(
	ctx context.Context,
	buildJobID string,
) (mo.Option[*models.Agent], error) {
	args := m.Called(ctx, buildJobID)
	return args.Get(0).(mo.Option[*models.Agent]), args.Error(1)
}

func (m *MockAgentsService) ListAgentsByOwner(
	ctx context.Context,
	ownerID string,
) ([]*models.Agent, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Agent), args.Error(1)
}

func (m *MockAgentsService) ListAgentsByStatus(
	ctx context.Context,
	status models.AgentStatus,
) ([]*models.Agent, error) {
	args := m.Called(ctx, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Agent), args.Error(1)
}

func (m *MockAgentsService) TransitionAgent(
	ctx context.Context,
	agentID string,
	from, to models.AgentStatus,
	cause string,
) (mo.Option[*models.Agent], error) {
	args := m.Called(ctx, agentID, from, to, cause)
	return args.Get(0).(mo.Option[*models.Agent]), args.Error(1)
}

func (m *MockAgentsService) TransitionAgentWithDeploymentCap(
	ctx context.Context,
	agentID, ownerID string,
	from, to models.AgentStatus,
	cause string,
	maxLiveDeployments int,
) (mo.Option[*models.Agent], error) {
	args := m.Called(ctx, agentID, ownerID, from, to, cause, maxLiveDeployments)
	return args.Get(0).(mo.Option[*models.Agent]), args.Error(1)
}

func (m *MockAgentsService) RecordAgentEvent(
	ctx context.Context,
	agentID string,
	status models.AgentStatus,
	cause string,
) error {
	args := m.Called(ctx, agentID, status, cause)
	return args.Error(0)
}

func (m *MockAgentsService) ListStatusHistory(
	ctx context.Context,
	agentID string,
) ([]*models.AgentStatusEvent, error) {
	args := m.Called(ctx, agentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AgentStatusEvent), args.Error(1)
}

func (m *MockAgentsService) SetBuildRef(ctx context.Context, agentID, buildJobID string) error {
	args := m.Called(ctx, agentID, buildJobID)
	return args.Error(0)
}

func (m *MockAgentsService) SetBuildResult(ctx context.Context, agentID, artifactRef string) error {
	args := m.Called(ctx, agentID, artifactRef)
	return args.Error(0)
}

func (m *MockAgentsService) SetBrokerageAccount(
	ctx context.Context,
	agentID, accountID, relationshipID string,
) (bool, error) {
	args := m.Called(ctx, agentID, accountID, relationshipID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAgentsService) SetFundedAmount(
	ctx context.Context,
	agentID string,
	amount decimal.Decimal,
) error {
	args := m.Called(ctx, agentID, amount)
	return args.Error(0)
}

func (m *MockAgentsService) MarkFunded(ctx context.Context, agentID string) (bool, error) {
	args := m.Called(ctx, agentID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAgentsService) SetDeploymentRef(
	ctx context.Context,
	agentID, handle string,
	replicas int,
) error {
	args := m.Called(ctx, agentID, handle, replicas)
	return args.Error(0)
}

func (m *MockAgentsService) ClearDeploymentRef(ctx context.Context, agentID string) error {
	args := m.Called(ctx, agentID)
	return args.Error(0)
}
