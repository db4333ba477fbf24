package submission

import (
	"context"
	"fmt"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agentbackend/clients/codestore"
	"agentbackend/core"
	"agentbackend/models"
	"agentbackend/services/agents"
	"agentbackend/usecases/backtest"
)

func createTestUser() *models.User {
	return &models.User{
		ID:             "u_test123",
		AuthProvider:   "clerk",
		AuthProviderID: "clerk_user_123",
		Email:          "owner@example.com",
	}
}

func createTestAgent(id, ownerID string, status models.AgentStatus) *models.Agent {
	return &models.Agent{
		ID:           id,
		OwnerID:      ownerID,
		Name:         "sma cross",
		CodeHash:     HashCode([]byte(validStrategy)),
		CodeLocation: "agents/u_test123/abc/strategy.py",
		Status:       status,
		Visibility:   models.AgentVisibilityPrivate,
		FundingState: models.FundingStateNone,
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	user := createTestUser()
	code := []byte(validStrategy)
	codeHash := HashCode(code)

	t.Run("New submission creates and validates agent", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockStore := &codestore.MockCodeStoreClient{}
		mockBacktest := &backtest.MockBacktestUseCase{}

		created := createTestAgent("ag_new", user.ID, models.AgentStatusSubmitted)
		validated := createTestAgent("ag_new", user.ID, models.AgentStatusValidated)

		mockAgents.On("GetAgentByOwnerAndCodeHash", ctx, user.ID, codeHash).
			Return(mo.None[*models.Agent](), nil)
		mockStore.On("Put", ctx, fmt.Sprintf("agents/%s/%s/strategy.py", user.ID, codeHash), code).
			Return("loc://strategy.py", nil)
		mockAgents.On("CreateAgent", ctx, user.ID, "sma cross", codeHash, "loc://strategy.py").
			Return(created, true, nil)
		mockAgents.On("TransitionAgent", ctx, "ag_new",
			models.AgentStatusSubmitted, models.AgentStatusValidated, "static validation passed").
			Return(mo.Some(validated), nil)
		mockBacktest.On("Begin", ctx, "ag_new").Return(nil)

		useCase := NewSubmissionUseCase(mockAgents, mockStore, mockBacktest)
		agent, duplicate, err := useCase.Submit(ctx, user, "sma cross", code)

		require.NoError(t, err)
		assert.False(t, duplicate)
		assert.Equal(t, models.AgentStatusValidated, agent.Status)
		mockAgents.AssertExpectations(t)
		mockStore.AssertExpectations(t)
		mockBacktest.AssertExpectations(t)
	})

	t.Run("Identical resubmission returns existing agent", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockStore := &codestore.MockCodeStoreClient{}
		mockBacktest := &backtest.MockBacktestUseCase{}

		existing := createTestAgent("ag_existing", user.ID, models.AgentStatusTrading)
		mockAgents.On("GetAgentByOwnerAndCodeHash", ctx, user.ID, codeHash).
			Return(mo.Some(existing), nil)

		useCase := NewSubmissionUseCase(mockAgents, mockStore, mockBacktest)
		agent, duplicate, err := useCase.Submit(ctx, user, "sma cross", code)

		require.NoError(t, err)
		assert.True(t, duplicate)
		assert.Equal(t, "ag_existing", agent.ID)
		// No storage write, no creation, no backtest for a duplicate
		mockStore.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
		mockAgents.AssertNotCalled(t, "CreateAgent",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mockBacktest.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything)
		mockAgents.AssertExpectations(t)
	})

	t.Run("Concurrent identical submission loses race gracefully", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockStore := &codestore.MockCodeStoreClient{}
		mockBacktest := &backtest.MockBacktestUseCase{}

		existing := createTestAgent("ag_existing", user.ID, models.AgentStatusSubmitted)
		mockAgents.On("GetAgentByOwnerAndCodeHash", ctx, user.ID, codeHash).
			Return(mo.None[*models.Agent](), nil)
		mockStore.On("Put", ctx, mock.Anything, code).Return("loc://strategy.py", nil)
		mockAgents.On("CreateAgent", ctx, user.ID, "sma cross", codeHash, "loc://strategy.py").
			Return(existing, false, nil)

		useCase := NewSubmissionUseCase(mockAgents, mockStore, mockBacktest)
		agent, duplicate, err := useCase.Submit(ctx, user, "sma cross", code)

		require.NoError(t, err)
		assert.True(t, duplicate)
		assert.Equal(t, "ag_existing", agent.ID)
		mockBacktest.AssertNotCalled(t, "Begin", mock.Anything, mock.Anything)
	})

	t.Run("Invalid code rejected before any side effects", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockStore := &codestore.MockCodeStoreClient{}
		mockBacktest := &backtest.MockBacktestUseCase{}

		badCode := []byte("import subprocess\n" + validStrategy)
		mockAgents.On("GetAgentByOwnerAndCodeHash", ctx, user.ID, HashCode(badCode)).
			Return(mo.None[*models.Agent](), nil)

		useCase := NewSubmissionUseCase(mockAgents, mockStore, mockBacktest)
		agent, _, err := useCase.Submit(ctx, user, "sneaky", badCode)

		require.Error(t, err)
		var vErr *core.ValidationFailedError
		assert.ErrorAs(t, err, &vErr)
		assert.Nil(t, agent)
		mockStore.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
		mockAgents.AssertNotCalled(t, "CreateAgent",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Backtest kickoff failure does not fail the submit", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockStore := &codestore.MockCodeStoreClient{}
		mockBacktest := &backtest.MockBacktestUseCase{}

		created := createTestAgent("ag_new", user.ID, models.AgentStatusSubmitted)
		validated := createTestAgent("ag_new", user.ID, models.AgentStatusValidated)

		mockAgents.On("GetAgentByOwnerAndCodeHash", ctx, user.ID, codeHash).
			Return(mo.None[*models.Agent](), nil)
		mockStore.On("Put", ctx, mock.Anything, code).Return("loc://strategy.py", nil)
		mockAgents.On("CreateAgent", ctx, user.ID, "sma cross", codeHash, "loc://strategy.py").
			Return(created, true, nil)
		mockAgents.On("TransitionAgent", ctx, "ag_new",
			models.AgentStatusSubmitted, models.AgentStatusValidated, "static validation passed").
			Return(mo.Some(validated), nil)
		mockBacktest.On("Begin", ctx, "ag_new").
			Return(&core.ExternalServiceError{Service: "build executor", Err: fmt.Errorf("connection refused")})

		useCase := NewSubmissionUseCase(mockAgents, mockStore, mockBacktest)
		agent, duplicate, err := useCase.Submit(ctx, user, "sma cross", code)

		require.NoError(t, err)
		assert.False(t, duplicate)
		assert.Equal(t, models.AgentStatusValidated, agent.Status)
	})

	t.Run("Blank name gets a default", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockStore := &codestore.MockCodeStoreClient{}
		mockBacktest := &backtest.MockBacktestUseCase{}

		created := createTestAgent("ag_new", user.ID, models.AgentStatusSubmitted)
		validated := createTestAgent("ag_new", user.ID, models.AgentStatusValidated)

		mockAgents.On("GetAgentByOwnerAndCodeHash", ctx, user.ID, codeHash).
			Return(mo.None[*models.Agent](), nil)
		mockStore.On("Put", ctx, mock.Anything, code).Return("loc://strategy.py", nil)
		mockAgents.On("CreateAgent", ctx, user.ID, "unnamed strategy", codeHash, "loc://strategy.py").
			Return(created, true, nil)
		mockAgents.On("TransitionAgent", ctx, "ag_new",
			models.AgentStatusSubmitted, models.AgentStatusValidated, "static validation passed").
			Return(mo.Some(validated), nil)
		mockBacktest.On("Begin", ctx, "ag_new").Return(nil)

		useCase := NewSubmissionUseCase(mockAgents, mockStore, mockBacktest)
		_, _, err := useCase.Submit(ctx, user, "   ", code)

		require.NoError(t, err)
		mockAgents.AssertExpectations(t)
	})
}
