package backtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agentbackend/clients"
	"agentbackend/clients/buildexec"
	"agentbackend/core"
	"agentbackend/models"
	"agentbackend/services/agents"
)

var testParams = Params{
	StartDate:   "2023-01-01",
	EndDate:     "2023-12-31",
	InitialCash: "100000",
	Symbols:     []string{"SPY", "QQQ"},
	Timeframe:   "1Day",
}

func createTestUser() *models.User {
	return &models.User{ID: "u_owner", Email: "owner@example.com"}
}

func createTestAgent(status models.AgentStatus) *models.Agent {
	return &models.Agent{
		ID:           "ag_test",
		OwnerID:      "u_owner",
		Name:         "sma cross",
		CodeLocation: "loc://strategy.py",
		Status:       status,
	}
}

func TestBegin(t *testing.T) {
	ctx := context.Background()

	t.Run("Submits job and marks backtest running", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		agent := createTestAgent(models.AgentStatusValidated)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)
		mockExecutor.On("SubmitBuild", ctx, clients.BuildSpec{
			AgentID:      "ag_test",
			OwnerID:      "u_owner",
			CodeLocation: "loc://strategy.py",
			StartDate:    "2023-01-01",
			EndDate:      "2023-12-31",
			InitialCash:  "100000",
			Symbols:      []string{"SPY", "QQQ"},
			Timeframe:    "1Day",
		}).Return("job_123", nil)
		mockAgents.On("SetBuildRef", ctx, "ag_test", "job_123").Return(nil)
		mockAgents.On("TransitionAgent", ctx, "ag_test",
			models.AgentStatusValidated, models.AgentStatusBacktestRunning,
			"backtest job job_123 submitted").
			Return(mo.Some(createTestAgent(models.AgentStatusBacktestRunning)), nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.Begin(ctx, "ag_test")

		require.NoError(t, err)
		mockAgents.AssertExpectations(t)
		mockExecutor.AssertExpectations(t)
	})

	t.Run("Rejects agent not in validated", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		agent := createTestAgent(models.AgentStatusTrading)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.Begin(ctx, "ag_test")

		require.Error(t, err)
		var stateErr *core.InvalidStateError
		assert.ErrorAs(t, err, &stateErr)
		mockExecutor.AssertNotCalled(t, "SubmitBuild", mock.Anything, mock.Anything)
	})

	t.Run("Unknown agent returns not found", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.None[*models.Agent](), nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.Begin(ctx, "ag_test")

		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("Submission failure leaves agent validated with history entry", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		agent := createTestAgent(models.AgentStatusValidated)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)
		mockExecutor.On("SubmitBuild", ctx, mock.Anything).
			Return("", fmt.Errorf("executor unavailable"))
		mockAgents.On("RecordAgentEvent", ctx, "ag_test", models.AgentStatusValidated,
			mock.MatchedBy(func(cause string) bool { return cause != "" })).
			Return(nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.Begin(ctx, "ag_test")

		require.Error(t, err)
		var extErr *core.ExternalServiceError
		require.ErrorAs(t, err, &extErr)
		assert.Equal(t, "build executor", extErr.Service)
		mockAgents.AssertNotCalled(t, "TransitionAgent",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mockAgents.AssertExpectations(t)
	})

	t.Run("Stale transition cancels the orphaned job", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		agent := createTestAgent(models.AgentStatusValidated)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)
		mockExecutor.On("SubmitBuild", ctx, mock.Anything).Return("job_123", nil)
		mockAgents.On("SetBuildRef", ctx, "ag_test", "job_123").Return(nil)
		mockAgents.On("TransitionAgent", ctx, "ag_test",
			models.AgentStatusValidated, models.AgentStatusBacktestRunning, mock.Anything).
			Return(mo.None[*models.Agent](), nil)
		mockExecutor.On("CancelBuild", ctx, "job_123").Return(nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.Begin(ctx, "ag_test")

		require.NoError(t, err)
		mockExecutor.AssertExpectations(t)
	})
}

func TestOnCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("Success stores result and marks succeeded", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		agent := createTestAgent(models.AgentStatusBacktestRunning)
		mockAgents.On("GetAgentByBuildJobID", ctx, "job_123").Return(mo.Some(agent), nil)
		mockAgents.On("SetBuildResult", ctx, "ag_test", "artifact://results.json").Return(nil)
		mockAgents.On("TransitionAgent", ctx, "ag_test",
			models.AgentStatusBacktestRunning, models.AgentStatusBacktestSucceeded,
			"backtest job job_123 succeeded").
			Return(mo.Some(createTestAgent(models.AgentStatusBacktestSucceeded)), nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.OnCallback(ctx, "job_123", true, "artifact://results.json", "")

		require.NoError(t, err)
		mockAgents.AssertExpectations(t)
	})

	t.Run("Failure records reason and marks failed", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		agent := createTestAgent(models.AgentStatusBacktestRunning)
		mockAgents.On("GetAgentByBuildJobID", ctx, "job_123").Return(mo.Some(agent), nil)
		mockAgents.On("TransitionAgent", ctx, "ag_test",
			models.AgentStatusBacktestRunning, models.AgentStatusBacktestFailed,
			"backtest failed: strategy raised IndexError").
			Return(mo.Some(createTestAgent(models.AgentStatusBacktestFailed)), nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.OnCallback(ctx, "job_123", false, "", "strategy raised IndexError")

		require.NoError(t, err)
		mockAgents.AssertNotCalled(t, "SetBuildResult", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unknown job is acknowledged and dropped", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		mockAgents.On("GetAgentByBuildJobID", ctx, "job_stale").
			Return(mo.None[*models.Agent](), nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.OnCallback(ctx, "job_stale", true, "artifact://x", "")

		require.NoError(t, err)
		mockAgents.AssertNotCalled(t, "TransitionAgent",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Duplicate callback is dropped as stale", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		// Agent already moved to backtest_succeeded by the first delivery
		agent := createTestAgent(models.AgentStatusBacktestSucceeded)
		mockAgents.On("GetAgentByBuildJobID", ctx, "job_123").Return(mo.Some(agent), nil)
		mockAgents.On("SetBuildResult", ctx, "ag_test", "artifact://results.json").Return(nil)
		mockAgents.On("TransitionAgent", ctx, "ag_test",
			models.AgentStatusBacktestRunning, models.AgentStatusBacktestSucceeded, mock.Anything).
			Return(mo.None[*models.Agent](), nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.OnCallback(ctx, "job_123", true, "artifact://results.json", "")

		require.NoError(t, err)
	})
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	user := createTestUser()

	t.Run("Failed backtest gets a fresh job reference", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		failed := createTestAgent(models.AgentStatusBacktestFailed)
		validated := createTestAgent(models.AgentStatusValidated)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(failed), nil).Once()
		mockAgents.On("TransitionAgent", ctx, "ag_test",
			models.AgentStatusBacktestFailed, models.AgentStatusValidated,
			"backtest retry requested").
			Return(mo.Some(validated), nil)
		// Begin re-reads the agent and submits a new job
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(validated), nil).Once()
		mockExecutor.On("SubmitBuild", ctx, mock.Anything).Return("job_456", nil)
		mockAgents.On("SetBuildRef", ctx, "ag_test", "job_456").Return(nil)
		mockAgents.On("TransitionAgent", ctx, "ag_test",
			models.AgentStatusValidated, models.AgentStatusBacktestRunning,
			"backtest job job_456 submitted").
			Return(mo.Some(createTestAgent(models.AgentStatusBacktestRunning)), nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.Retry(ctx, user, "ag_test")

		require.NoError(t, err)
		mockAgents.AssertExpectations(t)
		mockExecutor.AssertExpectations(t)
	})

	t.Run("Non-owner denied", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		agent := createTestAgent(models.AgentStatusBacktestFailed)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.Retry(ctx, &models.User{ID: "u_other"}, "ag_test")

		assert.ErrorIs(t, err, core.ErrAccessDenied)
	})

	t.Run("Retry from succeeded rejected", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		agent := createTestAgent(models.AgentStatusBacktestSucceeded)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.Retry(ctx, user, "ag_test")

		var stateErr *core.InvalidStateError
		assert.ErrorAs(t, err, &stateErr)
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	user := createTestUser()

	t.Run("Running backtest canceled back to validated", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		jobID := "job_123"
		agent := createTestAgent(models.AgentStatusBacktestRunning)
		agent.BuildJobID = &jobID
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)
		mockAgents.On("TransitionAgent", ctx, "ag_test",
			models.AgentStatusBacktestRunning, models.AgentStatusValidated,
			"backtest canceled by owner").
			Return(mo.Some(createTestAgent(models.AgentStatusValidated)), nil)
		mockExecutor.On("CancelBuild", ctx, "job_123").Return(nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.Cancel(ctx, user, "ag_test")

		require.NoError(t, err)
		mockExecutor.AssertExpectations(t)
	})

	t.Run("Remote cancel failure is tolerated", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		jobID := "job_123"
		agent := createTestAgent(models.AgentStatusBacktestRunning)
		agent.BuildJobID = &jobID
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)
		mockAgents.On("TransitionAgent", ctx, "ag_test",
			models.AgentStatusBacktestRunning, models.AgentStatusValidated, mock.Anything).
			Return(mo.Some(createTestAgent(models.AgentStatusValidated)), nil)
		mockExecutor.On("CancelBuild", ctx, "job_123").Return(fmt.Errorf("job already finished"))

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.Cancel(ctx, user, "ag_test")

		require.NoError(t, err)
	})

	t.Run("Cancel outside backtest_running rejected", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		mockExecutor := &buildexec.MockBuildExecutorClient{}

		agent := createTestAgent(models.AgentStatusValidated)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)

		useCase := NewBacktestUseCase(mockAgents, mockExecutor, testParams)
		err := useCase.Cancel(ctx, user, "ag_test")

		var stateErr *core.InvalidStateError
		assert.ErrorAs(t, err, &stateErr)
		mockExecutor.AssertNotCalled(t, "CancelBuild", mock.Anything, mock.Anything)
	})
}
