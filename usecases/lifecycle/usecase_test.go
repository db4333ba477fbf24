package lifecycle

import (
	"context"
	"testing"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agentbackend/core"
	"agentbackend/models"
	"agentbackend/services/agents"
)

func createTestUser(id string) *models.User {
	return &models.User{ID: id, Email: id + "@example.com"}
}

func createTestAgent(status models.AgentStatus, visibility models.AgentVisibility) *models.Agent {
	return &models.Agent{
		ID:         "ag_test",
		OwnerID:    "u_owner",
		Name:       "sma cross",
		Status:     status,
		Visibility: visibility,
	}
}

func TestGetAgent(t *testing.T) {
	ctx := context.Background()

	t.Run("Owner can read a private agent", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		agent := createTestAgent(models.AgentStatusTrading, models.AgentVisibilityPrivate)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)

		useCase := NewLifecycleUseCase(mockAgents)
		result, err := useCase.GetAgent(ctx, createTestUser("u_owner"), "ag_test")

		require.NoError(t, err)
		assert.Equal(t, "ag_test", result.ID)
	})

	t.Run("Stranger reading a private agent denied", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		agent := createTestAgent(models.AgentStatusTrading, models.AgentVisibilityPrivate)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)

		useCase := NewLifecycleUseCase(mockAgents)
		_, err := useCase.GetAgent(ctx, createTestUser("u_stranger"), "ag_test")

		assert.ErrorIs(t, err, core.ErrAccessDenied)
	})

	t.Run("Stranger can read a public agent", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		agent := createTestAgent(models.AgentStatusTrading, models.AgentVisibilityPublic)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)

		useCase := NewLifecycleUseCase(mockAgents)
		result, err := useCase.GetAgent(ctx, createTestUser("u_stranger"), "ag_test")

		require.NoError(t, err)
		assert.Equal(t, "ag_test", result.ID)
	})

	t.Run("Deleted agent reads as not found", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		agent := createTestAgent(models.AgentStatusDeleted, models.AgentVisibilityPrivate)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)

		useCase := NewLifecycleUseCase(mockAgents)
		_, err := useCase.GetAgent(ctx, createTestUser("u_owner"), "ag_test")

		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestGetStatusHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("Owner gets ordered history", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		agent := createTestAgent(models.AgentStatusValidated, models.AgentVisibilityPrivate)
		events := []*models.AgentStatusEvent{
			{ID: "ev_1", AgentID: "ag_test", Status: models.AgentStatusSubmitted, Cause: "submitted"},
			{ID: "ev_2", AgentID: "ag_test", Status: models.AgentStatusValidated, Cause: "static validation passed"},
		}
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)
		mockAgents.On("ListStatusHistory", ctx, "ag_test").Return(events, nil)

		useCase := NewLifecycleUseCase(mockAgents)
		result, err := useCase.GetStatusHistory(ctx, createTestUser("u_owner"), "ag_test")

		require.NoError(t, err)
		require.Len(t, result, 2)
		assert.Equal(t, models.AgentStatusSubmitted, result[0].Status)
	})

	t.Run("Access check runs before the history read", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		agent := createTestAgent(models.AgentStatusValidated, models.AgentVisibilityPrivate)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)

		useCase := NewLifecycleUseCase(mockAgents)
		_, err := useCase.GetStatusHistory(ctx, createTestUser("u_stranger"), "ag_test")

		assert.ErrorIs(t, err, core.ErrAccessDenied)
		mockAgents.AssertNotCalled(t, "ListStatusHistory", mock.Anything, mock.Anything)
	})
}

func TestDeleteAgent(t *testing.T) {
	ctx := context.Background()

	t.Run("Stopped agent deleted", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		agent := createTestAgent(models.AgentStatusStopped, models.AgentVisibilityPrivate)
		deleted := createTestAgent(models.AgentStatusDeleted, models.AgentVisibilityPrivate)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)
		mockAgents.On("TransitionAgent", ctx, "ag_test",
			models.AgentStatusStopped, models.AgentStatusDeleted, "deleted by owner").
			Return(mo.Some(deleted), nil)

		useCase := NewLifecycleUseCase(mockAgents)
		result, err := useCase.DeleteAgent(ctx, createTestUser("u_owner"), "ag_test")

		require.NoError(t, err)
		assert.Equal(t, models.AgentStatusDeleted, result.Status)
		mockAgents.AssertExpectations(t)
	})

	t.Run("Trading agent must be stopped first", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		agent := createTestAgent(models.AgentStatusTrading, models.AgentVisibilityPrivate)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)

		useCase := NewLifecycleUseCase(mockAgents)
		_, err := useCase.DeleteAgent(ctx, createTestUser("u_owner"), "ag_test")

		var stateErr *core.InvalidStateError
		assert.ErrorAs(t, err, &stateErr)
		mockAgents.AssertNotCalled(t, "TransitionAgent",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Non-owner cannot delete a public agent", func(t *testing.T) {
		mockAgents := &agents.MockAgentsService{}
		agent := createTestAgent(models.AgentStatusStopped, models.AgentVisibilityPublic)
		mockAgents.On("GetAgentByID", ctx, "ag_test").Return(mo.Some(agent), nil)

		useCase := NewLifecycleUseCase(mockAgents)
		_, err := useCase.DeleteAgent(ctx, createTestUser("u_stranger"), "ag_test")

		assert.ErrorIs(t, err, core.ErrAccessDenied)
	})
}
