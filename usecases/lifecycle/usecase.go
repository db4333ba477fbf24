package lifecycle

import (
	"context"
	"fmt"
	"log"

	"agentbackend/core"
	"agentbackend/models"
	"agentbackend/services"
	"agentbackend/usecases"
)

// LifecycleUseCase exposes the owner-facing view of an agent: reads, the status
// history, and the soft delete. Stage-specific mutation lives in the drivers.
type LifecycleUseCase struct {
	agentsService services.AgentsService
}

func NewLifecycleUseCase(agentsService services.AgentsService) *LifecycleUseCase {
	return &LifecycleUseCase{agentsService: agentsService}
}

// GetAgent returns the agent if the caller owns it or it is public
func (u *LifecycleUseCase) GetAgent(
	ctx context.Context,
	user *models.User,
	agentID string,
) (*models.Agent, error) {
	maybeAgent, err := u.agentsService.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if !maybeAgent.IsPresent() {
		return nil, core.ErrNotFound
	}
	agent := maybeAgent.MustGet()

	if err := usecases.RequireReadable(agent, user); err != nil {
		return nil, err
	}
	if agent.Status == models.AgentStatusDeleted {
		return nil, core.ErrNotFound
	}

	return agent, nil
}

func (u *LifecycleUseCase) ListAgents(ctx context.Context, user *models.User) ([]*models.Agent, error) {
	agents, err := u.agentsService.ListAgentsByOwner(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	return agents, nil
}

// GetStatusHistory returns the append-only audit trail for the agent
func (u *LifecycleUseCase) GetStatusHistory(
	ctx context.Context,
	user *models.User,
	agentID string,
) ([]*models.AgentStatusEvent, error) {
	if _, err := u.GetAgent(ctx, user, agentID); err != nil {
		return nil, err
	}

	events, err := u.agentsService.ListStatusHistory(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status history: %w", err)
	}
	return events, nil
}

// DeleteAgent soft-deletes the agent. Agents with a live workload must be
// stopped first - deletion is blocked while deployment_running or trading.
func (u *LifecycleUseCase) DeleteAgent(
	ctx context.Context,
	user *models.User,
	agentID string,
) (*models.Agent, error) {
	log.Printf("🗑️ Starting to delete agent %s for user %s", agentID, user.ID)

	maybeAgent, err := u.agentsService.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	if !maybeAgent.IsPresent() {
		return nil, core.ErrNotFound
	}
	agent := maybeAgent.MustGet()

	if err := usecases.RequireOwner(agent, user); err != nil {
		return nil, err
	}
	if !agent.Status.IsDeletable() {
		return nil, &core.InvalidStateError{Operation: "delete", Current: string(agent.Status)}
	}

	maybeDeleted, err := u.agentsService.TransitionAgent(
		ctx, agentID, agent.Status, models.AgentStatusDeleted, "deleted by owner")
	if err != nil {
		return nil, fmt.Errorf("failed to delete agent: %w", err)
	}
	if !maybeDeleted.IsPresent() {
		// Status moved underneath us - report the conflict to the owner
		return nil, &core.InvalidStateError{Operation: "delete", Current: string(agent.Status)}
	}

	log.Printf("✅ Agent %s deleted", agentID)
	return maybeDeleted.MustGet(), nil
}
