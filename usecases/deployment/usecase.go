package deployment

import (
	"context"
	"fmt"
	"log"

	"agentbackend/clients"
	"agentbackend/core"
	"agentbackend/milestonenotif"
	"agentbackend/models"
	"agentbackend/services"
	"agentbackend/usecases"
)

// DeploymentUseCase drives the live paper-trading stage: it runs one workload
// per agent on the deployment platform, enforces the per-owner cap on live
// deployments and folds workload readiness back into the agent's state
// machine.
type DeploymentUseCase struct {
	agentsService      services.AgentsService
	deploymentClient   clients.DeploymentClient
	maxLiveDeployments int
}

func NewDeploymentUseCase(
	agentsService services.AgentsService,
	deploymentClient clients.DeploymentClient,
	maxLiveDeployments int,
) *DeploymentUseCase {
	return &DeploymentUseCase{
		agentsService:      agentsService,
		deploymentClient:   deploymentClient,
		maxLiveDeployments: maxLiveDeployments,
	}
}

// Begin deploys a funded agent's workload. Agents whose last deployment failed
// are re-armed back to funded first, so redeploying after a failure is a
// single call. The funded -> deployment_running transition carries the
// per-owner cap check, so the cap can never be oversubscribed by concurrent
// requests.
func (u *DeploymentUseCase) Begin(
	ctx context.Context,
	user *models.User,
	agentID string,
) (*models.Agent, error) {
	log.Printf("📋 Starting deployment for agent %s", agentID)

	maybeAgent, err := u.agentsService.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	agent, found := maybeAgent.Get()
	if !found {
		return nil, core.ErrNotFound
	}
	if err := usecases.RequireOwner(agent, user); err != nil {
		return nil, err
	}

	if agent.Status == models.AgentStatusDeploymentFailed {
		rearmed, err := u.agentsService.TransitionAgent(
			ctx, agent.ID,
			models.AgentStatusDeploymentFailed, models.AgentStatusFunded,
			"redeploy requested",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to re-arm agent for redeploy: %w", err)
		}
		current, ok := rearmed.Get()
		if !ok {
			return nil, &core.InvalidStateError{Operation: "deploy agent", Current: string(agent.Status)}
		}
		agent = current
	}

	// Funding is the hard precondition for touching the brokerage with a live
	// workload, no matter how the agent got here
	if agent.FundingState != models.FundingStateFunded {
		return nil, &core.InvalidStateError{Operation: "deploy agent", Current: string(agent.Status)}
	}
	if agent.Status != models.AgentStatusFunded {
		return nil, &core.InvalidStateError{Operation: "deploy agent", Current: string(agent.Status)}
	}
	if agent.BrokerageAccountID == nil {
		return nil, &core.InvalidStateError{Operation: "deploy agent", Current: string(agent.Status)}
	}

	updated, err := u.agentsService.TransitionAgentWithDeploymentCap(
		ctx, agent.ID, agent.OwnerID,
		models.AgentStatusFunded, models.AgentStatusDeploymentRunning,
		"deployment requested",
		u.maxLiveDeployments,
	)
	if err != nil {
		return nil, err
	}
	current, ok := updated.Get()
	if !ok {
		return nil, &core.InvalidStateError{Operation: "deploy agent", Current: string(agent.Status)}
	}
	agent = current

	handle, err := u.deploymentClient.Deploy(ctx, clients.WorkloadSpec{
		AgentID:            agent.ID,
		OwnerID:            agent.OwnerID,
		CodeLocation:       agent.CodeLocation,
		BrokerageAccountID: *agent.BrokerageAccountID,
		Replicas:           1,
	})
	if err != nil {
		// The workload never started - put the agent back so the cap slot is
		// released and the owner can retry
		reverted, revErr := u.agentsService.TransitionAgent(
			ctx, agent.ID,
			models.AgentStatusDeploymentRunning, models.AgentStatusFunded,
			fmt.Sprintf("deployment failed to start: %v", err),
		)
		if revErr != nil {
			log.Printf("❌ Failed to revert agent %s after deploy failure: %v", agent.ID, revErr)
		} else if reverted.IsAbsent() {
			log.Printf("⚠️ Agent %s left deployment_running before deploy failure was recorded", agent.ID)
		}
		return nil, &core.ExternalServiceError{Service: "deployment platform", Err: err}
	}

	if err := u.agentsService.SetDeploymentRef(ctx, agent.ID, handle, 1); err != nil {
		return nil, fmt.Errorf("failed to store deployment reference: %w", err)
	}

	refreshed, err := u.agentsService.GetAgentByID(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read agent: %w", err)
	}
	if current, ok := refreshed.Get(); ok {
		log.Printf("✅ Workload %s deployed for agent %s", handle, agent.ID)
		return current, nil
	}
	return nil, core.ErrNotFound
}

// Stop tears down a trading agent's workload. The status flips first, so the
// cap slot is released even if the platform teardown needs a retry.
func (u *DeploymentUseCase) Stop(
	ctx context.Context,
	user *models.User,
	agentID string,
) (*models.Agent, error) {
	log.Printf("📋 Stopping deployment for agent %s", agentID)

	maybeAgent, err := u.agentsService.GetAgentByID(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	agent, found := maybeAgent.Get()
	if !found {
		return nil, core.ErrNotFound
	}
	if err := usecases.RequireOwner(agent, user); err != nil {
		return nil, err
	}
	if agent.Status != models.AgentStatusTrading {
		return nil, &core.InvalidStateError{Operation: "stop agent", Current: string(agent.Status)}
	}

	updated, err := u.agentsService.TransitionAgent(
		ctx, agent.ID,
		models.AgentStatusTrading, models.AgentStatusStopped,
		"stopped by owner",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to stop agent: %w", err)
	}
	current, ok := updated.Get()
	if !ok {
		return nil, &core.InvalidStateError{Operation: "stop agent", Current: string(agent.Status)}
	}

	if agent.DeploymentHandle != nil {
		if delErr := u.deploymentClient.Delete(ctx, *agent.DeploymentHandle); delErr != nil {
			log.Printf("⚠️ Failed to delete workload %s for agent %s: %v", *agent.DeploymentHandle, agent.ID, delErr)
		}
	}
	if err := u.agentsService.ClearDeploymentRef(ctx, agent.ID); err != nil {
		return nil, fmt.Errorf("failed to clear deployment reference: %w", err)
	}

	refreshed, err := u.agentsService.GetAgentByID(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read agent: %w", err)
	}
	if final, ok := refreshed.Get(); ok {
		log.Printf("✅ Agent %s stopped", agent.ID)
		return final, nil
	}
	return current, nil
}

// OnCallback handles a workload readiness report from the deployment
// platform. A failed workload keeps its deployment handle so the failure can
// be inspected before a redeploy replaces it.
func (u *DeploymentUseCase) OnCallback(
	ctx context.Context,
	agentID string,
	ready bool,
	failureReason string,
) error {
	log.Printf("📋 Deployment callback for agent %s (ready=%v)", agentID, ready)

	maybeAgent, err := u.agentsService.GetAgentByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to get agent: %w", err)
	}
	agent, found := maybeAgent.Get()
	if !found {
		log.Printf("⚠️ Deployment callback for unknown agent %s, dropping", agentID)
		return nil
	}

	if ready {
		updated, err := u.agentsService.TransitionAgent(
			ctx, agent.ID,
			models.AgentStatusDeploymentRunning, models.AgentStatusTrading,
			"workload ready, trading started",
		)
		if err != nil {
			return fmt.Errorf("failed to mark agent trading: %w", err)
		}
		if updated.IsAbsent() {
			log.Printf("⚠️ Stale deployment callback for agent %s dropped", agent.ID)
			return nil
		}
		log.Printf("✅ Agent %s is trading", agent.ID)
		milestonenotif.New(agent.ID, fmt.Sprintf("Agent %q started live paper trading", agent.Name))
		return nil
	}

	cause := "workload failed"
	if failureReason != "" {
		cause = fmt.Sprintf("workload failed: %s", failureReason)
	}
	updated, err := u.agentsService.TransitionAgent(
		ctx, agent.ID,
		models.AgentStatusDeploymentRunning, models.AgentStatusDeploymentFailed,
		cause,
	)
	if err != nil {
		return fmt.Errorf("failed to mark deployment failed: %w", err)
	}
	if updated.IsAbsent() {
		log.Printf("⚠️ Stale deployment callback for agent %s dropped", agent.ID)
		return nil
	}
	log.Printf("✅ Deployment failure recorded for agent %s", agent.ID)
	return nil
}

// ReconcileRunningDeployments polls the platform for every agent stuck in
// deployment_running and synthesizes the callback the platform would have
// sent. This is the safety net for lost readiness notifications.
func (u *DeploymentUseCase) ReconcileRunningDeployments(ctx context.Context) error {
	agents, err := u.agentsService.ListAgentsByStatus(ctx, models.AgentStatusDeploymentRunning)
	if err != nil {
		return fmt.Errorf("failed to list running deployments: %w", err)
	}
	if len(agents) == 0 {
		return nil
	}

	log.Printf("📋 Reconciling %d running deployments", len(agents))
	for _, agent := range agents {
		if agent.DeploymentHandle == nil {
			log.Printf("⚠️ Agent %s is deployment_running without a workload handle, skipping", agent.ID)
			continue
		}
		status, err := u.deploymentClient.Status(ctx, *agent.DeploymentHandle)
		if err != nil {
			log.Printf("⚠️ Failed to check workload %s for agent %s: %v", *agent.DeploymentHandle, agent.ID, err)
			continue
		}
		switch {
		case status.Failed:
			if err := u.OnCallback(ctx, agent.ID, false, status.FailureReason); err != nil {
				log.Printf("❌ Failed to record workload failure for agent %s: %v", agent.ID, err)
			}
		case status.Ready:
			if err := u.OnCallback(ctx, agent.ID, true, ""); err != nil {
				log.Printf("❌ Failed to record workload readiness for agent %s: %v", agent.ID, err)
			}
		}
	}
	return nil
}
