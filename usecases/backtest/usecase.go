package backtest

import (
	"context"
	"fmt"
	"log"

	"agentbackend/clients"
	"agentbackend/core"
	"agentbackend/models"
	"agentbackend/services"
	"agentbackend/usecases"
)

// Params are the fixed backtest parameters applied to every submitted
// strategy. Every agent is evaluated over the same window with the same cash
// so results are comparable.
type Params struct {
	StartDate   string
	EndDate     string
	InitialCash string
	Symbols     []string
	Timeframe   string
}

// BacktestUseCase drives the backtest stage: it hands strategies to the build
// executor and folds the executor's asynchronous terminal callback back into
// the agent's state machine.
type BacktestUseCase struct {
	agentsService       services.AgentsService
	buildExecutorClient clients.BuildExecutorClient
	params              Params
}

func NewBacktestUseCase(
	agentsService services.AgentsService,
	buildExecutorClient clients.BuildExecutorClient,
	params Params,
) *BacktestUseCase {
	return &BacktestUseCase{
		agentsService:       agentsService,
		buildExecutorClient: buildExecutorClient,
		params:              params,
	}
}

// Begin submits a backtest job for a validated agent and moves it to
// backtest_running. A submission failure leaves the agent in validated with a
// history entry, so the owner can retry without resubmitting code.
func (u *BacktestUseCase) Begin(ctx context.Context, agentID string) error {
	log.Printf("📋 Starting backtest for agent %s", agentID)

	maybeAgent, err := u.agentsService.GetAgentByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to get agent: %w", err)
	}
	agent, found := maybeAgent.Get()
	if !found {
		return core.ErrNotFound
	}
	if agent.Status != models.AgentStatusValidated {
		return &core.InvalidStateError{Operation: "begin backtest", Current: string(agent.Status)}
	}

	jobID, err := u.buildExecutorClient.SubmitBuild(ctx, clients.BuildSpec{
		AgentID:      agent.ID,
		OwnerID:      agent.OwnerID,
		CodeLocation: agent.CodeLocation,
		StartDate:    u.params.StartDate,
		EndDate:      u.params.EndDate,
		InitialCash:  u.params.InitialCash,
		Symbols:      u.params.Symbols,
		Timeframe:    u.params.Timeframe,
	})
	if err != nil {
		if recErr := u.agentsService.RecordAgentEvent(
			ctx, agent.ID, agent.Status,
			fmt.Sprintf("backtest submission failed: %v", err),
		); recErr != nil {
			log.Printf("❌ Failed to record backtest submission failure for agent %s: %v", agent.ID, recErr)
		}
		return &core.ExternalServiceError{Service: "build executor", Err: err}
	}

	// Overwrites the previous job reference on retry, so old callbacks no
	// longer resolve to this agent
	if err := u.agentsService.SetBuildRef(ctx, agent.ID, jobID); err != nil {
		return fmt.Errorf("failed to set build reference: %w", err)
	}

	updated, err := u.agentsService.TransitionAgent(
		ctx, agent.ID,
		models.AgentStatusValidated, models.AgentStatusBacktestRunning,
		fmt.Sprintf("backtest job %s submitted", jobID),
	)
	if err != nil {
		return fmt.Errorf("failed to mark backtest running: %w", err)
	}
	if updated.IsAbsent() {
		log.Printf("⚠️ Stale transition dropped: agent %s left validated before backtest job %s was recorded", agent.ID, jobID)
		if cancelErr := u.buildExecutorClient.CancelBuild(ctx, jobID); cancelErr != nil {
			log.Printf("⚠️ Failed to cancel orphaned backtest job %s: %v", jobID, cancelErr)
		}
		return nil
	}

	log.Printf("✅ Backtest job %s running for agent %s", jobID, agent.ID)
	return nil
}

// Retry re-runs the backtest after a failure. It also accepts agents still in
// validated, which covers the case where the original kickoff never reached
// the build executor.
func (u *BacktestUseCase) Retry(ctx context.Context, user *models.User, agentID string) error {
	maybeAgent, err := u.agentsService.GetAgentByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to get agent: %w", err)
	}
	agent, found := maybeAgent.Get()
	if !found {
		return core.ErrNotFound
	}
	if err := usecases.RequireOwner(agent, user); err != nil {
		return err
	}

	switch agent.Status {
	case models.AgentStatusValidated:
		// Kickoff never happened, just begin
	case models.AgentStatusBacktestFailed:
		updated, err := u.agentsService.TransitionAgent(
			ctx, agent.ID,
			models.AgentStatusBacktestFailed, models.AgentStatusValidated,
			"backtest retry requested",
		)
		if err != nil {
			return fmt.Errorf("failed to reset agent for retry: %w", err)
		}
		if updated.IsAbsent() {
			return &core.InvalidStateError{Operation: "retry backtest", Current: string(agent.Status)}
		}
	default:
		return &core.InvalidStateError{Operation: "retry backtest", Current: string(agent.Status)}
	}

	return u.Begin(ctx, agentID)
}

// Cancel aborts a running backtest and returns the agent to validated. The
// remote job cancellation is best effort - a late callback from a canceled job
// no longer matches the agent's expected status and is dropped.
func (u *BacktestUseCase) Cancel(ctx context.Context, user *models.User, agentID string) error {
	maybeAgent, err := u.agentsService.GetAgentByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to get agent: %w", err)
	}
	agent, found := maybeAgent.Get()
	if !found {
		return core.ErrNotFound
	}
	if err := usecases.RequireOwner(agent, user); err != nil {
		return err
	}
	if agent.Status != models.AgentStatusBacktestRunning {
		return &core.InvalidStateError{Operation: "cancel backtest", Current: string(agent.Status)}
	}

	updated, err := u.agentsService.TransitionAgent(
		ctx, agent.ID,
		models.AgentStatusBacktestRunning, models.AgentStatusValidated,
		"backtest canceled by owner",
	)
	if err != nil {
		return fmt.Errorf("failed to cancel backtest: %w", err)
	}
	if updated.IsAbsent() {
		return &core.InvalidStateError{Operation: "cancel backtest", Current: string(agent.Status)}
	}

	if agent.BuildJobID != nil {
		if cancelErr := u.buildExecutorClient.CancelBuild(ctx, *agent.BuildJobID); cancelErr != nil {
			log.Printf("⚠️ Failed to cancel backtest job %s for agent %s: %v", *agent.BuildJobID, agent.ID, cancelErr)
		}
	}

	log.Printf("✅ Backtest canceled for agent %s", agent.ID)
	return nil
}

// OnCallback handles the build executor's terminal report for a job. Callbacks
// for unknown or superseded job IDs are acknowledged and dropped, so the
// executor can redeliver freely.
func (u *BacktestUseCase) OnCallback(
	ctx context.Context,
	jobID string,
	succeeded bool,
	artifactRef, failureReason string,
) error {
	log.Printf("📋 Backtest callback for job %s (succeeded=%v)", jobID, succeeded)

	maybeAgent, err := u.agentsService.GetAgentByBuildJobID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to look up agent by build job: %w", err)
	}
	agent, found := maybeAgent.Get()
	if !found {
		log.Printf("⚠️ Backtest callback for unknown job %s, dropping", jobID)
		return nil
	}

	if succeeded {
		if err := u.agentsService.SetBuildResult(ctx, agent.ID, artifactRef); err != nil {
			return fmt.Errorf("failed to store backtest result: %w", err)
		}
		updated, err := u.agentsService.TransitionAgent(
			ctx, agent.ID,
			models.AgentStatusBacktestRunning, models.AgentStatusBacktestSucceeded,
			fmt.Sprintf("backtest job %s succeeded", jobID),
		)
		if err != nil {
			return fmt.Errorf("failed to mark backtest succeeded: %w", err)
		}
		if updated.IsAbsent() {
			log.Printf("⚠️ Stale backtest callback for agent %s dropped", agent.ID)
			return nil
		}
		log.Printf("✅ Backtest succeeded for agent %s", agent.ID)
		return nil
	}

	cause := "backtest failed"
	if failureReason != "" {
		cause = fmt.Sprintf("backtest failed: %s", failureReason)
	}
	updated, err := u.agentsService.TransitionAgent(
		ctx, agent.ID,
		models.AgentStatusBacktestRunning, models.AgentStatusBacktestFailed,
		cause,
	)
	if err != nil {
		return fmt.Errorf("failed to mark backtest failed: %w", err)
	}
	if updated.IsAbsent() {
		log.Printf("⚠️ Stale backtest callback for agent %s dropped", agent.ID)
		return nil
	}
	log.Printf("✅ Backtest failure recorded for agent %s", agent.ID)
	return nil
}
