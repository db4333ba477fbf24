package brokerage

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"

	"agentbackend/clients"
	"agentbackend/core"
	"agentbackend/models"
	"agentbackend/services"
	"agentbackend/usecases"
)

// BrokerageUseCase drives the brokerage stage: it opens exactly one paper
// account per agent and funds it exactly once, folding the brokerage's
// asynchronous approvals back into the agent's state machine.
type BrokerageUseCase struct {
	agentsService   services.AgentsService
	brokerageClient clients.BrokerageClient
}

func NewBrokerageUseCase(
	agentsService services.AgentsService,
	brokerageClient clients.BrokerageClient,
) *BrokerageUseCase {
	return &BrokerageUseCase{
		agentsService:   agentsService,
		brokerageClient: brokerageClient,
	}
}

// BeginAccountCreation opens a brokerage account for an agent that passed its
// backtest. An agent that already has an account skips the brokerage call
// entirely - the account reference is written at most once.
func (u *BrokerageUseCase) BeginAccountCreation(
	ctx context.Context,
	user *models.User,
	agentID string,
) (*models.Agent, error) {
	log.Printf("📋 Starting brokerage account creation for agent %s", agentID)

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

	// Re-requesting while provisioning is pending or done is a no-op
	if agent.Status == models.AgentStatusAccountProvisioning || agent.Status == models.AgentStatusAccountReady {
		log.Printf("✅ Account creation already underway for agent %s (%s)", agent.ID, agent.Status)
		return agent, nil
	}
	if agent.Status != models.AgentStatusBacktestSucceeded {
		return nil, &core.InvalidStateError{Operation: "create brokerage account", Current: string(agent.Status)}
	}

	if agent.BrokerageAccountID != nil {
		// Account survives a previous pipeline pass - skip straight to ready
		updated, err := u.agentsService.TransitionAgent(
			ctx, agent.ID,
			models.AgentStatusBacktestSucceeded, models.AgentStatusAccountReady,
			fmt.Sprintf("reusing existing brokerage account %s", *agent.BrokerageAccountID),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to mark account ready: %w", err)
		}
		if current, ok := updated.Get(); ok {
			log.Printf("✅ Reused existing brokerage account for agent %s", agent.ID)
			return current, nil
		}
		return nil, &core.InvalidStateError{Operation: "create brokerage account", Current: string(agent.Status)}
	}

	account, err := u.brokerageClient.CreateAccount(ctx, clients.OwnerProfile{
		UserID:  user.ID,
		AgentID: agent.ID,
		Email:   user.Email,
	})
	if err != nil {
		if recErr := u.agentsService.RecordAgentEvent(
			ctx, agent.ID, agent.Status,
			fmt.Sprintf("brokerage account creation failed: %v", err),
		); recErr != nil {
			log.Printf("❌ Failed to record account creation failure for agent %s: %v", agent.ID, recErr)
		}
		return nil, &core.ExternalServiceError{Service: "brokerage", Err: err}
	}

	stored, err := u.agentsService.SetBrokerageAccount(ctx, agent.ID, account.AccountID, account.RelationshipID)
	if err != nil {
		return nil, fmt.Errorf("failed to store brokerage account reference: %w", err)
	}
	if !stored {
		// Lost a race against a concurrent creation request - the first
		// account reference wins and stays
		log.Printf("⚠️ Agent %s already has a brokerage account, ignoring account %s", agent.ID, account.AccountID)
	}

	updated, err := u.agentsService.TransitionAgent(
		ctx, agent.ID,
		models.AgentStatusBacktestSucceeded, models.AgentStatusAccountProvisioning,
		fmt.Sprintf("brokerage account %s created, awaiting approval", account.AccountID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark account provisioning: %w", err)
	}
	if current, ok := updated.Get(); ok {
		log.Printf("✅ Brokerage account %s created for agent %s", account.AccountID, agent.ID)
		return current, nil
	}

	log.Printf("⚠️ Stale transition dropped: agent %s left backtest_succeeded during account creation", agent.ID)
	refreshed, err := u.agentsService.GetAgentByID(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read agent: %w", err)
	}
	if current, ok := refreshed.Get(); ok {
		return current, nil
	}
	return nil, core.ErrNotFound
}

// OnAccountCallback handles the brokerage's account approval notification.
// Duplicate or stale notifications are acknowledged and dropped.
func (u *BrokerageUseCase) OnAccountCallback(ctx context.Context, agentID string) error {
	log.Printf("📋 Brokerage account callback for agent %s", agentID)

	maybeAgent, err := u.agentsService.GetAgentByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to get agent: %w", err)
	}
	agent, found := maybeAgent.Get()
	if !found {
		log.Printf("⚠️ Account callback for unknown agent %s, dropping", agentID)
		return nil
	}

	updated, err := u.agentsService.TransitionAgent(
		ctx, agent.ID,
		models.AgentStatusAccountProvisioning, models.AgentStatusAccountReady,
		"brokerage account approved",
	)
	if err != nil {
		return fmt.Errorf("failed to mark account ready: %w", err)
	}
	if updated.IsAbsent() {
		log.Printf("⚠️ Stale account callback for agent %s dropped", agent.ID)
		return nil
	}

	log.Printf("✅ Brokerage account ready for agent %s", agent.ID)
	return nil
}

// BeginFunding starts the ACH transfer into the agent's brokerage account. An
// already funded agent is a no-op that returns the existing record - funding
// only ever moves forward, a second transfer is never issued.
func (u *BrokerageUseCase) BeginFunding(
	ctx context.Context,
	user *models.User,
	agentID string,
	amount decimal.Decimal,
) (*models.Agent, error) {
	log.Printf("📋 Starting funding of %s for agent %s", amount.StringFixed(2), agentID)

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

	if agent.FundingState == models.FundingStateFunded {
		log.Printf("✅ Agent %s is already funded, skipping transfer", agent.ID)
		return agent, nil
	}
	if agent.Status == models.AgentStatusFunding {
		log.Printf("✅ Funding already in flight for agent %s", agent.ID)
		return agent, nil
	}
	if agent.Status != models.AgentStatusAccountReady {
		return nil, &core.InvalidStateError{Operation: "fund agent", Current: string(agent.Status)}
	}
	if agent.BrokerageAccountID == nil || agent.BrokerageRelationshipID == nil {
		return nil, &core.InvalidStateError{Operation: "fund agent", Current: string(agent.Status)}
	}
	if !amount.IsPositive() {
		return nil, &core.ValidationFailedError{Violation: "funding amount must be positive"}
	}

	updated, err := u.agentsService.TransitionAgent(
		ctx, agent.ID,
		models.AgentStatusAccountReady, models.AgentStatusFunding,
		fmt.Sprintf("funding transfer of %s requested", amount.StringFixed(2)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark funding: %w", err)
	}
	if updated.IsAbsent() {
		return nil, &core.InvalidStateError{Operation: "fund agent", Current: string(agent.Status)}
	}

	transferID, err := u.brokerageClient.CreateTransfer(
		ctx, *agent.BrokerageAccountID, *agent.BrokerageRelationshipID, amount,
	)
	if err != nil {
		// Give the owner back a retryable agent - the transfer never started
		reverted, revErr := u.agentsService.TransitionAgent(
			ctx, agent.ID,
			models.AgentStatusFunding, models.AgentStatusAccountReady,
			fmt.Sprintf("funding transfer failed: %v", err),
		)
		if revErr != nil {
			log.Printf("❌ Failed to revert agent %s after transfer failure: %v", agent.ID, revErr)
		} else if reverted.IsAbsent() {
			log.Printf("⚠️ Agent %s left funding before transfer failure was recorded", agent.ID)
		}
		if errors.Is(err, core.ErrFundingNotReady) {
			return nil, err
		}
		return nil, &core.ExternalServiceError{Service: "brokerage", Err: err}
	}

	if err := u.agentsService.SetFundedAmount(ctx, agent.ID, amount); err != nil {
		return nil, fmt.Errorf("failed to record funding amount: %w", err)
	}
	if err := u.agentsService.RecordAgentEvent(
		ctx, agent.ID, models.AgentStatusFunding,
		fmt.Sprintf("funding transfer %s submitted", transferID),
	); err != nil {
		log.Printf("⚠️ Failed to record transfer submission for agent %s: %v", agent.ID, err)
	}

	refreshed, err := u.agentsService.GetAgentByID(ctx, agent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to re-read agent: %w", err)
	}
	if current, ok := refreshed.Get(); ok {
		log.Printf("✅ Funding transfer %s submitted for agent %s", transferID, agent.ID)
		return current, nil
	}
	return nil, core.ErrNotFound
}

// OnFundingCallback handles the brokerage's transfer settlement notification.
// The funded marker only ever flips forward and the status transition is
// conditional, so redelivered notifications are harmless and a redelivery
// finishes what a partially applied earlier delivery started.
func (u *BrokerageUseCase) OnFundingCallback(ctx context.Context, agentID, transferID string) error {
	log.Printf("📋 Funding callback for agent %s (transfer %s)", agentID, transferID)

	maybeAgent, err := u.agentsService.GetAgentByID(ctx, agentID)
	if err != nil {
		return fmt.Errorf("failed to get agent: %w", err)
	}
	agent, found := maybeAgent.Get()
	if !found {
		log.Printf("⚠️ Funding callback for unknown agent %s, dropping", agentID)
		return nil
	}

	// The funded marker and the status transition are each idempotent, so both
	// are attempted on every delivery. A redelivery after a failure between the
	// two writes completes whichever write is still missing.
	marked, err := u.agentsService.MarkFunded(ctx, agent.ID)
	if err != nil {
		return fmt.Errorf("failed to mark agent funded: %w", err)
	}

	updated, err := u.agentsService.TransitionAgent(
		ctx, agent.ID,
		models.AgentStatusFunding, models.AgentStatusFunded,
		fmt.Sprintf("funding transfer %s settled", transferID),
	)
	if err != nil {
		return fmt.Errorf("failed to mark agent funded: %w", err)
	}
	if updated.IsAbsent() {
		if marked {
			log.Printf("⚠️ Stale funding callback for agent %s dropped", agent.ID)
		} else {
			log.Printf("⚠️ Duplicate funding callback for agent %s dropped", agent.ID)
		}
		return nil
	}

	log.Printf("✅ Agent %s funded", agent.ID)
	return nil
}
