package agents

import (
	"context"
	"fmt"
	"log"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"agentbackend/core"
	"agentbackend/db"
	"agentbackend/models"
	"agentbackend/services"
)

// AgentsService owns every write to an agent's status and references. All
// transitions are compare-and-set writes against the agents table, so
// concurrent callbacks for the same agent are safe without any in-process lock.
type AgentsService struct {
	agentsRepo *db.PostgresAgentsRepository
	eventsRepo *db.PostgresStatusEventsRepository
	txManager  services.TransactionManager
}

func NewAgentsService(
	agentsRepo *db.PostgresAgentsRepository,
	eventsRepo *db.PostgresStatusEventsRepository,
	txManager services.TransactionManager,
) *AgentsService {
	return &AgentsService{agentsRepo: agentsRepo, eventsRepo: eventsRepo, txManager: txManager}
}

// CreateAgent inserts a new agent in status submitted, or resolves to the
// existing agent when the owner already submitted identical code. The second
// return value reports whether a new record was created.
func (s *AgentsService) CreateAgent(
	ctx context.Context,
	ownerID, name, codeHash, codeLocation string,
) (*models.Agent, bool, error) {
	log.Printf("📋 Starting to create agent for owner: %s, codeHash: %s", ownerID, codeHash)
	if !core.IsValidULID(ownerID) {
		return nil, false, fmt.Errorf("owner_id must be a valid ULID")
	}
	if codeHash == "" {
		return nil, false, fmt.Errorf("code_hash cannot be empty")
	}
	if codeLocation == "" {
		return nil, false, fmt.Errorf("code_location cannot be empty")
	}

	agent := &models.Agent{
		ID:           core.NewID("ag"),
		OwnerID:      ownerID,
		Name:         name,
		CodeHash:     codeHash,
		CodeLocation: codeLocation,
		Status:       models.AgentStatusSubmitted,
		Visibility:   models.AgentVisibilityPrivate,
		FundingState: models.FundingStateNone,
	}

	var created bool
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		created, err = s.agentsRepo.CreateAgentIfAbsent(txCtx, agent)
		if err != nil {
			return err
		}
		if !created {
			return nil
		}
		return s.appendEvent(txCtx, agent.ID, agent.Status, "agent created")
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create agent: %w", err)
	}

	if !created {
		// Lost to the unique (owner_id, code_hash) constraint - resolve to the winner
		maybeExisting, err := s.agentsRepo.GetAgentByOwnerAndCodeHash(ctx, ownerID, codeHash)
		if err != nil {
			return nil, false, fmt.Errorf("failed to resolve duplicate agent: %w", err)
		}
		if !maybeExisting.IsPresent() {
			return nil, false, fmt.Errorf("duplicate agent for owner %s disappeared during create", ownerID)
		}
		existing := maybeExisting.MustGet()
		log.Printf("📋 Duplicate submission resolved to existing agent: %s", existing.ID)
		return existing, false, nil
	}

	log.Printf("📋 Completed successfully - created agent with ID: %s", agent.ID)
	return agent, true, nil
}

func (s *AgentsService) GetAgentByID(ctx context.Context, id string) (mo.Option[*models.Agent], error) {
	if !core.IsValidULID(id) {
		return mo.None[*models.Agent](), fmt.Errorf("agent ID must be a valid ULID")
	}
	return s.agentsRepo.GetAgentByID(ctx, id)
}

func (s *AgentsService) GetAgentByOwnerAndCodeHash(
	ctx context.Context,
	ownerID, codeHash string,
) (mo.Option[*models.Agent], error) {
	if !core.IsValidULID(ownerID) {
		return mo.None[*models.Agent](), fmt.Errorf("owner_id must be a valid ULID")
	}
	if codeHash == "" {
		return mo.None[*models.Agent](), fmt.Errorf("code_hash cannot be empty")
	}
	return s.agentsRepo.GetAgentByOwnerAndCodeHash(ctx, ownerID, codeHash)
}

func (s *AgentsService) GetAgentByBuildJobID(
	ctx context.Context,
	buildJobID string,
) (mo.Option[*models.Agent], error) {
	if buildJobID == "" {
		return mo.None[*models.Agent](), fmt.Errorf("build_job_id cannot be empty")
	}
	return s.agentsRepo.GetAgentByBuildJobID(ctx, buildJobID)
}

func (s *AgentsService) ListAgentsByOwner(ctx context.Context, ownerID string) ([]*models.Agent, error) {
	if !core.IsValidULID(ownerID) {
		return nil, fmt.Errorf("owner_id must be a valid ULID")
	}
	return s.agentsRepo.ListAgentsByOwner(ctx, ownerID)
}

func (s *AgentsService) ListAgentsByStatus(
	ctx context.Context,
	status models.AgentStatus,
) ([]*models.Agent, error) {
	return s.agentsRepo.ListAgentsByStatus(ctx, status)
}

// TransitionAgent is the single mutation path for agent status. The write only
// succeeds while the agent is still in the expected status; a lost race comes
// back as None and is dropped without touching the status history.
func (s *AgentsService) TransitionAgent(
	ctx context.Context,
	agentID string,
	from, to models.AgentStatus,
	cause string,
) (mo.Option[*models.Agent], error) {
	log.Printf("📋 Starting transition for agent %s: %s -> %s (%s)", agentID, from, to, cause)
	if !core.IsValidULID(agentID) {
		return mo.None[*models.Agent](), fmt.Errorf("agent ID must be a valid ULID")
	}
	if !models.CanTransition(from, to) {
		return mo.None[*models.Agent](), fmt.Errorf("illegal transition %s -> %s", from, to)
	}

	var result mo.Option[*models.Agent]
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		result, err = s.agentsRepo.UpdateAgentStatus(txCtx, agentID, from, to)
		if err != nil {
			return err
		}
		if !result.IsPresent() {
			return nil
		}
		return s.appendEvent(txCtx, agentID, to, cause)
	})
	if err != nil {
		return mo.None[*models.Agent](), fmt.Errorf("failed to transition agent: %w", err)
	}

	if !result.IsPresent() {
		log.Printf("⚠️ Stale transition dropped for agent %s: expected status %s no longer current", agentID, from)
		return result, nil
	}

	log.Printf("📋 Completed successfully - agent %s is now %s", agentID, to)
	return result, nil
}

// TransitionAgentWithDeploymentCap performs the deployment-begin transition.
// The per-owner live deployment count is checked inside the same conditional
// write, so two concurrent begins cannot both slip under the cap. A cap
// rejection surfaces as core.ErrConcurrencyLimitExceeded; a stale status comes
// back as None like any other transition.
func (s *AgentsService) TransitionAgentWithDeploymentCap(
	ctx context.Context,
	agentID, ownerID string,
	from, to models.AgentStatus,
	cause string,
	maxLiveDeployments int,
) (mo.Option[*models.Agent], error) {
	log.Printf("📋 Starting capped transition for agent %s: %s -> %s (owner %s, cap %d)",
		agentID, from, to, ownerID, maxLiveDeployments)
	if !core.IsValidULID(agentID) {
		return mo.None[*models.Agent](), fmt.Errorf("agent ID must be a valid ULID")
	}
	if !models.CanTransition(from, to) {
		return mo.None[*models.Agent](), fmt.Errorf("illegal transition %s -> %s", from, to)
	}

	var result mo.Option[*models.Agent]
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		result, err = s.agentsRepo.UpdateAgentStatusWithOwnerCap(
			txCtx, agentID, ownerID, from, to, maxLiveDeployments)
		if err != nil {
			return err
		}
		if !result.IsPresent() {
			return nil
		}
		return s.appendEvent(txCtx, agentID, to, cause)
	})
	if err != nil {
		return mo.None[*models.Agent](), fmt.Errorf("failed to transition agent with cap: %w", err)
	}

	if result.IsPresent() {
		log.Printf("📋 Completed successfully - agent %s is now %s", agentID, to)
		return result, nil
	}

	// The guarded write rejected - distinguish cap exhaustion from a stale status
	maybeAgent, err := s.agentsRepo.GetAgentByID(ctx, agentID)
	if err != nil {
		return mo.None[*models.Agent](), err
	}
	if maybeAgent.IsPresent() && maybeAgent.MustGet().Status == from {
		log.Printf("⚠️ Deployment cap reached for owner %s", ownerID)
		return mo.None[*models.Agent](), core.ErrConcurrencyLimitExceeded
	}

	log.Printf("⚠️ Stale transition dropped for agent %s: expected status %s no longer current", agentID, from)
	return mo.None[*models.Agent](), nil
}

// RecordAgentEvent appends a history entry without a status change. Used when
// an external collaborator call fails synchronously - the attempt is recorded
// but the agent stays where it was so a retry can re-attempt it.
func (s *AgentsService) RecordAgentEvent(
	ctx context.Context,
	agentID string,
	status models.AgentStatus,
	cause string,
) error {
	if !core.IsValidULID(agentID) {
		return fmt.Errorf("agent ID must be a valid ULID")
	}
	return s.appendEvent(ctx, agentID, status, cause)
}

func (s *AgentsService) ListStatusHistory(
	ctx context.Context,
	agentID string,
) ([]*models.AgentStatusEvent, error) {
	if !core.IsValidULID(agentID) {
		return nil, fmt.Errorf("agent ID must be a valid ULID")
	}
	return s.eventsRepo.ListStatusEventsByAgentID(ctx, agentID)
}

func (s *AgentsService) SetBuildRef(ctx context.Context, agentID, buildJobID string) error {
	if buildJobID == "" {
		return fmt.Errorf("build_job_id cannot be empty")
	}
	return s.agentsRepo.SetBuildRef(ctx, agentID, buildJobID)
}

func (s *AgentsService) SetBuildResult(ctx context.Context, agentID, artifactRef string) error {
	return s.agentsRepo.SetBuildResult(ctx, agentID, artifactRef)
}

func (s *AgentsService) SetBrokerageAccount(
	ctx context.Context,
	agentID, accountID, relationshipID string,
) (bool, error) {
	if accountID == "" {
		return false, fmt.Errorf("account_id cannot be empty")
	}
	return s.agentsRepo.SetBrokerageAccount(ctx, agentID, accountID, relationshipID)
}

func (s *AgentsService) SetFundedAmount(ctx context.Context, agentID string, amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("funding amount must be positive")
	}
	return s.agentsRepo.SetFundedAmount(ctx, agentID, amount)
}

func (s *AgentsService) MarkFunded(ctx context.Context, agentID string) (bool, error) {
	return s.agentsRepo.MarkFunded(ctx, agentID)
}

func (s *AgentsService) SetDeploymentRef(ctx context.Context, agentID, handle string, replicas int) error {
	if handle == "" {
		return fmt.Errorf("deployment handle cannot be empty")
	}
	return s.agentsRepo.SetDeploymentRef(ctx, agentID, handle, replicas)
}

func (s *AgentsService) ClearDeploymentRef(ctx context.Context, agentID string) error {
	return s.agentsRepo.ClearDeploymentRef(ctx, agentID)
}

func (s *AgentsService) appendEvent(
	ctx context.Context,
	agentID string,
	status models.AgentStatus,
	cause string,
) error {
	event := &models.AgentStatusEvent{
		ID:      core.NewID("ev"),
		AgentID: agentID,
		Status:  status,
		Cause:   cause,
	}
	if err := s.eventsRepo.CreateStatusEvent(ctx, event); err != nil {
		return fmt.Errorf("failed to append status event: %w", err)
	}
	return nil
}
