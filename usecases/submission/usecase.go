package submission

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"

	"agentbackend/clients"
	"agentbackend/milestonenotif"
	"agentbackend/models"
	"agentbackend/services"
	"agentbackend/usecases"
)

// SubmissionUseCase is the single entry point for user-submitted strategy
// code. It normalizes and hashes the payload, rejects disallowed code, stores
// the accepted payload, creates the agent record exactly once per
// (owner, code hash) pair and kicks off the backtest stage.
type SubmissionUseCase struct {
	agentsService   services.AgentsService
	codeStoreClient clients.CodeStoreClient
	backtestUseCase usecases.BacktestUseCaseInterface
}

func NewSubmissionUseCase(
	agentsService services.AgentsService,
	codeStoreClient clients.CodeStoreClient,
	backtestUseCase usecases.BacktestUseCaseInterface,
) *SubmissionUseCase {
	return &SubmissionUseCase{
		agentsService:   agentsService,
		codeStoreClient: codeStoreClient,
		backtestUseCase: backtestUseCase,
	}
}

// Submit runs the full submission flow. The second return value reports
// whether the submission was a duplicate of an existing agent, in which case
// the existing agent is returned unchanged and nothing else happens.
func (u *SubmissionUseCase) Submit(
	ctx context.Context,
	user *models.User,
	name string,
	code []byte,
) (*models.Agent, bool, error) {
	log.Printf("📋 Starting submission for user %s (%d bytes)", user.ID, len(code))

	name = strings.TrimSpace(name)
	if name == "" {
		name = "unnamed strategy"
	}

	codeHash := HashCode(code)

	// Fast-path dedup check before doing any work. The unique constraint on
	// (owner_id, code_hash) is the real guarantee - this just avoids storing
	// code and running validation for an obvious resubmit.
	existing, err := u.agentsService.GetAgentByOwnerAndCodeHash(ctx, user.ID, codeHash)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check for duplicate submission: %w", err)
	}
	if agent, found := existing.Get(); found {
		log.Printf("✅ Submission is a duplicate of agent %s, returning existing record", agent.ID)
		return agent, true, nil
	}

	if err := ValidateStrategyCode(code); err != nil {
		log.Printf("❌ Submission rejected by static validation: %v", err)
		return nil, false, err
	}

	// The store path is keyed by content hash, so a concurrent identical
	// submission writes the same bytes to the same location.
	path := fmt.Sprintf("agents/%s/%s/strategy.py", user.ID, codeHash)
	location, err := u.codeStoreClient.Put(ctx, path, code)
	if err != nil {
		return nil, false, fmt.Errorf("failed to store strategy code: %w", err)
	}

	agent, created, err := u.agentsService.CreateAgent(ctx, user.ID, name, codeHash, location)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create agent: %w", err)
	}
	if !created {
		// Lost the race against a concurrent identical submission
		log.Printf("✅ Submission raced an identical one, returning existing agent %s", agent.ID)
		return agent, true, nil
	}

	validated, err := u.agentsService.TransitionAgent(
		ctx, agent.ID,
		models.AgentStatusSubmitted, models.AgentStatusValidated,
		"static validation passed",
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark agent validated: %w", err)
	}
	if updated, ok := validated.Get(); ok {
		agent = updated
	} else {
		// Somebody else already moved the agent on, nothing left to do here
		log.Printf("⚠️ Agent %s transitioned concurrently during submission, skipping backtest kickoff", agent.ID)
		refreshed, err := u.agentsService.GetAgentByID(ctx, agent.ID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to re-read agent: %w", err)
		}
		if current, found := refreshed.Get(); found {
			return current, false, nil
		}
		return nil, false, fmt.Errorf("agent disappeared during submission")
	}

	if err := u.backtestUseCase.Begin(ctx, agent.ID); err != nil {
		// The agent exists and is validated - backtest kickoff is retryable,
		// so a submit never fails because the build executor is down
		log.Printf("⚠️ Backtest kickoff failed for agent %s, owner can retry: %v", agent.ID, err)
		return agent, false, nil
	}

	log.Printf("✅ Completed submission, agent %s created", agent.ID)
	milestonenotif.New(agent.ID, fmt.Sprintf("New strategy %q submitted by user %s", agent.Name, user.ID))
	return agent, false, nil
}

// HashCode returns the hex SHA-256 of a code payload, the identity used for
// per-owner submission dedup.
func HashCode(code []byte) string {
	sum := sha256.Sum256(code)
	return hex.EncodeToString(sum[:])
}
