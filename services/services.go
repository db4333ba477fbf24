package services

import (
	"context"

	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	"agentbackend/models"
)

// UsersService defines the interface for user-related operations
type UsersService interface {
	GetOrCreateUser(ctx context.Context, authProvider, authProviderID string) (*models.User, error)
}

// AgentsService owns the agent record and its status history. All status
// mutation goes through TransitionAgent / TransitionAgentWithDeploymentCap,
// which are conditional writes - a stale expected status is reported as a None
// result, never as an error.
type AgentsService interface {
	CreateAgent(
		ctx context.Context,
		ownerID, name, codeHash, codeLocation string,
	) (*models.Agent, bool, error)
	GetAgentByID(ctx context.Context, id string) (mo.Option[*models.Agent], error)
	GetAgentByOwnerAndCodeHash(ctx context.Context, ownerID, codeHash string) (mo.Option[*models.Agent], error)
	GetAgentByBuildJobID(ctx context.Context, buildJobID string) (mo.Option[*models.Agent], error)
	ListAgentsByOwner(ctx context.Context, ownerID string) ([]*models.Agent, error)
	ListAgentsByStatus(ctx context.Context, status models.AgentStatus) ([]*models.Agent, error)

	TransitionAgent(
		ctx context.Context,
		agentID string,
		from, to models.AgentStatus,
		cause string,
	) (mo.Option[*models.Agent], error)
	TransitionAgentWithDeploymentCap(
		ctx context.Context,
		agentID, ownerID string,
		from, to models.AgentStatus,
		cause string,
		maxLiveDeployments int,
	) (mo.Option[*models.Agent], error)

	// RecordAgentEvent appends a history entry without changing status, used to
	// record synchronous external-call failures
	RecordAgentEvent(ctx context.Context, agentID string, status models.AgentStatus, cause string) error
	ListStatusHistory(ctx context.Context, agentID string) ([]*models.AgentStatusEvent, error)

	SetBuildRef(ctx context.Context, agentID, buildJobID string) error
	SetBuildResult(ctx context.Context, agentID, artifactRef string) error
	SetBrokerageAccount(ctx context.Context, agentID, accountID, relationshipID string) (bool, error)
	SetFundedAmount(ctx context.Context, agentID string, amount decimal.Decimal) error
	MarkFunded(ctx context.Context, agentID string) (bool, error)
	SetDeploymentRef(ctx context.Context, agentID, handle string, replicas int) error
	ClearDeploymentRef(ctx context.Context, agentID string) error
}

// TransactionManager provides transaction management for service operations
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	BeginTransaction(ctx context.Context) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
}
