package usecases

import (
	"context"

	"github.com/shopspring/decimal"

	"agentbackend/models"
)

// SubmissionUseCaseInterface is the submission gateway: it validates and
// deduplicates incoming strategy code and kicks off the pipeline
type SubmissionUseCaseInterface interface {
	Submit(ctx context.Context, user *models.User, name string, code []byte) (*models.Agent, bool, error)
}

// LifecycleUseCaseInterface exposes owner-facing reads and the soft delete
type LifecycleUseCaseInterface interface {
	GetAgent(ctx context.Context, user *models.User, agentID string) (*models.Agent, error)
	ListAgents(ctx context.Context, user *models.User) ([]*models.Agent, error)
	GetStatusHistory(ctx context.Context, user *models.User, agentID string) ([]*models.AgentStatusEvent, error)
	DeleteAgent(ctx context.Context, user *models.User, agentID string) (*models.Agent, error)
}

// BacktestUseCaseInterface drives the backtest stage against the build executor
type BacktestUseCaseInterface interface {
	Begin(ctx context.Context, agentID string) error
	Retry(ctx context.Context, user *models.User, agentID string) error
	Cancel(ctx context.Context, user *models.User, agentID string) error
	OnCallback(ctx context.Context, jobID string, succeeded bool, artifactRef, failureReason string) error
}

// BrokerageUseCaseInterface drives account creation and funding against the
// brokerage service
type BrokerageUseCaseInterface interface {
	BeginAccountCreation(ctx context.Context, user *models.User, agentID string) (*models.Agent, error)
	BeginFunding(ctx context.Context, user *models.User, agentID string, amount decimal.Decimal) (*models.Agent, error)
	OnAccountCallback(ctx context.Context, agentID string) error
	OnFundingCallback(ctx context.Context, agentID, transferID string) error
}

// DeploymentUseCaseInterface drives the live paper-trading deployment stage
type DeploymentUseCaseInterface interface {
	Begin(ctx context.Context, user *models.User, agentID string) (*models.Agent, error)
	Stop(ctx context.Context, user *models.User, agentID string) (*models.Agent, error)
	OnCallback(ctx context.Context, agentID string, ready bool, failureReason string) error
	ReconcileRunningDeployments(ctx context.Context) error
}
