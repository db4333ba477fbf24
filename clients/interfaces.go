package clients

import (
	"context"

	"github.com/shopspring/decimal"
)

// CodeStoreClient is the content store for submitted strategy code
type CodeStoreClient interface {
	// Put writes the payload at the given path and returns its location handle
	Put(ctx context.Context, path string, contents []byte) (string, error)
	// Get reads the payload back by its location handle
	Get(ctx context.Context, location string) ([]byte, error)
}

// BuildSpec describes one backtest run handed to the build executor. The
// executor runs the strategy in a network-denied sandbox and reports the
// terminal status asynchronously via webhook.
type BuildSpec struct {
	AgentID      string   `json:"agent_id"`
	OwnerID      string   `json:"owner_id"`
	CodeLocation string   `json:"code_location"`
	StartDate    string   `json:"start_date"`
	EndDate      string   `json:"end_date"`
	InitialCash  string   `json:"initial_cash"`
	Symbols      []string `json:"symbols"`
	Timeframe    string   `json:"timeframe"`
}

// BuildExecutorClient submits backtest jobs to the remote build executor
type BuildExecutorClient interface {
	SubmitBuild(ctx context.Context, spec BuildSpec) (string, error)
	CancelBuild(ctx context.Context, jobID string) error
}

// OwnerProfile carries the identity information the brokerage needs to open a
// paper account for an agent
type OwnerProfile struct {
	UserID  string
	AgentID string
	Email   string
}

// BrokerageAccount is the reference returned by account creation. The ACH
// relationship is established together with the account and is required for
// the later funding transfer.
type BrokerageAccount struct {
	AccountID      string
	RelationshipID string
	Status         string
}

// BrokerageClient talks to the brokerage's account and transfer APIs.
// CreateTransfer returns core.ErrFundingNotReady when the bank relationship
// has not settled yet - an expected, retryable condition.
type BrokerageClient interface {
	CreateAccount(ctx context.Context, profile OwnerProfile) (*BrokerageAccount, error)
	CreateTransfer(ctx context.Context, accountID, relationshipID string, amount decimal.Decimal) (string, error)
}

// WorkloadSpec describes one long-lived paper-trading workload
type WorkloadSpec struct {
	AgentID            string
	OwnerID            string
	CodeLocation       string
	BrokerageAccountID string
	Replicas           int32
}

// WorkloadStatus is a point-in-time snapshot of a deployed workload
type WorkloadStatus struct {
	Ready         bool
	Failed        bool
	FailureReason string
}

// DeploymentClient runs one workload per agent on the deployment platform
type DeploymentClient interface {
	Deploy(ctx context.Context, spec WorkloadSpec) (string, error)
	Status(ctx context.Context, handle string) (WorkloadStatus, error)
	Delete(ctx context.Context, handle string) error
}
