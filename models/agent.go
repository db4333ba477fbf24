package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type AgentStatus string

const (
	AgentStatusSubmitted           AgentStatus = "submitted"
	AgentStatusValidated           AgentStatus = "validated"
	AgentStatusBacktestRunning     AgentStatus = "backtest_running"
	AgentStatusBacktestSucceeded   AgentStatus = "backtest_succeeded"
	AgentStatusBacktestFailed      AgentStatus = "backtest_failed"
	AgentStatusAccountProvisioning AgentStatus = "account_provisioning"
	AgentStatusAccountReady        AgentStatus = "account_ready"
	AgentStatusFunding             AgentStatus = "funding"
	AgentStatusFunded              AgentStatus = "funded"
	AgentStatusDeploymentRunning   AgentStatus = "deployment_running"
	AgentStatusTrading             AgentStatus = "trading"
	AgentStatusDeploymentFailed    AgentStatus = "deployment_failed"
	AgentStatusStopped             AgentStatus = "stopped"
	AgentStatusDeleted             AgentStatus = "deleted"
)

// agentTransitions is the single source of truth for which status changes are legal.
// Every write to Agent.Status goes through a conditional update that is validated
// against this table first.
var agentTransitions = map[AgentStatus][]AgentStatus{
	AgentStatusSubmitted:         {AgentStatusValidated, AgentStatusDeleted},
	AgentStatusValidated:         {AgentStatusBacktestRunning, AgentStatusDeleted},
	AgentStatusBacktestRunning:   {AgentStatusBacktestSucceeded, AgentStatusBacktestFailed, AgentStatusValidated, AgentStatusDeleted},
	AgentStatusBacktestSucceeded: {AgentStatusAccountProvisioning, AgentStatusAccountReady, AgentStatusDeleted},
	AgentStatusBacktestFailed:    {AgentStatusValidated, AgentStatusDeleted},

	AgentStatusAccountProvisioning: {AgentStatusAccountReady, AgentStatusDeleted},
	AgentStatusAccountReady:        {AgentStatusFunding, AgentStatusDeleted},
	AgentStatusFunding:             {AgentStatusFunded, AgentStatusAccountReady, AgentStatusDeleted},
	AgentStatusFunded:              {AgentStatusDeploymentRunning, AgentStatusDeleted},

	AgentStatusDeploymentRunning: {AgentStatusTrading, AgentStatusDeploymentFailed, AgentStatusFunded},
	AgentStatusTrading:           {AgentStatusStopped},
	AgentStatusDeploymentFailed:  {AgentStatusFunded, AgentStatusDeleted},
	AgentStatusStopped:           {AgentStatusDeleted},

	AgentStatusDeleted: {},
}

// CanTransition reports whether moving an agent from one status to another is legal.
func CanTransition(from, to AgentStatus) bool {
	for _, allowed := range agentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsDeletable reports whether an owner may soft-delete an agent in the given status.
// Agents with a live workload must be stopped first.
func (s AgentStatus) IsDeletable() bool {
	return CanTransition(s, AgentStatusDeleted)
}

type AgentVisibility string

const (
	AgentVisibilityPrivate AgentVisibility = "private"
	AgentVisibilityPublic  AgentVisibility = "public"
)

type FundingState string

const (
	FundingStateNone    FundingState = "none"
	FundingStatePending FundingState = "pending"
	FundingStateFunded  FundingState = "funded"
)

type Agent struct {
	ID           string          `db:"id"            json:"id"`
	OwnerID      string          `db:"owner_id"      json:"owner_id"`
	Name         string          `db:"name"          json:"name"`
	CodeHash     string          `db:"code_hash"     json:"code_hash"`
	CodeLocation string          `db:"code_location" json:"code_location"`
	Status       AgentStatus     `db:"status"        json:"status"`
	Visibility   AgentVisibility `db:"visibility"    json:"visibility"`

	// Backtest build reference - overwritten on every attempt
	BuildJobID  *string `db:"build_job_id" json:"build_job_id,omitempty"`
	BuildResult *string `db:"build_result" json:"build_result,omitempty"`

	// Brokerage reference - account is created at most once per agent
	BrokerageAccountID      *string             `db:"brokerage_account_id"      json:"brokerage_account_id,omitempty"`
	BrokerageRelationshipID *string             `db:"brokerage_relationship_id" json:"brokerage_relationship_id,omitempty"`
	FundingState            FundingState        `db:"funding_state"             json:"funding_state"`
	FundedAmount            decimal.NullDecimal `db:"funded_amount"             json:"funded_amount,omitempty"`

	// Deployment reference - present only while a workload exists
	DeploymentHandle *string `db:"deployment_handle" json:"deployment_handle,omitempty"`
	DesiredReplicas  int     `db:"desired_replicas"  json:"desired_replicas"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// AgentStatusEvent is one row of the append-only status history for an agent.
// Events are never mutated in place - they are the audit trail for how an agent
// ended up in its current state.
type AgentStatusEvent struct {
	ID        string      `db:"id"         json:"id"`
	AgentID   string      `db:"agent_id"   json:"agent_id"`
	Status    AgentStatus `db:"status"     json:"status"`
	Cause     string      `db:"cause"      json:"cause"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}
