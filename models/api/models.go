package api

import (
	"time"
)

// UserModel represents the user data returned by the API
type UserModel struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentModel represents the agent data returned by the API
type AgentModel struct {
	ID           string `json:"id"`
	OwnerID      string `json:"owner_id"`
	Name         string `json:"name"`
	CodeHash     string `json:"code_hash"`
	Status       string `json:"status"`
	Visibility   string `json:"visibility"`
	FundingState string `json:"funding_state"`

	BuildJobID         *string `json:"build_job_id,omitempty"`
	BuildResult        *string `json:"build_result,omitempty"`
	BrokerageAccountID *string `json:"brokerage_account_id,omitempty"`
	FundedAmount       *string `json:"funded_amount,omitempty"`
	DeploymentHandle   *string `json:"deployment_handle,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentStatusEventModel represents one status history entry returned by the API
type AgentStatusEventModel struct {
	Status    string    `json:"status"`
	Cause     string    `json:"cause"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmitAgentResponse is returned by the submission endpoint. Duplicate is true
// when the submitted code resolved to an already existing agent.
type SubmitAgentResponse struct {
	Agent     *AgentModel `json:"agent"`
	Duplicate bool        `json:"duplicate"`
}

// FundAgentResponse is returned by the funding endpoint
type FundAgentResponse struct {
	Agent        *AgentModel `json:"agent"`
	FundedAmount string      `json:"funded_amount,omitempty"`
	Retryable    bool        `json:"retryable,omitempty"`
}
