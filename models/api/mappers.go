package api

import "agentbackend/models"

// DomainUserToAPIUser converts a domain User model to an API UserModel
func DomainUserToAPIUser(domainUser *models.User) *UserModel {
	if domainUser == nil {
		return nil
	}

	return &UserModel{
		ID:        domainUser.ID,
		Email:     domainUser.Email,
		CreatedAt: domainUser.CreatedAt,
		UpdatedAt: domainUser.UpdatedAt,
	}
}

// DomainAgentToAPIAgent converts a domain Agent model to an API AgentModel
func DomainAgentToAPIAgent(domainAgent *models.Agent) *AgentModel {
	if domainAgent == nil {
		return nil
	}

	agent := &AgentModel{
		ID:                 domainAgent.ID,
		OwnerID:            domainAgent.OwnerID,
		Name:               domainAgent.Name,
		CodeHash:           domainAgent.CodeHash,
		Status:             string(domainAgent.Status),
		Visibility:         string(domainAgent.Visibility),
		FundingState:       string(domainAgent.FundingState),
		BuildJobID:         domainAgent.BuildJobID,
		BuildResult:        domainAgent.BuildResult,
		BrokerageAccountID: domainAgent.BrokerageAccountID,
		DeploymentHandle:   domainAgent.DeploymentHandle,
		CreatedAt:          domainAgent.CreatedAt,
		UpdatedAt:          domainAgent.UpdatedAt,
	}

	if domainAgent.FundedAmount.Valid {
		amount := domainAgent.FundedAmount.Decimal.StringFixed(2)
		agent.FundedAmount = &amount
	}

	return agent
}

// DomainAgentsToAPIAgents converts a slice of domain Agent models to API AgentModels
func DomainAgentsToAPIAgents(domainAgents []*models.Agent) []*AgentModel {
	agents := make([]*AgentModel, 0, len(domainAgents))
	for _, domainAgent := range domainAgents {
		agents = append(agents, DomainAgentToAPIAgent(domainAgent))
	}
	return agents
}

// DomainStatusEventsToAPIStatusEvents converts domain status events to API models
func DomainStatusEventsToAPIStatusEvents(events []*models.AgentStatusEvent) []*AgentStatusEventModel {
	apiEvents := make([]*AgentStatusEventModel, 0, len(events))
	for _, event := range events {
		apiEvents = append(apiEvents, &AgentStatusEventModel{
			Status:    string(event.Status),
			Cause:     event.Cause,
			CreatedAt: event.CreatedAt,
		})
	}
	return apiEvents
}
