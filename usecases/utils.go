package usecases

import (
	"agentbackend/core"
	"agentbackend/models"
)

// RequireOwner checks that the authenticated principal owns the agent. Every
// mutating operation goes through this; reads additionally allow public agents.
func RequireOwner(agent *models.Agent, user *models.User) error {
	if agent.OwnerID != user.ID {
		return core.ErrAccessDenied
	}
	return nil
}

// RequireReadable allows the owner plus anyone for public agents
func RequireReadable(agent *models.Agent, user *models.User) error {
	if agent.Visibility == models.AgentVisibilityPublic {
		return nil
	}
	return RequireOwner(agent, user)
}
