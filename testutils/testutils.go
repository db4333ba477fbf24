package testutils

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"agentbackend/appctx"
	"agentbackend/config"
	"agentbackend/core"
	"agentbackend/db"
	"agentbackend/models"
)

// LoadTestConfig loads configuration for tests from environment variables
func LoadTestConfig() (*config.AppConfig, error) {
	// Try to load environment variables from various possible locations
	_ = godotenv.Load("../.env.test") // From services/ directory
	_ = godotenv.Load(".env.test")    // From root directory
	_ = godotenv.Load()               // Default .env file

	databaseURL := os.Getenv("DB_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("DB_URL is not set")
	}

	databaseSchema := os.Getenv("DB_SCHEMA")
	if databaseSchema == "" {
		return nil, fmt.Errorf("DB_SCHEMA is not set")
	}

	return &config.AppConfig{
		DatabaseURL:    databaseURL,
		DatabaseSchema: databaseSchema,
	}, nil
}

// SkipIfNoDatabase skips the calling test when the database env vars required
// for integration tests are not set.
func SkipIfNoDatabase(t *testing.T) *config.AppConfig {
	cfg, err := LoadTestConfig()
	if err != nil {
		t.Skipf("Skipping database test: %v", err)
	}
	return cfg
}

// CreateTestUser creates a test user with a unique auth principal to avoid
// constraint violations
func CreateTestUser(t *testing.T, usersRepo *db.PostgresUsersRepository) *models.User {
	testUserID := uuid.New().String()
	testUser, err := usersRepo.GetOrCreateUser(context.Background(), "test", testUserID)
	require.NoError(t, err, "Failed to create test user")
	return testUser
}

// CreateTestAgent inserts an agent in status submitted owned by the given user
func CreateTestAgent(t *testing.T, agentsRepo *db.PostgresAgentsRepository, ownerID string) *models.Agent {
	codeHash := uuid.New().String()
	agent := &models.Agent{
		ID:           core.NewID("ag"),
		OwnerID:      ownerID,
		Name:         "test strategy",
		CodeHash:     codeHash,
		CodeLocation: fmt.Sprintf("agents/%s/%s/strategy.py", ownerID, codeHash),
		Status:       models.AgentStatusSubmitted,
		Visibility:   models.AgentVisibilityPrivate,
		FundingState: models.FundingStateNone,
	}
	created, err := agentsRepo.CreateAgentIfAbsent(context.Background(), agent)
	require.NoError(t, err, "Failed to create test agent")
	require.True(t, created, "Test agent unexpectedly already existed")
	return agent
}

// CreateTestContext creates a context with the given user set for testing
func CreateTestContext(user *models.User) context.Context {
	ctx := context.Background()
	return appctx.SetUser(ctx, user)
}
