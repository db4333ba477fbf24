package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/samber/mo"
	"github.com/shopspring/decimal"

	// necessary import to wire up the postgres driver
	_ "github.com/lib/pq"

	dbtx "agentbackend/db/tx"
	"agentbackend/models"
)

type PostgresAgentsRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for agents table
var agentsColumns = []string{
	"id",
	"owner_id",
	"name",
	"code_hash",
	"code_location",
	"status",
	"visibility",
	"build_job_id",
	"build_result",
	"brokerage_account_id",
	"brokerage_relationship_id",
	"funding_state",
	"funded_amount",
	"deployment_handle",
	"desired_replicas",
	"created_at",
	"updated_at",
}

func NewPostgresAgentsRepository(db *sqlx.DB, schema string) *PostgresAgentsRepository {
	return &PostgresAgentsRepository{db: db, schema: schema}
}

// CreateAgentIfAbsent inserts the agent unless one already exists for the same
// (owner_id, code_hash) pair. The unique index on that pair is the hard dedup
// constraint - a losing concurrent insert comes back as created=false and the
// caller resolves to the existing record.
func (r *PostgresAgentsRepository) CreateAgentIfAbsent(
	ctx context.Context,
	agent *models.Agent,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(agentsColumns, ", ")
	query := fmt.Sprintf(`
		INSERT INTO %s.agents (
			id, owner_id, name, code_hash, code_location, status, visibility,
			funding_state, desired_replicas, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, NOW(), NOW())
		ON CONFLICT (owner_id, code_hash) DO NOTHING
		RETURNING %s`, r.schema, returningStr)

	err := db.QueryRowxContext(ctx, query,
		agent.ID, agent.OwnerID, agent.Name, agent.CodeHash, agent.CodeLocation,
		agent.Status, agent.Visibility, agent.FundingState).StructScan(agent)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			// Conflict on (owner_id, code_hash) - an agent for this code already exists
			return false, nil
		}
		return false, fmt.Errorf("failed to create agent: %w", err)
	}

	return true, nil
}

func (r *PostgresAgentsRepository) GetAgentByID(
	ctx context.Context,
	id string,
) (mo.Option[*models.Agent], error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.agents
		WHERE id = $1`, strings.Join(agentsColumns, ", "), r.schema)

	agent := &models.Agent{}
	err := db.QueryRowxContext(ctx, query, id).StructScan(agent)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return mo.None[*models.Agent](), nil
		}
		return mo.None[*models.Agent](), fmt.Errorf("failed to get agent: %w", err)
	}

	return mo.Some(agent), nil
}

func (r *PostgresAgentsRepository) GetAgentByOwnerAndCodeHash(
	ctx context.Context,
	ownerID, codeHash string,
) (mo.Option[*models.Agent], error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.agents
		WHERE owner_id = $1 AND code_hash = $2`, strings.Join(agentsColumns, ", "), r.schema)

	agent := &models.Agent{}
	err := db.QueryRowxContext(ctx, query, ownerID, codeHash).StructScan(agent)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return mo.None[*models.Agent](), nil
		}
		return mo.None[*models.Agent](), fmt.Errorf("failed to get agent by owner and code hash: %w", err)
	}

	return mo.Some(agent), nil
}

func (r *PostgresAgentsRepository) GetAgentByBuildJobID(
	ctx context.Context,
	buildJobID string,
) (mo.Option[*models.Agent], error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.agents
		WHERE build_job_id = $1`, strings.Join(agentsColumns, ", "), r.schema)

	agent := &models.Agent{}
	err := db.QueryRowxContext(ctx, query, buildJobID).StructScan(agent)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return mo.None[*models.Agent](), nil
		}
		return mo.None[*models.Agent](), fmt.Errorf("failed to get agent by build job ID: %w", err)
	}

	return mo.Some(agent), nil
}

func (r *PostgresAgentsRepository) ListAgentsByOwner(
	ctx context.Context,
	ownerID string,
) ([]*models.Agent, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.agents
		WHERE owner_id = $1 AND status != $2
		ORDER BY created_at ASC`, strings.Join(agentsColumns, ", "), r.schema)

	var agents []*models.Agent
	err := db.SelectContext(ctx, &agents, query, ownerID, models.AgentStatusDeleted)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents by owner: %w", err)
	}

	return agents, nil
}

func (r *PostgresAgentsRepository) ListAgentsByStatus(
	ctx context.Context,
	status models.AgentStatus,
) ([]*models.Agent, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.agents
		WHERE status = $1
		ORDER BY created_at ASC`, strings.Join(agentsColumns, ", "), r.schema)

	var agents []*models.Agent
	err := db.SelectContext(ctx, &agents, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents by status: %w", err)
	}

	return agents, nil
}

// UpdateAgentStatus performs the conditional status write every transition is
// built on: the row is only updated if its current status still equals the
// expected one. A None result means the write lost the race and the caller
// should treat the transition as stale.
func (r *PostgresAgentsRepository) UpdateAgentStatus(
	ctx context.Context,
	id string,
	expected, next models.AgentStatus,
) (mo.Option[*models.Agent], error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING %s`, r.schema, strings.Join(agentsColumns, ", "))

	agent := &models.Agent{}
	err := db.QueryRowxContext(ctx, query, id, expected, next).StructScan(agent)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return mo.None[*models.Agent](), nil
		}
		return mo.None[*models.Agent](), fmt.Errorf("failed to update agent status: %w", err)
	}

	return mo.Some(agent), nil
}

// UpdateAgentStatusWithOwnerCap is the deployment-begin write. The per-owner
// count of live deployments and the conditional status write happen in a single
// statement, so two concurrent begins cannot both pass the cap check.
func (r *PostgresAgentsRepository) UpdateAgentStatusWithOwnerCap(
	ctx context.Context,
	id, ownerID string,
	expected, next models.AgentStatus,
	maxLiveDeployments int,
) (mo.Option[*models.Agent], error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET status = $4, updated_at = NOW()
		WHERE id = $1 AND status = $3
		AND (
			SELECT COUNT(*) FROM %s.agents
			WHERE owner_id = $2 AND status IN ($5, $6)
		) < $7
		RETURNING %s`, r.schema, r.schema, strings.Join(agentsColumns, ", "))

	agent := &models.Agent{}
	err := db.QueryRowxContext(ctx, query,
		id, ownerID, expected, next,
		models.AgentStatusDeploymentRunning, models.AgentStatusTrading,
		maxLiveDeployments).StructScan(agent)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return mo.None[*models.Agent](), nil
		}
		return mo.None[*models.Agent](), fmt.Errorf("failed to update agent status with owner cap: %w", err)
	}

	return mo.Some(agent), nil
}

// CountLiveDeploymentsForOwner returns how many of the owner's agents currently
// hold a live deployment (running or trading)
func (r *PostgresAgentsRepository) CountLiveDeploymentsForOwner(
	ctx context.Context,
	ownerID string,
) (int, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s.agents
		WHERE owner_id = $1 AND status IN ($2, $3)`, r.schema)

	var count int
	err := db.GetContext(ctx, &count, query, ownerID,
		models.AgentStatusDeploymentRunning, models.AgentStatusTrading)
	if err != nil {
		return 0, fmt.Errorf("failed to count live deployments for owner: %w", err)
	}

	return count, nil
}

// SetBuildRef records a freshly submitted backtest job and clears the previous
// attempt's result
func (r *PostgresAgentsRepository) SetBuildRef(
	ctx context.Context,
	id, buildJobID string,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET build_job_id = $2, build_result = NULL, updated_at = NOW()
		WHERE id = $1`, r.schema)

	result, err := db.ExecContext(ctx, query, id, buildJobID)
	if err != nil {
		return fmt.Errorf("failed to set build ref: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("agent with id %s not found", id)
	}

	return nil
}

func (r *PostgresAgentsRepository) SetBuildResult(
	ctx context.Context,
	id, artifactRef string,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET build_result = $2, updated_at = NOW()
		WHERE id = $1`, r.schema)

	result, err := db.ExecContext(ctx, query, id, artifactRef)
	if err != nil {
		return fmt.Errorf("failed to set build result: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("agent with id %s not found", id)
	}

	return nil
}

// SetBrokerageAccount stores the brokerage account reference. The account id is
// set at most once per agent - a second write is a no-op and reports false.
func (r *PostgresAgentsRepository) SetBrokerageAccount(
	ctx context.Context,
	id, accountID, relationshipID string,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET brokerage_account_id = $2, brokerage_relationship_id = $3,
			funding_state = $4, updated_at = NOW()
		WHERE id = $1 AND brokerage_account_id IS NULL`, r.schema)

	result, err := db.ExecContext(ctx, query, id, accountID, relationshipID, models.FundingStatePending)
	if err != nil {
		return false, fmt.Errorf("failed to set brokerage account: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// SetFundedAmount records the amount requested for the pending transfer while
// the funding state remains pending
func (r *PostgresAgentsRepository) SetFundedAmount(
	ctx context.Context,
	id string,
	amount decimal.Decimal,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET funded_amount = $2, updated_at = NOW()
		WHERE id = $1`, r.schema)

	result, err := db.ExecContext(ctx, query, id, amount)
	if err != nil {
		return fmt.Errorf("failed to set funded amount: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("agent with id %s not found", id)
	}

	return nil
}

// MarkFunded moves the funding state to funded. The state is monotone - once
// funded it never regresses, so the write is conditional on not being funded yet.
func (r *PostgresAgentsRepository) MarkFunded(
	ctx context.Context,
	id string,
) (bool, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET funding_state = $2, updated_at = NOW()
		WHERE id = $1 AND funding_state != $2`, r.schema)

	result, err := db.ExecContext(ctx, query, id, models.FundingStateFunded)
	if err != nil {
		return false, fmt.Errorf("failed to mark agent funded: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

func (r *PostgresAgentsRepository) SetDeploymentRef(
	ctx context.Context,
	id, handle string,
	replicas int,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET deployment_handle = $2, desired_replicas = $3, updated_at = NOW()
		WHERE id = $1`, r.schema)

	result, err := db.ExecContext(ctx, query, id, handle, replicas)
	if err != nil {
		return fmt.Errorf("failed to set deployment ref: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("agent with id %s not found", id)
	}

	return nil
}

func (r *PostgresAgentsRepository) ClearDeploymentRef(
	ctx context.Context,
	id string,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		UPDATE %s.agents
		SET deployment_handle = NULL, desired_replicas = 0, updated_at = NOW()
		WHERE id = $1`, r.schema)

	result, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to clear deployment ref: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("agent with id %s not found", id)
	}

	return nil
}
