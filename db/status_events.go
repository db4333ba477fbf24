package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	// necessary import to wire up the postgres driver
	_ "github.com/lib/pq"

	dbtx "agentbackend/db/tx"
	"agentbackend/models"
)

type PostgresStatusEventsRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for agent_status_events table
var statusEventsColumns = []string{
	"id",
	"agent_id",
	"status",
	"cause",
	"created_at",
}

func NewPostgresStatusEventsRepository(db *sqlx.DB, schema string) *PostgresStatusEventsRepository {
	return &PostgresStatusEventsRepository{db: db, schema: schema}
}

// CreateStatusEvent appends one event to the agent's status history. The table
// is append-only - there is no update or delete path.
func (r *PostgresStatusEventsRepository) CreateStatusEvent(
	ctx context.Context,
	event *models.AgentStatusEvent,
) error {
	db := dbtx.GetTransactional(ctx, r.db)

	returningStr := strings.Join(statusEventsColumns, ", ")
	query := fmt.Sprintf(`
		INSERT INTO %s.agent_status_events (id, agent_id, status, cause, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING %s`, r.schema, returningStr)

	err := db.QueryRowxContext(ctx, query, event.ID, event.AgentID, event.Status, event.Cause).
		StructScan(event)
	if err != nil {
		return fmt.Errorf("failed to create status event: %w", err)
	}

	return nil
}

func (r *PostgresStatusEventsRepository) ListStatusEventsByAgentID(
	ctx context.Context,
	agentID string,
) ([]*models.AgentStatusEvent, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.agent_status_events
		WHERE agent_id = $1
		ORDER BY created_at ASC, id ASC`, strings.Join(statusEventsColumns, ", "), r.schema)

	var events []*models.AgentStatusEvent
	err := db.SelectContext(ctx, &events, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list status events: %w", err)
	}

	return events, nil
}
