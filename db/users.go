package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	// necessary import to wire up the postgres driver
	_ "github.com/lib/pq"

	"agentbackend/core"
	dbtx "agentbackend/db/tx"
	"agentbackend/models"
)

type PostgresUsersRepository struct {
	db     *sqlx.DB
	schema string
}

// Column names for users table
var usersColumns = []string{
	"id",
	"auth_provider",
	"auth_provider_id",
	"email",
	"created_at",
	"updated_at",
}

func NewPostgresUsersRepository(db *sqlx.DB, schema string) *PostgresUsersRepository {
	return &PostgresUsersRepository{db: db, schema: schema}
}

func (r *PostgresUsersRepository) GetUserByAuthProvider(
	ctx context.Context,
	authProvider, authProviderID string,
) (*models.User, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	query := fmt.Sprintf(`
		SELECT %s
		FROM %s.users
		WHERE auth_provider = $1 AND auth_provider_id = $2`,
		strings.Join(usersColumns, ", "), r.schema)

	user := &models.User{}
	err := db.QueryRowxContext(ctx, query, authProvider, authProviderID).StructScan(user)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to get user by auth provider: %w", err)
	}

	return user, nil
}

func (r *PostgresUsersRepository) CreateUser(
	ctx context.Context,
	authProvider, authProviderID, email string,
) (*models.User, error) {
	db := dbtx.GetTransactional(ctx, r.db)

	userID := core.NewID("u")

	query := fmt.Sprintf(`
		INSERT INTO %s.users (id, auth_provider, auth_provider_id, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING %s`, r.schema, strings.Join(usersColumns, ", "))

	user := &models.User{}
	err := db.QueryRowxContext(ctx, query, userID, authProvider, authProviderID, email).StructScan(user)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetOrCreateUser fetches the user for the auth principal, creating it on first
// sight. A concurrent create resolves to the existing row via the unique
// constraint on (auth_provider, auth_provider_id).
func (r *PostgresUsersRepository) GetOrCreateUser(
	ctx context.Context,
	authProvider, authProviderID string,
) (*models.User, error) {
	user, err := r.GetUserByAuthProvider(ctx, authProvider, authProviderID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	created, err := r.CreateUser(ctx, authProvider, authProviderID, "")
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			// Lost the insert race - fetch the winner
			return r.GetUserByAuthProvider(ctx, authProvider, authProviderID)
		}
		return nil, err
	}

	return created, nil
}
