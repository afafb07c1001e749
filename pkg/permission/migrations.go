package permission

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the grant-table migrations for one namespace. The
// UNIQUE constraint on (entity_type, entity_id, resource_id) is what the
// store's ON CONFLICT upsert rides; without it two concurrent grants for the
// same tuple could both insert.
func GetMigrations(namespace string) []Migration {
	table := namespace + "_permissions"
	return []Migration{
		{
			Version:     1,
			Description: fmt.Sprintf("Create %s table", table),
			SQL: strings.ReplaceAll(`
				CREATE TABLE IF NOT EXISTS {table} (
					id BIGSERIAL PRIMARY KEY,
					entity_type VARCHAR(10) NOT NULL CHECK (entity_type IN ('user', 'team')),
					entity_id BIGINT NOT NULL,
					resource_id VARCHAR(255) NOT NULL,
					permission_level INT NOT NULL DEFAULT 0,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					created_by BIGINT,
					updated_by BIGINT,
					UNIQUE (entity_type, entity_id, resource_id)
				);

				CREATE INDEX IF NOT EXISTS idx_{table}_resource ON {table}(resource_id);
				CREATE INDEX IF NOT EXISTS idx_{table}_entity ON {table}(entity_type, entity_id);
			`, "{table}", table),
		},
	}
}

// RunMigrations executes all pending migrations for one namespace. Progress
// is tracked per namespace so each domain's table evolves independently.
func RunMigrations(ctx context.Context, db *sql.DB, namespace string) error {
	if err := validateNamespace(namespace); err != nil {
		return err
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS permission_migrations (
			namespace VARCHAR(64) NOT NULL,
			version INT NOT NULL,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (namespace, version)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		"SELECT version FROM permission_migrations WHERE namespace = $1 ORDER BY version",
		namespace,
	)
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations(namespace) {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s/%d: %w", namespace, migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO permission_migrations (namespace, version, description) VALUES ($1, $2, $3)",
			namespace, migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s/%d: %w", namespace, migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s/%d: %w", namespace, migration.Version, err)
		}
	}

	return nil
}
