package buckets

import (
	"context"
	"database/sql"
	"fmt"
)

// RunMigrations creates the buckets table
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS buckets (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			created_by BIGINT
		);

		CREATE INDEX IF NOT EXISTS idx_buckets_created_at ON buckets(created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("failed to create buckets table: %w", err)
	}
	return nil
}
