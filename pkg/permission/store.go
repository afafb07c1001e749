package permission

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store persists permission grants for one resource namespace. Each namespace
// gets its own table (<namespace>_permissions) so bucket, storage and prompt
// grants never collide.
type Store struct {
	db    *sql.DB
	table string
}

// NewStore creates a grant store for the given namespace
func NewStore(db *sql.DB, namespace string) (*Store, error) {
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	return &Store{
		db:    db,
		table: namespace + "_permissions",
	}, nil
}

// validateNamespace restricts namespaces to lowercase identifiers since the
// namespace becomes part of a table name.
func validateNamespace(namespace string) error {
	if namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	for _, r := range namespace {
		if (r < 'a' || r > 'z') && r != '_' {
			return fmt.Errorf("invalid namespace %q: must be lowercase letters and underscores", namespace)
		}
	}
	return nil
}

// Get returns the stored level for one entity on one resource. Absence of a
// row is not an error; it reads as LevelNone.
func (s *Store) Get(ctx context.Context, entityType EntityType, entityID int64, resourceID string) (Level, error) {
	query := fmt.Sprintf(`
		SELECT permission_level
		FROM %s
		WHERE entity_type = $1 AND entity_id = $2 AND resource_id = $3
	`, s.table)

	var level Level
	err := s.db.QueryRowContext(ctx, query, string(entityType), entityID, resourceID).Scan(&level)
	if err == sql.ErrNoRows {
		return LevelNone, nil
	}
	if err != nil {
		return LevelNone, fmt.Errorf("failed to get permission grant: %w", err)
	}

	return level, nil
}

// Upsert creates or updates the grant for one (entity, resource) tuple in a
// single statement. The ON CONFLICT arm rides the table's uniqueness
// constraint, so concurrent writers for the same tuple serialize on the row
// instead of racing a check-then-write.
func (s *Store) Upsert(ctx context.Context, entityType EntityType, entityID int64, resourceID string, level Level, actorID *int64) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (entity_type, entity_id, resource_id, permission_level, created_at, updated_at, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $5, $6, $6)
		ON CONFLICT (entity_type, entity_id, resource_id)
		DO UPDATE SET permission_level = EXCLUDED.permission_level,
		              updated_at = EXCLUDED.updated_at,
		              updated_by = EXCLUDED.updated_by
	`, s.table)

	_, err := s.db.ExecContext(ctx, query,
		string(entityType), entityID, resourceID, int(level), time.Now(), actorID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert permission grant: %w", err)
	}

	return nil
}

// ListForResource returns all grants on one resource
func (s *Store) ListForResource(ctx context.Context, resourceID string) ([]Grant, error) {
	query := fmt.Sprintf(`
		SELECT id, entity_type, entity_id, resource_id, permission_level, created_at, updated_at, created_by, updated_by
		FROM %s
		WHERE resource_id = $1
		ORDER BY entity_type ASC, entity_id ASC
	`, s.table)

	rows, err := s.db.QueryContext(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permission grants: %w", err)
	}
	defer rows.Close()

	var grants []Grant
	for rows.Next() {
		var grant Grant
		var createdBy, updatedBy sql.NullInt64

		err := rows.Scan(
			&grant.ID,
			&grant.EntityType,
			&grant.EntityID,
			&grant.ResourceID,
			&grant.Level,
			&grant.CreatedAt,
			&grant.UpdatedAt,
			&createdBy,
			&updatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission grant: %w", err)
		}

		if createdBy.Valid {
			id := createdBy.Int64
			grant.CreatedBy = &id
		}
		if updatedBy.Valid {
			id := updatedBy.Int64
			grant.UpdatedBy = &id
		}

		grants = append(grants, grant)
	}

	return grants, rows.Err()
}

// MaxTeamLevel returns the highest level any of the given teams holds on the
// resource. One query covers all teams; an empty team list reads as LevelNone
// without touching the database.
func (s *Store) MaxTeamLevel(ctx context.Context, teamIDs []int64, resourceID string) (Level, error) {
	if len(teamIDs) == 0 {
		return LevelNone, nil
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(MAX(permission_level), 0)
		FROM %s
		WHERE entity_type = 'team' AND entity_id = ANY($1) AND resource_id = $2
	`, s.table)

	var level Level
	err := s.db.QueryRowContext(ctx, query, pq.Array(teamIDs), resourceID).Scan(&level)
	if err != nil {
		return LevelNone, fmt.Errorf("failed to get team permission levels: %w", err)
	}

	return level, nil
}

// ListAccessibleResourceIDs returns the deduplicated resource ids where the
// user holds a direct grant above LevelNone or any of the supplied teams
// does. The team list is caller-supplied so both leads-only and belongs-to
// call sites can reuse the query.
func (s *Store) ListAccessibleResourceIDs(ctx context.Context, userID int64, teamIDs []int64) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT resource_id
		FROM %s
		WHERE permission_level > 0
		  AND (
			(entity_type = 'user' AND entity_id = $1)
			OR (entity_type = 'team' AND entity_id = ANY($2))
		  )
		ORDER BY resource_id ASC
	`, s.table)

	rows, err := s.db.QueryContext(ctx, query, userID, pq.Array(teamIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list accessible resources: %w", err)
	}
	defer rows.Close()

	var resourceIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan resource id: %w", err)
		}
		resourceIDs = append(resourceIDs, id)
	}

	return resourceIDs, rows.Err()
}
