package permission

import "time"

// EntityType is the kind of principal a grant applies to
type EntityType string

const (
	EntityUser EntityType = "user"
	EntityTeam EntityType = "team"
)

// Valid reports whether the entity type is recognized
func (e EntityType) Valid() bool {
	return e == EntityUser || e == EntityTeam
}

// Grant is one persisted (entity, resource) -> level record. At most one row
// exists per (entity_type, entity_id, resource_id) tuple; re-granting updates
// the existing row. Revocation is a grant of LevelNone, there is no delete.
type Grant struct {
	ID         int64      `json:"id"`
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`
	ResourceID string     `json:"resource_id"`
	Level      Level      `json:"level"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	CreatedBy  *int64     `json:"created_by,omitempty"`
	UpdatedBy  *int64     `json:"updated_by,omitempty"`
}

// GrantRequest is the mutation payload for SetPermission
type GrantRequest struct {
	EntityType EntityType `json:"entityType"`
	EntityID   int64      `json:"entityId"`
	ResourceID string     `json:"resourceId"`
	Level      Level      `json:"level"`
}

// Actor identifies who performed a mutation, for audit columns and the audit
// trail
type Actor struct {
	UserID    int64
	Email     string
	IPAddress string
}
