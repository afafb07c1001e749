package directory

import "time"

// Role is a user's global role in the knowledge base
type Role string

const (
	// RoleAdmin bypasses all permission resolution with full access
	RoleAdmin Role = "admin"
	// RoleLeader may receive per-resource grants and curates team access
	RoleLeader Role = "leader"
	// RoleUser is the default role; access comes only through team leadership
	// of others or domain floor levels
	RoleUser Role = "user"
)

// MembershipRole is a user's role within one team
type MembershipRole string

const (
	MembershipMember MembershipRole = "member"
	MembershipLeader MembershipRole = "leader"
)

// User represents an account in the directory
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Role      Role      `json:"role"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the global admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Team represents a group of users
type Team struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
}

// TeamMember represents a user's membership in a team
type TeamMember struct {
	ID      int64          `json:"id"`
	TeamID  int64          `json:"team_id"`
	UserID  int64          `json:"user_id"`
	Role    MembershipRole `json:"role"`
	AddedAt time.Time      `json:"added_at"`
	AddedBy *int64         `json:"added_by,omitempty"`
}
