package permission

import (
	"context"
	"errors"

	"github.com/kbforge/kbforge/pkg/directory"
)

// UserLoader is the directory lookup the validator needs
type UserLoader interface {
	UserByID(ctx context.Context, userID int64) (*directory.User, error)
}

// GrantValidator decides whether a principal may receive a grant.
//
// Only users with the leader role are eligible targets: admins already hold
// implicit full access and never need a row, and ordinary users get access
// through their team's leader rather than personal grants. Team targets are
// accepted as-is; designating teams is an admin-curated operation and carries
// no per-grant eligibility rule.
type GrantValidator struct {
	users UserLoader
}

// NewGrantValidator creates a grant validator over the directory
func NewGrantValidator(users UserLoader) *GrantValidator {
	return &GrantValidator{users: users}
}

// Validate checks grant-target eligibility for the request. Returns a
// NotFoundError when a user target does not exist and an AuthorizationError
// when it exists but is not a leader.
func (v *GrantValidator) Validate(ctx context.Context, req GrantRequest) error {
	if req.EntityType != EntityUser {
		return nil
	}

	user, err := v.users.UserByID(ctx, req.EntityID)
	if err != nil {
		if errors.Is(err, directory.ErrUserNotFound) {
			return NewNotFoundError("grant target user %d not found", req.EntityID)
		}
		return err
	}

	if user.Role != directory.RoleLeader {
		return NewAuthorizationError("user %d has role %q, only leaders may receive grants", req.EntityID, user.Role)
	}

	return nil
}
