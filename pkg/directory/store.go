package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUserNotFound is returned when a user lookup finds no row
var ErrUserNotFound = errors.New("user not found")

// ErrTeamNotFound is returned when a team lookup finds no row
var ErrTeamNotFound = errors.New("team not found")

// Store handles directory data persistence
type Store struct {
	db *sql.DB
}

// NewStore creates a new directory store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// UserByID retrieves a user by ID
func (s *Store) UserByID(ctx context.Context, userID int64) (*User, error) {
	query := `
		SELECT id, username, email, role, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var user User
	var email sql.NullString

	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Username,
		&email,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if email.Valid {
		user.Email = email.String
	}

	return &user, nil
}

// UserByUsername retrieves a user by username
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT id, username, email, role, is_active, created_at, updated_at
		FROM users
		WHERE username = $1
	`

	var user User
	var email sql.NullString

	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&email,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if email.Valid {
		user.Email = email.String
	}

	return &user, nil
}

// CreateUser creates a new user
func (s *Store) CreateUser(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (username, email, role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		user.Username,
		user.Email,
		user.Role,
		user.IsActive,
		now,
		now,
	).Scan(&user.ID)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// UpdateUserRole updates a user's global role
func (s *Store) UpdateUserRole(ctx context.Context, userID int64, role Role) error {
	query := `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`

	result, err := s.db.ExecContext(ctx, query, role, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %d", ErrUserNotFound, userID)
	}

	return nil
}

// CreateTeam creates a new team
func (s *Store) CreateTeam(ctx context.Context, team *Team) error {
	query := `
		INSERT INTO teams (name, description, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		team.Name,
		team.Description,
		now,
		now,
		team.CreatedBy,
	).Scan(&team.ID)

	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	team.CreatedAt = now
	team.UpdatedAt = now
	return nil
}

// GetTeam retrieves a team by ID
func (s *Store) GetTeam(ctx context.Context, teamID int64) (*Team, error) {
	query := `
		SELECT id, name, description, created_at, updated_at, created_by
		FROM teams
		WHERE id = $1
	`

	var team Team
	var createdBy sql.NullInt64

	err := s.db.QueryRowContext(ctx, query, teamID).Scan(
		&team.ID,
		&team.Name,
		&team.Description,
		&team.CreatedAt,
		&team.UpdatedAt,
		&createdBy,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrTeamNotFound, teamID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team: %w", err)
	}

	if createdBy.Valid {
		id := createdBy.Int64
		team.CreatedBy = &id
	}

	return &team, nil
}

// AddTeamMember adds a user to a team with a membership role
func (s *Store) AddTeamMember(ctx context.Context, member *TeamMember) error {
	query := `
		INSERT INTO team_members (team_id, user_id, role, added_at, added_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (team_id, user_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		member.TeamID,
		member.UserID,
		member.Role,
		now,
		member.AddedBy,
	).Scan(&member.ID)

	if err != nil {
		return fmt.Errorf("failed to add team member: %w", err)
	}

	member.AddedAt = now
	return nil
}

// RemoveTeamMember removes a user from a team
func (s *Store) RemoveTeamMember(ctx context.Context, teamID, userID int64) error {
	query := `DELETE FROM team_members WHERE team_id = $1 AND user_id = $2`
	_, err := s.db.ExecContext(ctx, query, teamID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove team member: %w", err)
	}
	return nil
}

// LeaderTeamIDs returns the ids of teams the user leads. Plain membership is
// deliberately excluded: leadership is the only inheritance source for
// permission resolution.
func (s *Store) LeaderTeamIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.teamIDsByRole(ctx, userID, MembershipLeader)
}

// MemberTeamIDs returns the ids of all teams the user belongs to, regardless
// of membership role. Used for visibility listings, not for resolution.
func (s *Store) MemberTeamIDs(ctx context.Context, userID int64) ([]int64, error) {
	query := `SELECT team_id FROM team_members WHERE user_id = $1 ORDER BY team_id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member teams: %w", err)
	}
	defer rows.Close()

	return scanTeamIDs(rows)
}

func (s *Store) teamIDsByRole(ctx context.Context, userID int64, role MembershipRole) ([]int64, error) {
	query := `SELECT team_id FROM team_members WHERE user_id = $1 AND role = $2 ORDER BY team_id`

	rows, err := s.db.QueryContext(ctx, query, userID, role)
	if err != nil {
		return nil, fmt.Errorf("failed to get teams by role: %w", err)
	}
	defer rows.Close()

	return scanTeamIDs(rows)
}

func scanTeamIDs(rows *sql.Rows) ([]int64, error) {
	var teamIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan team id: %w", err)
		}
		teamIDs = append(teamIDs, id)
	}
	return teamIDs, rows.Err()
}
