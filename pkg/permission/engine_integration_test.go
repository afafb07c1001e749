//go:build integration

package permission

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"

	"github.com/kbforge/kbforge/pkg/directory"
	"github.com/kbforge/kbforge/pkg/observability"
)

func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration test")
	}
	provider.Close()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("kbforge_test"),
		postgres.WithUsername("kbforge"),
		postgres.WithPassword("kbforge_test_password"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		container.Terminate(cleanupCtx)
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Ping())
	require.NoError(t, directory.RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db, "bucket"))
	return db
}

func seedDirectory(t *testing.T, db *sql.DB) (admin, leader, plain int64) {
	t.Helper()
	ctx := context.Background()
	store := directory.NewStore(db)

	users := []struct {
		username string
		role     directory.Role
		out      *int64
	}{
		{"root", directory.RoleAdmin, &admin},
		{"lena", directory.RoleLeader, &leader},
		{"uma", directory.RoleUser, &plain},
	}
	for _, u := range users {
		user := &directory.User{Username: u.username, Role: u.role, IsActive: true}
		require.NoError(t, store.CreateUser(ctx, user))
		*u.out = user.ID
	}
	return admin, leader, plain
}

func newIntegrationEngine(t *testing.T, db *sql.DB) *Engine {
	t.Helper()

	store, err := NewStore(db, "bucket")
	require.NoError(t, err)

	dir := directory.NewService(directory.NewStore(db), 0, 0)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	engine, err := NewEngine(bucketConfig(), store, dir, NewGrantValidator(dir), nil, nil, nil, logger)
	require.NoError(t, err)
	return engine
}

func TestConcurrentSetPermissionKeepsOneRow(t *testing.T) {
	db := setupPostgres(t)
	admin, leader, _ := seedDirectory(t, db)
	engine := newIntegrationEngine(t, db)
	ctx := context.Background()

	const writers = 32
	var g errgroup.Group
	for i := 0; i < writers; i++ {
		level := Level(i%3 + 1)
		g.Go(func() error {
			return engine.SetPermission(ctx, GrantRequest{
				EntityType: EntityUser,
				EntityID:   leader,
				ResourceID: "b1",
				Level:      level,
			}, Actor{UserID: admin})
		})
	}
	require.NoError(t, g.Wait())

	var rows int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM bucket_permissions WHERE entity_type = 'user' AND entity_id = $1 AND resource_id = $2",
		leader, "b1",
	).Scan(&rows)
	require.NoError(t, err)
	assert.Equal(t, 1, rows, "concurrent upserts must collapse onto one row")

	level, err := engine.Resolve(ctx, leader, "b1")
	require.NoError(t, err)
	assert.Contains(t, []Level{LevelView, LevelUpload, LevelFull}, level)
}

func TestResolutionEndToEnd(t *testing.T) {
	db := setupPostgres(t)
	admin, leader, plain := seedDirectory(t, db)
	engine := newIntegrationEngine(t, db)
	ctx := context.Background()
	dirStore := directory.NewStore(db)

	// Leader grants themselves upload via admin, plus a team grant.
	team := &directory.Team{Name: "research"}
	require.NoError(t, dirStore.CreateTeam(ctx, team))
	require.NoError(t, dirStore.AddTeamMember(ctx, &directory.TeamMember{
		TeamID: team.ID, UserID: leader, Role: directory.MembershipLeader,
	}))
	require.NoError(t, dirStore.AddTeamMember(ctx, &directory.TeamMember{
		TeamID: team.ID, UserID: plain, Role: directory.MembershipMember,
	}))

	require.NoError(t, engine.SetPermission(ctx, GrantRequest{
		EntityType: EntityUser, EntityID: leader, ResourceID: "b1", Level: LevelView,
	}, Actor{UserID: admin}))
	require.NoError(t, engine.SetPermission(ctx, GrantRequest{
		EntityType: EntityTeam, EntityID: team.ID, ResourceID: "b1", Level: LevelUpload,
	}, Actor{UserID: admin}))

	// Admin bypass.
	level, err := engine.Resolve(ctx, admin, "b1")
	require.NoError(t, err)
	assert.Equal(t, LevelFull, level)

	// Leader: max(direct view, led-team upload) = upload.
	level, err = engine.Resolve(ctx, leader, "b1")
	require.NoError(t, err)
	assert.Equal(t, LevelUpload, level)

	// Plain member: team grant does not flow through member role.
	level, err = engine.Resolve(ctx, plain, "b1")
	require.NoError(t, err)
	assert.Equal(t, LevelNone, level)

	// Idempotent re-grant leaves one row.
	require.NoError(t, engine.SetPermission(ctx, GrantRequest{
		EntityType: EntityUser, EntityID: leader, ResourceID: "b1", Level: LevelView,
	}, Actor{UserID: admin}))
	grants, err := engine.Grants(ctx, "b1")
	require.NoError(t, err)
	assert.Len(t, grants, 2)
}
