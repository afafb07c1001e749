package permission

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbforge/kbforge/pkg/audit"
	"github.com/kbforge/kbforge/pkg/observability"
)

type fakeDirectory struct {
	*fakeUserLoader
	leaderTeams map[int64][]int64
}

func (f *fakeDirectory) LeaderTeamIDs(ctx context.Context, userID int64) ([]int64, error) {
	return f.leaderTeams[userID], nil
}

type captureAuditor struct {
	events []*audit.Event
	err    error
}

func (c *captureAuditor) Log(ctx context.Context, event *audit.Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, event)
	return nil
}

func (c *captureAuditor) Close() error { return nil }

type engineFixture struct {
	engine  *Engine
	mock    sqlmock.Sqlmock
	dir     *fakeDirectory
	auditor *captureAuditor
	cleanup func()
}

func newEngineFixture(t *testing.T, cfg Config, cache *ResolutionCache) *engineFixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	store, err := NewStore(db, cfg.Namespace)
	require.NoError(t, err)

	dir := &fakeDirectory{
		fakeUserLoader: newFakeUsers(),
		leaderTeams:    map[int64][]int64{},
	}
	auditor := &captureAuditor{}
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)

	engine, err := NewEngine(cfg, store, dir, NewGrantValidator(dir), auditor, cache, nil, logger)
	require.NoError(t, err)

	return &engineFixture{
		engine:  engine,
		mock:    mock,
		dir:     dir,
		auditor: auditor,
		cleanup: func() { db.Close() },
	}
}

func bucketConfig() Config {
	return Config{
		Namespace:         "bucket",
		ResourceType:      audit.ResourceTypeBucket,
		DefaultLevel:      LevelNone,
		EnableEnumeration: true,
	}
}

func promptConfig() Config {
	return Config{
		Namespace:    "prompt",
		ResourceType: audit.ResourceTypePrompt,
		DefaultLevel: LevelView,
	}
}

func TestResolveAdminBypass(t *testing.T) {
	f := newEngineFixture(t, bucketConfig(), nil)
	defer f.cleanup()

	// No sqlmock expectations: the bypass must not touch the store, so an
	// explicit none grant for the admin could never matter.
	level, err := f.engine.Resolve(context.Background(), 1, "b1")
	require.NoError(t, err)
	assert.Equal(t, LevelFull, level)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveZeroGrantDefault(t *testing.T) {
	f := newEngineFixture(t, bucketConfig(), nil)
	defer f.cleanup()

	f.mock.ExpectQuery("SELECT permission_level FROM bucket_permissions").
		WithArgs("user", int64(3), "b1").
		WillReturnRows(sqlmock.NewRows([]string{"permission_level"}))

	level, err := f.engine.Resolve(context.Background(), 3, "b1")
	require.NoError(t, err)
	assert.Equal(t, LevelNone, level)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolvePromptFloorIsView(t *testing.T) {
	f := newEngineFixture(t, promptConfig(), nil)
	defer f.cleanup()

	f.mock.ExpectQuery("SELECT permission_level FROM prompt_permissions").
		WithArgs("user", int64(3), "library").
		WillReturnRows(sqlmock.NewRows([]string{"permission_level"}))

	level, err := f.engine.Resolve(context.Background(), 3, "library")
	require.NoError(t, err)
	assert.Equal(t, LevelView, level)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolvePromptFloorClampsExplicitNone(t *testing.T) {
	f := newEngineFixture(t, promptConfig(), nil)
	defer f.cleanup()

	// An explicit none grant cannot push a non-admin below the namespace
	// floor.
	f.mock.ExpectQuery("SELECT permission_level FROM prompt_permissions").
		WithArgs("user", int64(2), "library").
		WillReturnRows(sqlmock.NewRows([]string{"permission_level"}).AddRow(0))
	f.dir.leaderTeams[2] = nil

	level, err := f.engine.Resolve(context.Background(), 2, "library")
	require.NoError(t, err)
	assert.Equal(t, LevelView, level)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveMaxAcrossSources(t *testing.T) {
	f := newEngineFixture(t, bucketConfig(), nil)
	defer f.cleanup()

	// Direct view, led team holds upload: most-permissive wins.
	f.dir.leaderTeams[2] = []int64{10}
	f.mock.ExpectQuery("SELECT permission_level FROM bucket_permissions").
		WithArgs("user", int64(2), "b1").
		WillReturnRows(sqlmock.NewRows([]string{"permission_level"}).AddRow(1))
	f.mock.ExpectQuery("SELECT COALESCE\\(MAX\\(permission_level\\), 0\\) FROM bucket_permissions").
		WithArgs(pq.Array([]int64{10}), "b1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(2))

	level, err := f.engine.Resolve(context.Background(), 2, "b1")
	require.NoError(t, err)
	assert.Equal(t, LevelUpload, level)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveIgnoresPlainMemberships(t *testing.T) {
	f := newEngineFixture(t, bucketConfig(), nil)
	defer f.cleanup()

	// User 3 is a plain member of a team with full access; the leads-only
	// projection returns nothing, so the team grant never enters resolution.
	f.dir.leaderTeams[3] = nil
	f.mock.ExpectQuery("SELECT permission_level FROM bucket_permissions").
		WithArgs("user", int64(3), "b1").
		WillReturnRows(sqlmock.NewRows([]string{"permission_level"}))

	level, err := f.engine.Resolve(context.Background(), 3, "b1")
	require.NoError(t, err)
	assert.Equal(t, LevelNone, level)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestResolveCachesAndInvalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewResolutionCache(client, "bucket", 0)

	f := newEngineFixture(t, bucketConfig(), cache)
	defer f.cleanup()

	f.dir.leaderTeams[2] = []int64{10}
	f.mock.ExpectQuery("SELECT permission_level FROM bucket_permissions").
		WithArgs("user", int64(2), "b1").
		WillReturnRows(sqlmock.NewRows([]string{"permission_level"}).AddRow(1))
	f.mock.ExpectQuery("SELECT COALESCE\\(MAX\\(permission_level\\), 0\\) FROM bucket_permissions").
		WithArgs(pq.Array([]int64{10}), "b1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(1))

	ctx := context.Background()
	level, err := f.engine.Resolve(ctx, 2, "b1")
	require.NoError(t, err)
	assert.Equal(t, LevelView, level)

	// Second resolve is served from the cache; no new store expectations.
	level, err = f.engine.Resolve(ctx, 2, "b1")
	require.NoError(t, err)
	assert.Equal(t, LevelView, level)
	require.NoError(t, f.mock.ExpectationsWereMet())

	// A mutation on the resource drops the cached entry.
	f.mock.ExpectExec("INSERT INTO bucket_permissions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	err = f.engine.SetPermission(ctx, GrantRequest{
		EntityType: EntityUser, EntityID: 2, ResourceID: "b1", Level: LevelUpload,
	}, Actor{UserID: 1})
	require.NoError(t, err)

	f.mock.ExpectQuery("SELECT permission_level FROM bucket_permissions").
		WithArgs("user", int64(2), "b1").
		WillReturnRows(sqlmock.NewRows([]string{"permission_level"}).AddRow(2))
	f.mock.ExpectQuery("SELECT COALESCE\\(MAX\\(permission_level\\), 0\\) FROM bucket_permissions").
		WithArgs(pq.Array([]int64{10}), "b1").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(1))

	level, err = f.engine.Resolve(ctx, 2, "b1")
	require.NoError(t, err)
	assert.Equal(t, LevelUpload, level)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSetPermissionValidationErrors(t *testing.T) {
	f := newEngineFixture(t, bucketConfig(), nil)
	defer f.cleanup()

	var validationErr *ValidationError

	err := f.engine.SetPermission(context.Background(), GrantRequest{
		EntityType: "robot", EntityID: 2, ResourceID: "b1", Level: LevelView,
	}, Actor{UserID: 1})
	require.ErrorAs(t, err, &validationErr)

	err = f.engine.SetPermission(context.Background(), GrantRequest{
		EntityType: EntityUser, EntityID: 2, ResourceID: "b1", Level: Level(9),
	}, Actor{UserID: 1})
	require.ErrorAs(t, err, &validationErr)

	err = f.engine.SetPermission(context.Background(), GrantRequest{
		EntityType: EntityUser, EntityID: 2, Level: LevelView,
	}, Actor{UserID: 1})
	require.ErrorAs(t, err, &validationErr)

	// Nothing reached the store or the audit trail.
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Empty(t, f.auditor.events)
}

func TestSetPermissionRejectsIneligibleTarget(t *testing.T) {
	f := newEngineFixture(t, bucketConfig(), nil)
	defer f.cleanup()

	err := f.engine.SetPermission(context.Background(), GrantRequest{
		EntityType: EntityUser, EntityID: 3, ResourceID: "b1", Level: LevelUpload,
	}, Actor{UserID: 1})

	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.NoError(t, f.mock.ExpectationsWereMet())
	assert.Empty(t, f.auditor.events)
}

func TestSetPermissionMissingTarget(t *testing.T) {
	f := newEngineFixture(t, bucketConfig(), nil)
	defer f.cleanup()

	err := f.engine.SetPermission(context.Background(), GrantRequest{
		EntityType: EntityUser, EntityID: 99, ResourceID: "b1", Level: LevelUpload,
	}, Actor{UserID: 1})

	var notFoundErr *NotFoundError
	require.ErrorAs(t, err, &notFoundErr)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSetPermissionRecordsAudit(t *testing.T) {
	f := newEngineFixture(t, bucketConfig(), nil)
	defer f.cleanup()

	f.mock.ExpectExec("INSERT INTO bucket_permissions").
		WithArgs("user", int64(2), "b1", 2, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	actor := Actor{UserID: 1, Email: "root@example.com", IPAddress: "10.0.0.1"}
	err := f.engine.SetPermission(context.Background(), GrantRequest{
		EntityType: EntityUser, EntityID: 2, ResourceID: "b1", Level: LevelUpload,
	}, actor)
	require.NoError(t, err)

	require.Len(t, f.auditor.events, 1)
	event := f.auditor.events[0]
	assert.Equal(t, audit.ActionSetPermission, event.Action)
	assert.Equal(t, audit.StatusSuccess, event.Status)
	assert.Equal(t, "user:2:b1", event.ResourceID)
	assert.Equal(t, audit.ResourceTypeBucket, event.ResourceType)
	assert.Equal(t, "root@example.com", event.UserEmail)
	assert.Equal(t, "10.0.0.1", event.IPAddress)
	assert.Equal(t, "upload", event.Details["level"])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestSetPermissionAuditFailureIsNonFatal(t *testing.T) {
	f := newEngineFixture(t, bucketConfig(), nil)
	defer f.cleanup()

	f.auditor.err = errors.New("audit sink down")
	f.mock.ExpectExec("INSERT INTO bucket_permissions").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := f.engine.SetPermission(context.Background(), GrantRequest{
		EntityType: EntityTeam, EntityID: 10, ResourceID: "b1", Level: LevelView,
	}, Actor{UserID: 1})

	assert.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestRequire(t *testing.T) {
	f := newEngineFixture(t, bucketConfig(), nil)
	defer f.cleanup()

	f.mock.ExpectQuery("SELECT permission_level FROM bucket_permissions").
		WithArgs("user", int64(2), "b1").
		WillReturnRows(sqlmock.NewRows([]string{"permission_level"}).AddRow(1))

	err := f.engine.Require(context.Background(), 2, "b1", LevelUpload)
	var authErr *AuthorizationError
	assert.ErrorAs(t, err, &authErr)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAccessibleResourcesRequiresEnumeration(t *testing.T) {
	f := newEngineFixture(t, promptConfig(), nil)
	defer f.cleanup()

	_, err := f.engine.AccessibleResources(context.Background(), 2, nil)
	assert.Error(t, err)
}

func TestAccessibleResourcesDedupes(t *testing.T) {
	f := newEngineFixture(t, bucketConfig(), nil)
	defer f.cleanup()

	f.mock.ExpectQuery("SELECT DISTINCT resource_id FROM bucket_permissions").
		WithArgs(int64(2), pq.Array([]int64{10, 11})).
		WillReturnRows(sqlmock.NewRows([]string{"resource_id"}).
			AddRow("b1").
			AddRow("b2"))

	ids, err := f.engine.AccessibleResources(context.Background(), 2, []int64{10, 11})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, ids)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestNewEngineRejectsInvalidDefaultLevel(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store, err := NewStore(db, "bucket")
	require.NoError(t, err)

	dir := &fakeDirectory{fakeUserLoader: newFakeUsers(), leaderTeams: map[int64][]int64{}}
	cfg := bucketConfig()
	cfg.DefaultLevel = Level(7)

	_, err = NewEngine(cfg, store, dir, NewGrantValidator(dir), nil, nil, nil, nil)
	assert.Error(t, err)
}
