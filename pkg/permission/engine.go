package permission

import (
	"context"
	"fmt"
	"time"

	"github.com/kbforge/kbforge/pkg/audit"
	"github.com/kbforge/kbforge/pkg/directory"
	"github.com/kbforge/kbforge/pkg/observability"
)

// DirectoryProvider is the slice of the directory the engine needs: the user
// load feeding the admin bypass, and the leads-only team projection feeding
// inheritance.
type DirectoryProvider interface {
	UserByID(ctx context.Context, userID int64) (*directory.User, error)
	LeaderTeamIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Validator checks grant-target eligibility before a mutation persists
type Validator interface {
	Validate(ctx context.Context, req GrantRequest) error
}

// Config parameterizes the engine for one resource namespace
type Config struct {
	// Namespace names the grant table and cache keyspace (bucket, storage,
	// prompt)
	Namespace string

	// ResourceType tags audit events from this engine
	ResourceType audit.ResourceType

	// DefaultLevel is the floor a non-admin resolution never drops below.
	// Buckets and storage use LevelNone; the prompt library uses LevelView so
	// every authenticated user can read prompts without a grant.
	DefaultLevel Level

	// EnableEnumeration exposes AccessibleResources. Only the bucket domain
	// needs it; storage is a singleton and prompts are floor-visible.
	EnableEnumeration bool
}

// Engine resolves effective permission levels and applies grant mutations for
// one resource namespace.
type Engine struct {
	cfg       Config
	store     *Store
	directory DirectoryProvider
	validator Validator
	auditor   audit.Logger
	cache     *ResolutionCache
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewEngine creates a permission engine. The cache and metrics are optional;
// nil disables them.
func NewEngine(
	cfg Config,
	store *Store,
	dir DirectoryProvider,
	validator Validator,
	auditor audit.Logger,
	cache *ResolutionCache,
	metrics *observability.Metrics,
	logger *observability.Logger,
) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if dir == nil {
		return nil, fmt.Errorf("directory provider is required")
	}
	if validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if !cfg.DefaultLevel.Valid() {
		return nil, fmt.Errorf("invalid default level for namespace %s", cfg.Namespace)
	}
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		directory: dir,
		validator: validator,
		auditor:   auditor,
		cache:     cache,
		metrics:   metrics,
		logger:    logger.WithComponent("permission-engine").WithField("namespace", cfg.Namespace),
	}, nil
}

// Resolve computes the user's effective level on the resource.
//
// Admins resolve to LevelFull before any grant is consulted; the bypass wins
// over an explicit LevelNone row. Everyone else gets the maximum across their
// direct grant and the grants of teams they lead, floored at the namespace's
// default level. Most-permissive-wins: a low grant on one path never
// downgrades a higher grant on another.
func (e *Engine) Resolve(ctx context.Context, userID int64, resourceID string) (Level, error) {
	start := time.Now()

	user, err := e.directory.UserByID(ctx, userID)
	if err != nil {
		return LevelNone, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	if user.IsAdmin() {
		e.observeResolution(LevelFull, start)
		return LevelFull, nil
	}

	if e.cache != nil {
		level, hit, err := e.cache.Get(ctx, resourceID, userID)
		if err != nil {
			e.logger.WithError(err).Warn("resolution cache read failed")
		} else if hit {
			if e.metrics != nil {
				e.metrics.CacheHitsTotal.WithLabelValues(e.cfg.Namespace).Inc()
			}
			e.observeResolution(level, start)
			return level, nil
		}
		if e.metrics != nil {
			e.metrics.CacheMissesTotal.WithLabelValues(e.cfg.Namespace).Inc()
		}
	}

	direct, err := e.store.Get(ctx, EntityUser, userID, resourceID)
	if err != nil {
		return LevelNone, err
	}

	leaderTeams, err := e.directory.LeaderTeamIDs(ctx, userID)
	if err != nil {
		return LevelNone, fmt.Errorf("failed to load leader teams for user %d: %w", userID, err)
	}

	teamLevel, err := e.store.MaxTeamLevel(ctx, leaderTeams, resourceID)
	if err != nil {
		return LevelNone, err
	}

	level := MaxLevel(MaxLevel(direct, teamLevel), e.cfg.DefaultLevel)

	if e.cache != nil {
		if err := e.cache.Set(ctx, resourceID, userID, level); err != nil {
			e.logger.WithError(err).Warn("resolution cache write failed")
		}
	}

	e.observeResolution(level, start)
	return level, nil
}

// Require resolves and checks the user's level against a minimum, returning
// an AuthorizationError on shortfall.
func (e *Engine) Require(ctx context.Context, userID int64, resourceID string, min Level) error {
	level, err := e.Resolve(ctx, userID, resourceID)
	if err != nil {
		return err
	}
	if !level.AtLeast(min) {
		return NewAuthorizationError("requires %s access, user %d has %s", min, userID, level)
	}
	return nil
}

// SetPermission validates and persists one grant, then records the mutation
// in the audit trail. Validation failures leave the store untouched. Audit
// and cache-invalidation failures are logged and swallowed; the grant write
// is the source of truth.
func (e *Engine) SetPermission(ctx context.Context, req GrantRequest, actor Actor) error {
	if !req.EntityType.Valid() {
		e.observeMutation("invalid")
		return NewValidationError("invalid entity type %q", req.EntityType)
	}
	if !req.Level.Valid() {
		e.observeMutation("invalid")
		return NewValidationError("invalid permission level %d", int(req.Level))
	}
	if req.ResourceID == "" {
		e.observeMutation("invalid")
		return NewValidationError("resourceId is required")
	}

	if err := e.validator.Validate(ctx, req); err != nil {
		e.observeMutation("rejected")
		return err
	}

	actorID := actor.UserID
	if err := e.store.Upsert(ctx, req.EntityType, req.EntityID, req.ResourceID, req.Level, &actorID); err != nil {
		e.observeMutation("error")
		return err
	}

	e.recordMutation(ctx, req, actor)

	if e.cache != nil {
		if err := e.cache.InvalidateResource(ctx, req.ResourceID); err != nil {
			e.logger.WithError(err).Warn("resolution cache invalidation failed")
		}
	}

	e.observeMutation("success")
	return nil
}

// Grants returns every grant on one resource, for admin listings
func (e *Engine) Grants(ctx context.Context, resourceID string) ([]Grant, error) {
	return e.store.ListForResource(ctx, resourceID)
}

// AccessibleResources returns the resource ids visible to the user through
// direct grants or the supplied teams.
func (e *Engine) AccessibleResources(ctx context.Context, userID int64, teamIDs []int64) ([]string, error) {
	if !e.cfg.EnableEnumeration {
		return nil, fmt.Errorf("resource enumeration is not enabled for namespace %s", e.cfg.Namespace)
	}
	return e.store.ListAccessibleResourceIDs(ctx, userID, teamIDs)
}

// Namespace returns the engine's resource namespace
func (e *Engine) Namespace() string {
	return e.cfg.Namespace
}

// DefaultLevel returns the namespace's zero-grant floor
func (e *Engine) DefaultLevel() Level {
	return e.cfg.DefaultLevel
}

func (e *Engine) recordMutation(ctx context.Context, req GrantRequest, actor Actor) {
	event := audit.NewEvent(audit.ActionSetPermission, audit.StatusSuccess)
	event.UserID = &actor.UserID
	event.UserEmail = actor.Email
	event.IPAddress = actor.IPAddress
	event.RequestID = observability.GetRequestID(ctx)
	event.ResourceType = e.cfg.ResourceType
	event.ResourceID = fmt.Sprintf("%s:%d:%s", req.EntityType, req.EntityID, req.ResourceID)
	event.Details["entity_type"] = string(req.EntityType)
	event.Details["entity_id"] = req.EntityID
	event.Details["resource_id"] = req.ResourceID
	event.Details["level"] = req.Level.String()

	if err := e.auditor.Log(ctx, event); err != nil {
		e.logger.WithError(err).Error("failed to record permission mutation in audit trail")
	}
}

func (e *Engine) observeResolution(level Level, start time.Time) {
	if e.metrics != nil {
		e.metrics.ObserveResolution(e.cfg.Namespace, level.String(), time.Since(start))
	}
}

func (e *Engine) observeMutation(status string) {
	if e.metrics != nil {
		e.metrics.ObserveMutation(e.cfg.Namespace, status)
	}
}
