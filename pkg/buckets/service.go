package buckets

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/kbforge/kbforge/pkg/audit"
	"github.com/kbforge/kbforge/pkg/middleware"
	"github.com/kbforge/kbforge/pkg/objectstore"
	"github.com/kbforge/kbforge/pkg/observability"
	"github.com/kbforge/kbforge/pkg/permission"
)

// TeamLister resolves the teams a user belongs to, for visibility filtering
type TeamLister interface {
	MemberTeamIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Service ties bucket metadata, physical object-store provisioning and the
// bucket permission engine together.
type Service struct {
	store   *Store
	objects objectstore.Client
	engine  *permission.Engine
	teams   TeamLister
	auditor audit.Logger
	logger  *observability.Logger
}

// NewService creates the bucket service
func NewService(
	store *Store,
	objects objectstore.Client,
	engine *permission.Engine,
	teams TeamLister,
	auditor audit.Logger,
	logger *observability.Logger,
) *Service {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Service{
		store:   store,
		objects: objects,
		engine:  engine,
		teams:   teams,
		auditor: auditor,
		logger:  logger.WithComponent("buckets"),
	}
}

// Create provisions a new bucket: a physical object-store bucket plus a
// metadata row. The physical bucket goes first so a failure leaves no
// metadata pointing at nothing.
func (s *Service) Create(ctx context.Context, name, description string, actor *middleware.AuthContext) (*Bucket, error) {
	if name == "" {
		return nil, permission.NewValidationError("bucket name is required")
	}

	bucket := &Bucket{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
	}
	if actor.User != nil {
		id := actor.User.ID
		bucket.CreatedBy = &id
	}

	if err := s.objects.EnsureBucket(ctx, bucket.ID); err != nil {
		return nil, fmt.Errorf("failed to provision bucket storage: %w", err)
	}

	if err := s.store.Create(ctx, bucket); err != nil {
		return nil, err
	}

	s.recordLifecycle(ctx, audit.ActionBucketCreate, bucket, actor)
	return bucket, nil
}

// Get returns one bucket if the caller holds at least view access on it
func (s *Service) Get(ctx context.Context, id string, userID int64) (*Bucket, error) {
	if err := s.engine.Require(ctx, userID, id, permission.LevelView); err != nil {
		return nil, err
	}
	return s.store.GetByID(ctx, id)
}

// ListVisible returns the buckets the user can see. Admins see everything;
// everyone else sees the buckets where they or any team they belong to hold a
// grant. Visibility deliberately uses all memberships, not just led teams: a
// plain member should find the bucket their team leader opened up, and the
// per-bucket level check still runs on access.
func (s *Service) ListVisible(ctx context.Context, authCtx *middleware.AuthContext) ([]*Bucket, error) {
	if authCtx.IsAdmin() {
		return s.store.List(ctx)
	}

	userID := authCtx.User.ID
	teamIDs, err := s.teams.MemberTeamIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load teams for user %d: %w", userID, err)
	}

	ids, err := s.engine.AccessibleResources(ctx, userID, teamIDs)
	if err != nil {
		return nil, err
	}

	return s.store.ListByIDs(ctx, ids)
}

// Delete tears a bucket down. Requires full access on the bucket; the admin
// bypass satisfies this implicitly. The metadata row goes first so a
// half-finished teardown hides the bucket rather than resurrecting it.
func (s *Service) Delete(ctx context.Context, id string, actor *middleware.AuthContext) error {
	if err := s.engine.Require(ctx, actor.User.ID, id, permission.LevelFull); err != nil {
		return err
	}

	bucket, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.objects.DeleteBucket(ctx, id); err != nil {
		s.logger.WithError(err).WithField("bucket_id", id).Error("failed to delete bucket storage")
	}

	s.recordLifecycle(ctx, audit.ActionBucketDelete, bucket, actor)
	return nil
}

func (s *Service) recordLifecycle(ctx context.Context, action audit.Action, bucket *Bucket, actor *middleware.AuthContext) {
	event := audit.NewEvent(action, audit.StatusSuccess)
	if actor.User != nil {
		id := actor.User.ID
		event.UserID = &id
		event.UserEmail = actor.User.Email
	}
	event.IPAddress = actor.IPAddress
	event.RequestID = observability.GetRequestID(ctx)
	event.ResourceType = audit.ResourceTypeBucket
	event.ResourceID = bucket.ID
	event.Details["name"] = bucket.Name

	if err := s.auditor.Log(ctx, event); err != nil {
		s.logger.WithError(err).Error("failed to record bucket lifecycle in audit trail")
	}
}
