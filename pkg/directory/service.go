package directory

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Service exposes directory lookups with a small read-through cache in front
// of user loads. Every permission resolution loads a user for the admin
// check, so the cache sits on the hottest path in the system.
type Service struct {
	store     *Store
	userCache *expirable.LRU[int64, *User]
}

// NewService creates a directory service. A cacheTTL of zero disables the
// user cache.
func NewService(store *Store, cacheSize int, cacheTTL time.Duration) *Service {
	var cache *expirable.LRU[int64, *User]
	if cacheTTL > 0 {
		if cacheSize <= 0 {
			cacheSize = 1024
		}
		cache = expirable.NewLRU[int64, *User](cacheSize, nil, cacheTTL)
	}
	return &Service{
		store:     store,
		userCache: cache,
	}
}

// UserByID retrieves a user, serving from cache when possible
func (s *Service) UserByID(ctx context.Context, userID int64) (*User, error) {
	if s.userCache != nil {
		if user, ok := s.userCache.Get(userID); ok {
			return user, nil
		}
	}

	user, err := s.store.UserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.userCache != nil {
		s.userCache.Add(userID, user)
	}
	return user, nil
}

// LeaderTeamIDs returns the ids of teams the user leads
func (s *Service) LeaderTeamIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.store.LeaderTeamIDs(ctx, userID)
}

// MemberTeamIDs returns the ids of all teams the user belongs to
func (s *Service) MemberTeamIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.store.MemberTeamIDs(ctx, userID)
}

// InvalidateUser drops a user from the cache. Called after role changes so
// the admin bypass and grant eligibility see the new role promptly.
func (s *Service) InvalidateUser(userID int64) {
	if s.userCache != nil {
		s.userCache.Remove(userID)
	}
}
