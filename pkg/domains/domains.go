package domains

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"

	"github.com/kbforge/kbforge/pkg/audit"
	"github.com/kbforge/kbforge/pkg/observability"
	"github.com/kbforge/kbforge/pkg/permission"
)

// Resource id sentinels for the singleton domains. Buckets carry real ids;
// the global storage tier and the prompt library are each a single resource.
const (
	StorageResourceID = "global"
	PromptResourceID  = "library"
)

// Namespaces lists every permission namespace, in migration order
var Namespaces = []string{"bucket", "storage", "prompt"}

// Set holds the three domain engines
type Set struct {
	Buckets *permission.Engine
	Storage *permission.Engine
	Prompts *permission.Engine
}

// Deps are the shared collaborators every engine is built from
type Deps struct {
	DB        *sql.DB
	Directory permission.DirectoryProvider
	Redis     *redis.Client
	Auditor   audit.Logger
	Metrics   *observability.Metrics
	Logger    *observability.Logger
	CacheTTL  time.Duration
}

// New builds the three domain engines over shared collaborators. Only the
// zero-grant floor, the namespace and enumeration support differ between
// them.
func New(deps Deps) (*Set, error) {
	validator := permission.NewGrantValidator(deps.Directory)

	build := func(cfg permission.Config) (*permission.Engine, error) {
		store, err := permission.NewStore(deps.DB, cfg.Namespace)
		if err != nil {
			return nil, err
		}
		var cache *permission.ResolutionCache
		if deps.Redis != nil && deps.CacheTTL > 0 {
			cache = permission.NewResolutionCache(deps.Redis, cfg.Namespace, deps.CacheTTL)
		}
		return permission.NewEngine(cfg, store, deps.Directory, validator, deps.Auditor, cache, deps.Metrics, deps.Logger)
	}

	buckets, err := build(permission.Config{
		Namespace:         "bucket",
		ResourceType:      audit.ResourceTypeBucket,
		DefaultLevel:      permission.LevelNone,
		EnableEnumeration: true,
	})
	if err != nil {
		return nil, err
	}

	storage, err := build(permission.Config{
		Namespace:    "storage",
		ResourceType: audit.ResourceTypeStorage,
		DefaultLevel: permission.LevelNone,
	})
	if err != nil {
		return nil, err
	}

	// The prompt library floors at view: every authenticated user may read
	// prompts without an explicit grant.
	prompts, err := build(permission.Config{
		Namespace:    "prompt",
		ResourceType: audit.ResourceTypePrompt,
		DefaultLevel: permission.LevelView,
	})
	if err != nil {
		return nil, err
	}

	return &Set{
		Buckets: buckets,
		Storage: storage,
		Prompts: prompts,
	}, nil
}

// RunMigrations creates the grant tables for every namespace
func RunMigrations(ctx context.Context, db *sql.DB) error {
	for _, namespace := range Namespaces {
		if err := permission.RunMigrations(ctx, db, namespace); err != nil {
			return err
		}
	}
	return nil
}

// Mount registers the permission routes of all three domains under their
// path prefixes. The bucket domain takes resourceId from the query; the
// singleton domains default to their sentinel.
func (s *Set) Mount(router *mux.Router, logger *observability.Logger) {
	permission.NewHandlers(s.Buckets, "", logger).
		RegisterRoutes(router.PathPrefix("/buckets").Subrouter())
	permission.NewHandlers(s.Storage, StorageResourceID, logger).
		RegisterRoutes(router.PathPrefix("/storage").Subrouter())
	permission.NewHandlers(s.Prompts, PromptResourceID, logger).
		RegisterRoutes(router.PathPrefix("/prompts").Subrouter())
}
