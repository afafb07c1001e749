package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/kbforge/kbforge/pkg/audit"
	"github.com/kbforge/kbforge/pkg/buckets"
	"github.com/kbforge/kbforge/pkg/config"
	"github.com/kbforge/kbforge/pkg/directory"
	"github.com/kbforge/kbforge/pkg/domains"
	"github.com/kbforge/kbforge/pkg/middleware"
	"github.com/kbforge/kbforge/pkg/objectstore"
	"github.com/kbforge/kbforge/pkg/observability"
	"github.com/kbforge/kbforge/pkg/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kbforge: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting kbforge access control service")

	// Database
	db, err := sql.Open("postgres", cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Migrations
	migrateCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := directory.RunMigrations(migrateCtx, db); err != nil {
		return fmt.Errorf("directory migrations failed: %w", err)
	}
	if err := domains.RunMigrations(migrateCtx, db); err != nil {
		return fmt.Errorf("permission migrations failed: %w", err)
	}
	if err := buckets.RunMigrations(migrateCtx, db); err != nil {
		return fmt.Errorf("bucket migrations failed: %w", err)
	}

	// Audit trail (creates its own table)
	auditor, err := audit.NewDBLogger(db)
	if err != nil {
		return fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	// Redis: sessions, rate limiting, resolution cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	// Object storage for document buckets. Without an endpoint the service
	// runs metadata-only.
	var objects objectstore.Client = objectstore.NopClient{}
	if cfg.ObjectStore.Endpoint != "" {
		s3Client, err := objectstore.NewS3Client(context.Background(), cfg.ObjectStore)
		if err != nil {
			return fmt.Errorf("failed to initialize object storage: %w", err)
		}
		objects = s3Client
		logger.WithField("endpoint", cfg.ObjectStore.Endpoint).Info("Object storage enabled")
	} else {
		logger.Warn("No object storage endpoint configured, bucket provisioning disabled")
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	users := directory.NewService(directory.NewStore(db), 1024, time.Minute)

	domainSet, err := domains.New(domains.Deps{
		DB:        db,
		Directory: users,
		Redis:     redisClient,
		Auditor:   auditor,
		Metrics:   metrics,
		Logger:    logger,
		CacheTTL:  cfg.CacheTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to build permission engines: %w", err)
	}

	bucketService := buckets.NewService(buckets.NewStore(db), objects, domainSet.Buckets, users, auditor, logger)
	sessions := session.NewStore(redisClient, cfg.Session.TTL)

	janitor := audit.NewJanitor(auditor, cfg.AuditRetention, logger)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("failed to start audit janitor: %w", err)
	}

	// API server
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	if metrics != nil {
		router.Use(middleware.Metrics(metrics))
	}
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(redisClient, &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.RequestsPerWindow,
			WindowDuration:    cfg.RateLimit.WindowDuration,
		})
		router.Use(limiter.Handler)
	}
	router.Use(middleware.SessionAuth(sessions, users))

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequireAuth)
	domainSet.Mount(api, logger)
	buckets.NewHandlers(bucketService, logger).
		RegisterRoutes(api.PathPrefix("/buckets").Subrouter())

	admin := api.NewRoute().Subrouter()
	admin.Use(middleware.RequireAdmin)
	audit.NewHandlers(auditor, logger).RegisterRoutes(admin)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics server on its own port for k8s probes
	health := observability.NewHealthChecker(db, redisClient)
	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/health/live", health.Liveness).Methods("GET")
	healthRouter.HandleFunc("/health/ready", health.Readiness).Methods("GET")
	if metrics != nil {
		healthRouter.Handle("/metrics", metrics.Handler()).Methods("GET")
	}

	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthRouter,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		janitor.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return redisClient.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})

	if metrics != nil {
		go collectDBStats(metrics, db)
	}

	var group errgroup.Group
	group.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server failed: %w", err)
		}
		return nil
	})
	group.Go(shutdown.WaitForShutdown)

	return group.Wait()
}

func collectDBStats(metrics *observability.Metrics, db *sql.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		metrics.CollectDBStats(db)
	}
}
