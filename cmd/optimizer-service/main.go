// Package main is the entry point for the Optimizer Service.
// The Optimizer Service recommends cost-minimal, conflict-free security role
// combinations and the license tier they imply.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/optirole/optirole/internal/common/config"
	"github.com/optirole/optirole/internal/common/database"
	"github.com/optirole/optirole/internal/common/health"
	"github.com/optirole/optirole/internal/common/logger"
	"github.com/optirole/optirole/internal/common/middleware"
	"github.com/optirole/optirole/internal/common/shutdown"
	"github.com/optirole/optirole/internal/common/tracing"
	"github.com/optirole/optirole/internal/optimizer"
	"github.com/optirole/optirole/pkg/auditlog"
)

var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

const serviceName = "optimizer-service"

func main() {
	log := logger.New()
	defer log.Sync()

	log.Info("Starting Optimizer Service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", CommitHash),
	)

	cfg, err := config.Load(serviceName)
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	shutdownTracing, err := tracing.Init(ctx, tracing.ConfigFromEnv(serviceName, cfg.Environment), log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Elasticsearch is optional; without it recommendation audits are not
	// indexed but everything else works
	var es *database.ElasticsearchClient
	if cfg.EnableAuditIndexing {
		es, err = database.NewElasticsearch(cfg.ElasticsearchURL)
		if err != nil {
			log.Warn("Elasticsearch unavailable, audit indexing disabled", zap.Error(err))
			es = nil
		}
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.GetCORSOrigins()))
	router.Use(middleware.RequestID())
	router.Use(logger.GinMiddleware(log))
	if cfg.EnableRateLimit {
		router.Use(middleware.RateLimit(cfg.RateLimitRequests, time.Duration(cfg.RateLimitWindow)*time.Second))
	}
	router.Use(middleware.PrometheusMetrics(serviceName))

	router.GET("/metrics", middleware.MetricsHandler())

	healthSvc := health.NewService(log, Version)
	healthSvc.Register(health.NewPostgresChecker(db))
	healthSvc.Register(health.NewRedisChecker(redis))
	healthSvc.RegisterRoutes(router)

	svc := optimizer.NewService(db, redis, es, cfg, log)

	if cfg.AuditTrailPath != "" {
		store, err := auditlog.NewFileStore(cfg.AuditTrailPath)
		if err != nil {
			log.Fatal("Failed to open audit trail", zap.Error(err))
		}
		trail, err := auditlog.NewTrail(store)
		if err != nil {
			log.Fatal("Failed to load audit trail", zap.Error(err))
		}
		svc.SetAuditTrail(trail)
		log.Info("Decision audit trail enabled", zap.String("path", cfg.AuditTrailPath))
	}

	optimizer.RegisterRoutes(router, svc)

	// Load the initial snapshot so the engine is ready before traffic
	// arrives; a failure here is not fatal, the refresh endpoint can retry
	if err := svc.RefreshSnapshot(ctx); err != nil {
		log.Warn("Initial snapshot load failed, service starts without a snapshot", zap.Error(err))
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sm := shutdown.NewManager(log, 30*time.Second)
	sm.RegisterHook("tracing", shutdownTracing)
	sm.RegisterHook("redis", func(context.Context) error { return redis.Close() })
	sm.RegisterHook("postgres", func(context.Context) error { return db.Close() })

	if err := sm.Serve(server); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}

	log.Info("Optimizer Service started", zap.Int("port", cfg.Port))
	sm.Wait()
}
