// Package health provides health check endpoints and dependency monitoring
// for the optimizer service.
package health

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/optirole/optirole/internal/common/database"
)

// Status represents the overall health of the service
type Status struct {
	Status       string                     `json:"status"` // healthy, degraded, unhealthy
	Version      string                     `json:"version,omitempty"`
	Uptime       string                     `json:"uptime"`
	Dependencies map[string]DependencyCheck `json:"dependencies"`
	CheckedAt    time.Time                  `json:"checked_at"`
}

// DependencyCheck represents the health check result for a single dependency
type DependencyCheck struct {
	Status    string    `json:"status"` // up, degraded, down
	Latency   string    `json:"latency"`
	Details   string    `json:"details,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker is the interface that dependency health checks must implement
type Checker interface {
	Name() string
	Check(ctx context.Context) DependencyCheck
}

// Service orchestrates health checks across registered dependencies
type Service struct {
	checkers  []Checker
	logger    *zap.Logger
	startTime time.Time
	version   string
	mu        sync.RWMutex
}

// NewService creates a health service
func NewService(logger *zap.Logger, version string) *Service {
	return &Service{
		logger:    logger.With(zap.String("component", "health")),
		startTime: time.Now(),
		version:   version,
	}
}

// Register adds a dependency checker
func (h *Service) Register(checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, checker)
}

// Check runs all registered checkers concurrently and aggregates the results
func (h *Service) Check(ctx context.Context) *Status {
	h.mu.RLock()
	checkers := make([]Checker, len(h.checkers))
	copy(checkers, h.checkers)
	h.mu.RUnlock()

	type result struct {
		name  string
		check DependencyCheck
	}
	results := make(chan result, len(checkers))

	for _, checker := range checkers {
		go func(c Checker) {
			checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			results <- result{name: c.Name(), check: c.Check(checkCtx)}
		}(checker)
	}

	dependencies := make(map[string]DependencyCheck, len(checkers))
	for i := 0; i < len(checkers); i++ {
		r := <-results
		dependencies[r.name] = r.check
	}

	overall := "healthy"
	for name, dep := range dependencies {
		switch dep.Status {
		case "down":
			overall = "unhealthy"
			h.logger.Warn("Dependency is down", zap.String("dependency", name))
		case "degraded":
			if overall != "unhealthy" {
				overall = "degraded"
			}
		}
	}

	return &Status{
		Status:       overall,
		Version:      h.version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		Dependencies: dependencies,
		CheckedAt:    time.Now(),
	}
}

// Handler serves the full health check. Returns 200 for healthy/degraded
// and 503 for unhealthy.
func (h *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := h.Check(c.Request.Context())

		httpStatus := http.StatusOK
		if status.Status == "unhealthy" {
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, status)
	}
}

// RegisterRoutes registers /health plus liveness and readiness probes
func (h *Service) RegisterRoutes(router *gin.Engine) {
	router.GET("/health", h.Handler())
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		status := h.Check(c.Request.Context())
		for _, dep := range status.Dependencies {
			if dep.Status == "down" {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

// PostgresChecker checks the health of a PostgreSQL connection
type PostgresChecker struct {
	db *database.PostgresDB
}

// NewPostgresChecker creates a PostgresChecker
func NewPostgresChecker(db *database.PostgresDB) *PostgresChecker {
	return &PostgresChecker{db: db}
}

// Name returns the checker name
func (p *PostgresChecker) Name() string { return "postgres" }

// Check runs SELECT 1 and measures latency
func (p *PostgresChecker) Check(ctx context.Context) DependencyCheck {
	start := time.Now()

	var one int
	err := p.db.Pool.QueryRow(ctx, "SELECT 1").Scan(&one)
	latency := time.Since(start)

	if err != nil {
		return DependencyCheck{
			Status:    "down",
			Latency:   latency.String(),
			Details:   fmt.Sprintf("query failed: %v", err),
			CheckedAt: time.Now(),
		}
	}

	status := "up"
	if latency > 500*time.Millisecond {
		status = "degraded"
	}
	return DependencyCheck{Status: status, Latency: latency.String(), CheckedAt: time.Now()}
}

// RedisChecker checks the health of a Redis connection
type RedisChecker struct {
	redis *database.RedisClient
}

// NewRedisChecker creates a RedisChecker
func NewRedisChecker(redis *database.RedisClient) *RedisChecker {
	return &RedisChecker{redis: redis}
}

// Name returns the checker name
func (r *RedisChecker) Name() string { return "redis" }

// Check runs PING and measures latency
func (r *RedisChecker) Check(ctx context.Context) DependencyCheck {
	start := time.Now()

	_, err := r.redis.Client.Ping(ctx).Result()
	latency := time.Since(start)

	if err != nil {
		return DependencyCheck{
			Status:    "down",
			Latency:   latency.String(),
			Details:   fmt.Sprintf("ping failed: %v", err),
			CheckedAt: time.Now(),
		}
	}

	status := "up"
	if latency > 200*time.Millisecond {
		status = "degraded"
	}
	return DependencyCheck{Status: status, Latency: latency.String(), CheckedAt: time.Now()}
}
