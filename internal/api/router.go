// Package api wires together all HTTP routes for the catalog monitor.
//
// Route grouping philosophy:
//   - The read endpoints under /api/v1/ serve the latest materialised
//     dashboard view and never touch the upstream catalog on the request
//     path; they answer from memory even when the catalog is down.
//   - POST /api/v1/refresh is the only mutating route. It is rate limited far
//     more strictly than the read routes because each call re-crawls the
//     whole upstream catalog.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/ckan-monitor/ckan-monitor/internal/api/dashboard"
	"github.com/ckan-monitor/ckan-monitor/internal/config"
	"github.com/ckan-monitor/ckan-monitor/internal/db/repositories"
	"github.com/ckan-monitor/ckan-monitor/internal/middleware"
	"github.com/ckan-monitor/ckan-monitor/internal/service"
)

// Version is the monitor release version, overridable at build time with
// -ldflags "-X .../internal/api.Version=...".
var Version = "0.1.0"

// Dependencies carries the wired collaborators into the router. DB and
// FetchRuns are nil when no database is configured; the router degrades the
// affected endpoints rather than failing.
type Dependencies struct {
	Dashboard *service.Dashboard
	FetchRuns *repositories.FetchRunRepository
	DB        *sqlx.DB
}

// BackgroundServices holds resources that must be stopped during graceful
// shutdown. The caller (cmd/server) calls Shutdown after the HTTP server has
// drained in-flight requests.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops all background goroutines owned by the router.
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("router background services stopped")
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg *config.Config, deps Dependencies) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics())
	router.Use(loggerMiddleware())
	router.Use(corsMiddleware())
	router.Use(middleware.SecurityHeaders(middleware.APISecurityHeadersConfig()))

	router.GET("/health", healthCheckHandler(deps.DB))
	router.GET("/ready", readinessHandler(deps.Dashboard))
	router.GET("/version", versionHandler())

	handler := dashboard.NewHandler(deps.Dashboard, deps.FetchRuns)

	v1 := router.Group("/api/v1")
	if cfg.Security.RateLimiting.Enabled {
		readLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.Security.RateLimiting.RequestsPerMinute,
			BurstSize:         cfg.Security.RateLimiting.Burst,
			CleanupInterval:   5 * time.Minute,
		})
		bg.rateLimiters = append(bg.rateLimiters, readLimiter)
		v1.Use(middleware.RateLimit(readLimiter))
	}

	v1.GET("/summary", handler.Summary)
	v1.GET("/datasets", handler.Datasets)
	v1.GET("/organizations", handler.Organizations)
	v1.GET("/org-counts", handler.OrgCounts)
	v1.GET("/tags", handler.Tags)
	v1.GET("/formats", handler.Formats)
	v1.GET("/fetch-runs", handler.FetchRuns)

	// The refresh route gets its own strict limiter on top of the group's.
	refreshLimiter := middleware.NewRateLimiter(middleware.RefreshRateLimitConfig())
	bg.rateLimiters = append(bg.rateLimiters, refreshLimiter)
	v1.POST("/refresh", middleware.RateLimit(refreshLimiter), handler.Refresh)

	return router, bg
}

// @Summary      Health check
// @Description  Liveness probe. Reports unhealthy only when the configured database is unreachable; the upstream catalog is deliberately not probed here, since the monitor keeps serving its last view through catalog outages.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status: healthy, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "status: unhealthy, error: database connection failed"
// @Router       /health [get]
func healthCheckHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := db.PingContext(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "database connection failed",
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      Readiness check
// @Description  Reports ready once an initial dashboard view has been materialised, so a load balancer never routes to an instance that would answer every request with 503.
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "ready: true, time: RFC3339 timestamp"
// @Failure      503  {object}  map[string]interface{}  "ready: false, error: no dashboard view loaded yet"
// @Router       /ready [get]
func readinessHandler(svc *service.Dashboard) gin.HandlerFunc {
	return func(c *gin.Context) {
		view := svc.Current()
		if view == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready": false,
				"error": "no dashboard view loaded yet",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":     true,
			"loaded_at": view.LoadedAt,
			"degraded":  view.Degraded,
			"time":      time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// @Summary      API version
// @Tags         System
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "version, api_version"
// @Router       /version [get]
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}

// loggerMiddleware logs every request through the process-wide slog handler,
// so the output format follows telemetry.SetupLogger.
func loggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
		)
	}
}

// corsMiddleware allows cross-origin reads. The API is read-only public data;
// the sole mutating route is idempotent and rate limited, so a permissive
// policy is acceptable and lets any dashboard frontend consume the API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-Requested-With")
		c.Header("Access-Control-Max-Age", "3600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
