// @title           CKAN Catalog Monitor API
// @version         1.0.0
// @description     Monitoring dashboard backend for CKAN-compatible open data catalogs: bulk dataset crawling, snapshot caching, and aggregate statistics.
// @basePath        /
// @schemes         http https
//
// @tag.name         System
// @tag.description  Health, readiness, and version endpoints.
//
// @tag.name         Dashboard
// @tag.description  Read-only views over the latest catalog snapshot plus the manual refresh trigger.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090), separate from the main API server, at GET /metrics. This keeps the scrape path off the public ingress and outside the rate-limiting middleware. Configure the port with CKD_TELEMETRY_METRICS_PROMETHEUS_PORT.

// Package main is the entry point for the catalog monitor binary. It
// dispatches four subcommands — serve, refresh, migrate, and version — via a
// simple switch on os.Args so the binary's full CLI surface is readable in one
// place without a cobra dependency. The serve command runs auto-migration on
// startup (when a database is configured) so freshly deployed containers never
// need a separate migration step.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ckan-monitor/ckan-monitor/internal/api"
	"github.com/ckan-monitor/ckan-monitor/internal/cache"
	"github.com/ckan-monitor/ckan-monitor/internal/ckan"
	"github.com/ckan-monitor/ckan-monitor/internal/config"
	"github.com/ckan-monitor/ckan-monitor/internal/db"
	"github.com/ckan-monitor/ckan-monitor/internal/db/repositories"
	"github.com/ckan-monitor/ckan-monitor/internal/safego"
	"github.com/ckan-monitor/ckan-monitor/internal/service"
	"github.com/ckan-monitor/ckan-monitor/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(cfg)
	case "refresh":
		return refresh(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	case "version":
		fmt.Printf("CKAN Catalog Monitor v%s\n", api.Version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, refresh, migrate, version", command)
	}
}

// buildPipeline wires the catalog client, memoization, snapshot store, and
// dashboard service from configuration. It is shared by serve and refresh.
func buildPipeline(ctx context.Context, cfg *config.Config, runs *repositories.FetchRunRepository) (*service.Dashboard, error) {
	client := ckan.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey)
	memo := ckan.NewMemo()
	cached := ckan.NewCachedClient(client, memo)

	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		redisStore, err := cache.NewRedisStore(ctx, cfg.Cache.Redis.Addr, cfg.Cache.Redis.Password, cfg.Cache.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis snapshot store: %w", err)
		}
		store = redisStore
	default:
		localStore, err := cache.NewLocalStore(cfg.Cache.Local.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local snapshot store: %w", err)
		}
		store = localStore
	}
	log.Printf("Snapshot store backend: %s", cfg.Cache.Backend)

	snapshot := cache.NewSnapshot(store, memo)

	opts := []service.Option{
		service.WithFetchLimit(cfg.Catalog.FetchLimit),
		service.WithTopN(cfg.Catalog.TopN),
	}
	if runs != nil {
		opts = append(opts, service.WithFetchRunRepository(runs))
	}

	return service.NewDashboard(cached, memo, snapshot, cfg.Catalog.DetailWorkers, opts...), nil
}

func serve(cfg *config.Config) error {
	// Initialise structured logging as early as possible so all subsequent
	// output uses the configured format and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect the optional fetch-history database.
	var database *sqlx.DB
	var runs *repositories.FetchRunRepository
	if cfg.Database.Enabled {
		sqlDB, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer sqlDB.Close()
		log.Println("Connected to database successfully")

		log.Println("Running database migrations...")
		if err := db.RunMigrations(sqlDB, "up"); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Println("Database migrations completed successfully")

		database = sqlx.NewDb(sqlDB, "postgres")
		runs = repositories.NewFetchRunRepository(database)
	} else {
		log.Println("Database disabled; fetch history will not be recorded")
	}

	dash, err := buildPipeline(context.Background(), cfg, runs)
	if err != nil {
		return err
	}

	// Warm the dashboard in the background so the server accepts connections
	// immediately; /ready flips once the first view is materialised.
	safego.Go("initial-load", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := dash.Load(ctx, false, "startup"); err != nil {
			slog.Error("initial dashboard load failed", "error", err)
			return
		}
		slog.Info("initial dashboard load completed")
	})

	// Serve Prometheus metrics on a dedicated port so the scrape path is not
	// reachable through the public API ingress.
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		safego.Go("metrics-server", func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	router, bgServices := api.NewRouter(cfg, api.Dependencies{
		Dashboard: dash,
		FetchRuns: runs,
		DB:        database,
	})

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Starting server on %s", cfg.Server.GetAddress())
		log.Printf("Monitoring catalog: %s", cfg.Catalog.BaseURL)
		log.Println("Server is ready to accept connections")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	bgServices.Shutdown()

	log.Println("Server stopped gracefully")
	return nil
}

// refresh runs one forced crawl from the command line and prints the summary
// as JSON to stdout. Useful for cron-driven snapshot warming and smoke tests.
func refresh(cfg *config.Config) error {
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	dash, err := buildPipeline(ctx, cfg, nil)
	if err != nil {
		return err
	}

	view, err := dash.Load(ctx, true, "cli")
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}

	summary := map[string]any{
		"loaded_at":     view.LoadedAt,
		"degraded":      view.Degraded,
		"datasets":      len(view.Rows),
		"organizations": len(view.Organizations),
		"total_views":   view.TotalViews,
	}
	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runMigrations(cfg *config.Config, direction string) error {
	if !cfg.Database.Enabled {
		return fmt.Errorf("database is disabled; enable it in configuration before migrating")
	}

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migration completed successfully")
	return nil
}
