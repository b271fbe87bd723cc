package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flowplane/flowplane/pkg/api"
	"github.com/flowplane/flowplane/pkg/api/handlers"
	"github.com/flowplane/flowplane/pkg/api/middleware"
	"github.com/flowplane/flowplane/pkg/auth"
	"github.com/flowplane/flowplane/pkg/bootstrap"
	"github.com/flowplane/flowplane/pkg/config"
	"github.com/flowplane/flowplane/pkg/logger"
	"github.com/flowplane/flowplane/pkg/metrics"
	"github.com/flowplane/flowplane/pkg/storage"
	"github.com/flowplane/flowplane/pkg/xds"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "", "Path to configuration file (TOML)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger with config
	log, err := logger.NewLogger(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Flowplane",
		zap.String("config_file", *configPath),
		zap.String("database_driver", cfg.Database.Driver),
		zap.Int("api_port", cfg.Server.APIPort),
		zap.Int("xds_port", cfg.XDS.Port),
	)

	// Open the database and run migrations
	db, err := storage.Open(storage.Options{
		Driver: cfg.Database.Driver,
		Path:   cfg.Database.SQLite.Path,
		DSN:    cfg.Database.PostgresDSN(),
	}, log)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	clusters := storage.NewClusterStore(db, log)
	routes := storage.NewRouteStore(db, log)
	listeners := storage.NewListenerStore(db, log)
	definitions := storage.NewAPIDefinitionStore(db, log)
	audit := storage.NewAuditLogStore(db, log)
	tokenStore := storage.NewTokenStore(db, log)

	tokens := auth.NewTokenService(tokenStore, audit, log)
	authenticator := auth.NewAuthenticator(tokenStore, log)

	// Seed startup defaults before the first snapshot so a fresh install
	// serves the default gateway immediately
	seeder := bootstrap.NewSeeder(cfg.Bootstrap, clusters, routes, listeners, tokenStore, tokens, log)
	if err := seeder.Run(); err != nil {
		log.Fatal("Failed to seed startup defaults", zap.Error(err))
	}

	// Initialize xDS snapshot manager
	snapshots := xds.NewSnapshotManager(clusters, routes, listeners, cfg.XDS.NodeID, log)

	// Generate initial xDS snapshot from whatever the database already holds
	log.Info("Generating initial xDS snapshot")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := snapshots.Refresh(ctx, ""); err != nil {
		log.Warn("Failed to generate initial xDS snapshot", zap.Error(err))
	}
	cancel()

	// Start xDS gRPC server
	xdsServer := xds.NewServer(snapshots, cfg.XDS.Port, log)
	go func() {
		if err := xdsServer.Start(); err != nil {
			log.Fatal("xDS server failed", zap.Error(err))
		}
	}()

	// Initialize Gin router
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	// IMPORTANT: CorrelationIDMiddleware must be registered first to ensure
	// correlation ID is available in context for subsequent middleware and handlers
	router.Use(middleware.CorrelationIDMiddleware(log))
	router.Use(middleware.ErrorHandlingMiddleware(log))
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.MetricsMiddleware())
	router.Use(gin.Recovery())

	// Initialize API server
	apiServer := handlers.NewAPIServer(clusters, routes, listeners, definitions, audit, tokens, snapshots, log)

	// Register API routes
	api.RegisterHandlers(router, apiServer, authenticator, log)

	// Start REST API server
	log.Info("Starting REST API server", zap.Int("port", cfg.Server.APIPort))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.APIPort),
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start REST API server", zap.Error(err))
		}
	}()

	// Start metrics server if enabled
	var metricsServer *metrics.Server
	memCtx, memCancel := context.WithCancel(context.Background())
	defer memCancel()
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(&cfg.Metrics, log)
		if err := metricsServer.Start(); err != nil {
			log.Fatal("Failed to start metrics server", zap.Error(err))
		}
		metrics.StartMemoryMetricsUpdater(memCtx, 15*time.Second)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down Flowplane")

	// Graceful shutdown with timeout
	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(ctx); err != nil {
			log.Error("Metrics server forced to shutdown", zap.Error(err))
		}
	}

	xdsServer.Stop()

	log.Info("Flowplane stopped")
}
