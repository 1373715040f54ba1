package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/omnipos/catalog-sync/internal/api"
	"github.com/omnipos/catalog-sync/internal/config"
	"github.com/omnipos/catalog-sync/internal/db"
	"github.com/omnipos/catalog-sync/internal/importer"
	"github.com/omnipos/catalog-sync/internal/metrics"
	"github.com/omnipos/catalog-sync/internal/models"
	"github.com/omnipos/catalog-sync/internal/queue"
	"github.com/omnipos/catalog-sync/internal/square"

	_ "github.com/omnipos/catalog-sync/docs"
)

// @title Catalog Sync API
// @version 1.0
// @description API for importing and syncing POS catalogs into the product database
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})
	logger.SetOutput(os.Stdout)

	// Load configuration with defaults
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate minimum required config
	if cfg.DBConnectionString == "" || cfg.AMQPURL == "" {
		logger.Fatal("Missing required configuration (DB_CONNECTION_STRING and AMQP_URL must be set)")
	}

	// Initialize database
	store, err := db.NewPostgresStore(cfg.DBConnectionString)
	if err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Run migrations with retry logic
	if err := retry(3, 5*time.Second, func() error {
		return store.Migrate()
	}); err != nil {
		logger.Fatalf("Failed to run migrations after retries: %v", err)
	}

	// Initialize job queue
	jobQueue, err := queue.NewRabbitMQQueue(cfg.AMQPURL, cfg.Import.QueueName, logger)
	if err != nil {
		logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}
	defer jobQueue.Close()

	// Initialize metrics
	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)

	// Initialize services
	clientFactory := func(integration *models.Integration) importer.CatalogClient {
		token := integration.AccessToken
		if token == "" {
			token = cfg.Square.AccessToken
		}
		return square.NewClient(cfg.Square, token, logger)
	}
	runner := importer.NewRunner(store, clientFactory, jobQueue, cfg.Import, appMetrics, logger)
	worker := importer.NewWorker(jobQueue, runner, logger)
	watchdog := importer.NewWatchdog(store, &cfg.Import.Watchdog, appMetrics, logger)
	importService := importer.NewImportService(store, jobQueue, appMetrics, logger)

	apiHandler := api.NewHandler(importService, watchdog, store, logger)
	router := api.SetupRouter(apiHandler, registry)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	// Start background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := worker.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Fatalf("Import worker failed: %v", err)
		}
	}()
	go watchdog.Start(ctx)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	logger.Info("Server exited properly")
}

// retry retries a function up to a certain number of attempts with a delay between attempts
func retry(attempts int, sleep time.Duration, fn func() error) error {
	if err := fn(); err != nil {
		if attempts--; attempts > 0 {
			time.Sleep(sleep)
			return retry(attempts, sleep, fn)
		}
		return err
	}
	return nil
}
