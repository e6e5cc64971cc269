package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	"dev/bravebird/messenger-e2e/pkg/api"
	"dev/bravebird/messenger-e2e/pkg/config"
	"dev/bravebird/messenger-e2e/pkg/database"
	"dev/bravebird/messenger-e2e/pkg/logging"
)

func main() {
	log.Println("Starting Messenger E2E API Server")

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.FromEnv()

	// Initialize database
	var store api.Store
	db, err := database.New(cfg.Database.DSN)
	if err != nil {
		log.Printf("Warning: Failed to connect to database: %v", err)
		log.Println("Running without database persistence")
	} else {
		defer db.Close()
		if err := db.Migrate(context.Background()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		store = db
	}

	// Initialize Temporal client
	temporalClient, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.Host,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer temporalClient.Close()

	// Create API handlers
	handlers := api.NewHandlers(store, temporalClient, api.Config{
		TaskQueue:       cfg.Temporal.TaskQueue,
		ScreenshotDir:   cfg.Suite.ScreenshotDir,
		Parallelism:     cfg.Suite.Parallelism,
		RetryAttempts:   cfg.Suite.RetryAttempts,
		UpdateSnapshots: cfg.Snapshots.Update,
	}, logger)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(handlers),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
