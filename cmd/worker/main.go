package main

import (
	"log"
	"os"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"dev/bravebird/messenger-e2e/pkg/app"
	"dev/bravebird/messenger-e2e/pkg/config"
	"dev/bravebird/messenger-e2e/pkg/database"
	"dev/bravebird/messenger-e2e/pkg/logging"
	"dev/bravebird/messenger-e2e/pkg/setup"
	"dev/bravebird/messenger-e2e/pkg/temporal/activities"
	"dev/bravebird/messenger-e2e/pkg/temporal/workflows"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireApp(); err != nil {
		log.Fatalf("%v", err)
	}

	logger := logging.FromEnv()

	// Create Temporal client
	c, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.Host,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("Failed to create Temporal client: %v", err)
	}
	defer c.Close()

	// Initialize database
	var store activities.ResultStore
	db, err := database.New(cfg.Database.DSN)
	if err != nil {
		log.Printf("Warning: Failed to connect to database: %v", err)
		log.Println("Running without result persistence")
	} else {
		defer db.Close()
		store = db
	}

	root, err := setup.DefaultConfigRoot()
	if err != nil {
		log.Fatalf("Failed to resolve app data root: %v", err)
	}
	launcher := app.NewLauncher(app.LaunchConfig{
		Bin:           cfg.App.Bin,
		URL:           cfg.App.URL,
		Headless:      cfg.App.Headless,
		Environment:   cfg.Environment,
		MultiPrefix:   cfg.App.MultiPrefix,
		DataRoot:      root,
		ActionTimeout: cfg.App.ActionTimeout.Std(),
	}, logger)
	// one cleaner for the whole process
	cleaner := setup.NewCleaner(root, app.DataDirPrefix(cfg.Environment, cfg.App.MultiPrefix), logger)

	// Create activities
	acts := activities.NewActivities(store, activities.DefaultRunnerFactory(cfg, launcher, cleaner), cleaner)

	// Create worker
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Suite.Parallelism,
		MaxConcurrentWorkflowTaskExecutionSize: 10,
	})

	// Register workflows
	w.RegisterWorkflow(workflows.SuiteWorkflow)

	// Register activities
	w.RegisterActivity(acts.RunScenarioActivity)
	w.RegisterActivity(acts.RecordResultActivity)
	w.RegisterActivity(acts.UpdateRunStatusActivity)
	w.RegisterActivity(acts.CleanupActivity)

	log.Printf("Starting Temporal worker on task queue: %s", cfg.Temporal.TaskQueue)
	log.Printf("Temporal host: %s", cfg.Temporal.Host)
	log.Printf("Environment: %s, snapshot update mode: %s", cfg.Environment, cfg.UpdateMode())

	// Start worker
	err = w.Run(worker.InterruptCh())
	if err != nil {
		log.Fatalf("Worker failed: %v", err)
	}
}
