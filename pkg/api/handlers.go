package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"

	"dev/bravebird/messenger-e2e/pkg/models"
	"dev/bravebird/messenger-e2e/pkg/scenarios"
	"dev/bravebird/messenger-e2e/pkg/snapshot"
	"dev/bravebird/messenger-e2e/pkg/temporal/workflows"
)

// Store is the run persistence the handlers need. *database.DB implements it.
type Store interface {
	CreateSuiteRun(ctx context.Context, run *models.SuiteRun) error
	GetSuiteRun(ctx context.Context, id string) (*models.SuiteRun, error)
	ListSuiteRuns(ctx context.Context, limit int) ([]models.SuiteRun, error)
	UpdateSuiteRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
	SetTemporalIDs(ctx context.Context, id, workflowID, runID string) error
	GetScenarioResults(ctx context.Context, runID string) ([]models.ScenarioResult, error)
}

// Config holds the defaults applied to new runs
type Config struct {
	TaskQueue       string
	ScreenshotDir   string
	Parallelism     int
	RetryAttempts   int
	ScenarioTimeout time.Duration
	UpdateSnapshots string
	PollInterval    time.Duration
}

// Handlers contains API handlers
type Handlers struct {
	store          Store
	temporalClient client.Client
	cfg            Config
	logger         log.Logger
	validate       *validator.Validate
	upgrader       websocket.Upgrader
}

// NewHandlers creates new API handlers. store may be nil, in which case run
// endpoints answer 503.
func NewHandlers(store Store, temporalClient client.Client, cfg Config, logger log.Logger) *Handlers {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	return &Handlers{
		store:          store,
		temporalClient: temporalClient,
		cfg:            cfg,
		logger:         logger,
		validate:       validator.New(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Health reports liveness
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==================== Scenario Handlers ====================

// ListScenarios lists the registered scenarios
func (h *Handlers) ListScenarios(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, scenarios.Infos())
}

// ==================== Run Handlers ====================

// CreateRun starts a suite run
func (h *Handlers) CreateRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req models.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	input, err := h.suiteInput(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run := &models.SuiteRun{
		ID:              input.RunID,
		Status:          models.StatusPending,
		Scenarios:       input.Scenarios,
		UpdateSnapshots: input.UpdateSnapshots,
	}
	if err := h.store.CreateSuiteRun(ctx, run); err != nil {
		http.Error(w, "Failed to create run: "+err.Error(), http.StatusInternalServerError)
		return
	}

	workflowOptions := client.StartWorkflowOptions{
		ID:        WorkflowID(input.RunID),
		TaskQueue: h.cfg.TaskQueue,
	}

	we, err := h.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.SuiteWorkflow, input)
	if err != nil {
		if uerr := h.store.UpdateSuiteRunStatus(ctx, input.RunID, models.StatusFailed, err.Error()); uerr != nil {
			h.logger.Error("Failed to mark run failed", "runID", input.RunID, "error", uerr)
		}
		http.Error(w, "Failed to start workflow: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Update run with Temporal IDs
	if err := h.store.SetTemporalIDs(ctx, input.RunID, we.GetID(), we.GetRunID()); err != nil {
		h.logger.Warn("Failed to store temporal ids", "runID", input.RunID, "error", err)
	}
	h.logger.Info("Suite run started", "runID", input.RunID, "scenarios", len(input.Scenarios), "workflowID", we.GetID())

	respondJSONStatus(w, http.StatusAccepted, map[string]interface{}{
		"run_id":               input.RunID,
		"temporal_workflow_id": we.GetID(),
		"temporal_run_id":      we.GetRunID(),
		"status":               models.StatusRunning,
	})
}

// suiteInput validates req and fills in defaults
func (h *Handlers) suiteInput(req models.RunRequest) (models.SuiteInput, error) {
	if err := h.validate.Struct(req); err != nil {
		return models.SuiteInput{}, fmt.Errorf("invalid request: %w", err)
	}

	names := req.Scenarios
	if len(names) == 0 {
		for _, s := range scenarios.All() {
			names = append(names, s.Name)
		}
	}
	for _, name := range names {
		if _, ok := scenarios.Lookup(name); !ok {
			return models.SuiteInput{}, fmt.Errorf("unknown scenario: %q", name)
		}
	}

	update := req.UpdateSnapshots
	if update == "" {
		update = h.cfg.UpdateSnapshots
	}
	mode, err := snapshot.ParseUpdateMode(update)
	if err != nil {
		return models.SuiteInput{}, err
	}

	parallelism := req.Parallelism
	if parallelism == 0 {
		parallelism = h.cfg.Parallelism
	}

	return models.SuiteInput{
		RunID:           uuid.New().String(),
		Scenarios:       names,
		UpdateSnapshots: string(mode),
		Parallelism:     parallelism,
		Timeout:         int(h.cfg.ScenarioTimeout.Seconds()),
		RetryAttempts:   h.cfg.RetryAttempts,
		Cleanup:         req.Cleanup,
	}, nil
}

// WorkflowID is the Temporal workflow id of a suite run
func WorkflowID(runID string) string {
	return "messenger-e2e-" + runID
}

// ListRuns lists the most recent suite runs
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := h.store.ListSuiteRuns(ctx, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []models.SuiteRun{}
	}
	respondJSON(w, runs)
}

// GetRun retrieves a suite run with its scenario results
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.store.GetSuiteRun(ctx, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}

	results, err := h.store.GetScenarioResults(ctx, id)
	if err != nil {
		h.logger.Warn("Failed to load results", "runID", id, "error", err)
	}
	run.Results = results

	respondJSON(w, run)
}

// CancelRun cancels a running suite
func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	run, err := h.store.GetSuiteRun(ctx, id)
	if err != nil || run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if run.Status.Terminal() {
		http.Error(w, fmt.Sprintf("Run already %s", run.Status), http.StatusConflict)
		return
	}

	// Cancel Temporal workflow
	if run.TemporalWorkflowID != "" {
		err = h.temporalClient.CancelWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID)
		if err != nil {
			http.Error(w, "Failed to cancel workflow: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	if err := h.store.UpdateSuiteRunStatus(ctx, id, models.StatusCanceled, "Cancelled by user"); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]string{"status": string(models.StatusCanceled)})
}

// StreamRunUpdates streams run updates via WebSocket until the run ends
func (h *Handlers) StreamRunUpdates(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if h.store == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()

	ticker := time.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()

	var (
		lastStatus      models.RunStatus
		lastResultCount = -1
	)

	for {
		status, results, err := h.progress(ctx, runID)
		if err != nil {
			_ = conn.WriteJSON(models.WSMessage{Type: "error", Payload: err.Error()})
			return
		}

		// Send update if status or results changed
		if status != lastStatus || len(results) != lastResultCount {
			msg := models.WSMessage{
				Type: "run_update",
				Payload: map[string]interface{}{
					"run_id":  runID,
					"status":  status,
					"results": results,
				},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			lastStatus = status
			lastResultCount = len(results)

			if status.Terminal() {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

var errRunNotFound = errors.New("run not found")

// progress asks the workflow first and falls back to the database
func (h *Handlers) progress(ctx context.Context, runID string) (models.RunStatus, []models.ScenarioResult, error) {
	run, err := h.store.GetSuiteRun(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	if run == nil {
		return "", nil, errRunNotFound
	}

	if h.temporalClient != nil && run.TemporalWorkflowID != "" && !run.Status.Terminal() {
		resp, err := h.temporalClient.QueryWorkflow(ctx, run.TemporalWorkflowID, run.TemporalRunID, workflows.ProgressQuery)
		if err == nil {
			var result models.SuiteResult
			if resp.Get(&result) == nil {
				return result.Status, result.Results, nil
			}
		}
	}

	results, err := h.store.GetScenarioResults(ctx, runID)
	if err != nil {
		return "", nil, err
	}
	return run.Status, results, nil
}

// ==================== Screenshot Handlers ====================

// ServeScreenshot serves a failure screenshot
func (h *Handlers) ServeScreenshot(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	// Only files directly inside the screenshots directory
	filePath := filepath.Join(h.cfg.ScreenshotDir, filepath.Base(filename))

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		http.Error(w, "Screenshot not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, filePath)
}

// ==================== Helpers ====================

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
