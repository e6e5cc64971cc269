package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"dev/bravebird/messenger-e2e/pkg/models"
)

const (
	// ProgressQuery returns the SuiteResult accumulated so far
	ProgressQuery = "getProgress"

	// UnknownScenarioError is the non-retryable error type for names missing
	// from the registry
	UnknownScenarioError = "UnknownScenarioError"
	// InvalidInputError is the non-retryable error type for malformed input
	InvalidInputError = "InvalidInputError"

	defaultScenarioTimeout = 10 * time.Minute
)

// ScenarioInput is the input of RunScenarioActivity
type ScenarioInput struct {
	RunID           string `json:"run_id"`
	Scenario        string `json:"scenario"`
	UpdateSnapshots string `json:"update_snapshots"`
}

// RunStatusInput is the input of UpdateRunStatusActivity
type RunStatusInput struct {
	RunID        string           `json:"run_id"`
	Status       models.RunStatus `json:"status"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// SuiteWorkflow runs the scenarios of a suite run in batches of
// input.Parallelism and records each result as soon as it is known.
func SuiteWorkflow(ctx workflow.Context, input models.SuiteInput) (models.SuiteResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting suite workflow", "runID", input.RunID, "scenarios", len(input.Scenarios))

	result := models.SuiteResult{
		RunID:   input.RunID,
		Status:  models.StatusRunning,
		Results: make([]models.ScenarioResult, 0, len(input.Scenarios)),
	}

	// Register query handler for real-time progress
	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (models.SuiteResult, error) {
		return result, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
	}

	startTime := workflow.Now(ctx)

	timeout := time.Duration(input.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultScenarioTimeout
	}
	retryAttempts := input.RetryAttempts
	if retryAttempts < 1 {
		retryAttempts = 1
	}

	// Configure activity options with retry policy
	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        time.Minute,
			MaximumAttempts:        int32(retryAttempts),
			NonRetryableErrorTypes: []string{UnknownScenarioError, InvalidInputError},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// bookkeeping activities are cheap, retry them independently of the suite setting
	storeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 5},
	})

	updateStatus(storeCtx, RunStatusInput{RunID: input.RunID, Status: models.StatusRunning})

	if input.Cleanup {
		var removed int
		if err := workflow.ExecuteActivity(ctx, "CleanupActivity").Get(ctx, &removed); err != nil {
			logger.Warn("Cleanup failed", "error", err.Error())
		} else {
			logger.Info("Cleanup done", "removed", removed)
		}
	}

	parallelism := input.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}

	for start := 0; start < len(input.Scenarios) && ctx.Err() == nil; start += parallelism {
		end := start + parallelism
		if end > len(input.Scenarios) {
			end = len(input.Scenarios)
		}
		batch := runBatch(ctx, input, start, input.Scenarios[start:end], retryAttempts)

		for _, sr := range batch {
			result.Results = append(result.Results, sr)
			if err := workflow.ExecuteActivity(storeCtx, "RecordResultActivity", sr).Get(storeCtx, nil); err != nil {
				logger.Error("Failed to record result", "scenario", sr.Scenario, "error", err.Error())
			}
		}
	}

	// Calculate total duration
	result.TotalDuration = workflow.Now(ctx).Sub(startTime).Milliseconds()

	// Set final status
	failed := 0
	for _, sr := range result.Results {
		if sr.Status != models.StatusSuccess {
			failed++
		}
	}
	switch {
	case ctx.Err() != nil:
		result.Status = models.StatusCanceled
		result.ErrorMessage = "suite run canceled"
	case failed > 0:
		result.Status = models.StatusFailed
		result.ErrorMessage = fmt.Sprintf("%d of %d scenarios failed", failed, len(result.Results))
	default:
		result.Status = models.StatusSuccess
	}

	finalCtx := storeCtx
	if ctx.Err() != nil {
		finalCtx, _ = workflow.NewDisconnectedContext(storeCtx)
	}
	updateStatus(finalCtx, RunStatusInput{RunID: input.RunID, Status: result.Status, ErrorMessage: result.ErrorMessage})

	logger.Info("Suite workflow completed", "status", result.Status, "duration", result.TotalDuration, "failed", failed)
	return result, nil
}

// runBatch starts one activity per scenario and waits for all of them.
// offset is the position of names[0] in the suite.
func runBatch(ctx workflow.Context, input models.SuiteInput, offset int, names []string, retryAttempts int) []models.ScenarioResult {
	results := make([]models.ScenarioResult, len(names))
	selector := workflow.NewSelector(ctx)

	for i, name := range names {
		future := workflow.ExecuteActivity(ctx, "RunScenarioActivity", ScenarioInput{
			RunID:           input.RunID,
			Scenario:        name,
			UpdateSnapshots: input.UpdateSnapshots,
		})

		idx, name := i, name
		selector.AddFuture(future, func(f workflow.Future) {
			var sr models.ScenarioResult
			if err := f.Get(ctx, &sr); err != nil {
				sr = models.ScenarioResult{
					Scenario:     name,
					Status:       models.StatusFailed,
					RetryCount:   retryAttempts - 1,
					ErrorMessage: err.Error(),
				}
				if temporal.IsCanceledError(err) {
					sr.Status = models.StatusCanceled
				}
			}
			sr.RunID = input.RunID
			if sr.ID == "" {
				sr.ID = fmt.Sprintf("%s-%d", input.RunID, offset+idx)
			}
			results[idx] = sr
		})
	}

	// Wait for all activities of the batch to complete
	for range names {
		selector.Select(ctx)
	}
	return results
}

func updateStatus(ctx workflow.Context, in RunStatusInput) {
	if err := workflow.ExecuteActivity(ctx, "UpdateRunStatusActivity", in).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("Failed to update run status", "status", in.Status, "error", err.Error())
	}
}
