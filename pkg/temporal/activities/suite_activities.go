package activities

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"

	"dev/bravebird/messenger-e2e/pkg/app"
	"dev/bravebird/messenger-e2e/pkg/config"
	"dev/bravebird/messenger-e2e/pkg/models"
	"dev/bravebird/messenger-e2e/pkg/scenarios"
	"dev/bravebird/messenger-e2e/pkg/setup"
	"dev/bravebird/messenger-e2e/pkg/snapshot"
	"dev/bravebird/messenger-e2e/pkg/temporal/workflows"
)

const heartbeatInterval = 10 * time.Second

// ScenarioRunner runs a single scenario. *scenarios.Runner implements it.
type ScenarioRunner interface {
	RunScenario(ctx context.Context, s scenarios.Scenario) (models.ScenarioResult, error)
}

// RunnerFactory builds the runner for one activity execution
type RunnerFactory func(mode snapshot.UpdateMode, logger log.Logger) ScenarioRunner

// ResultStore persists run progress. *database.DB implements it.
type ResultStore interface {
	CreateScenarioResult(ctx context.Context, result *models.ScenarioResult) error
	UpdateSuiteRunStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error
}

// Activities holds activity implementations
type Activities struct {
	Store     ResultStore
	NewRunner RunnerFactory
	Cleaner   *setup.Cleaner
}

// NewActivities creates new activities
func NewActivities(store ResultStore, newRunner RunnerFactory, cleaner *setup.Cleaner) *Activities {
	return &Activities{
		Store:     store,
		NewRunner: newRunner,
		Cleaner:   cleaner,
	}
}

// DefaultRunnerFactory wires launcher, fixtures and verifier settings from cfg.
// The update mode of the run overrides the configured one.
func DefaultRunnerFactory(cfg *config.Config, launcher *app.Launcher, cleaner *setup.Cleaner) RunnerFactory {
	return func(mode snapshot.UpdateMode, logger log.Logger) ScenarioRunner {
		verification := cfg.Verification()
		verification.UseExtendedSettleMode = mode == snapshot.UpdateAll

		return &scenarios.Runner{
			Fixtures:      setup.NewFixtures(launcher, cleaner, logger),
			Snapshots:     snapshot.NewMatcher(cfg.Snapshots.Dir, mode),
			Verify:        verification,
			ScreenshotDir: cfg.Suite.ScreenshotDir,
			Parallelism:   1,
			Logger:        logger,
		}
	}
}

// RunScenarioActivity runs one scenario. Scenario failures, including
// verification timeouts, come back as a failed result; only fixture failures
// are returned as errors so the retry policy applies to them.
func (a *Activities) RunScenarioActivity(ctx context.Context, input workflows.ScenarioInput) (models.ScenarioResult, error) {
	logger := activity.GetLogger(ctx)
	info := activity.GetInfo(ctx)
	logger.Info("Running scenario", "runID", input.RunID, "scenario", input.Scenario, "attempt", info.Attempt)

	s, ok := scenarios.Lookup(input.Scenario)
	if !ok {
		return models.ScenarioResult{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown scenario %q", input.Scenario), workflows.UnknownScenarioError, scenarios.ErrUnknownScenario)
	}
	mode, err := snapshot.ParseUpdateMode(input.UpdateSnapshots)
	if err != nil {
		return models.ScenarioResult{}, temporal.NewNonRetryableApplicationError(err.Error(), workflows.InvalidInputError, err)
	}

	stop := startHeartbeat(ctx, input.Scenario)
	defer stop()

	result, err := a.NewRunner(mode, logger).RunScenario(ctx, s)
	if err != nil {
		if errors.Is(err, scenarios.ErrFixture) {
			logger.Warn("Fixture failed, attempt will be retried", "scenario", input.Scenario, "error", err)
		}
		return result, err
	}

	result.RunID = input.RunID
	result.RetryCount = int(info.Attempt) - 1
	return result, nil
}

// startHeartbeat reports liveness until the returned func is called
func startHeartbeat(ctx context.Context, details string) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx, details)
			}
		}
	}()
	return func() { close(done) }
}

// RecordResultActivity stores a scenario result and its verification attempts
func (a *Activities) RecordResultActivity(ctx context.Context, result models.ScenarioResult) error {
	if a.Store == nil {
		return nil
	}
	if err := a.Store.CreateScenarioResult(ctx, &result); err != nil {
		return fmt.Errorf("failed to record result of %s: %w", result.Scenario, err)
	}
	return nil
}

// UpdateRunStatusActivity moves a suite run to a new status
func (a *Activities) UpdateRunStatusActivity(ctx context.Context, input workflows.RunStatusInput) error {
	if a.Store == nil {
		return nil
	}
	activity.GetLogger(ctx).Info("Updating run status", "runID", input.RunID, "status", input.Status)
	return a.Store.UpdateSuiteRunStatus(ctx, input.RunID, input.Status, input.ErrorMessage)
}

// CleanupActivity removes data directories left by earlier runs and returns
// how many were removed. It does nothing once a cleanup has succeeded.
func (a *Activities) CleanupActivity(ctx context.Context) (int, error) {
	if a.Cleaner == nil {
		return 0, nil
	}
	removed, err := a.Cleaner.Clean()
	if err != nil {
		return len(removed), fmt.Errorf("failed to clean leftovers: %w", err)
	}
	activity.GetLogger(ctx).Info("Leftovers cleaned", "removed", len(removed))
	return len(removed), nil
}
