package scenarios

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/log"
	"golang.org/x/sync/errgroup"

	"dev/bravebird/messenger-e2e/pkg/models"
	"dev/bravebird/messenger-e2e/pkg/setup"
	"dev/bravebird/messenger-e2e/pkg/snapshot"
	"dev/bravebird/messenger-e2e/pkg/verify"
)

// ErrFixture marks failures preparing windows or users, as opposed to a
// scenario's own assertions failing
var ErrFixture = errors.New("fixture setup failed")

// ErrUnknownScenario is returned for names missing from the registry
var ErrUnknownScenario = errors.New("unknown scenario")

// FixtureOpener prepares the harness of a scenario. *setup.Fixtures
// implements it.
type FixtureOpener interface {
	Open(ctx context.Context, kind models.FixtureKind) (*setup.Harness, error)
}

// Runner executes scenarios and turns their outcome into results
type Runner struct {
	Fixtures      FixtureOpener
	Snapshots     *snapshot.Matcher
	Verify        verify.Config
	ScreenshotDir string
	Parallelism   int
	Logger        log.Logger

	// Scenarios defaults to All().
	Scenarios []Scenario
}

// Resolve maps names to scenarios; no names means the whole suite
func (r *Runner) Resolve(names ...string) ([]Scenario, error) {
	suite := r.Scenarios
	if suite == nil {
		suite = All()
	}
	if len(names) == 0 {
		return suite, nil
	}

	out := make([]Scenario, 0, len(names))
	for _, name := range names {
		found := false
		for _, s := range suite {
			if s.Name == name {
				out = append(out, s)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
		}
	}
	return out, nil
}

// Run executes the named scenarios, at most Parallelism at a time, and
// returns one result per scenario in request order. Scenario and fixture
// failures are reported in the results; the error is only set for unknown
// names or a cancelled context.
func (r *Runner) Run(ctx context.Context, names ...string) ([]models.ScenarioResult, error) {
	suite, err := r.Resolve(names...)
	if err != nil {
		return nil, err
	}

	limit := r.Parallelism
	if limit < 1 {
		limit = 1
	}

	results := make([]models.ScenarioResult, len(suite))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, s := range suite {
		i, s := i, s
		g.Go(func() error {
			res, err := r.RunScenario(ctx, s)
			if err != nil {
				res.Status = models.StatusFailed
				res.ErrorMessage = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}

// RunScenario opens the scenario's fixture, runs it and closes the windows.
// A failing scenario yields a failed result and a nil error; the error is
// reserved for fixture failures and wraps ErrFixture.
func (r *Runner) RunScenario(ctx context.Context, s Scenario) (models.ScenarioResult, error) {
	start := time.Now()
	executedAt := start.UTC()
	res := models.ScenarioResult{
		ID:         uuid.New().String(),
		Scenario:   s.Name,
		Status:     models.StatusRunning,
		ExecutedAt: &executedAt,
	}

	r.Logger.Info("Starting scenario", "scenario", s.Name, "fixture", s.Fixture)

	harness, err := r.Fixtures.Open(ctx, s.Fixture)
	if err != nil {
		res.Duration = time.Since(start).Milliseconds()
		return res, fmt.Errorf("%w: %s: %w", ErrFixture, s.Name, err)
	}
	defer func() {
		if err := harness.Close(); err != nil {
			r.Logger.Warn("Failed to close windows", "scenario", s.Name, "error", err)
		}
	}()

	env := &Env{
		Harness:   harness,
		Snapshots: r.snapshots().ForGroup(s.Name),
		Verify:    r.Verify,
		Logger:    log.With(r.Logger, "scenario", s.Name),
	}

	runErr := s.Run(ctx, env)

	res.Attempts = env.Attempts()
	res.Duration = time.Since(start).Milliseconds()
	if runErr != nil {
		res.Status = models.StatusFailed
		res.ErrorMessage = runErr.Error()
		res.ScreenshotPath = r.captureFailure(ctx, s.Name, harness)
		r.Logger.Error("Scenario failed", "scenario", s.Name, "error", runErr, "duration_ms", res.Duration)
		return res, nil
	}

	res.Status = models.StatusSuccess
	r.Logger.Info("Scenario passed", "scenario", s.Name, "duration_ms", res.Duration)
	return res, nil
}

func (r *Runner) snapshots() *snapshot.Matcher {
	if r.Snapshots == nil {
		return snapshot.NewMatcher(snapshot.DefaultDir, snapshot.UpdateNone)
	}
	return r.Snapshots
}

// captureFailure saves a screenshot of every window and returns the first path
func (r *Runner) captureFailure(ctx context.Context, name string, h *setup.Harness) string {
	if r.ScreenshotDir == "" {
		return ""
	}

	var first string
	stamp := time.Now().Format("20060102-150405")
	for _, w := range h.All() {
		filename := fmt.Sprintf("%s-%s-%s.png", slug(name), w.Name, stamp)
		path, err := w.SaveScreenshot(ctx, r.ScreenshotDir, filename)
		if err != nil {
			r.Logger.Warn("Failed to capture failure screenshot", "scenario", name, "window", w.Name, "error", err)
			continue
		}
		if first == "" {
			first = path
		}
	}
	return first
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

// Passed reports whether every result succeeded
func Passed(results []models.ScenarioResult) bool {
	for _, r := range results {
		if r.Status != models.StatusSuccess {
			return false
		}
	}
	return true
}
