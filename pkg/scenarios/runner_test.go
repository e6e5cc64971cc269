package scenarios

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/messenger-e2e/pkg/app"
	"dev/bravebird/messenger-e2e/pkg/logging"
	"dev/bravebird/messenger-e2e/pkg/models"
	"dev/bravebird/messenger-e2e/pkg/setup"
	"dev/bravebird/messenger-e2e/pkg/snapshot"
	"dev/bravebird/messenger-e2e/pkg/verify"
)

type fakeFixtures struct {
	mu     sync.Mutex
	opened []models.FixtureKind
	err    error
}

func (f *fakeFixtures) Open(_ context.Context, kind models.FixtureKind) (*setup.Harness, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.opened = append(f.opened, kind)
	return &setup.Harness{
		OpenWindows: setup.OpenWindows{WindowA: &app.Window{Name: "aliceWindow1"}},
		Alice:       models.User{UserName: "Alice"},
	}, nil
}

func newTestRunner(fixtures FixtureOpener, suite ...Scenario) *Runner {
	return &Runner{
		Fixtures:    fixtures,
		Snapshots:   snapshot.NewMatcher("", snapshot.UpdateNone),
		Verify:      verify.Config{TotalBudget: 20 * time.Millisecond, Interval: time.Millisecond},
		Parallelism: 1,
		Logger:      logging.Discard(),
		Scenarios:   suite,
	}
}

func TestRunner_Success(t *testing.T) {
	fixtures := &fakeFixtures{}
	r := newTestRunner(fixtures, Scenario{
		Name:    "passes",
		Fixture: models.FixtureAlice1WNoNetwork,
		Run: func(_ context.Context, env *Env) error {
			if env.Alice.UserName != "Alice" {
				return errors.New("harness not passed through")
			}
			return nil
		},
	})

	results, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.Equal(t, "passes", res.Scenario)
	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.NotEmpty(t, res.ID)
	assert.NotNil(t, res.ExecutedAt)
	assert.Empty(t, res.ErrorMessage)
	assert.True(t, Passed(results))
	assert.Equal(t, []models.FixtureKind{models.FixtureAlice1WNoNetwork}, fixtures.opened)
}

func TestRunner_VerificationFailureKeepsAttempts(t *testing.T) {
	r := newTestRunner(&fakeFixtures{}, Scenario{
		Name:    "never matches",
		Fixture: models.FixtureAlice1WNoNetwork,
		Run: func(ctx context.Context, env *Env) error {
			probe := func(context.Context) (int, error) { return 1, nil }
			compare := func(int) error { return errors.New("still grey") }
			_, err := verify.Verify(ctx, env.Verify, "avatar", probe, compare, env.VerifyOptions("avatar")...)
			return err
		},
	})
	r.ScreenshotDir = t.TempDir()

	res, err := r.RunScenario(context.Background(), r.Scenarios[0])
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.ErrorMessage, "still grey")
	require.NotEmpty(t, res.Attempts)
	for i, a := range res.Attempts {
		assert.Equal(t, "avatar", a.Verification)
		assert.Equal(t, i, a.Index)
		assert.False(t, a.Success)
		assert.Equal(t, "still grey", a.ErrorMessage)
	}
	// windows never opened a page, so there is nothing to capture
	assert.Empty(t, res.ScreenshotPath)
	assert.False(t, Passed([]models.ScenarioResult{res}))
}

func TestRunner_FixtureFailure(t *testing.T) {
	r := newTestRunner(&fakeFixtures{err: errors.New("no browser")}, Scenario{
		Name:    "needs windows",
		Fixture: models.FixtureTwoWindows,
		Run:     func(context.Context, *Env) error { return nil },
	})

	_, err := r.RunScenario(context.Background(), r.Scenarios[0])
	require.ErrorIs(t, err, ErrFixture)
	assert.ErrorContains(t, err, "no browser")

	results, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].ErrorMessage, "no browser")
}

func TestRunner_UnknownScenario(t *testing.T) {
	r := newTestRunner(&fakeFixtures{})
	_, err := r.Run(context.Background(), "Teleport")
	assert.ErrorIs(t, err, ErrUnknownScenario)
}

func TestRunner_ResolveKeepsRequestOrder(t *testing.T) {
	r := newTestRunner(&fakeFixtures{})
	suite, err := r.Resolve("Read status", "Create contact")
	require.NoError(t, err)
	require.Len(t, suite, 2)
	assert.Equal(t, "Read status", suite[0].Name)
	assert.Equal(t, "Create contact", suite[1].Name)

	all, err := r.Resolve()
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestRunner_Parallelism(t *testing.T) {
	var running, peak int32
	body := func(context.Context, *Env) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}

	var suite []Scenario
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		suite = append(suite, Scenario{Name: name, Fixture: models.FixtureTwoWindows, Run: body})
	}
	r := newTestRunner(&fakeFixtures{}, suite...)
	r.Parallelism = 2

	results, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, res := range results {
		assert.Equal(t, suite[i].Name, res.Scenario)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestEnv_AttemptsIsolated(t *testing.T) {
	env := &Env{Logger: logging.Discard()}
	env.record("a", verify.Attempt{Index: 0, Elapsed: 1500 * time.Millisecond})

	got := env.Attempts()
	require.Len(t, got, 1)
	assert.True(t, got[0].Success)
	assert.Equal(t, int64(1500), got[0].ElapsedMs)

	got[0].Verification = "changed"
	assert.Equal(t, "a", env.Attempts()[0].Verification)
}

func TestSleepFor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepFor(ctx, time.Hour), context.Canceled)
}
