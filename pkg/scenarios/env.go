// Package scenarios holds the user-action suite and the runner executing it.
package scenarios

import (
	"context"
	"sync"
	"time"

	"go.temporal.io/sdk/log"

	"dev/bravebird/messenger-e2e/pkg/models"
	"dev/bravebird/messenger-e2e/pkg/setup"
	"dev/bravebird/messenger-e2e/pkg/snapshot"
	"dev/bravebird/messenger-e2e/pkg/verify"
)

// Env is handed to a scenario body
type Env struct {
	*setup.Harness

	Snapshots *snapshot.Matcher
	Verify    verify.Config
	Logger    log.Logger

	mu       sync.Mutex
	attempts []models.VerificationAttempt
}

// VerifyOptions returns the options every verification of the scenario uses:
// the scenario logger and recording of each attempt.
func (e *Env) VerifyOptions(name string) []verify.Option {
	return []verify.Option{
		verify.WithLogger(e.Logger),
		verify.WithOnAttempt(func(a verify.Attempt) {
			e.record(name, a)
		}),
	}
}

func (e *Env) record(name string, a verify.Attempt) {
	rec := models.VerificationAttempt{
		Verification: name,
		Index:        a.Index,
		ElapsedMs:    a.Elapsed.Milliseconds(),
		Success:      a.Succeeded(),
	}
	if a.Err != nil {
		rec.ErrorMessage = a.Err.Error()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.attempts = append(e.attempts, rec)
}

// Attempts returns every verification attempt recorded so far
func (e *Env) Attempts() []models.VerificationAttempt {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.VerificationAttempt(nil), e.attempts...)
}

// sleepFor pauses for d unless ctx ends first
func sleepFor(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
