// Package verify retries an assertion against an eventually consistent system
// until it holds or a wall-clock budget runs out.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/log"
)

const (
	// DefaultTotalBudget is the time budget used when Config.TotalBudget is zero.
	DefaultTotalBudget = 20 * time.Second
	// DefaultInterval is the wait before each attempt when Config.Interval is zero.
	DefaultInterval = 500 * time.Millisecond
	// ExtendedSettleInterval replaces the interval when UseExtendedSettleMode is set.
	ExtendedSettleInterval = 15 * time.Second
)

// ErrVerificationTimeout matches every *TimeoutError via errors.Is.
var ErrVerificationTimeout = errors.New("verification timeout")

// Config bounds a verification.
type Config struct {
	TotalBudget time.Duration
	Interval    time.Duration

	// UseExtendedSettleMode overrides Interval with ExtendedSettleInterval. It is
	// set while baselines are being regenerated so the remote state has time to land.
	UseExtendedSettleMode bool
}

// DefaultConfig returns a 20s budget polled every 500ms.
func DefaultConfig() Config {
	return Config{
		TotalBudget: DefaultTotalBudget,
		Interval:    DefaultInterval,
	}
}

// EffectiveInterval is the wait applied before every attempt.
func (c Config) EffectiveInterval() time.Duration {
	if c.UseExtendedSettleMode {
		return ExtendedSettleInterval
	}
	if c.Interval <= 0 {
		return DefaultInterval
	}
	return c.Interval
}

func (c Config) budget() time.Duration {
	if c.TotalBudget <= 0 {
		return DefaultTotalBudget
	}
	return c.TotalBudget
}

// Probe captures the current state of the observed system.
type Probe[T any] func(ctx context.Context) (T, error)

// Compare checks an artifact against the reference. Any error is a mismatch.
type Compare[T any] func(artifact T) error

// Attempt records one probe+compare round.
type Attempt struct {
	Index   int
	Elapsed time.Duration
	Err     error
}

// Succeeded reports whether the attempt matched the reference.
func (a Attempt) Succeeded() bool {
	return a.Err == nil
}

// Result is returned on success.
type Result[T any] struct {
	Artifact T
	Attempts []Attempt
}

// TimeoutError is returned when the budget is spent without a match.
type TimeoutError struct {
	Name     string
	Attempts int
	Elapsed  time.Duration
	Budget   time.Duration
	LastErr  error
}

func (e *TimeoutError) Error() string {
	msg := fmt.Sprintf("verification %q timed out after %d attempts in %s (budget %s)",
		e.Name, e.Attempts, e.Elapsed.Round(time.Millisecond), e.Budget)
	if e.LastErr != nil {
		msg += ": " + e.LastErr.Error()
	}
	return msg
}

func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrVerificationTimeout
}

// Clock abstracts time so tests can drive the loop without sleeping.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type options struct {
	logger    log.Logger
	clock     Clock
	onAttempt func(Attempt)
}

// Option configures a single Verify call.
type Option func(*options)

// WithLogger sets the logger failed attempts are reported to.
func WithLogger(l log.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithOnAttempt registers a callback invoked after every attempt.
func WithOnAttempt(fn func(Attempt)) Option {
	return func(o *options) { o.onAttempt = fn }
}

// Verify waits, probes and compares until compare succeeds or cfg's budget is
// exhausted. The budget is checked after each attempt completes, so the last
// attempt may finish past it. Probe and compare errors are both treated as
// mismatches; the most recent one is carried by the returned *TimeoutError.
func Verify[T any](ctx context.Context, cfg Config, name string, probe Probe[T], compare Compare[T], opts ...Option) (Result[T], error) {
	o := options{clock: realClock{}}
	for _, opt := range opts {
		opt(&o)
	}

	var (
		result   Result[T]
		lastErr  error
		matched  bool
		interval = cfg.EffectiveInterval()
		budget   = cfg.budget()
		start    = o.clock.Now()
	)

	for {
		if err := o.clock.Sleep(ctx, interval); err != nil {
			return result, fmt.Errorf("verification %q aborted after %d attempts: %w", name, len(result.Attempts), err)
		}

		artifact, err := probe(ctx)
		if err == nil {
			err = compare(artifact)
		}

		attempt := Attempt{
			Index:   len(result.Attempts),
			Elapsed: o.clock.Now().Sub(start),
			Err:     err,
		}
		result.Attempts = append(result.Attempts, attempt)
		if o.onAttempt != nil {
			o.onAttempt(attempt)
		}

		if err == nil {
			matched = true
			result.Artifact = artifact
			if o.logger != nil {
				o.logger.Info("Verification passed", "name", name, "retries", attempt.Index)
			}
			break
		}

		lastErr = err
		if o.logger != nil {
			o.logger.Info("Verification attempt failed", "name", name, "try", len(result.Attempts), "error", err)
		}

		if attempt.Elapsed > budget {
			break
		}
	}

	if !matched {
		return result, &TimeoutError{
			Name:     name,
			Attempts: len(result.Attempts),
			Elapsed:  o.clock.Now().Sub(start),
			Budget:   budget,
			LastErr:  lastErr,
		}
	}
	return result, nil
}
