package setup

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/log"
	"golang.org/x/sync/errgroup"

	"dev/bravebird/messenger-e2e/pkg/app"
	"dev/bravebird/messenger-e2e/pkg/models"
)

// WindowOpener starts application windows. *app.Launcher implements it.
type WindowOpener interface {
	Open(ctx context.Context, opts app.WindowOptions) (*app.Window, error)
}

// UserFactory creates an account in a window
type UserFactory func(ctx context.Context, w *app.Window, userName string, logger log.Logger) (models.User, error)

// Harness is what a scenario body receives
type Harness struct {
	OpenWindows

	Alice models.User
	Bob   models.User
}

// Close closes every window of the harness
func (h *Harness) Close() error {
	return h.CloseAll()
}

// Fixtures prepares windows and users for scenarios
type Fixtures struct {
	Opener  WindowOpener
	Cleaner *Cleaner
	Logger  log.Logger

	// NewUser defaults to the onboarding flow.
	NewUser UserFactory
	// GoOffline defaults to cutting the window's network.
	GoOffline func(w *app.Window) error
}

// NewFixtures creates fixtures with the default user factory
func NewFixtures(opener WindowOpener, cleaner *Cleaner, logger log.Logger) *Fixtures {
	return &Fixtures{
		Opener:    opener,
		Cleaner:   cleaner,
		Logger:    logger,
		NewUser:   NewUser,
		GoOffline: func(w *app.Window) error { return w.SetOffline(true) },
	}
}

// Open builds the harness for kind. On error everything opened so far is
// closed again.
func (f *Fixtures) Open(ctx context.Context, kind models.FixtureKind) (*Harness, error) {
	if f.Cleaner != nil {
		if _, err := f.Cleaner.Clean(); err != nil {
			return nil, fmt.Errorf("failed to clean leftovers: %w", err)
		}
	}

	var (
		h   *Harness
		err error
	)
	switch kind {
	case models.FixtureTwoWindows:
		h, err = f.openWindows(ctx, "windowA", "windowB")
	case models.FixtureAlice1WBob1W:
		h, err = f.aliceAndBob(ctx)
	case models.FixtureAlice1WNoNetwork:
		h, err = f.aliceOffline(ctx)
	default:
		return nil, fmt.Errorf("unknown fixture: %s", kind)
	}
	if err != nil {
		return nil, err
	}

	f.Logger.Info("Fixture ready", "fixture", kind, "windows", len(h.All()))
	return h, nil
}

func (f *Fixtures) openWindows(ctx context.Context, names ...string) (*Harness, error) {
	windows := make([]*app.Window, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			w, err := f.Opener.Open(gctx, app.WindowOptions{Name: name})
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", name, err)
			}
			windows[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = ForceCloseAllWindows(windows)
		return nil, err
	}

	h := &Harness{}
	slots := []**app.Window{&h.WindowA, &h.WindowB, &h.WindowC, &h.WindowD, &h.WindowE}
	for i, w := range windows {
		if i >= len(slots) {
			_ = ForceCloseAllWindows(windows)
			return nil, fmt.Errorf("at most %d windows are supported", len(slots))
		}
		*slots[i] = w
	}
	return h, nil
}

func (f *Fixtures) aliceAndBob(ctx context.Context) (*Harness, error) {
	h, err := f.openWindows(ctx, "aliceWindow1", "bobWindow1")
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := f.NewUser(gctx, h.WindowA, "Alice", f.Logger)
		h.Alice = u
		return err
	})
	g.Go(func() error {
		u, err := f.NewUser(gctx, h.WindowB, "Bob", f.Logger)
		h.Bob = u
		return err
	})
	if err := g.Wait(); err != nil {
		_ = h.Close()
		return nil, err
	}
	return h, nil
}

func (f *Fixtures) aliceOffline(ctx context.Context) (*Harness, error) {
	h, err := f.openWindows(ctx, "aliceWindow1")
	if err != nil {
		return nil, err
	}
	if h.Alice, err = f.NewUser(ctx, h.WindowA, "Alice", f.Logger); err != nil {
		_ = h.Close()
		return nil, err
	}
	if err := f.GoOffline(h.WindowA); err != nil {
		_ = h.Close()
		return nil, fmt.Errorf("failed to cut network: %w", err)
	}
	return h, nil
}
