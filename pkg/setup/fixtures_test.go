package setup

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/log"

	"dev/bravebird/messenger-e2e/pkg/app"
	"dev/bravebird/messenger-e2e/pkg/logging"
	"dev/bravebird/messenger-e2e/pkg/models"
)

type fakeOpener struct {
	mu     sync.Mutex
	opened []app.WindowOptions
	failOn string
}

func (f *fakeOpener) Open(_ context.Context, opts app.WindowOptions) (*app.Window, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if opts.Name == f.failOn {
		return nil, errors.New("launch failed")
	}
	f.opened = append(f.opened, opts)
	return &app.Window{Name: opts.Name}, nil
}

func fakeUser(_ context.Context, w *app.Window, userName string, _ log.Logger) (models.User, error) {
	return models.User{UserName: userName, SessionID: "05" + w.Name}, nil
}

func newTestFixtures(opener WindowOpener) *Fixtures {
	f := NewFixtures(opener, nil, logging.Discard())
	f.NewUser = fakeUser
	f.GoOffline = func(*app.Window) error { return nil }
	return f
}

func TestFixtures_TwoWindows(t *testing.T) {
	opener := &fakeOpener{}
	h, err := newTestFixtures(opener).Open(context.Background(), models.FixtureTwoWindows)
	require.NoError(t, err)
	defer h.Close()

	require.Len(t, h.All(), 2)
	assert.Equal(t, "windowA", h.WindowA.Name)
	assert.Equal(t, "windowB", h.WindowB.Name)
	assert.Empty(t, h.Alice.UserName)
}

func TestFixtures_AliceAndBob(t *testing.T) {
	h, err := newTestFixtures(&fakeOpener{}).Open(context.Background(), models.FixtureAlice1WBob1W)
	require.NoError(t, err)
	defer h.Close()

	assert.Equal(t, "Alice", h.Alice.UserName)
	assert.Equal(t, "Bob", h.Bob.UserName)
	assert.Equal(t, "05aliceWindow1", h.Alice.SessionID)
}

func TestFixtures_AliceOffline(t *testing.T) {
	f := newTestFixtures(&fakeOpener{})
	var offline []string
	f.GoOffline = func(w *app.Window) error {
		offline = append(offline, w.Name)
		return nil
	}

	h, err := f.Open(context.Background(), models.FixtureAlice1WNoNetwork)
	require.NoError(t, err)
	defer h.Close()

	assert.Len(t, h.All(), 1)
	assert.Equal(t, []string{"aliceWindow1"}, offline)
}

func TestFixtures_Errors(t *testing.T) {
	t.Run("launch failure", func(t *testing.T) {
		_, err := newTestFixtures(&fakeOpener{failOn: "bobWindow1"}).Open(context.Background(), models.FixtureAlice1WBob1W)
		assert.ErrorContains(t, err, "failed to open bobWindow1")
	})

	t.Run("user creation failure", func(t *testing.T) {
		f := newTestFixtures(&fakeOpener{})
		f.NewUser = func(context.Context, *app.Window, string, log.Logger) (models.User, error) {
			return models.User{}, errors.New("no onboarding screen")
		}
		_, err := f.Open(context.Background(), models.FixtureAlice1WNoNetwork)
		assert.ErrorContains(t, err, "no onboarding screen")
	})

	t.Run("unknown fixture", func(t *testing.T) {
		_, err := newTestFixtures(&fakeOpener{}).Open(context.Background(), models.FixtureKind("three_windows"))
		assert.Error(t, err)
	})

	t.Run("cleanup failure", func(t *testing.T) {
		f := newTestFixtures(&fakeOpener{})
		f.Cleaner = NewCleaner("/tmp", "prefix", logging.Discard())
		_, err := f.Open(context.Background(), models.FixtureTwoWindows)
		assert.ErrorContains(t, err, "failed to clean leftovers")
	})
}

func TestForceCloseAllWindows_SkipsNil(t *testing.T) {
	w := &app.Window{Name: "a"}
	require.NoError(t, ForceCloseAllWindows([]*app.Window{nil, w, nil}))

	var empty OpenWindows
	assert.Empty(t, empty.All())
	assert.NoError(t, empty.CloseAll())
}

func TestStripNewlines(t *testing.T) {
	assert.Equal(t, "05abcdef", stripNewlines("05abc\r\ndef\n"))
}
