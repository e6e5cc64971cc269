package setup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev/bravebird/messenger-e2e/pkg/logging"
)

func TestConfigRoot(t *testing.T) {
	root, err := ConfigRoot("darwin", "/Users/alice")
	require.NoError(t, err)
	assert.Equal(t, "/Users/alice/Library/Application Support", root)

	root, err = ConfigRoot("linux", "/home/alice")
	require.NoError(t, err)
	assert.Equal(t, "/home/alice/.config", root)

	_, err = ConfigRoot("windows", `C:\Users\alice`)
	assert.ErrorIs(t, err, ErrUnsupportedPlatform)

	_, err = ConfigRoot("linux", "/")
	assert.Error(t, err)
}

func TestCleaner_RemovesOnlyPrefixedDirs(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{
		"test-integration-test-session-1a2b3c4d",
		"test-integration-test-session-deadbeef",
		"Session",
		"other-app",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, name, "nested"), 0755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "test-integration-test-session.log"), []byte("x"), 0644))

	c := NewCleaner(root, "test-integration-test-session", logging.Discard())
	removed, err := c.Clean()
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.True(t, c.Done())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	assert.ElementsMatch(t, []string{"Session", "other-app", "test-integration-test-session.log"}, left)
}

func TestCleaner_RunsOnce(t *testing.T) {
	root := t.TempDir()
	c := NewCleaner(root, "test-integration-test-session", logging.Discard())

	_, err := c.Clean()
	require.NoError(t, err)

	// created after the first cleanup, must survive
	late := filepath.Join(root, "test-integration-test-session-late")
	require.NoError(t, os.Mkdir(late, 0755))

	_, err = c.Clean()
	require.NoError(t, err)
	assert.DirExists(t, late)
}

func TestCleaner_InvalidRoot(t *testing.T) {
	c := NewCleaner("/tmp", "test-integration-test-session", logging.Discard())
	_, err := c.Clean()
	require.Error(t, err)
	assert.False(t, c.Done())
}

func TestCleaner_EmptyPrefix(t *testing.T) {
	c := NewCleaner(t.TempDir(), "", logging.Discard())
	_, err := c.Clean()
	assert.Error(t, err)
}

func TestCleaner_MissingRoot(t *testing.T) {
	c := NewCleaner(filepath.Join(t.TempDir(), "does-not-exist"), "prefix", logging.Discard())
	removed, err := c.Clean()
	require.NoError(t, err)
	assert.Empty(t, removed)
	assert.True(t, c.Done())
}
