package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.temporal.io/sdk/log"
)

// ErrUnsupportedPlatform is returned on platforms without a known app data root
var ErrUnsupportedPlatform = errors.New("only macOS and Linux are currently supported")

// minRootLen guards against removing from "/" or a bare home directory.
const minRootLen = 9

// ConfigRoot returns the directory holding every instance's data directory
func ConfigRoot(goos, home string) (string, error) {
	var root string
	switch goos {
	case "darwin":
		root = filepath.Join(home, "Library", "Application Support")
	case "linux":
		root = filepath.Join(home, ".config")
	default:
		return "", ErrUnsupportedPlatform
	}
	if len(root) < minRootLen {
		return "", fmt.Errorf("config root not found or invalid: %q", root)
	}
	return root, nil
}

// DefaultConfigRoot is ConfigRoot for the running process
func DefaultConfigRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home dir: %w", err)
	}
	return ConfigRoot(runtime.GOOS, home)
}

// Cleaner removes data directories left behind by earlier runs. Once a
// cleanup succeeds it is never repeated; share one instance for the lifetime
// of the process.
type Cleaner struct {
	root   string
	prefix string
	logger log.Logger

	mu      sync.Mutex
	done    bool
	removed []string
}

// NewCleaner creates a cleaner for directories under root whose name contains prefix
func NewCleaner(root, prefix string, logger log.Logger) *Cleaner {
	return &Cleaner{root: root, prefix: prefix, logger: logger}
}

// Clean removes leftovers unless an earlier call already succeeded, in which
// case it returns that call's result. Concurrent callers wait for the
// cleanup in progress.
func (c *Cleaner) Clean() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done {
		return c.removed, nil
	}
	removed, err := c.clean()
	if err != nil {
		return removed, err
	}
	c.done = true
	c.removed = removed
	return removed, nil
}

// Done reports whether a cleanup has succeeded
func (c *Cleaner) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Cleaner) clean() ([]string, error) {
	if len(c.root) < minRootLen {
		return nil, fmt.Errorf("config root not found or invalid: %q", c.root)
	}
	if c.prefix == "" {
		return nil, errors.New("refusing to clean with an empty prefix")
	}

	c.logger.Info("Cleaning other tests leftovers", "root", c.root, "prefix", c.prefix)

	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s: %w", c.root, err)
	}

	var removed []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.Contains(entry.Name(), c.prefix) {
			continue
		}
		path := filepath.Join(c.root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed = append(removed, path)
	}

	c.logger.Info("Cleanup done", "removed", len(removed))
	return removed, nil
}
